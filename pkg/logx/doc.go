// Package logx はzerologベースの構造化ロガーの生成を提供する。
//
// ログレベル、出力形式（JSON/コンソール）、サービス名フィールドを
// 全サービスで統一する。
package logx
