// Package chat はドキュメントストアに保存される会話・メッセージ・
// ユーザープロフィールのドキュメント構造を定義する。
//
// 通知の宛先選定など、ドキュメントだけで完結する判定もここに置く。
package chat
