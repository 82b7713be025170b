// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// プッシュゲートウェイへの通知送信、スケジュール済みタスクから
// コールバックエンドポイントへの呼び出しなど、
// サービス間の通信パターンを統一する。
package httpclient
