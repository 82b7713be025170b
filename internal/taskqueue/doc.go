// Package taskqueue は指定時刻にHTTPリクエストを実行する遅延タスクを扱う。
//
// Clientはタスクを登録するポートで、Asynq（Redis）による実装を持つ。
// Workerは期限が来たタスクを取り出し、HTTPリクエストを送信する。
// 2xx以外の応答はエラーとして返し、キューのリトライ方針に任せる。
package taskqueue
