// Package pushbridge はプッシュ通知ブリッジのHTTPサーバーを提供する。
//
// ドキュメントストアのトリガー（新規メッセージ、プロフィール更新）を受け取り、
// 既読状態の更新と即時通知または遅延通知の登録を行う。
// 遅延タスクからのコールバック（/futurePushCallback）で遅延通知を配信する。
package pushbridge
