// Package notify はチャットメッセージの通知配信を扱う。
//
// 新規メッセージごとに既読状態と最新メッセージのキャッシュを更新し、
// 即時通知を送るか、メッセージ時刻に発火する遅延タスクを登録する。
// 遅延タスクのコールバックはスケジュール時点のスナップショットから通知を再構成する。
// ユーザーのプッシュトークン更新は、所属するすべての会話のキャッシュに反映する。
package notify
