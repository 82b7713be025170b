// Package push はデバイストークン宛てのプッシュ通知送信を提供する。
//
// HTTPプッシュゲートウェイ（FCMレガシーHTTP APIと同じ形式）への送信と、
// 実際には送信せずログに出すだけのドライラン送信を持つ。
package push
