package push

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PriorityHigh は即時配信を要求する通知優先度。
const PriorityHigh = "high"

// DefaultTTL は端末がオフラインの場合に通知を保持する期間。
const DefaultTTL = 24 * time.Hour

// Notification は通知の表示内容。
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Options は配信オプション。
type Options struct {
	// Priority は配信優先度。
	Priority string
	// TTL は配信を試みる期間。
	TTL time.Duration
}

// DefaultOptions はチャット通知で使う配信オプションを返す。
func DefaultOptions() Options {
	return Options{Priority: PriorityHigh, TTL: DefaultTTL}
}

// Sender はプッシュ通知の送信ポート。実装は並行利用に安全であること。
type Sender interface {
	Send(ctx context.Context, token string, n Notification, opts Options) error
}

// LogSender は通知を送信せずログに記録するSender。
type LogSender struct {
	logger zerolog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender は新しいLogSenderを生成する。
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send は通知内容をログに出力する。
func (s *LogSender) Send(_ context.Context, token string, n Notification, opts Options) error {
	s.logger.Info().
		Str("token", token).
		Str("title", n.Title).
		Str("body", n.Body).
		Str("priority", opts.Priority).
		Dur("ttl", opts.TTL).
		Msg("プッシュ通知（ドライラン）")
	return nil
}
