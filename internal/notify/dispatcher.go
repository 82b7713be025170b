package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/push"
)

// DefaultConcurrency は同時に送信するプッシュ通知の既定数。
const DefaultConcurrency = 8

// Report はファンアウト送信の結果。
type Report struct {
	// Attempted は送信を試みた宛先数。
	Attempted int
	// Sent は送信に成功した宛先数。
	Sent int
	// Failed は送信に失敗した宛先数。
	Failed int
	// Err は失敗した送信のエラーをまとめたもの。
	Err error
}

// Dispatcher は宛先ごとに独立してプッシュ通知を送信する。
// 1件の失敗は他の送信を中断しない。
type Dispatcher struct {
	sender      push.Sender
	concurrency int
	logger      zerolog.Logger
}

// NewDispatcher は新しいDispatcherを生成する。
// concurrencyが0以下の場合はDefaultConcurrencyを使う。
func NewDispatcher(sender push.Sender, concurrency int, logger zerolog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{sender: sender, concurrency: concurrency, logger: logger}
}

// Dispatch はすべての宛先に通知を送り、全件の試行が終わるまで待つ。
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []chat.Recipient, n push.Notification) Report {
	var (
		mu   sync.Mutex
		errs []error
		sent int
	)

	opts := push.DefaultOptions()
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			err := d.sender.Send(ctx, r.Token, n, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.logger.Warn().Err(err).Str("user_id", r.UserID).Msg("プッシュ通知の送信に失敗しました")
				errs = append(errs, fmt.Errorf("ユーザー %s への送信に失敗: %w", r.UserID, err))
				return nil
			}
			sent++
			return nil
		})
	}
	_ = g.Wait()

	return Report{
		Attempted: len(recipients),
		Sent:      sent,
		Failed:    len(errs),
		Err:       errors.Join(errs...),
	}
}

// DispatchImmediate は送信者以外のトークン登録済みメンバーに即時通知を送る。
func (d *Dispatcher) DispatchImmediate(ctx context.Context, conv *chat.Conversation, msg *chat.Message) Report {
	report := d.Dispatch(ctx, conv.Recipients(msg.SenderID), ComposeImmediate(conv, msg))
	d.logger.Info().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("即時通知を送信しました")
	return report
}
