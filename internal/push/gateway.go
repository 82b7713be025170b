package push

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/nenechat/pushbridge/pkg/httpclient"
)

// sendPath はゲートウェイの送信エンドポイント。
const sendPath = "/fcm/send"

// ErrTokenRejected はゲートウェイがトークン単位で配信を拒否したことを表す。
var ErrTokenRejected = errors.New("push: トークンへの配信が拒否されました")

// gatewayMessage はゲートウェイへの送信リクエスト。
type gatewayMessage struct {
	To           string       `json:"to"`
	Notification Notification `json:"notification"`
	Priority     string       `json:"priority,omitempty"`
	TimeToLive   int64        `json:"time_to_live,omitempty"`
}

// gatewayResponse はゲートウェイからの応答。
type gatewayResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// GatewayClient はHTTPプッシュゲートウェイへ通知を送るSender。
// 送信レートはリミッターで制限する。
type GatewayClient struct {
	client  *httpclient.Client
	limiter *rate.Limiter
}

var _ Sender = (*GatewayClient)(nil)

// NewGatewayClient は新しいGatewayClientを生成する。
// ratePerSecが0以下の場合はレート制限を行わない。
// optsはタイムアウトなどHTTPクライアントの設定に使う。
func NewGatewayClient(baseURL, serverKey string, ratePerSec int, opts ...httpclient.Option) *GatewayClient {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = ratePerSec
	}
	if serverKey != "" {
		opts = append(opts, httpclient.WithHeader("Authorization", "key="+serverKey))
	}
	return &GatewayClient{
		client:  httpclient.New(baseURL, opts...),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Send は1トークン宛てに通知を送信する。
func (g *GatewayClient) Send(ctx context.Context, token string, n Notification, opts Options) error {
	if token == "" {
		return fmt.Errorf("%w: トークンが空です", ErrTokenRejected)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("送信レート待機に失敗: %w", err)
	}

	msg := gatewayMessage{
		To:           token,
		Notification: n,
		Priority:     opts.Priority,
		TimeToLive:   int64(opts.TTL.Seconds()),
	}
	var resp gatewayResponse
	if err := g.client.PostJSON(ctx, sendPath, msg, &resp); err != nil {
		return fmt.Errorf("プッシュゲートウェイへの送信に失敗: %w", err)
	}

	if resp.Failure > 0 {
		reason := "unknown"
		for _, r := range resp.Results {
			if r.Error != "" {
				reason = r.Error
				break
			}
		}
		return fmt.Errorf("%w: %s", ErrTokenRejected, reason)
	}
	return nil
}
