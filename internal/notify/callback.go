package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrInvalidPayload は遅延通知ペイロードが不正であることを表す。
var ErrInvalidPayload = errors.New("notify: 遅延通知ペイロードが不正です")

// ParseDeferredPayload はコールバックのリクエストボディを解析する。
func ParseDeferredPayload(body []byte) (*DeferredPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	for _, key := range []string{"chatData", "messageData"} {
		if v, ok := raw[key]; !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: %sがありません", ErrInvalidPayload, key)
		}
	}

	var p DeferredPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.MessageData.SenderID == "" {
		return nil, fmt.Errorf("%w: messageData.senderIdが空です", ErrInvalidPayload)
	}
	return &p, nil
}

// CallbackHandler は遅延タスクのコールバックを処理する。
// 状態を持たないため、同じペイロードで何度呼ばれても通知を再送するだけになる。
type CallbackHandler struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewCallbackHandler は新しいCallbackHandlerを生成する。
func NewCallbackHandler(dispatcher *Dispatcher, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{dispatcher: dispatcher, logger: logger}
}

// Handle はスナップショットから遅延通知を組み立て、送信者以外に送る。
// 宛先のトークンはスケジュール時点のものを使う。
// 個別の送信失敗はエラーにしない。
func (h *CallbackHandler) Handle(ctx context.Context, body []byte) (Report, error) {
	p, err := ParseDeferredPayload(body)
	if err != nil {
		return Report{}, err
	}

	conv, msg := &p.ChatData, &p.MessageData
	report := h.dispatcher.Dispatch(ctx, conv.Recipients(msg.SenderID), ComposeDeferred(conv, msg))
	h.logger.Info().
		Str("conversation_id", p.ConversationID).
		Str("message_id", p.MessageID).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("遅延通知を送信しました")
	return report, nil
}
