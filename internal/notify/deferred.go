package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/taskqueue"
)

// DeferredPayload は遅延タスクに保存するスナップショット。
// スケジュール後の会話の変更（トークンの更新など）は反映されない。
type DeferredPayload struct {
	ChatData    chat.Conversation `json:"chatData"`
	MessageData chat.Message      `json:"messageData"`
	// ConversationID と MessageID はログの突き合わせ用。
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

// NewDeferredPayload は会話とメッセージの値コピーからペイロードを作る。
func NewDeferredPayload(conv *chat.Conversation, msg *chat.Message) DeferredPayload {
	return DeferredPayload{
		ChatData:       *conv,
		MessageData:    *msg,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	}
}

// FirePolicy は遅延通知の発火時刻の決め方。
type FirePolicy struct {
	// Delay はメッセージ時刻に加える時間。0の場合はメッセージ時刻ちょうどに発火する。
	Delay time.Duration
}

// FireTime はメッセージの発火時刻を返す。
func (p FirePolicy) FireTime(msg *chat.Message) time.Time {
	return msg.Timestamp.Time().Add(p.Delay)
}

// DeferredScheduler は遅延通知のタスクを登録する。
type DeferredScheduler struct {
	tasks       taskqueue.Client
	queue       string
	callbackURL string
	policy      FirePolicy
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDeferredScheduler は新しいDeferredSchedulerを生成する。
// callbackURLはタスク実行時に呼び出すコールバックエンドポイントの絶対URL。
func NewDeferredScheduler(tasks taskqueue.Client, queue, callbackURL string, policy FirePolicy, logger zerolog.Logger) *DeferredScheduler {
	return &DeferredScheduler{
		tasks:       tasks,
		queue:       queue,
		callbackURL: callbackURL,
		policy:      policy,
		now:         time.Now,
		logger:      logger,
	}
}

// Schedule はスナップショットを載せたタスクを登録し、登録の完了を待つ。
// 登録に失敗した場合はエラーを返す。
func (s *DeferredScheduler) Schedule(ctx context.Context, conv *chat.Conversation, msg *chat.Message) (string, error) {
	body, err := json.Marshal(NewDeferredPayload(conv, msg))
	if err != nil {
		return "", fmt.Errorf("遅延通知ペイロードのシリアライズに失敗: %w", err)
	}

	fireAt := s.policy.FireTime(msg)
	log := s.logger.With().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Time("fire_at", fireAt).
		Logger()
	if !fireAt.After(s.now()) {
		log.Warn().Dur("delay", s.policy.Delay).Msg("遅延通知の発火時刻が現在時刻以前です。すぐに配信されます")
	}

	taskID, err := s.tasks.CreateTask(ctx, s.queue, taskqueue.HTTPTask{
		Method:       http.MethodPost,
		URL:          s.callbackURL,
		Body:         body,
		Headers:      map[string]string{"Content-Type": "application/json"},
		ScheduleTime: fireAt,
	})
	if err != nil {
		return "", fmt.Errorf("遅延通知タスクの登録に失敗: %w", err)
	}

	log.Info().Str("task_id", taskID).Str("queue", s.queue).Msg("遅延通知タスクを登録しました")
	return taskID, nil
}
