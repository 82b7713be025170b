package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/docstore"
	"github.com/nenechat/pushbridge/internal/push"
	"github.com/nenechat/pushbridge/internal/taskqueue"
)

// Path はメッセージに対して選ばれた配信経路。
type Path string

const (
	// PathSkipped は会話またはメッセージが存在せず何もしなかったことを表す。
	PathSkipped Path = "skipped"
	// PathImmediate は即時通知を送ったことを表す。
	PathImmediate Path = "immediate"
	// PathDeferred は遅延タスクを登録したことを表す。
	PathDeferred Path = "deferred"
)

// Outcome は新規メッセージ処理の結果。
type Outcome struct {
	Path   Path   `json:"path"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
	TaskID string `json:"taskId,omitempty"`
}

// Config はServiceの設定。
type Config struct {
	// Queue は遅延タスクを登録するキュー名。
	Queue string
	// CallbackURL は遅延タスクが呼び出すURL。
	CallbackURL string
	// Policy は遅延通知の発火時刻の決め方。
	Policy FirePolicy
	// Concurrency は同時に送信するプッシュ通知数。
	Concurrency int
}

// Service はトリガーイベントを各コンポーネントに振り分ける。
type Service struct {
	store      docstore.Store
	tracker    *ReadStateTracker
	dispatcher *Dispatcher
	scheduler  *DeferredScheduler
	callback   *CallbackHandler
	tokens     *TokenSyncService
	logger     zerolog.Logger
}

// NewService は依存を受け取って新しいServiceを生成する。
func NewService(store docstore.Store, sender push.Sender, tasks taskqueue.Client, cfg Config, logger zerolog.Logger) *Service {
	dispatcher := NewDispatcher(sender, cfg.Concurrency, logger)
	return &Service{
		store:      store,
		tracker:    NewReadStateTracker(store, logger),
		dispatcher: dispatcher,
		scheduler:  NewDeferredScheduler(tasks, cfg.Queue, cfg.CallbackURL, cfg.Policy, logger),
		callback:   NewCallbackHandler(dispatcher, logger),
		tokens:     NewTokenSyncService(store, logger),
		logger:     logger,
	}
}

// OnMessageCreated は新規メッセージを処理する。
// rawが空の場合はメッセージをストアから読み出す。
// 既読状態を更新したあと、deferredに応じて即時通知か遅延タスク登録を行う。
// 遅延タスクの登録失敗はエラーとして返す。
func (s *Service) OnMessageCreated(ctx context.Context, conversationID, messageID string, raw json.RawMessage) (Outcome, error) {
	msg, err := s.resolveMessage(ctx, conversationID, messageID, raw)
	if err != nil {
		return Outcome{}, err
	}
	if msg == nil {
		s.logger.Info().Str("conversation_id", conversationID).Str("message_id", messageID).Msg("メッセージが存在しないためスキップします")
		return Outcome{Path: PathSkipped}, nil
	}

	conv, err := s.tracker.Apply(ctx, conversationID, msg)
	if err != nil {
		return Outcome{}, err
	}
	if conv == nil {
		return Outcome{Path: PathSkipped}, nil
	}

	if msg.Deferred {
		taskID, err := s.scheduler.Schedule(ctx, conv, msg)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Path: PathDeferred, TaskID: taskID}, nil
	}

	report := s.dispatcher.DispatchImmediate(ctx, conv, msg)
	return Outcome{Path: PathImmediate, Sent: report.Sent, Failed: report.Failed}, nil
}

// OnDeferredCallback はスケジュール済みタスクのコールバックを処理する。
func (s *Service) OnDeferredCallback(ctx context.Context, body []byte) (Report, error) {
	return s.callback.Handle(ctx, body)
}

// ErrMissingProfile は更新後のプロフィールが含まれていないことを表す。
var ErrMissingProfile = errors.New("notify: 更新後のプロフィールがありません")

// OnUserProfileUpdated はプロフィール更新を処理する。
// 更新後のトークンを所属する全会話のキャッシュに反映する。
// トークンが変わっていなくても同期する。
func (s *Service) OnUserProfileUpdated(ctx context.Context, userID string, after json.RawMessage) (SyncReport, error) {
	if IsAbsent(after) {
		return SyncReport{}, ErrMissingProfile
	}
	var next chat.UserProfile
	if err := json.Unmarshal(after, &next); err != nil {
		return SyncReport{}, fmt.Errorf("更新後プロフィールのデシリアライズに失敗: %w", err)
	}
	return s.tokens.Sync(ctx, userID, next.PushToken)
}

// IsAbsent は省略またはnullのJSON値であればtrueを返す。
func IsAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func (s *Service) resolveMessage(ctx context.Context, conversationID, messageID string, raw json.RawMessage) (*chat.Message, error) {
	if IsAbsent(raw) {
		return loadMessage(ctx, s.store, conversationID, messageID)
	}
	var msg chat.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("メッセージのデシリアライズに失敗: %w", err)
	}
	msg.ID = messageID
	return &msg, nil
}
