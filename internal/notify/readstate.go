package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/docstore"
)

// ReadStateTracker は新規メッセージに合わせて会話の既読状態を更新する。
type ReadStateTracker struct {
	store  docstore.Store
	logger zerolog.Logger
}

// NewReadStateTracker は新しいReadStateTrackerを生成する。
func NewReadStateTracker(store docstore.Store, logger zerolog.Logger) *ReadStateTracker {
	return &ReadStateTracker{store: store, logger: logger}
}

// Apply は送信者以外を未読にし、最新メッセージのキャッシュを更新する。
// readStatusとrecentMessageSummaryは1回の部分更新で書き込む。
// 会話が存在しない場合は何もせずnilを返す。戻り値は更新後の会話。
func (r *ReadStateTracker) Apply(ctx context.Context, conversationID string, msg *chat.Message) (*chat.Conversation, error) {
	conv, err := loadConversation(ctx, r.store, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		r.logger.Debug().Str("conversation_id", conversationID).Msg("会話が存在しないため既読状態の更新をスキップします")
		return nil, nil
	}
	if !conv.MemberIDsConsistent() {
		r.logger.Warn().
			Str("conversation_id", conversationID).
			Strs("member_ids", conv.MemberIDs).
			Msg("memberIdsとmembersが一致していません")
	}

	if conv.ReadStatus == nil {
		conv.ReadStatus = map[string]bool{}
	}
	conv.MarkUnreadExcept(msg.SenderID)
	summary := msg.Summary()
	conv.RecentMessage = &summary

	err = r.store.Update(ctx, chat.CollectionConversations, conversationID,
		docstore.FieldUpdate{Path: []string{"readStatus"}, Value: conv.ReadStatus},
		docstore.FieldUpdate{Path: []string{"recentMessageSummary"}, Value: summary},
	)
	if errors.Is(err, docstore.ErrNotFound) {
		r.logger.Debug().Str("conversation_id", conversationID).Msg("更新前に会話が削除されました")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話 %s の既読状態の更新に失敗: %w", conversationID, err)
	}
	return conv, nil
}
