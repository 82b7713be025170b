package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/docstore"
)

// SyncReport はトークン同期の結果。
type SyncReport struct {
	// Matched はユーザーが所属する会話数。
	Matched int
	// Updated はトークンを書き換えた会話数。
	Updated int
	// Skipped は書き換えが不要または不可能だった会話数。
	Skipped int
}

// TokenSyncService はユーザーのプッシュトークンを所属会話のキャッシュに反映する。
type TokenSyncService struct {
	store  docstore.Store
	logger zerolog.Logger
}

// NewTokenSyncService は新しいTokenSyncServiceを生成する。
func NewTokenSyncService(store docstore.Store, logger zerolog.Logger) *TokenSyncService {
	return &TokenSyncService{store: store, logger: logger}
}

// Sync はユーザーが所属するすべての会話で members.<userID>.pushToken を上書きする。
// 会話ごとに独立して処理し、失敗はすべての試行後にまとめて返す。
func (s *TokenSyncService) Sync(ctx context.Context, userID, token string) (SyncReport, error) {
	docs, err := s.store.Query(ctx, chat.CollectionConversations, docstore.Query{
		ArrayField: "memberIds",
		Contains:   userID,
		OrderBy:    "recentMessageSummary.timestamp.seconds",
		Descending: true,
	})
	if err != nil {
		return SyncReport{}, fmt.Errorf("ユーザー %s の会話の検索に失敗: %w", userID, err)
	}

	report := SyncReport{Matched: len(docs)}
	var errs []error
	for i := range docs {
		conv, err := docstore.Decode[chat.Conversation](&docs[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		member, ok := conv.Members[userID]
		if !ok {
			s.logger.Warn().
				Str("conversation_id", docs[i].ID).
				Str("user_id", userID).
				Msg("memberIdsに含まれるユーザーがmembersにありません")
			report.Skipped++
			continue
		}
		if member.PushToken == token {
			report.Skipped++
			continue
		}

		err = s.store.Update(ctx, chat.CollectionConversations, docs[i].ID,
			docstore.FieldUpdate{Path: []string{"members", userID, "pushToken"}, Value: token},
		)
		if errors.Is(err, docstore.ErrNotFound) {
			report.Skipped++
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("会話 %s のトークン更新に失敗: %w", docs[i].ID, err))
			continue
		}
		report.Updated++
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("matched", report.Matched).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", len(errs)).
		Msg("プッシュトークンを同期しました")
	return report, errors.Join(errs...)
}
