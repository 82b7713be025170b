package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/docstore"
)

// loadConversation は会話を読み出す。存在しない場合はnilを返す。
func loadConversation(ctx context.Context, store docstore.Store, id string) (*chat.Conversation, error) {
	doc, err := store.Get(ctx, chat.CollectionConversations, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話 %s の取得に失敗: %w", id, err)
	}
	conv, err := docstore.Decode[chat.Conversation](doc)
	if err != nil {
		return nil, err
	}
	conv.ID = doc.ID
	return conv, nil
}

// loadMessage はメッセージを読み出す。存在しない場合はnilを返す。
func loadMessage(ctx context.Context, store docstore.Store, conversationID, messageID string) (*chat.Message, error) {
	doc, err := store.Get(ctx, chat.MessagesCollection(conversationID), messageID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メッセージ %s/%s の取得に失敗: %w", conversationID, messageID, err)
	}
	msg, err := docstore.Decode[chat.Message](doc)
	if err != nil {
		return nil, err
	}
	msg.ID = doc.ID
	return msg, nil
}
