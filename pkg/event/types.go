package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるドキュメントの種類を表す。
type AggregateType string

const (
	// AggregateTypeConversation は会話ドキュメントを表す。
	AggregateTypeConversation AggregateType = "Conversation"
	// AggregateTypeUser はユーザープロフィールドキュメントを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeMessageCreated は会話に新しいメッセージが作成されたことを表す。
	TypeMessageCreated Type = "MessageCreated"
	// TypeUserProfileUpdated はユーザープロフィールが更新されたことを表す。
	TypeUserProfileUpdated Type = "UserProfileUpdated"
)

// Event はドキュメントストアのトリガーが配信するイベントの封筒を表す。
// トリガー元は配信に失敗した場合に同じイベントを再送することがある。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象ドキュメントの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象ドキュメントの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はドキュメント内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// MessageCreatedData はMessageCreatedイベントのデータ。
type MessageCreatedData struct {
	// ConversationID はメッセージが属する会話のID。
	ConversationID string `json:"conversationId"`
	// MessageID は作成されたメッセージのID。
	MessageID string `json:"messageId"`
	// Message は作成時点のメッセージドキュメント。省略時はストアから読み込む。
	Message json.RawMessage `json:"message,omitempty"`
}

// UserProfileUpdatedData はUserProfileUpdatedイベントのデータ。
type UserProfileUpdatedData struct {
	// UserID は更新されたユーザーのID。
	UserID string `json:"userId"`
	// Before は更新前のプロフィールドキュメント。
	Before json.RawMessage `json:"before,omitempty"`
	// After は更新後のプロフィールドキュメント。
	After json.RawMessage `json:"after"`
}
