package event

import (
	"encoding/json"
	"testing"
	"time"
)

// TestTypeConstants はType定数の値を検証する。
// トリガー元との取り決めなので値の変更は互換性を壊す。
func TestTypeConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "AggregateTypeConversationの値が正しいこと", got: string(AggregateTypeConversation), want: "Conversation"},
		{name: "AggregateTypeUserの値が正しいこと", got: string(AggregateTypeUser), want: "User"},
		{name: "TypeMessageCreatedの値が正しいこと", got: string(TypeMessageCreated), want: "MessageCreated"},
		{name: "TypeUserProfileUpdatedの値が正しいこと", got: string(TypeUserProfileUpdated), want: "UserProfileUpdated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// TestEventJSONFieldNames はEventのJSONフィールド名がスネークケースであることを検証する。
func TestEventJSONFieldNames(t *testing.T) {
	t.Parallel()

	ev := Event{
		ID:            "ev-1",
		AggregateID:   "chat-1",
		AggregateType: AggregateTypeConversation,
		EventType:     TypeMessageCreated,
		Data:          json.RawMessage(`{"conversationId":"chat-1","messageId":"m-1"}`),
		Version:       1,
		CreatedAt:     time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}

	jsonBytes, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("json.Marshal()でエラーが発生: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &raw); err != nil {
		t.Fatalf("json.Unmarshal()でエラーが発生: %v", err)
	}

	for _, key := range []string{"id", "aggregate_id", "aggregate_type", "event_type", "data", "version", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("JSONに期待するキー %q が存在しない", key)
		}
	}
}

// TestMessageCreatedDataOmitsMessage はメッセージ省略時にmessageキーが出力されないことを検証する。
func TestMessageCreatedDataOmitsMessage(t *testing.T) {
	t.Parallel()

	jsonBytes, err := json.Marshal(MessageCreatedData{ConversationID: "c", MessageID: "m"})
	if err != nil {
		t.Fatalf("json.Marshal()でエラーが発生: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonBytes, &raw); err != nil {
		t.Fatalf("json.Unmarshal()でエラーが発生: %v", err)
	}
	if _, ok := raw["message"]; ok {
		t.Errorf("messageキーは省略されるべき: %s", jsonBytes)
	}
}
