package chat

import (
	"sort"
	"time"
)

// ドキュメントストア上のコレクション名。
const (
	// CollectionConversations は会話ドキュメントのコレクション。
	CollectionConversations = "conversations"
	// CollectionUsers はユーザープロフィールのコレクション。
	CollectionUsers = "users"
)

// MessagesCollection は会話配下のメッセージコレクション名を返す。
func MessagesCollection(conversationID string) string {
	return CollectionConversations + "/" + conversationID + "/messages"
}

// Timestamp は秒精度の論理送信時刻。ドキュメントストアの形式に合わせる。
type Timestamp struct {
	// Seconds はUNIXエポックからの秒数。
	Seconds int64 `json:"seconds"`
	// Nanos は秒未満のナノ秒。
	Nanos int32 `json:"nanos,omitempty"`
}

// NewTimestamp はtime.TimeからTimestampを生成する。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time はTimestampをUTCのtime.Timeに変換する。
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Member は会話ドキュメントにキャッシュされたメンバー情報。
type Member struct {
	// DisplayName は通知に表示する名前。
	DisplayName string `json:"displayName"`
	// PushToken はデバイストークン。空文字列は端末未登録を表す。
	PushToken string `json:"pushToken"`
}

// MessageSummary は一覧表示用にキャッシュされた最新メッセージ。
type MessageSummary struct {
	Text      *string   `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp Timestamp `json:"timestamp"`
}

// Conversation は会話ドキュメント。
// MemberIDsはクエリ用にMembersのキーを複製したもので、常に一致させる。
type Conversation struct {
	// ID はドキュメントID。ドキュメント本体には保存しない。
	ID string `json:"-"`
	// Name は会話のタイトル。通知のタイトルになる。
	Name string `json:"name"`
	// Members はユーザーIDからメンバー情報へのマップ。
	Members map[string]Member `json:"members"`
	// MemberIDs はメンバーのユーザーID集合。
	MemberIDs []string `json:"memberIds"`
	// ReadStatus はユーザーごとの最新メッセージ既読フラグ。
	ReadStatus map[string]bool `json:"readStatus"`
	// RecentMessage は最新メッセージのキャッシュ。
	RecentMessage *MessageSummary `json:"recentMessageSummary,omitempty"`
}

// Message はメッセージドキュメント。作成後は変更されない。
type Message struct {
	// ID はドキュメントID。
	ID string `json:"-"`
	// SenderID は送信者のユーザーID。
	SenderID string `json:"senderId"`
	// Text は本文。nilは画像のみのメッセージを表す。
	Text *string `json:"text"`
	// Timestamp は論理送信時刻。
	Timestamp Timestamp `json:"timestamp"`
	// Deferred は送信者が遅延配信を指定したかどうか。
	Deferred bool `json:"deferred"`
}

// UserProfile はユーザープロフィールドキュメント。
type UserProfile struct {
	DisplayName string `json:"displayName"`
	PushToken   string `json:"pushToken"`
}

// Recipient はプッシュ通知の宛先。
type Recipient struct {
	UserID string
	Token  string
}

// SenderName は送信者の表示名を返す。
// メンバー情報にない送信者はユーザーIDをそのまま使う。
func (c *Conversation) SenderName(senderID string) string {
	if m, ok := c.Members[senderID]; ok && m.DisplayName != "" {
		return m.DisplayName
	}
	return senderID
}

// Recipients は送信者を除き、トークンが登録されたメンバーをユーザーID順に返す。
func (c *Conversation) Recipients(senderID string) []Recipient {
	recipients := make([]Recipient, 0, len(c.Members))
	for userID, m := range c.Members {
		if userID == senderID || m.PushToken == "" {
			continue
		}
		recipients = append(recipients, Recipient{UserID: userID, Token: m.PushToken})
	}
	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].UserID < recipients[j].UserID
	})
	return recipients
}

// MemberIDsConsistent はMemberIDsがMembersのキー集合と一致するかを返す。
func (c *Conversation) MemberIDsConsistent() bool {
	if len(c.MemberIDs) != len(c.Members) {
		return false
	}
	seen := make(map[string]struct{}, len(c.MemberIDs))
	for _, id := range c.MemberIDs {
		if _, ok := c.Members[id]; !ok {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// MarkUnreadExcept は送信者以外の既読フラグをfalseにする。
// ReadStatusに存在するユーザーだけを対象にし、送信者のフラグは変更しない。
func (c *Conversation) MarkUnreadExcept(senderID string) {
	for userID := range c.ReadStatus {
		if userID != senderID {
			c.ReadStatus[userID] = false
		}
	}
}

// IsImage は画像のみのメッセージかどうかを返す。
func (m *Message) IsImage() bool {
	return m.Text == nil
}

// Summary はメッセージから一覧表示用のキャッシュを生成する。
func (m *Message) Summary() MessageSummary {
	return MessageSummary{Text: m.Text, SenderID: m.SenderID, Timestamp: m.Timestamp}
}
