package notify

import (
	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/push"
)

// ComposeImmediate は即時通知の内容を組み立てる。
func ComposeImmediate(conv *chat.Conversation, msg *chat.Message) push.Notification {
	sender := conv.SenderName(msg.SenderID)
	body := sender + " sent an image"
	if !msg.IsImage() {
		body = sender + ": " + *msg.Text
	}
	return push.Notification{Title: conv.Name, Body: body}
}

// ComposeDeferred は遅延通知の内容を組み立てる。本文にメッセージは含めない。
func ComposeDeferred(conv *chat.Conversation, msg *chat.Message) push.Notification {
	return push.Notification{
		Title: conv.Name,
		Body:  "A delayed message from " + conv.SenderName(msg.SenderID) + " arrived to you!",
	}
}
