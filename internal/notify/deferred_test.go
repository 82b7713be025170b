package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
)

// TestFirePolicy は発火時刻の計算を検証する。
func TestFirePolicy(t *testing.T) {
	t.Parallel()

	msg := &chat.Message{Timestamp: chat.Timestamp{Seconds: 1700000000}}
	if got := (FirePolicy{}).FireTime(msg); !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("遅延なしの発火時刻 = %v, want メッセージ時刻", got)
	}
	if got := (FirePolicy{Delay: time.Hour}).FireTime(msg); !got.Equal(time.Unix(1700003600, 0)) {
		t.Errorf("1時間遅延の発火時刻 = %v", got)
	}
}

// TestDeferredSchedulerSchedule は遅延タスクの登録を検証する。
func TestDeferredSchedulerSchedule(t *testing.T) {
	t.Parallel()

	t.Run("メッセージ時刻に発火するタスクが登録されること", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{}
		s := NewDeferredScheduler(tasks, "future-push", "http://pushbridge/futurePushCallback", FirePolicy{}, zerolog.Nop())

		msg := &chat.Message{ID: "m1", SenderID: "u1", Timestamp: chat.Timestamp{Seconds: 4102444800}, Deferred: true}
		taskID, err := s.Schedule(context.Background(), exampleConversation(), msg)
		if err != nil {
			t.Fatalf("Schedule()でエラーが発生: %v", err)
		}
		if taskID != "task-1" {
			t.Errorf("taskID = %q", taskID)
		}
		if len(tasks.tasks) != 1 {
			t.Fatalf("タスク数 = %d, want 1", len(tasks.tasks))
		}
		task := tasks.tasks[0]
		if tasks.queues[0] != "future-push" {
			t.Errorf("queue = %q", tasks.queues[0])
		}
		if task.Method != http.MethodPost || task.URL != "http://pushbridge/futurePushCallback" {
			t.Errorf("request = %s %s", task.Method, task.URL)
		}
		if task.Headers["Content-Type"] != "application/json" {
			t.Errorf("headers = %v", task.Headers)
		}
		if task.ScheduleTime.Unix() != 4102444800 {
			t.Errorf("ScheduleTime = %v, want メッセージ時刻", task.ScheduleTime)
		}

		var p DeferredPayload
		if err := json.Unmarshal(task.Body, &p); err != nil {
			t.Fatalf("ペイロードのパースに失敗: %v", err)
		}
		if p.ChatData.Name != "週末の予定" || p.MessageData.SenderID != "u1" || p.ConversationID != "c1" || p.MessageID != "m1" {
			t.Errorf("payload = %+v", p)
		}
	})

	t.Run("スナップショットは登録後の変更の影響を受けないこと", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{}
		conv := exampleConversation()
		s := NewDeferredScheduler(tasks, "q", "http://x", FirePolicy{}, zerolog.Nop())
		if _, err := s.Schedule(context.Background(), conv, &chat.Message{SenderID: "u1"}); err != nil {
			t.Fatalf("Schedule()でエラーが発生: %v", err)
		}
		conv.Members["u3"] = chat.Member{DisplayName: "C", PushToken: "rotated"}

		p, err := ParseDeferredPayload(tasks.tasks[0].Body)
		if err != nil {
			t.Fatalf("ParseDeferredPayload()でエラーが発生: %v", err)
		}
		if p.ChatData.Members["u3"].PushToken != "tok3" {
			t.Errorf("スナップショットのトークン = %q, want tok3", p.ChatData.Members["u3"].PushToken)
		}
	})

	t.Run("登録の失敗がエラーとして返ること", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("queue unavailable")
		s := NewDeferredScheduler(&fakeTasks{err: boom}, "q", "http://x", FirePolicy{}, zerolog.Nop())
		if _, err := s.Schedule(context.Background(), exampleConversation(), &chat.Message{SenderID: "u1"}); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
	})
}
