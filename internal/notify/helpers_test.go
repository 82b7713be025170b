package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/chat"
	"github.com/nenechat/pushbridge/internal/docstore"
	"github.com/nenechat/pushbridge/internal/push"
	"github.com/nenechat/pushbridge/internal/taskqueue"
)

func strPtr(s string) *string { return &s }

type sentPush struct {
	token string
	n     push.Notification
	opts  push.Options
}

// fakeSender は送信内容を記録する。failTokensに含まれるトークンは失敗させる。
type fakeSender struct {
	mu         sync.Mutex
	sent       []sentPush
	failTokens map[string]bool
}

func (f *fakeSender) Send(_ context.Context, token string, n push.Notification, opts push.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTokens[token] {
		return errors.New("stale token")
	}
	f.sent = append(f.sent, sentPush{token: token, n: n, opts: opts})
	return nil
}

// tokens は送信されたトークンをソートして返す。
func (f *fakeSender) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.token)
	}
	sort.Strings(out)
	return out
}

func (f *fakeSender) pushes() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

// fakeTasks は登録されたタスクを記録する。
type fakeTasks struct {
	mu     sync.Mutex
	queues []string
	tasks  []taskqueue.HTTPTask
	err    error
}

func (f *fakeTasks) CreateTask(_ context.Context, queue string, task taskqueue.HTTPTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.queues = append(f.queues, queue)
	f.tasks = append(f.tasks, task)
	return "task-1", nil
}

func newTestStore(t *testing.T) docstore.Store {
	t.Helper()
	s, err := docstore.OpenSQLite(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exampleConversation は u1:A(tok1), u2:B(トークンなし), u3:C(tok3) の会話を返す。
func exampleConversation() *chat.Conversation {
	return &chat.Conversation{
		ID:   "c1",
		Name: "週末の予定",
		Members: map[string]chat.Member{
			"u1": {DisplayName: "A", PushToken: "tok1"},
			"u2": {DisplayName: "B", PushToken: ""},
			"u3": {DisplayName: "C", PushToken: "tok3"},
		},
		MemberIDs:  []string{"u1", "u2", "u3"},
		ReadStatus: map[string]bool{"u1": true, "u2": true, "u3": true},
	}
}

func seedConversation(t *testing.T, store docstore.Store, conv *chat.Conversation) {
	t.Helper()
	if err := store.Set(context.Background(), chat.CollectionConversations, conv.ID, conv); err != nil {
		t.Fatalf("会話の登録に失敗: %v", err)
	}
}

// failingUpdateStore は指定したドキュメントのUpdateだけを失敗させるストア。
type failingUpdateStore struct {
	docstore.Store
	failID string
}

func (s *failingUpdateStore) Update(ctx context.Context, collection, id string, updates ...docstore.FieldUpdate) error {
	if id == s.failID {
		return errors.New("更新に失敗しました")
	}
	return s.Store.Update(ctx, collection, id, updates...)
}

func getConversation(t *testing.T, store docstore.Store, id string) *chat.Conversation {
	t.Helper()
	conv, err := loadConversation(context.Background(), store, id)
	if err != nil {
		t.Fatalf("会話の取得に失敗: %v", err)
	}
	if conv == nil {
		t.Fatalf("会話 %s が存在しない", id)
	}
	return conv
}
