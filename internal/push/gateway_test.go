package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nenechat/pushbridge/pkg/httpclient"
)

// gatewayStub はゲートウェイのテスト用スタブ。
type gatewayStub struct {
	mu       sync.Mutex
	requests []gatewayMessage
	auth     []string
}

func (s *gatewayStub) snapshot() ([]gatewayMessage, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gatewayMessage(nil), s.requests...), append([]string(nil), s.auth...)
}

func newGatewayStub(t *testing.T, status int, resp string) (*httptest.Server, *gatewayStub) {
	t.Helper()
	stub := &gatewayStub{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var msg gatewayMessage
		_ = json.Unmarshal(body, &msg)

		stub.mu.Lock()
		stub.requests = append(stub.requests, msg)
		stub.auth = append(stub.auth, r.Header.Get("Authorization"))
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(ts.Close)
	return ts, stub
}

// TestGatewayClientSend はゲートウェイへの送信を検証する。
func TestGatewayClientSend(t *testing.T) {
	t.Parallel()

	t.Run("通知と配信オプションがゲートウェイ形式で送られること", func(t *testing.T) {
		t.Parallel()

		ts, stub := newGatewayStub(t, http.StatusOK, `{"success":1,"failure":0,"results":[{"message_id":"m1"}]}`)
		g := NewGatewayClient(ts.URL, "server-key", 0)

		err := g.Send(context.Background(), "tok1", Notification{Title: "t", Body: "b"}, DefaultOptions())
		if err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
		requests, auth := stub.snapshot()
		if len(requests) != 1 {
			t.Fatalf("リクエスト数 = %d, want 1", len(requests))
		}
		got := requests[0]
		if got.To != "tok1" || got.Notification.Title != "t" || got.Notification.Body != "b" {
			t.Errorf("request = %+v", got)
		}
		if got.Priority != "high" {
			t.Errorf("priority = %q, want high", got.Priority)
		}
		if got.TimeToLive != 86400 {
			t.Errorf("time_to_live = %d, want 86400", got.TimeToLive)
		}
		if auth[0] != "key=server-key" {
			t.Errorf("Authorization = %q", auth[0])
		}
	})

	t.Run("トークン単位の失敗はErrTokenRejectedになること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newGatewayStub(t, http.StatusOK, `{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`)
		err := NewGatewayClient(ts.URL, "", 0).Send(context.Background(), "stale", Notification{}, DefaultOptions())
		if !errors.Is(err, ErrTokenRejected) {
			t.Fatalf("err = %v, want ErrTokenRejected", err)
		}
	})

	t.Run("ゲートウェイの5xxはStatusErrorとして返ること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newGatewayStub(t, http.StatusBadGateway, `down`)
		err := NewGatewayClient(ts.URL, "", 0).Send(context.Background(), "tok", Notification{}, DefaultOptions())
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
			t.Fatalf("err = %v, want StatusError(502)", err)
		}
	})

	t.Run("空のトークンは送信せずにエラーになること", func(t *testing.T) {
		t.Parallel()

		ts, stub := newGatewayStub(t, http.StatusOK, `{}`)
		err := NewGatewayClient(ts.URL, "", 0).Send(context.Background(), "", Notification{}, DefaultOptions())
		if !errors.Is(err, ErrTokenRejected) {
			t.Errorf("err = %v, want ErrTokenRejected", err)
		}
		if requests, _ := stub.snapshot(); len(requests) != 0 {
			t.Errorf("リクエストが送信された: %d", len(requests))
		}
	})

	t.Run("レート制限の待機中にコンテキストが切れるとエラーになること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newGatewayStub(t, http.StatusOK, `{"success":1}`)
		g := NewGatewayClient(ts.URL, "", 1)
		if err := g.Send(context.Background(), "tok", Notification{}, DefaultOptions()); err != nil {
			t.Fatalf("1回目のSend()でエラーが発生: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := g.Send(ctx, "tok", Notification{}, DefaultOptions()); err == nil {
			t.Error("レート待機でエラーが返るべき")
		}
	})

	t.Run("応答の遅いゲートウェイはタイムアウトでエラーになること", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(ts.Close)
		t.Cleanup(func() { close(release) })

		g := NewGatewayClient(ts.URL, "", 0, httpclient.WithTimeout(20*time.Millisecond))
		err := g.Send(context.Background(), "tok", Notification{}, DefaultOptions())
		if err == nil {
			t.Fatal("タイムアウトでエラーが返るべき")
		}
		if errors.Is(err, ErrTokenRejected) {
			t.Errorf("タイムアウトはErrTokenRejectedではない: %v", err)
		}
	})
}
