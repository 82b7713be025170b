package push

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestDefaultOptions はチャット通知の配信オプションを検証する。
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if opts.Priority != "high" {
		t.Errorf("Priority = %q, want high", opts.Priority)
	}
	if opts.TTL != 86400*time.Second {
		t.Errorf("TTL = %v, want 86400s", opts.TTL)
	}
}

// TestLogSender はドライラン送信がログに出ることを検証する。
func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))
	if err := s.Send(context.Background(), "tok1", Notification{Title: "週末", Body: "A: hi"}, DefaultOptions()); err != nil {
		t.Fatalf("Send()でエラーが発生: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"token":"tok1"`, `"title":"週末"`, `"body":"A: hi"`, `"priority":"high"`} {
		if !strings.Contains(out, want) {
			t.Errorf("ログに %s が含まれない: %s", want, out)
		}
	}
}
