package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TypeHTTPRequest はHTTPリクエストタスクの種別名。
const TypeHTTPRequest = "http:request"

// HTTPTask はスケジュール時刻に実行するHTTPリクエスト。
type HTTPTask struct {
	// Method はHTTPメソッド。空の場合はPOST。
	Method string `json:"method"`
	// URL は呼び出し先の絶対URL。
	URL string `json:"url"`
	// Body はリクエストボディ。
	Body []byte `json:"body,omitempty"`
	// Headers はリクエストヘッダー。
	Headers map[string]string `json:"headers,omitempty"`
	// ScheduleTime は実行予定時刻。ゼロ値の場合は即時。
	ScheduleTime time.Time `json:"scheduleTime"`
}

// Client は遅延タスクの登録ポート。
type Client interface {
	// CreateTask は指定キューにタスクを登録し、タスクIDを返す。
	CreateTask(ctx context.Context, queue string, task HTTPTask) (string, error)
}

func encodeTask(task HTTPTask) ([]byte, error) {
	if task.URL == "" {
		return nil, fmt.Errorf("タスクのURLが空です")
	}
	b, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("タスクのシリアライズに失敗: %w", err)
	}
	return b, nil
}

func decodeTask(payload []byte) (*HTTPTask, error) {
	var task HTTPTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("タスクのデシリアライズに失敗: %w", err)
	}
	if task.URL == "" {
		return nil, fmt.Errorf("タスクのURLが空です")
	}
	return &task, nil
}
