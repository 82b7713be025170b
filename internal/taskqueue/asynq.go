package taskqueue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// enqueuer はasynq.Clientのうち登録に使う部分。
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqClient はAsynqでタスクを登録するClient。
type AsynqClient struct {
	client   enqueuer
	maxRetry int
}

var _ Client = (*AsynqClient)(nil)

// NewAsynqClient はRedis URLからAsynqClientを生成する。
// maxRetryが0以下の場合はAsynqの既定値を使う。
func NewAsynqClient(redisURL string, maxRetry int) (*AsynqClient, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	return newAsynqClient(asynq.NewClient(opt), maxRetry), nil
}

func newAsynqClient(c enqueuer, maxRetry int) *AsynqClient {
	return &AsynqClient{client: c, maxRetry: maxRetry}
}

// CreateTask はタスクをScheduleTimeに処理されるよう登録する。
func (a *AsynqClient) CreateTask(ctx context.Context, queue string, task HTTPTask) (string, error) {
	payload, err := encodeTask(task)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{asynq.TaskID(uuid.NewString())}
	if !task.ScheduleTime.IsZero() {
		opts = append(opts, asynq.ProcessAt(task.ScheduleTime))
	}
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	if a.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(a.maxRetry))
	}

	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(TypeHTTPRequest, payload), opts...)
	if err != nil {
		return "", fmt.Errorf("タスクの登録に失敗: %w", err)
	}
	return info.ID, nil
}

// Close はRedis接続を閉じる。
func (a *AsynqClient) Close() error {
	return a.client.Close()
}
