package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/pkg/httpclient"
	"github.com/nenechat/pushbridge/pkg/middleware"
)

// callerName はワーカーが発行するサービスJWTのsubject。
const callerName = "taskworker"

// HTTPHandler はHTTPリクエストタスクを実行するasynq.Handler。
type HTTPHandler struct {
	client *httpclient.Client
	secret string
	logger zerolog.Logger
}

var _ asynq.Handler = (*HTTPHandler)(nil)

// NewHTTPHandler は新しいHTTPHandlerを生成する。
// secretが空でない場合、リクエストにBearerトークンを付与する。
func NewHTTPHandler(client *httpclient.Client, secret string, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{client: client, secret: secret, logger: logger}
}

// ProcessTask はタスクのHTTPリクエストを送信する。
// 不正なペイロードはリトライしない。送信失敗と2xx以外はリトライ対象のエラーを返す。
func (h *HTTPHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	task, err := decodeTask(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	retried, _ := asynq.GetRetryCount(ctx)
	log := h.logger.With().Str("task_id", taskID).Str("url", task.URL).Int("retry", retried).Logger()

	headers := make(map[string]string, len(task.Headers)+1)
	for k, v := range task.Headers {
		headers[k] = v
	}
	if h.secret != "" {
		token, err := middleware.GenerateServiceToken(h.secret, callerName, taskID, 5*time.Minute)
		if err != nil {
			return err
		}
		headers["Authorization"] = "Bearer " + token
	}

	method := task.Method
	if method == "" {
		method = http.MethodPost
	}
	_, err = h.client.Send(httpclient.WithRequestID(ctx, taskID), httpclient.Request{
		Method:  method,
		URL:     task.URL,
		Body:    task.Body,
		Headers: headers,
	})
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			log.Warn().Int("status", statusErr.StatusCode).Msg("タスクの呼び出し先がエラーを返しました")
		}
		return fmt.Errorf("タスクのHTTPリクエストに失敗: %w", err)
	}

	log.Info().Str("method", method).Msg("タスクを実行しました")
	return nil
}

// ServerOptions はWorkerの設定。
type ServerOptions struct {
	// RedisURL はAsynqのRedis接続URL。
	RedisURL string
	// Concurrency は同時に処理するタスク数。
	Concurrency int
	// Queues は購読するキュー名。空の場合は"default"。
	Queues []string
}

// Worker は期限の来たタスクを取り出して処理するAsynqサーバー。
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

// NewWorker は新しいWorkerを生成し、HTTPリクエストタスクのハンドラーを登録する。
func NewWorker(opts ServerOptions, handler asynq.Handler, logger zerolog.Logger) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queues := map[string]int{}
	for _, q := range opts.Queues {
		if q != "" {
			queues[q] = 1
		}
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		Logger:      asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("type", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("タスクの処理に失敗しました")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeHTTPRequest, handler)
	return &Worker{server: srv, mux: mux, logger: logger}, nil
}

// Run はワーカーを起動し、ctxがキャンセルされるまでブロックする。
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("ワーカーの起動に失敗: %w", err)
	}
	w.logger.Info().Msg("ワーカーを起動しました")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info().Msg("ワーカーを停止しました")
	return nil
}

// asynqLogger はAsynqの内部ログをzerologに流す。
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
