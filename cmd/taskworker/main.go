// 遅延タスクワーカーのエントリポイント。
// 実行時刻になったHTTPタスクをRedisから取り出し、コールバックURLを呼び出す。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nenechat/pushbridge/internal/config"
	"github.com/nenechat/pushbridge/internal/taskqueue"
	"github.com/nenechat/pushbridge/pkg/httpclient"
	"github.com/nenechat/pushbridge/pkg/logx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logx.New(logx.Config{Service: "taskworker"})
		l.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	logger := logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "taskworker"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := taskqueue.NewHTTPHandler(httpclient.New("", httpclient.WithTimeout(cfg.HTTPTimeout)), cfg.ServiceSecret, logger)
	worker, err := taskqueue.NewWorker(taskqueue.ServerOptions{
		RedisURL:    cfg.RedisURL,
		Concurrency: cfg.WorkerConcurrency,
		Queues:      []string{cfg.TaskQueue},
	}, handler, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ワーカーの初期化に失敗")
	}

	logger.Info().Str("queue", cfg.TaskQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("タスクワーカーを起動します")
	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("タスクワーカーの実行に失敗")
	}
}
