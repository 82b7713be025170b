// プッシュ通知ブリッジのエントリポイント。
// ドキュメントストアのトリガーを受けて既読状態を更新し、
// 即時通知の送信または遅延通知タスクの登録を行う。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/config"
	"github.com/nenechat/pushbridge/internal/docstore"
	"github.com/nenechat/pushbridge/internal/notify"
	"github.com/nenechat/pushbridge/internal/push"
	"github.com/nenechat/pushbridge/internal/pushbridge"
	"github.com/nenechat/pushbridge/internal/taskqueue"
	"github.com/nenechat/pushbridge/pkg/httpclient"
	"github.com/nenechat/pushbridge/pkg/logx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logx.New(logx.Config{Service: "pushbridge"})
		l.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	logger := logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "pushbridge"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("プッシュ通知ブリッジの起動に失敗")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := docstore.Open(ctx, docstore.Options{
		Driver:      docstore.Driver(cfg.StoreDriver),
		SQLitePath:  cfg.SQLitePath,
		PostgresURL: cfg.DBURL,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var sender push.Sender
	if cfg.PushGatewayURL == "" {
		logger.Warn().Msg("PUSH_GATEWAY_URLが未設定のため通知はログ出力のみになります")
		sender = push.NewLogSender(logger)
	} else {
		sender = push.NewGatewayClient(cfg.PushGatewayURL, cfg.PushServerKey, cfg.PushRatePerSec, httpclient.WithTimeout(cfg.HTTPTimeout))
	}

	tasks, err := taskqueue.NewAsynqClient(cfg.RedisURL, cfg.TaskMaxRetry)
	if err != nil {
		return err
	}
	defer func() { _ = tasks.Close() }()

	svc := notify.NewService(store, sender, tasks, notify.Config{
		Queue:       cfg.TaskQueue,
		CallbackURL: cfg.CallbackURL,
		Policy:      notify.FirePolicy{Delay: cfg.DeferredDelay},
		Concurrency: cfg.PushConcurrency,
	}, logger)

	logger.Info().
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Str("queue", cfg.TaskQueue).
		Dur("deferred_delay", cfg.DeferredDelay).
		Msg("プッシュ通知ブリッジを起動します")
	return pushbridge.NewServer(cfg.Port, svc, cfg.ServiceSecret, logger).Run(ctx)
}
