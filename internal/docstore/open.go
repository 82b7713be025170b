package docstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Driver はストアのバックエンド種別。
type Driver string

const (
	// DriverSQLite はSQLiteファイル（またはインメモリ）を使う。
	DriverSQLite Driver = "sqlite"
	// DriverPostgres はPostgreSQLを使う。
	DriverPostgres Driver = "postgres"
)

// Options はOpenの設定。
type Options struct {
	Driver      Driver
	SQLitePath  string
	PostgresURL string
}

// Open は設定されたドライバーでストアを開く。
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		path := opts.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		return OpenSQLite(ctx, path, logger)
	case DriverPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("postgresドライバーには接続URLが必要です")
		}
		return OpenPostgres(ctx, opts.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("未対応のストアドライバー: %q", opts.Driver)
	}
}
