package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（trace, debug, info, warn, error）。
	Level string
	// Format は出力形式。"console" で人間向け、それ以外はJSON。
	Format string
	// Service はすべてのログに付与するサービス名。
	Service string
}

// New は設定に従ってロガーを生成する。出力先はstderr。
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter は出力先を指定してロガーを生成する。
// 不明なログレベルはinfoとして扱う。
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}
