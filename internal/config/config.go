package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// Config はアプリケーション設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// StoreDriver はドキュメントストアの種類（sqlite または postgres）。
	StoreDriver string
	// SQLitePath はSQLiteのファイルパス。":memory:" も指定できる。
	SQLitePath string
	// DBURL はPostgreSQLの接続URL。
	DBURL string
	// RedisURL はタスクキューのRedis接続URL。
	RedisURL string
	// TaskQueue は遅延通知タスクのキュー名。
	TaskQueue string
	// TaskMaxRetry はタスクの最大リトライ回数。
	TaskMaxRetry int
	// CallbackURL は遅延タスクが呼び出すURL。
	CallbackURL string
	// DeferredDelay はメッセージ時刻に加える遅延時間。
	DeferredDelay time.Duration
	// PushGatewayURL はプッシュゲートウェイのベースURL。空の場合はドライラン。
	PushGatewayURL string
	// PushServerKey はプッシュゲートウェイのサーバーキー。
	PushServerKey string
	// PushRatePerSec はプッシュ送信の毎秒上限。0以下で無制限。
	PushRatePerSec int
	// PushConcurrency はプッシュ送信の同時実行数。
	PushConcurrency int
	// ServiceSecret はサービス間JWTの署名鍵。
	ServiceSecret string
	// LogLevel はログレベル。
	LogLevel string
	// LogFormat はログ形式（json または console）。
	LogFormat string
	// WorkerConcurrency はタスクワーカーの同時処理数。
	WorkerConcurrency int
	// HTTPTimeout はゲートウェイとコールバック呼び出しのタイムアウト。
	HTTPTimeout time.Duration
}

// fileConfig はYAML設定ファイルの形式。
type fileConfig struct {
	Port              string `yaml:"port"`
	StoreDriver       string `yaml:"store_driver"`
	SQLitePath        string `yaml:"sqlite_path"`
	DBURL             string `yaml:"db_url"`
	RedisURL          string `yaml:"redis_url"`
	TaskQueue         string `yaml:"task_queue"`
	TaskMaxRetry      *int   `yaml:"task_max_retry"`
	CallbackURL       string `yaml:"callback_url"`
	DeferredDelay     string `yaml:"deferred_delay"`
	PushGatewayURL    string `yaml:"push_gateway_url"`
	PushServerKey     string `yaml:"push_server_key"`
	PushRatePerSec    *int   `yaml:"push_rate_per_sec"`
	PushConcurrency   *int   `yaml:"push_concurrency"`
	ServiceSecret     string `yaml:"service_secret"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
	WorkerConcurrency *int   `yaml:"worker_concurrency"`
	HTTPTimeout       string `yaml:"http_timeout"`
}

// Default はデフォルト設定を返す。
func Default() *Config {
	return &Config{
		Port:              "8080",
		StoreDriver:       "sqlite",
		SQLitePath:        "/data/pushbridge.db",
		TaskQueue:         "future-push",
		TaskMaxRetry:      5,
		PushRatePerSec:    50,
		PushConcurrency:   8,
		LogLevel:          "info",
		LogFormat:         "json",
		WorkerConcurrency: 10,
		HTTPTimeout:       30 * time.Second,
	}
}

// Load は .env、CONFIG_FILE、環境変数の順に設定を読み込んで検証する。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルのオープンに失敗: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := cfg.applyYAML(f); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if cfg.CallbackURL == "" {
		cfg.CallbackURL = "http://localhost:" + cfg.Port + "/futurePushCallback"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyYAML はYAMLの値で設定を上書きする。未知のキーはエラーにする。
func (c *Config) applyYAML(r io.Reader) error {
	var fc fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	setString(&c.Port, fc.Port)
	setString(&c.StoreDriver, fc.StoreDriver)
	setString(&c.SQLitePath, fc.SQLitePath)
	setString(&c.DBURL, fc.DBURL)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.TaskQueue, fc.TaskQueue)
	setString(&c.CallbackURL, fc.CallbackURL)
	setString(&c.PushGatewayURL, fc.PushGatewayURL)
	setString(&c.PushServerKey, fc.PushServerKey)
	setString(&c.ServiceSecret, fc.ServiceSecret)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	for dst, src := range map[*int]*int{
		&c.TaskMaxRetry:      fc.TaskMaxRetry,
		&c.PushRatePerSec:    fc.PushRatePerSec,
		&c.PushConcurrency:   fc.PushConcurrency,
		&c.WorkerConcurrency: fc.WorkerConcurrency,
	} {
		if src != nil {
			*dst = *src
		}
	}
	if fc.DeferredDelay != "" {
		d, err := parseDuration("deferred_delay", fc.DeferredDelay)
		if err != nil {
			return err
		}
		c.DeferredDelay = d
	}
	if fc.HTTPTimeout != "" {
		d, err := parseDuration("http_timeout", fc.HTTPTimeout)
		if err != nil {
			return err
		}
		c.HTTPTimeout = d
	}
	return nil
}

// applyEnv は環境変数の値で設定を上書きする。
func (c *Config) applyEnv(getenv func(string) string) error {
	for key, dst := range map[string]*string{
		"PORT":             &c.Port,
		"STORE_DRIVER":     &c.StoreDriver,
		"SQLITE_PATH":      &c.SQLitePath,
		"DB_URL":           &c.DBURL,
		"REDIS_URL":        &c.RedisURL,
		"TASK_QUEUE":       &c.TaskQueue,
		"CALLBACK_URL":     &c.CallbackURL,
		"PUSH_GATEWAY_URL": &c.PushGatewayURL,
		"PUSH_SERVER_KEY":  &c.PushServerKey,
		"SERVICE_SECRET":   &c.ServiceSecret,
		"LOG_LEVEL":        &c.LogLevel,
		"LOG_FORMAT":       &c.LogFormat,
	} {
		setString(dst, getenv(key))
	}

	for key, dst := range map[string]*int{
		"TASK_MAX_RETRY":     &c.TaskMaxRetry,
		"PUSH_RATE_PER_SEC":  &c.PushRatePerSec,
		"PUSH_CONCURRENCY":   &c.PushConcurrency,
		"WORKER_CONCURRENCY": &c.WorkerConcurrency,
	} {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: 整数ではありません: %q", key, v)
		}
		*dst = n
	}

	if v := getenv("DEFERRED_DELAY"); v != "" {
		d, err := parseDuration("DEFERRED_DELAY", v)
		if err != nil {
			return err
		}
		c.DeferredDelay = d
	}
	if v := getenv("HTTP_TIMEOUT"); v != "" {
		d, err := parseDuration("HTTP_TIMEOUT", v)
		if err != nil {
			return err
		}
		c.HTTPTimeout = d
	}
	return nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH: sqliteドライバーにはパスが必要です"))
		}
	case "postgres":
		if c.DBURL == "" {
			errs = append(errs, errors.New("DB_URL: postgresドライバーには接続URLが必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: 未対応のドライバー %q", c.StoreDriver))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL: タスクキューの接続URLが必要です"))
	}
	if c.TaskQueue == "" {
		errs = append(errs, errors.New("TASK_QUEUE: キュー名が必要です"))
	}
	if !strings.HasPrefix(c.CallbackURL, "http://") && !strings.HasPrefix(c.CallbackURL, "https://") {
		errs = append(errs, fmt.Errorf("CALLBACK_URL: 絶対URLが必要です: %q", c.CallbackURL))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: 不正な時間指定 %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: 0以上である必要があります", key)
	}
	return d, nil
}
