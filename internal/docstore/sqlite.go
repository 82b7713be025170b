package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nenechat/pushbridge/pkg/migration"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore はSQLiteのJSON関数で実装したStore。
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用する。
// pathに":memory:"を指定するとインメモリDBになる。
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// 書き込みを直列化する。インメモリDBは接続ごとに別DBになるため1本に固定する
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migration.SQLite, sqliteMigrations, "migrations/sqlite", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get はドキュメントを取得する。
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメント %s/%s の取得に失敗: %w", collection, id, err)
	}
	return &Document{ID: id, Data: []byte(data)}, nil
}

// Set はドキュメントを作成または置換する。
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, data any) error {
	b, err := marshalDocument(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, collection, id, string(b), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ドキュメント %s/%s の書き込みに失敗: %w", collection, id, err)
	}
	return nil
}

// Update は読み出し・マージ・書き戻しを1トランザクションで行う。
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ドキュメント %s/%s の取得に失敗: %w", collection, id, err)
	}

	merged, err := mergeFields([]byte(data), updates)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(merged), time.Now().UTC(), collection, id,
	); err != nil {
		return fmt.Errorf("ドキュメント %s/%s の更新に失敗: %w", collection, id, err)
	}
	return tx.Commit()
}

// Query は配列包含条件に一致するドキュメントを返す。
func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	arrayPath, err := splitFieldPath(q.ArrayField)
	if err != nil {
		return nil, err
	}

	query := `SELECT d.id, d.data FROM documents d
		WHERE d.collection = ?
		AND EXISTS (SELECT 1 FROM json_each(d.data, ?) WHERE json_each.value = ?)`
	args := []any{collection, jsonPath(arrayPath), q.Contains}

	if q.OrderBy != "" {
		orderPath, err := splitFieldPath(q.OrderBy)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += ` ORDER BY json_extract(d.data, ?) ` + dir + `, d.id`
		args = append(args, jsonPath(orderPath))
	} else {
		query += ` ORDER BY d.id`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コレクション %s のクエリに失敗: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("クエリ結果の読み込みに失敗: %w", err)
		}
		docs = append(docs, Document{ID: id, Data: []byte(data)})
	}
	return docs, rows.Err()
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// jsonPath はSQLiteのJSONパス式を生成する。
func jsonPath(parts []string) string {
	return "$." + strings.Join(parts, ".")
}
