package docstore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/pkg/migration"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore はPostgreSQLのJSONB列で実装したStore。
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres は接続プールを作成し、疎通確認とマイグレーションを行う。
func OpenPostgres(ctx context.Context, url string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("接続プールの作成に失敗: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	// sql.DBを閉じてもプールは閉じない
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	if _, err := migration.Run(ctx, db, migration.Postgres, postgresMigrations, "migrations/postgres", logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get はドキュメントを取得する。
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメント %s/%s の取得に失敗: %w", collection, id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

// Set はドキュメントを作成または置換する。
func (s *PostgresStore) Set(ctx context.Context, collection, id string, data any) error {
	b, err := marshalDocument(data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, collection, id, string(b))
	if err != nil {
		return fmt.Errorf("ドキュメント %s/%s の書き込みに失敗: %w", collection, id, err)
	}
	return nil
}

// Update は行ロックを取ってマージし、書き戻す。
func (s *PostgresStore) Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var data []byte
	err = tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ドキュメント %s/%s の取得に失敗: %w", collection, id, err)
	}

	merged, err := mergeFields(data, updates)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET data = $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, string(merged),
	); err != nil {
		return fmt.Errorf("ドキュメント %s/%s の更新に失敗: %w", collection, id, err)
	}
	return tx.Commit(ctx)
}

// Query は配列包含条件に一致するドキュメントを返す。
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	arrayPath, err := splitFieldPath(q.ArrayField)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, data FROM documents
		WHERE collection = $1 AND (data #> $2::text[]) @> jsonb_build_array($3::text)`
	args := []any{collection, arrayPath, q.Contains}

	if q.OrderBy != "" {
		orderPath, err := splitFieldPath(q.OrderBy)
		if err != nil {
			return nil, err
		}
		dir := "ASC NULLS FIRST"
		if q.Descending {
			dir = "DESC NULLS LAST"
		}
		query += ` ORDER BY (data #> $4::text[]) ` + dir + `, id`
		args = append(args, orderPath)
	} else {
		query += ` ORDER BY id`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コレクション %s のクエリに失敗: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var data []byte
		if err := rows.Scan(&d.ID, &data); err != nil {
			return nil, fmt.Errorf("クエリ結果の読み込みに失敗: %w", err)
		}
		d.Data = data
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Close は接続プールを閉じる。
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
