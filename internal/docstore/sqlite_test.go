package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type testDoc struct {
	Name      string          `json:"name"`
	MemberIDs []string        `json:"memberIds"`
	ReadState map[string]bool `json:"readStatus,omitempty"`
	Recent    *struct {
		Timestamp struct {
			Seconds int64 `json:"seconds"`
		} `json:"timestamp"`
	} `json:"recentMessageSummary,omitempty"`
}

// TestSQLiteStoreGetSet は書き込みと読み出しを検証する。
func TestSQLiteStoreGetSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("書き込んだドキュメントを読み出せること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		if err := s.Set(ctx, "conversations", "c1", testDoc{Name: "n", MemberIDs: []string{"u1"}}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		doc, err := s.Get(ctx, "conversations", "c1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		got, err := Decode[testDoc](doc)
		if err != nil {
			t.Fatalf("Decode()でエラーが発生: %v", err)
		}
		if doc.ID != "c1" || got.Name != "n" || len(got.MemberIDs) != 1 {
			t.Errorf("doc = %+v, decoded = %+v", doc, got)
		}
	})

	t.Run("Setは既存のドキュメントを置換すること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		_ = s.Set(ctx, "users", "u1", map[string]string{"a": "1", "b": "2"})
		if err := s.Set(ctx, "users", "u1", map[string]string{"a": "3"}); err != nil {
			t.Fatalf("Set()でエラーが発生: %v", err)
		}
		doc, _ := s.Get(ctx, "users", "u1")
		if string(doc.Data) != `{"a":"3"}` {
			t.Errorf("data = %s", doc.Data)
		}
	})

	t.Run("存在しないドキュメントはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		if _, err := s.Get(ctx, "conversations", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("コレクションが異なれば同じIDでも別のドキュメントであること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		_ = s.Set(ctx, "conversations/c1/messages", "m1", map[string]string{"senderId": "u1"})
		if _, err := s.Get(ctx, "conversations/c2/messages", "m1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

// TestSQLiteStoreUpdate は部分更新を検証する。
func TestSQLiteStoreUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("指定フィールドだけが更新されること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		_ = s.Set(ctx, "conversations", "c1", testDoc{Name: "n", MemberIDs: []string{"u1", "u2"}, ReadState: map[string]bool{"u1": true, "u2": true}})
		err := s.Update(ctx, "conversations", "c1",
			FieldUpdate{Path: []string{"readStatus"}, Value: map[string]bool{"u1": true, "u2": false}},
		)
		if err != nil {
			t.Fatalf("Update()でエラーが発生: %v", err)
		}
		doc, _ := s.Get(ctx, "conversations", "c1")
		got, _ := Decode[testDoc](doc)
		if got.Name != "n" || len(got.MemberIDs) != 2 {
			t.Errorf("更新対象外のフィールドが変わった: %+v", got)
		}
		if got.ReadState["u2"] || !got.ReadState["u1"] {
			t.Errorf("readStatus = %v", got.ReadState)
		}
	})

	t.Run("存在しないドキュメントの更新はErrNotFoundになり作成されないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		err := s.Update(ctx, "conversations", "ghost", FieldUpdate{Path: []string{"x"}, Value: 1})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		if _, err := s.Get(ctx, "conversations", "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ドキュメントが作成された: %v", err)
		}
	})
}

// TestSQLiteStoreQuery は配列包含クエリとソートを検証する。
func TestSQLiteStoreQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	put := func(id string, members []string, seconds int64) {
		d := testDoc{Name: id, MemberIDs: members}
		if seconds > 0 {
			d.Recent = &struct {
				Timestamp struct {
					Seconds int64 `json:"seconds"`
				} `json:"timestamp"`
			}{}
			d.Recent.Timestamp.Seconds = seconds
		}
		if err := s.Set(ctx, "conversations", id, d); err != nil {
			t.Fatalf("Set(%s)でエラーが発生: %v", id, err)
		}
	}
	put("c1", []string{"u1", "u2"}, 100)
	put("c2", []string{"u2", "u3"}, 300)
	put("c3", []string{"u1", "u2", "u3"}, 200)
	put("c4", []string{"u2"}, 0)
	_ = s.Set(ctx, "users", "u2", map[string]any{"memberIds": []string{"u2"}})

	t.Run("包含するドキュメントが降順で返ること", func(t *testing.T) {
		t.Parallel()

		docs, err := s.Query(ctx, "conversations", Query{
			ArrayField: "memberIds",
			Contains:   "u2",
			OrderBy:    "recentMessageSummary.timestamp.seconds",
			Descending: true,
		})
		if err != nil {
			t.Fatalf("Query()でエラーが発生: %v", err)
		}
		want := []string{"c2", "c3", "c1", "c4"}
		if len(docs) != len(want) {
			t.Fatalf("件数 = %d, want %d", len(docs), len(want))
		}
		for i, id := range want {
			if docs[i].ID != id {
				t.Errorf("docs[%d] = %s, want %s", i, docs[i].ID, id)
			}
		}
	})

	t.Run("一致しない値では空になること", func(t *testing.T) {
		t.Parallel()

		docs, err := s.Query(ctx, "conversations", Query{ArrayField: "memberIds", Contains: "u9"})
		if err != nil {
			t.Fatalf("Query()でエラーが発生: %v", err)
		}
		if len(docs) != 0 {
			t.Errorf("件数 = %d, want 0", len(docs))
		}
	})

	t.Run("ソート指定なしではID順になること", func(t *testing.T) {
		t.Parallel()

		docs, err := s.Query(ctx, "conversations", Query{ArrayField: "memberIds", Contains: "u1"})
		if err != nil {
			t.Fatalf("Query()でエラーが発生: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != "c1" || docs[1].ID != "c3" {
			t.Errorf("docs = %+v", docs)
		}
	})

	t.Run("不正なフィールドパスはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := s.Query(ctx, "conversations", Query{ArrayField: "a') OR 1=1 --", Contains: "u1"}); err == nil {
			t.Error("エラーが返るべき")
		}
	})
}

// TestOpen はドライバー選択を検証する。
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("ドライバー未指定ではインメモリのSQLiteが開くこと", func(t *testing.T) {
		t.Parallel()

		s, err := Open(context.Background(), Options{}, zerolog.Nop())
		if err != nil {
			t.Fatalf("Open()でエラーが発生: %v", err)
		}
		defer func() { _ = s.Close() }()
		if _, ok := s.(*SQLiteStore); !ok {
			t.Errorf("型 = %T, want *SQLiteStore", s)
		}
	})

	t.Run("URLのないpostgresはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(context.Background(), Options{Driver: DriverPostgres}, zerolog.Nop()); err == nil {
			t.Error("エラーが返るべき")
		}
	})

	t.Run("未知のドライバーはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(context.Background(), Options{Driver: "mongo"}, zerolog.Nop()); err == nil {
			t.Error("エラーが返るべき")
		}
	})
}
