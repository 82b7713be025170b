package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotFound はドキュメントが存在しないことを表す。
var ErrNotFound = errors.New("docstore: ドキュメントが見つかりません")

// Document はストアから読み出したドキュメント。
type Document struct {
	// ID はコレクション内のドキュメントID。
	ID string
	// Data はドキュメント本体（JSONオブジェクト）。
	Data json.RawMessage
}

// FieldUpdate は部分更新の1フィールド分。
// Pathはネストしたフィールドへのパスで、途中のオブジェクトは必要に応じて作成される。
type FieldUpdate struct {
	Path  []string
	Value any
}

// Query は配列包含クエリの条件。
type Query struct {
	// ArrayField は包含判定する配列フィールドのドット区切りパス。
	ArrayField string
	// Contains は配列に含まれているべき文字列値。
	Contains string
	// OrderBy はソートキーのドット区切りパス。空の場合はID順。
	OrderBy string
	// Descending はOrderByを降順にするかどうか。
	Descending bool
}

// Store はドキュメントストアのポート。実装は並行利用に安全であること。
type Store interface {
	// Get はドキュメントを取得する。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set はドキュメント全体を書き込む（作成または置換）。
	Set(ctx context.Context, collection, id string, data any) error
	// Update は指定フィールドだけをマージする。存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error
	// Query は条件に一致するドキュメントを返す。
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Close は接続を解放する。
	Close() error
}

// Decode はドキュメント本体を指定された型にデシリアライズする。
func Decode[T any](doc *Document) (*T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("ドキュメント %s のデシリアライズに失敗: %w", doc.ID, err)
	}
	return &v, nil
}

// fieldPathPattern はクエリで使用できるフィールドパスの形式。
var fieldPathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// splitFieldPath はクエリ用のドット区切りパスを検証して分割する。
func splitFieldPath(path string) ([]string, error) {
	if !fieldPathPattern.MatchString(path) {
		return nil, fmt.Errorf("不正なフィールドパス: %q", path)
	}
	return strings.Split(path, "."), nil
}

// mergeFields はJSONオブジェクトに部分更新を適用した結果を返す。
func mergeFields(data []byte, updates []FieldUpdate) ([]byte, error) {
	doc := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("既存ドキュメントのデシリアライズに失敗: %w", err)
		}
	}

	for _, u := range updates {
		if len(u.Path) == 0 {
			return nil, errors.New("空のフィールドパスは更新できません")
		}
		value, err := normalize(u.Value)
		if err != nil {
			return nil, fmt.Errorf("フィールド %s の値の変換に失敗: %w", strings.Join(u.Path, "."), err)
		}

		node := doc
		for _, key := range u.Path[:len(u.Path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[u.Path[len(u.Path)-1]] = value
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("更新後ドキュメントのシリアライズに失敗: %w", err)
	}
	return merged, nil
}

// normalize は任意の値をJSONの汎用表現（map/slice/プリミティブ）に変換する。
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// marshalDocument はSetに渡された値をJSONオブジェクトにシリアライズする。
func marshalDocument(data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントのシリアライズに失敗: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("ドキュメントはJSONオブジェクトである必要があります: %s", b)
	}
	return b, nil
}
