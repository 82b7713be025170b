// Package docstore はJSONドキュメントストアのポートとアダプターを提供する。
//
// コレクションとIDで識別されるドキュメントに対し、ID取得、
// 部分更新（フィールドパス単位のマージ）、配列包含クエリとソートを提供する。
// SQLite（デフォルト）とPostgreSQLのJSONB実装を持つ。
package docstore
