// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// サービス間JWTの発行と検証、リクエストログ、パニックリカバリなど、
// 全サービスで共通して使用するミドルウェアを含む。
package middleware
