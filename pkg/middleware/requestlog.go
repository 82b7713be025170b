package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/pkg/httpclient"
)

// RequestLogger はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// X-Request-IDヘッダーがなければ採番し、リクエストのコンテキストにも設定する。
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(httpclient.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(httpclient.HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		ev := logger.Info()
		if status >= 500 {
			ev = logger.Error()
		} else if status >= 400 {
			ev = logger.Warn()
		}
		ev.Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTPリクエスト")
	}
}
