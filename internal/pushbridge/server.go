package pushbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nenechat/pushbridge/internal/notify"
	"github.com/nenechat/pushbridge/pkg/event"
	"github.com/nenechat/pushbridge/pkg/httpclient"
	"github.com/nenechat/pushbridge/pkg/middleware"
)

// CallbackPath は遅延タスクが呼び出すエンドポイントのパス。
const CallbackPath = "/futurePushCallback"

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Server はプッシュ通知ブリッジのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service はトリガーイベントの処理を行う。
	service *notify.Service
	// secret はサービス間JWTの検証鍵。空の場合は認証しない。
	secret string
	logger zerolog.Logger
}

// NewServer は新しいサーバーを生成し、ルーティングを設定する。
func NewServer(port string, service *notify.Service, secret string, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:  router,
		port:    port,
		service: service,
		secret:  secret,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "pushbridge"})
	})

	// 遅延タスクからのコールバック
	s.router.POST(CallbackPath, middleware.ServiceAuth(s.secret), s.handleDeferredCallback())

	api := s.router.Group("/api/v1")
	api.Use(middleware.ServiceAuth(s.secret))
	{
		triggers := api.Group("/triggers")
		{
			// 新規メッセージ
			triggers.POST("/conversations/:conversationId/messages/:messageId", s.handleMessageCreated())
			// プロフィール更新
			triggers.POST("/users/:userId", s.handleUserProfileUpdated())
		}
	}
}

// bindEvent はリクエストボディのイベントを読み取り、種類を検証する。
// 失敗した場合は400を返してfalseを返す。
func bindEvent(c *gin.Context, aggregateType event.AggregateType, eventType event.Type) (*event.Event, bool) {
	var ev event.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
		return nil, false
	}
	if err := ev.Expect(aggregateType, eventType); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &ev, true
}

// handleMessageCreated は新規メッセージのトリガーを処理するハンドラ。
func (s *Server) handleMessageCreated() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		messageID := c.Param("messageId")

		ev, ok := bindEvent(c, event.AggregateTypeConversation, event.TypeMessageCreated)
		if !ok {
			return
		}
		data, err := event.DecodeData[event.MessageCreatedData](ev)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if (data.ConversationID != "" && data.ConversationID != conversationID) ||
			(data.MessageID != "" && data.MessageID != messageID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスとイベントデータのIDが一致しません"})
			return
		}

		out, err := s.service.OnMessageCreated(c.Request.Context(), conversationID, messageID, data.Message)
		if err != nil {
			s.logger.Error().Err(err).
				Str("request_id", httpclient.RequestIDFrom(c.Request.Context())).
				Str("event_id", ev.ID).
				Str("conversation_id", conversationID).
				Str("message_id", messageID).
				Msg("新規メッセージの処理に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "新規メッセージの処理に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, out)
	}
}

// handleUserProfileUpdated はプロフィール更新のトリガーを処理するハンドラ。
func (s *Server) handleUserProfileUpdated() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		ev, ok := bindEvent(c, event.AggregateTypeUser, event.TypeUserProfileUpdated)
		if !ok {
			return
		}
		data, err := event.DecodeData[event.UserProfileUpdatedData](ev)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if data.UserID != "" && data.UserID != userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスとイベントデータのユーザーIDが一致しません"})
			return
		}
		if notify.IsAbsent(data.After) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "更新後のプロフィールが必要です"})
			return
		}

		report, err := s.service.OnUserProfileUpdated(c.Request.Context(), userID, data.After)
		if err != nil {
			s.logger.Error().Err(err).
				Str("request_id", httpclient.RequestIDFrom(c.Request.Context())).
				Str("event_id", ev.ID).
				Str("user_id", userID).
				Msg("プッシュトークンの同期に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プッシュトークンの同期に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"matched": report.Matched,
			"updated": report.Updated,
			"skipped": report.Skipped,
		})
	}
}

// handleDeferredCallback は遅延タスクのコールバックを処理するハンドラ。
// 解析や送信準備に失敗した場合は500を返し、タスク側のリトライに任せる。
func (s *Server) handleDeferredCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("リクエストボディの読み込みに失敗しました: %v", err)})
			return
		}

		report, err := s.service.OnDeferredCallback(c.Request.Context(), body)
		if err != nil {
			s.logger.Error().Err(err).
				Str("request_id", httpclient.RequestIDFrom(c.Request.Context())).
				Str("caller", middleware.GetCaller(c)).
				Msg("遅延通知の処理に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"sent": report.Sent, "failed": report.Failed})
	}
}
