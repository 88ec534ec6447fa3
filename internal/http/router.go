package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtalk/internal/http/handlers"
	"realtalk/pkg/ws"
)

func NewRouter(svc handlers.SessionService, hub *ws.Hub, logger *zap.SugaredLogger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	sh := handlers.NewSessionHandler(svc)
	eh := handlers.NewEventsHandler(hub, svc, logger)

	api := r.Group("/v1")
	api.POST("/session/connect", sh.Connect)
	api.POST("/session/disconnect", sh.Disconnect)
	api.POST("/session/mute", sh.Mute)
	api.GET("/session", sh.Status)
	api.GET("/sessions/:id/transcript", sh.ArchivedTranscript)
	api.GET("/runtime", sh.Runtime)
	r.GET("/v1/events", eh.WS)
	return r
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}
