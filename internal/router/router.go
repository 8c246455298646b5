package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"sudooom.im.client/internal/config"
	"sudooom.im.client/internal/handler"
	"sudooom.im.client/internal/health"
	"sudooom.im.client/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(cfg config.HTTPConfig, chatHandler *handler.ChatHandler, checker *health.Checker, logger *slog.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if checker != nil {
		r.GET("/health", gin.WrapH(checker))
		r.GET("/ready", gin.WrapH(checker.Ready()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/state", chatHandler.GetState)
		v1.GET("/state.yaml", chatHandler.GetStateYAML)
		v1.GET("/events", chatHandler.Events)
		v1.GET("/unread", chatHandler.GetUnread)
		v1.GET("/presence", chatHandler.GetPresence)

		conversations := v1.Group("/conversations")
		{
			conversations.GET("", chatHandler.GetConversations)
			conversations.POST("/refresh", chatHandler.RefreshConversations)
			conversations.GET("/:id/messages", chatHandler.GetConversationMessages)
			conversations.POST("/:id/open", chatHandler.OpenConversation)
		}

		v1.GET("/messages", chatHandler.GetActiveMessages)
		v1.POST("/messages", chatHandler.SendMessage)
		v1.POST("/chat/toggle", chatHandler.ToggleChat)
		v1.POST("/view/toggle", chatHandler.ToggleView)
	}

	return r
}
