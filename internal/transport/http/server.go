package http

import (
	"context"
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/auth"
	"github.com/vovakirdan/chatline-server/internal/config"
	"github.com/vovakirdan/chatline-server/internal/core"
	"github.com/vovakirdan/chatline-server/internal/metrics"
	"github.com/vovakirdan/chatline-server/internal/service/chats"
)

// Server is the HTTP server plus the WebSocket handler whose sockets it must drain on shutdown.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// Shutdown stops accepting requests, waits for in-flight HTTP requests, then
// closes every WebSocket and waits for its handler to return.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.Server.Shutdown(ctx)
	wsErr := s.ws.Shutdown(ctx)
	return errors.Join(httpErr, wsErr)
}

// NewServer builds the HTTP server with REST, metrics and WebSocket routes.
func NewServer(gateway *core.Gateway, authService *auth.Service, chatService *chats.Service, cfg *config.Config, logger *zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	wsHandler := NewWSHandler(gateway, cfg, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	authHandlers := NewAPIHandlers(authService, cfg, logger)
	chatHandlers := NewChatHandlers(chatService, logger)
	messageHandlers := NewMessageHandlers(chatService, logger)
	userHandlers := NewUserHandlers(chatService, logger)

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandlers.Register)
		authGroup.POST("/login", authHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, cfg.AccessCookieName, logger))
		protected.GET("/chats", chatHandlers.ListChats)
		protected.GET("/chats/users", userHandlers.SearchUsers)
		protected.PUT("/chats/direct", chatHandlers.GetOrCreateDirect)
		protected.POST("/chats/groups", chatHandlers.CreateGroup)

		chat := protected.Group("/chats/:chatID")
		chat.Use(ChatMemberMiddleware(chatService, logger))
		chat.DELETE("", chatHandlers.DeleteChat)
		chat.DELETE("/leave", chatHandlers.LeaveChat)
		chat.PUT("/participants", chatHandlers.AddParticipants)
		chat.PATCH("/participants", chatHandlers.RemoveParticipants)
		chat.PUT("/settings", chatHandlers.UpdateSettings)
		chat.PATCH("/settings", chatHandlers.SetRole)
		chat.GET("/messages", messageHandlers.ListMessages)
		chat.POST("/messages", messageHandlers.SendMessage)
		chat.PATCH("/messages/:messageID", messageHandlers.EditMessage)
		chat.DELETE("/messages/:messageID", messageHandlers.DeleteMessage)
	}

	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: wsHandler,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
