package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/auth"
	"github.com/vovakirdan/chatline-server/internal/metrics"
	"github.com/vovakirdan/chatline-server/internal/service/chats"
	"github.com/vovakirdan/chatline-server/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
	// ContextKeyChatID holds the chat id parsed by ChatMemberMiddleware.
	ContextKeyChatID = "chat_id"
	// ContextKeyChatRole holds the caller's role in that chat.
	ContextKeyChatRole = "chat_role"
)

// AuthMiddleware validates the access token from the cookie or a Bearer header.
func AuthMiddleware(authService *auth.Service, cookieName string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := requestToken(c, cookieName)
		if token == "" {
			logger.Debug().Msg("missing access token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing access token"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Next()
	}
}

func requestToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ChatMemberMiddleware rejects callers that do not participate in :chatID.
func ChatMemberMiddleware(chatService *chats.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}
		chatID, err := strconv.ParseInt(c.Param("chatID"), 10, 64)
		if err != nil || chatID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
			return
		}

		p, err := chatService.CheckMember(c.Request.Context(), chatID, uid)
		if err != nil {
			status, msg := statusFor(err)
			if status == http.StatusInternalServerError {
				logger.Error().Err(err).Int64("chat_id", chatID).Msg("membership check failed")
			}
			c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
			return
		}

		c.Set(ContextKeyChatID, chatID)
		c.Set(ContextKeyChatRole, p.Role)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// MetricsMiddleware counts requests and observes their latency.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(method))
	}
}

func currentUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

func currentChatID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyChatID)
}

// statusFor maps service errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chats.ErrChatNotFound),
		errors.Is(err, chats.ErrUserNotFound),
		errors.Is(err, chats.ErrMessageNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, chats.ErrNotParticipant),
		errors.Is(err, chats.ErrNotAdmin),
		errors.Is(err, chats.ErrNotMessageOwner):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, chats.ErrInvalidInput),
		errors.Is(err, chats.ErrCannotChatSelf),
		errors.Is(err, chats.ErrDirectChat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chats.ErrMessageDeleted):
		return http.StatusGone, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func rootMessage(err error) string {
	for _, known := range []error{chats.ErrChatNotFound, chats.ErrUserNotFound, chats.ErrMessageNotFound} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "not found"
}
