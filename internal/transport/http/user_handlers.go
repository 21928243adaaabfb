package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/service/chats"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	service *chats.Service
	log     *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *chats.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		service: svc,
		log:     logger,
	}
}

// SearchUsers handles searching for users to start a chat with.
// GET /api/v1/chats/users?s=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	users, err := h.service.SearchUsers(c.Request.Context(), uid, c.Query("s"))
	if err != nil {
		fail(c, err, "failed to search users", h.log)
		return
	}

	h.log.Debug().Int64("user_id", uid).Int("result_count", len(users)).Msg("users searched")
	c.JSON(http.StatusOK, users)
}

func requireUser(c *gin.Context, logger *zerolog.Logger) (int64, bool) {
	uid, ok := currentUserID(c)
	if !ok {
		logger.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, false
	}
	return uid, true
}

func bindJSON(c *gin.Context, dst any, logger *zerolog.Logger) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func fail(c *gin.Context, err error, msg string, logger *zerolog.Logger) {
	status, clientMsg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	}
	c.JSON(status, ErrorResponse{Error: clientMsg})
}
