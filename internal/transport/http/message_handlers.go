package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/service/chats"
)

// MessageHandlers provides HTTP handlers for chat messages.
type MessageHandlers struct {
	service *chats.Service
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *chats.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{service: svc, log: logger}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text      string `json:"text" binding:"required"`
	ReplyToID *int64 `json:"reply_to_id"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// ListMessages handles reading chat history.
// GET /api/v1/chats/:chatID/messages?limit=50&before=123
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var before *int64
	if v := c.Query("before"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		before = &id
	}

	messages, err := h.service.ListMessages(c.Request.Context(), uid, currentChatID(c), limit, before)
	if err != nil {
		fail(c, err, "failed to list messages", h.log)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage handles posting a message.
// POST /api/v1/chats/:chatID/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), uid, currentChatID(c), chats.MessageRequest{
		Text:      req.Text,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		fail(c, err, "failed to send message", h.log)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// EditMessage handles editing the caller's own message.
// PATCH /api/v1/chats/:chatID/messages/:messageID
func (h *MessageHandlers) EditMessage(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	var req EditMessageRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	msg, err := h.service.EditMessage(c.Request.Context(), uid, currentChatID(c), messageID, req.Text)
	if err != nil {
		fail(c, err, "failed to edit message", h.log)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage handles soft-deleting a message.
// DELETE /api/v1/chats/:chatID/messages/:messageID
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := requireUser(c, h.log)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	msg, err := h.service.DeleteMessage(c.Request.Context(), uid, currentChatID(c), messageID)
	if err != nil {
		fail(c, err, "failed to delete message", h.log)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func messageIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("messageID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return 0, false
	}
	return id, true
}
