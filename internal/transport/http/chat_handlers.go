package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/proto"
	"github.com/vovakirdan/chatline-server/internal/service/chats"
	"github.com/vovakirdan/chatline-server/internal/store"
)

// ChatHandlers provides HTTP handlers for chat and membership endpoints.
type ChatHandlers struct {
	service *chats.Service
	log     *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chats.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{service: svc, log: logger}
}

// DirectChatRequest asks for the direct chat with another user.
type DirectChatRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required,gt=0"`
	Text       string `json:"text"`
}

// DirectChatResponse is the direct chat plus the message sent with it, if any.
type DirectChatResponse struct {
	Chat    proto.ChatResponse     `json:"chat"`
	Message *proto.MessageResponse `json:"message,omitempty"`
}

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	Title        string  `json:"title" binding:"required"`
	Description  string  `json:"description"`
	Participants []int64 `json:"participants" binding:"required,min=1"`
}

// ParticipantsRequest lists users to add or remove.
type ParticipantsRequest struct {
	Participants []int64 `json:"participants" binding:"required,min=1"`
}

// SettingsRequest carries a new group profile.
type SettingsRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// RoleRequest assigns a role to a participant.
type RoleRequest struct {
	UserID int64  `json:"user_id" binding:"required,gt=0"`
	Role   string `json:"role" binding:"required,oneof=admin member"`
}

// ListChats handles listing the caller's chats.
// GET /api/v1/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	result, err := h.service.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, err, "failed to list chats")
		return
	}

	h.log.Debug().Int64("user_id", uid).Int("chat_count", len(result)).Msg("chats listed successfully")
	c.JSON(http.StatusOK, result)
}

// GetOrCreateDirect handles opening a direct chat.
// PUT /api/v1/chats/direct
func (h *ChatHandlers) GetOrCreateDirect(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req DirectChatRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	chat, msg, err := h.service.GetOrCreateDirect(c.Request.Context(), uid, req.ReceiverID, req.Text)
	if err != nil {
		h.fail(c, err, "failed to open direct chat")
		return
	}
	c.JSON(http.StatusOK, DirectChatResponse{Chat: chat, Message: msg})
}

// CreateGroup handles group creation.
// POST /api/v1/chats/groups
func (h *ChatHandlers) CreateGroup(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	chat, err := h.service.CreateGroup(c.Request.Context(), uid, chats.GroupRequest{
		Title:        req.Title,
		Description:  req.Description,
		Participants: req.Participants,
	})
	if err != nil {
		h.fail(c, err, "failed to create group")
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// AddParticipants handles adding members to a group.
// PUT /api/v1/chats/:chatID/participants
func (h *ChatHandlers) AddParticipants(c *gin.Context) {
	h.updateParticipants(c, h.service.AddParticipants)
}

// RemoveParticipants handles removing members from a group.
// PATCH /api/v1/chats/:chatID/participants
func (h *ChatHandlers) RemoveParticipants(c *gin.Context) {
	h.updateParticipants(c, h.service.RemoveParticipants)
}

type participantsFunc func(ctx context.Context, actorID, chatID int64, userIDs []int64) (proto.ChatResponse, error)

func (h *ChatHandlers) updateParticipants(c *gin.Context, apply participantsFunc) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req ParticipantsRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	chat, err := apply(c.Request.Context(), uid, currentChatID(c), req.Participants)
	if err != nil {
		h.fail(c, err, "failed to update participants")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// UpdateSettings handles changing a group's profile.
// PUT /api/v1/chats/:chatID/settings
func (h *ChatHandlers) UpdateSettings(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req SettingsRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	chat, err := h.service.UpdateProfile(c.Request.Context(), uid, currentChatID(c), chats.ProfileRequest{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err, "failed to update chat")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// SetRole handles role assignment.
// PATCH /api/v1/chats/:chatID/settings
func (h *ChatHandlers) SetRole(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req RoleRequest
	if !bindJSON(c, &req, h.log) {
		return
	}

	if err := h.service.SetRole(c.Request.Context(), uid, currentChatID(c), req.UserID, store.Role(req.Role)); err != nil {
		h.fail(c, err, "failed to set role")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteChat handles group deletion.
// DELETE /api/v1/chats/:chatID
func (h *ChatHandlers) DeleteChat(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	if err := h.service.DeleteChat(c.Request.Context(), uid, currentChatID(c)); err != nil {
		h.fail(c, err, "failed to delete chat")
		return
	}
	c.Status(http.StatusNoContent)
}

// LeaveChat handles leaving a group.
// DELETE /api/v1/chats/:chatID/leave
func (h *ChatHandlers) LeaveChat(c *gin.Context) {
	uid, ok := h.requireUser(c)
	if !ok {
		return
	}

	if err := h.service.LeaveChat(c.Request.Context(), uid, currentChatID(c)); err != nil {
		h.fail(c, err, "failed to leave chat")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandlers) requireUser(c *gin.Context) (int64, bool) {
	return requireUser(c, h.log)
}

func (h *ChatHandlers) fail(c *gin.Context, err error, msg string) {
	fail(c, err, msg, h.log)
}
