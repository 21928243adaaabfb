package proto

import (
	"time"

	"github.com/vovakirdan/chatline-server/internal/store"
)

// UserResponse is the public projection of a user.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ParticipantResponse is a chat member with its role.
type ParticipantResponse struct {
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChatResponse is the projection shared by REST responses and socket events.
type ChatResponse struct {
	ID           int64                 `json:"id"`
	Type         string                `json:"type"`
	Title        string                `json:"title,omitempty"`
	Description  string                `json:"description,omitempty"`
	CreatedBy    int64                 `json:"created_by"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
	LastMessage  *MessageResponse      `json:"last_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// MessageResponse is a message as seen by clients. Deleted messages carry no text.
type MessageResponse struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  int64      `json:"sender_id"`
	Text      string     `json:"text"`
	ReplyToID *int64     `json:"reply_to_id,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	SeenBy    []int64    `json:"seen_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewUserResponse projects a stored user.
func NewUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
	}
}

// NewMessageResponse projects a stored message.
func NewMessageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		ReplyToID: m.ReplyToID,
		EditedAt:  m.EditedAt,
		DeletedBy: m.DeletedBy,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
	}
	if m.Deleted() {
		resp.Text = ""
	}
	return resp
}

// NewChatResponse projects a stored chat with its participants and optional last message.
func NewChatResponse(c *store.Chat, participants []store.Participant, last *store.Message) ChatResponse {
	resp := ChatResponse{
		ID:          c.ID,
		Type:        string(c.Type),
		Title:       c.Title,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			UserID:   p.UserID,
			Role:     string(p.Role),
			JoinedAt: p.JoinedAt,
		})
	}
	if last != nil {
		msg := NewMessageResponse(last)
		resp.LastMessage = &msg
	}
	return resp
}
