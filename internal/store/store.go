package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
}

// ChatType defines different kinds of chats.
type ChatType string

const (
	ChatTypeDirect  ChatType = "direct"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

// Role is a participant's role inside a chat.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Chat represents a direct chat, group or channel.
type Chat struct {
	ID            int64
	Type          ChatType
	Title         string
	Description   string
	DirectKey     *string // for direct chats: "dm:{minUserId}:{maxUserId}"
	CreatedBy     int64
	LastMessageID *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Participant represents chat membership with a role.
type Participant struct {
	ChatID   int64
	UserID   int64
	Role     Role
	JoinedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  int64
	Text      string
	ReplyToID *int64
	EditedAt  *time.Time
	DeletedBy *int64
	DeletedAt *time.Time
	CreatedAt time.Time
}

// Deleted reports whether the message was soft-deleted.
func (m *Message) Deleted() bool {
	return m.DeletedBy != nil
}

// DirectKey builds the deduplication key for a direct chat between two users.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username, skipping excludeID.
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]*User, error)
}

// ChatStore handles chat and membership persistence.
type ChatStore interface {
	// CreateChat inserts a chat together with its initial participants.
	CreateChat(ctx context.Context, chat *Chat, participants []Participant) (*Chat, error)

	// CreateDirectChat returns the direct chat for directKey, creating it with both
	// users as members when missing. created reports whether a new row was inserted.
	CreateDirectChat(ctx context.Context, directKey string, user1ID, user2ID int64) (chat *Chat, created bool, err error)

	// GetChatByID retrieves a chat by ID.
	GetChatByID(ctx context.Context, id int64) (*Chat, error)

	// ListChatsForUser lists chats the user participates in, most recently updated first.
	ListChatsForUser(ctx context.Context, userID int64) ([]*Chat, error)

	// UpdateChatProfile changes title and description.
	UpdateChatProfile(ctx context.Context, chatID int64, title, description string) (*Chat, error)

	// DeleteChat removes a chat with its participants and messages.
	DeleteChat(ctx context.Context, chatID int64) error

	// AddParticipants adds users with the given role and returns the ids that were not members before.
	AddParticipants(ctx context.Context, chatID int64, userIDs []int64, role Role) ([]int64, error)

	// RemoveParticipants removes users and returns the ids that actually were members.
	RemoveParticipants(ctx context.Context, chatID int64, userIDs []int64) ([]int64, error)

	// GetParticipant returns the membership row of a user in a chat.
	GetParticipant(ctx context.Context, chatID, userID int64) (*Participant, error)

	// ListParticipants lists the user ids of every chat participant.
	ListParticipants(ctx context.Context, chatID int64) ([]int64, error)

	// ListParticipantDetails lists memberships including roles.
	ListParticipantDetails(ctx context.Context, chatID int64) ([]Participant, error)

	// SetParticipantRole changes a participant's role.
	SetParticipantRole(ctx context.Context, chatID, userID int64, role Role) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and makes it the chat's last message.
	AppendMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message that belongs to chatID.
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)

	// ListMessages returns messages of a chat newest first.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*Message, error)

	// UpdateMessageText edits a message body.
	UpdateMessageText(ctx context.Context, messageID int64, text string) (*Message, error)

	// SoftDeleteMessage clears a message and moves the chat's last message pointer back if needed.
	SoftDeleteMessage(ctx context.Context, messageID, deletedBy int64) (*Message, error)

	// MarkSeen records that userID has seen every message of the chat.
	MarkSeen(ctx context.Context, chatID, userID int64) error

	// SeenBy lists the users who have seen a message.
	SeenBy(ctx context.Context, messageID int64) ([]int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
