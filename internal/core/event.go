package core

import "time"

// EventKind is the wire name of a notification pushed to clients.
type EventKind string

const (
	// EventConnected greets a connection right after activation.
	EventConnected EventKind = "connected"
	// EventNewChat tells a user they became part of a chat.
	EventNewChat EventKind = "new-chat"
	// EventMessageSent confirms a message to its sender's other sockets.
	EventMessageSent EventKind = "message-sent"
	// EventMessageReceived delivers a new message to the other participants.
	EventMessageReceived EventKind = "message-received"
	EventMessageEdited   EventKind = "message-edited"
	EventMessageDeleted  EventKind = "message-deleted"
	// EventChatUpdated carries a changed group profile.
	EventChatUpdated EventKind = "chat-updated"
	// EventLeaveChat tells a user they are no longer part of a chat.
	EventLeaveChat   EventKind = "leave-chat"
	EventTypingStart EventKind = "typing-start"
	EventTypingStop  EventKind = "typing-stop"
)

// Event is an immutable notification. Payload must be JSON-serializable.
type Event struct {
	Kind    EventKind
	Room    RoomKey
	Payload any
}

// Identity is the public projection of an authenticated user.
// It never carries password hashes or tokens.
type Identity struct {
	UserID    int64     `json:"id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConnectedPayload is sent with EventConnected.
type ConnectedPayload struct {
	ConnID string    `json:"conn_id"`
	User   *Identity `json:"user"`
}

// TypingPayload is relayed with typing events.
type TypingPayload struct {
	ChatID int64 `json:"chat_id,string"`
	UserID int64 `json:"user_id,string"`
}
