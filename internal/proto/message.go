package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom    = "join-room"
	InboundTypeTypingStart = "typing-start"
	InboundTypeTypingStop  = "typing-stop"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// JoinRoomData requests membership in a room. RoomID accepts "42", "chat:42" or "community:3".
type JoinRoomData struct {
	RoomID string `json:"room_id" validate:"required,max=64"`
}

// TypingData announces typing activity in a chat. A bare JSON string chat id is accepted too.
type TypingData struct {
	ChatID string `json:"chat_id" validate:"required,numeric,max=20"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
