package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandTypingStart relays a typing indicator to the chat room.
	CommandTypingStart
	// CommandTypingStop clears a typing indicator.
	CommandTypingStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join-room"
	case CommandTypingStart:
		return "typing-start"
	case CommandTypingStop:
		return "typing-stop"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a connection.
type Command struct {
	Kind   CommandKind
	Room   RoomKey // CommandJoinRoom
	ChatID int64   // typing commands
}
