package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatline-server/internal/store"
)

// ChatRepository is the slice of the chat store the core depends on.
type ChatRepository interface {
	GetChatByID(ctx context.Context, id int64) (*store.Chat, error)
	ListParticipants(ctx context.Context, chatID int64) ([]int64, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
}

// Notifier is the handle the HTTP mutation layer uses to announce committed changes.
// Every method is best-effort: failures are logged and never returned.
type Notifier interface {
	// NewChat notifies every participant except the actor.
	NewChat(ctx context.Context, chatID, actorID int64, chat any)
	// MessageSent confirms to the sender and delivers to every other participant.
	MessageSent(ctx context.Context, chatID, senderID int64, message any)
	// MessageEdited notifies every participant except the actor.
	MessageEdited(ctx context.Context, chatID, actorID int64, message any)
	// MessageDeleted notifies every participant except the actor.
	MessageDeleted(ctx context.Context, chatID, actorID int64, message any)
	// ParticipantsAdded sends new-chat to each newly added user.
	ParticipantsAdded(ctx context.Context, added []int64, chat any)
	// ParticipantsRemoved sends leave-chat to each removed user.
	ParticipantsRemoved(ctx context.Context, removed []int64, chat any)
	// ChatUpdated notifies every participant.
	ChatUpdated(ctx context.Context, chatID int64, chat any)
	// ChatLeft sends leave-chat to the user who left and chat-updated to the remaining participants.
	// Call it after the leaver is removed from the store.
	ChatLeft(ctx context.Context, chatID, leaverID int64, chat any)
	// ChatDeleted sends leave-chat to every former participant.
	ChatDeleted(ctx context.Context, formerParticipants []int64, chat any)
}

// MessagePayload wraps message projections the same way for every message event.
type MessagePayload struct {
	Message any `json:"message"`
}

// Router computes target rooms for events and hands them to the registry.
type Router struct {
	chats    ChatRepository
	registry *Registry
	log      *zerolog.Logger
}

var _ Notifier = (*Router)(nil)

// NewRouter builds a router.
func NewRouter(chats ChatRepository, registry *Registry, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{chats: chats, registry: registry, log: logger}
}

// HandleCommand applies an inbound command from an Active connection.
func (r *Router) HandleCommand(ctx context.Context, c *Conn, cmd Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		if cmd.Room == "" {
			return Malformed("room id is required")
		}
		// Identity rooms are joined implicitly and only by their owner.
		if cmd.Room.Kind() == RoomKindUser && cmd.Room != UserRoom(c.UserID()) {
			return Malformed("cannot join another user's room")
		}
		r.registry.Join(c, cmd.Room)
		return nil

	case CommandTypingStart, CommandTypingStop:
		if cmd.ChatID <= 0 {
			return Malformed("chat id is required")
		}
		kind := EventTypingStart
		if cmd.Kind == CommandTypingStop {
			kind = EventTypingStop
		}
		r.deliver(ctx, ChatRoom(cmd.ChatID), Event{
			Kind:    kind,
			Payload: TypingPayload{ChatID: cmd.ChatID, UserID: c.UserID()},
		}, c)
		return nil

	default:
		return Malformed("unknown command")
	}
}

// NewChat notifies every participant except the actor.
func (r *Router) NewChat(ctx context.Context, chatID, actorID int64, chat any) {
	participants := r.participants(ctx, chatID)
	r.toUsers(ctx, lo.Without(participants, actorID), EventNewChat, chat)
}

// MessageSent confirms to the sender and delivers to the other participants.
func (r *Router) MessageSent(ctx context.Context, chatID, senderID int64, message any) {
	participants := r.participants(ctx, chatID)
	payload := MessagePayload{Message: message}

	r.toUsers(ctx, []int64{senderID}, EventMessageSent, payload)
	r.toUsers(ctx, lo.Without(participants, senderID), EventMessageReceived, payload)
}

// MessageEdited notifies every participant except the actor.
func (r *Router) MessageEdited(ctx context.Context, chatID, actorID int64, message any) {
	participants := r.participants(ctx, chatID)
	r.toUsers(ctx, lo.Without(participants, actorID), EventMessageEdited, MessagePayload{Message: message})
}

// MessageDeleted notifies every participant except the actor.
func (r *Router) MessageDeleted(ctx context.Context, chatID, actorID int64, message any) {
	participants := r.participants(ctx, chatID)
	r.toUsers(ctx, lo.Without(participants, actorID), EventMessageDeleted, MessagePayload{Message: message})
}

// ParticipantsAdded sends new-chat to each newly added user.
func (r *Router) ParticipantsAdded(ctx context.Context, added []int64, chat any) {
	r.toUsers(ctx, added, EventNewChat, chat)
}

// ParticipantsRemoved sends leave-chat to each removed user.
func (r *Router) ParticipantsRemoved(ctx context.Context, removed []int64, chat any) {
	r.toUsers(ctx, removed, EventLeaveChat, chat)
}

// ChatUpdated notifies every participant.
func (r *Router) ChatUpdated(ctx context.Context, chatID int64, chat any) {
	r.toUsers(ctx, r.participants(ctx, chatID), EventChatUpdated, chat)
}

// ChatLeft sends leave-chat to the leaver and chat-updated to everyone still in the chat.
func (r *Router) ChatLeft(ctx context.Context, chatID, leaverID int64, chat any) {
	r.toUsers(ctx, []int64{leaverID}, EventLeaveChat, chat)
	r.toUsers(ctx, lo.Without(r.participants(ctx, chatID), leaverID), EventChatUpdated, chat)
}

// ChatDeleted sends leave-chat to every former participant.
func (r *Router) ChatDeleted(ctx context.Context, formerParticipants []int64, chat any) {
	r.toUsers(ctx, formerParticipants, EventLeaveChat, chat)
}

func (r *Router) participants(ctx context.Context, chatID int64) []int64 {
	ids, err := r.chats.ListParticipants(ctx, chatID)
	if err != nil {
		r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("list participants for fan-out")
		return nil
	}
	return ids
}

func (r *Router) toUsers(ctx context.Context, userIDs []int64, kind EventKind, payload any) {
	for _, id := range lo.Uniq(userIDs) {
		r.deliver(ctx, UserRoom(id), Event{Kind: kind, Payload: payload}, nil)
	}
}

// deliver ignores cancellation of ctx; only the per-push timeout applies.
func (r *Router) deliver(ctx context.Context, key RoomKey, ev Event, except *Conn) {
	_, err := r.registry.Deliver(context.WithoutCancel(ctx), key, ev, except)
	if errors.Is(err, ErrTargetUnreachable) {
		r.log.Debug().Str("room", key.String()).Str("event", string(ev.Kind)).Msg("no live connections")
	}
}
