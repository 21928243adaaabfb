package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatline-server/internal/core"
	"github.com/vovakirdan/chatline-server/internal/proto"
	"github.com/vovakirdan/chatline-server/internal/store"
)

// Common errors for chat operations.
var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotParticipant  = errors.New("not a participant of this chat")
	ErrNotAdmin        = errors.New("admin role required")
	ErrCannotChatSelf  = errors.New("cannot start a chat with yourself")
	ErrDirectChat      = errors.New("operation not allowed on direct chats")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("not the sender of this message")
	ErrMessageDeleted  = errors.New("message was deleted")
)

const searchLimit = 15

var validate = validator.New()

// GroupRequest carries the input for creating a group.
type GroupRequest struct {
	Title        string  `validate:"required,max=64"`
	Description  string  `validate:"max=256"`
	Participants []int64 `validate:"required,min=1,max=256,dive,gt=0"`
}

// ProfileRequest carries a new group title and description.
type ProfileRequest struct {
	Title       string `validate:"required,max=64"`
	Description string `validate:"max=256"`
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// Service implements chat and membership use cases and announces committed changes.
type Service struct {
	store    store.Store
	notifier core.Notifier
	log      *zerolog.Logger
}

// New creates a chat service. Notifications go through notifier after each commit.
func New(st store.Store, notifier core.Notifier, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, notifier: notifier, log: logger}
}

// ListChats returns the chats of userID, most recently updated first.
func (s *Service) ListChats(ctx context.Context, userID int64) ([]proto.ChatResponse, error) {
	chats, err := s.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	result := make([]proto.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		view, err := s.view(ctx, chat)
		if err != nil {
			return nil, err
		}
		result = append(result, view)
	}
	return result, nil
}

// SearchUsers finds users whose name contains query, excluding the caller.
func (s *Service) SearchUsers(ctx context.Context, userID int64, query string) ([]proto.UserResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []proto.UserResponse{}, nil
	}
	users, err := s.store.SearchUsers(ctx, query, userID, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return lo.Map(users, func(u *store.User, _ int) proto.UserResponse {
		return proto.NewUserResponse(u)
	}), nil
}

// GetOrCreateDirect returns the direct chat between sender and receiver, creating it if needed.
// A non-empty text is sent as the first message.
func (s *Service) GetOrCreateDirect(ctx context.Context, senderID, receiverID int64, text string) (proto.ChatResponse, *proto.MessageResponse, error) {
	if senderID == receiverID {
		return proto.ChatResponse{}, nil, ErrCannotChatSelf
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return proto.ChatResponse{}, nil, ErrUserNotFound
		}
		return proto.ChatResponse{}, nil, fmt.Errorf("lookup receiver: %w", err)
	}

	chat, created, err := s.store.CreateDirectChat(ctx, store.DirectKey(senderID, receiverID), senderID, receiverID)
	if err != nil {
		return proto.ChatResponse{}, nil, fmt.Errorf("create direct chat: %w", err)
	}

	var sent *proto.MessageResponse
	if text = strings.TrimSpace(text); text != "" {
		msg, err := s.appendMessage(ctx, chat.ID, senderID, text, nil)
		if err != nil {
			return proto.ChatResponse{}, nil, err
		}
		resp := proto.NewMessageResponse(msg)
		sent = &resp
		if chat, err = s.store.GetChatByID(ctx, chat.ID); err != nil {
			return proto.ChatResponse{}, nil, fmt.Errorf("reload chat: %w", err)
		}
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return proto.ChatResponse{}, nil, err
	}

	if created {
		s.notifier.NewChat(ctx, chat.ID, senderID, view)
	}
	if sent != nil {
		s.notifier.MessageSent(ctx, chat.ID, senderID, *sent)
	}
	return view, sent, nil
}

// CreateGroup creates a group with the creator as admin and the given users as members.
func (s *Service) CreateGroup(ctx context.Context, creatorID int64, req GroupRequest) (proto.ChatResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Participants = lo.Without(lo.Uniq(req.Participants), creatorID)
	if err := validate.Struct(req); err != nil {
		return proto.ChatResponse{}, invalid(err)
	}

	for _, id := range req.Participants {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return proto.ChatResponse{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
			}
			return proto.ChatResponse{}, fmt.Errorf("lookup participant: %w", err)
		}
	}

	members := make([]store.Participant, 0, len(req.Participants)+1)
	members = append(members, store.Participant{UserID: creatorID, Role: store.RoleAdmin})
	for _, id := range req.Participants {
		members = append(members, store.Participant{UserID: id, Role: store.RoleMember})
	}

	chat, err := s.store.CreateChat(ctx, &store.Chat{
		Type:        store.ChatTypeGroup,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   creatorID,
	}, members)
	if err != nil {
		return proto.ChatResponse{}, fmt.Errorf("create group: %w", err)
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	s.notifier.NewChat(ctx, chat.ID, creatorID, view)

	s.log.Info().Int64("chat_id", chat.ID).Int64("creator_id", creatorID).Int("participants", len(members)).Msg("group created")
	return view, nil
}

// AddParticipants adds users to a group. Only newly added users are notified.
func (s *Service) AddParticipants(ctx context.Context, actorID, chatID int64, userIDs []int64) (proto.ChatResponse, error) {
	chat, err := s.requireGroupAdmin(ctx, chatID, actorID)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	userIDs = lo.Uniq(userIDs)
	if len(userIDs) == 0 {
		return proto.ChatResponse{}, fmt.Errorf("%w: participants are required", ErrInvalidInput)
	}
	for _, id := range userIDs {
		if _, err := s.store.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return proto.ChatResponse{}, fmt.Errorf("%w: %d", ErrUserNotFound, id)
			}
			return proto.ChatResponse{}, fmt.Errorf("lookup participant: %w", err)
		}
	}

	added, err := s.store.AddParticipants(ctx, chatID, userIDs, store.RoleMember)
	if err != nil {
		return proto.ChatResponse{}, fmt.Errorf("add participants: %w", err)
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	s.notifier.ParticipantsAdded(ctx, added, view)
	return view, nil
}

// RemoveParticipants removes users from a group. The acting admin cannot remove itself.
func (s *Service) RemoveParticipants(ctx context.Context, actorID, chatID int64, userIDs []int64) (proto.ChatResponse, error) {
	chat, err := s.requireGroupAdmin(ctx, chatID, actorID)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	userIDs = lo.Without(lo.Uniq(userIDs), actorID)
	if len(userIDs) == 0 {
		return proto.ChatResponse{}, fmt.Errorf("%w: participants are required", ErrInvalidInput)
	}

	removed, err := s.store.RemoveParticipants(ctx, chatID, userIDs)
	if err != nil {
		return proto.ChatResponse{}, fmt.Errorf("remove participants: %w", err)
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	s.notifier.ParticipantsRemoved(ctx, removed, view)
	return view, nil
}

// UpdateProfile changes a group's title and description.
func (s *Service) UpdateProfile(ctx context.Context, actorID, chatID int64, req ProfileRequest) (proto.ChatResponse, error) {
	if _, err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return proto.ChatResponse{}, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validate.Struct(req); err != nil {
		return proto.ChatResponse{}, invalid(err)
	}

	chat, err := s.store.UpdateChatProfile(ctx, chatID, req.Title, req.Description)
	if err != nil {
		return proto.ChatResponse{}, fmt.Errorf("update chat: %w", err)
	}
	view, err := s.view(ctx, chat)
	if err != nil {
		return proto.ChatResponse{}, err
	}
	s.notifier.ChatUpdated(ctx, chatID, view)
	return view, nil
}

// SetRole assigns a role to a participant. Nothing is broadcast.
func (s *Service) SetRole(ctx context.Context, actorID, chatID, userID int64, role store.Role) error {
	if _, err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return err
	}
	if role != store.RoleAdmin && role != store.RoleMember {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if _, err := s.store.GetParticipant(ctx, chatID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotParticipant
		}
		return fmt.Errorf("lookup participant: %w", err)
	}
	if err := s.store.SetParticipantRole(ctx, chatID, userID, role); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

// DeleteChat removes a group with its messages. Every former participant is notified.
func (s *Service) DeleteChat(ctx context.Context, actorID, chatID int64) error {
	chat, err := s.requireGroupAdmin(ctx, chatID, actorID)
	if err != nil {
		return err
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return err
	}
	former, err := s.store.ListParticipants(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	s.notifier.ChatDeleted(ctx, former, view)
	s.log.Info().Int64("chat_id", chatID).Int64("actor_id", actorID).Msg("chat deleted")
	return nil
}

// LeaveChat removes the caller from a group.
func (s *Service) LeaveChat(ctx context.Context, userID, chatID int64) error {
	chat, _, err := s.requireMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if chat.Type == store.ChatTypeDirect {
		return ErrDirectChat
	}

	if _, err := s.store.RemoveParticipants(ctx, chatID, []int64{userID}); err != nil {
		return fmt.Errorf("leave chat: %w", err)
	}

	view, err := s.view(ctx, chat)
	if err != nil {
		return err
	}
	s.notifier.ChatLeft(ctx, chatID, userID, view)
	return nil
}

// CheckMember reports the caller's membership in a chat.
func (s *Service) CheckMember(ctx context.Context, chatID, userID int64) (*store.Participant, error) {
	_, p, err := s.requireMember(ctx, chatID, userID)
	return p, err
}

func (s *Service) requireMember(ctx context.Context, chatID, userID int64) (*store.Chat, *store.Participant, error) {
	chat, err := s.store.GetChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrChatNotFound
		}
		return nil, nil, fmt.Errorf("get chat: %w", err)
	}
	p, err := s.store.GetParticipant(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotParticipant
		}
		return nil, nil, fmt.Errorf("get participant: %w", err)
	}
	return chat, p, nil
}

func (s *Service) requireGroupAdmin(ctx context.Context, chatID, userID int64) (*store.Chat, error) {
	chat, p, err := s.requireMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat.Type == store.ChatTypeDirect {
		return nil, ErrDirectChat
	}
	if p.Role != store.RoleAdmin {
		return nil, ErrNotAdmin
	}
	return chat, nil
}

// view builds the projection sent to clients.
func (s *Service) view(ctx context.Context, chat *store.Chat) (proto.ChatResponse, error) {
	participants, err := s.store.ListParticipantDetails(ctx, chat.ID)
	if err != nil {
		return proto.ChatResponse{}, fmt.Errorf("list participants: %w", err)
	}

	var last *store.Message
	if chat.LastMessageID != nil {
		last, err = s.store.GetMessage(ctx, chat.ID, *chat.LastMessageID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return proto.ChatResponse{}, fmt.Errorf("get last message: %w", err)
		}
	}
	return proto.NewChatResponse(chat, participants, last), nil
}
