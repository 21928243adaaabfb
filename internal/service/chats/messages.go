package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/vovakirdan/chatline-server/internal/proto"
	"github.com/vovakirdan/chatline-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// MessageRequest carries a new or edited message body.
type MessageRequest struct {
	Text      string `validate:"required,max=4096"`
	ReplyToID *int64 `validate:"omitempty,gt=0"`
}

// ListMessages returns chat history newest first, marks it seen by the caller
// and reports who has seen each message.
func (s *Service) ListMessages(ctx context.Context, userID, chatID int64, limit int, beforeID *int64) ([]proto.MessageResponse, error) {
	if _, _, err := s.requireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	messages, err := s.store.ListMessages(ctx, chatID, limit, beforeID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if err := s.store.MarkSeen(ctx, chatID, userID); err != nil {
		s.log.Warn().Err(err).Int64("chat_id", chatID).Int64("user_id", userID).Msg("mark seen")
	}

	views := lo.Map(messages, func(m *store.Message, _ int) proto.MessageResponse {
		return proto.NewMessageResponse(m)
	})
	for i := range views {
		seen, err := s.store.SeenBy(ctx, views[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list seen: %w", err)
		}
		views[i].SeenBy = seen
	}
	return views, nil
}

// SendMessage persists a message; the sender gets message-sent and everyone else message-received.
func (s *Service) SendMessage(ctx context.Context, senderID, chatID int64, req MessageRequest) (proto.MessageResponse, error) {
	if _, _, err := s.requireMember(ctx, chatID, senderID); err != nil {
		return proto.MessageResponse{}, err
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := validate.Struct(req); err != nil {
		return proto.MessageResponse{}, invalid(err)
	}
	if req.ReplyToID != nil {
		if _, err := s.store.GetMessage(ctx, chatID, *req.ReplyToID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return proto.MessageResponse{}, ErrMessageNotFound
			}
			return proto.MessageResponse{}, fmt.Errorf("lookup reply target: %w", err)
		}
	}

	msg, err := s.appendMessage(ctx, chatID, senderID, req.Text, req.ReplyToID)
	if err != nil {
		return proto.MessageResponse{}, err
	}
	resp := proto.NewMessageResponse(msg)
	s.notifier.MessageSent(ctx, chatID, senderID, resp)
	return resp, nil
}

// EditMessage changes the text of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, userID, chatID, messageID int64, text string) (proto.MessageResponse, error) {
	if _, _, err := s.requireMember(ctx, chatID, userID); err != nil {
		return proto.MessageResponse{}, err
	}
	req := MessageRequest{Text: strings.TrimSpace(text)}
	if err := validate.Struct(req); err != nil {
		return proto.MessageResponse{}, invalid(err)
	}

	msg, err := s.message(ctx, chatID, messageID)
	if err != nil {
		return proto.MessageResponse{}, err
	}
	if msg.SenderID != userID {
		return proto.MessageResponse{}, ErrNotMessageOwner
	}

	updated, err := s.store.UpdateMessageText(ctx, messageID, req.Text)
	if err != nil {
		return proto.MessageResponse{}, fmt.Errorf("edit message: %w", err)
	}
	resp := proto.NewMessageResponse(updated)
	s.notifier.MessageEdited(ctx, chatID, userID, resp)
	return resp, nil
}

// DeleteMessage soft-deletes a message. The sender may always delete; admins may delete
// any message outside direct chats.
func (s *Service) DeleteMessage(ctx context.Context, userID, chatID, messageID int64) (proto.MessageResponse, error) {
	chat, p, err := s.requireMember(ctx, chatID, userID)
	if err != nil {
		return proto.MessageResponse{}, err
	}
	msg, err := s.message(ctx, chatID, messageID)
	if err != nil {
		return proto.MessageResponse{}, err
	}

	moderator := p.Role == store.RoleAdmin && chat.Type != store.ChatTypeDirect
	if msg.SenderID != userID && !moderator {
		return proto.MessageResponse{}, ErrNotMessageOwner
	}

	deleted, err := s.store.SoftDeleteMessage(ctx, messageID, userID)
	if err != nil {
		return proto.MessageResponse{}, fmt.Errorf("delete message: %w", err)
	}
	resp := proto.NewMessageResponse(deleted)
	s.notifier.MessageDeleted(ctx, chatID, userID, resp)
	return resp, nil
}

// message loads a live message of chatID.
func (s *Service) message(ctx context.Context, chatID, messageID int64) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, chatID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.Deleted() {
		return nil, ErrMessageDeleted
	}
	return msg, nil
}

func (s *Service) appendMessage(ctx context.Context, chatID, senderID int64, text string, replyTo *int64) (*store.Message, error) {
	msg := &store.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		ReplyToID: replyTo,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.log.Debug().Int64("chat_id", chatID).Int64("message_id", msg.ID).Int64("sender_id", senderID).Msg("message stored")
	return msg, nil
}
