package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vovakirdan/chatline-server/internal/store"
)

const messageColumns = `id, chat_id, sender_id, text, reply_to_id, edited_at, deleted_by, deleted_at, created_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var replyTo, deletedBy sql.NullInt64
	var editedAt, deletedAt sql.NullTime
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Text,
		&replyTo,
		&editedAt,
		&deletedBy,
		&deletedAt,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		msg.ReplyToID = &replyTo.Int64
	}
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	if deletedBy.Valid {
		msg.DeletedBy = &deletedBy.Int64
	}
	if deletedAt.Valid {
		msg.DeletedAt = &deletedAt.Time
	}
	return &msg, nil
}

func (s *SQLiteStore) getMessage(ctx context.Context, q querier, messageID int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(q.QueryRowContext(ctx, query, messageID))
	if err != nil {
		return nil, notFound("message", err)
	}
	return msg, nil
}

// AppendMessage persists a message and makes it the chat's last message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = s.now()
		}
		query := `
			INSERT INTO messages (chat_id, sender_id, text, reply_to_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query, msg.ChatID, msg.SenderID, msg.Text, msg.ReplyToID, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		update := `UPDATE chats SET last_message_id = ?, updated_at = ? WHERE id = ?`
		res, err := tx.ExecContext(ctx, update, id, msg.CreatedAt, msg.ChatID)
		if err != nil {
			return fmt.Errorf("update last message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("chat: %w", store.ErrNotFound)
		}

		msg.ID = id
		return nil
	})
}

// GetMessage retrieves a message that belongs to chatID.
func (s *SQLiteStore) GetMessage(ctx context.Context, chatID, messageID int64) (*store.Message, error) {
	msg, err := s.getMessage(ctx, s.db, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, fmt.Errorf("message: %w", store.ErrNotFound)
	}
	return msg, nil
}

// ListMessages returns messages of a chat newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	var args []any
	if beforeID != nil {
		query = `SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?`
		args = []any{chatID, *beforeID, limit}
	} else {
		query = `SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ?
			ORDER BY id DESC
			LIMIT ?`
		args = []any{chatID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessageText edits a message body.
func (s *SQLiteStore) UpdateMessageText(ctx context.Context, messageID int64, text string) (*store.Message, error) {
	query := `UPDATE messages SET text = ?, edited_at = ? WHERE id = ? AND deleted_by IS NULL`
	result, err := s.db.ExecContext(ctx, query, text, s.now(), messageID)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("message: %w", store.ErrNotFound)
	}
	return s.getMessage(ctx, s.db, messageID)
}

// SoftDeleteMessage clears a message and moves the chat's last message pointer back if needed.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, messageID, deletedBy int64) (*store.Message, error) {
	var deleted *store.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		msg, err := s.getMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}

		query := `
			UPDATE messages
			SET text = '', reply_to_id = NULL, deleted_by = ?, deleted_at = ?
			WHERE id = ?
		`
		if _, err := tx.ExecContext(ctx, query, deletedBy, s.now(), messageID); err != nil {
			return fmt.Errorf("soft delete message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM message_seen WHERE message_id = ?`, messageID); err != nil {
			return fmt.Errorf("clear seen: %w", err)
		}

		chat, err := s.getChat(ctx, tx, msg.ChatID)
		if err != nil {
			return err
		}
		if chat.LastMessageID != nil && *chat.LastMessageID == messageID {
			var prev sql.NullInt64
			err := tx.QueryRowContext(ctx, `
				SELECT id FROM messages
				WHERE chat_id = ? AND id != ? AND deleted_by IS NULL
				ORDER BY id DESC
				LIMIT 1
			`, msg.ChatID, messageID).Scan(&prev)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("query previous message: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_id = ? WHERE id = ?`, prev, msg.ChatID); err != nil {
				return fmt.Errorf("update last message: %w", err)
			}
		}

		deleted, err = s.getMessage(ctx, tx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// MarkSeen records that userID has seen every message of the chat.
func (s *SQLiteStore) MarkSeen(ctx context.Context, chatID, userID int64) error {
	query := `
		INSERT OR IGNORE INTO message_seen (message_id, user_id, seen_at)
		SELECT id, ?, ? FROM messages
		WHERE chat_id = ? AND deleted_by IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, userID, s.now(), chatID); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// SeenBy lists the users who have seen a message.
func (s *SQLiteStore) SeenBy(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM message_seen WHERE message_id = ? ORDER BY seen_at ASC, user_id ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
