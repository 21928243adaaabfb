package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/chatline-server/internal/store"
)

const chatColumns = `id, type, title, description, direct_key, created_by, last_message_id, created_at, updated_at`

func scanChat(row rowScanner) (*store.Chat, error) {
	var chat store.Chat
	var directKey sql.NullString
	var lastMessageID sql.NullInt64
	if err := row.Scan(
		&chat.ID,
		&chat.Type,
		&chat.Title,
		&chat.Description,
		&directKey,
		&chat.CreatedBy,
		&lastMessageID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if directKey.Valid {
		chat.DirectKey = &directKey.String
	}
	if lastMessageID.Valid {
		chat.LastMessageID = &lastMessageID.Int64
	}
	return &chat, nil
}

func (s *SQLiteStore) getChat(ctx context.Context, q querier, id int64) (*store.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = ?`
	chat, err := scanChat(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("chat", err)
	}
	return chat, nil
}

// CreateChat inserts a chat together with its initial participants.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat, participants []store.Participant) (*store.Chat, error) {
	var created *store.Chat
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		query := `
			INSERT INTO chats (type, title, description, direct_key, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			chat.Type, chat.Title, chat.Description, chat.DirectKey, chat.CreatedBy, now, now)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		chatID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		for _, p := range participants {
			if err := insertParticipant(ctx, tx, chatID, p.UserID, p.Role, now); err != nil {
				return err
			}
		}

		created, err = s.getChat(ctx, tx, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateDirectChat returns the direct chat for directKey, creating it when missing.
func (s *SQLiteStore) CreateDirectChat(ctx context.Context, directKey string, user1ID, user2ID int64) (*store.Chat, bool, error) {
	var (
		chat    *store.Chat
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + chatColumns + ` FROM chats WHERE direct_key = ?`
		existing, err := scanChat(tx.QueryRowContext(ctx, query, directKey))
		if err == nil {
			chat = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check existing chat: %w", err)
		}

		now := s.now()
		insert := `
			INSERT INTO chats (type, direct_key, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, insert, store.ChatTypeDirect, directKey, user1ID, now, now)
		if err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		chatID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		// Direct chats have no admins.
		if err := insertParticipant(ctx, tx, chatID, user1ID, store.RoleMember, now); err != nil {
			return err
		}
		if err := insertParticipant(ctx, tx, chatID, user2ID, store.RoleMember, now); err != nil {
			return err
		}

		chat, err = s.getChat(ctx, tx, chatID)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}

// GetChatByID retrieves a chat by ID.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id int64) (*store.Chat, error) {
	return s.getChat(ctx, s.db, id)
}

// ListChatsForUser lists chats the user participates in, most recently updated first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID int64) ([]*store.Chat, error) {
	query := `
		SELECT c.id, c.type, c.title, c.description, c.direct_key, c.created_by,
		       c.last_message_id, c.created_at, c.updated_at
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := make([]*store.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// UpdateChatProfile changes title and description.
func (s *SQLiteStore) UpdateChatProfile(ctx context.Context, chatID int64, title, description string) (*store.Chat, error) {
	query := `
		UPDATE chats SET title = ?, description = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, title, description, s.now(), chatID)
	if err != nil {
		return nil, fmt.Errorf("update chat: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("chat: %w", store.ErrNotFound)
	}
	return s.GetChatByID(ctx, chatID)
}

// DeleteChat removes a chat with its participants and messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`DELETE FROM message_seen WHERE message_id IN (SELECT id FROM messages WHERE chat_id = ?)`,
			`DELETE FROM messages WHERE chat_id = ?`,
			`DELETE FROM chat_participants WHERE chat_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
				return fmt.Errorf("delete chat data: %w", err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
		if err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("chat: %w", store.ErrNotFound)
		}
		return nil
	})
}

// AddParticipants adds users with the given role and returns the ids that were new.
func (s *SQLiteStore) AddParticipants(ctx context.Context, chatID int64, userIDs []int64, role store.Role) ([]int64, error) {
	added := make([]int64, 0, len(userIDs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		query := `
			INSERT OR IGNORE INTO chat_participants (chat_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)
		`
		for _, userID := range userIDs {
			result, err := tx.ExecContext(ctx, query, chatID, userID, role, now)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				added = append(added, userID)
			}
		}
		if len(added) > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID); err != nil {
				return fmt.Errorf("touch chat: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveParticipants removes users and returns the ids that actually were members.
func (s *SQLiteStore) RemoveParticipants(ctx context.Context, chatID int64, userIDs []int64) ([]int64, error) {
	removed := make([]int64, 0, len(userIDs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `DELETE FROM chat_participants WHERE chat_id = ? AND user_id = ?`
		for _, userID := range userIDs {
			result, err := tx.ExecContext(ctx, query, chatID, userID)
			if err != nil {
				return fmt.Errorf("delete participant: %w", err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				removed = append(removed, userID)
			}
		}
		if len(removed) > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, s.now(), chatID); err != nil {
				return fmt.Errorf("touch chat: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// GetParticipant returns the membership row of a user in a chat.
func (s *SQLiteStore) GetParticipant(ctx context.Context, chatID, userID int64) (*store.Participant, error) {
	query := `
		SELECT chat_id, user_id, role, joined_at
		FROM chat_participants
		WHERE chat_id = ? AND user_id = ?
	`
	var p store.Participant
	err := s.db.QueryRowContext(ctx, query, chatID, userID).Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt)
	if err != nil {
		return nil, notFound("participant", err)
	}
	return &p, nil
}

// ListParticipants lists the user ids of every chat participant.
func (s *SQLiteStore) ListParticipants(ctx context.Context, chatID int64) ([]int64, error) {
	query := `
		SELECT user_id FROM chat_participants
		WHERE chat_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, userID)
	}
	return members, rows.Err()
}

// ListParticipantDetails lists memberships including roles.
func (s *SQLiteStore) ListParticipantDetails(ctx context.Context, chatID int64) ([]store.Participant, error) {
	query := `
		SELECT chat_id, user_id, role, joined_at
		FROM chat_participants
		WHERE chat_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []store.Participant
	for rows.Next() {
		var p store.Participant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SetParticipantRole changes a participant's role.
func (s *SQLiteStore) SetParticipantRole(ctx context.Context, chatID, userID int64, role store.Role) error {
	query := `UPDATE chat_participants SET role = ? WHERE chat_id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, role, chatID, userID)
	if err != nil {
		return fmt.Errorf("update participant role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("participant: %w", store.ErrNotFound)
	}
	return nil
}

func insertParticipant(ctx context.Context, q querier, chatID, userID int64, role store.Role, joinedAt time.Time) error {
	query := `
		INSERT OR IGNORE INTO chat_participants (chat_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := q.ExecContext(ctx, query, chatID, userID, role, joinedAt); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}
