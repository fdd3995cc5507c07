package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sitewire/collab-app/internal/protocol"
)

// MessageStore manages chat message records.
type MessageStore struct {
	db *sql.DB
}

// Create inserts a canonical chat message. Attachments and the readBy set
// are marshalled to JSONB.
func (s *MessageStore) Create(ctx context.Context, msg *protocol.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("store: marshal attachments: %w", err)
	}
	readBy, err := json.Marshal(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("store: marshal readBy: %w", err)
	}

	const query = `
		INSERT INTO chat_messages (id, chat_room_id, sender_id, sender_name, content, kind, attachments, read_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ChatRoomID,
		msg.SenderID,
		msg.SenderName,
		msg.Content,
		msg.Kind,
		attachments,
		readBy,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// Recent returns up to limit non-deleted messages for the room, newest
// first (the fetch order for "most recent N"; display ordering is the
// caller's concern).
func (s *MessageStore) Recent(ctx context.Context, roomID string, limit int) ([]protocol.Message, error) {
	const query = `
		SELECT id, chat_room_id, sender_id, sender_name, content, kind, attachments, read_by, created_at
		FROM chat_messages
		WHERE chat_room_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]protocol.Message, 0, limit)
	for rows.Next() {
		var (
			msg         protocol.Message
			attachments []byte
			readBy      []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ChatRoomID, &msg.SenderID, &msg.SenderName,
			&msg.Content, &msg.Kind, &attachments, &readBy, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("store: decode attachments: %w", err)
		}
		if err := json.Unmarshal(readBy, &msg.ReadBy); err != nil {
			return nil, fmt.Errorf("store: decode readBy: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead adds the user to the message's readBy set if not already present.
// The set only ever grows.
func (s *MessageStore) MarkRead(ctx context.Context, messageID, userID string) error {
	const query = `
		UPDATE chat_messages
		SET read_by = read_by || to_jsonb($2::text)
		WHERE id = $1 AND NOT read_by ? $2`

	if _, err := s.db.ExecContext(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("store: mark read: %w", err)
	}
	return nil
}
