package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RoomStore maintains the denormalized last-message summary on chat rooms.
// Room records themselves are owned by the project CRUD service; the core
// only updates the summary fields.
type RoomStore struct {
	db *sql.DB
}

// UpdateLastMessage records the room's most recent message summary. Updating
// a room the CRUD service has not created yet is a no-op, matching the
// best-effort semantics of the summary.
func (s *RoomStore) UpdateLastMessage(ctx context.Context, roomID, senderID, content string, at time.Time) error {
	const query = `
		UPDATE chat_rooms
		SET last_sender_id = $2, last_message = $3, last_message_at = $4, updated_at = NOW()
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, roomID, senderID, content, at); err != nil {
		return fmt.Errorf("store: update last message: %w", err)
	}
	return nil
}
