package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sitewire/collab-app/internal/protocol"
)

// TopicStore manages topic post records. Comments, likes, and attachments
// live on the post row as JSONB; comments are append-only and never
// independently addressed.
type TopicStore struct {
	db *sql.DB
}

const postColumns = `id, chat_room_id, author_id, author_name, category, content,
		attachments, comments, likes, approved, approved_by, approved_at, approval_signature, created_at`

// Create inserts a canonical topic post. New posts start unapproved with
// empty comments and likes.
func (s *TopicStore) Create(ctx context.Context, post *protocol.TopicPost) error {
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return fmt.Errorf("store: marshal attachments: %w", err)
	}
	comments, err := json.Marshal(post.Comments)
	if err != nil {
		return fmt.Errorf("store: marshal comments: %w", err)
	}
	likes, err := json.Marshal(post.Likes)
	if err != nil {
		return fmt.Errorf("store: marshal likes: %w", err)
	}

	const query = `
		INSERT INTO topic_posts (id, chat_room_id, author_id, author_name, category, content,
			attachments, comments, likes, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.ExecContext(ctx, query,
		post.ID,
		post.ChatRoomID,
		post.AuthorID,
		post.AuthorName,
		post.Category,
		post.Content,
		attachments,
		comments,
		likes,
		post.Approved,
		post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert post: %w", err)
	}
	return nil
}

// ToggleApproval flips the post's approval state inside a single
// transaction. The row is locked for the read-modify-write so two admins
// toggling concurrently serialize instead of both observing the same prior
// state. Returns the updated post, or nil if the post does not exist.
func (s *TopicStore) ToggleApproval(ctx context.Context, postID, approverID, signature string, now time.Time) (*protocol.TopicPost, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin toggle approval: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + postColumns + ` FROM topic_posts WHERE id = $1 AND NOT is_deleted FOR UPDATE`
	post, err := scanPost(tx.QueryRowContext(ctx, query, postID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: select post for approval: %w", err)
	}

	applyApprovalToggle(post, approverID, signature, now)

	const update = `
		UPDATE topic_posts
		SET approved = $2, approved_by = $3, approved_at = $4, approval_signature = $5
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		post.ID, post.Approved, post.ApprovedBy, post.ApprovedAt, post.ApprovalSignature); err != nil {
		return nil, fmt.Errorf("store: update approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit toggle approval: %w", err)
	}
	return post, nil
}

// Recent returns up to limit non-deleted posts for the room, newest first.
func (s *TopicStore) Recent(ctx context.Context, roomID string, limit int) ([]protocol.TopicPost, error) {
	query := `SELECT ` + postColumns + `
		FROM topic_posts
		WHERE chat_room_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent posts: %w", err)
	}
	defer rows.Close()

	posts := make([]protocol.TopicPost, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate posts: %w", err)
	}
	return posts, nil
}

// AppendComment atomically appends a comment to the post's comment array.
// It returns the post's room ID for broadcast addressing, or empty string if
// the post does not exist.
func (s *TopicStore) AppendComment(ctx context.Context, postID string, comment protocol.Comment) (string, error) {
	encoded, err := json.Marshal(comment)
	if err != nil {
		return "", fmt.Errorf("store: marshal comment: %w", err)
	}

	const query = `
		UPDATE topic_posts
		SET comments = comments || $2::jsonb
		WHERE id = $1 AND NOT is_deleted
		RETURNING chat_room_id`

	var roomID string
	err = s.db.QueryRowContext(ctx, query, postID, encoded).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: append comment: %w", err)
	}
	return roomID, nil
}

// ToggleLike flips the user's membership in the post's like set inside a
// single transaction and returns the room ID and the full resulting set.
// An empty room ID means the post does not exist.
func (s *TopicStore) ToggleLike(ctx context.Context, postID, userID string) (string, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("store: begin toggle like: %w", err)
	}
	defer tx.Rollback()

	const selectQuery = `
		SELECT chat_room_id, likes FROM topic_posts
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE`

	var (
		roomID  string
		rawLike []byte
	)
	err = tx.QueryRowContext(ctx, selectQuery, postID).Scan(&roomID, &rawLike)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("store: select likes: %w", err)
	}

	var likes []string
	if err := json.Unmarshal(rawLike, &likes); err != nil {
		return "", nil, fmt.Errorf("store: decode likes: %w", err)
	}

	likes = toggleLikes(likes, userID)

	encoded, err := json.Marshal(likes)
	if err != nil {
		return "", nil, fmt.Errorf("store: marshal likes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE topic_posts SET likes = $2 WHERE id = $1`, postID, encoded); err != nil {
		return "", nil, fmt.Errorf("store: update likes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("store: commit toggle like: %w", err)
	}
	return roomID, likes, nil
}

// applyApprovalToggle flips the post between its two approval states.
// Approving records who, when, and the optional signature; un-approving
// clears all three so approved == false always means the pointer fields
// are nil.
func applyApprovalToggle(post *protocol.TopicPost, approverID, signature string, now time.Time) {
	if post.Approved {
		post.Approved = false
		post.ApprovedBy = nil
		post.ApprovedAt = nil
		post.ApprovalSignature = nil
		return
	}

	post.Approved = true
	post.ApprovedBy = &approverID
	at := now
	post.ApprovedAt = &at
	if signature != "" {
		post.ApprovalSignature = &signature
	} else {
		post.ApprovalSignature = nil
	}
}

// toggleLikes returns the like set with userID removed if present, added if
// absent. Order of other entries is preserved.
func toggleLikes(likes []string, userID string) []string {
	for i, id := range likes {
		if id == userID {
			return append(likes[:i], likes[i+1:]...)
		}
	}
	return append(likes, userID)
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanPost.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPost decodes one topic post row including its JSONB columns.
func scanPost(row rowScanner) (*protocol.TopicPost, error) {
	var (
		post        protocol.TopicPost
		attachments []byte
		comments    []byte
		likes       []byte
	)
	err := row.Scan(&post.ID, &post.ChatRoomID, &post.AuthorID, &post.AuthorName,
		&post.Category, &post.Content, &attachments, &comments, &likes,
		&post.Approved, &post.ApprovedBy, &post.ApprovedAt, &post.ApprovalSignature,
		&post.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &post.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if err := json.Unmarshal(comments, &post.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	if err := json.Unmarshal(likes, &post.Likes); err != nil {
		return nil, fmt.Errorf("decode likes: %w", err)
	}
	return &post, nil
}
