package collab

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sitewire/collab-app/internal/metrics"
	"github.com/sitewire/collab-app/internal/protocol"
	"github.com/sitewire/collab-app/internal/ratelimit"
	"github.com/sitewire/collab-app/internal/rooms"
	"github.com/sitewire/collab-app/internal/ws"
)

// handleTopicJoin adds the connection to the topic room sharing the chat
// room's ID and answers with a post snapshot delivered to the caller only.
func (h *Hub) handleTopicJoin(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.TopicJoinMsg)
	if m.ChatRoomID == "" {
		h.fail(conn, protocol.TypeTopicJoin, "chatRoomId is required")
		return
	}

	h.rooms.Join(conn.ID, m.ChatRoomID, rooms.KindTopic)

	ctx, cancel := h.opContext()
	defer cancel()

	recent, err := h.topics.Recent(ctx, m.ChatRoomID, h.config.HistoryPosts)
	if err != nil {
		log.Printf("[hub] topic history room=%s: %v", m.ChatRoomID, err)
		h.fail(conn, protocol.TypeTopicJoin, "Failed to load topic history")
		return
	}
	reverseInPlace(recent)

	data, err := protocol.NewServerMessage(protocol.TypeTopicHistory, protocol.TopicHistoryMsg{
		ChatRoomID: m.ChatRoomID,
		Posts:      recent,
	})
	if err != nil {
		log.Printf("[hub] build topic history room=%s: %v", m.ChatRoomID, err)
		return
	}

	if err := h.sender.SendMessage(conn.ID, data); err != nil {
		log.Printf("[hub] send topic history conn=%s: %v", conn.ID, err)
	}
}

// handleTopicPost creates a canonical post record, persists it, and
// broadcasts it to the topic room including the author. New posts always
// start unapproved with empty comments and likes.
func (h *Hub) handleTopicPost(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.TopicPostMsg)

	if !h.rooms.IsMember(conn.ID, m.ChatRoomID, rooms.KindTopic) {
		h.fail(conn, protocol.TypeTopicPost, "Join the topic room first")
		return
	}
	if !protocol.ValidCategory(m.Category) {
		h.fail(conn, protocol.TypeTopicPost, "Invalid category")
		return
	}
	if err := validateContent(m.Content, m.Attachments); err != nil {
		h.fail(conn, protocol.TypeTopicPost, err.Error())
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	if !h.allow(ctx, conn, ratelimit.RulePost) {
		h.fail(conn, protocol.TypeTopicPost, "Too many posts, slow down")
		return
	}

	start := time.Now()

	record := protocol.TopicPost{
		ID:          uuid.New().String(),
		ChatRoomID:  m.ChatRoomID,
		AuthorID:    conn.Identity.ID,
		AuthorName:  conn.Identity.DisplayLabel,
		Category:    m.Category,
		Content:     m.Content,
		Attachments: m.Attachments,
		Comments:    []protocol.Comment{},
		Likes:       []string{},
		CreatedAt:   start.UTC(),
	}
	if record.Attachments == nil {
		record.Attachments = []protocol.Attachment{}
	}

	if err := h.topics.Create(ctx, &record); err != nil {
		log.Printf("[hub] persist post room=%s: %v", m.ChatRoomID, err)
		h.fail(conn, protocol.TypeTopicPost, "Failed to create post")
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTopicPost, protocol.ServerTopicPostMsg{
		Post: record,
	})
	if err != nil {
		log.Printf("[hub] build topic post room=%s: %v", m.ChatRoomID, err)
		return
	}

	h.broadcastRoom(record.ChatRoomID, rooms.KindTopic, data)
	h.publishTopic(record.ChatRoomID, data)

	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
}

// handleTopicComment appends a comment to an existing post and broadcasts
// it to the post's topic room. The post's room is resolved from the post
// itself, so the commenter does not name a room.
func (h *Hub) handleTopicComment(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.TopicCommentMsg)

	if err := validateContent(m.Content, nil); err != nil {
		h.fail(conn, protocol.TypeTopicComment, err.Error())
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	if !h.allow(ctx, conn, ratelimit.RulePost) {
		h.fail(conn, protocol.TypeTopicComment, "Too many comments, slow down")
		return
	}

	comment := protocol.Comment{
		ID:         uuid.New().String(),
		AuthorID:   conn.Identity.ID,
		AuthorName: conn.Identity.DisplayLabel,
		Content:    m.Content,
		CreatedAt:  time.Now().UTC(),
	}

	roomID, err := h.topics.AppendComment(ctx, m.PostID, comment)
	if err != nil {
		log.Printf("[hub] append comment post=%s: %v", m.PostID, err)
		h.fail(conn, protocol.TypeTopicComment, "Failed to add comment")
		return
	}
	if roomID == "" {
		h.fail(conn, protocol.TypeTopicComment, "Post not found")
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTopicComment, protocol.ServerTopicCommentMsg{
		PostID:  m.PostID,
		Comment: comment,
	})
	if err != nil {
		log.Printf("[hub] build comment event post=%s: %v", m.PostID, err)
		return
	}

	h.broadcastRoom(roomID, rooms.KindTopic, data)
	h.publishTopic(roomID, data)
}

// handleTopicLike toggles the caller's like on a post and broadcasts the
// full resulting like set, never a delta, so receivers converge regardless
// of event ordering.
func (h *Hub) handleTopicLike(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.TopicLikeMsg)

	ctx, cancel := h.opContext()
	defer cancel()

	roomID, likes, err := h.topics.ToggleLike(ctx, m.PostID, conn.Identity.ID)
	if err != nil {
		log.Printf("[hub] toggle like post=%s: %v", m.PostID, err)
		h.fail(conn, protocol.TypeTopicLike, "Failed to update like")
		return
	}
	if roomID == "" {
		h.fail(conn, protocol.TypeTopicLike, "Post not found")
		return
	}
	if likes == nil {
		likes = []string{}
	}

	data, err := protocol.NewServerMessage(protocol.TypeTopicLike, protocol.ServerTopicLikeMsg{
		PostID: m.PostID,
		Likes:  likes,
	})
	if err != nil {
		log.Printf("[hub] build like event post=%s: %v", m.PostID, err)
		return
	}

	h.broadcastRoom(roomID, rooms.KindTopic, data)
	h.publishTopic(roomID, data)
}

// handleTopicApprove toggles a post's approval state. Only admins may
// approve; any admin can also un-approve, which clears every approval
// field in the same transition. The read-modify-write happens under a row
// lock in the store so concurrent toggles serialize.
func (h *Hub) handleTopicApprove(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.TopicApproveMsg)

	if !conn.Identity.IsAdmin() {
		h.fail(conn, protocol.TypeTopicApprove, "Only admins can approve posts")
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	post, err := h.topics.ToggleApproval(ctx, m.PostID, conn.Identity.ID, m.Signature, time.Now().UTC())
	if err != nil {
		log.Printf("[hub] toggle approval post=%s: %v", m.PostID, err)
		h.fail(conn, protocol.TypeTopicApprove, "Failed to update approval")
		return
	}
	if post == nil {
		h.fail(conn, protocol.TypeTopicApprove, "Post not found")
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTopicApprove, protocol.ServerTopicApproveMsg{
		PostID:            post.ID,
		Approved:          post.Approved,
		ApprovedBy:        post.ApprovedBy,
		ApprovedAt:        post.ApprovedAt,
		ApprovalSignature: post.ApprovalSignature,
	})
	if err != nil {
		log.Printf("[hub] build approval event post=%s: %v", m.PostID, err)
		return
	}

	h.broadcastRoom(post.ChatRoomID, rooms.KindTopic, data)
	h.publishTopic(post.ChatRoomID, data)
}
