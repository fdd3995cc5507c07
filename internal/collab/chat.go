package collab

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitewire/collab-app/internal/metrics"
	"github.com/sitewire/collab-app/internal/protocol"
	"github.com/sitewire/collab-app/internal/ratelimit"
	"github.com/sitewire/collab-app/internal/rooms"
	"github.com/sitewire/collab-app/internal/ws"
)

// handleChatJoin adds the connection to the chat room and answers with a
// history snapshot delivered to the caller only. Rejoining an already-joined
// room re-sends the snapshot.
func (h *Hub) handleChatJoin(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.ChatJoinMsg)
	if m.ChatRoomID == "" {
		h.fail(conn, protocol.TypeChatJoin, "chatRoomId is required")
		return
	}

	h.rooms.Join(conn.ID, m.ChatRoomID, rooms.KindChat)

	ctx, cancel := h.opContext()
	defer cancel()

	// Fetch newest-first, then flip so the client renders oldest-first.
	recent, err := h.messages.Recent(ctx, m.ChatRoomID, h.config.HistoryMessages)
	if err != nil {
		log.Printf("[hub] chat history room=%s: %v", m.ChatRoomID, err)
		h.fail(conn, protocol.TypeChatJoin, "Failed to load chat history")
		return
	}
	reverseInPlace(recent)

	// Opening the room counts as reading everything in the snapshot.
	userID := conn.Identity.ID
	for i := range recent {
		if containsString(recent[i].ReadBy, userID) {
			continue
		}
		if err := h.messages.MarkRead(ctx, recent[i].ID, userID); err != nil {
			log.Printf("[hub] mark read msg=%s user=%s: %v", recent[i].ID, userID, err)
			continue
		}
		recent[i].ReadBy = append(recent[i].ReadBy, userID)
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatHistory, protocol.ChatHistoryMsg{
		ChatRoomID: m.ChatRoomID,
		Messages:   recent,
	})
	if err != nil {
		log.Printf("[hub] build chat history room=%s: %v", m.ChatRoomID, err)
		return
	}

	if err := h.sender.SendMessage(conn.ID, data); err != nil {
		log.Printf("[hub] send chat history conn=%s: %v", conn.ID, err)
	}
}

// handleChatMessage turns the client's draft into the canonical record,
// persists it, and broadcasts it to the whole room including the sender. The
// sender's own copy coming back over the wire is the delivery confirmation.
func (h *Hub) handleChatMessage(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.ChatMessageMsg)

	if !h.rooms.IsMember(conn.ID, m.ChatRoomID, rooms.KindChat) {
		h.fail(conn, protocol.TypeChatMessage, "Join the chat room first")
		return
	}
	if err := validateContent(m.Content, m.Attachments); err != nil {
		h.fail(conn, protocol.TypeChatMessage, err.Error())
		return
	}

	ctx, cancel := h.opContext()
	defer cancel()

	if !h.allow(ctx, conn, ratelimit.RuleMessage) {
		h.fail(conn, protocol.TypeChatMessage, "Too many messages, slow down")
		return
	}

	start := time.Now()

	// The server owns the canonical fields: ID, timestamp, sender identity,
	// and the one-time image/file classification.
	record := protocol.Message{
		ID:          uuid.New().String(),
		ChatRoomID:  m.ChatRoomID,
		SenderID:    conn.Identity.ID,
		SenderName:  conn.Identity.DisplayLabel,
		Content:     m.Content,
		Kind:        classifyKind(m.Attachments),
		Attachments: m.Attachments,
		ReadBy:      []string{conn.Identity.ID},
		CreatedAt:   start.UTC(),
	}
	if record.Attachments == nil {
		record.Attachments = []protocol.Attachment{}
	}

	if err := h.messages.Create(ctx, &record); err != nil {
		log.Printf("[hub] persist message room=%s: %v", m.ChatRoomID, err)
		h.fail(conn, protocol.TypeChatMessage, "Failed to send message")
		return
	}

	// Room list summary. Best effort: a stale summary never blocks delivery.
	summary := lastMessageSummary(record.Content, record.Attachments)
	if err := h.roomMeta.UpdateLastMessage(ctx, record.ChatRoomID, record.SenderID, summary, record.CreatedAt); err != nil {
		log.Printf("[hub] update last message room=%s: %v", record.ChatRoomID, err)
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatMessage, protocol.ServerChatMessageMsg{
		Message: record,
	})
	if err != nil {
		log.Printf("[hub] build chat message room=%s: %v", m.ChatRoomID, err)
		return
	}

	h.broadcastRoom(record.ChatRoomID, rooms.KindChat, data)
	h.publishChat(record.ChatRoomID, data)

	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
}

// handleChatTyping relays a typing indicator to everyone in the room except
// its origin. Indicators are ephemeral: nothing is persisted and a stale
// indicator is not an error, so non-members are dropped silently.
func (h *Hub) handleChatTyping(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.ChatTypingMsg)

	if !h.rooms.IsMember(conn.ID, m.ChatRoomID, rooms.KindChat) {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatTyping, protocol.ServerTypingMsg{
		UserID:   conn.Identity.ID,
		UserName: conn.Identity.DisplayLabel,
		IsTyping: m.IsTyping,
	})
	if err != nil {
		log.Printf("[hub] build typing event room=%s: %v", m.ChatRoomID, err)
		return
	}

	h.broadcastRoomExcept(m.ChatRoomID, rooms.KindChat, conn.ID, data)
}

// classifyKind derives the stored message kind from the attachments. The
// first attachment decides: image mime types make the whole message an
// image, anything else a file, no attachments means plain text.
func classifyKind(attachments []protocol.Attachment) string {
	if len(attachments) == 0 {
		return protocol.MessageText
	}
	if strings.HasPrefix(attachments[0].MimeType, "image/") {
		return protocol.MessageImage
	}
	return protocol.MessageFile
}

// lastMessageSummary builds the room list preview line. Attachment-only
// messages show a paperclip placeholder with the first file's name.
func lastMessageSummary(content string, attachments []protocol.Attachment) string {
	if content != "" {
		return content
	}
	if len(attachments) > 0 {
		return "📎 " + attachments[0].FileName
	}
	return ""
}

// reverseInPlace flips a slice so a newest-first fetch becomes the
// oldest-first display order.
func reverseInPlace[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
