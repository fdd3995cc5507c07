// Package collab implements the room event semantics of the collaboration
// server: chat rooms with history snapshots, categorized topic threads with
// comments, likes, and admin approval, and process-wide presence. The Hub
// wires the membership table, presence registry, and persistence stores to
// the WebSocket dispatcher.
package collab

import (
	"context"
	"log"
	"time"

	"github.com/sitewire/collab-app/internal/metrics"
	"github.com/sitewire/collab-app/internal/presence"
	"github.com/sitewire/collab-app/internal/protocol"
	"github.com/sitewire/collab-app/internal/ratelimit"
	"github.com/sitewire/collab-app/internal/rooms"
	"github.com/sitewire/collab-app/internal/ws"
)

// MessageStore persists canonical chat messages.
type MessageStore interface {
	Create(ctx context.Context, msg *protocol.Message) error
	Recent(ctx context.Context, roomID string, limit int) ([]protocol.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) error
}

// TopicStore persists canonical topic posts with their embedded comments and
// likes.
type TopicStore interface {
	Create(ctx context.Context, post *protocol.TopicPost) error
	Recent(ctx context.Context, roomID string, limit int) ([]protocol.TopicPost, error)
	AppendComment(ctx context.Context, postID string, comment protocol.Comment) (string, error)
	ToggleLike(ctx context.Context, postID, userID string) (string, []string, error)
	ToggleApproval(ctx context.Context, postID, approverID, signature string, now time.Time) (*protocol.TopicPost, error)
}

// RoomStore maintains the chat room's denormalized last-message summary.
type RoomStore interface {
	UpdateLastMessage(ctx context.Context, roomID, senderID, content string, at time.Time) error
}

// Sender delivers frames to connections. Implemented by ws.Server.
type Sender interface {
	SendMessage(connID string, data []byte) error
	Broadcast(data []byte)
}

// Limiter throttles per-identity event throughput. Implemented by
// ratelimit.Limiter; nil disables throttling.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// EventFeed publishes canonical records to the outbound messaging feed for
// downstream consumers. Implemented by messaging.NATSClient; nil disables
// the feed.
type EventFeed interface {
	PublishChatEvent(roomID string, data []byte) error
	PublishTopicEvent(roomID string, data []byte) error
	PublishPresence(data []byte) error
}

// Config holds hub tuning parameters.
type Config struct {
	HistoryMessages int           // chat:join snapshot size (default: 50)
	HistoryPosts    int           // topic:join snapshot size (default: 20)
	OpTimeout       time.Duration // per-event persistence deadline (default: 5s)
}

// DefaultConfig returns the standard snapshot sizes and timeouts.
func DefaultConfig() Config {
	return Config{
		HistoryMessages: 50,
		HistoryPosts:    20,
		OpTimeout:       5 * time.Second,
	}
}

// Hub owns the room event semantics. One Hub serves the whole process; all
// state it touches (membership, presence) is process-local, and all records
// flow through the stores before any broadcast.
type Hub struct {
	config   Config
	sender   Sender
	rooms    *rooms.Table
	presence *presence.Registry
	messages MessageStore
	topics   TopicStore
	roomMeta RoomStore
	limiter  Limiter
	feed     EventFeed

	// sendError is injected by Register so error events share the
	// dispatcher's encoding path.
	sendError func(conn *ws.Connection, message string)
}

// NewHub creates a Hub. The limiter and feed may be nil.
func NewHub(config Config, sender Sender, messages MessageStore, topics TopicStore, roomMeta RoomStore, limiter Limiter, feed EventFeed) *Hub {
	return &Hub{
		config:   config,
		sender:   sender,
		rooms:    rooms.NewTable(),
		presence: presence.NewRegistry(),
		messages: messages,
		topics:   topics,
		roomMeta: roomMeta,
		limiter:  limiter,
		feed:     feed,
	}
}

// Register wires the hub's event handlers into the dispatcher.
func (h *Hub) Register(d *ws.MessageDispatcher) {
	h.sendError = d.SendError

	d.Register(protocol.TypeChatJoin, h.handleChatJoin)
	d.Register(protocol.TypeChatMessage, h.handleChatMessage)
	d.Register(protocol.TypeChatTyping, h.handleChatTyping)
	d.Register(protocol.TypeTopicJoin, h.handleTopicJoin)
	d.Register(protocol.TypeTopicPost, h.handleTopicPost)
	d.Register(protocol.TypeTopicComment, h.handleTopicComment)
	d.Register(protocol.TypeTopicLike, h.handleTopicLike)
	d.Register(protocol.TypeTopicApprove, h.handleTopicApprove)
}

// HandleConnect registers the connection's identity with the presence
// registry. The online event fires only on the user's 0->1 connection
// transition; a second device coming up is silent.
func (h *Hub) HandleConnect(conn *ws.Connection) {
	userID := conn.Identity.ID
	if !h.presence.Register(userID, conn.ID) {
		return
	}

	metrics.OnlineUsers.Set(float64(h.presence.Count()))
	h.announcePresence(protocol.TypePresenceOnline, userID)
}

// HandleDisconnect clears the connection's room memberships and deregisters
// it from presence. The offline event fires only when the user's last
// connection is gone.
func (h *Hub) HandleDisconnect(conn *ws.Connection) {
	h.rooms.LeaveAll(conn.ID)

	userID := conn.Identity.ID
	if !h.presence.Deregister(userID, conn.ID) {
		return
	}

	metrics.OnlineUsers.Set(float64(h.presence.Count()))
	h.announcePresence(protocol.TypePresenceOffline, userID)
}

// announcePresence broadcasts an online/offline transition to every
// connection in the process and mirrors it onto the outbound feed.
func (h *Hub) announcePresence(msgType, userID string) {
	data, err := protocol.NewServerMessage(msgType, protocol.PresenceMsg{UserID: userID})
	if err != nil {
		log.Printf("[hub] build presence event: %v", err)
		return
	}

	h.sender.Broadcast(data)
	h.publishPresence(data)
}

// broadcastRoom sends a frame to every connection in the (roomID, kind)
// room. Per-connection send failures are logged and skipped; the failed
// connection is cleaned up by its own read path.
func (h *Hub) broadcastRoom(roomID string, kind rooms.Kind, data []byte) {
	members := h.rooms.Members(roomID, kind)
	metrics.RoomFanout.Observe(float64(len(members)))

	for _, connID := range members {
		if err := h.sender.SendMessage(connID, data); err != nil {
			log.Printf("[hub] room send conn=%s room=%s: %v", connID, roomID, err)
		}
	}
}

// broadcastRoomExcept is broadcastRoom minus one connection, used for typing
// indicators which never echo to their origin.
func (h *Hub) broadcastRoomExcept(roomID string, kind rooms.Kind, exceptConnID string, data []byte) {
	for _, connID := range h.rooms.Members(roomID, kind) {
		if connID == exceptConnID {
			continue
		}
		if err := h.sender.SendMessage(connID, data); err != nil {
			log.Printf("[hub] room send conn=%s room=%s: %v", connID, roomID, err)
		}
	}
}

// fail sends an error event to the originating connection only. Errors never
// close the connection.
func (h *Hub) fail(conn *ws.Connection, event, message string) {
	metrics.ErrorsTotal.WithLabelValues(event).Inc()
	if h.sendError != nil {
		h.sendError(conn, message)
	}
}

// allow applies a rate limit rule to the connection's identity. A nil
// limiter always allows.
func (h *Hub) allow(ctx context.Context, conn *ws.Connection, rule ratelimit.Rule) bool {
	if h.limiter == nil {
		return true
	}
	ok, _ := h.limiter.Allow(ctx, conn.Identity.ID, rule)
	return ok
}

// opContext returns the bounded context used for persistence during event
// handling.
func (h *Hub) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.config.OpTimeout)
}

func (h *Hub) publishChat(roomID string, data []byte) {
	if h.feed == nil {
		return
	}
	if err := h.feed.PublishChatEvent(roomID, data); err != nil {
		log.Printf("[hub] feed publish chat room=%s: %v", roomID, err)
	}
}

func (h *Hub) publishTopic(roomID string, data []byte) {
	if h.feed == nil {
		return
	}
	if err := h.feed.PublishTopicEvent(roomID, data); err != nil {
		log.Printf("[hub] feed publish topic room=%s: %v", roomID, err)
	}
}

func (h *Hub) publishPresence(data []byte) {
	if h.feed == nil {
		return
	}
	if err := h.feed.PublishPresence(data); err != nil {
		log.Printf("[hub] feed publish presence: %v", err)
	}
}
