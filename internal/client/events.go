package client

import (
	"time"

	"github.com/sitewire/collab-app/internal/protocol"
)

// Event is the sum type delivered on subscription channels. Exactly one
// concrete event struct exists per server event, plus the two lifecycle
// events the controller synthesizes locally.
type Event interface {
	event()
}

// ConnectedEvent fires after a dial completes and the read loop starts.
type ConnectedEvent struct{}

// DisconnectedEvent fires when the connection drops. Err is nil for a
// deliberate Disconnect and carries the read error otherwise.
type DisconnectedEvent struct {
	Err error
}

// ChatHistoryEvent carries the oldest-first snapshot answered to chat:join.
type ChatHistoryEvent struct {
	ChatRoomID string
	Messages   []protocol.Message
}

// ChatMessageEvent carries a canonical message broadcast to the room. The
// caller's own messages come back through here too; that echo is the
// delivery confirmation.
type ChatMessageEvent struct {
	Message protocol.Message
}

// TypingEvent carries another member's typing indicator.
type TypingEvent struct {
	UserID   string
	UserName string
	IsTyping bool
}

// TopicHistoryEvent carries the oldest-first snapshot answered to topic:join.
type TopicHistoryEvent struct {
	ChatRoomID string
	Posts      []protocol.TopicPost
}

// TopicPostEvent carries a new canonical post broadcast to the topic room.
type TopicPostEvent struct {
	Post protocol.TopicPost
}

// TopicCommentEvent carries a comment appended to a post.
type TopicCommentEvent struct {
	PostID  string
	Comment protocol.Comment
}

// TopicLikeEvent carries the full like set after a toggle, never a delta.
type TopicLikeEvent struct {
	PostID string
	Likes  []string
}

// TopicApproveEvent carries an approval state transition. The pointer
// fields are nil whenever Approved is false.
type TopicApproveEvent struct {
	PostID            string
	Approved          bool
	ApprovedBy        *string
	ApprovedAt        *time.Time
	ApprovalSignature *string
}

// PresenceEvent carries a user's online/offline transition.
type PresenceEvent struct {
	UserID string
	Online bool
}

// ErrorEvent carries a server-side operation failure. Errors never close
// the connection.
type ErrorEvent struct {
	Message string
}

func (ConnectedEvent) event()    {}
func (DisconnectedEvent) event() {}
func (ChatHistoryEvent) event()  {}
func (ChatMessageEvent) event()  {}
func (TypingEvent) event()       {}
func (TopicHistoryEvent) event() {}
func (TopicPostEvent) event()    {}
func (TopicCommentEvent) event() {}
func (TopicLikeEvent) event()    {}
func (TopicApproveEvent) event() {}
func (PresenceEvent) event()     {}
func (ErrorEvent) event()        {}
