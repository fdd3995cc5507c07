// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server, together with the canonical
// record shapes (messages, topic posts, comments) that the server persists and
// broadcasts. All messages are serialized as JSON and follow a consistent
// envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeChatJoin     = "chat:join"
	TypeChatMessage  = "chat:message"
	TypeChatTyping   = "chat:typing"
	TypeTopicJoin    = "topic:join"
	TypeTopicPost    = "topic:post"
	TypeTopicComment = "topic:comment"
	TypeTopicLike    = "topic:like"
	TypeTopicApprove = "topic:approve"
	TypePing         = "ping"
)

// Server -> Client message types. The room-scoped events reuse the client
// event name (chat:message in is answered by chat:message out, etc.); the
// history, presence, error, and pong types are server-only.
const (
	TypeChatHistory     = "chat:history"
	TypeTopicHistory    = "topic:history"
	TypePresenceOnline  = "presence:online"
	TypePresenceOffline = "presence:offline"
	TypeError           = "error"
	TypePong            = "pong"
)

// Topic post categories.
const (
	CategoryQuality  = "quality"
	CategorySchedule = "schedule"
	CategoryDrawing  = "drawing"
	CategoryOthers   = "others"
)

// ValidCategory reports whether s is one of the allowed topic categories.
func ValidCategory(s string) bool {
	switch s {
	case CategoryQuality, CategorySchedule, CategoryDrawing, CategoryOthers:
		return true
	}
	return false
}

// Message content kinds, derived once at creation time from the attachments.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
)

// ---------------------------------------------------------------------------
// Canonical records
// ---------------------------------------------------------------------------

// Attachment describes a file referenced by a message or topic post. The
// image/file classification happens once when the containing record is
// created and is stored on the record, not recomputed per render.
type Attachment struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// Message is the canonical chat message record. It is created by the server
// on a chat:message event and is immutable afterwards except for readBy
// growth. The Kind field carries the stored text/image/file classification.
type Message struct {
	ID          string       `json:"id"`
	ChatRoomID  string       `json:"chatRoomId"`
	SenderID    string       `json:"senderId"`
	SenderName  string       `json:"senderName"`
	Content     string       `json:"content"`
	Kind        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
	ReadBy      []string     `json:"readBy"`
	CreatedAt   time.Time    `json:"timestamp"`
}

// Comment is an append-only child of a TopicPost.
type Comment struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
}

// TopicPost is the canonical categorized-thread record. Approval fields are
// pointers so an unapproved post serializes them as null: approved == false
// implies approvedBy, approvedAt, and approvalSignature are all unset.
type TopicPost struct {
	ID                string       `json:"id"`
	ChatRoomID        string       `json:"chatRoomId"`
	AuthorID          string       `json:"authorId"`
	AuthorName        string       `json:"authorName"`
	Category          string       `json:"category"`
	Content           string       `json:"content"`
	Attachments       []Attachment `json:"attachments"`
	Comments          []Comment    `json:"comments"`
	Likes             []string     `json:"likes"`
	Approved          bool         `json:"approved"`
	ApprovedBy        *string      `json:"approvedBy"`
	ApprovedAt        *time.Time   `json:"approvedAt"`
	ApprovalSignature *string      `json:"approvalSignature"`
	CreatedAt         time.Time    `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Envelope, used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// ChatJoinMsg is sent by the client to join a chat room. The server answers
// with a chat:history snapshot delivered to the caller only.
type ChatJoinMsg struct {
	Type       string `json:"type"`
	ChatRoomID string `json:"chatRoomId"`
}

// ChatMessageMsg is a chat message draft submitted by the client. The server
// computes the canonical record (id, timestamp, classification) before
// broadcasting.
type ChatMessageMsg struct {
	Type        string       `json:"type"`
	ChatRoomID  string       `json:"chatRoomId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// ChatTypingMsg indicates whether the client is currently typing in a room.
type ChatTypingMsg struct {
	Type       string `json:"type"`
	ChatRoomID string `json:"chatRoomId"`
	IsTyping   bool   `json:"isTyping"`
}

// TopicJoinMsg is sent by the client to join the topic room that shares the
// given chat room's ID.
type TopicJoinMsg struct {
	Type       string `json:"type"`
	ChatRoomID string `json:"chatRoomId"`
}

// TopicPostMsg is a topic post draft submitted by the client.
type TopicPostMsg struct {
	Type        string       `json:"type"`
	ChatRoomID  string       `json:"chatRoomId"`
	Category    string       `json:"category"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// TopicCommentMsg appends a comment to a topic post.
type TopicCommentMsg struct {
	Type    string `json:"type"`
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

// TopicLikeMsg toggles the caller's like on a topic post.
type TopicLikeMsg struct {
	Type   string `json:"type"`
	PostID string `json:"postId"`
}

// TopicApproveMsg toggles the approval state of a topic post. Signature is
// optional opaque path data captured from the approver; an empty string means
// no signature was provided.
type TopicApproveMsg struct {
	Type      string `json:"type"`
	PostID    string `json:"postId"`
	Signature string `json:"signature"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ChatHistoryMsg is the one-shot history snapshot sent to a joining
// connection only. Messages are ordered oldest-first.
type ChatHistoryMsg struct {
	Type       string    `json:"type"`
	ChatRoomID string    `json:"chatRoomId"`
	Messages   []Message `json:"messages"`
}

// ServerChatMessageMsg carries the canonical message record to every
// connection in the room, including the sender.
type ServerChatMessageMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// ServerTypingMsg relays a typing indicator to every connection in the room
// except its origin.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// TopicHistoryMsg is the one-shot topic snapshot sent to a joining
// connection only. Posts are ordered oldest-first.
type TopicHistoryMsg struct {
	Type       string      `json:"type"`
	ChatRoomID string      `json:"chatRoomId"`
	Posts      []TopicPost `json:"posts"`
}

// ServerTopicPostMsg carries the canonical topic post record to the room.
type ServerTopicPostMsg struct {
	Type string    `json:"type"`
	Post TopicPost `json:"post"`
}

// ServerTopicCommentMsg carries a newly appended comment to the post's room.
type ServerTopicCommentMsg struct {
	Type    string  `json:"type"`
	PostID  string  `json:"postId"`
	Comment Comment `json:"comment"`
}

// ServerTopicLikeMsg ships the full resulting like set rather than a delta so
// receivers never need cross-event ordering to converge.
type ServerTopicLikeMsg struct {
	Type   string   `json:"type"`
	PostID string   `json:"postId"`
	Likes  []string `json:"likes"`
}

// ServerTopicApproveMsg announces an approval state transition to the post's
// room. The pointer fields are null whenever Approved is false.
type ServerTopicApproveMsg struct {
	Type              string     `json:"type"`
	PostID            string     `json:"postId"`
	Approved          bool       `json:"approved"`
	ApprovedBy        *string    `json:"approvedBy"`
	ApprovedAt        *time.Time `json:"approvedAt"`
	ApprovalSignature *string    `json:"approvalSignature"`
}

// PresenceMsg announces a user's online/offline transition. It is broadcast
// process-wide, not room-scoped.
type PresenceMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// ErrorMsg is sent by the server to the single originating connection when an
// operation fails. Errors never close the connection.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeChatJoin:
		var m ChatJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatTyping:
		var m ChatTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTopicJoin:
		var m TopicJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTopicPost:
		var m TopicPostMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTopicComment:
		var m TopicCommentMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTopicLike:
		var m TopicLikeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTopicApprove:
		var m TopicApproveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the Server*Msg structs; this function marshals it to JSON,
// injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
