// Package client provides the device-side connection controller for the
// collaboration server. It dials with gobwas/ws (the same library the server
// uses), fans incoming events out to subscribers as typed structs, and
// exposes the reconnect behavior a mobile device needs when its network path
// changes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/sitewire/collab-app/internal/protocol"
)

// TokenProvider returns the current bearer credential. It is called fresh on
// every dial so a reconnect after token refresh picks up the new credential.
// An empty string connects anonymously.
type TokenProvider func() (string, error)

// Config holds controller settings.
type Config struct {
	URL         string        // ws://host:port/ws
	Token       TokenProvider // nil connects anonymously
	DialTimeout time.Duration // per-dial deadline (default: 10s)
	EventBuffer int           // subscription channel capacity (default: 64)
}

// Controller manages a single logical connection to the server. Connect
// attempts made while one is already in flight collapse into that attempt
// instead of racing a second dial.
//
// Reconnect is disconnect-then-connect: frames already in flight from the
// old connection may still be read and delivered before the old read loop
// observes the close. Subscribers that care should treat events arriving
// around a reconnect as belonging to either connection.
type Controller struct {
	config Config

	mu           sync.Mutex
	conn         net.Conn
	connected    bool
	isConnecting bool
	done         chan struct{} // closed to stop the current read loop

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates a Controller. No connection is made until Connect.
func New(config Config) *Controller {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	return &Controller{
		config: config,
		subs:   make(map[chan Event]struct{}),
	}
}

// Connect dials the server. If the controller is already connected or a dial
// is in flight, Connect returns immediately without starting another.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected || c.isConnecting {
		c.mu.Unlock()
		return nil
	}
	c.isConnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isConnecting = false
		c.mu.Unlock()
	}()

	dialURL, err := c.dialURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	conn, _, _, err := ws.Dial(dialCtx, dialURL)
	if err != nil {
		return fmt.Errorf("client: dial: %w", err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)

	c.emit(ConnectedEvent{})
	return nil
}

// dialURL builds the connect URL, attaching a freshly read token when a
// provider is configured.
func (c *Controller) dialURL() (string, error) {
	if c.config.Token == nil {
		return c.config.URL, nil
	}

	token, err := c.config.Token()
	if err != nil {
		return "", fmt.Errorf("client: read token: %w", err)
	}
	if token == "" {
		return c.config.URL, nil
	}

	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Disconnect closes the current connection. Calling it while disconnected is
// a no-op.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	done := c.done
	c.conn = nil
	c.done = nil
	c.mu.Unlock()

	close(done)
	_ = conn.Close()

	c.emit(DisconnectedEvent{})
}

// Reconnect tears down the current connection and dials again. The token is
// re-read by the dial, so a refreshed credential takes effect here.
func (c *Controller) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// Connected reports whether the controller currently holds a live connection.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe returns a channel of typed events and a cancel function. The
// cancel function is idempotent; after it runs the channel is closed and no
// further events are delivered. Events are dropped, not blocked on, when a
// subscriber falls behind.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, c.config.EventBuffer)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// emit delivers an event to every subscriber without blocking the caller.
func (c *Controller) emit(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[client] subscriber full, dropping %T", ev)
		}
	}
}

// ---------------------------------------------------------------------------
// Typed operations
// ---------------------------------------------------------------------------

// JoinChat joins a chat room. The server answers with a ChatHistoryEvent.
func (c *Controller) JoinChat(roomID string) error {
	return c.send(protocol.ChatJoinMsg{Type: protocol.TypeChatJoin, ChatRoomID: roomID})
}

// SendChatMessage submits a message draft. The canonical record comes back
// as a ChatMessageEvent.
func (c *Controller) SendChatMessage(roomID, content string, attachments []protocol.Attachment) error {
	return c.send(protocol.ChatMessageMsg{
		Type:        protocol.TypeChatMessage,
		ChatRoomID:  roomID,
		Content:     content,
		Attachments: attachments,
	})
}

// SendTyping updates the caller's typing indicator in the room.
func (c *Controller) SendTyping(roomID string, isTyping bool) error {
	return c.send(protocol.ChatTypingMsg{
		Type:       protocol.TypeChatTyping,
		ChatRoomID: roomID,
		IsTyping:   isTyping,
	})
}

// JoinTopic joins the topic room for the given chat room ID. The server
// answers with a TopicHistoryEvent.
func (c *Controller) JoinTopic(roomID string) error {
	return c.send(protocol.TopicJoinMsg{Type: protocol.TypeTopicJoin, ChatRoomID: roomID})
}

// CreatePost submits a topic post draft.
func (c *Controller) CreatePost(roomID, category, content string, attachments []protocol.Attachment) error {
	return c.send(protocol.TopicPostMsg{
		Type:        protocol.TypeTopicPost,
		ChatRoomID:  roomID,
		Category:    category,
		Content:     content,
		Attachments: attachments,
	})
}

// AddComment appends a comment to a post.
func (c *Controller) AddComment(postID, content string) error {
	return c.send(protocol.TopicCommentMsg{
		Type:    protocol.TypeTopicComment,
		PostID:  postID,
		Content: content,
	})
}

// ToggleLike flips the caller's like on a post.
func (c *Controller) ToggleLike(postID string) error {
	return c.send(protocol.TopicLikeMsg{Type: protocol.TypeTopicLike, PostID: postID})
}

// Approve toggles a post's approval state. Admin-only on the server side;
// the optional signature is opaque path data captured on the approver's
// screen.
func (c *Controller) Approve(postID, signature string) error {
	return c.send(protocol.TopicApproveMsg{
		Type:      protocol.TypeTopicApprove,
		PostID:    postID,
		Signature: signature,
	})
}

// Ping sends a keepalive ping.
func (c *Controller) Ping() error {
	return c.send(protocol.PingMsg{Type: protocol.TypePing})
}

// send marshals and writes one frame. When disconnected the frame is logged
// and dropped rather than queued; room events are only meaningful on a live
// connection where the server knows the membership.
func (c *Controller) send(msg interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		log.Printf("[client] not connected, dropping %T", msg)
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("client: encode %T: %w", msg, err)
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, data); err != nil {
		return fmt.Errorf("client: write %T: %w", msg, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read loop
// ---------------------------------------------------------------------------

// readLoop reads frames until the connection closes and converts each into a
// typed event for subscribers. On a read error it tears down the connection
// state, unless the controller already moved on to a newer connection.
func (c *Controller) readLoop(conn net.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-done:
				// Deliberate close; Disconnect already emitted the event.
				return
			default:
			}

			c.mu.Lock()
			// Only tear down if this is still the current connection.
			if c.conn == conn {
				c.connected = false
				c.conn = nil
				c.done = nil
			}
			c.mu.Unlock()

			_ = conn.Close()
			c.emit(DisconnectedEvent{Err: err})
			return
		}

		if ev := decodeEvent(data); ev != nil {
			c.emit(ev)
		}
	}
}

// decodeEvent converts a raw server frame into its typed event. Unknown
// types and undecodable payloads are dropped; a protocol addition on the
// server must not break older devices.
func decodeEvent(data []byte) Event {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil
	}

	switch envelope.Type {
	case protocol.TypeChatHistory:
		var m protocol.ChatHistoryMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return ChatHistoryEvent{ChatRoomID: m.ChatRoomID, Messages: m.Messages}
	case protocol.TypeChatMessage:
		var m protocol.ServerChatMessageMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return ChatMessageEvent{Message: m.Message}
	case protocol.TypeChatTyping:
		var m protocol.ServerTypingMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TypingEvent{UserID: m.UserID, UserName: m.UserName, IsTyping: m.IsTyping}
	case protocol.TypeTopicHistory:
		var m protocol.TopicHistoryMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TopicHistoryEvent{ChatRoomID: m.ChatRoomID, Posts: m.Posts}
	case protocol.TypeTopicPost:
		var m protocol.ServerTopicPostMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TopicPostEvent{Post: m.Post}
	case protocol.TypeTopicComment:
		var m protocol.ServerTopicCommentMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TopicCommentEvent{PostID: m.PostID, Comment: m.Comment}
	case protocol.TypeTopicLike:
		var m protocol.ServerTopicLikeMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TopicLikeEvent{PostID: m.PostID, Likes: m.Likes}
	case protocol.TypeTopicApprove:
		var m protocol.ServerTopicApproveMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return TopicApproveEvent{
			PostID:            m.PostID,
			Approved:          m.Approved,
			ApprovedBy:        m.ApprovedBy,
			ApprovedAt:        m.ApprovedAt,
			ApprovalSignature: m.ApprovalSignature,
		}
	case protocol.TypePresenceOnline, protocol.TypePresenceOffline:
		var m protocol.PresenceMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return PresenceEvent{UserID: m.UserID, Online: envelope.Type == protocol.TypePresenceOnline}
	case protocol.TypeError:
		var m protocol.ErrorMsg
		if json.Unmarshal(data, &m) != nil {
			return nil
		}
		return ErrorEvent{Message: m.Message}
	case protocol.TypePong:
		return nil
	}
	return nil
}
