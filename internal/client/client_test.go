package client

import (
	"testing"
	"time"

	"github.com/sitewire/collab-app/internal/protocol"
)

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws"})

	ch, cancel := c.Subscribe()

	c.emit(ErrorEvent{Message: "one"})
	if ev := <-ch; ev.(ErrorEvent).Message != "one" {
		t.Fatalf("unexpected event: %v", ev)
	}

	cancel()
	cancel() // second cancel must not panic or double-close

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed after cancel")
	}

	// Emitting after cancel must not reach the closed channel.
	c.emit(ErrorEvent{Message: "two"})
}

func TestEmitDropsWhenSubscriberFull(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws", EventBuffer: 1})

	ch, cancel := c.Subscribe()
	defer cancel()

	c.emit(ErrorEvent{Message: "first"})
	c.emit(ErrorEvent{Message: "overflow"}) // must not block

	ev := <-ch
	if ev.(ErrorEvent).Message != "first" {
		t.Errorf("expected first event retained, got %v", ev)
	}
	select {
	case ev := <-ch:
		t.Errorf("overflow event should have been dropped, got %v", ev)
	default:
	}
}

func TestOpsDropWhenDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws"})

	ops := []struct {
		name string
		call func() error
	}{
		{"JoinChat", func() error { return c.JoinChat("r1") }},
		{"SendChatMessage", func() error { return c.SendChatMessage("r1", "hi", nil) }},
		{"SendTyping", func() error { return c.SendTyping("r1", true) }},
		{"JoinTopic", func() error { return c.JoinTopic("r1") }},
		{"CreatePost", func() error { return c.CreatePost("r1", protocol.CategoryQuality, "x", nil) }},
		{"AddComment", func() error { return c.AddComment("p1", "x") }},
		{"ToggleLike", func() error { return c.ToggleLike("p1") }},
		{"Approve", func() error { return c.Approve("p1", "") }},
	}

	for _, op := range ops {
		if err := op.call(); err != nil {
			t.Errorf("%s while disconnected: unexpected error %v", op.name, err)
		}
	}
	if c.Connected() {
		t.Errorf("controller should report disconnected")
	}
}

func TestDisconnectWhileDisconnectedIsNoop(t *testing.T) {
	c := New(Config{URL: "ws://localhost:8080/ws"})

	ch, cancel := c.Subscribe()
	defer cancel()

	c.Disconnect()
	c.Disconnect()

	select {
	case ev := <-ch:
		t.Errorf("no events expected, got %v", ev)
	default:
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want func(Event) bool
	}{
		{
			"chat message",
			`{"type":"chat:message","message":{"id":"m1","chatRoomId":"r1","content":"hi","type":"text"}}`,
			func(ev Event) bool {
				m, ok := ev.(ChatMessageEvent)
				return ok && m.Message.ID == "m1" && m.Message.Kind == "text"
			},
		},
		{
			"typing",
			`{"type":"chat:typing","userId":"u1","userName":"dana","isTyping":true}`,
			func(ev Event) bool {
				m, ok := ev.(TypingEvent)
				return ok && m.UserID == "u1" && m.IsTyping
			},
		},
		{
			"like set",
			`{"type":"topic:like","postId":"p1","likes":["u1","u2"]}`,
			func(ev Event) bool {
				m, ok := ev.(TopicLikeEvent)
				return ok && m.PostID == "p1" && len(m.Likes) == 2
			},
		},
		{
			"approval with timestamp",
			`{"type":"topic:approve","postId":"p1","approved":true,"approvedBy":"admin-1","approvedAt":"2026-08-30T10:00:00Z","approvalSignature":"sig"}`,
			func(ev Event) bool {
				m, ok := ev.(TopicApproveEvent)
				return ok && m.Approved && m.ApprovedBy != nil && *m.ApprovedBy == "admin-1" &&
					m.ApprovedAt != nil && m.ApprovedAt.Equal(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)) &&
					m.ApprovalSignature != nil && *m.ApprovalSignature == "sig"
			},
		},
		{
			"un-approval with null fields",
			`{"type":"topic:approve","postId":"p1","approved":false,"approvedBy":null,"approvedAt":null,"approvalSignature":null}`,
			func(ev Event) bool {
				m, ok := ev.(TopicApproveEvent)
				return ok && !m.Approved && m.ApprovedBy == nil && m.ApprovedAt == nil && m.ApprovalSignature == nil
			},
		},
		{
			"presence online",
			`{"type":"presence:online","userId":"u1"}`,
			func(ev Event) bool {
				m, ok := ev.(PresenceEvent)
				return ok && m.Online && m.UserID == "u1"
			},
		},
		{
			"presence offline",
			`{"type":"presence:offline","userId":"u1"}`,
			func(ev Event) bool {
				m, ok := ev.(PresenceEvent)
				return ok && !m.Online
			},
		},
		{
			"error",
			`{"type":"error","message":"Post not found"}`,
			func(ev Event) bool {
				m, ok := ev.(ErrorEvent)
				return ok && m.Message == "Post not found"
			},
		},
	}

	for _, tt := range tests {
		ev := decodeEvent([]byte(tt.raw))
		if ev == nil {
			t.Errorf("%s: decodeEvent returned nil", tt.name)
			continue
		}
		if !tt.want(ev) {
			t.Errorf("%s: unexpected event %#v", tt.name, ev)
		}
	}
}

func TestDecodeEventDropsUnknownAndPong(t *testing.T) {
	for _, raw := range []string{
		`{"type":"pong"}`,
		`{"type":"some:future-event","x":1}`,
		`not json`,
	} {
		if ev := decodeEvent([]byte(raw)); ev != nil {
			t.Errorf("expected nil for %q, got %#v", raw, ev)
		}
	}
}
