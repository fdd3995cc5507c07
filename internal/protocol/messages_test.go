package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid chat:message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMessage(t *testing.T) {
	input := []byte(`{"type":"chat:message","chatRoomId":"room-1","content":"rebar delivered","attachments":[]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	cm, ok := msg.(ChatMessageMsg)
	if !ok {
		t.Fatalf("expected ChatMessageMsg, got %T", msg)
	}
	if cm.ChatRoomID != "room-1" {
		t.Errorf("expected chatRoomId %q, got %q", "room-1", cm.ChatRoomID)
	}
	if cm.Content != "rebar delivered" {
		t.Errorf("unexpected content: %q", cm.Content)
	}
	if len(cm.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(cm.Attachments))
	}
}

func TestParseClientMessage_ChatMessageWithAttachments(t *testing.T) {
	input := []byte(`{"type":"chat:message","chatRoomId":"room-1","content":"","attachments":[{"url":"https://cdn/x.pdf","fileName":"x.pdf","fileSize":1024,"mimeType":"application/pdf"}]}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cm := msg.(ChatMessageMsg)
	if len(cm.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(cm.Attachments))
	}
	a := cm.Attachments[0]
	if a.FileName != "x.pdf" || a.FileSize != 1024 || a.MimeType != "application/pdf" {
		t.Errorf("unexpected attachment: %+v", a)
	}
}

func TestParseClientMessage_TopicPost(t *testing.T) {
	input := []byte(`{"type":"topic:post","chatRoomId":"room-2","category":"quality","content":"crack in slab B"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeTopicPost {
		t.Fatalf("expected type %q, got %q", TypeTopicPost, msgType)
	}
	pm := msg.(TopicPostMsg)
	if pm.Category != CategoryQuality {
		t.Errorf("expected category %q, got %q", CategoryQuality, pm.Category)
	}
	if pm.ChatRoomID != "room-2" {
		t.Errorf("unexpected chatRoomId: %q", pm.ChatRoomID)
	}
}

func TestParseClientMessage_TopicApprove(t *testing.T) {
	input := []byte(`{"type":"topic:approve","postId":"post-9","signature":"M0,0L5,5"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	am := msg.(TopicApproveMsg)
	if am.PostID != "post-9" {
		t.Errorf("unexpected postId: %q", am.PostID)
	}
	if am.Signature != "M0,0L5,5" {
		t.Errorf("unexpected signature: %q", am.Signature)
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"chatRoomId":"r"}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"chat:history"}`)); err == nil {
		t.Fatal("expected error for server-only message type")
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Server message construction
// ---------------------------------------------------------------------------

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeError, ErrorMsg{Message: "Post not found"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeError {
		t.Errorf("expected type %q, got %v", TypeError, m["type"])
	}
	if m["message"] != "Post not found" {
		t.Errorf("expected message field, got %v", m["message"])
	}
}

func TestNewServerMessage_UnapprovedPostHasNullApprovalFields(t *testing.T) {
	post := TopicPost{
		ID:          "p1",
		ChatRoomID:  "r1",
		AuthorID:    "u1",
		AuthorName:  "site-lead",
		Category:    CategorySchedule,
		Content:     "pour moved to Friday",
		Attachments: []Attachment{},
		Comments:    []Comment{},
		Likes:       []string{},
		CreatedAt:   time.Now(),
	}

	data, err := NewServerMessage(TypeTopicPost, ServerTopicPostMsg{Post: post})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m struct {
		Post map[string]json.RawMessage `json:"post"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	for _, field := range []string{"approvedBy", "approvedAt", "approvalSignature"} {
		raw, ok := m.Post[field]
		if !ok {
			t.Fatalf("expected %s to be present", field)
		}
		if string(raw) != "null" {
			t.Errorf("expected %s to be null for unapproved post, got %s", field, raw)
		}
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []string{CategoryQuality, CategorySchedule, CategoryDrawing, CategoryOthers} {
		if !ValidCategory(c) {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if ValidCategory("safety") {
		t.Error("expected unknown category to be invalid")
	}
	if ValidCategory("") {
		t.Error("expected empty category to be invalid")
	}
}
