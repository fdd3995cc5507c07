package rooms

import (
	"fmt"
	"sync"
	"testing"
)

func TestJoinAndMembers(t *testing.T) {
	tbl := NewTable()
	tbl.Join("c1", "r1", KindChat)
	tbl.Join("c2", "r1", KindChat)

	members := tbl.Members("r1", KindChat)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if !tbl.IsMember("c1", "r1", KindChat) {
		t.Error("c1 should be a member")
	}
}

func TestJoinIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Join("c1", "r1", KindChat)
	tbl.Join("c1", "r1", KindChat)

	if got := len(tbl.Members("r1", KindChat)); got != 1 {
		t.Fatalf("duplicate join must not duplicate membership, got %d entries", got)
	}
}

func TestKindNamespacing(t *testing.T) {
	tbl := NewTable()
	tbl.Join("c1", "r1", KindChat)
	tbl.Join("c2", "r1", KindTopic)

	chatMembers := tbl.Members("r1", KindChat)
	topicMembers := tbl.Members("r1", KindTopic)

	if len(chatMembers) != 1 || chatMembers[0] != "c1" {
		t.Errorf("chat room should contain only c1, got %v", chatMembers)
	}
	if len(topicMembers) != 1 || topicMembers[0] != "c2" {
		t.Errorf("topic room should contain only c2, got %v", topicMembers)
	}
	if tbl.IsMember("c1", "r1", KindTopic) {
		t.Error("c1 must not leak into the topic room")
	}
}

func TestSameConnBothKinds(t *testing.T) {
	tbl := NewTable()
	tbl.Join("c1", "r1", KindChat)
	tbl.Join("c1", "r1", KindTopic)

	if !tbl.IsMember("c1", "r1", KindChat) || !tbl.IsMember("c1", "r1", KindTopic) {
		t.Fatal("a connection may be a member of both kinds independently")
	}

	tbl.Leave("c1", "r1", KindChat)
	if tbl.IsMember("c1", "r1", KindChat) {
		t.Error("c1 should have left the chat room")
	}
	if !tbl.IsMember("c1", "r1", KindTopic) {
		t.Error("leaving the chat kind must not affect the topic kind")
	}
}

func TestLeaveAll(t *testing.T) {
	tbl := NewTable()
	tbl.Join("c1", "r1", KindChat)
	tbl.Join("c1", "r1", KindTopic)
	tbl.Join("c1", "r2", KindChat)
	tbl.Join("c2", "r1", KindChat)

	tbl.LeaveAll("c1")

	if tbl.IsMember("c1", "r1", KindChat) || tbl.IsMember("c1", "r1", KindTopic) || tbl.IsMember("c1", "r2", KindChat) {
		t.Fatal("c1 should have left every room")
	}
	if !tbl.IsMember("c2", "r1", KindChat) {
		t.Fatal("other connections must be unaffected")
	}
}

func TestMembersEmptyRoom(t *testing.T) {
	tbl := NewTable()

	members := tbl.Members("nope", KindChat)
	if members == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(members) != 0 {
		t.Fatalf("expected no members, got %d", len(members))
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	tbl := NewTable()
	const conns = 100

	var wg sync.WaitGroup
	wg.Add(conns)
	for i := 0; i < conns; i++ {
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", n)
			tbl.Join(id, "r1", KindChat)
			tbl.Join(id, "r1", KindTopic)
			_ = tbl.Members("r1", KindChat)
			if n%2 == 0 {
				tbl.LeaveAll(id)
			}
		}(i)
	}
	wg.Wait()

	if got := len(tbl.Members("r1", KindChat)); got != conns/2 {
		t.Fatalf("expected %d remaining members, got %d", conns/2, got)
	}
}
