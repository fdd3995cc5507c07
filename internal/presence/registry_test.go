package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterFirstHandleReportsOnline(t *testing.T) {
	r := NewRegistry()

	if !r.Register("u1", "c1") {
		t.Fatal("first handle should report the online transition")
	}
	if r.Register("u1", "c2") {
		t.Fatal("second handle must not report online again")
	}
	if !r.Online("u1") {
		t.Fatal("user should be online")
	}
}

func TestDeregisterLastHandleReportsOffline(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u1", "c2")

	if r.Deregister("u1", "c1") {
		t.Fatal("offline must not fire while another device is connected")
	}
	if !r.Online("u1") {
		t.Fatal("user should still be online")
	}
	if !r.Deregister("u1", "c2") {
		t.Fatal("last handle removal should report the offline transition")
	}
	if r.Online("u1") {
		t.Fatal("user should be offline")
	}
	if r.Count() != 0 {
		t.Fatalf("registry should be empty, has %d users", r.Count())
	}
}

func TestDeregisterUnknownHandle(t *testing.T) {
	r := NewRegistry()

	if r.Deregister("ghost", "c1") {
		t.Fatal("unknown user must not report offline")
	}

	r.Register("u1", "c1")
	if r.Deregister("u1", "c2") {
		t.Fatal("unknown handle must not report offline")
	}
	if !r.Online("u1") {
		t.Fatal("user should remain online")
	}
}

func TestOnlineUsersSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u2", "c2")
	r.Register("u2", "c3")

	users := r.OnlineUsers()
	if len(users) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(users))
	}
}

func TestConcurrentRegisterDeregister(t *testing.T) {
	r := NewRegistry()
	const devices = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	onlineEvents := 0
	offlineEvents := 0

	wg.Add(devices)
	for i := 0; i < devices; i++ {
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			if r.Register("u1", connID) {
				mu.Lock()
				onlineEvents++
				mu.Unlock()
			}
			if r.Deregister("u1", connID) {
				mu.Lock()
				offlineEvents++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if r.Online("u1") {
		t.Fatal("all handles removed, user should be offline")
	}
	// Transitions must pair up: every observed offline was preceded by an
	// online, and the registry ended empty.
	if onlineEvents != offlineEvents {
		t.Fatalf("unbalanced transitions: %d online vs %d offline", onlineEvents, offlineEvents)
	}
	if onlineEvents == 0 {
		t.Fatal("expected at least one online transition")
	}
}
