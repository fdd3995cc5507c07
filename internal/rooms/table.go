// Package rooms tracks which connections belong to which broadcast rooms.
// A room is addressed by a room ID plus a kind discriminator: the chat room
// and the topic room for the same underlying chat-room entity are separate
// memberships, and a broadcast to one never reaches members of the other.
package rooms

import "sync"

// Kind separates the two conversation surfaces sharing a room ID.
type Kind string

const (
	KindChat  Kind = "chat"
	KindTopic Kind = "topic"
)

// key builds the internal membership key. Topic rooms get a distinct prefix
// so chat and topic broadcasts for the same roomID never cross-deliver.
func key(roomID string, kind Kind) string {
	if kind == KindTopic {
		return "topic:" + roomID
	}
	return roomID
}

// Table is the process-wide membership table. Like the presence registry it
// is constructed at startup and injected, with process lifetime: a restart
// empties it, which mirrors actual connection loss.
type Table struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room key -> set of connection IDs
	joined  map[string]map[string]struct{} // connection ID -> set of room keys
}

// NewTable creates an empty membership table.
func NewTable() *Table {
	return &Table{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the (roomID, kind) room. Joining a room the
// connection already belongs to is a no-op; callers re-trigger the history
// snapshot regardless.
func (t *Table) Join(connID, roomID string, kind Kind) {
	k := key(roomID, kind)

	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.members[k]
	if !ok {
		set = make(map[string]struct{})
		t.members[k] = set
	}
	set[connID] = struct{}{}

	rooms, ok := t.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		t.joined[connID] = rooms
	}
	rooms[k] = struct{}{}
}

// Leave removes the connection from a single room. Provided for symmetry;
// the server relies on LeaveAll at disconnect.
func (t *Table) Leave(connID, roomID string, kind Kind) {
	k := key(roomID, kind)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(connID, k)
}

// LeaveAll removes the connection from every room it joined. Called when the
// connection closes.
func (t *Table) LeaveAll(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.joined[connID] {
		t.removeLocked(connID, k)
	}
}

func (t *Table) removeLocked(connID, k string) {
	if set, ok := t.members[k]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.members, k)
		}
	}
	if rooms, ok := t.joined[connID]; ok {
		delete(rooms, k)
		if len(rooms) == 0 {
			delete(t.joined, connID)
		}
	}
}

// Members returns a snapshot of the connection IDs currently in the room.
// The slice is safe to iterate without holding any lock.
func (t *Table) Members(roomID string, kind Kind) []string {
	k := key(roomID, kind)

	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.members[k]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IsMember reports whether the connection is in the room.
func (t *Table) IsMember(connID, roomID string, kind Kind) bool {
	k := key(roomID, kind)

	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.members[k][connID]
	return ok
}
