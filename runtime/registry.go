package runtime

import (
	"sync"

	"deal-lab/contract"
	"deal-lab/domain"
)

type Set map[string]struct{}

// Registry is the single owner of presence state: userID -> live sink,
// plus transaction-room membership. It is an ephemeral index owned by
// the connection lifecycle, never persisted.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink
	roomMembers map[domain.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// Authenticate records a user's live connection. At most one sink per
// user: a second connection silently replaces the first (last wins).
func (r *Registry) Authenticate(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = sink
}

// Disconnect clears the user's presence entry and sweeps them out of
// every room, so no empty sets are left behind to leak over time. It
// only acts when the given sink is still the registered one: a closing
// connection that already lost the last-wins race must not tear down
// its replacement.
func (r *Registry) Disconnect(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[userID]; !ok || current != sink {
		return
	}
	delete(r.sessions, userID)
	for roomID, members := range r.roomMembers {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}

// IsOnline is a point-in-time read with no guarantee beyond "as of the
// last observed connect/disconnect".
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		res = append(res, userID)
	}
	return res
}

func (r *Registry) JoinRoom(userID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][userID] = struct{}{}
}

func (r *Registry) LeaveRoom(userID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}

// SinksForRoom retrieves all active connections for a room.
// It performs a two-step lookup:
// 1. Identifies member IDs associated with the room via roomMembers.
// 2. Resolves those IDs into actual EventSinks using the sessions map.
//
// Members without a live connection are simply skipped: delivery is
// best-effort and an offline participant re-fetches state on reconnect.
func (r *Registry) SinksForRoom(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for userID := range members {
		if sink, exists := r.sessions[userID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

func (r *Registry) SinkForUser(userID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[userID]
	return sink, ok
}

var _ contract.IRegistry = (*Registry)(nil)
