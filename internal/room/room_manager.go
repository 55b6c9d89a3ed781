package room

import (
	"sync"
	"time"

	"github.com/smartdesignpro/collab/internal/user"
)

// Manager: the room registry, one Room per project id
type Manager struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

// NewManager creates a new room manager
func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// getOrCreateLocked: rooms are created on first use. Caller holds rm.mu so
// Cleanup cannot evict the room between lookup and use.
func (rm *Manager) getOrCreateLocked(projectID string) *Room {
	r, ok := rm.rooms[projectID]
	if !ok {
		r = newRoom(projectID)
		rm.rooms[projectID] = r
	}
	return r
}

// Join: adds p to the project's room (replacing a stale entry with the same id)
// and subscribes sub to the room's broadcasts
func (rm *Manager) Join(projectID string, p user.Participant, sub Subscriber) []user.Participant {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.getOrCreateLocked(projectID).Join(p, sub)
}

// Leave: removes userID from the project's room. No room, empty list.
func (rm *Manager) Leave(projectID, userID string) []user.Participant {
	r, ok := rm.Room(projectID)
	if !ok {
		return []user.Participant{}
	}
	return r.Leave(userID)
}

// Subscribe: adds sub to the project's broadcast group without joining presence
func (rm *Manager) Subscribe(projectID string, sub Subscriber) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.getOrCreateLocked(projectID).Subscribe(sub)
}

// Unsubscribe: removes a channel from one project's broadcast group
func (rm *Manager) Unsubscribe(projectID, subID string) bool {
	r, ok := rm.Room(projectID)
	if !ok {
		return false
	}
	return r.Unsubscribe(subID)
}

// UnsubscribeAll: removes a channel from every room it is subscribed to
func (rm *Manager) UnsubscribeAll(subID string) {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		rooms = append(rooms, r)
	}
	rm.mu.RUnlock()

	for _, r := range rooms {
		r.Unsubscribe(subID)
	}
}

// Participants: the project's presence list, empty when no room exists
func (rm *Manager) Participants(projectID string) []user.Participant {
	r, ok := rm.Room(projectID)
	if !ok {
		return []user.Participant{}
	}
	return r.Participants()
}

// Room: checks if a room exists and returns it
func (rm *Manager) Room(projectID string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	r, exists := rm.rooms[projectID]
	return r, exists
}

// Cleanup: removes rooms that have been empty for longer than ttl,
// returns the evicted project ids
func (rm *Manager) Cleanup(ttl time.Duration) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := time.Now()
	var evicted []string
	for projectID, r := range rm.rooms {
		idle := r.idleSince()
		if idle.IsZero() {
			continue
		}
		if now.Sub(idle) >= ttl {
			delete(rm.rooms, projectID)
			evicted = append(evicted, projectID)
		}
	}
	return evicted
}

// Stats: room and participant totals
func (rm *Manager) Stats() (rooms, participants int) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	for _, r := range rm.rooms {
		participants += r.ParticipantCount()
	}
	return len(rm.rooms), participants
}
