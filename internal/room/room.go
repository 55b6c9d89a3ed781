package room

import (
	"sync"
	"time"

	"github.com/smartdesignpro/collab/internal/user"
)

// Subscriber is a channel that receives a room's broadcasts
type Subscriber interface {
	ID() string
	// Send queues msg without blocking, false when the channel cannot take it
	Send(msg []byte) bool
	Close()
}

// Room is the presence list and broadcast group of one project
type Room struct {
	ProjectID      string
	participants   []user.Participant
	subscribers    map[string]Subscriber
	colorGenerator *user.ColorGenerator
	LastActive     time.Time
	CreatedAt      time.Time
	mu             sync.RWMutex
}

func newRoom(projectID string) *Room {
	now := time.Now()
	return &Room{
		ProjectID:      projectID,
		participants:   []user.Participant{},
		subscribers:    make(map[string]Subscriber),
		colorGenerator: user.NewColorGenerator(),
		LastActive:     now,
		CreatedAt:      now,
	}
}

// Join: replaces any entry with the same id, appends p and subscribes sub.
// Returns the updated participant list.
func (r *Room) Join(p user.Participant, sub Subscriber) []user.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Color == "" {
		p.Color = r.colorGenerator.NextColor()
	}
	if p.Email == "" {
		p.Email = user.DefaultEmail(p.Name)
	}
	p.Role = user.NormalizeRole(p.Role)
	p.IsOnline = true

	r.participants = removeFirst(r.participants, p.ID)
	r.participants = append(r.participants, p)
	if sub != nil {
		r.subscribers[sub.ID()] = sub
	}
	r.LastActive = time.Now()

	return r.participantsLocked()
}

// Leave: removes the first participant with userID
func (r *Room) Leave(userID string) []user.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = removeFirst(r.participants, userID)
	r.LastActive = time.Now()

	return r.participantsLocked()
}

// Participants: returns a copy of the presence list
func (r *Room) Participants() []user.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.participantsLocked()
}

func (r *Room) participantsLocked() []user.Participant {
	list := make([]user.Participant, len(r.participants))
	copy(list, r.participants)
	return list
}

// Subscribe: adds a channel to the broadcast group
func (r *Room) Subscribe(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[sub.ID()] = sub
	r.LastActive = time.Now()
}

// Unsubscribe: removes a channel from the broadcast group
func (r *Room) Unsubscribe(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[subID]; !ok {
		return false
	}
	delete(r.subscribers, subID)
	r.LastActive = time.Now()
	return true
}

// Subscribers: returns snapshot of current subscribers (for broadcasting)
func (r *Room) Subscribers() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// ParticipantCount: returns number of participants in room
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.participants)
}

// idleSince: zero time when the room still has participants or subscribers
func (r *Room) idleSince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.participants) > 0 || len(r.subscribers) > 0 {
		return time.Time{}
	}
	return r.LastActive
}

func removeFirst(list []user.Participant, userID string) []user.Participant {
	for i, p := range list {
		if p.ID == userID {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
