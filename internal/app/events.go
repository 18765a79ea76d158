package app

import (
	"sync"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// MeetingEvents fans meeting snapshots out to per-room subscribers.
// Slow subscribers miss snapshots rather than stall publishers.
type MeetingEvents struct {
	mu     sync.RWMutex
	nextID int
	subs   map[domain.RoomID]map[int]chan *domain.Meeting
}

func NewMeetingEvents() *MeetingEvents {
	return &MeetingEvents{subs: make(map[domain.RoomID]map[int]chan *domain.Meeting)}
}

// Subscribe returns a channel of snapshots for roomID and a func that ends the
// subscription and closes the channel.
func (e *MeetingEvents) Subscribe(roomID domain.RoomID) (<-chan *domain.Meeting, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	ch := make(chan *domain.Meeting, 8)
	if e.subs[roomID] == nil {
		e.subs[roomID] = make(map[int]chan *domain.Meeting)
	}
	e.subs[roomID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs[roomID], id)
			if len(e.subs[roomID]) == 0 {
				delete(e.subs, roomID)
			}
			close(ch)
		})
	}
}

func (e *MeetingEvents) Publish(m *domain.Meeting) {
	if e == nil || m == nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs[m.RoomID] {
		select {
		case ch <- m.Clone():
		default:
			log.Warn().Str("module", "app.events").Str("room", string(m.RoomID)).Msg("subscriber lagging, snapshot dropped")
		}
	}
}
