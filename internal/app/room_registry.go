package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomRegistry is the in-memory room table. Each room serializes its own
// membership; the table lock is only held for lookups and insert/delete.
// Calls for one SessionID must not run concurrently (one reader per connection).
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService

	idxMu sync.RWMutex
	index map[core.SessionID]domain.RoomID
}

var _ core.RoomRegistry = (*RoomRegistry)(nil)

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[domain.RoomID]core.RoomService),
		index: make(map[core.SessionID]domain.RoomID),
	}
}

func (r *RoomRegistry) Join(roomID domain.RoomID, sid core.SessionID, ms core.MemberSession, announce core.Announce) ([]domain.ParticipantInfo, error) {
	if cur, ok := r.RoomOf(sid); ok && cur != roomID {
		return nil, core.ErrAlreadyInRoom
	}
	for {
		room := r.getOrCreate(roomID)
		roster, err := room.AddMember(sid, ms, announce)
		if errors.Is(err, core.ErrRoomClosed) {
			// lost the race with the last member leaving; the next lookup replaces it
			continue
		}
		if err != nil {
			return nil, err
		}
		r.idxMu.Lock()
		r.index[sid] = roomID
		r.idxMu.Unlock()
		return roster, nil
	}
}

func (r *RoomRegistry) Leave(sid core.SessionID, announce core.Announce) (core.LeaveResult, bool) {
	roomID, ok := r.RoomOf(sid)
	if !ok {
		return core.LeaveResult{}, false
	}
	r.idxMu.Lock()
	delete(r.index, sid)
	r.idxMu.Unlock()

	room := r.get(roomID)
	if room == nil {
		return core.LeaveResult{}, false
	}
	ms, remaining, ok := room.RemoveMember(sid, announce)
	if !ok {
		return core.LeaveResult{}, false
	}
	if remaining == 0 {
		r.mu.Lock()
		if r.rooms[roomID] == room {
			delete(r.rooms, roomID)
			log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room deleted")
		}
		r.mu.Unlock()
	}
	return core.LeaveResult{RoomID: roomID, Member: ms, Remaining: remaining}, true
}

func (r *RoomRegistry) RosterOf(roomID domain.RoomID) []domain.ParticipantInfo {
	room := r.get(roomID)
	if room == nil {
		return []domain.ParticipantInfo{}
	}
	return room.Roster()
}

func (r *RoomRegistry) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	id, ok := r.index[sid]
	return id, ok
}

func (r *RoomRegistry) MemberOf(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	roomID, ok := r.RoomOf(sid)
	if !ok {
		return "", nil, false
	}
	room := r.get(roomID)
	if room == nil {
		return "", nil, false
	}
	ms, ok := room.Member(sid)
	if !ok {
		return "", nil, false
	}
	return roomID, ms, true
}

func (r *RoomRegistry) Broadcast(roomID domain.RoomID, from core.SessionID, data core.Frame, includeSender bool) core.PublishResult {
	room := r.get(roomID)
	if room == nil {
		return core.PublishResult{}
	}
	return room.Broadcast(from, data, includeSender)
}

func (r *RoomRegistry) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		if n := room.MemberCount(); n > 0 {
			out = append(out, core.RoomInfo{ID: id, MemberCount: n})
		}
	}
	return out
}

// get returns the live room or nil. Closed rooms count as absent.
func (r *RoomRegistry) get(roomID domain.RoomID) core.RoomService {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok || room.Closed() {
		return nil
	}
	return room
}

func (r *RoomRegistry) getOrCreate(roomID domain.RoomID) core.RoomService {
	if room := r.get(roomID); room != nil {
		return room
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok && !room.Closed() {
		return room
	}
	room := core.NewRoomService(roomID)
	r.rooms[roomID] = room
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room created")
	return room
}
