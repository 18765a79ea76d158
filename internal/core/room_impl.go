package core

import (
	"sync"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id     domain.RoomID
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	order  []SessionID
	closed bool
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:    id,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) Member(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	return ms, ok
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession, announce Announce) ([]domain.ParticipantInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}
	if _, ok := r.bySID[sid]; !ok {
		r.order = append(r.order, sid)
	}
	r.bySID[sid] = ms
	roster := r.rosterLocked()
	if announce != nil {
		announce(roster, r.othersLocked(sid))
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Int("members", len(r.bySID)).Msg("member added")
	return roster, nil
}

func (r *roomImpl) RemoveMember(sid SessionID, announce Announce) (MemberSession, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, len(r.bySID), false
	}
	delete(r.bySID, sid)
	for i, s := range r.order {
		if s == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.bySID) == 0 {
		r.closed = true
	}
	if announce != nil {
		announce(r.rosterLocked(), r.othersLocked(sid))
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Int("members", len(r.bySID)).Msg("member removed")
	return ms, len(r.bySID), true
}

func (r *roomImpl) Broadcast(from SessionID, data Frame, includeSender bool) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from && !includeSender {
			continue
		}
		m := r.bySID[sid]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Roster() []domain.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

func (r *roomImpl) rosterLocked() []domain.ParticipantInfo {
	out := make([]domain.ParticipantInfo, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, Participant(r.bySID[sid]))
	}
	return out
}

func (r *roomImpl) othersLocked(sid SessionID) []MemberSession {
	out := make([]MemberSession, 0, len(r.order))
	for _, s := range r.order {
		if s != sid {
			out = append(out, r.bySID[s])
		}
	}
	return out
}
