package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateConnected State = iota
	StateIdentified
	StateClosed
)

func (s State) String() string {
	return [...]string{"connected", "identified", "closed"}[s]
}

var ErrNotInRoom = errors.New("not joined to this room")

// Supervisor owns one connection's lifecycle:
// Connected -> Identified -> (leave) Connected ... -> Closed.
type Supervisor struct {
	o   *Orchestrator
	sid core.SessionID
	sig core.SignalConnection

	mu     sync.Mutex
	state  State
	roomID domain.RoomID
	user   *domain.User
}

func (s *Supervisor) ID() core.SessionID { return s.sid }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join identifies the connection and admits it to a room.
func (s *Supervisor) Join(p *protocol.JoinRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return core.ErrConnectionClosed
	}

	user, err := domain.NewUser(p.UserID, p.UserName, domain.UserType(p.UserType))
	if err != nil {
		s.o.sendError(s.sig, err.Error())
		return err
	}
	roomID := domain.RoomID(p.RoomID)

	rejoin := s.state == StateIdentified && s.roomID == roomID
	if s.state == StateIdentified && !rejoin {
		s.leaveLocked()
	}
	var previous *domain.User
	if rejoin {
		previous = s.user
	}

	ms := core.NewMemberSession(s.sid, domain.NewMember(user, s.o.now()), s.sig)
	var dropped []core.MemberSession
	roster, err := s.o.Rooms.Join(roomID, s.sid, ms, func(roster []domain.ParticipantInfo, others []core.MemberSession) {
		dropped = s.o.sendEach(others, protocol.TypeUserJoined, protocol.UserJoined{
			SocketID:    string(s.sid),
			UserID:      user.ID,
			UserType:    user.Type,
			UserName:    user.Username,
			UsersInRoom: roster,
		})
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(s.sid)).Str("room", string(roomID)).Msg("join failed")
		s.o.sendError(s.sig, "Failed to join room")
		return err
	}

	s.state = StateIdentified
	s.roomID = roomID
	s.user = user
	s.o.send(s.sig, protocol.TypeRoomUsers, roster)
	s.o.handleDropped(roomID, dropped)

	// A re-join under the same user id only refreshes the roster entry.
	switch {
	case previous == nil:
		s.o.Lifecycle.OnJoin(roomID, user.ID, user.Type)
	case previous.ID != user.ID:
		s.o.Lifecycle.OnLeave(roomID, previous.ID)
		s.o.Lifecycle.OnJoin(roomID, user.ID, user.Type)
	}
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Str("room", string(roomID)).
		Str("user", string(user.ID)).Str("user_type", string(user.Type)).Int("members", len(roster)).Msg("joined")
	return nil
}

// Leave handles an explicit leave-call. The connection stays open and may
// join again. A second leave is a no-op.
func (s *Supervisor) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

// Disconnect runs the same cleanup as Leave and retires the connection.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.leaveLocked()
	s.o.Registry.Unbind(s.sid)
	s.state = StateClosed
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Msg("disconnected")
}

func (s *Supervisor) leaveLocked() {
	if s.state != StateIdentified {
		return
	}
	user := s.user
	s.state = StateConnected
	s.user = nil

	var dropped []core.MemberSession
	res, ok := s.o.Rooms.Leave(s.sid, func(_ []domain.ParticipantInfo, others []core.MemberSession) {
		dropped = s.o.sendEach(others, protocol.TypeUserLeft, protocol.UserLeft{
			SocketID: string(s.sid),
			UserID:   user.ID,
			UserName: user.Username,
			UserType: user.Type,
		})
	})
	if !ok {
		log.Debug().Str("module", "orch").Str("sid", string(s.sid)).Msg("leave: not in a room")
		return
	}
	s.o.handleDropped(res.RoomID, dropped)

	s.o.Lifecycle.OnLeave(res.RoomID, user.ID)
	if res.Remaining == 0 {
		s.o.Lifecycle.OnRoomEmptied(res.RoomID)
	}
	log.Info().Str("module", "orch").Str("sid", string(s.sid)).Str("room", string(res.RoomID)).Int("remaining", res.Remaining).Msg("left")
}

// member returns the identity the connection joined with, provided it is in roomID.
func (s *Supervisor) member(roomID string) (*domain.User, domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdentified || string(s.roomID) != roomID {
		return nil, "", ErrNotInRoom
	}
	return s.user, s.roomID, nil
}

// Identity reports who the connection joined as, if it is in a room.
func (s *Supervisor) Identity() (*domain.User, domain.RoomID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdentified {
		return nil, "", false
	}
	return s.user, s.roomID, true
}
