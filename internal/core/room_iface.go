package core

import (
	"errors"

	"github.com/dkeye/Consult/internal/domain"
)

var (
	ErrRoomClosed    = errors.New("room closed")
	ErrAlreadyInRoom = errors.New("connection already in another room")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// Announce runs while the room lock is held, so presence notices reach members
// in the order membership changed. others never contains the acting member.
type Announce func(roster []domain.ParticipantInfo, others []MemberSession)

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Roster() []domain.ParticipantInfo
	Closed() bool
	Member(sid SessionID) (MemberSession, bool)

	// AddMember admits or re-admits sid and returns the roster including it.
	// It fails with ErrRoomClosed once the room has emptied.
	AddMember(sid SessionID, ms MemberSession, announce Announce) ([]domain.ParticipantInfo, error)
	// RemoveMember evicts sid. The room closes when its last member leaves.
	RemoveMember(sid SessionID, announce Announce) (ms MemberSession, remaining int, ok bool)
	Broadcast(from SessionID, data Frame, includeSender bool) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}

// LeaveResult describes a completed eviction.
type LeaveResult struct {
	RoomID    domain.RoomID
	Member    MemberSession
	Remaining int
}

// RoomRegistry maps room tokens to live rooms. A room is present iff it has
// at least one member.
type RoomRegistry interface {
	Join(roomID domain.RoomID, sid SessionID, ms MemberSession, announce Announce) ([]domain.ParticipantInfo, error)
	Leave(sid SessionID, announce Announce) (LeaveResult, bool)
	RosterOf(roomID domain.RoomID) []domain.ParticipantInfo
	RoomOf(sid SessionID) (domain.RoomID, bool)
	// MemberOf returns the room sid is in and its member session.
	MemberOf(sid SessionID) (domain.RoomID, MemberSession, bool)
	Broadcast(roomID domain.RoomID, from SessionID, data Frame, includeSender bool) PublishResult
	List() []RoomInfo
}
