package core

import "github.com/dkeye/Consult/internal/domain"

// SessionID identifies one live transport connection (the wire "socketId").
type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
