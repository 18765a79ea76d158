package core

import (
	"context"
	"errors"

	"github.com/dkeye/Consult/internal/domain"
)

// ErrNotFound is returned by a MeetingStore when no record matches.
var ErrNotFound = errors.New("meeting not found")

// MeetingStore is the durable home of meeting records.
type MeetingStore interface {
	// CreateMeeting inserts m unless its appointment already has a record, in
	// which case the existing record is returned with created == false.
	CreateMeeting(ctx context.Context, m *domain.Meeting) (meeting *domain.Meeting, created bool, err error)
	GetMeetingByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error)
	// UpdateMeeting applies fn as one atomic read-modify-write and returns the
	// stored result. fn may run more than once on contention.
	UpdateMeeting(ctx context.Context, roomID domain.RoomID, fn func(*domain.Meeting) error) (*domain.Meeting, error)
	Close() error
}
