// Package memory provides an in-memory implementation of the meeting store
package memory

import (
	"context"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// Repository keeps meetings keyed by room. Records handed out are copies.
type Repository struct {
	mu       sync.RWMutex
	meetings map[domain.RoomID]*domain.Meeting
}

var _ core.MeetingStore = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{meetings: make(map[domain.RoomID]*domain.Meeting)}
}

func (r *Repository) CreateMeeting(_ context.Context, m *domain.Meeting) (*domain.Meeting, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.meetings[m.RoomID]; ok {
		return existing.Clone(), false, nil
	}
	r.meetings[m.RoomID] = m.Clone()
	return m.Clone(), true, nil
}

func (r *Repository) GetMeetingByRoom(_ context.Context, roomID domain.RoomID) (*domain.Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[roomID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *Repository) UpdateMeeting(ctx context.Context, roomID domain.RoomID, fn func(*domain.Meeting) error) (*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[roomID]
	if !ok {
		return nil, core.ErrNotFound
	}
	work := m.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	r.meetings[roomID] = work
	return work.Clone(), nil
}

// Count returns the number of stored meetings.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.meetings)
}

func (r *Repository) Close() error { return nil }
