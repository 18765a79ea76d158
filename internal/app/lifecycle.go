package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type lifecycleTask struct {
	op string
	fn func(*domain.Meeting) error
}

// lane holds the pending store updates of one room. Updates of a room are
// applied in submission order; different rooms run in parallel.
type lane struct {
	tasks []lifecycleTask
}

// LifecycleSync mirrors room membership into the meeting store. Every call
// returns immediately; failures are logged and never reach the caller.
// Rooms whose token was not derived from an appointment are not tracked.
type LifecycleSync struct {
	store   core.MeetingStore
	events  *MeetingEvents
	timeout time.Duration
	now     func() time.Time

	wg     conc.WaitGroup
	mu     sync.Mutex
	lanes  map[domain.RoomID]*lane
	closed bool
}

func NewLifecycleSync(store core.MeetingStore, events *MeetingEvents, timeout time.Duration) *LifecycleSync {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LifecycleSync{
		store:   store,
		events:  events,
		timeout: timeout,
		now:     time.Now,
		lanes:   make(map[domain.RoomID]*lane),
	}
}

// OnJoin appends a participant entry and marks the meeting active.
func (l *LifecycleSync) OnJoin(roomID domain.RoomID, userID domain.UserID, userType domain.UserType) {
	at := l.now()
	l.submit(roomID, lifecycleTask{op: "join", fn: func(m *domain.Meeting) error {
		m.AddParticipant(userID, userType, at)
		m.Activate(at)
		return nil
	}})
}

// OnLeave closes the user's most recent open participant entry.
func (l *LifecycleSync) OnLeave(roomID domain.RoomID, userID domain.UserID) {
	at := l.now()
	l.submit(roomID, lifecycleTask{op: "leave", fn: func(m *domain.Meeting) error {
		if !m.CloseParticipant(userID, at) {
			log.Warn().Str("module", "app.lifecycle").Str("room", string(roomID)).Str("user", string(userID)).Msg("no open participant entry")
		}
		return nil
	}})
}

// OnRoomEmptied completes the meeting. Duration is not derived here.
func (l *LifecycleSync) OnRoomEmptied(roomID domain.RoomID) {
	at := l.now()
	l.submit(roomID, lifecycleTask{op: "complete", fn: func(m *domain.Meeting) error {
		m.Complete(at)
		return nil
	}})
}

// Close waits for queued updates to finish. Later submissions are dropped.
func (l *LifecycleSync) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	if r := l.wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "app.lifecycle").Str("panic", r.String()).Msg("lifecycle worker panicked")
	}
}

func (l *LifecycleSync) submit(roomID domain.RoomID, t lifecycleTask) {
	if _, ok := roomID.AppointmentID(); !ok {
		log.Debug().Str("module", "app.lifecycle").Str("room", string(roomID)).Str("op", t.op).Msg("room has no appointment")
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		log.Warn().Str("module", "app.lifecycle").Str("room", string(roomID)).Str("op", t.op).Msg("dropped update after close")
		return
	}
	ln, running := l.lanes[roomID]
	if !running {
		ln = &lane{}
		l.lanes[roomID] = ln
	}
	ln.tasks = append(ln.tasks, t)
	l.mu.Unlock()

	if !running {
		l.wg.Go(func() { l.drain(roomID, ln) })
	}
}

func (l *LifecycleSync) drain(roomID domain.RoomID, ln *lane) {
	for {
		l.mu.Lock()
		if len(ln.tasks) == 0 {
			delete(l.lanes, roomID)
			l.mu.Unlock()
			return
		}
		t := ln.tasks[0]
		ln.tasks = ln.tasks[1:]
		l.mu.Unlock()

		l.run(roomID, t)
	}
}

func (l *LifecycleSync) run(roomID domain.RoomID, t lifecycleTask) {
	logger := log.With().Str("module", "app.lifecycle").Str("room", string(roomID)).Str("op", t.op).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("lifecycle update panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	m, err := l.store.UpdateMeeting(ctx, roomID, t.fn)
	switch {
	case errors.Is(err, core.ErrNotFound):
		logger.Warn().Msg("no meeting for room")
	case err != nil:
		logger.Error().Err(err).Msg("lifecycle update failed")
	default:
		logger.Debug().Str("status", string(m.Status)).Msg("meeting updated")
		l.events.Publish(m)
	}
}
