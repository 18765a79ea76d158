package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// Registry tracks every live connection, joined to a room or not, so that
// targeted relay can reach it by id.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.SessionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.SessionID]*connEntry)}
}

func (r *Registry) BindSignal(sid core.SessionID, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[sid] = &connEntry{Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSignal(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[sid]; !ok {
		return
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the connection's pumps; the adapter then runs the disconnect path.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// CancelAll cancels every live connection and reports how many there were.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	entries := make([]*connEntry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	return len(entries)
}

// Drain cancels every connection and waits until each has run its disconnect
// path and unbound itself, or ctx ends.
func (r *Registry) Drain(ctx context.Context) error {
	n := r.CancelAll()
	log.Info().Str("module", "app.registry").Int("connections", n).Msg("draining")

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for r.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
