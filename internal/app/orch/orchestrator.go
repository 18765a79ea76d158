package orch

import (
	"context"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Lifecycle receives membership transitions for the meeting store.
// Implementations must not block.
type Lifecycle interface {
	OnJoin(roomID domain.RoomID, userID domain.UserID, userType domain.UserType)
	OnLeave(roomID domain.RoomID, userID domain.UserID)
	OnRoomEmptied(roomID domain.RoomID)
}

// Orchestrator routes between connections: it owns the shared tables and
// hands out one Supervisor per connection.
type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomRegistry
	Lifecycle Lifecycle
	Policy    app.Policy
	Now       func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect registers a fresh transport connection and tells the client its id.
// cancel must tear the transport down; it is how slow members get kicked.
func (o *Orchestrator) Connect(sid core.SessionID, sig core.SignalConnection, cancel context.CancelFunc) *Supervisor {
	o.Registry.BindSignal(sid, sig, cancel)
	s := &Supervisor{o: o, sid: sid, sig: sig, state: StateConnected}
	o.send(sig, protocol.TypeConnected, protocol.Connected{SocketID: string(sid)})
	return s
}

// send encodes and queues one frame. Delivery is best effort.
func (o *Orchestrator) send(sig core.SignalConnection, t protocol.Type, payload any) bool {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode frame")
		return false
	}
	if err := sig.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("type", string(t)).Msg("frame not queued")
		return false
	}
	return true
}

func (o *Orchestrator) sendError(sig core.SignalConnection, msg string) {
	o.send(sig, protocol.TypeError, protocol.Error{Message: msg})
}

// handleDropped applies the backpressure policy to members whose buffer was full.
func (o *Orchestrator) handleDropped(roomID domain.RoomID, dropped []core.MemberSession) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(roomID, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(roomID)).Str("sid", string(slow.ID())).Msg("kicking slow member")
			o.Registry.Cancel(slow.ID())
		case app.DropFrame, app.NoAction:
		}
	}
}
