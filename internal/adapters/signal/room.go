package signal

import (
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(sup *orch.Supervisor, p *protocol.JoinRoom) {
	log.Info().Str("module", "signal").Str("sid", string(sup.ID())).Str("room", p.RoomID).Str("user", p.UserID).Msg("join")
	// failures are reported to the client by the supervisor
	_ = sup.Join(p)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sup *orch.Supervisor, p *protocol.LeaveCall) {
	log.Info().Str("module", "signal").Str("sid", string(sup.ID())).Str("room", p.RoomID).Msg("leave-call")
	sup.Leave()
}
