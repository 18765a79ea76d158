package signal

import (
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleChat(sup *orch.Supervisor, c *WsSignalConn, p *protocol.ChatMessage) {
	if user, _, ok := sup.Identity(); ok && ctl.Chat != nil && !ctl.Chat.Allow(user.ID) {
		log.Warn().Str("module", "signal").Str("sid", string(sup.ID())).Str("user", string(user.ID)).Msg("chat rate limited")
		ctl.sendError(c, "Too many messages, slow down")
		return
	}
	_ = sup.Chat(p)
}
