package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, kill func(), c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		kill()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, kill func(), sup *orch.Supervisor, c *WsSignalConn) {
	sid := string(sup.ID())
	defer func() {
		log.Info().Str("module", "signal").Str("sid", sid).Msg("readPump closing")
		sup.Disconnect()
		kill()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", sid).Msg("readPump ctx done")
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", sid).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(sup, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(sup *orch.Supervisor, c *WsSignalConn, data []byte) {
	t, payload, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sup.ID())).Str("type", string(t)).Msg("rejected frame")
		ctl.sendError(c, decodeErrorMessage(t, err))
		return
	}

	switch p := payload.(type) {
	case *protocol.JoinRoom:
		ctl.handleJoin(sup, p)
	case *protocol.LeaveCall:
		ctl.handleLeave(sup, p)
	case *protocol.Offer:
		_ = sup.Offer(p)
	case *protocol.Answer:
		_ = sup.Answer(p)
	case *protocol.ICECandidate:
		_ = sup.ICECandidate(p)
	case *protocol.ChatMessage:
		ctl.handleChat(sup, c, p)
	case *protocol.ScreenShareToggle:
		_ = sup.ScreenShare(p)
	case *protocol.Ping:
		ctl.handlePing(sup)
	default:
		log.Warn().Str("module", "signal").Str("type", string(t)).Msg("unhandled signal")
	}
}

func decodeErrorMessage(t protocol.Type, err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		return "Unknown message type: " + string(t)
	case errors.Is(err, protocol.ErrInvalid):
		return "Invalid " + string(t) + " payload"
	default:
		return "Malformed message"
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, msg string) {
	frame, err := protocol.Encode(protocol.TypeError, protocol.Error{Message: msg})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error frame")
		return
	}
	_ = c.TrySend(frame)
}
