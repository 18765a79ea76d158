package orch

import (
	"errors"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/rs/zerolog/log"
)

// sendEach encodes once and queues the frame for every member.
// Members whose buffer is full are returned.
func (o *Orchestrator) sendEach(members []core.MemberSession, t protocol.Type, payload any) []core.MemberSession {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("encode frame")
		return nil
	}
	var dropped []core.MemberSession
	for _, ms := range members {
		if err := ms.Signal().TrySend(frame); errors.Is(err, core.ErrBackpressure) {
			dropped = append(dropped, ms)
		}
	}
	return dropped
}

// relayTo delivers a frame to exactly one connection of the sender's room.
// A target that is gone or in another room is dropped silently.
func (s *Supervisor) relayTo(roomID string, target string, t protocol.Type, build func(from string) any) error {
	_, room, err := s.member(roomID)
	if err != nil {
		s.o.sendError(s.sig, "Not joined to room "+roomID)
		return err
	}
	targetID := core.SessionID(target)
	cur, member, ok := s.o.Rooms.MemberOf(targetID)
	if !ok || cur != room {
		log.Debug().Str("module", "orch.relay").Str("sid", string(s.sid)).Str("target", target).Str("type", string(t)).Msg("target not in room")
		return nil
	}
	sig, ok := s.o.Registry.GetSignal(targetID)
	if !ok {
		return nil
	}
	frame, err := protocol.Encode(t, build(string(s.sid)))
	if err != nil {
		return err
	}
	if err := sig.TrySend(frame); errors.Is(err, core.ErrBackpressure) {
		s.o.handleDropped(room, []core.MemberSession{member})
	}
	return nil
}

func (s *Supervisor) Offer(p *protocol.Offer) error {
	return s.relayTo(p.RoomID, p.TargetSocketID, protocol.TypeOffer, func(from string) any {
		return protocol.RelayedOffer{Offer: p.Offer, SocketID: from}
	})
}

func (s *Supervisor) Answer(p *protocol.Answer) error {
	return s.relayTo(p.RoomID, p.TargetSocketID, protocol.TypeAnswer, func(from string) any {
		return protocol.RelayedAnswer{Answer: p.Answer, SocketID: from}
	})
}

func (s *Supervisor) ICECandidate(p *protocol.ICECandidate) error {
	return s.relayTo(p.RoomID, p.TargetSocketID, protocol.TypeICECandidate, func(from string) any {
		return protocol.RelayedICECandidate{Candidate: p.Candidate, SocketID: from}
	})
}

// Chat fans a message out to the whole room, sender included.
func (s *Supervisor) Chat(p *protocol.ChatMessage) error {
	user, room, err := s.member(p.RoomID)
	if err != nil {
		s.o.sendError(s.sig, "Not joined to room "+p.RoomID)
		return err
	}
	msg := protocol.ChatBroadcast{
		Message:   p.Message,
		UserName:  p.UserName,
		UserType:  domain.UserType(p.UserType),
		Timestamp: s.o.now(),
		SocketID:  string(s.sid),
	}
	if msg.UserName == "" {
		msg.UserName = user.Username
	}
	if msg.UserType == "" {
		msg.UserType = user.Type
	}
	return s.broadcast(room, protocol.TypeChatMessage, msg, true)
}

// ScreenShare tells the other members that the sender started or stopped sharing.
func (s *Supervisor) ScreenShare(p *protocol.ScreenShareToggle) error {
	user, room, err := s.member(p.RoomID)
	if err != nil {
		s.o.sendError(s.sig, "Not joined to room "+p.RoomID)
		return err
	}
	name := p.UserName
	if name == "" {
		name = user.Username
	}
	return s.broadcast(room, protocol.TypeScreenShareToggle, protocol.ScreenShareNotice{
		SocketID:  string(s.sid),
		IsSharing: *p.IsSharing,
		UserName:  name,
	}, false)
}

func (s *Supervisor) Ping() {
	s.o.send(s.sig, protocol.TypePong, protocol.Pong{})
}

func (s *Supervisor) broadcast(room domain.RoomID, t protocol.Type, payload any, includeSender bool) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	res := s.o.Rooms.Broadcast(room, s.sid, frame, includeSender)
	log.Debug().Str("module", "orch.relay").Str("room", string(room)).Str("type", string(t)).
		Int("sent", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast")
	s.o.handleDropped(room, res.Dropped)
	return nil
}
