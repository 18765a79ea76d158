// Package peer is the client side of a consultation: it captures media,
// negotiates one peer-to-peer connection over the signaling channel and
// tears everything down exactly once.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateIdle State = iota
	StateMediaAcquired
	StateConnectionCreated
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMediaAcquired:
		return "media-acquired"
	case StateConnectionCreated:
		return "connection-created"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var errNoConnection = errors.New("no peer connection")

// Signaler delivers frames to the signaling server.
type Signaler interface {
	Send(t protocol.Type, data any) error
}

type ConnectionFactory func() (core.MediaConnection, error)

type Config struct {
	RoomID   string
	UserID   string
	UserName string
	UserType domain.UserType

	Constraints   MediaConstraints
	Devices       MediaDevices
	NewConnection ConnectionFactory
	Signal        Signaler

	OnStateChange       func(State)
	OnRoster            func([]domain.ParticipantInfo)
	OnChat              func(protocol.ChatBroadcast)
	OnRemoteScreenShare func(protocol.ScreenShareNotice)
	OnRemoteTrack       func(*webrtc.TrackRemote)
	OnServerError       func(string)
}

// Machine drives one participant through
// Idle -> MediaAcquired -> ConnectionCreated -> Negotiating -> Connected | Failed | Closed.
// Pion callbacks arrive on their own goroutines, so no connection call is
// made while mu is held.
type Machine struct {
	cfg Config

	mu          sync.Mutex
	state       State
	selfID      string
	remoteID    string
	stream      *MediaStream
	conn        core.MediaConnection
	videoSender core.TrackSender
	cameraTrack webrtc.TrackLocal
	screen      Track

	closeOnce sync.Once
}

func NewMachine(cfg Config) *Machine {
	if cfg.Constraints == (MediaConstraints{}) {
		cfg.Constraints = DefaultConstraints()
	}
	return &Machine{cfg: cfg, state: StateIdle}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SocketID is the id the server assigned to this connection.
func (m *Machine) SocketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID
}

// Stream returns the captured local media, nil before AcquireMedia.
func (m *Machine) Stream() *MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

func (m *Machine) RemoteID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}

func (m *Machine) transition(to State) {
	m.mu.Lock()
	from := m.state
	if from == to || (from == StateClosed && to != StateClosed) {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()

	log.Debug().Str("module", "peer").Str("from", from.String()).Str("to", to.String()).Msg("state change")
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(to)
	}
}

func (m *Machine) fail(op string, err error) error {
	log.Error().Err(err).Str("module", "peer").Str("op", op).Msg("negotiation failed")
	m.transition(StateFailed)
	return newNegotiationError(op, err)
}

// AcquireMedia captures camera and microphone. A capture failure leaves the
// machine in Idle so the user can retry.
func (m *Machine) AcquireMedia(ctx context.Context) error {
	if m.State() != StateIdle {
		return fmt.Errorf("acquire media in state %s", m.State())
	}
	stream, err := m.cfg.Devices.GetUserMedia(ctx, m.cfg.Constraints)
	if err != nil {
		mErr := &MediaAccessError{Err: err}
		log.Warn().Err(err).Str("module", "peer").Str("user_message", mErr.UserMessage()).Msg("media capture failed")
		return mErr
	}
	m.mu.Lock()
	m.stream = stream
	m.mu.Unlock()
	m.transition(StateMediaAcquired)
	return nil
}

// CreateConnection builds a peer connection carrying the local tracks.
func (m *Machine) CreateConnection() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	stream := m.stream
	m.mu.Unlock()

	conn, err := m.cfg.NewConnection()
	if err != nil {
		return m.fail("create connection", err)
	}
	conn.OnICECandidate(m.onLocalCandidate)
	conn.OnStateChange(m.onConnectionState)
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.cfg.OnRemoteTrack != nil {
			m.cfg.OnRemoteTrack(track)
		}
	})

	var video core.TrackSender
	for _, t := range stream.Tracks() {
		sender, err := conn.AddLocalTrack(t.Local())
		if err != nil {
			_ = conn.Close()
			return m.fail("add local track", err)
		}
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			video = sender
		}
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.videoSender = video
	m.mu.Unlock()
	m.transition(StateConnectionCreated)
	return nil
}

// Join asks the server to admit this participant to the room.
func (m *Machine) Join() error {
	return m.cfg.Signal.Send(protocol.TypeJoinRoom, protocol.JoinRoom{
		RoomID:   m.cfg.RoomID,
		UserID:   m.cfg.UserID,
		UserType: string(m.cfg.UserType),
		UserName: m.cfg.UserName,
	})
}

// Run feeds server frames into the machine until frames closes or ctx ends.
func (m *Machine) Run(ctx context.Context, frames <-chan protocol.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-frames:
			if !ok {
				return nil
			}
			if err := m.HandleEnvelope(env); err != nil {
				log.Warn().Err(err).Str("module", "peer").Str("type", string(env.Type)).Msg("handle frame")
			}
		}
	}
}

// HandleEnvelope applies one server frame.
func (m *Machine) HandleEnvelope(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeConnected:
		var p protocol.Connected
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		m.mu.Lock()
		m.selfID = p.SocketID
		m.mu.Unlock()
	case protocol.TypeRoomUsers:
		var roster []domain.ParticipantInfo
		if err := protocol.Unmarshal(env, &roster); err != nil {
			return err
		}
		if m.cfg.OnRoster != nil {
			m.cfg.OnRoster(roster)
		}
	case protocol.TypeUserJoined:
		var p protocol.UserJoined
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		if p.SocketID == m.SocketID() {
			return nil
		}
		if m.cfg.OnRoster != nil {
			m.cfg.OnRoster(p.UsersInRoom)
		}
		// the member already present initiates
		return m.offerTo(p.SocketID)
	case protocol.TypeOffer:
		var p protocol.RelayedOffer
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		return m.answer(p)
	case protocol.TypeAnswer:
		var p protocol.RelayedAnswer
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		return m.applyAnswer(p)
	case protocol.TypeICECandidate:
		var p protocol.RelayedICECandidate
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		return m.addRemoteCandidate(p)
	case protocol.TypeUserLeft:
		var p protocol.UserLeft
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		if p.SocketID == m.RemoteID() {
			return m.resetPeer()
		}
	case protocol.TypeChatMessage:
		var p protocol.ChatBroadcast
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		if m.cfg.OnChat != nil {
			m.cfg.OnChat(p)
		}
	case protocol.TypeScreenShareToggle:
		var p protocol.ScreenShareNotice
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		if m.cfg.OnRemoteScreenShare != nil {
			m.cfg.OnRemoteScreenShare(p)
		}
	case protocol.TypeError:
		var p protocol.Error
		if err := protocol.Unmarshal(env, &p); err != nil {
			return err
		}
		log.Warn().Str("module", "peer").Str("message", p.Message).Msg("server error")
		if m.cfg.OnServerError != nil {
			m.cfg.OnServerError(p.Message)
		}
	case protocol.TypePong:
	default:
		log.Debug().Str("module", "peer").Str("type", string(env.Type)).Msg("ignored frame")
	}
	return nil
}

func (m *Machine) connFor(remote string) (core.MediaConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return nil, ErrClosed
	}
	if m.conn == nil {
		return nil, errNoConnection
	}
	if remote != "" {
		m.remoteID = remote
	}
	return m.conn, nil
}

func (m *Machine) offerTo(target string) error {
	conn, err := m.connFor(target)
	if err != nil {
		return newNegotiationError("offer", err)
	}
	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		return m.fail("create offer", err)
	}
	m.transition(StateNegotiating)
	raw, err := json.Marshal(offer)
	if err != nil {
		return m.fail("encode offer", err)
	}
	log.Info().Str("module", "peer").Str("target", target).Msg("sending offer")
	return m.cfg.Signal.Send(protocol.TypeOffer, protocol.Offer{RoomID: m.cfg.RoomID, Offer: raw, TargetSocketID: target})
}

func (m *Machine) answer(p protocol.RelayedOffer) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(p.Offer, &offer); err != nil {
		return newNegotiationError("decode offer", err)
	}
	conn, err := m.connFor(p.SocketID)
	if err != nil {
		return newNegotiationError("answer", err)
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		return m.fail("create answer", err)
	}
	m.transition(StateNegotiating)
	raw, err := json.Marshal(answer)
	if err != nil {
		return m.fail("encode answer", err)
	}
	log.Info().Str("module", "peer").Str("target", p.SocketID).Msg("sending answer")
	return m.cfg.Signal.Send(protocol.TypeAnswer, protocol.Answer{RoomID: m.cfg.RoomID, Answer: raw, TargetSocketID: p.SocketID})
}

func (m *Machine) applyAnswer(p protocol.RelayedAnswer) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(p.Answer, &answer); err != nil {
		return newNegotiationError("decode answer", err)
	}
	conn, err := m.connFor("")
	if err != nil {
		return newNegotiationError("apply answer", err)
	}
	if err := conn.ApplyAnswer(answer); err != nil {
		return m.fail("apply answer", err)
	}
	return nil
}

// addRemoteCandidate feeds the candidate in right away. Candidates that beat
// the remote description are rejected by the engine and only logged.
func (m *Machine) addRemoteCandidate(p protocol.RelayedICECandidate) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(p.Candidate, &cand); err != nil {
		return newNegotiationError("decode candidate", err)
	}
	conn, err := m.connFor("")
	if err != nil {
		return newNegotiationError("add candidate", err)
	}
	if err := conn.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("from", p.SocketID).Msg("remote candidate rejected")
	}
	return nil
}

func (m *Machine) onLocalCandidate(c webrtc.ICECandidateInit) {
	remote := m.RemoteID()
	if remote == "" {
		log.Debug().Str("module", "peer").Msg("local candidate with no remote peer")
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := m.cfg.Signal.Send(protocol.TypeICECandidate, protocol.ICECandidate{RoomID: m.cfg.RoomID, Candidate: raw, TargetSocketID: remote}); err != nil {
		log.Warn().Err(err).Str("module", "peer").Msg("send candidate")
	}
}

func (m *Machine) onConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		m.transition(StateConnected)
	case webrtc.PeerConnectionStateFailed:
		m.transition(StateFailed)
	}
}

// resetPeer drops the connection to a departed peer and prepares a fresh one
// for whoever joins next.
func (m *Machine) resetPeer() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	conn, screen := m.conn, m.screen
	m.conn, m.videoSender, m.cameraTrack, m.screen = nil, nil, nil, nil
	m.remoteID = ""
	m.mu.Unlock()

	if screen != nil {
		screen.Stop()
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "peer").Msg("remote peer left, waiting for the next one")
	m.transition(StateMediaAcquired)
	return m.CreateConnection()
}

// StartScreenShare swaps the outgoing camera track for a display capture.
func (m *Machine) StartScreenShare(ctx context.Context) error {
	m.mu.Lock()
	sender, sharing := m.videoSender, m.screen != nil
	m.mu.Unlock()
	if sender == nil {
		return ErrNoVideoSender
	}
	if sharing {
		return nil
	}

	screen, err := m.cfg.Devices.GetDisplayMedia(ctx)
	if err != nil {
		return &MediaAccessError{Err: err}
	}
	camera := sender.Track()
	if err := sender.ReplaceTrack(screen.Local()); err != nil {
		screen.Stop()
		return newNegotiationError("replace track", err)
	}

	m.mu.Lock()
	m.cameraTrack = camera
	m.screen = screen
	m.mu.Unlock()

	screen.OnEnded(func() {
		if err := m.stopScreenShare(screen); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("restore camera after screen ended")
		}
	})
	return m.announceScreenShare(true)
}

// StopScreenShare restores the camera track.
func (m *Machine) StopScreenShare() error {
	m.mu.Lock()
	screen := m.screen
	m.mu.Unlock()
	if screen == nil {
		return nil
	}
	return m.stopScreenShare(screen)
}

func (m *Machine) stopScreenShare(screen Track) error {
	m.mu.Lock()
	if m.screen != screen {
		m.mu.Unlock()
		return nil
	}
	m.screen = nil
	sender, camera := m.videoSender, m.cameraTrack
	m.mu.Unlock()

	screen.Stop()
	if sender != nil && camera != nil {
		if err := sender.ReplaceTrack(camera); err != nil {
			return newNegotiationError("restore camera", err)
		}
	}
	return m.announceScreenShare(false)
}

func (m *Machine) Sharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen != nil
}

func (m *Machine) announceScreenShare(sharing bool) error {
	return m.cfg.Signal.Send(protocol.TypeScreenShareToggle, protocol.ScreenShareToggle{
		RoomID:    m.cfg.RoomID,
		IsSharing: &sharing,
		UserName:  m.cfg.UserName,
	})
}

// ToggleAudio mutes or unmutes the microphone and reports whether it is now on.
func (m *Machine) ToggleAudio() bool {
	return m.toggle(func(s *MediaStream) Track { return s.Audio })
}

// ToggleVideo turns the camera off or on and reports whether it is now on.
func (m *Machine) ToggleVideo() bool {
	return m.toggle(func(s *MediaStream) Track { return s.Video })
}

func (m *Machine) toggle(pick func(*MediaStream) Track) bool {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return false
	}
	t := pick(stream)
	if t == nil {
		return false
	}
	t.SetEnabled(!t.Enabled())
	return t.Enabled()
}

func (m *Machine) Chat(message string) error {
	return m.cfg.Signal.Send(protocol.TypeChatMessage, protocol.ChatMessage{
		RoomID:   m.cfg.RoomID,
		Message:  message,
		UserName: m.cfg.UserName,
		UserType: string(m.cfg.UserType),
	})
}

// Close stops every local track, closes the connection and tells the room we
// left. Only the first call does anything.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		stream, screen, conn := m.stream, m.screen, m.conn
		m.stream, m.screen, m.conn, m.videoSender = nil, nil, nil, nil
		m.mu.Unlock()
		m.transition(StateClosed)

		if screen != nil {
			screen.Stop()
		}
		stream.Stop()
		if conn != nil {
			_ = conn.Close()
		}
		if err := m.cfg.Signal.Send(protocol.TypeLeaveCall, protocol.LeaveCall{RoomID: m.cfg.RoomID, UserID: m.cfg.UserID}); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("send leave-call")
		}
		log.Info().Str("module", "peer").Str("room", m.cfg.RoomID).Msg("peer closed")
	})
}
