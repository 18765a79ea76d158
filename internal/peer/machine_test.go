package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	track webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	return nil
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

type fakeMedia struct {
	mu         sync.Mutex
	senders    []*fakeSender
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	onICE      func(webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
	closed     bool
}

func (f *fakeMedia) AddLocalTrack(t webrtc.TrackLocal) (core.TrackSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSender{track: t}
	f.senders = append(f.senders, s)
	return s, nil
}

func (f *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeMedia) ApplyOfferAndCreateAnswer(o webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	f.mu.Lock()
	f.remote = append(f.remote, o)
	f.mu.Unlock()
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeMedia) ApplyAnswer(a webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, a)
	return nil
}

func (f *fakeMedia) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit))        { f.onICE = fn }
func (f *fakeMedia) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}
func (f *fakeMedia) OnStateChange(fn func(webrtc.PeerConnectionState))      { f.onState = fn }

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type sent struct {
	typ  protocol.Type
	data json.RawMessage
}

type fakeSignal struct {
	mu     sync.Mutex
	frames []sent
}

func (s *fakeSignal) Send(t protocol.Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sent{t, raw})
	return nil
}

func (s *fakeSignal) ofType(t protocol.Type) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, f := range s.frames {
		if f.typ == t {
			out = append(out, f.data)
		}
	}
	return out
}

type rig struct {
	m      *Machine
	signal *fakeSignal
	conns  []*fakeMedia
	states []State
}

func newRig(t *testing.T, devices MediaDevices) *rig {
	t.Helper()
	r := &rig{signal: &fakeSignal{}}
	r.m = NewMachine(Config{
		RoomID:   "room-A1",
		UserID:   "doc1",
		UserName: "Dr",
		UserType: domain.UserTypeDoctor,
		Devices:  devices,
		Signal:   r.signal,
		NewConnection: func() (core.MediaConnection, error) {
			c := &fakeMedia{}
			r.conns = append(r.conns, c)
			return c, nil
		},
		OnStateChange: func(s State) { r.states = append(r.states, s) },
	})
	return r
}

func (r *rig) ready(t *testing.T, selfID string) {
	t.Helper()
	require.NoError(t, r.m.AcquireMedia(context.Background()))
	require.NoError(t, r.m.CreateConnection())
	r.frame(t, protocol.TypeConnected, protocol.Connected{SocketID: selfID})
}

func (r *rig) frame(t *testing.T, typ protocol.Type, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, r.m.HandleEnvelope(protocol.Envelope{Type: typ, Data: raw}))
}

func (r *rig) conn() *fakeMedia { return r.conns[len(r.conns)-1] }

func TestAcquireMediaClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		fail error
		want string
	}{
		{"denied", fmt.Errorf("NotAllowedError: %w", ErrPermissionDenied), "Permission denied. Please allow camera and microphone access."},
		{"missing", fmt.Errorf("NotFoundError: %w", ErrDeviceNotFound), "No camera or microphone found."},
		{"other", errors.New("device busy"), "Failed to access camera/microphone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, StaticDevices{Fail: tt.fail})
			err := r.m.AcquireMedia(context.Background())

			var mErr *MediaAccessError
			require.ErrorAs(t, err, &mErr)
			assert.Equal(t, tt.want, mErr.UserMessage())
			assert.ErrorIs(t, err, tt.fail)
			assert.Equal(t, StateIdle, r.m.State())
		})
	}
}

func TestExistingMemberInitiatesOffer(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.ready(t, "A")
	assert.Len(t, r.conn().senders, 2)

	// our own announcement is ignored
	r.frame(t, protocol.TypeUserJoined, protocol.UserJoined{SocketID: "A"})
	assert.Empty(t, r.signal.ofType(protocol.TypeOffer))

	r.frame(t, protocol.TypeUserJoined, protocol.UserJoined{SocketID: "B", UserID: "pat1"})
	offers := r.signal.ofType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	var offer protocol.Offer
	require.NoError(t, json.Unmarshal(offers[0], &offer))
	assert.Equal(t, "B", offer.TargetSocketID)
	assert.Equal(t, "room-A1", offer.RoomID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0 offer"}`, string(offer.Offer))
	assert.Equal(t, StateNegotiating, r.m.State())

	// local candidates go straight to the remote peer
	r.conn().onICE(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"})
	cands := r.signal.ofType(protocol.TypeICECandidate)
	require.Len(t, cands, 1)
	var cand protocol.ICECandidate
	require.NoError(t, json.Unmarshal(cands[0], &cand))
	assert.Equal(t, "B", cand.TargetSocketID)

	r.frame(t, protocol.TypeAnswer, protocol.RelayedAnswer{SocketID: "B", Answer: json.RawMessage(`{"type":"answer","sdp":"v=0 answer"}`)})
	require.Len(t, r.conn().remote, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, r.conn().remote[0].Type)

	r.conn().onState(webrtc.PeerConnectionStateConnected)
	assert.Equal(t, StateConnected, r.m.State())
	assert.Equal(t, []State{StateMediaAcquired, StateConnectionCreated, StateNegotiating, StateConnected}, r.states)
}

func TestNewcomerAnswers(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.ready(t, "B")

	r.frame(t, protocol.TypeOffer, protocol.RelayedOffer{SocketID: "A", Offer: json.RawMessage(`{"type":"offer","sdp":"v=0 offer"}`)})
	answers := r.signal.ofType(protocol.TypeAnswer)
	require.Len(t, answers, 1)
	var answer protocol.Answer
	require.NoError(t, json.Unmarshal(answers[0], &answer))
	assert.Equal(t, "A", answer.TargetSocketID)
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0 answer"}`, string(answer.Answer))
	assert.Equal(t, "A", r.m.RemoteID())

	r.frame(t, protocol.TypeICECandidate, protocol.RelayedICECandidate{SocketID: "A", Candidate: json.RawMessage(`{"candidate":"c1","sdpMid":"0"}`)})
	require.Len(t, r.conn().candidates, 1)
	assert.Equal(t, "c1", r.conn().candidates[0].Candidate)
}

func TestOfferWithoutConnectionIsRejected(t *testing.T) {
	r := newRig(t, StaticDevices{})
	err := r.m.HandleEnvelope(protocol.Envelope{Type: protocol.TypeUserJoined, Data: json.RawMessage(`{"socketId":"B"}`)})
	var nErr *NegotiationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "offer", nErr.Op)
}

func TestScreenShareSwapsAndRestoresCamera(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.ready(t, "A")
	video := r.conn().senders[1]
	camera := video.Track()
	require.Equal(t, webrtc.RTPCodecTypeVideo, camera.Kind())

	require.NoError(t, r.m.StartScreenShare(context.Background()))
	assert.True(t, r.m.Sharing())
	assert.NotEqual(t, camera, video.Track())
	assert.Equal(t, "screen", video.Track().ID())

	// the capture ending on its own restores the camera too
	screen := r.m.screen.(*SampleTrack)
	screen.Stop()
	assert.False(t, r.m.Sharing())
	assert.Equal(t, camera, video.Track())

	toggles := r.signal.ofType(protocol.TypeScreenShareToggle)
	require.Len(t, toggles, 2)
	var on, off protocol.ScreenShareToggle
	require.NoError(t, json.Unmarshal(toggles[0], &on))
	require.NoError(t, json.Unmarshal(toggles[1], &off))
	assert.True(t, *on.IsSharing)
	assert.False(t, *off.IsSharing)

	require.NoError(t, r.m.StopScreenShare())
	assert.Len(t, r.signal.ofType(protocol.TypeScreenShareToggle), 2)
}

func TestScreenShareNeedsVideoSender(t *testing.T) {
	r := newRig(t, StaticDevices{})
	assert.ErrorIs(t, r.m.StartScreenShare(context.Background()), ErrNoVideoSender)
}

func TestTogglesFlipEnabled(t *testing.T) {
	r := newRig(t, StaticDevices{})
	assert.False(t, r.m.ToggleAudio())
	r.ready(t, "A")

	assert.False(t, r.m.ToggleAudio())
	assert.True(t, r.m.ToggleAudio())
	assert.False(t, r.m.ToggleVideo())
	// tracks stay attached
	assert.Len(t, r.conn().senders, 2)
}

func TestRemoteLeaveRecreatesConnection(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.ready(t, "A")
	r.frame(t, protocol.TypeUserJoined, protocol.UserJoined{SocketID: "B"})
	first := r.conn()

	r.frame(t, protocol.TypeUserLeft, protocol.UserLeft{SocketID: "someone-else"})
	assert.Len(t, r.conns, 1)

	r.frame(t, protocol.TypeUserLeft, protocol.UserLeft{SocketID: "B"})
	require.Len(t, r.conns, 2)
	assert.True(t, first.closed)
	assert.Equal(t, StateConnectionCreated, r.m.State())
	assert.Empty(t, r.m.RemoteID())
}

func TestCloseRunsOnce(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.ready(t, "A")
	stream := r.m.stream
	require.NoError(t, r.m.StartScreenShare(context.Background()))
	screen := r.m.screen.(*SampleTrack)

	r.m.Close()
	r.m.Close()

	assert.Equal(t, StateClosed, r.m.State())
	assert.True(t, r.conn().closed)
	assert.True(t, screen.Stopped())
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.(*SampleTrack).Stopped())
	}
	leaves := r.signal.ofType(protocol.TypeLeaveCall)
	require.Len(t, leaves, 1)
	assert.JSONEq(t, `{"roomId":"room-A1","userId":"doc1"}`, string(leaves[0]))

	assert.ErrorIs(t, r.m.CreateConnection(), ErrClosed)
}

func TestCloseBeforeNegotiation(t *testing.T) {
	r := newRig(t, StaticDevices{})
	r.m.Close()
	assert.Equal(t, StateClosed, r.m.State())
	assert.Len(t, r.signal.ofType(protocol.TypeLeaveCall), 1)
}

func TestChatAndServerFrames(t *testing.T) {
	var chats []protocol.ChatBroadcast
	var shares []protocol.ScreenShareNotice
	var errs []string
	r := newRig(t, StaticDevices{})
	r.m.cfg.OnChat = func(c protocol.ChatBroadcast) { chats = append(chats, c) }
	r.m.cfg.OnRemoteScreenShare = func(n protocol.ScreenShareNotice) { shares = append(shares, n) }
	r.m.cfg.OnServerError = func(msg string) { errs = append(errs, msg) }

	require.NoError(t, r.m.Chat("hello"))
	var out protocol.ChatMessage
	require.NoError(t, json.Unmarshal(r.signal.ofType(protocol.TypeChatMessage)[0], &out))
	assert.Equal(t, protocol.ChatMessage{RoomID: "room-A1", Message: "hello", UserName: "Dr", UserType: "doctor"}, out)

	r.frame(t, protocol.TypeChatMessage, protocol.ChatBroadcast{Message: "hi", SocketID: "B"})
	r.frame(t, protocol.TypeScreenShareToggle, protocol.ScreenShareNotice{SocketID: "B", IsSharing: true})
	r.frame(t, protocol.TypeError, protocol.Error{Message: "nope"})

	require.Len(t, chats, 1)
	assert.Equal(t, "hi", chats[0].Message)
	require.Len(t, shares, 1)
	assert.True(t, shares[0].IsSharing)
	assert.Equal(t, []string{"nope"}, errs)
}
