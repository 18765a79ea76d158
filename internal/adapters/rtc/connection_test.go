package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConn(t *testing.T, sid string) *WebRTCConnection {
	t.Helper()
	c, err := NewWebRTCConnection(webrtc.Configuration{}, sid)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConfigForDefaults(t *testing.T) {
	cfg := ConfigFor(nil)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, defaultICEServers, cfg.ICEServers[0].URLs)

	cfg = ConfigFor([]string{"stun:example.org:3478"})
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	caller := newConn(t, "caller")
	callee := newConn(t, "callee")

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "caller")
	require.NoError(t, err)
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "caller")
	require.NoError(t, err)

	sender, err := caller.AddLocalTrack(video)
	require.NoError(t, err)
	assert.Equal(t, video, sender.Track())
	_, err = caller.AddLocalTrack(audio)
	require.NoError(t, err)

	offer, err := caller.CreateAndSetOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, caller.SignalingState())

	answer, err := callee.ApplyOfferAndCreateAnswer(*offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, webrtc.SignalingStateStable, callee.SignalingState())

	require.NoError(t, caller.ApplyAnswer(*answer))
	assert.Equal(t, webrtc.SignalingStateStable, caller.SignalingState())

	// swapping the source keeps the negotiated sender
	screen, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", "caller")
	require.NoError(t, err)
	require.NoError(t, sender.ReplaceTrack(screen))
	assert.Equal(t, screen, sender.Track())
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newConn(t, "x")
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
