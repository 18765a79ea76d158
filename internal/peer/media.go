package peer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// VideoConstraints are ideal capture values; devices may deliver less.
type VideoConstraints struct {
	Width      int
	Height     int
	FacingMode string
}

type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type MediaConstraints struct {
	Video VideoConstraints
	Audio AudioConstraints
}

func DefaultConstraints() MediaConstraints {
	return MediaConstraints{
		Video: VideoConstraints{Width: 1280, Height: 720, FacingMode: "user"},
		Audio: AudioConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true},
	}
}

// Track is a local media source. A disabled track keeps sending
// silent or black frames instead of being removed.
type Track interface {
	Local() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	// Stop ends the track and fires the OnEnded callbacks once.
	Stop()
	OnEnded(func())
}

// MediaStream is what user media capture yields.
type MediaStream struct {
	Audio Track
	Video Track
}

func (s *MediaStream) Tracks() []Track {
	if s == nil {
		return nil
	}
	var out []Track
	for _, t := range []Track{s.Audio, s.Video} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (s *MediaStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// MediaDevices captures camera, microphone and display media.
// Failures should wrap ErrPermissionDenied or ErrDeviceNotFound when they apply.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (*MediaStream, error)
	GetDisplayMedia(ctx context.Context) (Track, error)
}

// SampleTrack is a Track backed by a pion sample track; callers feed it frames.
type SampleTrack struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	mu      sync.Mutex
	stopped bool
	onEnded []func()
}

func NewSampleTrack(kind webrtc.RTPCodecType, id, streamID string) (*SampleTrack, error) {
	mime := webrtc.MimeTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		mime = webrtc.MimeTypeVP8
	}
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, streamID)
	if err != nil {
		return nil, err
	}
	st := &SampleTrack{track: t}
	st.enabled.Store(true)
	return st, nil
}

func (t *SampleTrack) Local() webrtc.TrackLocal  { return t.track }
func (t *SampleTrack) Kind() webrtc.RTPCodecType { return t.track.Kind() }
func (t *SampleTrack) Enabled() bool             { return t.enabled.Load() }
func (t *SampleTrack) SetEnabled(enabled bool)   { t.enabled.Store(enabled) }

func (t *SampleTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cbs := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

func (t *SampleTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *SampleTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

// WriteSample sends a frame, zeroed while the track is disabled.
func (t *SampleTrack) WriteSample(s media.Sample) error {
	if t.Stopped() {
		return ErrClosed
	}
	if !t.Enabled() {
		s.Data = make([]byte, len(s.Data))
	}
	return t.track.WriteSample(s)
}

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// FeedSilence writes silent audio until ctx ends or the track stops.
func FeedSilence(ctx context.Context, t *SampleTrack) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond}); err != nil {
				return
			}
		}
	}
}

// StaticDevices synthesizes tracks for headless peers and tests.
// Fail, when set, is returned by every capture.
type StaticDevices struct {
	Fail error
}

func (d StaticDevices) GetUserMedia(ctx context.Context, _ MediaConstraints) (*MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Fail != nil {
		return nil, d.Fail
	}
	stream := uuid.NewString()
	audio, err := NewSampleTrack(webrtc.RTPCodecTypeAudio, "audio", stream)
	if err != nil {
		return nil, err
	}
	video, err := NewSampleTrack(webrtc.RTPCodecTypeVideo, "camera", stream)
	if err != nil {
		return nil, err
	}
	return &MediaStream{Audio: audio, Video: video}, nil
}

func (d StaticDevices) GetDisplayMedia(ctx context.Context) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Fail != nil {
		return nil, d.Fail
	}
	screen, err := NewSampleTrack(webrtc.RTPCodecTypeVideo, "screen", uuid.NewString())
	if err != nil {
		return nil, err
	}
	return screen, nil
}
