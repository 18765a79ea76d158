package core

import "github.com/pion/webrtc/v4"

// TrackSender is the outgoing side of one local track. ReplaceTrack swaps the
// source without renegotiation.
type TrackSender interface {
	ReplaceTrack(webrtc.TrackLocal) error
	Track() webrtc.TrackLocal
}

// MediaConnection is the peer-to-peer media session of one client.
// Descriptions are applied without waiting for ICE gathering; candidates
// trickle through OnICECandidate.
type MediaConnection interface {
	// AddLocalTrack attaches a local track and returns its sender.
	AddLocalTrack(webrtc.TrackLocal) (TrackSender, error)
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnStateChange(func(webrtc.PeerConnectionState))
	// Close stops all underlying media resources.
	Close() error
}
