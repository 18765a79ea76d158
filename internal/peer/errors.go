package peer

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrNoVideoSender    = errors.New("no outgoing video sender")
	ErrClosed           = errors.New("peer closed")
	ErrClientClosed     = errors.New("signaling client closed")
)

// MediaAccessError reports a failed capture with a message fit for the user.
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("media access: %v", e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// UserMessage classifies the failure into what a person can act on.
func (e *MediaAccessError) UserMessage() string {
	switch {
	case errors.Is(e.Err, ErrPermissionDenied):
		return "Permission denied. Please allow camera and microphone access."
	case errors.Is(e.Err, ErrDeviceNotFound):
		return "No camera or microphone found."
	default:
		return "Failed to access camera/microphone"
	}
}

// NegotiationError ties a failure to the negotiation step that produced it.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

func newNegotiationError(op string, err error) *NegotiationError {
	return &NegotiationError{Op: op, Err: err}
}
