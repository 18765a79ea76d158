package core

import "errors"

// Frame is an encoded signaling message, ready for the wire.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts a connection's outbound messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// buffer is full and ErrConnectionClosed after Close.
	TrySend(Frame) error
	Close()
}
