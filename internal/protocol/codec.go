package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid payload")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// payload: an opaque JSON value that must be present and not null.
	_ = v.RegisterValidation("payload", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Slice {
			return false
		}
		raw := bytes.TrimSpace(f.Bytes())
		return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
	})
	return v
}

// inbound lists the closed set of client frames and their payload shapes.
var inbound = map[Type]func() any{
	TypeJoinRoom:          func() any { return &JoinRoom{} },
	TypeOffer:             func() any { return &Offer{} },
	TypeAnswer:            func() any { return &Answer{} },
	TypeICECandidate:      func() any { return &ICECandidate{} },
	TypeChatMessage:       func() any { return &ChatMessage{} },
	TypeScreenShareToggle: func() any { return &ScreenShareToggle{} },
	TypeLeaveCall:         func() any { return &LeaveCall{} },
	TypePing:              func() any { return &Ping{} },
}

// Decode parses and validates a client frame. The returned payload is one of
// the pointer types listed in inbound.
func Decode(raw []byte) (Type, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	mk, ok := inbound[env.Type]
	if !ok {
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	p := mk()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p); err != nil {
			return env.Type, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := validate.Struct(p); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return env.Type, p, nil
}

// Encode wraps data into an envelope.
func Encode(t Type, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: body})
}

// Unmarshal decodes an envelope's data into v. Used by clients on server frames.
func Unmarshal(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
	}
	return json.Unmarshal(env.Data, v)
}
