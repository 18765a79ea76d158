// Package protocol defines every frame exchanged on the signaling channel.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Consult/internal/domain"
)

// Type names an event on the signaling channel.
type Type string

// Client to server.
const (
	TypeJoinRoom          Type = "join-room"
	TypeOffer             Type = "offer"
	TypeAnswer            Type = "answer"
	TypeICECandidate      Type = "ice-candidate"
	TypeChatMessage       Type = "chat-message"
	TypeScreenShareToggle Type = "screen-share-toggle"
	TypeLeaveCall         Type = "leave-call"
	TypePing              Type = "ping"
)

// Server to client. offer, answer, ice-candidate, chat-message and
// screen-share-toggle reuse the inbound names.
const (
	TypeConnected  Type = "connected"
	TypeRoomUsers  Type = "room-users"
	TypeUserJoined Type = "user-joined"
	TypeUserLeft   Type = "user-left"
	TypeError      Type = "error"
	TypePong       Type = "pong"
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	UserID   string `json:"userId" validate:"required,max=64"`
	UserType string `json:"userType" validate:"required,oneof=doctor patient"`
	UserName string `json:"userName" validate:"required,max=64"`
}

type Offer struct {
	RoomID         string          `json:"roomId" validate:"required"`
	Offer          json.RawMessage `json:"offer" validate:"payload"`
	TargetSocketID string          `json:"targetSocketId" validate:"required"`
}

type Answer struct {
	RoomID         string          `json:"roomId" validate:"required"`
	Answer         json.RawMessage `json:"answer" validate:"payload"`
	TargetSocketID string          `json:"targetSocketId" validate:"required"`
}

type ICECandidate struct {
	RoomID         string          `json:"roomId" validate:"required"`
	Candidate      json.RawMessage `json:"candidate" validate:"payload"`
	TargetSocketID string          `json:"targetSocketId" validate:"required"`
}

type ChatMessage struct {
	RoomID   string `json:"roomId" validate:"required"`
	Message  string `json:"message" validate:"required,max=4096"`
	UserName string `json:"userName" validate:"max=64"`
	UserType string `json:"userType" validate:"omitempty,oneof=doctor patient"`
}

type ScreenShareToggle struct {
	RoomID    string `json:"roomId" validate:"required"`
	IsSharing *bool  `json:"isSharing" validate:"required"`
	UserName  string `json:"userName" validate:"max=64"`
}

type LeaveCall struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}

type Ping struct{}

// Outbound payloads.

type Connected struct {
	SocketID string `json:"socketId"`
}

type UserJoined struct {
	SocketID    string                   `json:"socketId"`
	UserID      domain.UserID            `json:"userId"`
	UserType    domain.UserType          `json:"userType"`
	UserName    string                   `json:"userName"`
	UsersInRoom []domain.ParticipantInfo `json:"usersInRoom"`
}

type UserLeft struct {
	SocketID string          `json:"socketId"`
	UserID   domain.UserID   `json:"userId"`
	UserName string          `json:"userName"`
	UserType domain.UserType `json:"userType"`
}

type RelayedOffer struct {
	Offer    json.RawMessage `json:"offer"`
	SocketID string          `json:"socketId"`
}

type RelayedAnswer struct {
	Answer   json.RawMessage `json:"answer"`
	SocketID string          `json:"socketId"`
}

type RelayedICECandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	SocketID  string          `json:"socketId"`
}

type ChatBroadcast struct {
	Message   string          `json:"message"`
	UserName  string          `json:"userName"`
	UserType  domain.UserType `json:"userType"`
	Timestamp time.Time       `json:"timestamp"`
	SocketID  string          `json:"socketId"`
}

type ScreenShareNotice struct {
	SocketID  string `json:"socketId"`
	IsSharing bool   `json:"isSharing"`
	UserName  string `json:"userName"`
}

type Error struct {
	Message string `json:"message"`
}

type Pong struct{}
