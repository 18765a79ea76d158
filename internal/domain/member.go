package domain

import "time"

// Member represents a user's live participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	User     *User
	JoinedAt time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, joinedAt time.Time) *Member {
	return &Member{User: user, JoinedAt: joinedAt}
}

// ParticipantInfo is a roster entry as it travels on the wire.
type ParticipantInfo struct {
	SocketID string    `json:"socketId"`
	UserID   UserID    `json:"userId"`
	UserType UserType  `json:"userType"`
	UserName string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}
