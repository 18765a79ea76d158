package domain

import "strings"

type RoomID string

const roomPrefix = "room-"

// RoomIDFor derives the room token of an appointment.
func RoomIDFor(appointmentID string) RoomID {
	return RoomID(roomPrefix + appointmentID)
}

// AppointmentID reverses RoomIDFor. ok is false for tokens not minted by it.
func (id RoomID) AppointmentID() (string, bool) {
	s := string(id)
	if !strings.HasPrefix(s, roomPrefix) || len(s) == len(roomPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, roomPrefix), true
}
