package domain

import (
	"fmt"
	"time"
)

// MeetingStatus is the persisted state of a consultation.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

var ErrMeetingStatus = fmt.Errorf("%w: unknown meeting status", ErrValidation)

func ParseMeetingStatus(s string) (MeetingStatus, error) {
	switch st := MeetingStatus(s); st {
	case MeetingScheduled, MeetingActive, MeetingCompleted, MeetingCancelled:
		return st, nil
	}
	return "", ErrMeetingStatus
}

// MeetingParticipant is one historical presence interval.
type MeetingParticipant struct {
	UserID   UserID     `json:"userId"`
	UserType UserType   `json:"userType"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

// Meeting is the durable record of one appointment's call.
type Meeting struct {
	AppointmentID string               `json:"appointmentId"`
	RoomID        RoomID               `json:"roomId"`
	DoctorID      UserID               `json:"doctorId"`
	PatientID     UserID               `json:"patientId"`
	ScheduledTime time.Time            `json:"scheduledTime"`
	StartTime     *time.Time           `json:"startTime,omitempty"`
	EndTime       *time.Time           `json:"endTime,omitempty"`
	Status        MeetingStatus        `json:"status"`
	Participants  []MeetingParticipant `json:"participants"`
	Duration      int64                `json:"duration"` // seconds
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// NewMeeting builds a scheduled meeting for an appointment.
// A zero scheduledTime means "now".
func NewMeeting(appointmentID string, doctorID, patientID UserID, scheduledTime, now time.Time) *Meeting {
	if scheduledTime.IsZero() {
		scheduledTime = now
	}
	return &Meeting{
		AppointmentID: appointmentID,
		RoomID:        RoomIDFor(appointmentID),
		DoctorID:      doctorID,
		PatientID:     patientID,
		ScheduledTime: scheduledTime,
		Status:        MeetingScheduled,
		Participants:  []MeetingParticipant{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddParticipant appends a presence interval. History is never rewritten.
func (m *Meeting) AddParticipant(userID UserID, userType UserType, at time.Time) {
	m.Participants = append(m.Participants, MeetingParticipant{
		UserID:   userID,
		UserType: userType,
		JoinedAt: at,
	})
	m.UpdatedAt = at
}

// CloseParticipant stamps leftAt on the most recent open entry of userID.
// Reports false when the user has no open entry.
func (m *Meeting) CloseParticipant(userID UserID, at time.Time) bool {
	for i := len(m.Participants) - 1; i >= 0; i-- {
		p := &m.Participants[i]
		if p.UserID != userID || p.LeftAt != nil {
			continue
		}
		left := at
		p.LeftAt = &left
		m.UpdatedAt = at
		return true
	}
	return false
}

// Activate marks the meeting as in progress. Applying it twice is harmless.
func (m *Meeting) Activate(at time.Time) {
	m.Status = MeetingActive
	m.UpdatedAt = at
}

// Complete closes the meeting when its room empties.
// Duration is left untouched here; only ApplyStatusUpdate derives it.
func (m *Meeting) Complete(at time.Time) {
	end := at
	m.Status = MeetingCompleted
	m.EndTime = &end
	m.UpdatedAt = at
}

// StatusUpdate carries the optional fields of an administrative status change.
type StatusUpdate struct {
	Status    *MeetingStatus
	StartTime *time.Time
	EndTime   *time.Time
}

// ApplyStatusUpdate merges u into the meeting. When an end time is supplied the
// duration is recomputed from the start time of the same update, or the stored one.
func (m *Meeting) ApplyStatusUpdate(u StatusUpdate, now time.Time) {
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.StartTime != nil {
		start := *u.StartTime
		m.StartTime = &start
	}
	if u.EndTime != nil {
		end := *u.EndTime
		m.EndTime = &end
		if m.StartTime != nil {
			m.Duration = int64(end.Sub(*m.StartTime) / time.Second)
		}
	}
	m.UpdatedAt = now
}

// Clone returns a deep copy safe to hand across goroutines.
func (m *Meeting) Clone() *Meeting {
	c := *m
	if m.StartTime != nil {
		t := *m.StartTime
		c.StartTime = &t
	}
	if m.EndTime != nil {
		t := *m.EndTime
		c.EndTime = &t
	}
	c.Participants = make([]MeetingParticipant, len(m.Participants))
	for i, p := range m.Participants {
		c.Participants[i] = p
		if p.LeftAt != nil {
			t := *p.LeftAt
			c.Participants[i].LeftAt = &t
		}
	}
	return &c
}
