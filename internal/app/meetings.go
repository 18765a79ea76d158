package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingFields = fmt.Errorf("%w: missing required fields", domain.ErrValidation)
)

// CreateMeetingInput is what the administrative API accepts for a new meeting.
type CreateMeetingInput struct {
	AppointmentID string
	DoctorID      string
	PatientID     string
	ScheduledTime time.Time
}

// MeetingService implements the administrative operations on meeting records.
type MeetingService struct {
	store  core.MeetingStore
	events *MeetingEvents
	now    func() time.Time
}

func NewMeetingService(store core.MeetingStore, events *MeetingEvents) *MeetingService {
	return &MeetingService{store: store, events: events, now: time.Now}
}

// CreateMeeting is idempotent on the appointment id: a second call returns the
// stored record with created == false.
func (s *MeetingService) CreateMeeting(ctx context.Context, in CreateMeetingInput) (*domain.Meeting, bool, error) {
	if in.AppointmentID == "" || in.DoctorID == "" || in.PatientID == "" {
		return nil, false, ErrMissingFields
	}
	m := domain.NewMeeting(in.AppointmentID, domain.UserID(in.DoctorID), domain.UserID(in.PatientID), in.ScheduledTime, s.now())
	stored, created, err := s.store.CreateMeeting(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("create meeting: %w", err)
	}
	if created {
		log.Info().Str("module", "app.meetings").Str("room", string(stored.RoomID)).Msg("meeting created")
		s.events.Publish(stored)
	}
	return stored, created, nil
}

func (s *MeetingService) GetMeeting(ctx context.Context, roomID domain.RoomID) (*domain.Meeting, error) {
	return s.store.GetMeetingByRoom(ctx, roomID)
}

func (s *MeetingService) UpdateStatus(ctx context.Context, roomID domain.RoomID, u domain.StatusUpdate) (*domain.Meeting, error) {
	now := s.now()
	m, err := s.store.UpdateMeeting(ctx, roomID, func(m *domain.Meeting) error {
		m.ApplyStatusUpdate(u, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(m)
	return m, nil
}

func (s *MeetingService) AddParticipant(ctx context.Context, roomID domain.RoomID, userID string, userType domain.UserType) (*domain.Meeting, error) {
	if userID == "" {
		return nil, ErrMissingFields
	}
	if !userType.Valid() {
		return nil, domain.ErrUserType
	}
	now := s.now()
	m, err := s.store.UpdateMeeting(ctx, roomID, func(m *domain.Meeting) error {
		m.AddParticipant(domain.UserID(userID), userType, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(m)
	return m, nil
}
