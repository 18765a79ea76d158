package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMeetingIsIdempotent(t *testing.T) {
	svc := NewMeetingService(memory.NewRepository(), NewMeetingEvents())
	ctx := context.Background()

	m, created, err := svc.CreateMeeting(ctx, CreateMeetingInput{AppointmentID: "A1", DoctorID: "d1", PatientID: "p1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoomID("room-A1"), m.RoomID)
	assert.Equal(t, domain.MeetingScheduled, m.Status)
	assert.False(t, m.ScheduledTime.IsZero())

	again, created, err := svc.CreateMeeting(ctx, CreateMeetingInput{AppointmentID: "A1", DoctorID: "d2", PatientID: "p2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.UserID("d1"), again.DoctorID)
}

func TestCreateMeetingValidation(t *testing.T) {
	svc := NewMeetingService(memory.NewRepository(), nil)
	_, _, err := svc.CreateMeeting(context.Background(), CreateMeetingInput{AppointmentID: "A1", DoctorID: "d1"})
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateStatusDuration(t *testing.T) {
	svc := NewMeetingService(memory.NewRepository(), nil)
	ctx := context.Background()
	_, _, err := svc.CreateMeeting(ctx, CreateMeetingInput{AppointmentID: "A1", DoctorID: "d1", PatientID: "p1"})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	active, completed := domain.MeetingActive, domain.MeetingCompleted

	m, err := svc.UpdateStatus(ctx, "room-A1", domain.StatusUpdate{Status: &active, StartTime: &start})
	require.NoError(t, err)
	assert.Zero(t, m.Duration)

	m, err = svc.UpdateStatus(ctx, "room-A1", domain.StatusUpdate{Status: &completed, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingCompleted, m.Status)
	assert.Equal(t, int64(1800), m.Duration)

	_, err = svc.UpdateStatus(ctx, "room-none", domain.StatusUpdate{Status: &active})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddParticipant(t *testing.T) {
	svc := NewMeetingService(memory.NewRepository(), nil)
	ctx := context.Background()
	_, _, err := svc.CreateMeeting(ctx, CreateMeetingInput{AppointmentID: "A1", DoctorID: "d1", PatientID: "p1"})
	require.NoError(t, err)

	_, err = svc.AddParticipant(ctx, "room-A1", "", domain.UserTypeDoctor)
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.AddParticipant(ctx, "room-A1", "d1", "nurse")
	assert.ErrorIs(t, err, domain.ErrUserType)
	_, err = svc.AddParticipant(ctx, "room-zz", "d1", domain.UserTypeDoctor)
	assert.ErrorIs(t, err, core.ErrNotFound)

	m, err := svc.AddParticipant(ctx, "room-A1", "d1", domain.UserTypeDoctor)
	require.NoError(t, err)
	require.Len(t, m.Participants, 1)
	assert.Equal(t, domain.UserID("d1"), m.Participants[0].UserID)
}

func TestMeetingEventsFanOut(t *testing.T) {
	events := NewMeetingEvents()
	a, cancelA := events.Subscribe("room-1")
	b, cancelB := events.Subscribe("room-1")
	other, cancelOther := events.Subscribe("room-2")
	defer cancelB()
	defer cancelOther()

	m := domain.NewMeeting("1", "d", "p", time.Time{}, time.Now())
	events.Publish(m)

	got := <-a
	assert.Equal(t, m.RoomID, got.RoomID)
	got.Participants = append(got.Participants, domain.MeetingParticipant{UserID: "x"})
	assert.Empty(t, (<-b).Participants, "subscribers get independent copies")
	assert.Empty(t, other)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	// a lagging subscriber never blocks the publisher
	for i := 0; i < 20; i++ {
		events.Publish(m)
	}
	var nilEvents *MeetingEvents
	nilEvents.Publish(m)
}
