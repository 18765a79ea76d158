package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/dkeye/Consult/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMeetingIsIdempotent(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	now := time.Now()

	m, created, err := repo.CreateMeeting(ctx, domain.NewMeeting("A1", "doc", "pat", time.Time{}, now))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoomID("room-A1"), m.RoomID)

	again, created, err := repo.CreateMeeting(ctx, domain.NewMeeting("A1", "other", "other", time.Time{}, now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.UserID("doc"), again.DoctorID)
	assert.Equal(t, 1, repo.Count())
}

func TestUpdateMeeting(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	_, _, err := repo.CreateMeeting(ctx, domain.NewMeeting("A1", "doc", "pat", time.Time{}, time.Now()))
	require.NoError(t, err)

	t.Run("applies mutation", func(t *testing.T) {
		m, err := repo.UpdateMeeting(ctx, "room-A1", func(m *domain.Meeting) error {
			m.Activate(time.Now())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MeetingActive, m.Status)
	})

	t.Run("mutation error leaves record intact", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := repo.UpdateMeeting(ctx, "room-A1", func(m *domain.Meeting) error {
			m.Status = domain.MeetingCancelled
			return boom
		})
		assert.ErrorIs(t, err, boom)

		m, err := repo.GetMeetingByRoom(ctx, "room-A1")
		require.NoError(t, err)
		assert.Equal(t, domain.MeetingActive, m.Status)
	})

	t.Run("unknown room", func(t *testing.T) {
		_, err := repo.UpdateMeeting(ctx, "room-nope", func(*domain.Meeting) error { return nil })
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = repo.GetMeetingByRoom(ctx, "room-nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestUpdateMeetingConcurrent(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()
	_, _, err := repo.CreateMeeting(ctx, domain.NewMeeting("A1", "doc", "pat", time.Time{}, time.Now()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateMeeting(ctx, "room-A1", func(m *domain.Meeting) error {
				m.AddParticipant("u", domain.UserTypePatient, time.Now())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := repo.GetMeetingByRoom(ctx, "room-A1")
	require.NoError(t, err)
	assert.Len(t, m.Participants, 50)
}
