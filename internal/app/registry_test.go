package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBindCancelUnbind(t *testing.T) {
	r := NewRegistry()
	conn := &nopConn{}
	cancelled := 0
	r.BindSignal("A", conn, func() { cancelled++ })

	got, ok := r.GetSignal("A")
	require.True(t, ok)
	assert.Equal(t, conn, got)
	assert.Equal(t, 1, r.Count())

	assert.True(t, r.Cancel("A"))
	assert.Equal(t, 1, cancelled)
	assert.False(t, r.Cancel("missing"))

	r.Unbind("A")
	r.Unbind("A")
	_, ok = r.GetSignal("A")
	assert.False(t, ok)
	assert.Zero(t, r.Count())
}

func TestRegistryDrainWaitsForDisconnects(t *testing.T) {
	r := NewRegistry()
	for _, sid := range []core.SessionID{"A", "B", "C"} {
		r.BindSignal(sid, &nopConn{}, func() {
			go r.Unbind(sid)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	assert.Zero(t, r.Count())
}

func TestRegistryDrainGivesUpAtDeadline(t *testing.T) {
	r := NewRegistry()
	cancelled := 0
	r.BindSignal("stuck", &nopConn{}, func() { cancelled++ })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 1, r.Count())
}
