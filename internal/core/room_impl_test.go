package core

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (c *recordConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordConn) Close() {}

func (c *recordConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func member(t *testing.T, sid, userID string, conn SignalConnection) MemberSession {
	t.Helper()
	u, err := domain.NewUser(userID, "name-"+userID, domain.UserTypePatient)
	require.NoError(t, err)
	return NewMemberSession(SessionID(sid), domain.NewMember(u, time.Now()), conn)
}

func TestRoomRosterKeepsJoinOrder(t *testing.T) {
	r := NewRoomService("room-A1")

	_, err := r.AddMember("s1", member(t, "s1", "a", &recordConn{}), nil)
	require.NoError(t, err)
	_, err = r.AddMember("s2", member(t, "s2", "b", &recordConn{}), nil)
	require.NoError(t, err)
	roster, err := r.AddMember("s1", member(t, "s1", "a2", &recordConn{}), nil)
	require.NoError(t, err)

	require.Len(t, roster, 2)
	assert.Equal(t, "s1", roster[0].SocketID)
	assert.Equal(t, domain.UserID("a2"), roster[0].UserID, "re-join overwrites info")
	assert.Equal(t, "s2", roster[1].SocketID)
}

func TestRoomAnnounceExcludesActor(t *testing.T) {
	r := NewRoomService("room-A1")
	_, _ = r.AddMember("s1", member(t, "s1", "a", &recordConn{}), nil)

	var others []MemberSession
	var seen []domain.ParticipantInfo
	_, err := r.AddMember("s2", member(t, "s2", "b", &recordConn{}), func(roster []domain.ParticipantInfo, o []MemberSession) {
		seen, others = roster, o
	})
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, SessionID("s1"), others[0].ID())
	assert.Len(t, seen, 2)
}

func TestRoomClosesWhenEmpty(t *testing.T) {
	r := NewRoomService("room-A1")
	_, _ = r.AddMember("s1", member(t, "s1", "a", &recordConn{}), nil)

	ms, remaining, ok := r.RemoveMember("s1", nil)
	require.True(t, ok)
	assert.Equal(t, SessionID("s1"), ms.ID())
	assert.Zero(t, remaining)
	assert.True(t, r.Closed())

	_, _, ok = r.RemoveMember("s1", nil)
	assert.False(t, ok)

	_, err := r.AddMember("s2", member(t, "s2", "b", &recordConn{}), nil)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoomBroadcast(t *testing.T) {
	r := NewRoomService("room-A1")
	c1, c2, c3 := &recordConn{}, &recordConn{}, &recordConn{full: true}
	_, _ = r.AddMember("s1", member(t, "s1", "a", c1), nil)
	_, _ = r.AddMember("s2", member(t, "s2", "b", c2), nil)
	_, _ = r.AddMember("s3", member(t, "s3", "c", c3), nil)

	res := r.Broadcast("s1", Frame("x"), false)
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, SessionID("s3"), res.Dropped[0].ID())
	assert.Zero(t, c1.count())

	res = r.Broadcast("s1", Frame("y"), true)
	assert.Equal(t, 2, res.SendTo)
	assert.Equal(t, 1, c1.count())
	assert.Equal(t, 2, c2.count())
}
