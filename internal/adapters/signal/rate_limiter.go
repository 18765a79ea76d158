package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/domain"
)

// sendLog keeps the timestamps of the last accepted messages of one user in a
// fixed ring. The slot at next is always the oldest one once the ring is full.
type sendLog struct {
	stamps []time.Time
	next   int
}

func (sl *sendLog) newest() time.Time {
	if len(sl.stamps) < cap(sl.stamps) {
		return sl.stamps[len(sl.stamps)-1]
	}
	return sl.stamps[(sl.next+len(sl.stamps)-1)%len(sl.stamps)]
}

// ChatRateLimiter accepts at most limit chat messages per user within any
// window of the given length.
type ChatRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	logs      map[domain.UserID]*sendLog
	lastSweep time.Time
}

func NewChatRateLimiter(limit int, window time.Duration) *ChatRateLimiter {
	return &ChatRateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		logs:   make(map[domain.UserID]*sendLog),
	}
}

// Allow records a message for uid and reports whether it may be relayed.
// Rejected messages are not recorded.
func (rl *ChatRateLimiter) Allow(uid domain.UserID) bool {
	at := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweep(at)

	sl, ok := rl.logs[uid]
	if !ok {
		sl = &sendLog{stamps: make([]time.Time, 0, rl.limit)}
		rl.logs[uid] = sl
	}
	if len(sl.stamps) < rl.limit {
		sl.stamps = append(sl.stamps, at)
		return true
	}
	if at.Sub(sl.stamps[sl.next]) <= rl.window {
		return false
	}
	sl.stamps[sl.next] = at
	sl.next = (sl.next + 1) % rl.limit
	return true
}

// sweep forgets users whose last accepted message is older than one window.
// It runs at most once per window.
func (rl *ChatRateLimiter) sweep(at time.Time) {
	if at.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = at
	for uid, sl := range rl.logs {
		if at.Sub(sl.newest()) > rl.window {
			delete(rl.logs, uid)
		}
	}
}
