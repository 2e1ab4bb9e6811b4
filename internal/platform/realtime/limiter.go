package realtime

import (
	"sync"
	"time"

	"github.com/homecare/homecare/internal/platform/apperror"
)

const (
	// DefaultSendLimit is the maximum number of chat messages per window.
	DefaultSendLimit = 5
	// DefaultSendWindow is the sliding window over which sends are counted.
	DefaultSendWindow = 10 * time.Second
)

// SendLimiter enforces a per-actor sliding window on message sends. State is
// keyed by actor, not connection, so switching devices does not reset the
// budget. Reset clears an actor's window and is wired to the registry's
// offline callback.
type SendLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	byActor map[string][]time.Time
}

func NewSendLimiter(max int, window time.Duration) *SendLimiter {
	if max <= 0 {
		max = DefaultSendLimit
	}
	if window <= 0 {
		window = DefaultSendWindow
	}
	return &SendLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		byActor: make(map[string][]time.Time),
	}
}

// Allow records one send for the actor if the window has budget left, or
// returns a throttled error carrying the wait until the oldest recorded send
// slides out of the window.
func (l *SendLimiter) Allow(actorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.byActor[actorID][:0]
	for _, t := range l.byActor[actorID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.byActor[actorID] = recent
		retry := recent[0].Add(l.window).Sub(now)
		return apperror.Throttled("message rate limit exceeded", retry)
	}

	l.byActor[actorID] = append(recent, now)
	return nil
}

// Reset discards the actor's window.
func (l *SendLimiter) Reset(actorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byActor, actorID)
}
