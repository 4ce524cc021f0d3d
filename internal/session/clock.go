package session

import (
	"time"

	"github.com/park285/chess-arena/pkg/arenadto"
)

// ClockService drives one ticking goroutine per active session. Each tick
// debits wall-clock time from the side to move and broadcasts both clocks;
// a side reaching zero triggers timeout completion. A tick that observes a
// locked session performs no further mutation.
type ClockService struct {
	interval  time.Duration
	notifier  Notifier
	onTimeout func(s *Session, loser Color)
}

func newClockService(interval time.Duration, notifier Notifier, onTimeout func(*Session, Color)) *ClockService {
	if interval <= 0 {
		interval = time.Second
	}
	return &ClockService{interval: interval, notifier: notifier, onTimeout: onTimeout}
}

// Start begins ticking for a session. Starting an already ticking session
// is a no-op.
func (c *ClockService) Start(s *Session) {
	s.mu.Lock()
	if s.stopClock != nil && !s.clockStopped {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopClock = stop
	s.clockStopped = false
	s.LastTick = time.Now()
	s.mu.Unlock()

	go c.run(s, stop)
}

func (c *ClockService) run(s *Session, stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !c.tick(s, now) {
				return
			}
		}
	}
}

// tick performs one clock step; false stops the loop.
func (c *ClockService) tick(s *Session, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Locked || s.Status != StatusActive || s.clockStopped {
		return false
	}

	s.checkpoint(now)
	white, black := s.remaining()

	update := arenadto.TimeUpdate{
		WhiteTimeRemaining: int(white.Round(time.Second).Seconds()),
		BlackTimeRemaining: int(black.Round(time.Second).Seconds()),
	}
	if s.White != nil {
		c.notifier.Notify(s.White.ConnectionID, arenadto.EvTimeUpdate, update)
	}
	if s.Black != nil {
		c.notifier.Notify(s.Black.ConnectionID, arenadto.EvTimeUpdate, update)
	}

	if white <= 0 {
		c.onTimeout(s, White)
		return false
	}
	if black <= 0 {
		c.onTimeout(s, Black)
		return false
	}
	return true
}

// stopClockLocked halts ticking. Idempotent; double-stop is a no-op.
// Caller holds the session mutex.
func (s *Session) stopClockLocked() {
	if s.stopClock != nil && !s.clockStopped {
		close(s.stopClock)
		s.clockStopped = true
	}
}
