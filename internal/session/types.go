package session

import (
	"sync"
	"time"

	"github.com/park285/chess-arena/internal/rules"
)

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Status is the session lifecycle state. Transitions are monotonic:
// waiting → active → finished|abandoned.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusAbandoned Status = "abandoned"
	StatusFinished  Status = "finished"
)

// PlayerRef binds a connection to an identity for the lifetime of one
// session. Identity and rating come from the identity collaborator and are
// never re-derived here.
type PlayerRef struct {
	ConnectionID string
	UserID       string
	Username     string
	Rating       int
	Wager        int
}

// MoveRecord is one accepted move. The log is append-only.
type MoveRecord struct {
	From           string
	To             string
	Promotion      string
	SAN            string
	ResultingState string
	SubmittedAt    time.Time
	ConnectionID   string
}

// MoveInput is a connection-submitted move before validation.
type MoveInput struct {
	From        string
	To          string
	Promotion   string
	ClientState string
}

// Session is one live match. Every mutation (moves, resignation, draw
// resolution, clock ticks, disconnect cleanup) happens under mu, so no two
// such operations interleave.
type Session struct {
	ID string

	mu sync.Mutex

	White *PlayerRef
	Black *PlayerRef

	Game rules.Game

	TimeControl    time.Duration
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	LastTick       time.Time

	Turn    Color
	Status  Status
	Locked  bool
	MoveLog []MoveRecord

	CreatedAt time.Time

	// Anti-cheat bookkeeping.
	lastMoveAt time.Time
	recent     map[string][]time.Time

	// Clock control, owned by the clock service.
	stopClock    chan struct{}
	clockStopped bool
}

// colorOf reports the color assigned to a connection, or "" when the
// connection is not seated. Caller holds mu.
func (s *Session) colorOf(connID string) Color {
	if s.White != nil && s.White.ConnectionID == connID {
		return White
	}
	if s.Black != nil && s.Black.ConnectionID == connID {
		return Black
	}
	return ""
}

func (s *Session) player(c Color) *PlayerRef {
	if c == White {
		return s.White
	}
	return s.Black
}

// remaining returns both clocks. Caller holds mu.
func (s *Session) remaining() (white, black time.Duration) {
	return s.WhiteRemaining, s.BlackRemaining
}

// checkpoint debits elapsed wall-clock time from the side to move and
// advances LastTick, clamping at zero. Both the clock tick and the move
// path use this so time is never double-charged. Caller holds mu.
func (s *Session) checkpoint(now time.Time) {
	elapsed := now.Sub(s.LastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	if s.Turn == White {
		s.WhiteRemaining -= elapsed
		if s.WhiteRemaining < 0 {
			s.WhiteRemaining = 0
		}
	} else {
		s.BlackRemaining -= elapsed
		if s.BlackRemaining < 0 {
			s.BlackRemaining = 0
		}
	}
	s.LastTick = now
}
