package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// guardMove runs the anti-cheat preconditions in order; the first failing
// check short-circuits with no state mutation. Caller holds the session
// mutex. Returns the mover's color on success.
func (r *Registry) guardMove(s *Session, connID, clientState string, now time.Time) (Color, error) {
	if s.Status != StatusActive || s.Locked {
		return "", arenadto.Conflict("game is not active")
	}

	// A stale client-observed state means the client is not looking at the
	// position the server holds. Reject without mutation; the next
	// gameState broadcast is the resync.
	if clientState != "" && clientState != s.Game.State() {
		r.warn(s, connID, "client state does not match server state")
		return "", arenadto.Conflict("stale client state")
	}

	color := s.colorOf(connID)
	if color == "" {
		return "", arenadto.Conflict("not a participant")
	}
	if color != s.Turn {
		return "", arenadto.Conflict("not your turn")
	}

	if !s.lastMoveAt.IsZero() && now.Sub(s.lastMoveAt) < r.cfg.MinMoveInterval() {
		r.warn(s, connID, "moves submitted too quickly")
		return "", arenadto.AntiCheat("move interval below minimum")
	}

	if s.recentMoves(connID, now, r.cfg.MoveRateWindow()) >= r.cfg.MoveRateCap {
		r.warn(s, connID, "move rate limit exceeded")
		return "", arenadto.AntiCheat("move rate limit exceeded")
	}

	return color, nil
}

// recentMoves counts this connection's accepted moves inside the trailing
// window, pruning older entries as a side effect. Caller holds mu.
func (s *Session) recentMoves(connID string, now time.Time, window time.Duration) int {
	times := s.recent[connID]
	kept := times[:0]
	for _, t := range times {
		if now.Sub(t) <= window {
			kept = append(kept, t)
		}
	}
	s.recent[connID] = kept
	return len(kept)
}

func (r *Registry) warn(s *Session, connID, message string) {
	r.notifier.Notify(connID, arenadto.EvCheatingWarning, arenadto.CheatingWarning{Message: message})
	obslog.L().Warn("cheating_warning",
		zap.String("session_id", s.ID),
		zap.String("conn_id", connID),
		zap.String("message", message),
	)
}
