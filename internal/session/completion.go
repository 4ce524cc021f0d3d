package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rating"
	"github.com/park285/chess-arena/internal/record"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// Recorder archives finished games. Calls are best-effort.
type Recorder interface {
	SaveCompletedGame(ctx context.Context, rec *record.GameRecord) error
}

// OutcomeStore updates a player's stored rating and W/L/D counters.
type OutcomeStore interface {
	ApplyOutcome(ctx context.Context, userID string, ratingDelta int, outcome string) error
}

const persistTimeout = 10 * time.Second

// Bridge finalizes a terminal session exactly once: rating deltas, the
// gameOver/gameStats broadcast, and fire-and-forget persistence. The live
// broadcast is authoritative; storage failures are logged and swallowed.
type Bridge struct {
	notifier Notifier
	recorder Recorder
	outcomes OutcomeStore
}

// finalizeLocked drives the completion bridge and evicts the session.
// Caller holds the session mutex. Safe to call repeatedly; only the first
// call on a session does anything.
func (r *Registry) finalizeLocked(s *Session, winner Color, reason string) {
	if !r.bridge.completeLocked(s, winner, reason) {
		return
	}
	r.evict(s.ID)
}

func (b *Bridge) completeLocked(s *Session, winner Color, reason string) bool {
	if s.Locked {
		return false
	}
	s.Locked = true
	s.Status = StatusFinished
	s.stopClockLocked()

	finalState := s.Game.State()

	var whiteDelta, blackDelta int
	white, black := s.White, s.Black
	if white != nil && black != nil {
		outcome := rating.Draw
		switch winner {
		case White:
			outcome = rating.AWins
		case Black:
			outcome = rating.BWins
		}
		whiteDelta, blackDelta = rating.ComputeDeltas(white.Rating, black.Rating, outcome)
	}

	over := arenadto.GameOver{Winner: string(winner), Reason: reason, FinalState: finalState}
	stats := arenadto.GameStats{WhiteRatingDelta: whiteDelta, BlackRatingDelta: blackDelta}
	for _, p := range []*PlayerRef{white, black} {
		if p == nil {
			continue
		}
		b.notifier.Notify(p.ConnectionID, arenadto.EvGameOver, over)
		b.notifier.Notify(p.ConnectionID, arenadto.EvGameStats, stats)
	}

	obslog.L().Info("session_finished",
		zap.String("session_id", s.ID),
		zap.String("winner", string(winner)),
		zap.String("reason", reason),
		zap.Int("moves", len(s.MoveLog)),
		zap.Int("white_delta", whiteDelta),
		zap.Int("black_delta", blackDelta),
	)

	if white != nil && black != nil {
		rec := buildRecord(s, winner, reason, finalState, whiteDelta, blackDelta)
		go b.persist(rec, white.UserID, black.UserID, winner, whiteDelta, blackDelta)
	}
	return true
}

// buildRecord snapshots everything persistence needs while the session
// mutex is still held.
func buildRecord(s *Session, winner Color, reason, finalState string, whiteDelta, blackDelta int) *record.GameRecord {
	movesUCI := make([]string, 0, len(s.MoveLog))
	movesSAN := make([]string, 0, len(s.MoveLog))
	for _, m := range s.MoveLog {
		movesUCI = append(movesUCI, m.From+m.To+m.Promotion)
		movesSAN = append(movesSAN, m.SAN)
	}
	return &record.GameRecord{
		SessionID:      s.ID,
		WhiteUserID:    s.White.UserID,
		WhiteName:      s.White.Username,
		BlackUserID:    s.Black.UserID,
		BlackName:      s.Black.Username,
		WhiteRating:    s.White.Rating,
		BlackRating:    s.Black.Rating,
		WhiteDelta:     whiteDelta,
		BlackDelta:     blackDelta,
		WhiteWager:     s.White.Wager,
		BlackWager:     s.Black.Wager,
		TimeControlSec: int(s.TimeControl.Seconds()),
		Winner:         string(winner),
		Reason:         reason,
		FinalState:     finalState,
		MovesUCI:       movesUCI,
		MovesSAN:       movesSAN,
		StartedAt:      s.CreatedAt,
		EndedAt:        time.Now(),
	}
}

// persist runs off the hot path. The sockets already carry the result;
// nothing here is allowed to affect it.
func (b *Bridge) persist(rec *record.GameRecord, whiteUser, blackUser string, winner Color, whiteDelta, blackDelta int) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if b.recorder != nil {
		if err := b.recorder.SaveCompletedGame(ctx, rec); err != nil {
			obslog.L().Error("game_record_persist_error",
				zap.String("session_id", rec.SessionID),
				zap.Error(err),
			)
		}
	}

	if b.outcomes != nil {
		whiteOutcome, blackOutcome := "draw", "draw"
		switch winner {
		case White:
			whiteOutcome, blackOutcome = "win", "loss"
		case Black:
			whiteOutcome, blackOutcome = "loss", "win"
		}
		if err := b.outcomes.ApplyOutcome(ctx, whiteUser, whiteDelta, whiteOutcome); err != nil {
			obslog.L().Error("profile_persist_error", zap.String("user_id", whiteUser), zap.Error(err))
		}
		if err := b.outcomes.ApplyOutcome(ctx, blackUser, blackDelta, blackOutcome); err != nil {
			obslog.L().Error("profile_persist_error", zap.String("user_id", blackUser), zap.Error(err))
		}
	}
}
