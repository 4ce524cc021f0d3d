package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// GameRecord is the archival shape of one finished match.
type GameRecord struct {
	SessionID string

	WhiteUserID string
	WhiteName   string
	BlackUserID string
	BlackName   string

	WhiteRating int
	BlackRating int
	WhiteDelta  int
	BlackDelta  int

	WhiteWager int
	BlackWager int

	TimeControlSec int
	Winner         string // "white", "black", or "" for draws
	Reason         string
	FinalState     string

	MovesUCI []string
	MovesSAN []string

	StartedAt time.Time
	EndedAt   time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveCompletedGame upserts a finished game. Best-effort: the caller logs
// failures and never retries on the live path.
func (r *Repository) SaveCompletedGame(ctx context.Context, rec *GameRecord) error {
	if r == nil || r.db == nil || rec == nil {
		return nil
	}

	pgn := BuildPGN(rec)
	movesUCI, _ := json.Marshal(rec.MovesUCI)
	movesSAN, _ := json.Marshal(rec.MovesSAN)
	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO arena_games (
	    game_id, white_user_id, white_name, black_user_id, black_name,
	    white_rating, black_rating, white_delta, black_delta,
	    white_wager, black_wager, time_control_sec,
	    result, result_reason, final_state, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16::jsonb,$17::jsonb,$18,$19,$20,$21
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    result_reason=EXCLUDED.result_reason,
	    final_state=EXCLUDED.final_state,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    white_delta=EXCLUDED.white_delta,
	    black_delta=EXCLUDED.black_delta,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.SessionID,
		rec.WhiteUserID, rec.WhiteName,
		rec.BlackUserID, rec.BlackName,
		rec.WhiteRating, rec.BlackRating,
		rec.WhiteDelta, rec.BlackDelta,
		rec.WhiteWager, rec.BlackWager,
		rec.TimeControlSec,
		rec.Winner, rec.Reason, rec.FinalState,
		string(movesUCI), string(movesSAN), pgn,
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}
