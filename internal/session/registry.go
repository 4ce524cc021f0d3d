package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// Registry owns every live session. The map itself is guarded by mu; all
// state inside one session is serialized by that session's own mutex. No
// caller may hold mu while acquiring a session mutex; the completion path
// evicts in the opposite order.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byConn   map[string]string

	cfg      *config.AppConfig
	notifier Notifier
	clock    *ClockService
	bridge   *Bridge
}

func NewRegistry(cfg *config.AppConfig, notifier Notifier, recorder Recorder, outcomes OutcomeStore) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		cfg:      cfg,
		notifier: notifier,
	}
	r.clock = newClockService(cfg.ClockTick(), notifier, r.timeoutLocked)
	r.bridge = &Bridge{notifier: notifier, recorder: recorder, outcomes: outcomes}
	return r
}

// Count reports the number of resident sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Create seats the initiator as white and leaves the session waiting for a
// second player.
func (r *Registry) Create(initiator PlayerRef, timeControl time.Duration, wager int) (sessionID string, color Color, err error) {
	if timeControl < r.cfg.MinTimeControl() {
		return "", "", arenadto.Validation("time control below minimum")
	}
	initiator.Wager = wager

	s := newSession(initiator, timeControl)

	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxConcurrentGames {
		r.mu.Unlock()
		return "", "", arenadto.Conflict("server at game capacity")
	}
	r.sessions[s.ID] = s
	r.byConn[initiator.ConnectionID] = s.ID
	r.mu.Unlock()

	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("user_id", initiator.UserID),
		zap.Int("time_control_sec", int(timeControl.Seconds())),
		zap.Int("wager", wager),
	)
	return s.ID, White, nil
}

func newSession(white PlayerRef, timeControl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.NewString(),
		White:          &white,
		Game:           rules.NewGame(),
		TimeControl:    timeControl,
		WhiteRemaining: timeControl,
		BlackRemaining: timeControl,
		LastTick:       now,
		Turn:           White,
		Status:         StatusWaiting,
		CreatedAt:      now,
		recent:         make(map[string][]time.Time),
	}
}

// Join seats the second player as black, activates the session, and starts
// its clock.
func (r *Registry) Join(sessionID string, joiner PlayerRef) (color Color, timeControl time.Duration, err error) {
	s := r.get(sessionID)
	if s == nil {
		return "", 0, arenadto.NotFound("game not found")
	}

	s.mu.Lock()
	if s.Status != StatusWaiting || s.Black != nil {
		s.mu.Unlock()
		return "", 0, arenadto.Conflict("game is full")
	}
	if s.White != nil && s.White.ConnectionID == joiner.ConnectionID {
		s.mu.Unlock()
		return "", 0, arenadto.Conflict("already seated in this game")
	}
	s.Black = &joiner
	s.Status = StatusActive
	s.LastTick = time.Now()
	tc := s.TimeControl
	white := *s.White
	state := s.Game.State()
	s.mu.Unlock()

	r.mu.Lock()
	r.byConn[joiner.ConnectionID] = s.ID
	r.mu.Unlock()

	full := arenadto.GameFull{Color: string(Black), State: state, TimeControl: int(tc.Seconds())}
	r.notifier.Notify(white.ConnectionID, arenadto.EvGameFull, full)
	r.notifier.Notify(joiner.ConnectionID, arenadto.EvGameFull, full)

	r.clock.Start(s)

	obslog.L().Info("session_join",
		zap.String("session_id", s.ID),
		zap.String("user_id", joiner.UserID),
	)
	return Black, tc, nil
}

// CreateMatch spawns an already-paired active session: white from the
// first-found matchmaking entry, black from the enqueuer. Used by the
// matchmaking queue on acceptance.
func (r *Registry) CreateMatch(white, black PlayerRef, timeControl time.Duration) (string, error) {
	if timeControl < r.cfg.MinTimeControl() {
		return "", arenadto.Validation("time control below minimum")
	}

	s := newSession(white, timeControl)
	s.Black = &black
	s.Status = StatusActive

	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxConcurrentGames {
		r.mu.Unlock()
		return "", arenadto.Conflict("server at game capacity")
	}
	r.sessions[s.ID] = s
	r.byConn[white.ConnectionID] = s.ID
	r.byConn[black.ConnectionID] = s.ID
	r.mu.Unlock()

	r.clock.Start(s)

	obslog.L().Info("session_create_match",
		zap.String("session_id", s.ID),
		zap.String("white_user", white.UserID),
		zap.String("black_user", black.UserID),
	)
	return s.ID, nil
}

// ApplyMove runs the anti-cheat guard, delegates legality to the rules
// engine, commits the move, and returns the new public state for broadcast.
func (r *Registry) ApplyMove(sessionID, connID string, input MoveInput) (*arenadto.GameState, error) {
	s := r.get(sessionID)
	if s == nil {
		return nil, arenadto.NotFound("game not found")
	}

	now := time.Now()

	s.mu.Lock()
	mover, err := r.guardMove(s, connID, input.ClientState, now)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	mv, err := s.Game.ApplyMove(input.From, input.To, input.Promotion)
	if err != nil {
		s.mu.Unlock()
		return nil, arenadto.RulesViolation("illegal move")
	}

	// Charge the mover for think time so the next clock tick starts fresh.
	s.checkpoint(now)

	s.MoveLog = append(s.MoveLog, MoveRecord{
		From:           mv.From,
		To:             mv.To,
		Promotion:      mv.Promotion,
		SAN:            mv.SAN,
		ResultingState: mv.State,
		SubmittedAt:    now,
		ConnectionID:   connID,
	})
	s.Turn = Color(s.Game.TurnToMove())
	s.lastMoveAt = now
	s.recent[connID] = append(s.recent[connID], now)

	state := &arenadto.GameState{
		BoardState: mv.State,
		LastMove:   &arenadto.LastMove{From: mv.From, To: mv.To},
		Timestamp:  now.UnixMilli(),
	}

	terminal := s.Game.IsTerminal()
	var winner Color
	var reason string
	if terminal {
		w, why := s.Game.Terminal()
		winner, reason = Color(w), why
	}

	r.broadcastLocked(s, arenadto.EvGameState, state)
	if terminal {
		r.finalizeLocked(s, winner, reason)
	}
	s.mu.Unlock()

	obslog.L().Info("session_move",
		zap.String("session_id", s.ID),
		zap.String("conn_id", connID),
		zap.String("san", mv.SAN),
		zap.String("color", string(mover)),
		zap.Bool("terminal", terminal),
	)
	return state, nil
}

// Resign ends the session in the opponent's favor. A resign on an already
// locked session is a no-op.
func (r *Registry) Resign(sessionID, connID string) error {
	s := r.get(sessionID)
	if s == nil {
		return arenadto.NotFound("game not found")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Locked {
		return nil
	}
	color := s.colorOf(connID)
	if color == "" {
		return arenadto.Conflict("not a participant")
	}
	if s.Status != StatusActive {
		return arenadto.Conflict("game is not active")
	}
	r.finalizeLocked(s, color.Opponent(), "resignation")
	return nil
}

// OfferDraw relays the offer to the counterpart; no session state changes.
func (r *Registry) OfferDraw(sessionID, connID string) error {
	return r.relayDraw(sessionID, connID, arenadto.EvDrawOffered)
}

// DeclineDraw relays the refusal to the counterpart.
func (r *Registry) DeclineDraw(sessionID, connID string) error {
	return r.relayDraw(sessionID, connID, arenadto.EvDrawDeclined)
}

func (r *Registry) relayDraw(sessionID, connID, event string) error {
	s := r.get(sessionID)
	if s == nil {
		return arenadto.NotFound("game not found")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	color := s.colorOf(connID)
	if color == "" {
		return arenadto.Conflict("not a participant")
	}
	if s.Status != StatusActive || s.Locked {
		return arenadto.Conflict("game is not active")
	}
	if opp := s.player(color.Opponent()); opp != nil {
		r.notifier.Notify(opp.ConnectionID, event, struct{}{})
	}
	return nil
}

// AcceptDraw ends the session as a draw by agreement. No-op when already
// locked.
func (r *Registry) AcceptDraw(sessionID, connID string) error {
	s := r.get(sessionID)
	if s == nil {
		return arenadto.NotFound("game not found")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Locked {
		return nil
	}
	if s.colorOf(connID) == "" {
		return arenadto.Conflict("not a participant")
	}
	if s.Status != StatusActive {
		return arenadto.Conflict("game is not active")
	}
	r.finalizeLocked(s, "", "agreement")
	return nil
}

// RemoveParticipant handles a disconnect. Removing an unknown connection is
// a no-op; a session with nobody left is evicted, one with a remaining
// player turns abandoned with the clock stopped.
func (r *Registry) RemoveParticipant(connID string) {
	r.mu.Lock()
	sessionID, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	s := r.get(sessionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	color := s.colorOf(connID)
	if color == "" {
		s.mu.Unlock()
		return
	}
	if color == White {
		s.White = nil
	} else {
		s.Black = nil
	}

	remaining := s.player(color.Opponent())
	if remaining == nil || s.Locked {
		s.stopClockLocked()
		s.mu.Unlock()
		r.evict(s.ID)
		obslog.L().Info("session_evict_empty", zap.String("session_id", sessionID))
		return
	}

	if s.Status == StatusActive {
		s.checkpoint(time.Now())
		s.Status = StatusAbandoned
	}
	s.stopClockLocked()
	r.notifier.Notify(remaining.ConnectionID, arenadto.EvOpponentLeft, arenadto.OpponentLeft{Color: string(color)})
	s.mu.Unlock()

	obslog.L().Info("session_abandoned",
		zap.String("session_id", sessionID),
		zap.String("left_color", string(color)),
	)
}

// timeoutLocked is invoked by the clock service, session mutex held, when a
// side's remaining time reaches zero.
func (r *Registry) timeoutLocked(s *Session, loser Color) {
	r.finalizeLocked(s, loser.Opponent(), "timeout")
}

// broadcastLocked sends an event to both seated connections. Caller holds
// the session mutex.
func (r *Registry) broadcastLocked(s *Session, event string, payload any) {
	if s.White != nil {
		r.notifier.Notify(s.White.ConnectionID, event, payload)
	}
	if s.Black != nil {
		r.notifier.Notify(s.Black.ConnectionID, event, payload)
	}
}

// evict removes the session from the registry maps. Idempotent.
func (r *Registry) evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	for conn, id := range r.byConn {
		if id == sessionID {
			delete(r.byConn, conn)
		}
	}
}
