package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/record"
	"github.com/park285/chess-arena/pkg/arenadto"
)

type captured struct {
	connID  string
	event   string
	payload any
}

type captureNotifier struct {
	mu     sync.Mutex
	events []captured
}

func (c *captureNotifier) Notify(connID, event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, captured{connID, event, payload})
}

func (c *captureNotifier) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (c *captureNotifier) last(connID, event string) (captured, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].connID == connID && c.events[i].event == event {
			return c.events[i], true
		}
	}
	return captured{}, false
}

// waitFor polls until the predicate holds or the deadline passes.
func waitFor(t *testing.T, what string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeRecorder struct {
	saved chan *record.GameRecord
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{saved: make(chan *record.GameRecord, 4)}
}

func (f *fakeRecorder) SaveCompletedGame(_ context.Context, rec *record.GameRecord) error {
	f.saved <- rec
	return nil
}

type outcomeCall struct {
	userID  string
	delta   int
	outcome string
}

type fakeOutcomes struct {
	calls chan outcomeCall
}

func newFakeOutcomes() *fakeOutcomes {
	return &fakeOutcomes{calls: make(chan outcomeCall, 8)}
}

func (f *fakeOutcomes) ApplyOutcome(_ context.Context, userID string, delta int, outcome string) error {
	f.calls <- outcomeCall{userID, delta, outcome}
	return nil
}

func whiteRef() PlayerRef {
	return PlayerRef{ConnectionID: "conn-w", UserID: "alice", Username: "alice", Rating: 1000}
}

func blackRef() PlayerRef {
	return PlayerRef{ConnectionID: "conn-b", UserID: "bob", Username: "bob", Rating: 1000}
}

func newTestRegistry(t *testing.T, cfg *config.AppConfig) (*Registry, *captureNotifier, *fakeRecorder, *fakeOutcomes) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	notifier := &captureNotifier{}
	recorder := newFakeRecorder()
	outcomes := newFakeOutcomes()
	return NewRegistry(cfg, notifier, recorder, outcomes), notifier, recorder, outcomes
}

// activeSession creates, joins, and returns a live two-player session.
func activeSession(t *testing.T, r *Registry) string {
	t.Helper()
	id, color, err := r.Create(whiteRef(), 5*time.Minute, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if color != White {
		t.Fatalf("initiator color = %s, want white", color)
	}
	if _, _, err := r.Join(id, blackRef()); err != nil {
		t.Fatalf("join: %v", err)
	}
	return id
}

func TestCreateRejectsShortTimeControl(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	_, _, err := r.Create(whiteRef(), 10*time.Second, 0)
	if !arenadto.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestCreateRespectsCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.MaxConcurrentGames = 1
	r, _, _, _ := newTestRegistry(t, cfg)

	if _, _, err := r.Create(whiteRef(), 5*time.Minute, 0); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := r.Create(PlayerRef{ConnectionID: "conn-2", UserID: "carol"}, 5*time.Minute, 0)
	if !arenadto.IsConflict(err) {
		t.Fatalf("err = %v, want conflict at capacity", err)
	}
}

func TestJoinActivatesAndBroadcasts(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	if got := notifier.count(arenadto.EvGameFull); got != 2 {
		t.Fatalf("gameFull events = %d, want 2", got)
	}
	ev, _ := notifier.last("conn-b", arenadto.EvGameFull)
	full := ev.payload.(arenadto.GameFull)
	if full.Color != "black" || full.TimeControl != 300 {
		t.Fatalf("gameFull = %+v", full)
	}

	// Third seat attempt.
	if _, _, err := r.Join(id, PlayerRef{ConnectionID: "conn-x", UserID: "carol"}); !arenadto.IsConflict(err) {
		t.Fatal("expected conflict joining a full game")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	if _, _, err := r.Join("nope", blackRef()); !arenadto.IsNotFound(err) {
		t.Fatal("expected not_found")
	}
}

func TestApplyMoveCommitsAndBroadcasts(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	state, err := r.ApplyMove(id, "conn-w", MoveInput{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if state.LastMove == nil || state.LastMove.From != "e2" || state.LastMove.To != "e4" {
		t.Fatalf("lastMove = %+v", state.LastMove)
	}
	if got := notifier.count(arenadto.EvGameState); got != 2 {
		t.Fatalf("gameState events = %d, want 2", got)
	}

	s := r.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.MoveLog) != 1 || s.MoveLog[0].SAN != "e4" {
		t.Fatalf("move log = %+v", s.MoveLog)
	}
	if s.Turn != Black {
		t.Fatalf("turn = %s, want black", s.Turn)
	}
}

func TestApplyMoveOutOfTurn(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	_, err := r.ApplyMove(id, "conn-b", MoveInput{From: "e7", To: "e5"})
	if !arenadto.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestApplyMoveIllegal(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	_, err := r.ApplyMove(id, "conn-w", MoveInput{From: "e2", To: "e6"})
	if !arenadto.IsRulesViolation(err) {
		t.Fatalf("err = %v, want rules_violation", err)
	}
	s := r.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.MoveLog) != 0 || s.Turn != White {
		t.Fatal("illegal move mutated the session")
	}
}

func TestApplyMoveStaleClientState(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	_, err := r.ApplyMove(id, "conn-w", MoveInput{From: "e2", To: "e4", ClientState: "not-the-server-state"})
	if !arenadto.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if notifier.count(arenadto.EvCheatingWarning) != 1 {
		t.Fatal("expected one cheatingWarning")
	}
	s := r.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.MoveLog) != 0 {
		t.Fatal("stale-state move mutated the session")
	}
}

func TestApplyMoveTooFast(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	if _, err := r.ApplyMove(id, "conn-w", MoveInput{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("first move: %v", err)
	}
	// Reply lands well inside the minimum interval.
	_, err := r.ApplyMove(id, "conn-b", MoveInput{From: "e7", To: "e5"})
	if !arenadto.IsAntiCheat(err) {
		t.Fatalf("err = %v, want anti_cheat", err)
	}
	if notifier.count(arenadto.EvCheatingWarning) != 1 {
		t.Fatal("expected one cheatingWarning")
	}
	s := r.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.MoveLog) != 1 {
		t.Fatal("rejected move mutated the session")
	}
}

func TestApplyMoveRateCap(t *testing.T) {
	cfg := config.Default()
	cfg.MinMoveIntervalMs = 0
	r, _, _, _ := newTestRegistry(t, cfg)
	id := activeSession(t, r)

	moves := [][2]string{
		{"e2", "e4"}, {"e7", "e5"},
		{"g1", "f3"}, {"b8", "c6"},
		{"f1", "c4"}, {"g8", "f6"},
		{"b1", "c3"}, {"f8", "c5"},
		{"d2", "d3"}, {"d7", "d6"},
	}
	conns := [2]string{"conn-w", "conn-b"}
	for i, m := range moves {
		if _, err := r.ApplyMove(id, conns[i%2], MoveInput{From: m[0], To: m[1]}); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	// White's sixth move inside the window exceeds the cap.
	_, err := r.ApplyMove(id, "conn-w", MoveInput{From: "a2", To: "a3"})
	if !arenadto.IsAntiCheat(err) {
		t.Fatalf("err = %v, want anti_cheat", err)
	}
}

func TestCheckmateFinalizes(t *testing.T) {
	r, notifier, recorder, outcomes := newTestRegistry(t, nil)
	cfg := config.Default()
	cfg.MinMoveIntervalMs = 0
	r.cfg = cfg
	id := activeSession(t, r)

	moves := [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"}}
	conns := [2]string{"conn-w", "conn-b"}
	for i, m := range moves {
		if _, err := r.ApplyMove(id, conns[i%2], MoveInput{From: m[0], To: m[1]}); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}

	if got := notifier.count(arenadto.EvGameOver); got != 2 {
		t.Fatalf("gameOver events = %d, want 2", got)
	}
	ev, _ := notifier.last("conn-w", arenadto.EvGameOver)
	over := ev.payload.(arenadto.GameOver)
	if over.Winner != "black" || over.Reason != "checkmate" {
		t.Fatalf("gameOver = %+v", over)
	}
	sv, _ := notifier.last("conn-w", arenadto.EvGameStats)
	stats := sv.payload.(arenadto.GameStats)
	if stats.WhiteRatingDelta != -16 || stats.BlackRatingDelta != 16 {
		t.Fatalf("gameStats = %+v", stats)
	}
	if r.Count() != 0 {
		t.Fatalf("sessions = %d after completion", r.Count())
	}

	// Persistence runs off the hot path.
	select {
	case rec := <-recorder.saved:
		if rec.Winner != "black" || rec.Reason != "checkmate" || len(rec.MovesSAN) != 4 {
			t.Fatalf("record = %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record never persisted")
	}
	seen := map[string]outcomeCall{}
	for i := 0; i < 2; i++ {
		select {
		case call := <-outcomes.calls:
			seen[call.userID] = call
		case <-time.After(2 * time.Second):
			t.Fatal("outcome never applied")
		}
	}
	if seen["alice"].outcome != "loss" || seen["alice"].delta != -16 {
		t.Fatalf("alice outcome = %+v", seen["alice"])
	}
	if seen["bob"].outcome != "win" || seen["bob"].delta != 16 {
		t.Fatalf("bob outcome = %+v", seen["bob"])
	}
}

func TestResignFinalizesOnce(t *testing.T) {
	r, notifier, recorder, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	if err := r.Resign(id, "conn-w"); err != nil {
		t.Fatalf("resign: %v", err)
	}
	ev, _ := notifier.last("conn-b", arenadto.EvGameOver)
	over := ev.payload.(arenadto.GameOver)
	if over.Winner != "black" || over.Reason != "resignation" {
		t.Fatalf("gameOver = %+v", over)
	}
	if r.Count() != 0 {
		t.Fatal("session not evicted after resignation")
	}

	// The session is gone, so a repeat resign is not_found, and completion
	// ran exactly once.
	if err := r.Resign(id, "conn-b"); !arenadto.IsNotFound(err) {
		t.Fatalf("second resign err = %v", err)
	}
	if got := notifier.count(arenadto.EvGameOver); got != 2 {
		t.Fatalf("gameOver events = %d, want 2", got)
	}
	select {
	case <-recorder.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("record never persisted")
	}
	select {
	case <-recorder.saved:
		t.Fatal("record persisted twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResignByNonParticipant(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)
	if err := r.Resign(id, "conn-x"); !arenadto.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestDrawOfferRelays(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	if err := r.OfferDraw(id, "conn-w"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, ok := notifier.last("conn-b", arenadto.EvDrawOffered); !ok {
		t.Fatal("counterpart never saw the offer")
	}
	if _, ok := notifier.last("conn-w", arenadto.EvDrawOffered); ok {
		t.Fatal("offer echoed to the offerer")
	}

	if err := r.DeclineDraw(id, "conn-b"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if _, ok := notifier.last("conn-w", arenadto.EvDrawDeclined); !ok {
		t.Fatal("offerer never saw the decline")
	}
	if r.Count() != 1 {
		t.Fatal("draw negotiation changed session residency")
	}
}

func TestAcceptDrawFinalizes(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	if err := r.AcceptDraw(id, "conn-b"); err != nil {
		t.Fatalf("accept draw: %v", err)
	}
	ev, _ := notifier.last("conn-w", arenadto.EvGameOver)
	over := ev.payload.(arenadto.GameOver)
	if over.Winner != "" || over.Reason != "agreement" {
		t.Fatalf("gameOver = %+v", over)
	}
	sv, _ := notifier.last("conn-w", arenadto.EvGameStats)
	if stats := sv.payload.(arenadto.GameStats); stats.WhiteRatingDelta != 0 || stats.BlackRatingDelta != 0 {
		t.Fatalf("draw stats = %+v", stats)
	}
}

func TestRemoveParticipantAbandons(t *testing.T) {
	r, notifier, _, _ := newTestRegistry(t, nil)
	id := activeSession(t, r)

	r.RemoveParticipant("conn-w")

	ev, ok := notifier.last("conn-b", arenadto.EvOpponentLeft)
	if !ok {
		t.Fatal("remaining player never told")
	}
	if left := ev.payload.(arenadto.OpponentLeft); left.Color != "white" {
		t.Fatalf("opponentLeft = %+v", left)
	}
	s := r.get(id)
	s.mu.Lock()
	status := s.Status
	s.mu.Unlock()
	if status != StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", status)
	}

	// Last player leaving evicts the session.
	r.RemoveParticipant("conn-b")
	if r.Count() != 0 {
		t.Fatal("empty session not evicted")
	}

	// Unknown connection is a no-op.
	r.RemoveParticipant("conn-x")
}

func TestCreateMatchStartsActive(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)

	id, err := r.CreateMatch(whiteRef(), blackRef(), 5*time.Minute)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	s := r.get(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusActive {
		t.Fatalf("status = %s, want active", s.Status)
	}
	if s.White.UserID != "alice" || s.Black.UserID != "bob" {
		t.Fatal("seats wrong")
	}
	if s.WhiteRemaining != 5*time.Minute || s.BlackRemaining != 5*time.Minute {
		t.Fatal("clocks not initialized to the time control")
	}
}
