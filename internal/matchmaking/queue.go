package matchmaking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/arenadto"
)

// Entry is one waiting player and their desired parameters.
type Entry struct {
	Player      session.PlayerRef
	TimeControl time.Duration
	Wager       int
	EnqueuedAt  time.Time
}

// PendingMatch is a proposed pairing awaiting acceptance. A is the entry
// that was already waiting and plays white.
type PendingMatch struct {
	ID        string
	A         *Entry
	B         *Entry
	CreatedAt time.Time
	ExpiresAt time.Time

	timer    *time.Timer
	resolved bool
}

// cancel stops the expiry timer exactly once; double-cancel is a no-op.
// Caller holds the manager mutex.
func (pm *PendingMatch) cancel() bool {
	if pm.resolved {
		return false
	}
	pm.resolved = true
	if pm.timer != nil {
		pm.timer.Stop()
	}
	return true
}

// SessionCreator spawns a paired session; satisfied by the session
// registry.
type SessionCreator interface {
	CreateMatch(white, black session.PlayerRef, timeControl time.Duration) (string, error)
}

// Presence answers whether a connection is still attached; satisfied by
// the gateway.
type Presence interface {
	Connected(connID string) bool
}

// Manager is the matchmaking queue: first-fit pairing, pending-match
// negotiation with a cancellable expiry, and a periodic stale-entry sweep.
// Every mutation happens under one mutex.
type Manager struct {
	mu      sync.Mutex
	entries []*Entry
	pending map[string]*PendingMatch
	byConn  map[string]string

	sessions SessionCreator
	notifier session.Notifier
	presence Presence
	cfg      *config.AppConfig

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func NewManager(cfg *config.AppConfig, sessions SessionCreator, notifier session.Notifier, presence Presence) *Manager {
	return &Manager{
		pending:   make(map[string]*PendingMatch),
		byConn:    make(map[string]string),
		sessions:  sessions,
		notifier:  notifier,
		presence:  presence,
		cfg:       cfg,
		sweepStop: make(chan struct{}),
	}
}

// Join enqueues a player, pairing immediately with the first compatible
// waiting entry: equal time control, wager distance within tolerance,
// distinct user. First fit, not best fit.
func (m *Manager) Join(player session.PlayerRef, timeControl time.Duration, wager int) error {
	if timeControl < m.cfg.MinTimeControl() {
		return arenadto.Validation("time control below minimum")
	}
	player.Wager = wager

	entry := &Entry{
		Player:      player,
		TimeControl: timeControl,
		Wager:       wager,
		EnqueuedAt:  time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, negotiating := m.byConn[player.ConnectionID]; negotiating {
		return arenadto.Conflict("already negotiating a match")
	}
	m.removeEntryLocked(player.ConnectionID)
	m.enqueueLocked(entry)
	return nil
}

// enqueueLocked scans for a first fit; a miss appends the entry and reports
// queue status, a hit creates a pending match. Caller holds mu.
func (m *Manager) enqueueLocked(entry *Entry) {
	for i, candidate := range m.entries {
		if !compatible(candidate, entry, m.cfg.WagerTolerance) {
			continue
		}
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		m.proposeLocked(candidate, entry)
		return
	}

	m.entries = append(m.entries, entry)
	m.notifier.Notify(entry.Player.ConnectionID, arenadto.EvMatchmakingStatus, arenadto.MatchmakingStatus{
		InQueue:   true,
		QueueSize: len(m.entries),
	})
}

func compatible(a, b *Entry, tolerance int) bool {
	if a.TimeControl != b.TimeControl {
		return false
	}
	if a.Player.UserID == b.Player.UserID {
		return false
	}
	diff := a.Wager - b.Wager
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// proposeLocked turns two entries into a pending match with an armed
// expiry. Caller holds mu.
func (m *Manager) proposeLocked(a, b *Entry) {
	pm := &PendingMatch{
		ID:        uuid.NewString(),
		A:         a,
		B:         b,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.cfg.MatchAcceptTimeout()),
	}
	m.pending[pm.ID] = pm
	m.byConn[a.Player.ConnectionID] = pm.ID
	m.byConn[b.Player.ConnectionID] = pm.ID
	pm.timer = time.AfterFunc(m.cfg.MatchAcceptTimeout(), func() { m.expire(pm.ID) })

	tc := int(a.TimeControl.Seconds())
	m.notifier.Notify(a.Player.ConnectionID, arenadto.EvMatchProposal, arenadto.MatchProposal{
		MatchID:       pm.ID,
		Opponent:      summary(b),
		OpponentWager: b.Wager,
		TimeControl:   tc,
	})
	m.notifier.Notify(b.Player.ConnectionID, arenadto.EvMatchProposal, arenadto.MatchProposal{
		MatchID:       pm.ID,
		Opponent:      summary(a),
		OpponentWager: a.Wager,
		TimeControl:   tc,
	})

	obslog.L().Info("match_proposed",
		zap.String("match_id", pm.ID),
		zap.String("user_a", a.Player.UserID),
		zap.String("user_b", b.Player.UserID),
		zap.Int("time_control_sec", tc),
	)
}

func summary(e *Entry) arenadto.OpponentSummary {
	return arenadto.OpponentSummary{Username: e.Player.Username, Rating: e.Player.Rating}
}

// Accept resolves a pending match into a live session. The first-found
// entry plays white.
func (m *Manager) Accept(matchID, connID string) error {
	m.mu.Lock()
	pm := m.pending[matchID]
	if pm == nil {
		m.mu.Unlock()
		return arenadto.NotFound("match not found")
	}
	if !pm.participant(connID) {
		m.mu.Unlock()
		return arenadto.Conflict("not part of this match")
	}
	if !pm.cancel() {
		m.mu.Unlock()
		return arenadto.Conflict("match already resolved")
	}
	m.dropPendingLocked(pm)
	a, b := pm.A, pm.B
	m.mu.Unlock()

	sessionID, err := m.sessions.CreateMatch(a.Player, b.Player, a.TimeControl)
	if err != nil {
		obslog.L().Error("match_session_error", zap.String("match_id", matchID), zap.Error(err))
		m.notifier.Notify(a.Player.ConnectionID, arenadto.EvError, arenadto.ErrorEvent{Message: "failed to start game"})
		m.notifier.Notify(b.Player.ConnectionID, arenadto.EvError, arenadto.ErrorEvent{Message: "failed to start game"})
		return err
	}

	tc := int(a.TimeControl.Seconds())
	m.notifier.Notify(a.Player.ConnectionID, arenadto.EvMatchFound, arenadto.MatchFound{
		SessionID:   sessionID,
		Color:       string(session.White),
		TimeControl: tc,
		Opponent:    summary(b),
	})
	m.notifier.Notify(b.Player.ConnectionID, arenadto.EvMatchFound, arenadto.MatchFound{
		SessionID:   sessionID,
		Color:       string(session.Black),
		TimeControl: tc,
		Opponent:    summary(a),
	})

	obslog.L().Info("match_accepted",
		zap.String("match_id", matchID),
		zap.String("session_id", sessionID),
	)
	return nil
}

// Decline cancels a pending match; the counterpart is notified and
// re-enqueued under its original parameters.
func (m *Manager) Decline(matchID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := m.pending[matchID]
	if pm == nil {
		return arenadto.NotFound("match not found")
	}
	if !pm.participant(connID) {
		return arenadto.Conflict("not part of this match")
	}
	m.declineLocked(pm, connID)
	return nil
}

// declineLocked resolves a pending match as declined by connID. Caller
// holds mu.
func (m *Manager) declineLocked(pm *PendingMatch, connID string) {
	if !pm.cancel() {
		return
	}
	m.dropPendingLocked(pm)

	other := pm.A
	if other.Player.ConnectionID == connID {
		other = pm.B
	}
	m.notifier.Notify(other.Player.ConnectionID, arenadto.EvMatchDeclined, struct{}{})
	other.EnqueuedAt = time.Now()
	m.enqueueLocked(other)

	obslog.L().Info("match_declined", zap.String("match_id", pm.ID), zap.String("conn_id", connID))
}

// expire fires when neither side resolved the match in time. Sides still
// connected go back into the queue with their original parameters.
func (m *Manager) expire(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm := m.pending[matchID]
	if pm == nil || !pm.cancel() {
		return
	}
	m.dropPendingLocked(pm)

	for _, e := range []*Entry{pm.A, pm.B} {
		m.notifier.Notify(e.Player.ConnectionID, arenadto.EvMatchExpired, struct{}{})
		if m.presence == nil || m.presence.Connected(e.Player.ConnectionID) {
			e.EnqueuedAt = time.Now()
			m.enqueueLocked(e)
		}
	}
	obslog.L().Info("match_expired", zap.String("match_id", matchID))
}

// Leave removes a waiting entry, or counts as a decline when the
// connection is mid-negotiation. Idempotent.
func (m *Manager) Leave(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if matchID, ok := m.byConn[connID]; ok {
		if pm := m.pending[matchID]; pm != nil {
			m.declineLocked(pm, connID)
		}
		return
	}

	if m.removeEntryLocked(connID) {
		m.notifier.Notify(connID, arenadto.EvMatchmakingStatus, arenadto.MatchmakingStatus{
			InQueue:   false,
			QueueSize: len(m.entries),
		})
	}
}

// removeEntryLocked drops a queued entry by connection. Caller holds mu.
func (m *Manager) removeEntryLocked(connID string) bool {
	for i, e := range m.entries {
		if e.Player.ConnectionID == connID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (pm *PendingMatch) participant(connID string) bool {
	return pm.A.Player.ConnectionID == connID || pm.B.Player.ConnectionID == connID
}

func (m *Manager) dropPendingLocked(pm *PendingMatch) {
	delete(m.pending, pm.ID)
	delete(m.byConn, pm.A.Player.ConnectionID)
	delete(m.byConn, pm.B.Player.ConnectionID)
}

// QueueSize reports the number of waiting entries.
func (m *Manager) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// StartSweep purges entries older than the stale horizon on an interval.
func (m *Manager) StartSweep() {
	go func() {
		ticker := time.NewTicker(m.cfg.QueueSweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-m.sweepStop:
				return
			case now := <-ticker.C:
				m.sweep(now)
			}
		}
	}()
}

func (m *Manager) StopSweep() {
	m.sweepOnce.Do(func() { close(m.sweepStop) })
}

func (m *Manager) sweep(now time.Time) {
	horizon := m.cfg.QueueStaleHorizon()
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if now.Sub(e.EnqueuedAt) > horizon {
			m.notifier.Notify(e.Player.ConnectionID, arenadto.EvMatchmakingStatus, arenadto.MatchmakingStatus{
				InQueue:   false,
				QueueSize: 0,
			})
			obslog.L().Info("queue_entry_purged", zap.String("user_id", e.Player.UserID))
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
}
