package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/profile"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/arenadto"
)

const writeTimeout = 5 * time.Second

// conn is one accepted websocket with its bound identity. Writes are
// serialized by writeMu so notifications and acks never interleave frames.
type conn struct {
	id     string
	userID string
	player session.PlayerRef

	ws      *websocket.Conn
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Server accepts websocket connections, binds identities, and dispatches
// envelope operations to the session registry and matchmaking queue. It is
// the Notifier the rest of the system broadcasts through and the Presence
// the queue consults.
type Server struct {
	cfg      *config.AppConfig
	profiles *profile.Store

	registry *session.Registry
	queue    *matchmaking.Manager

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewServer(cfg *config.AppConfig, profiles *profile.Store) *Server {
	return &Server{
		cfg:      cfg,
		profiles: profiles,
		conns:    make(map[string]*conn),
	}
}

// Attach wires the registry and queue after construction; the three
// components reference each other, so the server exists first.
func (s *Server) Attach(registry *session.Registry, queue *matchmaking.Manager) {
	s.registry = registry
	s.queue = queue
}

// Notify implements session.Notifier. A send to a vanished connection is
// dropped silently; disconnect cleanup is already in flight.
func (s *Server) Notify(connID, event string, payload any) {
	s.mu.RLock()
	c := s.conns[connID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	c.send(arenadto.Envelope{Type: event, Payload: marshalPayload(payload)})
}

// Connected implements matchmaking.Presence.
func (s *Server) Connected(connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[connID]
	return ok
}

// ConnectionCount reports live sockets for the status endpoint.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func marshalPayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("payload_marshal_error", zap.Error(err))
		return nil
	}
	return raw
}

func (c *conn) send(env arenadto.Envelope) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		obslog.L().Debug("ws_write_error",
			zap.String("conn_id", c.id),
			zap.String("type", env.Type),
			zap.Error(err),
		)
	}
}

// ServeHTTP upgrades the request, binds an identity, and runs the read
// loop until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, username := identityFrom(r)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	prof, err := s.profiles.Ensure(r.Context(), userID, username)
	if err != nil {
		obslog.L().Error("profile_ensure_error", zap.String("user_id", userID), zap.Error(err))
		ws.Close(websocket.StatusInternalError, "identity unavailable")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
	}
	c.player = session.PlayerRef{
		ConnectionID: c.id,
		UserID:       prof.UserID,
		Username:     prof.Username,
		Rating:       prof.Rating,
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	obslog.L().Info("ws_connected",
		zap.String("conn_id", c.id),
		zap.String("user_id", userID),
		zap.Int("rating", prof.Rating),
	)

	s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	cancel()

	s.queue.Leave(c.id)
	s.registry.RemoveParticipant(c.id)
	ws.Close(websocket.StatusNormalClosure, "")

	obslog.L().Info("ws_disconnected",
		zap.String("conn_id", c.id),
		zap.String("user_id", userID),
	)
}

// identityFrom reads the user binding from query parameters, falling back
// to headers for non-browser clients.
func identityFrom(r *http.Request) (userID, username string) {
	q := r.URL.Query()
	userID = strings.TrimSpace(q.Get("userId"))
	username = strings.TrimSpace(q.Get("username"))
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	}
	if username == "" {
		username = strings.TrimSpace(r.Header.Get("X-User-Name"))
	}
	if username == "" {
		username = userID
	}
	return userID, username
}

func (s *Server) readLoop(c *conn) {
	for {
		var env arenadto.Envelope
		if err := wsjson.Read(c.ctx, c.ws, &env); err != nil {
			return
		}
		s.dispatch(c, env)
	}
}

// dispatch routes one inbound envelope and always answers with an ack.
func (s *Server) dispatch(c *conn, env arenadto.Envelope) {
	ack := s.handle(c, env)
	c.send(arenadto.Envelope{Type: env.Type + "Ack", Payload: marshalPayload(ack)})
}

func (s *Server) handle(c *conn, env arenadto.Envelope) arenadto.Ack {
	switch env.Type {
	case arenadto.OpCreateGame:
		var req arenadto.CreateGameRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		id, color, err := s.registry.Create(c.player, time.Duration(req.TimeControlSeconds)*time.Second, req.Wager)
		if err != nil {
			return nack(err)
		}
		return arenadto.Ack{OK: true, SessionID: id, Color: string(color), TimeControl: req.TimeControlSeconds}

	case arenadto.OpJoinGame:
		var req arenadto.JoinGameRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		color, tc, err := s.registry.Join(req.SessionID, c.player)
		if err != nil {
			return nack(err)
		}
		return arenadto.Ack{OK: true, SessionID: req.SessionID, Color: string(color), TimeControl: int(tc.Seconds())}

	case arenadto.OpJoinMatchmaking:
		var req arenadto.JoinMatchmakingRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		if err := s.queue.Join(c.player, time.Duration(req.TimeControlSeconds)*time.Second, req.Wager); err != nil {
			return nack(err)
		}
		return arenadto.Ack{OK: true}

	case arenadto.OpLeaveMatchmaking:
		s.queue.Leave(c.id)
		return arenadto.Ack{OK: true}

	case arenadto.OpAcceptMatch:
		var req arenadto.MatchRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		if err := s.queue.Accept(req.MatchID, c.id); err != nil {
			return nack(err)
		}
		accepted := true
		return arenadto.Ack{OK: true, Accepted: &accepted}

	case arenadto.OpDeclineMatch:
		var req arenadto.MatchRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		if err := s.queue.Decline(req.MatchID, c.id); err != nil {
			return nack(err)
		}
		accepted := false
		return arenadto.Ack{OK: true, Accepted: &accepted}

	case arenadto.OpMove:
		var req arenadto.MoveRequest
		if err := decode(env.Payload, &req); err != nil {
			return nack(err)
		}
		_, err := s.registry.ApplyMove(req.SessionID, c.id, session.MoveInput{
			From:        req.From,
			To:          req.To,
			Promotion:   req.Promotion,
			ClientState: req.ClientState,
		})
		if err != nil {
			return nack(err)
		}
		return arenadto.Ack{OK: true, SessionID: req.SessionID}

	case arenadto.OpResign:
		return s.sessionOp(env.Payload, c, s.registry.Resign)

	case arenadto.OpOfferDraw:
		return s.sessionOp(env.Payload, c, s.registry.OfferDraw)

	case arenadto.OpAcceptDraw:
		return s.sessionOp(env.Payload, c, s.registry.AcceptDraw)

	case arenadto.OpDeclineDraw:
		return s.sessionOp(env.Payload, c, s.registry.DeclineDraw)

	default:
		return nack(arenadto.Validation("unknown operation: " + env.Type))
	}
}

func (s *Server) sessionOp(payload json.RawMessage, c *conn, op func(sessionID, connID string) error) arenadto.Ack {
	var req arenadto.SessionRequest
	if err := decode(payload, &req); err != nil {
		return nack(err)
	}
	if err := op(req.SessionID, c.id); err != nil {
		return nack(err)
	}
	return arenadto.Ack{OK: true, SessionID: req.SessionID}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return arenadto.Validation("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return arenadto.Validation("malformed payload")
	}
	return nil
}

func nack(err error) arenadto.Ack {
	return arenadto.Ack{OK: false, ErrorCode: arenadto.ErrorCode(err), Error: err.Error()}
}
