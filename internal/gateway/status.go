package gateway

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
)

// StatusReport is the operational snapshot served on the status listener.
type StatusReport struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	QueueSize     int    `json:"queueSize"`
	Connections   int    `json:"connections"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// StatusServer serves health and status over a separate lightweight
// listener so probes never contend with game traffic.
type StatusServer struct {
	addr    string
	gateway *Server
	started time.Time
	srv     *fasthttp.Server
}

func NewStatusServer(addr string, gateway *Server) *StatusServer {
	s := &StatusServer{addr: addr, gateway: gateway, started: time.Now()}
	s.srv = &fasthttp.Server{
		Handler:      s.route,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *StatusServer) route(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/status":
		s.status(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *StatusServer) status(ctx *fasthttp.RequestCtx) {
	report := StatusReport{
		Status:        "ok",
		Sessions:      s.gateway.registry.Count(),
		QueueSize:     s.gateway.queue.QueueSize(),
		Connections:   s.gateway.ConnectionCount(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	body, err := json.Marshal(report)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *StatusServer) ListenAndServe() error {
	obslog.L().Info("status_listen", zap.String("addr", s.addr))
	return s.srv.ListenAndServe(s.addr)
}

func (s *StatusServer) Shutdown() error {
	return s.srv.Shutdown()
}
