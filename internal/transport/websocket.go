package transport

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/config"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/middleware"
)

// Server upgrades HTTP requests to WebSocket clients of the hub
type Server struct {
	hub      *Hub
	auth     *Authenticator
	limits   *middleware.RateLimit
	ws       config.WebSocketConfig
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewServer(
	hub *Hub,
	auth *Authenticator,
	limits *middleware.RateLimit,
	serverCfg config.ServerConfig,
	wsCfg config.WebSocketConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:    hub,
		auth:   auth,
		limits: limits,
		ws:     wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(serverCfg),
		},
		metrics: m,
		logger:  logger,
	}
}

// originChecker: CORS for the upgrade. Requests without an Origin header
// come from non-browser clients and are let through.
func originChecker(cfg config.ServerConfig) func(r *http.Request) bool {
	if cfg.AllowsAnyOrigin() {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleWebSocket: authenticates the handshake, upgrades and starts the pumps
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.ClientIP(r)

	authResult, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Info("handshake rejected", zap.String("remote_ip", clientIP), zap.Error(err))
		s.metrics.RecordRejected("unauthorized")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Info("upgrade failed", zap.String("remote_ip", clientIP), zap.Error(err))
		return
	}

	c := newClient(conn, s.ws.SendBuffer, s.limits.NewMessageLimiter(), authResult, clientIP)
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Info("client connected",
		zap.String("conn_id", c.ID()),
		zap.String("remote_ip", clientIP),
		zap.String("user_id", authResult.UserID),
		zap.Bool("verified", authResult.Verified),
	)

	go c.writePump(s.ws.WriteWait, s.ws.PingPeriod, s.logger)
	go s.readPump(c)
}

// readPump: message loop for one connection. Oversized and rate-limited
// frames are dropped; the connection stays open. Oversized frames are
// drained without being buffered whole.
func (s *Server) readPump(c *Client) {
	defer func() {
		s.hub.remove(c)
		c.conn.Close()
		s.logger.Info("client disconnected", c.fields()...)
	}()

	pongWait := s.ws.PongWait
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var (
		msg  []byte
		size int64
	)
	for {
		_, r, err := c.conn.NextReader()
		if err == nil {
			msg, size, err = readFrame(r, s.maxMessageSize())
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("read failed", append(c.fields(), zap.Error(err))...)
			}
			return
		}

		if !s.limits.ValidateMessageSize(int(size)) {
			s.logger.Warn("message too large", append(c.fields(), zap.Int64("bytes", size))...)
			s.metrics.RecordRejected("too_large")
			continue
		}
		if !c.limiter.Allow() {
			s.logger.Warn("rate limit exceeded", c.fields()...)
			s.metrics.RecordRejected("rate_limited")
			continue
		}

		if !s.hub.dispatch(c, msg) {
			return
		}
	}
}

func (s *Server) maxMessageSize() int {
	if s.limits == nil {
		return 0
	}
	return s.limits.MaxMessageSize
}

// readFrame reads one message from r. With a positive limit at most limit+1
// bytes are buffered; a longer message is drained and returned as nil with
// its full size.
func readFrame(r io.Reader, limit int) ([]byte, int64, error) {
	if limit <= 0 {
		msg, err := io.ReadAll(r)
		return msg, int64(len(msg)), err
	}
	msg, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil || len(msg) <= limit {
		return msg, int64(len(msg)), err
	}
	rest, err := io.Copy(io.Discard, r)
	return nil, int64(len(msg)) + rest, err
}
