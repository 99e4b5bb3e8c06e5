package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/session"
	"github.com/helllo-ai/voice-bridge/internal/telephony"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The telephony provider does not send a browser Origin; media
		// endpoints are protected at the network layer.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server accepts telephony WebSocket connections, resolves a tenant, and
// runs one Session per connection
type Server struct {
	deps     session.Deps
	basePath string
	logger   zerolog.Logger
}

// New creates the bridge server
func New(deps session.Deps, basePath string, logger zerolog.Logger) *Server {
	return &Server{
		deps:     deps,
		basePath: basePath,
		logger:   logger,
	}
}

// Handler returns the WebSocket upgrade handler
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := s.resolveTenant(r.Context(), r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		conn.SetReadLimit(telephony.MaxMessageSize)
		conn.SetReadDeadline(time.Now().Add(telephony.LivenessWindow))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(telephony.LivenessWindow))
		})

		sess := session.New(s.deps, conn, tenantID)
		log := s.logger.With().Str("session_id", sess.ID()).Str("tenant", tenantID).Logger()
		log.Info().Str("remote", r.RemoteAddr).Msg("Connection accepted")

		pingDone := make(chan struct{})
		go s.pingLoop(conn, pingDone)

		if err := sess.Run(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Session ended with error")
		} else {
			log.Info().Msg("Session ended")
		}
		close(pingDone)

		deadline := time.Now().Add(telephony.CloseDeadline)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
}

// pingLoop keeps the socket alive per the listener policy until the session
// ends
func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(telephony.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(telephony.PongDeadline)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// resolveTenant picks the tenant for a connection: the tenant query
// parameter when it names a known active tenant, else a known path segment,
// else empty — the session falls through to the start frame's custom
// parameters and finally the default tenant.
func (s *Server) resolveTenant(ctx context.Context, r *http.Request) string {
	if q := r.URL.Query().Get("tenant"); q != "" {
		if s.deps.Cache.Known(ctx, q) {
			return q
		}
		s.logger.Warn().Str("tenant", q).Msg("Unknown tenant in query, ignoring")
	}

	path := strings.TrimPrefix(r.URL.Path, s.basePath)
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}
		if s.deps.Cache.Known(ctx, segment) {
			return segment
		}
	}

	return ""
}
