package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/akshitbansal010/warehouse-compliance-system/auth"
)

// Server upgrades HTTP requests and runs one Conn per request.
type Server struct {
	upgrader websocket.Upgrader
	handler  SessionHandler
	cfg      Config
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewServer(h SessionHandler, cfg Config, allowedOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		handler: h,
		cfg:     cfg,
		logger:  logger.With("component", "websocket"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade error", "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	conn := NewConn(uuid.NewString(), ws, s.handler, s.cfg, s.logger)
	conn.Serve(auth.TokenFromRequest(r))
}

// Wait blocks until every served connection has torn down.
func (s *Server) Wait() { s.wg.Wait() }

// originChecker allows everything when allowed is empty. Requests without an Origin header are
// non-browser clients and always pass.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		for _, a := range allowed {
			if a == "*" || a == host {
				return true
			}
			if strings.HasPrefix(a, "*.") && strings.HasSuffix(host, a[1:]) {
				return true
			}
		}
		return false
	}
}
