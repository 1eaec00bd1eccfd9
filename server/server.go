package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/casevine/casevine/config"
	"github.com/casevine/casevine/realtime"
	"github.com/casevine/casevine/sched"
)

// Server is the Casevine HTTP surface: the websocket endpoint clients hold
// open for live notifications, plus health and diagnostics routes.
type Server struct {
	cfg        *config.Config
	hub        *realtime.Hub
	dispatcher *realtime.Dispatcher
	engine     *sched.Engine
	logger     *zap.SugaredLogger

	httpServer *http.Server
}

// New creates the server over its collaborators. The engine may be nil
// when the scheduler is disabled; the status route degrades accordingly.
func New(cfg *config.Config, hub *realtime.Hub, dispatcher *realtime.Dispatcher, engine *sched.Engine, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:        cfg,
		hub:        hub,
		dispatcher: dispatcher,
		engine:     engine,
		logger:     logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/api/scheduler/status", s.corsMiddleware(s.HandleSchedulerStatus))
	mux.HandleFunc("/api/broadcast", s.corsMiddleware(s.HandleBroadcast))
	return mux
}

// Start begins listening. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("HTTP server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware sets CORS headers for origins allowed by config and
// answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed matches the request origin against configured origins.
// Configured entries without an explicit port match any port on that host.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
		if len(origin) > len(allowed) && origin[:len(allowed)+1] == allowed+":" {
			return true
		}
	}
	return false
}
