package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
	"roundtable/internal/infra/middleware"
	"roundtable/internal/usecase/debate"
)

// ServerDeps holds injected dependencies for the Server.
type ServerDeps struct {
	Driver  *debate.Driver
	Bus     domain.EventBus // optional, nil = no /events feed and no bus-fed metrics
	Metrics *Metrics        // optional, created when nil
	Logger  *slog.Logger
	Config  config.ServerConfig
}

// Server exposes debates over HTTP: SSE and WebSocket streams plus the
// registry, health and metrics endpoints.
type Server struct {
	deps      ServerDeps
	httpSrv   *http.Server
	boundAddr atomic.Value // string
	watchers  sync.Map     // connID (uint64) -> *watcher
	nextID    atomic.Uint64
	unsubs    []func()
	stopOnce  sync.Once
}

// NewServer creates a gateway server.
func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Server{deps: deps}
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *Metrics { return s.deps.Metrics }

// Handler builds the routed, middleware-wrapped handler. ctx bounds the
// rate limiter's background sweeper.
func (s *Server) Handler(ctx context.Context) http.Handler {
	limit := func(h http.Handler) http.Handler { return h }
	if rl := s.deps.Config.RateLimit; rl.Enabled {
		limit = middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.Burst,
			TrustedProxies: rl.TrustedProxies,
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/debate/stream", limit(http.HandlerFunc(s.handleStream)))
	mux.Handle("/debate/ws", limit(http.HandlerFunc(s.handleWS)))
	mux.HandleFunc("/models", modelsHandler(s.deps.Driver.Registry()))
	mux.HandleFunc("/healthz", healthHandler(s.deps.Driver.Registry(), s.deps.Metrics))
	mux.HandleFunc("/metrics", metricsHandler(s.deps.Metrics))
	if s.deps.Bus != nil {
		mux.HandleFunc("/events", s.handleEvents)
	}

	var h http.Handler = mux
	h = middleware.CORS(s.deps.Config.AllowedOrigins)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestLogger(s.deps.Logger)(h)
	return h
}

// Start listens on the configured address and serves until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.deps.Config.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())

	if s.deps.Bus != nil {
		s.unsubs = append(s.unsubs,
			s.deps.Metrics.Subscribe(s.deps.Bus),
			s.deps.Bus.SubscribeAll(s.broadcast),
		)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.deps.Logger.Info("gateway started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, closing event watchers first.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}

		s.watchers.Range(func(key, value any) bool {
			w := value.(*watcher)
			w.closeOnce.Do(func() { close(w.done) })
			w.ws.Close(websocket.StatusGoingAway, "server shutting down")
			s.watchers.Delete(key)
			return true
		})

		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = s.httpSrv.Shutdown(shutdownCtx)
		}
	})
	return err
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

// newSession parses and validates the request's debate parameters.
func (s *Server) newSession(r *http.Request) (*debate.Session, error) {
	params, err := debate.ParseParams(r.URL.Query(), s.deps.Driver.DefaultRounds())
	if err != nil {
		return nil, err
	}
	return s.deps.Driver.NewSession(params)
}

// reject answers a request whose parameters failed validation.
func (s *Server) reject(w http.ResponseWriter, err error) {
	s.deps.Metrics.RejectedRequests.Add(1)
	status := http.StatusBadRequest
	if !errors.Is(err, domain.ErrInvalidInput) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(domain.ErrorCodeOf(err))})
}

// wsOriginPatterns returns the origins accepted for WebSocket upgrades:
// loopback for local development plus the configured allowed origins.
func (s *Server) wsOriginPatterns() []string {
	patterns := []string{
		"localhost",
		"localhost:*",
		"127.0.0.1",
		"127.0.0.1:*",
		"[::1]",
		"[::1]:*",
	}
	for _, o := range s.deps.Config.AllowedOrigins {
		if u, err := parseOriginHost(o); err == nil {
			patterns = append(patterns, u)
		}
	}
	return patterns
}
