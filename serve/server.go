package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/everydev1618/rigel"
	"github.com/everydev1618/rigel/dsl"
)

// Config holds server configuration.
type Config struct {
	Addr string

	// Runs is the reasoner run count when a request names none
	Runs int

	// MaxRuns caps the run count a request may ask for
	MaxRuns int

	// SolveTimeout bounds one POST /api/solve
	SolveTimeout time.Duration

	// Usage reports accumulated model usage for /api/stats (optional)
	Usage func() rigel.Usage

	// Gatherer serves /metrics (default: the global Prometheus registry)
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server for the solve API.
type Server struct {
	pipeline  *rigel.Pipeline
	doc       *dsl.Document
	broker    *EventBroker
	store     Store
	cfg       Config
	startedAt time.Time
}

// New creates a new Server. The store must already be initialized and is
// expected to be the pipeline's recorder.
func New(pipeline *rigel.Pipeline, doc *dsl.Document, store Store, cfg Config) *Server {
	if cfg.Runs <= 0 {
		cfg.Runs = doc.Rounds(rigel.DefaultRuns)
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 16
	}
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 10 * time.Minute
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		pipeline:  pipeline,
		doc:       doc,
		broker:    NewEventBroker(),
		store:     store,
		cfg:       cfg,
		startedAt: time.Now(),
	}

	// Every pipeline event goes to SSE subscribers.
	pipeline.OnEvent(s.broker.Publish)

	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return corsMiddleware(mux)
}

// Start listens for HTTP requests. It blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("rigel serve started", "addr", s.cfg.Addr, "pipeline", s.doc.Summary())
		fmt.Printf("API:     http://localhost%s/api/solve\n", s.cfg.Addr)
		fmt.Printf("Metrics: http://localhost%s/metrics\n", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	// Close broker first so SSE handlers return and the server can drain.
	s.broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	return nil
}

// registerRoutes adds all routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// REST API
	mux.HandleFunc("POST /api/solve", s.handleSolve)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// SSE
	mux.HandleFunc("GET /api/events", s.handleSSE)

	// Prometheus
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
}

// corsMiddleware adds permissive CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
