package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server is the mempack HTTP API server.
type Server struct {
	engine  *engine.Engine
	store   store.Store
	log     *slog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over an engine and the store it reads from.
func New(e *engine.Engine, s store.Store, version string, log *slog.Logger) *Server {
	srv := &Server{
		engine:  e,
		store:   s,
		log:     log,
		version: version,
		started: time.Now(),
	}
	srv.routes()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/scoring", s.handleScoring)

		r.Post("/enrich", s.handleEnrich)
		r.Post("/completions", s.handleCompletion)

		r.Get("/features", s.handleFeatures)
		r.Get("/features/{feature}/packs", s.handleHistory)
		r.Get("/features/{feature}/packs/{uow}", s.handlePack)
		r.Get("/features/{feature}/graph", s.handleFeatureGraph)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := true
	if err := store.Healthy(r.Context(), s.store); err != nil {
		storeOK = false
		s.log.Warn("store health check failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"store":   storeOK,
		"backend": store.Describe(s.store),
	})
}

func (s *Server) handleScoring(w http.ResponseWriter, r *http.Request) {
	sc := s.engine.Scoring()
	writeJSON(w, http.StatusOK, map[string]any{
		"weights":        sc.Weights,
		"half_life_days": sc.HalfLife.Hours() / 24,
	})
}
