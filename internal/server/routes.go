package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/mempack/internal/engine"
	"github.com/lazypower/mempack/internal/pack"
	"github.com/lazypower/mempack/internal/store"
)

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req engine.EnrichRequest
	if !decodeBody(w, r, &req) {
		return
	}

	env, err := s.engine.Enrich(r.Context(), req)
	if err != nil {
		s.fail(w, "enrich", err)
		return
	}

	if r.URL.Query().Get("format") == "context" {
		writeJSON(w, http.StatusOK, map[string]string{"context": renderContext(env)})
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req engine.CompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.engine.RecordCompletion(r.Context(), req)
	if err != nil {
		s.fail(w, "record completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := s.engine.Features(r.Context())
	if err != nil {
		s.fail(w, "list features", err)
		return
	}
	if features == nil {
		features = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(features),
		"features": features,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	feature := pathParam(r, "feature")

	packs, err := s.engine.History(r.Context(), feature)
	if err != nil {
		s.fail(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feature_id": feature,
		"count":      len(packs),
		"packs":      packs,
	})
}

func (s *Server) handlePack(w http.ResponseWriter, r *http.Request) {
	feature, uow := pathParam(r, "feature"), pathParam(r, "uow")

	p, err := s.engine.Pack(r.Context(), feature, uow)
	var malformed *pack.MalformedError
	if errors.As(err, &malformed) {
		// Show what survived alongside the validation failure.
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": err.Error(),
			"pack":  p,
		})
		return
	}
	if err != nil {
		s.fail(w, "get pack", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFeatureGraph(w http.ResponseWriter, r *http.Request) {
	feature := pathParam(r, "feature")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	g, err := s.engine.FeatureGraph(r.Context(), feature, limit)
	if err != nil {
		s.fail(w, "feature graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		s.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// pathParam returns a decoded URL parameter. chi matches on the raw path
// when the request escaped a separator, so "payments%2Fcheckout" arrives
// still escaped.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// fail maps engine and store errors onto HTTP status codes. Server-side
// failures are logged; the client sees the message either way.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(op+" failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	var perr *engine.PersistenceError
	switch {
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &perr) && errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
