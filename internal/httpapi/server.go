// Package httpapi exposes the operational HTTP surface: manual sweep
// trigger, evaluation browsing, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/keyflip/keyflip/internal/config"
	"github.com/keyflip/keyflip/internal/models"
	"github.com/keyflip/keyflip/internal/scan"
	"github.com/keyflip/keyflip/internal/store"
)

// Sweeper triggers one full sweep.
type Sweeper interface {
	Run(ctx context.Context) (*scan.SweepResult, error)
}

// Server is the authenticated API over the scan pipeline.
type Server struct {
	cfg     config.HTTPConfig
	store   *store.Store
	sweeper Sweeper
	now     func() time.Time

	mu          sync.Mutex
	lastTrigger time.Time
	sweeping    bool
}

func NewServer(cfg config.HTTPConfig, st *store.Store, sweeper Sweeper) *Server {
	return &Server{cfg: cfg, store: st, sweeper: sweeper, now: time.Now}
}

// Router builds the route table. Health and metrics are unauthenticated;
// everything else requires the bearer token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/evaluations", s.handleEvaluations).Methods(http.MethodGet)
	api.HandleFunc("/targets", s.handleTargets).Methods(http.MethodGet)
	api.HandleFunc("/targets/{id}/trace", s.handleTrace).Methods(http.MethodGet)
	return r
}

// ListenAndServe blocks until the context is cancelled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BearerToken == "" || r.Header.Get("Authorization") != "Bearer "+s.cfg.BearerToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScan triggers a sweep, throttled by the configured trigger interval
// and refused while a sweep is already in flight.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "sweep already running")
		return
	}
	if since := s.now().Sub(s.lastTrigger); since < s.cfg.TriggerInterval {
		s.mu.Unlock()
		w.Header().Set("Retry-After", strconv.Itoa(int((s.cfg.TriggerInterval-since).Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "sweep recently triggered")
		return
	}
	s.sweeping = true
	s.lastTrigger = s.now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	result, err := s.sweeper.Run(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("triggered sweep failed")
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.EvaluationFilter{TitleQuery: q.Get("q")}
	if d := q.Get("decision"); d != "" {
		decision := models.Decision(d)
		if !decision.Valid() {
			writeError(w, http.StatusBadRequest, "invalid decision filter")
			return
		}
		filter.Decision = decision
	}
	if v := q.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_score")
			return
		}
		filter.MinScore = f
	}
	if v := q.Get("min_profit"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_profit")
			return
		}
		filter.MinProfit = f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	rows, err := s.store.Evaluations.Top(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("evaluation query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": rows, "count": len(rows)})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("all") != "true"
	targets, err := s.store.Targets.List(r.Context(), onlyEnabled)
	if err != nil {
		log.Error().Err(err).Msg("target list failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets, "count": len(targets)})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	trace, err := s.store.Traces.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no trace for target")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("trace query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
