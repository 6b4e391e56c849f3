package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/history"
	"github.com/s0up4200/posterarr/processor"
	"github.com/s0up4200/posterarr/quota"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// an empty origin list means allow-all in cors, so only install it when set
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/status", s.handleStatus)
		r.Post("/run", s.handleRun)
		r.Get("/history", s.handleHistory)
	})

	return r
}

type statusResponse struct {
	Running          bool               `json:"running"`
	Cooldowns        []cooldown.Entry   `json:"cooldowns"`
	Quota            []quota.Usage      `json:"quota"`
	CacheEntries     int                `json:"cache_entries"`
	PendingProposals int                `json:"pending_proposals"`
	LastRun          *processor.Summary `json:"last_run,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Running:   s.runner.Running() || s.busy.Load(),
		Cooldowns: []cooldown.Entry{},
		Quota:     []quota.Usage{},
	}

	if st := s.state; st != nil {
		if st.Cooldowns != nil {
			resp.Cooldowns = st.Cooldowns.Active()
		}
		if st.Quota != nil {
			resp.Quota = st.Quota.Stats()
		}
		if st.Cache != nil {
			resp.CacheEntries = st.Cache.Len()
		}
		if st.Proposals != nil {
			resp.PendingProposals = st.Proposals.Len()
		}
	}

	if last, ok := s.runner.LastSummary(); ok {
		resp.LastRun = &last
	}

	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if err := s.Trigger(); err != nil {
		if errors.Is(err, processor.ErrRunInProgress) {
			s.respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		if errors.Is(err, ErrClosed) {
			s.respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	skipDryRun := r.URL.Query().Get("dry_run") == "false"

	changes, err := s.history.Recent(r.Context(), limit, skipDryRun)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read history")
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read history"})
		return
	}
	if changes == nil {
		changes = []history.Change{}
	}
	s.respondJSON(w, http.StatusOK, changes)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
