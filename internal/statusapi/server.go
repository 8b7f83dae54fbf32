// Package statusapi serves a read-only JSON view of processed transients and
// their vote tallies while watch mode is running.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"transientbot/internal/ledger"
	"transientbot/internal/logging"
	"transientbot/internal/votes"
)

// Server exposes the status endpoints.
type Server struct {
	bind       string
	ledgerPath string
	votes      *votes.Store
	thresholds votes.Thresholds
	logger     *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New returns nil when bind is empty, which disables the API.
func New(bind, ledgerPath string, store *votes.Store, thresholds votes.Thresholds, logger *slog.Logger) *Server {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil
	}
	s := &Server{
		bind:       bind,
		ledgerPath: ledgerPath,
		votes:      store,
		thresholds: thresholds,
		logger:     logging.NewComponentLogger(logger, "status-api"),
	}
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/transients", s.handleTransients)
		r.Get("/transients/{id}", s.handleTransient)
		r.Get("/votes", s.handleVotes)
	})
	return r
}

// Start listens on the configured address and shuts down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("status api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status api listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// EntryView is the JSON form of a processed-state entry. Unknown numbers are null.
type EntryView struct {
	ID            string     `json:"id"`
	ProcessedAt   time.Time  `json:"processed_at"`
	Outcome       string     `json:"outcome"`
	Source        string     `json:"source,omitempty"`
	Observation   string     `json:"observation,omitempty"`
	RA            *float64   `json:"ra_deg"`
	Dec           *float64   `json:"dec_deg"`
	Field         string     `json:"field,omitempty"`
	DetectedAt    *time.Time `json:"time,omitempty"`
	TestStatistic *float64   `json:"test_statistic"`
	Status        string     `json:"status,omitempty"`
	MessageTS     string     `json:"message_ts,omitempty"`
	Channel       string     `json:"channel,omitempty"`
}

// VoteView is a tally with its classification and priority score.
type VoteView struct {
	votes.Tally
	Classification votes.Classification `json:"classification"`
	Priority       int                  `json:"priority"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func entryView(e ledger.Entry) EntryView {
	view := EntryView{
		ID:            e.ID,
		ProcessedAt:   e.ProcessedAt,
		Outcome:       string(e.Outcome),
		Source:        e.Source,
		Observation:   e.Observation,
		RA:            finite(e.RA),
		Dec:           finite(e.Dec),
		Field:         e.Field,
		TestStatistic: finite(e.TestStatistic),
		Status:        e.Status,
		MessageTS:     e.MessageTS,
		Channel:       e.Channel,
	}
	if !e.DetectedAt.IsZero() {
		at := e.DetectedAt
		view.DetectedAt = &at
	}
	return view
}

func (s *Server) voteView(t votes.Tally) VoteView {
	return VoteView{Tally: t, Classification: votes.Classify(t, s.thresholds), Priority: votes.Priority(t)}
}

func (s *Server) handleTransients(w http.ResponseWriter, r *http.Request) {
	led, err := ledger.Load(s.ledgerPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	outcome := strings.TrimSpace(r.URL.Query().Get("outcome"))
	items := make([]EntryView, 0, led.Len())
	for _, entry := range led.Entries() {
		if outcome != "" && string(entry.Outcome) != outcome {
			continue
		}
		items = append(items, entryView(entry))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleTransient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	led, err := ledger.Load(s.ledgerPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entry, ok := led.Lookup(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "transient not found")
		return
	}
	payload := map[string]any{"entry": entryView(entry)}
	if s.votes != nil {
		tally, err := s.votes.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if tally != nil {
			payload["votes"] = s.voteView(*tally)
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	if s.votes == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"items": []VoteView{}})
		return
	}
	tallies, err := s.votes.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	items := make([]VoteView, 0, len(tallies))
	for _, t := range votes.Rank(tallies) {
		view := s.voteView(t)
		if category != "" && !strings.EqualFold(string(view.Classification.Category), category) {
			continue
		}
		items = append(items, view)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
