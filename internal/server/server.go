package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Takenobou/sfoweb-appointments/internal/config"
	"github.com/Takenobou/sfoweb-appointments/internal/coordinator"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

const (
	cacheControlICS = "public, max-age=300"
	noAppointments  = "No appointments"
	maxBodyBytes    = 1 << 16
)

// Coordinator exposes the polled state per account.
type Coordinator interface {
	Accounts() []string
	Snapshot(name string) (coordinator.Snapshot, bool)
	Snapshots() []coordinator.Snapshot
	Refresh(ctx context.Context, name string) (coordinator.Snapshot, error)
}

// Validator performs the cheap credential check used during setup.
type Validator interface {
	ValidateCredentials(ctx context.Context, creds model.Credentials) bool
}

// CalendarBuilder abstracts ICS generation.
type CalendarBuilder interface {
	Build(account string, appointments []model.Appointment) ([]byte, error)
}

// Server exposes the coordinator's snapshots as sensor-shaped JSON, an ICS
// feed per account and Prometheus metrics.
type Server struct {
	cfg         config.Config
	coordinator Coordinator
	validator   Validator
	calendar    CalendarBuilder
	metrics     *Metrics
	logger      *slog.Logger
	httpServer  *http.Server
	location    *time.Location
}

// New prepares a Server for use.
func New(cfg config.Config, coord Coordinator, validator Validator, cal CalendarBuilder, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.Local
	}

	s := &Server{
		cfg:         cfg,
		coordinator: coord,
		validator:   validator,
		calendar:    cal,
		metrics:     metrics,
		logger:      logger,
		location:    loc,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("GET /api/accounts", s.accountsHandler)
	mux.HandleFunc("GET /api/accounts/{name}/appointments", s.appointmentsHandler)
	mux.HandleFunc("GET /api/accounts/{name}/next", s.nextHandler)
	mux.HandleFunc("GET /api/accounts/{name}/calendar.ics", s.calendarHandler)
	mux.HandleFunc("POST /api/validate", s.validateHandler)
	return mux
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("listening", slog.String("addr", s.cfg.ListenAddr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountSummary struct {
	Name         string  `json:"name"`
	Available    bool    `json:"available"`
	Appointments int     `json:"appointments"`
	LastUpdated  *string `json:"last_updated"`
}

func (s *Server) accountsHandler(w http.ResponseWriter, r *http.Request) {
	snaps := s.coordinator.Snapshots()
	out := make([]accountSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, accountSummary{
			Name:         snap.Account,
			Available:    snap.Available,
			Appointments: len(snap.Appointments),
			LastUpdated:  s.timestamp(snap.LastUpdated),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state": len(snap.Appointments),
		"attributes": map[string]any{
			"appointments": snap.Appointments,
			"last_updated": s.timestamp(snap.LastUpdated),
			"last_attempt": s.timestamp(snap.LastAttempt),
			"available":    snap.Available,
			"strategy":     snap.Strategy,
			"source":       snap.Source,
		},
	})
}

func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	attrs := map[string]any{"available": snap.Available}
	state := noAppointments
	if len(snap.Appointments) > 0 {
		next := snap.Appointments[0]
		state = next.Description()
		attrs["date"] = next.Date
		attrs["time"] = next.TimeRange
		attrs["what"] = next.Category
		attrs["comment"] = next.Comment
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state, "attributes": attrs})
}

func (s *Server) calendarHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	payload, err := s.calendar.Build(snap.Account, snap.Appointments)
	if err != nil {
		s.logger.Error("calendar build failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "calendar_failed",
		})
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", cacheControlICS)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	valid := s.validator.ValidateCredentials(r.Context(), model.Credentials{Username: body.Username, Password: body.Password})
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// snapshot resolves the {name} path value, refreshing first when asked to.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (coordinator.Snapshot, bool) {
	name := r.PathValue("name")

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		snap, err := s.coordinator.Refresh(r.Context(), name)
		switch {
		case errors.Is(err, coordinator.ErrUnknownAccount):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown_account"})
			return coordinator.Snapshot{}, false
		case err != nil:
			s.logger.Warn("forced refresh failed", slog.String("account", name), slog.String("error", err.Error()))
		}
		return snap, true
	}

	snap, ok := s.coordinator.Snapshot(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown_account"})
		return coordinator.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) timestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.In(s.location).Format(time.RFC3339)
	return &v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"encode_failed"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
