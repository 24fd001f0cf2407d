package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/logging"
	"KnowledgeScanner/internal/usecase"
	"KnowledgeScanner/pkg/logger"
)

const correlationHeader = "X-Correlation-ID"

// Drainer publishes the review queue on demand.
type Drainer interface {
	TriggerDrain(ctx context.Context) (domain.DrainResult, error)
}

// QueueService exposes queue inspection and operator discard.
type QueueService interface {
	Status() usecase.Status
	Discard(ctx context.Context, id string) error
}

// Server is the operator control surface.
type Server struct {
	srv             *http.Server
	drainer         Drainer
	queue           QueueService
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer builds the HTTP surface bound to addr.
func NewServer(addr string, shutdownTimeout time.Duration, drainer Drainer, queue QueueService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	s := &Server{
		drainer:         drainer,
		queue:           queue,
		logger:          log,
		shutdownTimeout: shutdownTimeout,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.New(log, "http"),
	}
	return s
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("POST /drain", s.handleDrain)
	mux.HandleFunc("POST /queue/{id}/discard", s.handleDiscard)
	return s.correlation(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		ctx := r.Context()
		if id == "" {
			ctx, id = logging.NewCorrelationID(ctx)
		} else {
			ctx = logging.WithCorrelationID(ctx, id)
		}
		w.Header().Set(correlationHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	Queued        int        `json:"queued"`
	Staged        int        `json:"staged"`
	Notified      int        `json:"notified"`
	FailedNotify  int        `json:"failedNotifications"`
	Seen          int        `json:"seen"`
	LastPollAt    *time.Time `json:"lastPollAt,omitempty"`
	CorrelationID string     `json:"correlationId"`
}

type drainResponse struct {
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Message: "knowledge scanner is running"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.queue.Status()
	resp := statusResponse{
		Queued:        st.Queued,
		Seen:          st.Seen,
		LastPollAt:    st.LastPollAt,
		CorrelationID: logging.CorrelationID(r.Context()),
	}
	for _, e := range st.Entries {
		switch e.State {
		case domain.StateStaged:
			resp.Staged++
			if e.NotifyAttempts > 0 {
				resp.FailedNotify++
			}
		case domain.StateNotified:
			resp.Notified++
		}
	}
	s.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries := s.queue.Status().Entries
	if entries == nil {
		entries = []domain.QueueEntry{}
	}
	s.writeJSON(r.Context(), w, http.StatusOK, entries)
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.drainer.TriggerDrain(r.Context())
	resp := drainResponse{Published: res.Published, Failed: res.Failed}
	status := http.StatusOK
	if err != nil {
		s.logger.ErrorContext(r.Context(), "manual drain", "error", err)
		resp.Error = drainErrorMessage(err)
		status = http.StatusInternalServerError
	}
	s.writeJSON(r.Context(), w, status, resp)
}

// drainErrorMessage keeps storage and upstream details out of responses;
// they are logged instead.
func drainErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return "state not persisted"
	case errors.Is(err, domain.ErrConfiguration):
		return "publisher not configured"
	default:
		return "drain failed"
	}
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.queue.Discard(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrEntryNotFound):
		s.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.logger.ErrorContext(r.Context(), "discard entry", "id", id, "error", err)
		s.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WarnContext(ctx, "write response", "error", err)
	}
}
