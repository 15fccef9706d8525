// Package server exposes the scoring engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rcliao/ratemykey/internal/model"
)

// Scorer records and rates actions.
type Scorer interface {
	RecordAndScore(ctx context.Context, ev model.ActionEvent) (*model.Result, error)
	ResetContext(ctx context.Context, ns string) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	scorer Scorer
	health Pinger
	logger *zap.Logger
	now    func() time.Time
	router *mux.Router
	opts   Options
}

// New wires the routes. logger may be nil.
func New(scorer Scorer, health Pinger, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		scorer: scorer,
		health: health,
		logger: logger,
		now:    time.Now,
		router: mux.NewRouter(),
		opts:   opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestID, AccessLog(s.logger))

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/ratemykey", s.handleRate).Methods(http.MethodGet)
	s.router.HandleFunc("/reset", s.handleReset).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]time.Time{"date": s.now().UTC()})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := model.ParseDate(q.Get("date"), s.now())
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}

	res, err := s.scorer.RecordAndScore(r.Context(), model.ActionEvent{
		Context:   q.Get("context"),
		Key:       q.Get("key"),
		Action:    q.Get("action"),
		Timestamp: date,
	})
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("score failed",
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("context", q.Get("context")),
				zap.Error(err))
		}
		respondError(w, r, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ns := r.URL.Query().Get("context")
	if err := s.scorer.ResetContext(r.Context(), ns); err != nil {
		status, code := statusFor(err)
		respondError(w, r, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"context": ns, "reset": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
