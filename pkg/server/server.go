// Package server exposes the rover's commands over HTTP.  Requests and
// responses are JSON; cross-origin requests are allowed from anywhere so the
// web remote can be served off-box.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/spraybot-team/spraybot/pkg/sequencer"
)

// Actuator is the slice of the sequencer the HTTP layer needs.
type Actuator interface {
	Drive(ctx context.Context, direction string, distanceM float64, speedPct int) (string, error)
	Stop(ctx context.Context) (string, error)
	AimCamera(ctx context.Context, direction string) (string, error)
	AimSprayNozzle(ctx context.Context, angleDeg float64) (string, error)
	FireSpray(ctx context.Context, d time.Duration) (string, error)
}

var _ Actuator = (*sequencer.Sequencer)(nil)

type Server struct {
	srv      *http.Server
	actuator Actuator
	logger   *zap.SugaredLogger
}

func New(addr string, actuator Actuator, logger *zap.SugaredLogger) *Server {
	s := &Server{
		actuator: actuator,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	for _, dir := range []string{"forward", "backward", "left", "right"} {
		r.HandleFunc("/"+dir, s.handleMove(dir)).Methods(http.MethodPost)
	}
	r.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/camera/{direction}", s.handleCamera).Methods(http.MethodPost)
	r.HandleFunc("/turn_spray", s.handleTurnSpray).Methods(http.MethodPost)
	r.HandleFunc("/activate_spray", s.handleActivateSpray).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: cors.AllowAll().Handler(s.logRequests(r)),
	}
	return s
}

// Handler exposes the routing stack for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infow("Starting HTTP server", "addr", s.srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Infow("Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start),
		)
	})
}
