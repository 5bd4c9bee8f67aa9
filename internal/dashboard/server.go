package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"multipush/internal/push"
)

// Server exposes live run progress over HTTP while a push is in flight.
// It is read-only: nothing mutates the run from here.
type Server struct {
	reporter *push.Reporter
	pool     *push.Pool
	logger   push.Logger
	httpSrv  *http.Server
}

// NewServer creates a dashboard server bound to the given address.
func NewServer(addr string, reporter *push.Reporter, pool *push.Pool, logger push.Logger) *Server {
	if logger == nil {
		logger = &push.NopLogger{}
	}
	s := &Server{
		reporter: reporter,
		pool:     pool,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/api/progress", s.handleProgress)
	r.Get("/api/accounts", s.handleAccounts)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine and returns the bound
// address. The listener is created synchronously so a bad address fails fast.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return "", err
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server stopped", "error", err)
		}
	}()

	addr := ln.Addr().String()
	s.logger.Info("dashboard listening", "addr", addr)
	return addr, nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.reporter.Snapshot())
}

func (s *Server) handleAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := s.pool.Snapshot()

	type accountView struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		Status        string  `json:"status"`
		Remaining     int     `json:"rate_limit_remaining"`
		Limit         int     `json:"rate_limit"`
		ResetAt       string  `json:"reset_at,omitempty"`
		Requests      int64   `json:"requests"`
		Successful    int64   `json:"successful"`
		Failed        int64   `json:"failed"`
		AvgResponseMs float64 `json:"avg_response_ms"`
	}

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		v := accountView{
			ID:            acc.ID,
			Name:          acc.Name,
			Status:        string(acc.Status),
			Remaining:     acc.RateLimitRemaining,
			Limit:         acc.RateLimitLimit,
			Requests:      acc.TotalRequests,
			Successful:    acc.SuccessfulRequests,
			Failed:        acc.FailedRequests,
			AvgResponseMs: acc.AvgResponseMs,
		}
		if !acc.RateLimitResetAt.IsZero() {
			v.ResetAt = acc.RateLimitResetAt.Format(time.RFC3339)
		}
		views = append(views, v)
	}

	writeJSON(w, map[string]any{
		"accounts": views,
		"count":    len(views),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
