// Package health serves the liveness and readiness checks of the episode
// worker.
//
// /healthz always answers 200 while the process serves HTTP. /readyz answers
// 200 only when every registered [Checker] passes. Both reply with a JSON
// object holding a "status" field ("ok" or "fail") and, for /readyz, the
// result of each named check.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/castmix/internal/observe"
	"github.com/MrWong99/castmix/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker concurrently, each with its own [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the health routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: encode response", "err", err)
	}
}

// Pinger is implemented by dependencies with a connectivity check, such as
// the media catalog.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Redis checks the task broker connection.
func Redis(c redis.UniversalClient) Checker {
	return Checker{Name: "redis", Check: func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	}}
}

// ErrNoHealthyProvider is reported when every entry of a provider group has
// an open circuit breaker.
var ErrNoHealthyProvider = errors.New("health: no provider with a closed circuit")

// Providers fails when status reports no entry that would accept a call.
func Providers(name string, status func() []resilience.EntryStatus) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		entries := status()
		for _, e := range entries {
			if e.State != resilience.StateOpen {
				return nil
			}
		}
		if len(entries) == 0 {
			return nil
		}
		return fmt.Errorf("%w (%d open)", ErrNoHealthyProvider, len(entries))
	}}
}

// Serve runs the health endpoints, and /metrics when metrics is true, on addr
// until ctx is done.
func Serve(ctx context.Context, addr string, h *Handler, m *observe.Metrics, metrics bool) error {
	mux := http.NewServeMux()
	h.Register(mux)
	if metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("health endpoints listening", "addr", addr, "metrics", metrics)

	select {
	case err := <-errCh:
		return fmt.Errorf("health: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}
