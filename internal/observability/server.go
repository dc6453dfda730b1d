// Package observability serves health checks and Prometheus metrics over HTTP.
package observability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check reports whether a dependency is ready. A nil error means ready.
type Check func(ctx context.Context) error

// Server is the health and metrics HTTP server.
type Server struct {
	app     *fiber.App
	started time.Time
	version string

	mu     sync.RWMutex
	checks map[string]Check
	info   map[string]func() any
}

// NewServer creates a server exposing metrics from gatherer.
func NewServer(version string, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ReadTimeout:           5 * time.Second,
			WriteTimeout:          10 * time.Second,
		}),
		started: time.Now(),
		version: version,
		checks:  make(map[string]Check),
		info:    make(map[string]func() any),
	}
	s.app.Get("/healthz", s.health)
	s.app.Get("/readyz", s.ready)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

// AddCheck registers a readiness check.
func (s *Server) AddCheck(name string, c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
}

// AddInfo registers a value reported by /healthz, e.g. the active session count.
func (s *Server) AddInfo(name string, f func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info[name] = f
}

func (s *Server) health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	s.mu.RLock()
	for name, f := range s.info {
		body[name] = f()
	}
	s.mu.RUnlock()
	return c.JSON(body)
}

func (s *Server) ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	results := fiber.Map{}
	ok := true
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			results[name] = err.Error()
			ok = false
			continue
		}
		results[name] = "ok"
	}
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "checks": results})
	}
	return c.JSON(fiber.Map{"status": "ready", "checks": results})
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) {
	go func() {
		slog.Info("observability server listening", "addr", addr)
		if err := s.app.Listen(addr); err != nil {
			slog.Error("observability server stopped", "err", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
