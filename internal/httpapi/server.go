// Package httpapi exposes a small read-only REST surface for operators and
// tooling that cannot speak the binary WebSocket protocol: liveness,
// registry snapshot, and per-chat history. It carries no mutation
// endpoints — this system has no authentication layer to gate them.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/core"
	"github.com/fabiola-cc/chatbroker/internal/protocol"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the diagnostics Echo application, bound to its own address,
// separate from the WebSocket listener.
type Server struct {
	echo     *echo.Echo
	registry *core.Registry
	history  *core.History
}

// New constructs the diagnostics app over registry and history.
func New(registry *core.Registry, history *core.History) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, registry: registry, history: history}
	s.registerRoutes()
	return s
}

// requestLogger logs each HTTP request via slog, at Debug for the
// liveness endpoint and Info for everything else.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Request().URL.Path
			fields := []any{
				"method", c.Request().Method,
				"path", path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if path == "/health" {
				slog.Debug("http request", fields...)
			} else {
				slog.Info("http request", append(fields, "remote", c.RealIP())...)
			}
			return nil
		}
	}
}

// Echo exposes the underlying app, for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/users", s.handleUsers)
	s.echo.GET("/api/history/:chatId", s.handleHistory)
}

// Run starts the diagnostics server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down diagnostics server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("diagnostics server stopped")
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	snap := s.registry.Snapshot()
	active := 0
	for _, u := range snap {
		if u.State != protocol.StateDisconnected {
			active++
		}
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Clients: active})
}

type userResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (s *Server) handleUsers(c echo.Context) error {
	snap := s.registry.Snapshot()
	out := make([]userResponse, 0, len(snap))
	for _, u := range snap {
		out = append(out, userResponse{Name: u.Name, State: u.State.String()})
	}
	return c.JSON(http.StatusOK, out)
}

type historyEntryResponse struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

func (s *Server) handleHistory(c echo.Context) error {
	chatID := strings.TrimSpace(c.Param("chatId"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chatId is required")
	}
	entries := s.history.Read(chatID)
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{Sender: e.Sender, Body: e.Body})
	}
	return c.JSON(http.StatusOK, out)
}
