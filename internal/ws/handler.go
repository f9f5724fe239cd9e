// Package ws drives one session's connection lifecycle: validating the
// WebSocket upgrade request, claiming a name in the registry, running the
// binary frame read loop through the router, and cleaning up on exit.
package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/core"
	"github.com/fabiola-cc/chatbroker/internal/protocol"
	"github.com/fabiola-cc/chatbroker/internal/router"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeTimeout = 5 * time.Second

// Handler owns the WebSocket transport: the upgrade handshake and the
// per-connection read/write loops. It holds no session state of its own —
// that lives in the registry.
type Handler struct {
	registry *core.Registry
	router   *router.Router
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler bound to registry and router.
func NewHandler(registry *core.Registry, rt *router.Router) *Handler {
	return &Handler{
		registry: registry,
		router:   rt,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the upgrade route on an Echo router at the path the
// spec's clients connect to.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.HandleUpgrade)
}

// errBadUpgrade is returned by validateUpgradeHeaders; its message becomes
// the 400 response body, which is useful when diagnosing a client that
// sends a slightly-off handshake.
var errBadUpgrade = errors.New("missing or invalid websocket upgrade headers")

func isUpgradeAttempt(req *http.Request) bool {
	return req.Header.Get("Upgrade") != ""
}

func validateUpgradeHeaders(req *http.Request) error {
	connection := strings.ToLower(req.Header.Get("Connection"))
	if !strings.Contains(connection, "upgrade") {
		return errBadUpgrade
	}
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return errBadUpgrade
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return errBadUpgrade
	}
	if req.Header.Get("Sec-WebSocket-Key") == "" {
		return errBadUpgrade
	}
	return nil
}

// HandleUpgrade implements the full Connection Lifecycle: header
// validation, name claim, admission, the frame read loop, and offline
// cleanup.
func (h *Handler) HandleUpgrade(c echo.Context) error {
	req := c.Request()
	name := strings.TrimSpace(req.URL.Query().Get("name"))
	remote := c.RealIP()

	if !isUpgradeAttempt(req) {
		return h.handleProbe(c, name)
	}

	if err := validateUpgradeHeaders(req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	session, result := h.registry.Claim(name, remote)
	switch result {
	case core.ClaimRejectedBadName:
		return c.String(http.StatusBadRequest, "invalid name")
	case core.ClaimRejectedInUse:
		return c.String(http.StatusBadRequest, "name already in use")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), req, nil)
	if err != nil {
		slog.Error("ws upgrade failed after claim", "name", name, "remote", remote, "err", err)
		h.registry.MarkOffline(name)
		return nil
	}

	traceID := uuid.NewString()
	slog.Info("ws connected", "name", name, "remote", remote, "trace_id", traceID, "result", result.String())

	h.admit(name, result)
	h.serveConn(conn, session, traceID)
	return nil
}

func (h *Handler) handleProbe(c echo.Context, name string) error {
	if err := core.ValidateName(name); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if s, ok := h.registry.Lookup(name); ok && s.State() != protocol.StateDisconnected {
		return c.String(http.StatusBadRequest, "name already in use")
	}
	return c.String(http.StatusOK, "name available")
}

// admit broadcasts the join/reconnect notification, per spec.md §4.5
// steps 5 and 6: a fresh claim announces to everyone including the new
// session itself; a reconnect announces to everyone else.
func (h *Handler) admit(name string, result core.ClaimResult) {
	switch result {
	case core.ClaimAccepted:
		frame := protocol.NewUserFrame{Name: name, State: protocol.StateActive}
		for _, target := range h.registry.BroadcastTargets("") {
			h.send(target, frame)
		}
	case core.ClaimReconnected:
		frame := protocol.StateChangeFrame{Name: name, State: protocol.StateActive}
		for _, target := range h.registry.BroadcastTargets(name) {
			h.send(target, frame)
		}
	}
}

func (h *Handler) send(s *core.Session, frame protocol.Frame) {
	raw, err := frame.Encode()
	if err != nil {
		slog.Error("ws: encode failed", "type", frame.Type(), "target", s.Name, "err", err)
		return
	}
	if !core.Deliver(s, raw) {
		slog.Debug("ws: delivery dropped", "type", frame.Type(), "target", s.Name)
	}
}

func (h *Handler) serveConn(conn *websocket.Conn, session *core.Session, traceID string) {
	defer conn.Close()
	conn.SetReadLimit(1 << 16)

	go h.writeLoop(conn, session, traceID)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "name", session.Name, "trace_id", traceID, "err", err)
			}
			break
		}
		if msgType != websocket.BinaryMessage {
			slog.Debug("ws ignoring non-binary frame", "name", session.Name, "trace_id", traceID, "msg_type", msgType)
			continue
		}

		frame, err := protocol.Decode(raw)
		if err != nil {
			slog.Debug("ws malformed frame, closing", "name", session.Name, "trace_id", traceID, "err", err)
			break
		}
		h.router.Dispatch(session.Name, frame)
	}

	h.disconnect(session.Name, traceID)
}

func (h *Handler) writeLoop(conn *websocket.Conn, session *core.Session, traceID string) {
	for raw := range session.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			slog.Debug("ws write error", "name", session.Name, "trace_id", traceID, "err", err)
			return
		}
	}
}

func (h *Handler) disconnect(name, traceID string) {
	if !h.registry.MarkOffline(name) {
		return
	}
	slog.Info("ws disconnected", "name", name, "trace_id", traceID)

	frame := protocol.StateChangeFrame{Name: name, State: protocol.StateDisconnected}
	for _, target := range h.registry.BroadcastTargets(name) {
		h.send(target, frame)
	}
}
