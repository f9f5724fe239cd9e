// Package soakbot runs a virtual client against a live broker over a real
// WebSocket connection, exercising the router and registry the same way a
// real user would. Adapted from the teacher's in-process tone test bot:
// where that bot injected Opus datagrams directly into a Room, this one
// dials the real listener and speaks the real binary protocol, since
// there is no in-process shortcut for a WebSocket-shaped system.
package soakbot

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/protocol"

	"github.com/gorilla/websocket"
)

// Config controls one bot's behavior.
type Config struct {
	Name     string
	URL      string // e.g. "ws://localhost:8080/?name=soakbot-1"
	Interval time.Duration
	Rand     *rand.Rand
}

// Run connects name to URL and sends periodic broadcast chat frames and
// occasional presence changes until ctx is cancelled or the connection
// drops. It never reconnects on its own — a supervising caller decides
// whether a dropped bot should be restarted.
func Run(ctx context.Context, cfg Config) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	readDone := make(chan struct{})
	go func() {
		drainInbound(ctx, conn, cfg.Name)
		close(readDone)
	}()

	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-readDone:
			return errors.New("soakbot: connection closed")
		case <-ticker.C:
			tick++
			if tick%10 == 0 {
				sendFrame(conn, protocol.ChangeStateRequest{Name: cfg.Name, State: randomState(r)})
				continue
			}
			sendFrame(conn, protocol.SendChatRequest{
				Recipient: "~",
				Body:      "soak tick from " + cfg.Name,
			})
		}
	}
}

func randomState(r *rand.Rand) protocol.State {
	states := []protocol.State{protocol.StateActive, protocol.StateBusy, protocol.StateInactive}
	return states[r.Intn(len(states))]
}

func sendFrame(conn *websocket.Conn, frame protocol.Frame) {
	raw, err := frame.Encode()
	if err != nil {
		slog.Error("soakbot: encode failed", "type", frame.Type(), "err", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		slog.Debug("soakbot: write failed", "err", err)
	}
}

// drainInbound reads and discards frames so the connection's read buffer
// never backs up; a soak bot doesn't act on what it receives.
func drainInbound(ctx context.Context, conn *websocket.Conn, name string) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			slog.Debug("soakbot: read loop exiting", "name", name, "err", err)
			return
		}
	}
}
