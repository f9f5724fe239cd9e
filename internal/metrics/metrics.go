// Package metrics logs periodic broker statistics: active sessions, frames
// routed by type, and history entries appended. It replaces the teacher's
// datagram/byte counters, which don't apply to a text protocol, with
// counters that do.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/core"
	"github.com/fabiola-cc/chatbroker/internal/protocol"
)

// Counters accumulates broker activity between log ticks. Safe for
// concurrent use from every router Dispatch call.
type Counters struct {
	framesRouted    [256]atomic.Int64
	historyAppended atomic.Int64
}

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{}
}

// RecordFrame increments the count for one routed frame type.
func (c *Counters) RecordFrame(t protocol.FrameType) {
	c.framesRouted[byte(t)].Add(1)
}

// RecordHistoryAppend increments the history-entry counter.
func (c *Counters) RecordHistoryAppend() {
	c.historyAppended.Add(1)
}

func (c *Counters) snapshot() (frames map[protocol.FrameType]int64, historyAppended int64) {
	frames = make(map[protocol.FrameType]int64)
	for i, counter := range c.framesRouted {
		if n := counter.Swap(0); n > 0 {
			frames[protocol.FrameType(i)] = n
		}
	}
	historyAppended = c.historyAppended.Swap(0)
	return frames, historyAppended
}

// Run logs registry size and counter deltas every interval until ctx is
// cancelled. It never exits on its own.
func Run(ctx context.Context, registry *core.Registry, counters *Counters, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logTick(registry, counters)
		}
	}
}

func logTick(registry *core.Registry, counters *Counters) {
	snap := registry.Snapshot()
	active := 0
	for _, u := range snap {
		if u.State != protocol.StateDisconnected {
			active++
		}
	}

	frames, historyAppended := counters.snapshot()
	if active == 0 && len(frames) == 0 && historyAppended == 0 {
		return
	}

	args := []any{"active_sessions", active, "registered_names", len(snap), "history_appended", historyAppended}
	for t, n := range frames {
		args = append(args, "frames_"+t.String(), n)
	}
	slog.Info("broker metrics", args...)
}
