package core

import (
	"sync"

	"github.com/fabiola-cc/chatbroker/internal/protocol"
)

// MaxHistoryReturned bounds how many entries a GetHistory request can ever
// receive, matching the 255-entry count prefix a HistoryResponse frame can
// carry on the wire.
const MaxHistoryReturned = 255

// ChatIDFor derives the canonical chat identifier for a pair of
// participants: the broadcast channel uses BroadcastName, and any direct
// thread between two usernames uses the lexicographically ordered pair
// joined by a hyphen, so "bob"-"alice" and "alice"-"bob" always resolve to
// the same history bucket.
func ChatIDFor(a, b string) string {
	if a == BroadcastName || b == BroadcastName {
		return BroadcastName
	}
	if a <= b {
		return a + "-" + b
	}
	return b + "-" + a
}

// History is the broker's in-memory, per-chat message log. It holds one
// independent mutex from Registry: appending a chat message and mutating
// presence are unrelated operations and must never contend on the same
// lock. History is never persisted to disk and grows without bound for
// the lifetime of the process — durable storage is out of scope for this
// broker.
type History struct {
	mu   sync.Mutex
	byID map[string][]protocol.Entry
}

// NewHistory returns an empty history store.
func NewHistory() *History {
	return &History{byID: make(map[string][]protocol.Entry)}
}

// Append records one (sender, body) entry under chatID.
func (h *History) Append(chatID, sender, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[chatID] = append(h.byID[chatID], protocol.Entry{Sender: sender, Body: body})
}

// Read returns up to MaxHistoryReturned entries for chatID. If more than
// MaxHistoryReturned entries have ever been appended, the first
// MaxHistoryReturned are returned — an explicit tradeoff of the wire
// protocol's single-byte count field, not a most-recent-window policy.
func (h *History) Read(chatID string) []protocol.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.byID[chatID]
	n := len(entries)
	if n > MaxHistoryReturned {
		n = MaxHistoryReturned
	}
	out := make([]protocol.Entry, n)
	copy(out, entries[:n])
	return out
}
