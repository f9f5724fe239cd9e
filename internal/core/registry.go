// Package core holds the broker's two pieces of server-side state: the
// session registry (who is connected, and at what presence) and the
// history store (what has been said). The two are guarded by independent
// locks; they use internal/protocol only for its value types (states, user
// statuses, history entries) and know nothing about the transport — they
// are exercised directly by internal/router and by tests.
package core

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/fabiola-cc/chatbroker/internal/protocol"
)

// BroadcastName is the reserved pseudo-recipient meaning "everyone". It can
// never be claimed as a username.
const BroadcastName = "~"

// SendTimeout bounds how long the registry will block trying to hand a
// frame to one session's outbound channel before giving up on that
// recipient. A slow or stuck client must never stall delivery to everyone
// else.
const SendTimeout = 100 * time.Millisecond

// sendBufferSize is the outbound channel capacity per session.
const sendBufferSize = 64

var (
	// ErrNameEmpty means a claim or validation was attempted with an empty name.
	ErrNameEmpty = errors.New("core: name is empty")
	// ErrNameTooLong means a name exceeded the 255-byte wire field limit.
	ErrNameTooLong = errors.New("core: name exceeds 255 bytes")
	// ErrNameInvalidUTF8 means a name was not well-formed UTF-8.
	ErrNameInvalidUTF8 = errors.New("core: name is not valid UTF-8")
	// ErrNameReserved means a claim was attempted using the broadcast name.
	ErrNameReserved = errors.New("core: name is reserved")
)

// ValidateName enforces the wire-level and registry-level constraints a
// username must satisfy before it may be claimed: 1..255 bytes, valid
// UTF-8, and not the reserved broadcast name.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > protocol.MaxFieldLen {
		return ErrNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrNameInvalidUTF8
	}
	if name == BroadcastName {
		return ErrNameReserved
	}
	return nil
}

// ClaimResult describes the outcome of a Claim call.
type ClaimResult int

const (
	// ClaimAccepted means a brand-new session was created for the name.
	ClaimAccepted ClaimResult = iota
	// ClaimReconnected means the name belonged to a Disconnected session
	// that has now been revived on the new transport.
	ClaimReconnected
	// ClaimRejectedInUse means the name is already claimed by a live session.
	ClaimRejectedInUse
	// ClaimRejectedBadName means the name failed ValidateName.
	ClaimRejectedBadName
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimAccepted:
		return "Accepted-New"
	case ClaimReconnected:
		return "Accepted-Reconnect"
	case ClaimRejectedInUse:
		return "Rejected-InUse"
	case ClaimRejectedBadName:
		return "Rejected-BadName"
	default:
		return "Unknown"
	}
}

// Session is one claimed username's live state: its presence and the
// channel its dedicated writer goroutine drains to deliver frames in
// order, without ever sharing the transport write path with any other
// goroutine.
type Session struct {
	Name  string
	Addr  string
	Send  chan []byte
	state atomic.Int32
}

// State returns the session's current presence. Backed by an atomic so it
// can be read from any goroutine (a router handler inspecting a recipient,
// a diagnostics handler building a snapshot) without taking the registry
// lock.
func (s *Session) State() protocol.State {
	return protocol.State(s.state.Load())
}

func (s *Session) setState(state protocol.State) {
	s.state.Store(int32(state))
}

// Registry is the broker's concurrent map of claimed usernames to live or
// disconnected sessions. A name, once claimed, is never forgotten — it
// moves to Disconnected on exit so a later reconnect finds it again
// instead of colliding with a brand-new claim.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Claim attempts to bind name to a new live session on the given
// transport address. It returns Accepted-New for a name never seen
// before, Accepted-Reconnect for a name currently Disconnected, and
// Rejected-InUse if the name already has a live (non-Disconnected)
// session. A malformed name is rejected before any of that is consulted.
func (r *Registry) Claim(name, addr string) (*Session, ClaimResult) {
	if err := ValidateName(name); err != nil {
		return nil, ClaimRejectedBadName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[name]
	if !ok {
		s := &Session{Name: name, Addr: addr, Send: make(chan []byte, sendBufferSize)}
		s.setState(protocol.StateActive)
		r.sessions[name] = s
		slog.Info("session claimed", "name", name, "addr", addr, "result", ClaimAccepted.String())
		return s, ClaimAccepted
	}

	if existing.State() != protocol.StateDisconnected {
		slog.Warn("claim rejected: name in use", "name", name, "addr", addr)
		return nil, ClaimRejectedInUse
	}

	// Reconnect: revive the name with a fresh transport and outbound channel.
	existing.Addr = addr
	existing.Send = make(chan []byte, sendBufferSize)
	existing.setState(protocol.StateActive)
	slog.Info("session reconnected", "name", name, "addr", addr, "result", ClaimReconnected.String())
	return existing, ClaimReconnected
}

// SetState updates a live session's presence. Reports false if name has no
// live session.
func (r *Registry) SetState(name string, state protocol.State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok || s.State() == protocol.StateDisconnected {
		return false
	}
	s.setState(state)
	return true
}

// MarkOffline transitions a session to Disconnected, closing its outbound
// channel so its writer goroutine exits. The name remains reserved for a
// future reconnect. Reports false if name is unknown or already offline.
func (r *Registry) MarkOffline(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok || s.State() == protocol.StateDisconnected {
		return false
	}
	s.setState(protocol.StateDisconnected)
	close(s.Send)
	slog.Info("session marked offline", "name", name)
	return true
}

// Lookup returns the session for name, if any has ever claimed it
// (including Disconnected ones).
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Snapshot returns a stable, name-sorted view of every session ever
// claimed, live or disconnected.
func (r *Registry) Snapshot() []protocol.UserStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.UserStatus, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, protocol.UserStatus{Name: s.Name, State: s.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BroadcastTargets returns the live (non-Disconnected) sessions other than
// exceptName, snapshotted under lock and handed back for the caller to
// write to outside the lock — mirrors the room-broadcast pattern of
// collecting channels while holding the lock, then sending after
// releasing it, so a slow recipient never blocks the registry itself.
func (r *Registry) BroadcastTargets(exceptName string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for name, s := range r.sessions {
		if name == exceptName {
			continue
		}
		if s.State() == protocol.StateDisconnected {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ActiveTargets returns only the Active sessions other than exceptName.
// Unlike BroadcastTargets, Busy and Inactive sessions are excluded — this
// is for chat delivery, where a non-Active recipient must receive nothing
// and let history hold the backlog, not for presence/registration events,
// which reach every open transport.
func (r *Registry) ActiveTargets(exceptName string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for name, s := range r.sessions {
		if name == exceptName {
			continue
		}
		if s.State() != protocol.StateActive {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Deliver attempts to hand raw to session's outbound channel, giving up
// after SendTimeout so one stuck client can never stall a broadcast.
// Reports whether the frame was handed off.
func Deliver(s *Session, raw []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			// Send on a channel the writer goroutine already closed, e.g. a
			// MarkOffline raced the broadcast. Not the caller's problem.
			ok = false
		}
	}()

	select {
	case s.Send <- raw:
		return true
	case <-time.After(SendTimeout):
		slog.Debug("deliver timeout", "name", s.Name)
		return false
	}
}
