// Package router implements the broker's central dispatch: given a
// sender's name and a decoded frame, it consults the session registry and
// history store and produces zero or more outbound frames delivered to
// specific sessions.
package router

import (
	"log/slog"

	"github.com/fabiola-cc/chatbroker/internal/core"
	"github.com/fabiola-cc/chatbroker/internal/metrics"
	"github.com/fabiola-cc/chatbroker/internal/protocol"
)

// LinkPreviewHook is invoked, outside the routing critical path, whenever
// a chat body is accepted for delivery. targets is exactly the set of
// sessions that received the triggering ChatMessage frame, so a hook never
// has to re-derive participants from chatID — a direct-chat ID is a
// hyphen-joined pair of names, and names are themselves allowed to contain
// hyphens, so splitting it back apart would be ambiguous. The router runs
// the hook on a new goroutine and does not wait on it, so an
// implementation may do its work (HTTP fetch, etc.) synchronously.
type LinkPreviewHook func(chatID, body string, targets []*core.Session)

// Router ties together a session registry and a history store and
// executes the business rules in the wire protocol's frame table against
// them.
type Router struct {
	Registry    *core.Registry
	History     *core.History
	LinkPreview LinkPreviewHook
	Metrics     *metrics.Counters
}

// New returns a Router over the given registry and history store.
func New(registry *core.Registry, history *core.History) *Router {
	return &Router{Registry: registry, History: history}
}

// Dispatch executes one inbound frame on behalf of sender and writes every
// resulting outbound frame to its target session's outbound channel. It
// never returns an error to the caller — per-request failures become
// Error frames sent back to the sender, and delivery failures to other
// sessions are logged and dropped, per the broker's best-effort delivery
// model.
func (r *Router) Dispatch(sender string, frame protocol.Frame) {
	if r.Metrics != nil {
		r.Metrics.RecordFrame(frame.Type())
	}
	switch f := frame.(type) {
	case protocol.ListUsersRequest:
		r.handleListUsers(sender)
	case protocol.GetUserInfoRequest:
		r.handleGetUserInfo(sender, f)
	case protocol.ChangeStateRequest:
		r.handleChangeState(sender, f)
	case protocol.SendChatRequest:
		r.handleSendChat(sender, f)
	case protocol.GetHistoryRequest:
		r.handleGetHistory(sender, f)
	default:
		slog.Warn("router: frame type not routable from client", "type", frame.Type(), "sender", sender)
	}
}

func (r *Router) senderSession(sender string) (*core.Session, bool) {
	s, ok := r.Registry.Lookup(sender)
	if !ok {
		return nil, false
	}
	return s, true
}

// requireActive reports whether sender currently holds an Active session.
// No error code in the wire protocol covers "you must be Active to do
// that", so a request from a non-Active sender (Busy, Inactive, or a
// lookup miss) is silently dropped rather than answered with a
// mismatched error code.
func (r *Router) requireActive(sender string) (*core.Session, bool) {
	s, ok := r.senderSession(sender)
	if !ok || s.State() != protocol.StateActive {
		return nil, false
	}
	return s, true
}

func (r *Router) sendTo(s *core.Session, frame protocol.Frame) {
	raw, err := frame.Encode()
	if err != nil {
		slog.Error("router: encode failed", "type", frame.Type(), "target", s.Name, "err", err)
		return
	}
	if !core.Deliver(s, raw) {
		slog.Debug("router: delivery dropped", "type", frame.Type(), "target", s.Name)
	}
}

func (r *Router) sendError(sender string, code protocol.ErrorCode) {
	s, ok := r.senderSession(sender)
	if !ok {
		return
	}
	r.sendTo(s, protocol.ErrorFrame{Code: code})
}

func (r *Router) handleListUsers(sender string) {
	s, ok := r.requireActive(sender)
	if !ok {
		return
	}
	r.sendTo(s, protocol.UsersListFrame{Users: r.Registry.Snapshot()})
}

func (r *Router) handleGetUserInfo(sender string, req protocol.GetUserInfoRequest) {
	s, ok := r.senderSession(sender)
	if !ok {
		return
	}
	target, found := r.Registry.Lookup(req.Name)
	if !found {
		r.sendTo(s, protocol.ErrorFrame{Code: protocol.ErrCodeUnknownUser})
		return
	}
	r.sendTo(s, protocol.UserInfoFrame{Found: true, Name: target.Name, State: target.State()})
}

func (r *Router) handleChangeState(sender string, req protocol.ChangeStateRequest) {
	if !req.State.ClientRequestable() {
		r.sendError(sender, protocol.ErrCodeInvalidState)
		return
	}
	// The name field is carried on the wire for symmetry with the other
	// request frames, but a session may only change its own presence.
	if !r.Registry.SetState(sender, req.State) {
		return
	}

	change := protocol.StateChangeFrame{Name: sender, State: req.State}
	if self, ok := r.senderSession(sender); ok {
		r.sendTo(self, change)
	}
	for _, target := range r.Registry.BroadcastTargets(sender) {
		r.sendTo(target, change)
	}
}

func (r *Router) handleSendChat(sender string, req protocol.SendChatRequest) {
	if len(req.Body) == 0 {
		r.sendError(sender, protocol.ErrCodeEmptyMessage)
		return
	}

	senderSession, ok := r.requireActive(sender)
	if !ok {
		return
	}

	chatID := core.ChatIDFor(sender, req.Recipient)
	r.History.Append(chatID, sender, req.Body)
	if r.Metrics != nil {
		r.Metrics.RecordHistoryAppend()
	}

	var delivered []*core.Session
	if req.Recipient == core.BroadcastName {
		delivered = r.routeBroadcastChat(sender, senderSession, req.Body)
	} else {
		delivered = r.routeDirectChat(sender, senderSession, req)
	}

	if r.LinkPreview != nil {
		go r.LinkPreview(chatID, req.Body, delivered)
	}
}

func (r *Router) routeBroadcastChat(sender string, senderSession *core.Session, body string) []*core.Session {
	rewritten := sender + ": " + body
	echo := protocol.ChatMessageFrame{Sender: core.BroadcastName, Body: rewritten}
	if len(rewritten) > protocol.MaxFieldLen {
		echo.Body = rewritten[:protocol.MaxFieldLen]
	}

	r.sendTo(senderSession, echo)
	// Chat delivery reaches Active sessions only — Busy and Inactive
	// recipients get nothing, and catch up on the backlog from history.
	targets := r.Registry.ActiveTargets(sender)
	for _, target := range targets {
		r.sendTo(target, echo)
	}
	return append([]*core.Session{senderSession}, targets...)
}

func (r *Router) routeDirectChat(sender string, senderSession *core.Session, req protocol.SendChatRequest) []*core.Session {
	chatFrame := protocol.ChatMessageFrame{Sender: sender, Body: req.Body}
	r.sendTo(senderSession, chatFrame)
	delivered := []*core.Session{senderSession}

	recipient, found := r.Registry.Lookup(req.Recipient)
	if !found {
		r.sendTo(senderSession, protocol.ErrorFrame{Code: protocol.ErrCodeUnknownUser})
		return delivered
	}
	switch recipient.State() {
	case protocol.StateDisconnected:
		r.sendTo(senderSession, protocol.ErrorFrame{Code: protocol.ErrCodeRecipientOffline})
	case protocol.StateActive:
		r.sendTo(recipient, chatFrame)
		delivered = append(delivered, recipient)
	default:
		// Busy or Inactive: history already holds the entry; the recipient
		// catches up on their next GetHistory after returning to Active.
	}
	return delivered
}

func (r *Router) handleGetHistory(sender string, req protocol.GetHistoryRequest) {
	s, ok := r.requireActive(sender)
	if !ok {
		return
	}
	chatID := req.ChatName
	if chatID != core.BroadcastName {
		chatID = core.ChatIDFor(sender, req.ChatName)
	}
	r.sendTo(s, protocol.HistoryResponseFrame{Entries: r.History.Read(chatID)})
}
