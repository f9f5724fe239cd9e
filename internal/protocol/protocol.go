// Package protocol implements the broker's binary wire codec: the
// type-length-value frames exchanged over the single WebSocket connection
// each client holds open with the broker.
//
// Every frame starts with a one-byte type code. What follows is zero or
// more length-prefixed fields (one byte of length, 0..255, then that many
// bytes of payload) and, for some frame types, a trailing single-byte
// scalar (a presence state, an error code, a success flag). There is no
// terminator — the transport already delimits one frame from the next.
package protocol

import (
	"errors"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
)

// FrameType identifies the shape and direction of a frame. See the frame
// type table in the wire protocol documentation for the full list.
type FrameType byte

// Client-to-server frame types.
const (
	TypeListUsers   FrameType = 1
	TypeGetUserInfo FrameType = 2
	TypeChangeState FrameType = 3
	TypeSendChat    FrameType = 4
	TypeGetHistory  FrameType = 5
)

// Server-to-client frame types.
const (
	TypeError           FrameType = 50
	TypeUsersList       FrameType = 51
	TypeUserInfo        FrameType = 52
	TypeNewUser         FrameType = 53
	TypeStateChange     FrameType = 54
	TypeChatMessage     FrameType = 55
	TypeHistoryResponse FrameType = 56
	// TypeLinkPreview is a broker extension, not present in the original
	// frame table. Clients that don't recognize it are expected
	// to ignore unknown frame types, same as any future protocol addition.
	TypeLinkPreview FrameType = 57
)

func (t FrameType) String() string {
	switch t {
	case TypeListUsers:
		return "ListUsers"
	case TypeGetUserInfo:
		return "GetUserInfo"
	case TypeChangeState:
		return "ChangeState"
	case TypeSendChat:
		return "SendChat"
	case TypeGetHistory:
		return "GetHistory"
	case TypeError:
		return "Error"
	case TypeUsersList:
		return "UsersList"
	case TypeUserInfo:
		return "UserInfo"
	case TypeNewUser:
		return "NewUser"
	case TypeStateChange:
		return "StateChange"
	case TypeChatMessage:
		return "ChatMessage"
	case TypeHistoryResponse:
		return "HistoryResponse"
	case TypeLinkPreview:
		return "LinkPreview"
	default:
		return "Unknown"
	}
}

// State is a user's presence state. Only the broker may set Disconnected;
// clients may only request transitions among Active, Busy and Inactive.
type State byte

const (
	StateDisconnected State = 0
	StateActive       State = 1
	StateBusy         State = 2
	StateInactive     State = 3
)

// Valid reports whether s is one of the four defined presence states.
func (s State) Valid() bool {
	return s <= StateInactive
}

// ClientRequestable reports whether a client may request this state via
// ChangeState. Disconnected is broker-only.
func (s State) ClientRequestable() bool {
	return s == StateActive || s == StateBusy || s == StateInactive
}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateActive:
		return "Active"
	case StateBusy:
		return "Busy"
	case StateInactive:
		return "Inactive"
	default:
		return "Invalid"
	}
}

// ErrorCode is the single-byte taxonomy carried by an Error frame.
type ErrorCode byte

const (
	ErrCodeUnknownUser       ErrorCode = 1
	ErrCodeInvalidState      ErrorCode = 2
	ErrCodeEmptyMessage      ErrorCode = 3
	ErrCodeRecipientOffline  ErrorCode = 4
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknownUser:
		return "UnknownUser"
	case ErrCodeInvalidState:
		return "InvalidState"
	case ErrCodeEmptyMessage:
		return "EmptyMessage"
	case ErrCodeRecipientOffline:
		return "RecipientOffline"
	default:
		return "Unknown"
	}
}

// Decode/encode failure modes.
var (
	// ErrMalformed means a declared field length ran past the end of the frame.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrUnknownType means the leading byte did not match any known frame type.
	ErrUnknownType = errors.New("protocol: unknown frame type")
	// ErrFieldTooLong means a caller tried to encode a field longer than 255 bytes.
	ErrFieldTooLong = errors.New("protocol: field exceeds 255 bytes")
)

// MaxFieldLen is the largest payload a single length-prefixed field can carry.
const MaxFieldLen = 255

// UserStatus is one entry in a UsersList frame.
type UserStatus struct {
	Name  string
	State State
}

// Entry is one (sender, body) pair in a HistoryResponse frame.
type Entry struct {
	Sender string
	Body   string
}

// Frame is implemented by every decoded or encodable payload type in this
// package. Decode returns one of these, boxed; callers type-switch on it.
type Frame interface {
	Type() FrameType
	Encode() ([]byte, error)
}

// --- shared low-level helpers -----------------------------------------

func writeField(bb *bytebufferpool.ByteBuffer, s string) error {
	if len(s) > MaxFieldLen {
		return ErrFieldTooLong
	}
	bb.WriteByte(byte(len(s)))
	bb.WriteString(s)
	return nil
}

func readField(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", off, ErrMalformed
	}
	n := int(data[off])
	off++
	if off+n > len(data) {
		return "", off, ErrMalformed
	}
	return string(data[off : off+n]), off + n, nil
}

func readByte(data []byte, off int) (byte, int, error) {
	if off >= len(data) {
		return 0, off, ErrMalformed
	}
	return data[off], off + 1, nil
}

func finish(bb *bytebufferpool.ByteBuffer) []byte {
	out := make([]byte, len(bb.B))
	copy(out, bb.B)
	bytebufferpool.Put(bb)
	return out
}

// ValidBody reports whether a chat body fits on the wire: at most 255
// bytes. Emptiness is a semantic error the router turns into EmptyMessage,
// not a codec error, so this only guards the upper bound callers must
// respect before encoding.
func ValidBody(body string) bool {
	return len(body) <= MaxFieldLen
}

// ValidUTF8Name reports whether name is well-formed UTF-8. Length and the
// reserved "~" rule are registry-level concerns (see internal/core), not
// wire-codec ones.
func ValidUTF8Name(name string) bool {
	return utf8.ValidString(name)
}
