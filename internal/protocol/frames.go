package protocol

import "github.com/valyala/bytebufferpool"

// ListUsersRequest is frame type 1: no fields, no trailing scalar.
type ListUsersRequest struct{}

func (ListUsersRequest) Type() FrameType { return TypeListUsers }

func (ListUsersRequest) Encode() ([]byte, error) {
	return []byte{byte(TypeListUsers)}, nil
}

// GetUserInfoRequest is frame type 2: len/name.
type GetUserInfoRequest struct {
	Name string
}

func (GetUserInfoRequest) Type() FrameType { return TypeGetUserInfo }

func (f GetUserInfoRequest) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeGetUserInfo))
	if err := writeField(bb, f.Name); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	return finish(bb), nil
}

// ChangeStateRequest is frame type 3: len/name, state(1 byte).
//
// Name is carried on the wire for symmetry with the other request frames,
// but a session may only ever change its own presence: the router applies
// the new state to whoever sent the frame, never to the named user.
type ChangeStateRequest struct {
	Name  string
	State State
}

func (ChangeStateRequest) Type() FrameType { return TypeChangeState }

func (f ChangeStateRequest) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeChangeState))
	if err := writeField(bb, f.Name); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	bb.WriteByte(byte(f.State))
	return finish(bb), nil
}

// SendChatRequest is frame type 4: len/recipient, len/body. Recipient "~"
// means broadcast.
type SendChatRequest struct {
	Recipient string
	Body      string
}

func (SendChatRequest) Type() FrameType { return TypeSendChat }

func (f SendChatRequest) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeSendChat))
	if err := writeField(bb, f.Recipient); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	if err := writeField(bb, f.Body); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	return finish(bb), nil
}

// GetHistoryRequest is frame type 5: len/chatName, where chatName is either
// "~" for the broadcast channel or a peer's username for a direct thread.
type GetHistoryRequest struct {
	ChatName string
}

func (GetHistoryRequest) Type() FrameType { return TypeGetHistory }

func (f GetHistoryRequest) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeGetHistory))
	if err := writeField(bb, f.ChatName); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	return finish(bb), nil
}

// ErrorFrame is frame type 50: a single trailing error code, no fields.
type ErrorFrame struct {
	Code ErrorCode
}

func (ErrorFrame) Type() FrameType { return TypeError }

func (f ErrorFrame) Encode() ([]byte, error) {
	return []byte{byte(TypeError), byte(f.Code)}, nil
}

// UsersListFrame is frame type 51: count(1 byte), then that many
// {len/name, state(1 byte)} entries.
type UsersListFrame struct {
	Users []UserStatus
}

func (UsersListFrame) Type() FrameType { return TypeUsersList }

func (f UsersListFrame) Encode() ([]byte, error) {
	if len(f.Users) > 255 {
		return nil, ErrFieldTooLong
	}
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeUsersList))
	bb.WriteByte(byte(len(f.Users)))
	for _, u := range f.Users {
		if err := writeField(bb, u.Name); err != nil {
			bytebufferpool.Put(bb)
			return nil, err
		}
		bb.WriteByte(byte(u.State))
	}
	return finish(bb), nil
}

// UserInfoFrame is frame type 52: success(1 byte); on success, len/name and
// state(1 byte) follow. On failure (user unknown) neither field is present.
type UserInfoFrame struct {
	Found bool
	Name  string
	State State
}

func (UserInfoFrame) Type() FrameType { return TypeUserInfo }

func (f UserInfoFrame) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeUserInfo))
	if !f.Found {
		bb.WriteByte(0)
		return finish(bb), nil
	}
	bb.WriteByte(1)
	if err := writeField(bb, f.Name); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	bb.WriteByte(byte(f.State))
	return finish(bb), nil
}

// NewUserFrame is frame type 53: len/name, state(1 byte) — always Active,
// announcing a freshly claimed session to every connected session,
// including the new one. A reconnect is announced with a StateChangeFrame
// instead.
type NewUserFrame struct {
	Name  string
	State State
}

func (NewUserFrame) Type() FrameType { return TypeNewUser }

func (f NewUserFrame) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeNewUser))
	if err := writeField(bb, f.Name); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	bb.WriteByte(byte(f.State))
	return finish(bb), nil
}

// StateChangeFrame is frame type 54: len/name, state(1 byte).
type StateChangeFrame struct {
	Name  string
	State State
}

func (StateChangeFrame) Type() FrameType { return TypeStateChange }

func (f StateChangeFrame) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeStateChange))
	if err := writeField(bb, f.Name); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	bb.WriteByte(byte(f.State))
	return finish(bb), nil
}

// ChatMessageFrame is frame type 55: len/sender, len/body. For a direct
// chat Sender is the originator's username; for a broadcast chat Sender is
// "~" and Body carries the originator as a "name: " prefix.
type ChatMessageFrame struct {
	Sender string
	Body   string
}

func (ChatMessageFrame) Type() FrameType { return TypeChatMessage }

func (f ChatMessageFrame) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeChatMessage))
	if err := writeField(bb, f.Sender); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	if err := writeField(bb, f.Body); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	return finish(bb), nil
}

// HistoryResponseFrame is frame type 56: count(1 byte), then that many
// {len/sender, len/body} entries, oldest first.
type HistoryResponseFrame struct {
	Entries []Entry
}

func (HistoryResponseFrame) Type() FrameType { return TypeHistoryResponse }

func (f HistoryResponseFrame) Encode() ([]byte, error) {
	if len(f.Entries) > 255 {
		return nil, ErrFieldTooLong
	}
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeHistoryResponse))
	bb.WriteByte(byte(len(f.Entries)))
	for _, e := range f.Entries {
		if err := writeField(bb, e.Sender); err != nil {
			bytebufferpool.Put(bb)
			return nil, err
		}
		if err := writeField(bb, e.Body); err != nil {
			bytebufferpool.Put(bb)
			return nil, err
		}
	}
	return finish(bb), nil
}

// LinkPreviewFrame is frame type 57 (broker extension): len/chatId,
// len/title, len/url.
type LinkPreviewFrame struct {
	ChatID string
	Title  string
	URL    string
}

func (LinkPreviewFrame) Type() FrameType { return TypeLinkPreview }

func (f LinkPreviewFrame) Encode() ([]byte, error) {
	bb := bytebufferpool.Get()
	bb.WriteByte(byte(TypeLinkPreview))
	for _, s := range []string{f.ChatID, f.Title, f.URL} {
		if err := writeField(bb, s); err != nil {
			bytebufferpool.Put(bb)
			return nil, err
		}
	}
	return finish(bb), nil
}

// Decode parses a raw frame and returns the concrete frame type it names,
// boxed as Frame. Callers type-switch on the result. An empty raw slice or
// an unrecognized leading byte both fail — the former with ErrMalformed,
// the latter with ErrUnknownType.
func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return nil, ErrMalformed
	}
	typ := FrameType(raw[0])
	body := raw[1:]

	switch typ {
	case TypeListUsers:
		return ListUsersRequest{}, nil

	case TypeGetUserInfo:
		name, _, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		return GetUserInfoRequest{Name: name}, nil

	case TypeChangeState:
		name, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		state, _, err := readByte(body, off)
		if err != nil {
			return nil, err
		}
		return ChangeStateRequest{Name: name, State: State(state)}, nil

	case TypeSendChat:
		recipient, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		msgBody, _, err := readField(body, off)
		if err != nil {
			return nil, err
		}
		return SendChatRequest{Recipient: recipient, Body: msgBody}, nil

	case TypeGetHistory:
		chatName, _, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		return GetHistoryRequest{ChatName: chatName}, nil

	case TypeError:
		code, _, err := readByte(body, 0)
		if err != nil {
			return nil, err
		}
		return ErrorFrame{Code: ErrorCode(code)}, nil

	case TypeUsersList:
		count, off, err := readByte(body, 0)
		if err != nil {
			return nil, err
		}
		var users []UserStatus
		if count > 0 {
			users = make([]UserStatus, 0, count)
		}
		for i := 0; i < int(count); i++ {
			var name string
			name, off, err = readField(body, off)
			if err != nil {
				return nil, err
			}
			var state byte
			state, off, err = readByte(body, off)
			if err != nil {
				return nil, err
			}
			users = append(users, UserStatus{Name: name, State: State(state)})
		}
		return UsersListFrame{Users: users}, nil

	case TypeUserInfo:
		found, off, err := readByte(body, 0)
		if err != nil {
			return nil, err
		}
		if found == 0 {
			return UserInfoFrame{Found: false}, nil
		}
		name, off2, err := readField(body, off)
		if err != nil {
			return nil, err
		}
		state, _, err := readByte(body, off2)
		if err != nil {
			return nil, err
		}
		return UserInfoFrame{Found: true, Name: name, State: State(state)}, nil

	case TypeNewUser:
		name, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		state, _, err := readByte(body, off)
		if err != nil {
			return nil, err
		}
		return NewUserFrame{Name: name, State: State(state)}, nil

	case TypeStateChange:
		name, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		state, _, err := readByte(body, off)
		if err != nil {
			return nil, err
		}
		return StateChangeFrame{Name: name, State: State(state)}, nil

	case TypeChatMessage:
		sender, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		msgBody, _, err := readField(body, off)
		if err != nil {
			return nil, err
		}
		return ChatMessageFrame{Sender: sender, Body: msgBody}, nil

	case TypeHistoryResponse:
		count, off, err := readByte(body, 0)
		if err != nil {
			return nil, err
		}
		var entries []Entry
		if count > 0 {
			entries = make([]Entry, 0, count)
		}
		for i := 0; i < int(count); i++ {
			var sender, msgBody string
			sender, off, err = readField(body, off)
			if err != nil {
				return nil, err
			}
			msgBody, off, err = readField(body, off)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Sender: sender, Body: msgBody})
		}
		return HistoryResponseFrame{Entries: entries}, nil

	case TypeLinkPreview:
		chatID, off, err := readField(body, 0)
		if err != nil {
			return nil, err
		}
		title, off2, err := readField(body, off)
		if err != nil {
			return nil, err
		}
		url, _, err := readField(body, off2)
		if err != nil {
			return nil, err
		}
		return LinkPreviewFrame{ChatID: chatID, Title: title, URL: url}, nil

	default:
		return nil, ErrUnknownType
	}
}
