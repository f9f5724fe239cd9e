package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []Frame{
		ListUsersRequest{},
		GetUserInfoRequest{Name: "alice"},
		ChangeStateRequest{Name: "alice", State: StateBusy},
		SendChatRequest{Recipient: "~", Body: "hello room"},
		SendChatRequest{Recipient: "bob", Body: "hi"},
		GetHistoryRequest{ChatName: "~"},
		ErrorFrame{Code: ErrCodeUnknownUser},
		UsersListFrame{Users: []UserStatus{
			{Name: "alice", State: StateActive},
			{Name: "bob", State: StateBusy},
		}},
		UsersListFrame{Users: nil},
		UserInfoFrame{Found: true, Name: "alice", State: StateInactive},
		UserInfoFrame{Found: false},
		NewUserFrame{Name: "carol", State: StateActive},
		StateChangeFrame{Name: "carol", State: StateBusy},
		ChatMessageFrame{Sender: "alice", Body: "sender: hello room"},
		HistoryResponseFrame{Entries: []Entry{
			{Sender: "alice", Body: "hi"},
			{Sender: "bob", Body: "yo"},
		}},
		HistoryResponseFrame{Entries: nil},
		LinkPreviewFrame{ChatID: "~", Title: "Example", URL: "https://example.com"},
	}

	for _, original := range cases {
		raw, err := original.Encode()
		if err != nil {
			t.Fatalf("Encode(%#v): %v", original, err)
		}
		if FrameType(raw[0]) != original.Type() {
			t.Fatalf("encoded type byte %d, want %d", raw[0], original.Type())
		}
		decoded, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(Encode(%#v)): %v", original, err)
		}
		if !reflect.DeepEqual(decoded, original) {
			t.Fatalf("round-trip mismatch: got %#v, want %#v", decoded, original)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte{200})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("got %v, want ErrUnknownType", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestDecodeTruncatedField(t *testing.T) {
	// GetUserInfoRequest claims a 10-byte name but supplies none.
	raw := []byte{byte(TypeGetUserInfo), 10}
	_, err := Decode(raw)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestDecodeTruncatedTrailingScalar(t *testing.T) {
	// ChangeStateRequest has a name but no trailing state byte.
	raw, err := GetUserInfoRequest{Name: "x"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	raw[0] = byte(TypeChangeState) // reuse the same len/name prefix, no state byte follows
	_, err = Decode(raw)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestDecodeMissingCount(t *testing.T) {
	_, err := Decode([]byte{byte(TypeUsersList)})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestEncodeFieldTooLong(t *testing.T) {
	tooLong := strings.Repeat("x", 256)
	_, err := GetUserInfoRequest{Name: tooLong}.Encode()
	if !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("got %v, want ErrFieldTooLong", err)
	}
}

func TestEncodeTooManyUsers(t *testing.T) {
	users := make([]UserStatus, 256)
	for i := range users {
		users[i] = UserStatus{Name: "u", State: StateActive}
	}
	_, err := UsersListFrame{Users: users}.Encode()
	if !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("got %v, want ErrFieldTooLong", err)
	}
}

func TestMaxLengthField(t *testing.T) {
	name := strings.Repeat("a", 255)
	raw, err := GetUserInfoRequest{Name: name}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := decoded.(GetUserInfoRequest)
	if !ok || got.Name != name {
		t.Fatalf("got %#v", decoded)
	}
}

func TestStateValid(t *testing.T) {
	for s := State(0); s <= 3; s++ {
		if !s.Valid() {
			t.Fatalf("State(%d) should be valid", s)
		}
	}
	if State(4).Valid() {
		t.Fatal("State(4) should not be valid")
	}
}

func TestStateClientRequestable(t *testing.T) {
	if StateDisconnected.ClientRequestable() {
		t.Fatal("Disconnected must not be client-requestable")
	}
	for _, s := range []State{StateActive, StateBusy, StateInactive} {
		if !s.ClientRequestable() {
			t.Fatalf("State %v should be client-requestable", s)
		}
	}
}
