package core

import "testing"

func TestChatIDForBroadcast(t *testing.T) {
	if got := ChatIDFor(BroadcastName, "alice"); got != BroadcastName {
		t.Fatalf("got %q, want %q", got, BroadcastName)
	}
}

func TestChatIDForDirectOrderIndependent(t *testing.T) {
	a := ChatIDFor("alice", "bob")
	b := ChatIDFor("bob", "alice")
	if a != b {
		t.Fatalf("ChatIDFor not symmetric: %q vs %q", a, b)
	}
	if a != "alice-bob" {
		t.Fatalf("got %q, want alice-bob", a)
	}
}

func TestAppendAndRead(t *testing.T) {
	h := NewHistory()
	chatID := ChatIDFor("alice", "bob")
	h.Append(chatID, "alice", "hi")
	h.Append(chatID, "bob", "hey")

	entries := h.Read(chatID)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Sender != "alice" || entries[0].Body != "hi" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Sender != "bob" || entries[1].Body != "hey" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestReadUnknownChatReturnsEmpty(t *testing.T) {
	h := NewHistory()
	if entries := h.Read("nobody-knows"); len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestReadCapsAtMaxHistoryReturned(t *testing.T) {
	h := NewHistory()
	chatID := BroadcastName
	for i := 0; i < MaxHistoryReturned+10; i++ {
		h.Append(chatID, "alice", "msg")
	}
	entries := h.Read(chatID)
	if len(entries) != MaxHistoryReturned {
		t.Fatalf("got %d entries, want %d", len(entries), MaxHistoryReturned)
	}
}

func TestReadCapReturnsFirstEntries(t *testing.T) {
	h := NewHistory()
	chatID := BroadcastName
	for i := 0; i < MaxHistoryReturned+1; i++ {
		h.Append(chatID, "alice", string(rune('a'+i%26)))
	}
	entries := h.Read(chatID)
	first := h.byID[chatID][0]
	if entries[0] != first {
		t.Fatalf("cap should keep the first entries, got %+v want %+v", entries[0], first)
	}
}

func TestHistoryIsolatedPerChat(t *testing.T) {
	h := NewHistory()
	h.Append(BroadcastName, "alice", "room message")
	h.Append(ChatIDFor("alice", "bob"), "alice", "direct message")

	if entries := h.Read(BroadcastName); len(entries) != 1 {
		t.Fatalf("broadcast history got %d entries, want 1", len(entries))
	}
	if entries := h.Read(ChatIDFor("alice", "bob")); len(entries) != 1 {
		t.Fatalf("direct history got %d entries, want 1", len(entries))
	}
}
