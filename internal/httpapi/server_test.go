package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabiola-cc/chatbroker/internal/core"
)

func TestHealth(t *testing.T) {
	registry := core.NewRegistry()
	registry.Claim("alice", "a")
	srv := httptest.NewServer(New(registry, core.NewHistory()).Echo())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d", resp.StatusCode)
	}
	var got healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Clients != 1 {
		t.Fatalf("got %d clients, want 1", got.Clients)
	}
}

func TestUsers(t *testing.T) {
	registry := core.NewRegistry()
	registry.Claim("bob", "b")
	registry.Claim("alice", "a")
	srv := httptest.NewServer(New(registry, core.NewHistory()).Echo())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/users")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []userResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "alice" || got[1].Name != "bob" {
		t.Fatalf("got %+v", got)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	history := core.NewHistory()
	history.Append(core.BroadcastName, "alice", "hi")
	srv := httptest.NewServer(New(core.NewRegistry(), history).Echo())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history/~")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []historyEntryResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Sender != "alice" || got[0].Body != "hi" {
		t.Fatalf("got %+v", got)
	}
}
