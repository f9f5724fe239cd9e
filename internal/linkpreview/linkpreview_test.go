package linkpreview

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabiola-cc/chatbroker/internal/core"
)

func TestExtractFirstURL(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"check this out https://example.com/page neat", "https://example.com/page"},
		{"no links here", ""},
		{"http://a.com and https://b.com", "http://a.com"},
	}
	for _, c := range cases {
		if got := ExtractFirstURL(c.text); got != c.want {
			t.Fatalf("ExtractFirstURL(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestFetchParsesOpenGraphTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head>
			<meta property="og:title" content="Example Page">
			<meta property="og:description" content="An example">
			<title>Fallback Title</title>
		</head><body>hi</body></html>`))
	}))
	defer srv.Close()

	preview, err := Fetch(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if preview.Title != "Example Page" {
		t.Fatalf("got title %q, want %q", preview.Title, "Example Page")
	}
	if preview.Desc != "An example" {
		t.Fatalf("got desc %q", preview.Desc)
	}
}

func TestFetchFallsBackToTitleTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Plain Title</title></head><body></body></html>`))
	}))
	defer srv.Close()

	preview, err := Fetch(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if preview.Title != "Plain Title" {
		t.Fatalf("got title %q, want %q", preview.Title, "Plain Title")
	}
}

func TestFetchNonHTMLSkipsParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	preview, err := Fetch(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if preview.Title != "" {
		t.Fatalf("got title %q, want empty for a non-HTML response", preview.Title)
	}
}

func TestEnricherPublishesOnTitleFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Hi</title></head></html>`))
	}))
	defer srv.Close()

	var gotChatID, gotTitle, gotURL string
	var gotTargets []*core.Session
	e := &Enricher{Publish: func(chatID, title, url string, targets []*core.Session) {
		gotChatID, gotTitle, gotURL, gotTargets = chatID, title, url, targets
	}}
	want := []*core.Session{{Name: "alice"}, {Name: "bob"}}
	e.Check("alice-bob", "look at "+srv.URL, want)

	if gotChatID != "alice-bob" || gotTitle != "Hi" || gotURL != srv.URL {
		t.Fatalf("got (%q, %q, %q)", gotChatID, gotTitle, gotURL)
	}
	if len(gotTargets) != 2 {
		t.Fatalf("got targets %+v, want the 2 passed through unchanged", gotTargets)
	}
}

func TestEnricherNoURLDoesNotPublish(t *testing.T) {
	called := false
	e := &Enricher{Publish: func(chatID, title, url string, targets []*core.Session) { called = true }}
	e.Check("alice-bob", "no links in this message", nil)
	if called {
		t.Fatal("Publish should not be called when there is no URL")
	}
}
