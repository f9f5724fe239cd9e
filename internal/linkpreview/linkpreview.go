// Package linkpreview fetches OpenGraph metadata for URLs mentioned in
// chat bodies and hands the result to a broadcaster so the router's
// supplemental LinkPreview frame (type 57) can reach the conversation,
// without ever delaying the original ChatMessage delivery.
package linkpreview

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/core"

	"golang.org/x/net/html"
)

// FetchTimeout bounds how long a single fetch may take. Kept short since
// this always runs off the chat-delivery hot path, but an operator
// watching goroutine counts still wants a ceiling.
const FetchTimeout = 4 * time.Second

// MaxBody is the largest number of response bytes read while looking for
// OpenGraph metadata — only the <head> section is ever needed.
const MaxBody = 256 * 1024

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// ExtractFirstURL returns the first http(s) URL found in text, or "" if none.
func ExtractFirstURL(text string) string {
	return urlPattern.FindString(text)
}

// Preview holds the OpenGraph metadata this package cares about: enough to
// populate a LinkPreview frame's title field. Other OG properties are
// parsed for completeness but have no wire representation today.
type Preview struct {
	URL      string
	Title    string
	Desc     string
	SiteName string
}

// Fetch retrieves rawURL and extracts its OpenGraph metadata. The caller
// is expected to invoke this from a goroutine — it performs network I/O
// and must never block chat delivery.
func Fetch(rawURL string) (Preview, error) {
	client := &http.Client{
		Timeout: FetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", "chatbroker-linkpreview/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return Preview{URL: rawURL}, nil
	}

	return parseOGTags(rawURL, io.LimitReader(resp.Body, MaxBody))
}

func parseOGTags(rawURL string, r io.Reader) (Preview, error) {
	p := Preview{URL: rawURL}
	tokenizer := html.NewTokenizer(r)
	var inTitle bool
	var titleText string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if p.Title == "" {
				p.Title = titleText
			}
			return p, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tag := string(tn)

			if tag == "title" {
				inTitle = true
				continue
			}
			if tag == "body" {
				if p.Title == "" {
					p.Title = titleText
				}
				return p, nil
			}
			if tag == "meta" && hasAttr {
				parseMeta(tokenizer, &p)
			}

		case html.TextToken:
			if inTitle {
				titleText += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = false
			}
		}
	}
}

func parseMeta(tokenizer *html.Tokenizer, p *Preview) {
	var property, name, content string
	for {
		key, val, more := tokenizer.TagAttr()
		switch string(key) {
		case "property":
			property = string(val)
		case "name":
			name = string(val)
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if content == "" {
		return
	}
	switch property {
	case "og:title":
		p.Title = content
	case "og:description":
		p.Desc = content
	case "og:site_name":
		p.SiteName = content
	}
	if name == "description" && p.Desc == "" {
		p.Desc = content
	}
}

// Enricher is the router.LinkPreviewHook implementation: it extracts the
// first URL in a chat body, fetches its metadata in the background, and
// invokes Publish with the result and the exact sessions that received the
// triggering chat message, if a title was found. Failures are logged at
// Debug and otherwise dropped — a broken or slow link must never surface
// as a user-visible error.
type Enricher struct {
	Publish func(chatID, title, url string, targets []*core.Session)
}

// Check implements router.LinkPreviewHook. The router already calls this
// from its own goroutine, so no further dispatch is needed here.
func (e *Enricher) Check(chatID, body string, targets []*core.Session) {
	url := ExtractFirstURL(body)
	if url == "" {
		return
	}
	preview, err := Fetch(url)
	if err != nil {
		slog.Debug("linkpreview fetch failed", "url", url, "err", err)
		return
	}
	if preview.Title == "" {
		return
	}
	e.Publish(chatID, preview.Title, url, targets)
}
