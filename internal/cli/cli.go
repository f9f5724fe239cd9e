// Package cli implements the broker binary's subcommands: version, and
// status (which talks to a running broker's diagnostics API). Unlike the
// teacher's cli.go, there is no persistent store to open directly — status
// must go over HTTP, the same way any other operator tooling would.
package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Version is set at build time via -ldflags, following the teacher's
// convention of a package-level Version var.
var Version = "dev"

// Run dispatches a CLI subcommand. Reports whether args named a
// recognized subcommand; if not, the caller should fall through to
// starting the broker normally.
func Run(args []string, apiAddr string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("chatbroker %s\n", Version)
		return true
	case "status":
		return runStatus(apiAddr)
	default:
		return false
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

type userEntry struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func runStatus(apiAddr string) bool {
	client := &http.Client{Timeout: 3 * time.Second}

	health, err := fetchJSON[healthResponse](client, "http://"+apiAddr+"/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error contacting broker at %s: %v\n", apiAddr, err)
		os.Exit(1)
	}

	users, err := fetchJSON[[]userEntry](client, "http://"+apiAddr+"/api/users")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error fetching users: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Broker: %s\n", apiAddr)
	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Active sessions: %s\n", humanize.Comma(int64(health.Clients)))
	fmt.Printf("Registered names: %s\n", humanize.Comma(int64(len(users))))
	for _, u := range users {
		fmt.Printf("  %-20s %s\n", u.Name, u.State)
	}
	return true
}

func fetchJSON[T any](client *http.Client, url string) (T, error) {
	var out T
	resp, err := client.Get(url)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode response from %s: %w", url, err)
	}
	return out, nil
}
