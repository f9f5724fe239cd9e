// Command broker runs the chat broker: the WebSocket listener, the
// optional REST diagnostics API, periodic metrics logging, and an
// optional soak-test bot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/fabiola-cc/chatbroker/internal/cli"
	"github.com/fabiola-cc/chatbroker/internal/core"
	"github.com/fabiola-cc/chatbroker/internal/httpapi"
	"github.com/fabiola-cc/chatbroker/internal/linkpreview"
	"github.com/fabiola-cc/chatbroker/internal/metrics"
	"github.com/fabiola-cc/chatbroker/internal/protocol"
	"github.com/fabiola-cc/chatbroker/internal/router"
	"github.com/fabiola-cc/chatbroker/internal/soakbot"
	"github.com/fabiola-cc/chatbroker/internal/ws"

	"github.com/labstack/echo/v4"
)

// Version is overridden at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		cli.Version = Version
		if cli.Run(os.Args[1:], "localhost:8090") {
			return
		}
	}

	addr := flag.String("addr", ":8080", "WebSocket listen address")
	apiAddr := flag.String("api-addr", ":8090", "REST diagnostics listen address (empty to disable)")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "interval between metrics log lines")
	soakName := flag.String("soak-bot", "", "name for a virtual soak-test client (empty to disable)")
	flag.Parse()

	registry := core.NewRegistry()
	history := core.NewHistory()
	counters := metrics.NewCounters()

	rt := router.New(registry, history)
	rt.Metrics = counters

	enricher := &linkpreview.Enricher{
		Publish: func(chatID, title, url string, targets []*core.Session) {
			frame := protocol.LinkPreviewFrame{ChatID: chatID, Title: title, URL: url}
			raw, err := frame.Encode()
			if err != nil {
				slog.Error("main: encode link preview failed", "err", err)
				return
			}
			for _, target := range targets {
				core.Deliver(target, raw)
			}
		},
	}
	rt.LinkPreview = enricher.Check

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go metrics.Run(ctx, registry, counters, *metricsInterval)

	if *soakName != "" {
		go func() {
			url := "ws://localhost" + *addr + "/?name=" + *soakName
			if err := soakbot.Run(ctx, soakbot.Config{Name: *soakName, URL: url}); err != nil {
				slog.Warn("soak bot exited", "err", err)
			}
		}()
	}

	if *apiAddr != "" {
		api := httpapi.New(registry, history)
		go func() {
			if err := api.Run(ctx, *apiAddr); err != nil {
				slog.Error("diagnostics server failed", "err", err)
			}
		}()
		slog.Info("diagnostics api listening", "addr", *apiAddr)
	}

	e := echo.New()
	e.HideBanner = true
	ws.NewHandler(registry, rt).Register(e)

	slog.Info("broker listening", "addr", *addr)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(*addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("listener failed", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = e.Shutdown(shutCtx)
		slog.Info("broker stopped")
	}
}
