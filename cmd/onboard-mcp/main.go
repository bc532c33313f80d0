// onboard-mcp is a standalone MCP server for the onboard recommender. It
// opens onboard's databases directly and serves recommendation, feedback,
// and maintenance tools over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/onboard"
	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path, YAML or TOML (default: $ONBOARD_CONFIG)")
	poll := flag.Duration("poll", 0, "run ingest-feeds and embed-refresh on this interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onboard-mcp: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	cfg.Log.Output = os.Stderr
	log := logging.New(cfg.Log)

	engine, err := onboard.NewEngineFromConfig(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create onboard engine")
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := newServer(engine, logging.Component(log, "mcp"))
	if *poll > 0 {
		srv.poller = newPoller(engine, max(*poll, time.Minute), logging.Component(log, "poller"))
		srv.poller.start(ctx)
		defer srv.poller.stop()
	}

	if err := srv.run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
