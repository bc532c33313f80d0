package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
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
	addr := flag.String("addr", "", "listen address (overrides web.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onboard-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	log := logging.New(cfg.Log)

	engine, err := onboard.NewEngineFromConfig(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "onboard-web: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Web.Addr,
		Handler:      newRouter(engine, []byte(cfg.Web.JWTSecret), logging.Component(log, "web")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Web.Addr).Bool("auth", cfg.Web.JWTSecret != "").Msg("onboard-web listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("onboard-web: server failed")
		}
	}()

	<-done
	log.Info().Msg("onboard-web: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("onboard-web: shutdown error")
		return
	}
	log.Info().Msg("onboard-web: stopped")
}
