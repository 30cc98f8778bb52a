package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/stonks-backend/internal/api"
	"github.com/kjannette/stonks-backend/internal/app"
	"github.com/kjannette/stonks-backend/internal/config"
	"github.com/kjannette/stonks-backend/internal/logging"
)

const banner = `
╔══════════════════════════════════════╗
║      STONKS Paper Trading v1.0       ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print(os.Stdout)

	log := logging.New(cfg.LogLevel)
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close")
		}
		log.Info().Msg("shutdown complete")
	}()

	// Expired quotes are dropped in the background
	go a.Quotes.RunSweeper(ctx, cfg.QuoteCacheSweep)

	srv := api.NewServer(api.Deps{
		Store:       a.Store,
		Quotes:      a.Quotes,
		Ledger:      a.Ledger,
		Portfolio:   a.Portfolio,
		Watchlist:   a.Watchlist,
		Stream:      a.Stream,
		Limiter:     a.Limiter,
		Providers:   a.Adapter.Providers(),
		InitialCash: cfg.InitialCashCents,
		Log:         log,
	}, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().Strs("providers", a.Adapter.Providers()).Msg("all services started")

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down gracefully")
	case err := <-errCh:
		log.Error().Err(err).Msg("api server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api shutdown")
	}
	log.Info().Msg("api server closed")
}
