// Package app assembles the services from configuration. Both the HTTP
// server and stonksctl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/config"
	"github.com/kjannette/stonks-backend/internal/db"
	"github.com/kjannette/stonks-backend/internal/events"
	"github.com/kjannette/stonks-backend/internal/ledger"
	"github.com/kjannette/stonks-backend/internal/notifications"
	"github.com/kjannette/stonks-backend/internal/portfolio"
	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/ratelimit"
	"github.com/kjannette/stonks-backend/internal/repository"
	"github.com/kjannette/stonks-backend/internal/sector"
	"github.com/kjannette/stonks-backend/internal/stream"
	"github.com/kjannette/stonks-backend/internal/watchlist"
)

type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Pool      *pgxpool.Pool // nil for the memory store
	Store     repository.Store
	Adapter   *quote.Adapter
	Quotes    *quote.Cache
	Ledger    *ledger.Engine
	Portfolio *portfolio.Aggregator
	Watchlist *watchlist.Service
	Stream    *stream.Poller
	Limiter   ratelimit.Limiter
	Publisher events.Publisher

	closers []func() error
}

// Build connects storage and wires every service. Optional integrations
// (Kafka, Redis, webhook) are skipped when unconfigured.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Adapter = quote.NewAdapter(log, cfg.QuoteTimeout, providers...)
	a.Quotes = quote.NewCache(a.Adapter, nil, cfg.QuoteCacheTTL, log)

	sectors := sector.Default()
	if cfg.SectorsFile != "" {
		if sectors, err = sector.Load(cfg.SectorsFile); err != nil {
			a.Close()
			return nil, fmt.Errorf("sectors: %w", err)
		}
	}

	a.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		a.Publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("trade events enabled")
	}
	a.closers = append(a.closers, a.Publisher.Close)

	a.Ledger = ledger.NewEngine(a.Store, a.Quotes, log).WithPublisher(a.Publisher)
	if cfg.WebhookURL != "" {
		a.Ledger.WithNotifier(notifications.NewSender(cfg.WebhookURL, cfg.AppName, log))
	}

	a.Portfolio = portfolio.NewAggregator(a.Store, a.Quotes, sectors, log)
	a.Watchlist = watchlist.NewService(a.Store, a.Store, a.Quotes)
	a.Stream = stream.NewPoller(a.Watchlist, cfg.StreamInterval, log)

	a.Limiter = ratelimit.Nop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, rate limiter will fail open")
		}
		rl := ratelimit.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, log)
		a.Limiter = rl
		a.closers = append(a.closers, rl.Close)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Store == config.StoreMemory {
		a.Store = repository.NewMemoryStore()
		return nil
	}

	a.Log.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("db", cfg.DBName).Msg("connecting to database")
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return fmt.Errorf("migrate: %w", err)
		}
	}
	a.Pool = pool
	a.Store = repository.NewPostgresStore(pool)
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return nil
}

func buildProviders(cfg *config.Config) ([]quote.Provider, error) {
	var ps []quote.Provider
	if cfg.FMPAPIKey != "" {
		ps = append(ps, quote.NewFMPProvider(cfg.FMPBaseURL, cfg.FMPAPIKey, cfg.QuoteTimeout))
	}
	if cfg.SecondaryQuoteURL != "" {
		p, err := quote.NewJSONPathProvider(quote.JSONPathOptions{
			Name:          cfg.SecondaryQuoteName,
			URLTemplate:   cfg.SecondaryQuoteURL,
			PricePath:     cfg.SecondaryPricePath,
			ChangePath:    cfg.SecondaryChangePath,
			PrevClosePath: cfg.SecondaryPrevClosePath,
			Timeout:       cfg.QuoteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("secondary quote provider: %w", err)
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// Close waits for pending trade side effects and releases connections in
// reverse order of acquisition.
func (a *App) Close() error {
	if a.Ledger != nil {
		done := make(chan struct{})
		go func() { a.Ledger.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			a.Log.Warn().Msg("timed out waiting for trade side effects")
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
