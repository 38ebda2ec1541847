// Package bootstrap builds the ledger, provider, archiver and dispatcher from
// configuration. cmd/api and cmd/ticker share it so both run the same tick.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"boothvideo/internal/adapter/repo"
	"boothvideo/internal/adapter/sheet"
	"boothvideo/internal/archive"
	"boothvideo/internal/dispatcher"
	"boothvideo/internal/domain"
	"boothvideo/internal/infra"
	"boothvideo/internal/infra/credentials"
	"boothvideo/internal/providers/seedance"
	"boothvideo/internal/storage"
)

// Deps holds everything a binary needs to serve or drive ticks.
type Deps struct {
	Config     *infra.Config
	Logger     *infra.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Sheet      *sheet.Client
	Ledger     domain.Ledger
	Provider   *seedance.Client
	Archiver   domain.Archiver
	Dispatcher *dispatcher.Dispatcher
	Ticker     dispatcher.Ticker
}

// Build wires dependencies. Missing provider or ledger endpoints do not fail
// here; the dispatcher reports them on every tick.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Deps, error) {
	logger = infra.LoggerOrDiscard(logger)
	d := &Deps{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		switch {
		case err == nil:
			d.Pool = pool
		case cfg.LedgerDriver == infra.LedgerDriverPostgres:
			return nil, err
		default:
			logger.Warn().Err(err).Msg("bootstrap: database unavailable, stored credentials disabled")
		}
	}
	var runner *infra.SQLRunner
	if d.Pool != nil {
		runner = infra.NewSQLRunner(d.Pool, *logger)
	}

	sheetClient, err := sheet.NewClient(sheet.Options{
		BaseURL:        cfg.AppsScriptURL,
		Logger:         logger,
		RequestTimeout: cfg.LedgerTimeout,
	})
	if err != nil {
		return nil, err
	}
	d.Sheet = sheetClient

	switch cfg.LedgerDriver {
	case infra.LedgerDriverPostgres:
		if runner == nil {
			return nil, fmt.Errorf("bootstrap: postgres ledger requires DATABASE_URL: %w", domain.ErrConfiguration)
		}
		ledger := repo.NewVideoJobRepository(runner)
		if err := ledger.Migrate(ctx); err != nil {
			return nil, err
		}
		d.Ledger = ledger
	default:
		d.Ledger = sheetClient
	}

	apiKey := cfg.ArkAPIKey
	if apiKey == "" && runner != nil {
		stored, err := credentials.ResolveArkAPIKey(ctx, "", credentials.NewStore(runner))
		if err != nil {
			logger.Warn().Err(err).Msg("bootstrap: failed to load ark api key from store")
		}
		apiKey = stored
	}
	provider, err := seedance.NewClient(seedance.Options{
		APIKey:         apiKey,
		BaseURL:        cfg.ArkBaseURL,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		return nil, err
	}
	d.Provider = provider
	if !provider.Configured() {
		logger.Warn().Msg("bootstrap: ARK_API_KEY or ARK_BASE_URL missing, ticks will fail until configured")
	}

	archiver, err := buildArchiver(ctx, cfg, sheetClient, logger)
	if err != nil {
		return nil, err
	}
	d.Archiver = archiver

	d.Dispatcher = dispatcher.New(dispatcher.Options{
		Ledger:             d.Ledger,
		Provider:           provider,
		Archiver:           archiver,
		MaxConcurrent:      cfg.MaxConcurrent,
		Workers:            cfg.DispatchWorkers,
		MaxArchiveAttempts: cfg.MaxArchiveAttempts,
		SourceURLFormat:    cfg.SourceURLFormat,
		DefaultModel:       cfg.DefaultModel,
		Logger:             logger,
	})

	var locker dispatcher.Locker
	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		d.Redis = rdb
		locker = dispatcher.NewRedisLock(rdb, dispatcher.DefaultLockKey, cfg.TickLockTTL, logger)
	}
	d.Ticker = dispatcher.NewGuard(d.Dispatcher, locker, logger)

	logger.Info().
		Str("ledger", cfg.LedgerDriver).
		Str("archive", cfg.ArchiveDriver).
		Bool("redis_lease", rdb != nil).
		Int("max_concurrent", cfg.MaxConcurrent).
		Msg("bootstrap: dispatcher ready")
	ok = true
	return d, nil
}

func buildArchiver(ctx context.Context, cfg *infra.Config, sheetClient *sheet.Client, logger *infra.Logger) (domain.Archiver, error) {
	httpClient := &http.Client{}
	switch cfg.ArchiveDriver {
	case infra.ArchiveDriverNone:
		return nil, nil
	case infra.ArchiveDriverS3:
		client, err := infra.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return archive.NewS3Archiver(client, cfg.S3Bucket, httpClient, 0, logger)
	case infra.ArchiveDriverLocal:
		path := cfg.StoragePath
		if path == "" {
			path = "./storage"
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		store, err := storage.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return archive.NewLocalArchiver(store, httpClient, 0, logger)
	case infra.ArchiveDriverSheet, "":
		if !sheetClient.Configured() {
			logger.Warn().Msg("bootstrap: sheet archiver selected without APPS_SCRIPT_BASE_URL, archival disabled")
			return nil, nil
		}
		return sheetClient, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown archive driver %q: %w", cfg.ArchiveDriver, domain.ErrConfiguration)
	}
}

// LedgerConfigured reports whether the selected ledger has its endpoint or
// database handle.
func (d *Deps) LedgerConfigured() bool {
	if d.Ledger == nil {
		return false
	}
	if c, ok := d.Ledger.(domain.Configurable); ok {
		return c.Configured()
	}
	return true
}

// Close releases pooled connections.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
