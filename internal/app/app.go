// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/api"
	"github.com/ati-tools/manualfinder/internal/cache"
	"github.com/ati-tools/manualfinder/internal/clock/system"
	"github.com/ati-tools/manualfinder/internal/config"
	"github.com/ati-tools/manualfinder/internal/contract"
	"github.com/ati-tools/manualfinder/internal/extract"
	"github.com/ati-tools/manualfinder/internal/id/uuid"
	"github.com/ati-tools/manualfinder/internal/jobs"
	"github.com/ati-tools/manualfinder/internal/logging"
	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
	noopPublisher "github.com/ati-tools/manualfinder/internal/publisher/noop"
	pubsubPublisher "github.com/ati-tools/manualfinder/internal/publisher/pubsub"
	"github.com/ati-tools/manualfinder/internal/resolver"
	memstore "github.com/ati-tools/manualfinder/internal/store/memory"
	"github.com/ati-tools/manualfinder/internal/store/postgres"
	gcsblob "github.com/ati-tools/manualfinder/internal/storage/gcs"
	localblob "github.com/ati-tools/manualfinder/internal/storage/local"
	memblob "github.com/ati-tools/manualfinder/internal/storage/memory"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	server *api.Server
	pool   *jobs.Pool
	queue  *jobs.Queue

	pgPool      *pgxpool.Pool
	gcsClient   *gstorage.Client
	psPublisher *pubsubPublisher.Publisher
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler serving the API surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// RunWorkers starts the background worker pool and blocks until the context
// ends and the workers drain.
func (a *App) RunWorkers(ctx context.Context) {
	a.pool.Run(ctx)
}

// Port returns the configured HTTP listen port.
func (a *App) Port() int {
	return a.cfg.Server.Port
}

// New creates and initializes the App container from configuration. It is
// the central point for service initialization and fails fast when any
// critical service cannot be built.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	cacheStore, itemStore, projectStore, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := resolver.NewFetcher(resolver.FetchConfig{
		UserAgent:       cfg.Search.UserAgent,
		CourtesyDelay:   cfg.Search.CourtesyDelay(),
		PageTimeout:     time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		DownloadTimeout: time.Duration(cfg.Search.DownloadTimeout) * time.Second,
	}, logger)
	scanner := resolver.NewPageScanner(cfg.Search.UserAgent,
		time.Duration(cfg.Search.TimeoutSeconds)*time.Second, cfg.Search.CourtesyDelay(), logger)
	engine := resolver.NewDuckDuckGoEngine(cfg.Search.EndpointURL, cfg.Search.UserAgent,
		time.Duration(cfg.Search.TimeoutSeconds)*time.Second, cfg.Search.CourtesyDelay(), logger)

	// AI search runs before keyword search when configured; an empty API key
	// disables the tier.
	var resolvers []manual.Resolver
	if cfg.AISearch.APIKey != "" {
		searcher, err := resolver.NewGeminiSearcher(ctx, cfg.AISearch.APIKey, cfg.AISearch.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("build ai searcher: %w", err)
		}
		resolvers = append(resolvers, resolver.NewAIResolver(searcher, fetcher, scanner, cfg.AISearch.ScanTopPages, logger))
	} else {
		logger.Info("ai search disabled, no API key configured")
	}
	resolvers = append(resolvers, resolver.NewWebSearchResolver(engine, fetcher, scanner,
		cfg.Search.MaxResults, cfg.Search.ScanPagesPerPass, logger))

	var warranty *resolver.WarrantyFinder
	if cfg.Extract.APIKey != "" {
		extractor, err := extract.NewGeminiExtractor(ctx, cfg.Extract.APIKey, cfg.Extract.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("build warranty extractor: %w", err)
		}
		warranty = resolver.NewWarrantyFinder(engine, fetcher, extractor,
			cfg.Extract.PagesPerTerm, cfg.Extract.PageTextMax, logger)
	} else {
		logger.Info("warranty extraction disabled, no API key configured")
	}

	orchestrator := resolver.NewOrchestrator(resolvers, warranty, logger)
	gate := cache.NewGate(cacheStore, blob, orchestrator, system.New(), cache.Config{
		FreshnessWindow: cfg.Cache.FreshnessWindow(),
		SignedURLTTL:    cfg.Cache.SignedURLTTL(),
	}, logger)

	completer, err := contract.NewClaudeCompleter(cfg.Contract.AnthropicAPIKey,
		cfg.Contract.Model, int64(cfg.Contract.MaxTokens))
	if err != nil {
		return nil, fmt.Errorf("build contract completer: %w", err)
	}
	parser := contract.NewParser(completer, logger)

	progress := jobs.NewProgressStore()
	a.queue = jobs.NewQueue(cfg.Jobs.QueueDepth)
	runner := jobs.NewRunner(itemStore, gate, progress, publisher, cfg.Publisher.Topic, logger)
	archiver := jobs.NewArchiver(itemStore, cacheStore, blob, fetcher, progress, logger)
	a.pool = jobs.NewPool(a.queue, runner, archiver, cfg.Jobs.Concurrency, logger)

	a.server = api.NewServer(api.Deps{
		Projects:   projectStore,
		Items:      itemStore,
		Cache:      cacheStore,
		Blob:       blob,
		Parser:     parser,
		Progress:   progress,
		Queue:      a.queue,
		Runner:     runner,
		Downloader: fetcher,
		Scanner:    scanner,
		IDGen:      uuid.NewGenerator(),
		Clock:      system.New(),
		Logger:     logger,
	}, api.Config{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		SignedURLTTL:   cfg.Cache.SignedURLTTL(),
	})

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Provider),
		zap.String("blob", cfg.Blob.Provider),
		zap.String("publisher", cfg.Publisher.Provider))
	return a, nil
}

func (a *App) buildStores(ctx context.Context) (manual.CacheStore, manual.ItemStore, manual.ProjectStore, error) {
	switch a.cfg.Store.Provider {
	case "memory":
		a.logger.Info("using in-memory record stores, data is lost on restart")
		return memstore.NewCacheStore(), memstore.NewItemStore(), memstore.NewProjectStore(), nil
	case "postgres":
		a.logger.Info("connecting to PostgreSQL")
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: a.cfg.Store.DSN})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		a.pgPool = pool
		cacheStore, err := postgres.NewCacheStore(pool)
		if err != nil {
			return nil, nil, nil, err
		}
		itemStore, err := postgres.NewItemStore(pool)
		if err != nil {
			return nil, nil, nil, err
		}
		projectStore, err := postgres.NewProjectStore(pool)
		if err != nil {
			return nil, nil, nil, err
		}
		return cacheStore, itemStore, projectStore, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
}

func (a *App) buildBlobStore(ctx context.Context) (manual.BlobStore, error) {
	switch a.cfg.Blob.Provider {
	case "memory":
		a.logger.Info("using in-memory blob store, documents are lost on restart")
		return memblob.New(), nil
	case "local":
		a.logger.Info("using local blob store", zap.String("dir", a.cfg.Blob.LocalDir))
		return localblob.New(localblob.Config{BaseDir: a.cfg.Blob.LocalDir})
	case "gcs":
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Blob.GCSBucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		a.gcsClient = client
		return gcsblob.New(client, gcsblob.Config{Bucket: a.cfg.Blob.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown blob provider: %s", a.cfg.Blob.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (manual.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "noop":
		a.logger.Info("using no-op publisher, completion events are discarded")
		return noopPublisher.New(), nil
	case "pubsub":
		a.logger.Info("connecting to GCP Pub/Sub",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic))
		client, err := gpubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		pub, err := pubsubPublisher.New(client)
		if err != nil {
			return nil, err
		}
		a.psPublisher = pub
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", a.cfg.Publisher.Provider)
	}
}

// Close gracefully shuts down the container's services.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	a.queue.Close()
	if a.psPublisher != nil {
		a.psPublisher.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("error closing gcs client", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync failures are routine on some platforms.
		_ = err
	}
}
