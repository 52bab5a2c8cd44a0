package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/handlers"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/normalizer"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/scheduler"
	"github.com/ternarybob/venari/internal/services/dedup"
	"github.com/ternarybob/venari/internal/services/enrich"
	"github.com/ternarybob/venari/internal/services/ingest"
	"github.com/ternarybob/venari/internal/services/scrape"
	"github.com/ternarybob/venari/internal/services/webhook"
	"github.com/ternarybob/venari/internal/sites"
	"github.com/ternarybob/venari/internal/storage"
	"github.com/ternarybob/venari/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Runtime *common.RuntimeConfig

	// Storage
	Store interfaces.StoreManager

	// Site handler registry and normalizer
	SiteRegistry interfaces.HandlerRegistry
	Normalizer   interfaces.Normalizer

	// Provider adapters behind the selection policy
	Selector *providers.Selector

	// Pipeline services
	DedupService  *dedup.Service
	IngestService *ingest.Service
	ScrapeService *scrape.Service
	Reconciler    *webhook.Reconciler
	EnrichService *enrich.Service

	// Execution
	Fleet     *worker.Fleet
	Scheduler *scheduler.Scheduler

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	WebhookHandler *handlers.WebhookHandler
	StatusHandler  *handlers.StatusHandler
	SiteHandler    *handlers.SiteHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize storage
	if err := app.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start the scheduler AFTER handlers so catchup runs fired at startup
	// hit a fully wired pipeline.
	if cfg.Scheduler.Enabled {
		if err := app.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logger.Info().Msg("Scheduler disabled; site runs happen only via manual trigger")
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStore initializes the storage layer
func (a *App) initStore() error {
	store, err := storage.NewStoreManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create store manager: %w", err)
	}
	a.Store = store

	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")

	// Seed the site table from file. Only the local backend supports this;
	// the remote store's sites are operator-managed.
	if seeder, ok := store.(interface {
		LoadSitesFromFile(ctx context.Context, path string) error
	}); ok {
		if err := seeder.LoadSitesFromFile(context.Background(), a.Config.Configs.Sites); err != nil {
			// Log warning but don't fail startup (consistent with other loaders)
			a.Logger.Warn().Err(err).Msg("Failed to load sites from file")
		}
	}

	return nil
}

// initServices initializes all business services in dependency order.
func (a *App) initServices() error {
	// Domain config files: a missing file falls back to built-in defaults,
	// a present file that fails to parse is fatal.
	filters, err := common.LoadFilterConfig(a.Config.Configs.Filters)
	if err != nil {
		return fmt.Errorf("failed to load filter config: %w", err)
	}
	remote, err := common.LoadRemoteCompanies(a.Config.Configs.RemoteCompanies)
	if err != nil {
		return fmt.Errorf("failed to load remote companies: %w", err)
	}
	runtime, err := common.LoadRuntimeConfig(a.Config.Configs.Runtime)
	if err != nil {
		return fmt.Errorf("failed to load runtime config: %w", err)
	}
	a.Runtime = runtime

	// Site handler registry and normalizer
	a.SiteRegistry = sites.NewRegistry()
	a.Normalizer = normalizer.NewService(filters, remote, a.SiteRegistry, a.Logger)
	a.Logger.Debug().
		Int("title_keywords", len(filters.RequiredTitleKeywords)).
		Int("remote_companies", len(remote.Companies)).
		Msg("Normalizer initialized")

	// Provider adapters. Credentials resolve environment-first so deploys
	// never need keys in config files.
	spider := providers.NewSpiderCloud(providers.SpiderCloudOptions{
		APIURL:     a.Config.Providers.SpiderCloud.APIURL,
		APIKey:     a.Config.ResolveProviderKey("SPIDER_API_KEY", a.Config.Providers.SpiderCloud.APIKey),
		Registry:   a.SiteRegistry,
		Normalizer: a.Normalizer,
		Runtime:    a.Runtime,
	}, a.Logger)

	firecrawl := providers.NewFirecrawl(providers.FirecrawlOptions{
		APIURL:      a.Config.Providers.Firecrawl.APIURL,
		APIKey:      a.Config.ResolveProviderKey("FIRECRAWL_API_KEY", a.Config.Providers.Firecrawl.APIKey),
		WebhookBase: a.Config.Storage.Convex.HTTPBase,
		Registry:    a.SiteRegistry,
		Normalizer:  a.Normalizer,
		Webhooks:    a.Store.Webhooks(),
		Runtime:     a.Runtime,
	}, a.Logger)

	fetchfox := providers.NewFetchFox(providers.FetchFoxOptions{
		APIURL:     a.Config.Providers.FetchFox.APIURL,
		APIKey:     a.Config.ResolveProviderKey("FETCHFOX_API_KEY", a.Config.Providers.FetchFox.APIKey),
		Registry:   a.SiteRegistry,
		Normalizer: a.Normalizer,
		Runtime:    a.Runtime,
	}, a.Logger)

	a.Selector = providers.NewSelector(spider, firecrawl, fetchfox, a.Logger)
	a.Logger.Info().
		Bool("spidercloud", spider.Configured()).
		Bool("firecrawl", firecrawl.Configured()).
		Bool("fetchfox", fetchfox.Configured()).
		Bool("webhook_ingress", firecrawl.WebhookConfigured()).
		Msg("Provider adapters initialized")

	// Pipeline services
	a.DedupService = dedup.NewService(a.Store, a.Logger)
	a.IngestService = ingest.NewService(a.Store, a.DedupService, a.Logger)
	a.ScrapeService = scrape.NewService(a.Store, a.Selector, a.IngestService, a.DedupService, a.Runtime, a.Config, a.Logger)
	a.Reconciler = webhook.NewReconciler(a.Store, a.Selector.Firecrawl(), a.IngestService, a.Logger)
	a.EnrichService = enrich.NewService(a.Store, a.Runtime, a.Logger)
	a.Logger.Debug().Msg("Pipeline services initialized")

	// Worker fleet
	a.Fleet = worker.NewFleet(a.ScrapeService, a.Runtime, a.Logger)

	// Scheduler. Jobs are registered even when the tick loop is disabled so
	// they remain visible in /api/status and manually triggerable.
	a.Scheduler = scheduler.New(a.Config.Scheduler.CatchupHours, a.Logger)
	if err := a.registerSchedulerJobs(); err != nil {
		return fmt.Errorf("failed to register scheduler jobs: %w", err)
	}

	return nil
}

// registerSchedulerJobs wires the periodic pipeline passes. A pinned worker
// role registers only its own queue's jobs: the webhook sweep and enrichment
// ride with the general role so a split deployment never runs two concurrent
// reconcilers against the same pending rows.
func (a *App) registerSchedulerJobs() error {
	cfg := a.Config.Scheduler
	role := worker.Role(cfg.WorkerRole)
	if role != "" {
		a.Logger.Info().
			Str("worker_role", cfg.WorkerRole).
			Msg("Worker role pinned; registering only matching scheduler jobs")
	}

	if role != worker.RoleJobDetails {
		if err := a.Scheduler.RegisterJob("site-scrapes", cfg.Schedule,
			"Lease due sites and run discovery scrapes",
			func(ctx context.Context) error {
				return a.Fleet.RunPass(ctx, worker.RoleGeneral)
			}); err != nil {
			return err
		}

		if err := a.Scheduler.RegisterJob("webhook-sweep", cfg.SweepSchedule,
			"Expire or recover aged pending batch callbacks",
			a.Reconciler.Sweep); err != nil {
			return err
		}

		if err := a.Scheduler.RegisterJob("enrichment", cfg.Schedule,
			"Backfill location and compensation heuristics on sparse jobs",
			func(ctx context.Context) error {
				_, err := a.EnrichService.Run(ctx, cfg.EnrichLimit)
				return err
			}); err != nil {
			return err
		}
	}

	if role != worker.RoleGeneral {
		if err := a.Scheduler.RegisterJob("job-details", cfg.Schedule,
			"Lease queued detail URLs and fetch job postings",
			func(ctx context.Context) error {
				return a.Fleet.RunPass(ctx, worker.RoleJobDetails)
			}); err != nil {
			return err
		}
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.WebhookHandler = handlers.NewWebhookHandler(a.Reconciler, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Store, a.Scheduler, a.Logger)
	a.SiteHandler = handlers.NewSiteHandler(a.Store, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop the scheduler first so no pass starts against a closing store.
	if a.Scheduler != nil {
		a.Scheduler.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	// Close storage
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
