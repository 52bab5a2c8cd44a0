package convex

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// Manager implements the StoreManager interface over a remote deployment.
// All state lives server-side; the manager just shares one rate-limited
// client across the per-area stores.
type Manager struct {
	client     *Client
	sites      interfaces.SiteStore
	urlQueue   interfaces.URLQueueStore
	jobs       interfaces.JobStore
	scrapes    interfaces.ScrapeStore
	webhooks   interfaces.WebhookStore
	heuristics interfaces.HeuristicStore
	workflows  interfaces.WorkflowStore
	logger     arbor.ILogger
}

// NewManager creates a remote store manager for the configured deployment.
func NewManager(logger arbor.ILogger, config *common.ConvexConfig) (interfaces.StoreManager, error) {
	if config.Deployment == "" {
		return nil, fmt.Errorf("remote store requires a deployment URL")
	}

	opts := []ClientOption{WithLogger(logger)}
	if config.RateLimit > 0 {
		opts = append(opts, WithRateLimit(config.RateLimit))
	}
	client := NewClient(config.Deployment, config.DeployKey, opts...)

	manager := &Manager{
		client:     client,
		sites:      NewSiteStore(client, logger),
		urlQueue:   NewURLQueueStore(client, logger),
		jobs:       NewJobStore(client, logger),
		scrapes:    NewScrapeStore(client, logger),
		webhooks:   NewWebhookStore(client, logger),
		heuristics: NewHeuristicStore(client, logger),
		workflows:  NewWorkflowStore(client, logger),
		logger:     logger,
	}

	logger.Info().
		Str("deployment", config.Deployment).
		Msg("Remote storage manager initialized")

	return manager, nil
}

// Sites returns the site storage interface
func (m *Manager) Sites() interfaces.SiteStore { return m.sites }

// URLQueue returns the URL-queue storage interface
func (m *Manager) URLQueue() interfaces.URLQueueStore { return m.urlQueue }

// Jobs returns the job storage interface
func (m *Manager) Jobs() interfaces.JobStore { return m.jobs }

// Scrapes returns the scrape-log storage interface
func (m *Manager) Scrapes() interfaces.ScrapeStore { return m.scrapes }

// Webhooks returns the webhook storage interface
func (m *Manager) Webhooks() interfaces.WebhookStore { return m.webhooks }

// Heuristics returns the heuristic storage interface
func (m *Manager) Heuristics() interfaces.HeuristicStore { return m.heuristics }

// Workflows returns the workflow-run storage interface
func (m *Manager) Workflows() interfaces.WorkflowStore { return m.workflows }

// Close is a no-op; the manager holds no local resources.
func (m *Manager) Close() error { return nil }

var _ interfaces.StoreManager = (*Manager)(nil)
