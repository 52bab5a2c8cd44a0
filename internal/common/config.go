package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Providers   ProvidersConfig `toml:"providers"`
	Configs     ConfigFiles     `toml:"configs"` // domain YAML file locations
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=0,max=65535"`
	Host string `toml:"host"`
}

// StorageConfig selects the store backend. The remote backend talks to the
// deployment's named operations; the badger backend is a local twin used by
// tests and single-node runs.
type StorageConfig struct {
	Type   string       `toml:"type" validate:"oneof=convex badger"`
	Convex ConvexConfig `toml:"convex"`
	Badger BadgerConfig `toml:"badger"`
}

// ConvexConfig represents remote store connection settings
type ConvexConfig struct {
	Deployment string `toml:"deployment"` // e.g. https://happy-otter-123.convex.cloud
	HTTPBase   string `toml:"http_base"`  // HTTP actions base for webhook callbacks
	DeployKey  string `toml:"deploy_key"` // bearer credential; env VENARI_CONVEX_DEPLOY_KEY preferred
	RateLimit  int    `toml:"rate_limit"` // requests per second against the store
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// SchedulerConfig controls the site-lease tick loop.
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	Schedule      string `toml:"schedule"`       // cron expression for the general tick
	LockSeconds   int    `toml:"lock_seconds"`   // site lease duration
	CatchupHours  int    `toml:"catchup_hours"`  // missed ticks older than this are dropped
	EnrichLimit   int    `toml:"enrich_limit"`   // pending job details per enricher tick
	SweepSchedule string `toml:"sweep_schedule"` // webhook reconciler sweep cron

	// WorkerRole pins the process to one lease queue ("general" or
	// "job-details"); empty serves both.
	WorkerRole string `toml:"worker_role" validate:"omitempty,oneof=general job-details"`
}

// ProvidersConfig carries per-backend endpoints and config-file fallbacks
// for credentials. Environment variables always win (SPIDER_API_KEY,
// FIRECRAWL_API_KEY, FETCHFOX_API_KEY).
type ProvidersConfig struct {
	SpiderCloud SpiderCloudConfig `toml:"spidercloud"`
	Firecrawl   FirecrawlConfig   `toml:"firecrawl"`
	FetchFox    FetchFoxConfig    `toml:"fetchfox"`
}

type SpiderCloudConfig struct {
	APIURL string `toml:"api_url"`
	APIKey string `toml:"api_key"`
}

type FirecrawlConfig struct {
	APIURL string `toml:"api_url"`
	APIKey string `toml:"api_key"`
}

type FetchFoxConfig struct {
	APIURL string `toml:"api_url"`
	APIKey string `toml:"api_key"`
}

// ConfigFiles points at the domain YAML files. Missing files fall back to
// built-in defaults; a present file that fails to parse is an error.
type ConfigFiles struct {
	Filters         string `toml:"filters"`          // scraper_filters.yaml
	RemoteCompanies string `toml:"remote_companies"` // remote_companies.yaml
	Runtime         string `toml:"runtime"`          // runtime.yaml
	Sites           string `toml:"sites"`            // sites.yaml seed for the badger backend
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in venari.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Convex: ConvexConfig{
				RateLimit: 10, // requests per second against the store
			},
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			Schedule:      "*/5 * * * *", // lease pass every 5 minutes
			LockSeconds:   300,
			CatchupHours:  12,
			EnrichLimit:   50,
			SweepSchedule: "15 * * * *", // webhook sweep hourly
		},
		Providers: ProvidersConfig{
			SpiderCloud: SpiderCloudConfig{
				APIURL: "https://api.spider.cloud",
			},
			Firecrawl: FirecrawlConfig{
				APIURL: "https://api.firecrawl.dev",
			},
			FetchFox: FetchFoxConfig{
				APIURL: "https://fetchfox.ai/api/v2",
			},
		},
		Configs: ConfigFiles{
			Filters:         "scraper_filters.yaml",
			RemoteCompanies: "remote_companies.yaml",
			Runtime:         "runtime.yaml",
			Sites:           "sites.yaml",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VENARI_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("VENARI_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VENARI_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if storageType := os.Getenv("VENARI_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if deployment := os.Getenv("VENARI_CONVEX_DEPLOYMENT"); deployment != "" {
		config.Storage.Convex.Deployment = deployment
	}
	if httpBase := os.Getenv("VENARI_CONVEX_HTTP_BASE"); httpBase != "" {
		config.Storage.Convex.HTTPBase = httpBase
	}
	if deployKey := os.Getenv("VENARI_CONVEX_DEPLOY_KEY"); deployKey != "" {
		config.Storage.Convex.DeployKey = deployKey
	}
	if badgerPath := os.Getenv("VENARI_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("VENARI_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VENARI_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Scheduler configuration
	if schedule := os.Getenv("VENARI_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if lockSeconds := os.Getenv("VENARI_LOCK_SECONDS"); lockSeconds != "" {
		if v, err := strconv.Atoi(lockSeconds); err == nil {
			config.Scheduler.LockSeconds = v
		}
	}
	if role := os.Getenv("VENARI_WORKER_ROLE"); role != "" {
		config.Scheduler.WorkerRole = role
	}

	// Domain config file locations
	if filters := os.Getenv("VENARI_FILTERS_FILE"); filters != "" {
		config.Configs.Filters = filters
	}
	if remote := os.Getenv("VENARI_REMOTE_COMPANIES_FILE"); remote != "" {
		config.Configs.RemoteCompanies = remote
	}
	if runtime := os.Getenv("VENARI_RUNTIME_FILE"); runtime != "" {
		config.Configs.Runtime = runtime
	}
	if sites := os.Getenv("VENARI_SITES_FILE"); sites != "" {
		config.Configs.Sites = sites
	}
}

// Validate checks structural constraints on the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Storage.Type == "convex" && c.Storage.Convex.Deployment == "" {
		return fmt.Errorf("invalid configuration: storage.type=convex requires storage.convex.deployment")
	}

	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler.schedule: %w", err)
		}
		if err := ValidateSchedule(c.Scheduler.SweepSchedule); err != nil {
			return fmt.Errorf("invalid scheduler.sweep_schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule parses a cron expression in standard 5-field format.
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule is empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host, workerRole string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if workerRole != "" {
		config.Scheduler.WorkerRole = workerRole
	}
}

// ResolveProviderKey returns the credential for a provider: environment
// first, then the config-file fallback. An empty result means the provider
// is not configured; callers decide whether that is fatal.
func (c *Config) ResolveProviderKey(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// IsDevelopment returns true when running in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
