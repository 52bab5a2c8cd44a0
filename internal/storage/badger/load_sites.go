package badger

import (
	"context"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/venari/internal/models"
)

// SiteFile is the YAML seed format:
//
//	sites:
//	  - name: Robinhood
//	    url: https://boards-api.greenhouse.io/v1/boards/robinhood/jobs
//	    site_type: greenhouse
//	    url_pattern: "*greenhouse.io*"
//	    scrape_provider: spidercloud
//	    enabled: true
//	    schedule: "0 */6 * * *"
type SiteFile struct {
	Sites []SiteSeed `yaml:"sites"`
}

// SiteSeed is one seeded site entry.
type SiteSeed struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	SiteType       string `yaml:"site_type"`
	URLPattern     string `yaml:"url_pattern"`
	ScrapeProvider string `yaml:"scrape_provider"`
	Enabled        *bool  `yaml:"enabled"`
	Schedule       string `yaml:"schedule"`
}

// LoadSitesFromFile seeds the site table from a YAML file. Sites already
// present (matched by URL) are left untouched so operator edits survive
// restarts. A missing file is not an error.
func LoadSitesFromFile(ctx context.Context, sites *SiteStorage, path string, logger arbor.ILogger) error {
	if path == "" {
		return nil
	}
	logger.Debug().Str("file", path).Msg("Loading sites from file")

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("file", path).Msg("Sites file does not exist, skipping")
			return nil
		}
		logger.Warn().Err(err).Str("file", path).Msg("Failed to read sites file")
		return nil // Non-fatal
	}

	var file SiteFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("Failed to parse sites file")
		return nil
	}

	loadedCount := 0
	skippedCount := 0
	errorCount := 0

	for _, seed := range file.Sites {
		if seed.URL == "" {
			logger.Warn().Str("name", seed.Name).Msg("Skipping site seed without URL")
			errorCount++
			continue
		}

		siteType := models.SiteType(seed.SiteType)
		if seed.SiteType != "" && !siteType.Valid() {
			logger.Warn().
				Str("name", seed.Name).
				Str("site_type", seed.SiteType).
				Msg("Skipping site seed with unknown site type")
			errorCount++
			continue
		}
		if siteType == "" {
			siteType = models.SiteTypeGeneric
		}

		count, err := sites.db.Store().Count(&SiteRecord{}, badgerhold.Where("URL").Eq(seed.URL))
		if err != nil {
			logger.Warn().Err(err).Str("url", seed.URL).Msg("Failed to check for existing site")
			errorCount++
			continue
		}
		if count > 0 {
			skippedCount++
			continue
		}

		enabled := true
		if seed.Enabled != nil {
			enabled = *seed.Enabled
		}
		site := models.Site{
			Name:           seed.Name,
			URL:            seed.URL,
			SiteType:       siteType,
			URLPattern:     seed.URLPattern,
			ScrapeProvider: models.ProviderKind(seed.ScrapeProvider),
			Enabled:        enabled,
			Schedule:       seed.Schedule,
		}
		if _, err := sites.SaveSite(ctx, site); err != nil {
			logger.Warn().Err(err).Str("url", seed.URL).Msg("Failed to seed site")
			errorCount++
			continue
		}
		loadedCount++
	}

	logger.Info().
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Int("errors", errorCount).
		Msg("Site seeding complete")

	return nil
}
