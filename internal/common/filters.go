package common

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobTitleKeywordsEnv overrides the required-keyword list; comma-separated.
const JobTitleKeywordsEnv = "JOB_TITLE_REQUIRED_KEYWORDS"

// FilterConfig is the keyword/location policy loaded from
// scraper_filters.yaml. The normalizer consumes it as a value; it never
// reads files or environment itself.
type FilterConfig struct {
	RequiredTitleKeywords []string `yaml:"required_title_keywords"`
	AllowUnknownTitle     bool     `yaml:"allow_unknown_title"`
	USOnly                bool     `yaml:"us_only"`
	AllowUnknownLocation  bool     `yaml:"allow_unknown_location"`
	NonUSTerms            []string `yaml:"non_us_terms"`
}

// NewDefaultFilterConfig returns the policy used when scraper_filters.yaml
// is absent.
func NewDefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		RequiredTitleKeywords: []string{"engineer", "developer", "software", "development"},
		AllowUnknownTitle:     true,
		USOnly:                true,
		AllowUnknownLocation:  true,
		NonUSTerms: []string{
			"canada", "united kingdom", "germany", "france", "netherlands",
			"india", "australia", "singapore", "ireland", "poland", "spain",
			"brazil", "mexico", "japan", "israel", "emea", "apac", "london",
			"toronto", "vancouver", "berlin", "amsterdam", "dublin", "bangalore",
			"bengaluru", "hyderabad", "pune", "sydney", "melbourne",
		},
	}
}

// LoadFilterConfig reads scraper_filters.yaml over the defaults and applies
// the JOB_TITLE_REQUIRED_KEYWORDS environment override.
func LoadFilterConfig(path string) (*FilterConfig, error) {
	config := NewDefaultFilterConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read filter config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse filter config %s: %w", path, err)
		}
	}

	if env := os.Getenv(JobTitleKeywordsEnv); env != "" {
		keywords := []string{}
		for _, k := range strings.Split(env, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				keywords = append(keywords, strings.ToLower(trimmed))
			}
		}
		if len(keywords) > 0 {
			config.RequiredTitleKeywords = keywords
		}
	}

	return config, nil
}

// RemoteCompaniesConfig is the overlay list from remote_companies.yaml:
// jobs at these companies are remote regardless of the row.
type RemoteCompaniesConfig struct {
	Companies []string `yaml:"companies"`
}

// LoadRemoteCompanies reads remote_companies.yaml. A missing file yields an
// empty overlay.
func LoadRemoteCompanies(path string) (*RemoteCompaniesConfig, error) {
	config := &RemoteCompaniesConfig{}
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read remote companies %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse remote companies %s: %w", path, err)
	}

	return config, nil
}

// IsRemoteCompany reports whether the company is in the overlay,
// case-insensitively.
func (r *RemoteCompaniesConfig) IsRemoteCompany(company string) bool {
	if company == "" {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(company))
	for _, c := range r.Companies {
		if strings.ToLower(strings.TrimSpace(c)) == needle {
			return true
		}
	}
	return false
}
