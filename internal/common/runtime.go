package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FlexInt is an integer that also accepts quoted YAML scalars ("15"). The
// runtime file is hand-edited in several deployments and string values
// show up often enough that coercion is part of the contract.
type FlexInt int

// UnmarshalYAML implements yaml.Unmarshaler with string coercion.
func (f *FlexInt) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("value %q is not an integer", value.Value)
	}
	*f = FlexInt(n)
	return nil
}

// Int returns the plain integer value.
func (f FlexInt) Int() int { return int(f) }

// RuntimeConfig holds the timeout / batch / concurrency knobs loaded from
// runtime.yaml. Unknown keys are ignored; absent keys keep their defaults.
type RuntimeConfig struct {
	SpiderCloudJobDetailsTimeoutMinutes          FlexInt `yaml:"spidercloud_job_details_timeout_minutes"`
	SpiderCloudJobDetailsBatchSize               FlexInt `yaml:"spidercloud_job_details_batch_size"`
	SpiderCloudJobDetailsConcurrency             FlexInt `yaml:"spidercloud_job_details_concurrency"`
	SpiderCloudJobDetailsProcessingExpireMinutes FlexInt `yaml:"spidercloud_job_details_processing_expire_minutes"`
	SpiderCloudHTTPTimeoutSeconds                FlexInt `yaml:"spidercloud_http_timeout_seconds"`
	FirecrawlBatchConcurrency                    FlexInt `yaml:"firecrawl_batch_concurrency"`
	FetchFoxMaxVisits                            FlexInt `yaml:"fetchfox_max_visits"`
	GeneralWorkerCount                           FlexInt `yaml:"general_worker_count"`
	JobDetailsWorkerCount                        FlexInt `yaml:"job_details_worker_count"`
	HeuristicBatchLimit                          FlexInt `yaml:"heuristic_batch_limit"`
	HeuristicMaxAttempts                         FlexInt `yaml:"heuristic_max_attempts"`
}

// NewDefaultRuntimeConfig returns the fixed defaults used when runtime.yaml
// is absent or silent on a key.
func NewDefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		SpiderCloudJobDetailsTimeoutMinutes:          15,
		SpiderCloudJobDetailsBatchSize:               50,
		SpiderCloudJobDetailsConcurrency:             4,
		SpiderCloudJobDetailsProcessingExpireMinutes: 20,
		SpiderCloudHTTPTimeoutSeconds:                900,
		FirecrawlBatchConcurrency:                    5,
		FetchFoxMaxVisits:                            20,
		GeneralWorkerCount:                           4,
		JobDetailsWorkerCount:                        4,
		HeuristicBatchLimit:                          25,
		HeuristicMaxAttempts:                         3,
	}
}

// LoadRuntimeConfig reads runtime.yaml over the defaults. A missing file is
// not an error; a malformed one is.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	config := NewDefaultRuntimeConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read runtime config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config %s: %w", path, err)
	}

	return config, nil
}

// JobDetailsTimeout is the start-to-close budget of one detail batch.
func (r *RuntimeConfig) JobDetailsTimeout() time.Duration {
	return time.Duration(r.SpiderCloudJobDetailsTimeoutMinutes) * time.Minute
}

// ProcessingExpiry is how long a processing row may sit before the next
// lease call reclaims it to pending.
func (r *RuntimeConfig) ProcessingExpiry() time.Duration {
	return time.Duration(r.SpiderCloudJobDetailsProcessingExpireMinutes) * time.Minute
}

// HTTPTimeout is the plain-GET budget for listing fetches.
func (r *RuntimeConfig) HTTPTimeout() time.Duration {
	return time.Duration(r.SpiderCloudHTTPTimeoutSeconds) * time.Second
}
