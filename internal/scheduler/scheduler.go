// Package scheduler runs the pipeline's periodic jobs on cron schedules:
// site-scrape passes, detail-batch passes, the webhook sweep, and heuristic
// enrichment. Jobs never overlap themselves; a tick that lands while the
// previous run is still going is skipped, and missed ticks inside the
// catchup window fire once at startup.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
)

// jobEntry is one registered job with its live status.
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func(ctx context.Context) error
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// JobStatus is the read-only view returned to the status endpoint.
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	IsRunning   bool       `json:"isRunning"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// Scheduler owns the cron instance and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	catchup time.Duration

	jobMu   sync.Mutex
	jobs    map[string]*jobEntry
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. catchupHours bounds how far back a missed tick
// may be to still fire once at startup; zero disables catchup.
func New(catchupHours int, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		catchup: time.Duration(catchupHours) * time.Hour,
		jobs:    make(map[string]*jobEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterJob adds a job to the cron table. Must be called before Start.
func (s *Scheduler) RegisterJob(name, schedule, description string, handler func(ctx context.Context) error) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		enabled:     true,
	}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// Start begins cron dispatch and fires catchup runs for schedules that
// would have ticked within the catchup window.
func (s *Scheduler) Start() error {
	s.jobMu.Lock()
	if s.running {
		s.jobMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	catchup := s.catchupNames()
	s.jobMu.Unlock()

	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")

	for _, name := range catchup {
		s.logger.Info().Str("job_name", name).Msg("Firing catchup run")
		go s.executeJob(name)
	}
	return nil
}

// catchupNames returns jobs whose schedule had a tick inside the catchup
// window. Older missed ticks are dropped. Caller holds jobMu.
func (s *Scheduler) catchupNames() []string {
	if s.catchup <= 0 {
		return nil
	}
	now := time.Now()
	var names []string
	for name, entry := range s.jobs {
		if !entry.enabled {
			continue
		}
		spec, err := cron.ParseStandard(entry.schedule)
		if err != nil {
			continue
		}
		if next := spec.Next(now.Add(-s.catchup)); !next.After(now) {
			names = append(names, name)
		}
	}
	return names
}

// Stop cancels running handlers and halts cron dispatch. Blocks until jobs
// already mid-flight have returned.
func (s *Scheduler) Stop() {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return
	}
	s.running = false
	s.jobMu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// TriggerJob runs a job immediately, outside its schedule. Rejected when
// the job is mid-run.
func (s *Scheduler) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Manually triggering job")
	go s.executeJob(name)
	return nil
}

// JobStatuses returns the live view of every registered job.
func (s *Scheduler) JobStatuses() []JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entries := s.cron.Entries()
	nextFor := func(id cron.EntryID) *time.Time {
		for _, e := range entries {
			if e.ID == id {
				next := e.Next
				return &next
			}
		}
		return nil
	}

	out := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		out = append(out, JobStatus{
			Name:        entry.name,
			Schedule:    entry.schedule,
			Description: entry.description,
			Enabled:     entry.enabled,
			IsRunning:   entry.isRunning,
			LastRun:     entry.lastRun,
			NextRun:     nextFor(entry.cronID),
			LastError:   entry.lastError,
		})
	}
	return out
}

// executeJob wraps one run with overlap-skip, panic recovery, and status
// tracking. Site and detail jobs must run concurrently with each other, so
// the overlap check is per-entry, never global.
func (s *Scheduler) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Debug().Str("job_name", name).Msg("Previous run still going; skipping tick")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	s.logger.Info().Str("job_name", name).Msg("Job execution started")
	started := time.Now()

	err := handler(s.ctx)

	completed := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Job execution failed")
		return
	}
	s.logger.Info().
		Str("job_name", name).
		Dur("duration", time.Since(started)).
		Msg("Job execution completed")
}
