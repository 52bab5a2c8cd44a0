package worker

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/services/scrape"
)

// Role pins a worker to one of the two disjoint lease queues.
type Role string

const (
	// RoleGeneral leases sites and runs stage-1 scrapes.
	RoleGeneral Role = "general"

	// RoleJobDetails leases URL batches and runs stage-2 detail scrapes.
	RoleJobDetails Role = "job-details"
)

// maxPassIterations bounds one drain pass so a queue that refills as fast
// as it drains cannot pin a worker past its tick.
const maxPassIterations = 20

// Worker is one pipeline worker: a stable lease-owner id plus a role.
type Worker struct {
	id     string
	role   Role
	scrape *scrape.Service
	logger arbor.ILogger
}

// New creates a worker with a fresh worker id.
func New(role Role, scrapeSvc *scrape.Service, logger arbor.ILogger) *Worker {
	return &Worker{
		id:     common.NewWorkerID(),
		role:   role,
		scrape: scrapeSvc,
		logger: logger,
	}
}

// ID is the lease-owner id stamped on locks this worker takes.
func (w *Worker) ID() string { return w.id }

// RunPass drains the worker's queue: lease, run, repeat until the store has
// no work, the iteration cap is hit, or the context ends. Failures of
// individual work units are logged and the pass continues; failures to
// lease abort the pass.
func (w *Worker) RunPass(ctx context.Context) error {
	for i := 0; i < maxPassIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch w.role {
		case RoleJobDetails:
			leased, err := w.scrape.RunDetailBatch(ctx, w.id)
			if leased == 0 {
				return err
			}
			if err != nil {
				w.logger.Warn().Err(err).
					Str("worker_id", w.id).
					Msg("Detail batch ended with errors")
			}
		default:
			worked, err := w.scrape.RunSite(ctx, w.id)
			if !worked {
				return err
			}
			if err != nil {
				w.logger.Warn().Err(err).
					Str("worker_id", w.id).
					Msg("Site run failed")
			}
		}
	}

	w.logger.Info().
		Str("worker_id", w.id).
		Str("role", string(w.role)).
		Int("iterations", maxPassIterations).
		Msg("Pass iteration cap reached; remaining work waits for the next tick")
	return nil
}

// Fleet fans passes out over role-pinned workers. The scheduler calls it
// once per tick per role.
type Fleet struct {
	scrape  *scrape.Service
	runtime *common.RuntimeConfig
	logger  arbor.ILogger
}

// NewFleet creates a fleet over the scrape orchestrator.
func NewFleet(scrapeSvc *scrape.Service, runtime *common.RuntimeConfig, logger arbor.ILogger) *Fleet {
	if runtime == nil {
		runtime = common.NewDefaultRuntimeConfig()
	}
	return &Fleet{scrape: scrapeSvc, runtime: runtime, logger: logger}
}

func (f *Fleet) roleCount(role Role) int {
	switch role {
	case RoleJobDetails:
		return f.runtime.JobDetailsWorkerCount.Int()
	default:
		return f.runtime.GeneralWorkerCount.Int()
	}
}

// RunPass runs the configured number of workers for a role and waits for
// all of them. Worker errors are joined, not short-circuited: one worker's
// failure never stops its siblings.
func (f *Fleet) RunPass(ctx context.Context, role Role) error {
	count := f.roleCount(role)
	if count <= 0 {
		return nil
	}

	pool := NewPool(ctx, count, f.logger)
	pool.Start()
	for i := 0; i < count; i++ {
		w := New(role, f.scrape, f.logger)
		if err := pool.Submit(w.RunPass); err != nil {
			break
		}
	}
	pool.Wait()

	return errors.Join(pool.Errors()...)
}
