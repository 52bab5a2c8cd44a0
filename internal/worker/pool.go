// Package worker runs the pipeline's two worker roles. A pool fans a pass
// out over several role-pinned workers; each worker drains its lease queue
// until the store has nothing left for it.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
)

// Job is one unit of pool work.
type Job func(ctx context.Context) error

// Pool runs submitted jobs across a bounded set of goroutines. Pools are
// cheap and single-use: create one per pass, submit, wait.
type Pool struct {
	jobs   chan Job
	size   int
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger arbor.ILogger

	mu   sync.Mutex
	errs []error
}

// NewPool creates a pool of size goroutines. Jobs inherit ctx, so
// cancelling it stops the whole pass.
func NewPool(ctx context.Context, size int, logger arbor.ILogger) *Pool {
	if size <= 0 {
		size = 4
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		jobs:   make(chan Job, size*2),
		size:   size,
		ctx:    poolCtx,
		cancel: cancel,
		logger: logger,
	}
}

// Start spins up the goroutines. Each runs under SafeGo: a panicking job
// loses its worker but never the process, and Wait still returns because
// wg.Done fires during unwind.
func (p *Pool) Start() {
	p.logger.Debug().Int("size", p.size).Msg("Starting worker pool")
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		id := i
		common.SafeGo(p.logger, fmt.Sprintf("pool-worker-%d", id), func() { p.run(id) })
	}
}

// Submit hands a job to the pool. Fails once the pool is shutting down
// rather than blocking or panicking on the closed channel.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Wait blocks until every submitted job has finished. No Submit may follow.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels in-flight jobs and waits for the goroutines to exit.
func (p *Pool) Shutdown() {
	p.cancel()
	p.Wait()
}

// Errors returns the errors collected from failed jobs.
func (p *Pool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}

// run is one pool goroutine: pull jobs until the queue closes or the pass
// is cancelled, collecting failures instead of stopping on them.
func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job(p.ctx); err != nil {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
				p.logger.Error().Err(err).Int("worker", id).Msg("Pool job failed")
			}
		}
	}
}
