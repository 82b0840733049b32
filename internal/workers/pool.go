// Package workers implements parallel-marking coordination: a job queue
// the collection driver enqueues scan jobs onto, and a pool of goroutines
// that drain them against a shared distributed gray stack (spec §4.11
// "Worker Coordination", Component 11).
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/base/log"

	"github.com/veezhang/sgengo/internal/gray"
)

// MaxWorkers caps the configurable worker count (spec §6 workers=1..16).
const MaxWorkers = 16

// Job is one unit of root/remset/thread-data scanning work, enqueued by
// the driver after start_marking (spec §4.11).
type Job func(local *gray.Local)

// ScanFor builds the ScanFunc a single worker should use, bound to that
// worker's own Local so newly-discovered references are enqueued into the
// same private section rather than a shared one (spec §4.11: each worker
// owns its private gray-stack section).
type ScanFor func(local *gray.Local) gray.ScanFunc

// Pool owns N worker goroutines and the shared distribute queue they
// rebalance gray-stack sections through.
type Pool struct {
	n      int
	dist   *gray.Distributed
	scanFor ScanFor
}

// NewPool creates a pool of configured workers, or runtime.NumCPU() of
// them when configured <= 0, capped at MaxWorkers (16) and never fewer
// than one.
func NewPool(configured int, scanFor ScanFor) *Pool {
	n := configured
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return &Pool{
		n:       n,
		dist:    gray.NewDistributed(),
		scanFor: scanFor,
	}
}

func (p *Pool) Distributed() *gray.Distributed { return p.dist }

// StartMarking enqueues jobs and runs the worker goroutines until every
// job has been consumed and the shared gray stack has drained to a fixed
// point, then returns. Ordering guarantee: jobs enqueued before this call
// are not observable as completed until Join (this call) returns (spec
// §4.11).
func (p *Pool) StartMarking(ctx context.Context, jobs []Job) error {
	jobsCh := make(chan Job, len(jobs))
	for _, j := range jobs {
		jobsCh <- j
	}
	close(jobsCh)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < p.n; i++ {
		g.Go(func() error {
			local := p.dist.NewLocal()
			scan := p.scanFor(local)
			for job := range jobsCh {
				job(local)
			}
			// Keep draining/rebalancing until both this worker's
			// private section and the shared distribute queue are
			// empty — the poll-and-yield loop of spec §4.11 ("main
			// thread polls and yields while the distribute queue is
			// non-empty").
			for {
				local.Drain(scan)
				if p.dist.IsEmpty() {
					return nil
				}
				runtime.Gosched()
			}
		})
	}
	err := g.Wait()
	if err != nil {
		log.Error.Printf("workers: marking failed: %v", err)
	}
	return err
}
