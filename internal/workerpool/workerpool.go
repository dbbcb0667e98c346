// Package workerpool implements a bounded, fixed-size worker pool for
// batched ANN search and batched insertion. Grounded on
// friggdb/pool.Pool: a buffered job channel, a fixed number of
// long-lived worker goroutines, and an atomic in-flight counter
// reported as a gauge. Generalized from friggdb's untyped
// interface{}/proto.Message job shape to Go generics, and from
// first-result-wins semantics (right for tempo's "any block may have
// the trace" query fan-out) to collect-every-result semantics, since a
// batched search or insert needs an answer for every query, not the
// first one to finish.
//
// Admission control uses golang.org/x/sync/semaphore rather than
// friggdb's bare len(workQueue)-vs-cap check: a plain length
// comparison is only an approximation under concurrent submitters
// (two RunAll calls can both pass the check before either enqueues),
// while a weighted semaphore's TryAcquire makes the depth limit exact.
package workerpool

import (
	"fmt"
	"sync"

	"github.com/cosdata/vecgraph/internal/metrics"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// Config mirrors friggdb/pool.Config: a fixed worker count and a
// buffered queue depth beyond which RunAll rejects new batches.
type Config struct {
	MaxWorkers int
	QueueDepth int
}

func DefaultConfig() *Config {
	return &Config{MaxWorkers: 30, QueueDepth: 10000}
}

// JobFunc is one unit of batched work: a search query or an insert
// request, producing a result or an error.
type JobFunc[T any, R any] func(payload T) (R, error)

type job[T any, R any] struct {
	payload T
	fn      JobFunc[T, R]
	idx     int
	out     []R
	errs    []error
	wg      *sync.WaitGroup
}

// Pool runs batches of JobFunc calls over a fixed worker goroutine
// set. Safe for concurrent use by multiple callers submitting
// independent batches.
type Pool[T any, R any] struct {
	cfg   *Config
	size  *atomic.Int32
	admit *semaphore.Weighted

	workQueue chan *job[T, R]
}

func NewPool[T any, R any](cfg *Config) *Pool[T, R] {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Pool[T, R]{
		cfg:       cfg,
		workQueue: make(chan *job[T, R], cfg.QueueDepth),
		size:      atomic.NewInt32(0),
		admit:     semaphore.NewWeighted(int64(cfg.QueueDepth)),
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool[T, R]) worker() {
	for j := range p.workQueue {
		p.size.Dec()
		metrics.WorkerPoolQueueLength.Set(float64(p.size.Load()))

		r, err := j.fn(j.payload)
		j.out[j.idx] = r
		j.errs[j.idx] = err
		j.wg.Done()
		p.admit.Release(1)
	}
}

// RunAll submits every payload as an independent job and blocks until
// all have completed, returning results in input order. If any job
// errored, the first error encountered (by index) is returned
// alongside the partial results. The whole batch is admitted atomically:
// if the queue has no room for all n jobs, none are submitted.
func (p *Pool[T, R]) RunAll(payloads []T, fn JobFunc[T, R]) ([]R, error) {
	n := len(payloads)
	if !p.admit.TryAcquire(int64(n)) {
		return nil, fmt.Errorf("workerpool: queue has no room for %d jobs", n)
	}

	out := make([]R, n)
	errs := make([]error, n)
	wg := &sync.WaitGroup{}
	wg.Add(n)

	for i, payload := range payloads {
		j := &job[T, R]{payload: payload, fn: fn, idx: i, out: out, errs: errs, wg: wg}
		p.size.Inc()
		metrics.WorkerPoolQueueLength.Set(float64(p.size.Load()))
		p.workQueue <- j
	}

	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return out, e
		}
	}
	return out, nil
}

// Shutdown closes the work queue. Workers drain remaining jobs then
// exit; the pool is unusable afterwards.
func (p *Pool[T, R]) Shutdown() { close(p.workQueue) }
