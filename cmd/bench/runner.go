package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dBench/lib/store"
	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"
)

var log = logger.GetLogger("bench")

// Runner runs one workload with a fixed number of threads. Each thread owns
// one store created by Factory.
type Runner struct {
	Factory  store.Factory
	Workload Workload
	Params   Params

	Duration time.Duration // Wall clock limit (0 = until the budget or the workload is exhausted)
	Target   int           // Overall operations per second (0 = unthrottled)
	Progress time.Duration // Progress log interval (0 = no progress logging)
}

// Result summarizes a run
type Result struct {
	Workload string
	Threads  int
	Ops      int64 // Successful steps
	Failures int64 // Failed steps
	Elapsed  time.Duration
}

// OpsPerSec returns the rate of successful steps
func (r Result) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// Run starts all threads and blocks until every thread stopped. A thread
// stops when the operation budget is used up, the duration elapsed, ctx is
// cancelled or its workload returns ErrDone. Store initialization failures
// abort the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	threads := max(r.Params.Threads, 1)
	params := r.Params
	params.Threads = threads
	if r.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Duration)
		defer cancel()
	}

	// init all stores before the clock starts
	stores := make([]store.IStore, threads)
	for i := range stores {
		stores[i] = r.Factory()
		if err := stores[i].Init(ctx); err != nil {
			return Result{}, fmt.Errorf("init thread %d: %w", i, err)
		}
	}

	pool, err := ants.NewPool(threads, ants.WithPreAlloc(true))
	if err != nil {
		return Result{}, err
	}
	defer pool.Release()

	limit := rate.Inf
	if r.Target > 0 {
		limit = rate.Limit(r.Target)
	}
	limiter := rate.NewLimiter(limit, threads)

	var (
		claimed  atomic.Int64
		ops      atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)

	stopProgress := r.startProgress(&ops)
	defer stopProgress()

	start := time.Now()
	for i := 0; i < threads; i++ {
		id := i
		s := stores[id]
		step := r.Workload.Thread(params, id)
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer s.Cleanup(context.WithoutCancel(ctx))
			for ctx.Err() == nil {
				if params.Operations > 0 && claimed.Add(1) > int64(params.Operations) {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				err := step(ctx, s)
				switch {
				case err == nil:
					ops.Add(1)
				case errors.Is(err, ErrDone):
					return
				case ctx.Err() != nil:
					return
				default:
					failures.Add(1)
					log.Debugf("(%s) thread %d: %v", r.Workload.Name, id, err)
				}
			}
		})
		if err != nil {
			wg.Done()
			return Result{}, fmt.Errorf("start thread %d: %w", id, err)
		}
	}
	wg.Wait()

	return Result{
		Workload: r.Workload.Name,
		Threads:  threads,
		Ops:      ops.Load(),
		Failures: failures.Load(),
		Elapsed:  time.Since(start),
	}, nil
}

// startProgress logs the throughput averaged over the last ten intervals
// until the returned function is called
func (r *Runner) startProgress(ops *atomic.Int64) func() {
	if r.Progress <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.Progress)
		defer ticker.Stop()

		avg := movingaverage.New(10)
		last := int64(0)
		for {
			select {
			case <-ticker.C:
				current := ops.Load()
				avg.Add(float64(current-last) / r.Progress.Seconds())
				last = current
				log.Infof("(%s) %d ops, %.0f ops/sec (moving average)", r.Workload.Name, current, avg.Avg())
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
