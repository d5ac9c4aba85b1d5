package adapters

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// defaultConcurrency bounds simultaneous outbound adapter fetches
// across all ETFs in one decomposition pass (§5 "bounded concurrent
// HTTP fetch pool").
const defaultConcurrency = 5

// Pool runs FetchHoldings calls for many ETFs with no more than n
// requests in flight at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a Pool with the given concurrency limit; n<=0 uses
// the §5 default of 5.
func NewPool(n int64) *Pool {
	if n <= 0 {
		n = defaultConcurrency
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// FetchJob is one ETF to resolve through the registry.
type FetchJob struct {
	ETFISIN string
	Issuer  string
}

// FetchResult pairs a job with its outcome.
type FetchResult struct {
	Job      FetchJob
	Holdings []RawHolding
	Err      error
}

// Run fans jobs out across the pool's concurrency limit and returns
// once every job has completed, regardless of individual failures.
func (p *Pool) Run(ctx context.Context, reg *Registry, jobs []FetchJob) []FetchResult {
	results := make([]FetchResult, len(jobs))
	done := make(chan int, len(jobs))

	for i, job := range jobs {
		i, job := i, job
		if err := p.sem.Acquire(ctx, 1); err != nil {
			results[i] = FetchResult{Job: job, Err: err}
			done <- i
			continue
		}
		go func() {
			defer p.sem.Release(1)
			holdings, err := reg.FetchHoldings(ctx, job.ETFISIN, job.Issuer)
			results[i] = FetchResult{Job: job, Holdings: holdings, Err: err}
			done <- i
		}()
	}

	for range jobs {
		<-done
	}
	return results
}
