package optimizer

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultBatchConcurrency bounds simultaneous runs in a batch.
const DefaultBatchConcurrency = 4

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// OptimizeBatch runs every request through Optimize with at most concurrency
// runs in flight. Results are returned in request order; a failed request
// records its error without stopping the rest of the batch.
func (s *Service) OptimizeBatch(ctx context.Context, requests []Request, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make([]BatchResult, len(requests))
	p := pool.New().WithMaxGoroutines(concurrency)
	for i, req := range requests {
		i, req := i, req
		p.Go(func() {
			res, err := s.Optimize(ctx, req)
			results[i] = BatchResult{Request: req, Result: res, Err: err}
		})
	}
	p.Wait()

	return results
}
