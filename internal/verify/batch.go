package verify

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/grant-verifier/internal/model"
)

// BatchOptions bounds a batch run.
type BatchOptions struct {
	Concurrency   int     // max runs in flight; <= 0 means 1
	RatePerSecond float64 // run starts per second; <= 0 means unlimited
}

// BatchResult is the outcome for one grant in a batch.
type BatchResult struct {
	GrantID  string
	Response *Response
	Err      error
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total    int                              `json:"total"`
	Failed   int                              `json:"failed"`
	ByStatus map[model.VerificationStatus]int `json:"by_status"`
}

// VerifyBatch verifies grantIDs concurrently. Individual failures are
// reported in the results and never abort the batch. Results keep the order
// of grantIDs.
func (s *Service) VerifyBatch(ctx context.Context, grantIDs []string, opts BatchOptions) []BatchResult {
	results := make([]BatchResult, len(grantIDs))
	if len(grantIDs) == 0 {
		zap.L().Info("verify: no grants to verify")
		return results
	}

	concurrency := max(opts.Concurrency, 1)
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	zap.L().Info("verify: processing batch",
		zap.Int("grants", len(grantIDs)),
		zap.Int("concurrency", concurrency),
		zap.Float64("rate_per_second", opts.RatePerSecond),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, id := range grantIDs {
		results[i].GrantID = id
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				failed.Add(1)
				results[i].Err = err
				return nil
			}

			resp, err := s.Verify(gctx, id)
			if err != nil {
				failed.Add(1)
				results[i].Err = err
				zap.L().Error("verify: batch item failed", zap.String("grant_id", id), zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			succeeded.Add(1)
			results[i].Response = resp
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("verify: batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

// Summarize counts results by status.
func Summarize(results []BatchResult) BatchSummary {
	sum := BatchSummary{Total: len(results), ByStatus: map[model.VerificationStatus]int{}}
	for _, r := range results {
		if r.Err != nil || r.Response == nil {
			sum.Failed++
			continue
		}
		sum.ByStatus[r.Response.Status]++
	}
	return sum
}
