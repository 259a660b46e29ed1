package verify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/broker-verify/internal/model"
)

// BatchOptions control VerifyBatch.
type BatchOptions struct {
	// Concurrency is the number of brokers verified at once. Default: 1.
	Concurrency int
	// Delay is the minimum spacing between broker starts. Default: none.
	Delay time.Duration
	// OnResult, when set, is called after each broker completes. Calls are
	// serialized.
	OnResult func(index int, res *model.VerificationResult)
}

// VerifyBatch verifies brokers and returns one result per broker in input
// order. A broker that cannot be verified, or is not reached before ctx is
// canceled, gets a failed result.
func (v *Verifier) VerifyBatch(ctx context.Context, brokers []model.Broker, opts Options, bo BatchOptions) []*model.VerificationResult {
	results := make([]*model.VerificationResult, len(brokers))
	if len(brokers) == 0 {
		return results
	}

	concurrency := bo.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	limit := rate.Inf
	if bo.Delay > 0 {
		limit = rate.Every(bo.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	log := zap.L().With(zap.Int("brokers", len(brokers)), zap.Int("concurrency", concurrency))
	log.Info("verify: starting batch")
	start := v.now()

	var (
		mu              sync.Mutex
		failed, flagged atomic.Int64
	)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i := range brokers {
		g.Go(func() error {
			b := brokers[i]
			var res *model.VerificationResult
			if err := limiter.Wait(ctx); err != nil {
				res = v.failed(b, v.now(), err)
			} else {
				r, err := v.VerifyBroker(ctx, b, opts)
				if err != nil {
					r = v.failed(b, v.now(), err)
				}
				res = r
			}

			switch res.Status {
			case model.StatusFailed:
				failed.Add(1)
			case model.StatusNeedsReview, model.StatusDiscrepanciesFound:
				flagged.Add(1)
			}
			results[i] = res
			if bo.OnResult != nil {
				mu.Lock()
				bo.OnResult(i, res)
				mu.Unlock()
			}
			return nil // one broker never aborts the batch
		})
	}
	_ = g.Wait()

	log.Info("verify: batch complete",
		zap.Int64("failed", failed.Load()),
		zap.Int64("flagged", flagged.Load()),
		zap.Duration("elapsed", v.now().Sub(start)),
	)
	return results
}
