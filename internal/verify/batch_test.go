package verify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

func TestVerifyBatch_InputOrder(t *testing.T) {
	h := newHarness(page("reviewsite.com", 0.9, func(d *model.ScrapedBrokerData) {
		d.MinDeposit = model.Float64(100)
	}))
	v := h.verifier()

	brokers := []model.Broker{acme(), {ID: "b-2", Name: ""}, acme()}
	brokers[2].ID = "b-3"

	var (
		mu   sync.Mutex
		seen []int
	)
	o := opts("minDeposit")
	o.SkipRegulatory = true
	results := v.VerifyBatch(context.Background(), brokers, o, BatchOptions{
		Concurrency: 3,
		OnResult: func(i int, _ *model.VerificationResult) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "b-1", results[0].BrokerID)
	assert.Equal(t, model.StatusVerified, results[0].Status)
	assert.Equal(t, "b-2", results[1].BrokerID)
	assert.Equal(t, model.StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Recommendations[0], "broker name is required")
	assert.Equal(t, "b-3", results[2].BrokerID)
	assert.ElementsMatch(t, []int{0, 1, 2}, seen)
}

func TestVerifyBatch_Delay(t *testing.T) {
	v := New(Deps{})
	o := opts("name")
	o.SkipRegulatory = true
	o.EnableAlerts = false

	start := time.Now()
	results := v.VerifyBatch(context.Background(), []model.Broker{acme(), acme(), acme()}, o, BatchOptions{Delay: 20 * time.Millisecond})
	assert.Len(t, results, 3)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestVerifyBatch_Canceled(t *testing.T) {
	v := New(Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := v.VerifyBatch(ctx, []model.Broker{acme(), acme()}, DefaultOptions(), BatchOptions{Delay: time.Second})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.StatusFailed, r.Status)
	}
}

func TestVerifyBatch_Empty(t *testing.T) {
	assert.Empty(t, New(Deps{}).VerifyBatch(context.Background(), nil, DefaultOptions(), BatchOptions{}))
}
