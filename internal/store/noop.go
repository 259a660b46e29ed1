package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/reliability"
)

// NoopStore is the degraded store used when no database is configured.
// Discrepancies are dropped; reliability state lives in memory for the
// life of the process.
type NoopStore struct {
	*reliability.MemoryRepository
	cache *cache.Memory
}

// NewNoop returns a NoopStore and logs that persistence is disabled.
func NewNoop() *NoopStore {
	zap.L().Warn("store: no database configured, discrepancies will not be persisted")
	return &NoopStore{
		MemoryRepository: reliability.NewMemoryRepository(),
		cache:            cache.NewMemory(1000),
	}
}

func (s *NoopStore) SaveDiscrepancies(_ context.Context, brokerID string, discrepancies []model.FieldDiscrepancy) (int, error) {
	if len(discrepancies) > 0 {
		zap.L().Debug("store: skipping discrepancy save",
			zap.String("broker_id", brokerID),
			zap.Int("count", len(discrepancies)),
		)
	}
	return 0, nil
}

func (s *NoopStore) ListDiscrepancies(context.Context, DiscrepancyFilter) ([]model.StoredDiscrepancy, error) {
	return nil, nil
}

func (s *NoopStore) UpsertSources(ctx context.Context, sources []model.DataSource) (int, error) {
	for _, src := range sources {
		if err := s.UpsertSource(ctx, src); err != nil {
			return 0, err
		}
	}
	return len(sources), nil
}

func (s *NoopStore) ListVerifications(_ context.Context, domain string, limit int) ([]model.SourceVerification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	all := s.Verifications()
	var out []model.SourceVerification
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Domain == domain {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Cache returns the store's shared in-memory cache, which keeps its own cap.
func (s *NoopStore) Cache(int) cache.Cache { return s.cache }

func (s *NoopStore) Migrate(context.Context) error { return nil }

func (s *NoopStore) Close() error { return nil }
