package reliability

import (
	"context"
	"sync"

	"github.com/sells-group/broker-verify/internal/model"
)

// Repository persists source reliability state across runs.
type Repository interface {
	// GetSource returns nil, nil when the domain is unknown.
	GetSource(ctx context.Context, domain string) (*model.DataSource, error)
	UpsertSource(ctx context.Context, src model.DataSource) error
	ListSources(ctx context.Context) ([]model.DataSource, error)
	RecordVerification(ctx context.Context, v model.SourceVerification) error
}

// MemoryRepository keeps reliability state in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	sources map[string]model.DataSource
	audit   []model.SourceVerification
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sources: make(map[string]model.DataSource)}
}

func (r *MemoryRepository) GetSource(_ context.Context, domain string) (*model.DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[domain]
	if !ok {
		return nil, nil
	}
	return &src, nil
}

func (r *MemoryRepository) UpsertSource(_ context.Context, src model.DataSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Domain] = src
	return nil
}

func (r *MemoryRepository) ListSources(_ context.Context) ([]model.DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.DataSource, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	return out, nil
}

func (r *MemoryRepository) RecordVerification(_ context.Context, v model.SourceVerification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, v)
	return nil
}

// Verifications returns a copy of the recorded audit rows.
func (r *MemoryRepository) Verifications() []model.SourceVerification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SourceVerification, len(r.audit))
	copy(out, r.audit)
	return out
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
