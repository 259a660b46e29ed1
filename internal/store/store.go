// Package store persists discrepancy records, source reliability state and
// the shared search cache.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/reliability"
)

// DiscrepancyFilter specifies criteria for listing stored discrepancies.
type DiscrepancyFilter struct {
	BrokerID string         `json:"broker_id,omitempty"`
	Field    string         `json:"field,omitempty"`
	Severity model.Severity `json:"severity,omitempty"`
	Since    time.Time      `json:"since,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f DiscrepancyFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for verification runs.
type Store interface {
	// Discrepancies
	SaveDiscrepancies(ctx context.Context, brokerID string, discrepancies []model.FieldDiscrepancy) (int, error)
	ListDiscrepancies(ctx context.Context, filter DiscrepancyFilter) ([]model.StoredDiscrepancy, error)

	// Source reliability
	reliability.Repository
	UpsertSources(ctx context.Context, sources []model.DataSource) (int, error)
	ListVerifications(ctx context.Context, domain string, limit int) ([]model.SourceVerification, error)

	// Cache returns a TTL cache backed by the search_cache table. Each Set
	// purges expired rows and, when maxEntries > 0, evicts the entries
	// closest to expiry beyond the cap.
	Cache(maxEntries int) cache.Cache

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and configures a driver.
type Options struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open returns the store for opts.Driver: "sqlite", "postgres" or "none".
// An empty driver means "none".
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "sqlite":
		dsn := opts.DatabaseURL
		if dsn == "" {
			dsn = "broker-verify.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		if opts.DatabaseURL == "" {
			zap.L().Warn("store: postgres selected without database_url, persistence disabled")
			return NewNoop(), nil
		}
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	case "", "none":
		return NewNoop(), nil
	default:
		return nil, eris.Errorf("store: unsupported driver %q", opts.Driver)
	}
}

// NewDiscrepancyRecords converts discrepancies found for brokerID into
// rows ready to persist. Values are JSON encoded.
func NewDiscrepancyRecords(brokerID string, discrepancies []model.FieldDiscrepancy, now time.Time) ([]model.StoredDiscrepancy, error) {
	out := make([]model.StoredDiscrepancy, 0, len(discrepancies))
	for _, d := range discrepancies {
		dbValue, err := json.Marshal(d.DBValue)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal db value for %s", d.Field)
		}
		webValue, err := json.Marshal(d.AggregatedValue)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal web value for %s", d.Field)
		}
		sources := d.Sources
		if sources == nil {
			sources = []string{}
		}
		out = append(out, model.StoredDiscrepancy{
			ID:                uuid.New().String(),
			BrokerID:          brokerID,
			Field:             d.Field,
			DBValue:           dbValue,
			WebValue:          webValue,
			Confidence:        d.Confidence,
			SourcesChecked:    sources,
			ToleranceExceeded: d.ToleranceExceeded,
			Severity:          d.Severity,
			RecommendedAction: d.RecommendedAction,
			CreatedAt:         now,
		})
	}
	return out, nil
}

// discrepancyWhere builds the WHERE clause and args for f. ph renders the
// n-th (1-based) placeholder for the driver.
func discrepancyWhere(f DiscrepancyFilter, ph func(n int) string) (string, []any) {
	var clauses []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		clauses = append(clauses, col+ph(len(args)))
	}
	if f.BrokerID != "" {
		add("broker_id = ", f.BrokerID)
	}
	if f.Field != "" {
		add("field_name = ", f.Field)
	}
	if f.Severity != "" {
		add("severity = ", string(f.Severity))
	}
	if !f.Since.IsZero() {
		add("created_at >= ", f.Since.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}
