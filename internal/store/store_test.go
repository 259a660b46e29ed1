package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &NoopStore{}, st)

	st, err = Open(ctx, Options{Driver: "postgres"})
	require.NoError(t, err)
	assert.IsType(t, &NoopStore{}, st, "postgres without a URL degrades")

	st, err = Open(ctx, Options{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Options{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestNewDiscrepancyRecords(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recs, err := NewDiscrepancyRecords("b-1", []model.FieldDiscrepancy{{
		Field:           "regulators",
		DBValue:         []string{"FCA"},
		AggregatedValue: []string{"FCA", "ASIC"},
		Sources:         []string{"fca.org.uk"},
		Severity:        model.SeverityHigh,
	}}, now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `["FCA"]`, string(recs[0].DBValue))
	assert.JSONEq(t, `["FCA","ASIC"]`, string(recs[0].WebValue))
	assert.Equal(t, now, recs[0].CreatedAt)
	assert.Equal(t, "b-1", recs[0].BrokerID)
	assert.Len(t, recs[0].ID, 36)

	_, err = NewDiscrepancyRecords("b-1", []model.FieldDiscrepancy{{Field: "bad", DBValue: make(chan int)}}, now)
	assert.Error(t, err)
}

func TestDiscrepancyWhere(t *testing.T) {
	where, args := discrepancyWhere(DiscrepancyFilter{}, pgPlaceholder)
	assert.Empty(t, where)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = discrepancyWhere(DiscrepancyFilter{BrokerID: "b", Field: "name", Since: since}, pgPlaceholder)
	assert.Equal(t, " WHERE broker_id = $1 AND field_name = $2 AND created_at >= $3", where)
	assert.Equal(t, []any{"b", "name", since}, args)
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	st := NewNoop()

	n, err := st.SaveDiscrepancies(ctx, "b-1", []model.FieldDiscrepancy{{Field: "name"}})
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := st.ListDiscrepancies(ctx, DiscrepancyFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = st.UpsertSources(ctx, []model.DataSource{{Domain: "fca.org.uk", ReliabilityScore: 10}})
	require.NoError(t, err)
	src, err := st.GetSource(ctx, "fca.org.uk")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, 10.0, src.ReliabilityScore)

	require.NoError(t, st.RecordVerification(ctx, model.SourceVerification{ID: "1", Domain: "fca.org.uk"}))
	require.NoError(t, st.RecordVerification(ctx, model.SourceVerification{ID: "2", Domain: "other.com"}))
	require.NoError(t, st.RecordVerification(ctx, model.SourceVerification{ID: "3", Domain: "fca.org.uk"}))
	vs, err := st.ListVerifications(ctx, "fca.org.uk", 0)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "3", vs[0].ID)

	require.NoError(t, st.Cache(0).Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := st.Cache(0).Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, st.Migrate(ctx))
	assert.NoError(t, st.Close())
}
