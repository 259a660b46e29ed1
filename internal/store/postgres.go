package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/db"
	"github.com/sells-group/broker-verify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS broker_discrepancies (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	broker_id          TEXT NOT NULL,
	field_name         TEXT NOT NULL,
	db_value           JSONB,
	web_value          JSONB,
	confidence_score   DOUBLE PRECISION NOT NULL,
	sources_checked    TEXT[] NOT NULL DEFAULT '{}',
	tolerance_exceeded BOOLEAN NOT NULL DEFAULT false,
	severity           TEXT NOT NULL,
	recommended_action TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_discrepancies_broker ON broker_discrepancies(broker_id);
CREATE INDEX IF NOT EXISTS idx_discrepancies_created ON broker_discrepancies(created_at DESC);

CREATE TABLE IF NOT EXISTS data_sources (
	domain            TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	category          TEXT NOT NULL,
	reliability_score DOUBLE PRECISION NOT NULL,
	success_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_checks      INTEGER NOT NULL DEFAULT 0,
	successful_checks INTEGER NOT NULL DEFAULT 0,
	last_reviewed     TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_active         BOOLEAN NOT NULL DEFAULT true,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_verifications (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain          TEXT NOT NULL,
	broker_id       TEXT,
	field_name      TEXT,
	is_accurate     BOOLEAN NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	had_discrepancy BOOLEAN NOT NULL DEFAULT false,
	score_before    DOUBLE PRECISION NOT NULL,
	score_after     DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_source_verifications_domain ON source_verifications(domain, created_at DESC);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var discrepancyColumns = []string{
	"id", "broker_id", "field_name", "db_value", "web_value", "confidence_score",
	"sources_checked", "tolerance_exceeded", "severity", "recommended_action", "created_at",
}

// SaveDiscrepancies writes the batch with COPY.
func (s *PostgresStore) SaveDiscrepancies(ctx context.Context, brokerID string, discrepancies []model.FieldDiscrepancy) (int, error) {
	if len(discrepancies) == 0 {
		return 0, nil
	}
	records, err := NewDiscrepancyRecords(brokerID, discrepancies, s.now().UTC())
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.ID, r.BrokerID, r.Field, string(r.DBValue), string(r.WebValue), r.Confidence,
			r.SourcesChecked, r.ToleranceExceeded, string(r.Severity), string(r.RecommendedAction), r.CreatedAt,
		}
	}
	n, err := db.CopyFrom(ctx, s.pool, "broker_discrepancies", discrepancyColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save discrepancies")
	}
	return int(n), nil
}

func (s *PostgresStore) ListDiscrepancies(ctx context.Context, filter DiscrepancyFilter) ([]model.StoredDiscrepancy, error) {
	where, args := discrepancyWhere(filter, pgPlaceholder)
	args = append(args, filter.limit(), filter.Offset)
	query := `SELECT id, broker_id, field_name, db_value::text, web_value::text, confidence_score, sources_checked,
		 tolerance_exceeded, severity, recommended_action, created_at
		 FROM broker_discrepancies` + where +
		` ORDER BY created_at DESC, id LIMIT ` + pgPlaceholder(len(args)-1) + ` OFFSET ` + pgPlaceholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list discrepancies")
	}
	defer rows.Close()

	var out []model.StoredDiscrepancy
	for rows.Next() {
		var d model.StoredDiscrepancy
		var dbValue, webValue *string
		var severity, action string
		if err := rows.Scan(&d.ID, &d.BrokerID, &d.Field, &dbValue, &webValue, &d.Confidence, &d.SourcesChecked,
			&d.ToleranceExceeded, &severity, &action, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan discrepancy")
		}
		if dbValue != nil {
			d.DBValue = []byte(*dbValue)
		}
		if webValue != nil {
			d.WebValue = []byte(*webValue)
		}
		d.Severity = model.Severity(severity)
		d.RecommendedAction = model.Action(action)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate discrepancies")
}

const pgSourceColumns = `domain, name, category, reliability_score, success_rate, total_checks,
	successful_checks, last_reviewed, is_active, created_at, updated_at`

var sourceColumns = []string{
	"domain", "name", "category", "reliability_score", "success_rate", "total_checks",
	"successful_checks", "last_reviewed", "is_active", "created_at", "updated_at",
}

func (s *PostgresStore) GetSource(ctx context.Context, domain string) (*model.DataSource, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSourceColumns+` FROM data_sources WHERE domain = $1`, domain)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", domain)
	}
	return src, nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.DataSource) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO data_sources (`+pgSourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (domain) DO UPDATE SET name = $2, category = $3, reliability_score = $4, success_rate = $5,
		 total_checks = $6, successful_checks = $7, last_reviewed = $8, is_active = $9, updated_at = $11`,
		sourceArgs(src)...,
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.Domain)
}

// UpsertSources merges sources through a COPY-loaded temp table.
func (s *PostgresStore) UpsertSources(ctx context.Context, sources []model.DataSource) (int, error) {
	rows := make([][]any, len(sources))
	for i, src := range sources {
		rows[i] = sourceArgs(src)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "data_sources",
		Columns:      sourceColumns,
		ConflictKeys: []string{"domain"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert sources")
	}
	return int(n), nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSourceColumns+` FROM data_sources ORDER BY reliability_score DESC, domain`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.DataSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sources")
}

func (s *PostgresStore) RecordVerification(ctx context.Context, v model.SourceVerification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_verifications (id, domain, broker_id, field_name, is_accurate, confidence,
		 had_discrepancy, score_before, score_after, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.Domain, v.BrokerID, v.Field, v.IsAccurate, v.Confidence,
		v.HadDiscrepancy, v.ScoreBefore, v.ScoreAfter, v.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record verification %s", v.Domain)
}

func (s *PostgresStore) ListVerifications(ctx context.Context, domain string, limit int) ([]model.SourceVerification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain, COALESCE(broker_id, ''), COALESCE(field_name, ''), is_accurate, confidence,
		 had_discrepancy, score_before, score_after, created_at
		 FROM source_verifications WHERE domain = $1 ORDER BY created_at DESC LIMIT $2`,
		domain, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list verifications")
	}
	defer rows.Close()

	var out []model.SourceVerification
	for rows.Next() {
		var v model.SourceVerification
		if err := rows.Scan(&v.ID, &v.Domain, &v.BrokerID, &v.Field, &v.IsAccurate, &v.Confidence,
			&v.HadDiscrepancy, &v.ScoreBefore, &v.ScoreAfter, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate verifications")
}

func (s *PostgresStore) Cache(maxEntries int) cache.Cache {
	return &pgCache{pool: s.pool, now: s.now, maxEntries: maxEntries}
}

// pgCache is a cache.Cache over the search_cache table, shared by every
// process pointed at the same database.
type pgCache struct {
	pool       db.Pool
	now        func() time.Time
	maxEntries int
}

func (c *pgCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM search_cache WHERE key = $1 AND expires_at > $2`, key, c.now().UTC(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get cache")
	}
	return value, true, nil
}

func (c *pgCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now().UTC()
	if _, err := c.pool.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= $1`, now); err != nil {
		return eris.Wrap(err, "postgres: purge cache")
	}
	_, err := c.pool.Exec(ctx,
		`INSERT INTO search_cache (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3`,
		key, value, now.Add(ttl),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set cache")
	}
	if c.maxEntries <= 0 {
		return nil
	}
	_, err = c.pool.Exec(ctx,
		`DELETE FROM search_cache WHERE key IN (
		 SELECT key FROM search_cache ORDER BY expires_at DESC, key OFFSET $1)`,
		c.maxEntries,
	)
	return eris.Wrap(err, "postgres: evict cache")
}

func (c *pgCache) Delete(ctx context.Context, key string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM search_cache WHERE key = $1`, key)
	return eris.Wrap(err, "postgres: delete cache")
}

func (c *pgCache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_cache WHERE expires_at > $1`, c.now().UTC(),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count cache")
}

func (c *pgCache) Clear(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM search_cache`)
	return eris.Wrap(err, "postgres: clear cache")
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}
