package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS broker_discrepancies (
	id                 TEXT PRIMARY KEY,
	broker_id          TEXT NOT NULL,
	field_name         TEXT NOT NULL,
	db_value           TEXT,
	web_value          TEXT,
	confidence_score   REAL NOT NULL,
	sources_checked    TEXT NOT NULL DEFAULT '[]',
	tolerance_exceeded INTEGER NOT NULL DEFAULT 0,
	severity           TEXT NOT NULL,
	recommended_action TEXT NOT NULL,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_discrepancies_broker ON broker_discrepancies(broker_id);
CREATE INDEX IF NOT EXISTS idx_discrepancies_created ON broker_discrepancies(created_at);

CREATE TABLE IF NOT EXISTS data_sources (
	domain            TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	category          TEXT NOT NULL,
	reliability_score REAL NOT NULL,
	success_rate      REAL NOT NULL DEFAULT 0,
	total_checks      INTEGER NOT NULL DEFAULT 0,
	successful_checks INTEGER NOT NULL DEFAULT 0,
	last_reviewed     DATETIME NOT NULL,
	is_active         INTEGER NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS source_verifications (
	id              TEXT PRIMARY KEY,
	domain          TEXT NOT NULL,
	broker_id       TEXT,
	field_name      TEXT,
	is_accurate     INTEGER NOT NULL,
	confidence      REAL NOT NULL,
	had_discrepancy INTEGER NOT NULL DEFAULT 0,
	score_before    REAL NOT NULL,
	score_after     REAL NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_verifications_domain ON source_verifications(domain, created_at);

CREATE TABLE IF NOT EXISTS search_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDiscrepancies(ctx context.Context, brokerID string, discrepancies []model.FieldDiscrepancy) (int, error) {
	if len(discrepancies) == 0 {
		return 0, nil
	}
	records, err := NewDiscrepancyRecords(brokerID, discrepancies, s.now().UTC())
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO broker_discrepancies (id, broker_id, field_name, db_value, web_value, confidence_score,
		 sources_checked, tolerance_exceeded, severity, recommended_action, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert discrepancy")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		sources, err := json.Marshal(r.SourcesChecked)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal sources")
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.BrokerID, r.Field, string(r.DBValue), string(r.WebValue), r.Confidence,
			string(sources), r.ToleranceExceeded, string(r.Severity), string(r.RecommendedAction), r.CreatedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert discrepancy %s", r.Field)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit discrepancies")
	}
	return len(records), nil
}

func (s *SQLiteStore) ListDiscrepancies(ctx context.Context, filter DiscrepancyFilter) ([]model.StoredDiscrepancy, error) {
	where, args := discrepancyWhere(filter, func(int) string { return "?" })
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, broker_id, field_name, db_value, web_value, confidence_score, sources_checked,
		 tolerance_exceeded, severity, recommended_action, created_at
		 FROM broker_discrepancies`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list discrepancies")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoredDiscrepancy
	for rows.Next() {
		var d model.StoredDiscrepancy
		var dbValue, webValue sql.NullString
		var sources, severity, action string
		if err := rows.Scan(&d.ID, &d.BrokerID, &d.Field, &dbValue, &webValue, &d.Confidence, &sources,
			&d.ToleranceExceeded, &severity, &action, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan discrepancy")
		}
		d.DBValue = []byte(dbValue.String)
		d.WebValue = []byte(webValue.String)
		d.Severity = model.Severity(severity)
		d.RecommendedAction = model.Action(action)
		if err := json.Unmarshal([]byte(sources), &d.SourcesChecked); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sources")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate discrepancies")
}

const sqliteSourceColumns = `domain, name, category, reliability_score, success_rate, total_checks,
	successful_checks, last_reviewed, is_active, created_at, updated_at`

func (s *SQLiteStore) GetSource(ctx context.Context, domain string) (*model.DataSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM data_sources WHERE domain = ?`, domain)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", domain)
	}
	return src, nil
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.DataSource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO data_sources (`+sqliteSourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET name = excluded.name, category = excluded.category,
		 reliability_score = excluded.reliability_score, success_rate = excluded.success_rate,
		 total_checks = excluded.total_checks, successful_checks = excluded.successful_checks,
		 last_reviewed = excluded.last_reviewed, is_active = excluded.is_active, updated_at = excluded.updated_at`,
		sourceArgs(src)...,
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.Domain)
}

// UpsertSources writes every source in one transaction and returns how
// many were written.
func (s *SQLiteStore) UpsertSources(ctx context.Context, sources []model.DataSource) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO data_sources (`+sqliteSourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert source")
	}
	defer stmt.Close() //nolint:errcheck

	for _, src := range sources {
		if _, err := stmt.ExecContext(ctx, sourceArgs(src)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert source %s", src.Domain)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit sources")
	}
	return len(sources), nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM data_sources ORDER BY reliability_score DESC, domain`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DataSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		out = append(out, *src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sources")
}

func (s *SQLiteStore) RecordVerification(ctx context.Context, v model.SourceVerification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_verifications (id, domain, broker_id, field_name, is_accurate, confidence,
		 had_discrepancy, score_before, score_after, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Domain, v.BrokerID, v.Field, v.IsAccurate, v.Confidence,
		v.HadDiscrepancy, v.ScoreBefore, v.ScoreAfter, v.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record verification %s", v.Domain)
}

func (s *SQLiteStore) ListVerifications(ctx context.Context, domain string, limit int) ([]model.SourceVerification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, broker_id, field_name, is_accurate, confidence, had_discrepancy,
		 score_before, score_after, created_at
		 FROM source_verifications WHERE domain = ? ORDER BY created_at DESC LIMIT ?`,
		domain, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list verifications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SourceVerification
	for rows.Next() {
		var v model.SourceVerification
		var brokerID, field sql.NullString
		if err := rows.Scan(&v.ID, &v.Domain, &brokerID, &field, &v.IsAccurate, &v.Confidence,
			&v.HadDiscrepancy, &v.ScoreBefore, &v.ScoreAfter, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification")
		}
		v.BrokerID = brokerID.String
		v.Field = field.String
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate verifications")
}

func (s *SQLiteStore) Cache(maxEntries int) cache.Cache {
	return &sqliteCache{db: s.db, now: s.now, maxEntries: maxEntries}
}

// sqliteCache is a cache.Cache over the search_cache table. Expiry is
// stored as unix nanoseconds.
type sqliteCache struct {
	db         *sql.DB
	now        func() time.Time
	maxEntries int
}

func (c *sqliteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM search_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get cache")
	}
	return value, true, nil
}

func (c *sqliteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	if _, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return eris.Wrap(err, "sqlite: purge cache")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO search_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, now.Add(ttl).UnixNano(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set cache")
	}
	if c.maxEntries <= 0 {
		return nil
	}
	_, err = c.db.ExecContext(ctx,
		`DELETE FROM search_cache WHERE key IN (
		 SELECT key FROM search_cache ORDER BY expires_at DESC, key LIMIT -1 OFFSET ?)`,
		c.maxEntries,
	)
	return eris.Wrap(err, "sqlite: evict cache")
}

func (c *sqliteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE key = ?`, key)
	return eris.Wrap(err, "sqlite: delete cache")
}

func (c *sqliteCache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_cache WHERE expires_at > ?`, c.now().UnixNano(),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count cache")
}

func (c *sqliteCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM search_cache`)
	return eris.Wrap(err, "sqlite: clear cache")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.DataSource, error) {
	var src model.DataSource
	var category string
	if err := row.Scan(&src.Domain, &src.Name, &category, &src.ReliabilityScore, &src.SuccessRate,
		&src.TotalChecks, &src.SuccessfulChecks, &src.LastReviewed, &src.IsActive,
		&src.CreatedAt, &src.UpdatedAt); err != nil {
		return nil, err
	}
	src.Category = model.SourceCategory(category)
	return &src, nil
}

func sourceArgs(src model.DataSource) []any {
	return []any{
		src.Domain, src.Name, string(src.Category), src.ReliabilityScore, src.SuccessRate,
		src.TotalChecks, src.SuccessfulChecks, src.LastReviewed.UTC(), src.IsActive,
		src.CreatedAt.UTC(), src.UpdatedAt.UTC(),
	}
}
