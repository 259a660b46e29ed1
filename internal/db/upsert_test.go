package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sourceCols = []string{"domain", "name", "reliability_score"}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "data_sources",
		Columns:      sourceCols,
		ConflictKeys: []string{"domain"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "data_sources",
		ConflictKeys: []string{"domain"},
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "data_sources",
		Columns: sourceCols,
	}, [][]any{{"a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_data_sources" \(LIKE "data_sources"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_data_sources"}, sourceCols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("domain"\) DO UPDATE SET "name" = EXCLUDED."name", "reliability_score" = EXCLUDED."reliability_score"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"fca.org.uk", "FCA", 10.0}, {"babypips.com", "BabyPips", 7.0}}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "data_sources",
		Columns:      sourceCols,
		ConflictKeys: []string{"domain"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_data_sources"}, sourceCols).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "data_sources",
		Columns:      sourceCols,
		ConflictKeys: []string{"domain"},
	}, [][]any{{"fca.org.uk", "FCA", 10.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for data_sources")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_DoNothing(t *testing.T) {
	got := upsertSQL(`"data_sources"`, `"tmp"`, []string{"domain", "name"}, []string{"domain"}, []string{})
	assert.Equal(t, `INSERT INTO "data_sources" ("domain", "name") SELECT "domain", "name" FROM "tmp" ON CONFLICT ("domain") DO NOTHING`, got)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"simple"`, identifier("simple").Sanitize())
	assert.Equal(t, `"audit"."source_verifications"`, identifier("audit.source_verifications").Sanitize())
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
