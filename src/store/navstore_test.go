package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/navhub/src/database"
	"github.com/username/navhub/src/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.CreateSchema(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(isin string, date time.Time, value string) models.NAVRecord {
	return models.NAVRecord{
		ISIN:       isin,
		NAVDate:    date,
		NAVValue:   decimal.RequireFromString(value),
		Source:     "ETPCAP2",
		FileType:   "standard",
		IngestedAt: time.Now().UTC(),
		RawRef:     "test.csv:1",
	}
}

func TestUpsertInsertThenUnchangedThenUpdated(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	outcome, err := s.Upsert(ctx, testRecord("XS1", date, "100.50"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome.Kind)

	// Same key, same value: idempotent, no write.
	outcome, err = s.Upsert(ctx, testRecord("XS1", date, "100.50"))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)
	assert.Nil(t, outcome.OldValue)

	// Equality is numeric, not textual.
	outcome, err = s.Upsert(ctx, testRecord("XS1", date, "100.5000"))
	require.NoError(t, err)
	assert.Equal(t, Unchanged, outcome.Kind)

	outcome, err = s.Upsert(ctx, testRecord("XS1", date, "101.00"))
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome.Kind)
	require.NotNil(t, outcome.OldValue)
	assert.True(t, outcome.OldValue.Equal(decimal.RequireFromString("100.50")))

	n, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertSameISINDifferentSourceIsSeparateKey(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	rec := testRecord("XS1", date, "100")
	_, err := s.Upsert(ctx, rec)
	require.NoError(t, err)

	rec.Source = "HFMX"
	outcome, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome.Kind)

	n, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueryPaginationAndOrdering(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		for _, isin := range []string{"XS2", "XS1"} {
			_, err := s.Upsert(ctx, testRecord(isin, base.AddDate(0, 0, day), "100"))
			require.NoError(t, err)
		}
	}

	records, total, err := s.Query(ctx, QueryFilter{}, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, records, 4)

	// Newest date first, ISIN ascending within a date.
	assert.Equal(t, "XS1", records[0].ISIN)
	assert.Equal(t, base.AddDate(0, 0, 2), records[0].NAVDate)
	assert.Equal(t, "XS2", records[1].ISIN)
	assert.Equal(t, base.AddDate(0, 0, 1), records[2].NAVDate)

	records, total, err = s.Query(ctx, QueryFilter{}, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, records, 2)
	assert.Equal(t, base, records[0].NAVDate)
}

func TestQueryFilters(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()
	d1 := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	_, err := s.Upsert(ctx, testRecord("XS1", d1, "100"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, testRecord("XS1", d2, "101"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, testRecord("XS2", d1, "200"))
	require.NoError(t, err)

	records, total, err := s.Query(ctx, QueryFilter{ISIN: "XS1"}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	records, total, err = s.Query(ctx, QueryFilter{From: d1.AddDate(0, 0, 1), To: d2}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, d2, records[0].NAVDate)
}

func TestRecordsForDate(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	_, err := s.Upsert(ctx, testRecord("XS1", date, "100"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, testRecord("XS2", date, "200"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, testRecord("XS3", date.AddDate(0, 0, -1), "300"))
	require.NoError(t, err)

	records, err := s.RecordsForDate(ctx, date, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = s.RecordsForDate(ctx, date, map[string]struct{}{"XS2": {}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "XS2", records[0].ISIN)
	assert.True(t, records[0].NAVValue.Equal(decimal.RequireFromString("200")))
}

func TestUpsertConcurrentSameKeyDoesNotLoseWrites(t *testing.T) {
	s := NewNAVStore(newTestDB(t))
	ctx := context.Background()
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := s.Upsert(ctx, testRecord("XS1", date, "100.50"))
			done <- err
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}

	n, err := s.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
