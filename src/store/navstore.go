package store

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/utils"
)

// OutcomeKind classifies what an upsert did.
type OutcomeKind string

const (
	Inserted  OutcomeKind = "inserted"
	Updated   OutcomeKind = "updated"
	Unchanged OutcomeKind = "unchanged"
)

// Outcome reports the effect of one upsert. OldValue is set only for
// Updated, carrying the replaced NAV for audit logging.
type Outcome struct {
	Kind     OutcomeKind      `json:"kind"`
	OldValue *decimal.Decimal `json:"oldValue,omitempty"`
}

// QueryFilter narrows a NAV history query. Zero values mean "no filter".
type QueryFilter struct {
	ISIN         string
	SeriesNumber string
	From         time.Time
	To           time.Time
}

const lockStripes = 64

// NAVStore persists canonical NAV records. Writes to the same
// (isin, date, source) key are serialized through striped locks so
// concurrent ingestion runs over overlapping dates cannot lose updates,
// while unrelated keys proceed in parallel.
type NAVStore struct {
	db    *sql.DB
	locks [lockStripes]sync.Mutex
}

func NewNAVStore(db *sql.DB) *NAVStore {
	return &NAVStore{db: db}
}

func (s *NAVStore) lockFor(isin string, date time.Time, source string) *sync.Mutex {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s", isin, utils.DateOnly(date), source)
	return &s.locks[h.Sum32()%lockStripes]
}

// Upsert writes one record keyed by (isin, nav_date, source). An identical
// existing value yields Unchanged with no write, which makes re-ingesting
// the same file idempotent; a differing value is replaced and the prior
// value returned.
func (s *NAVStore) Upsert(ctx context.Context, rec models.NAVRecord) (Outcome, error) {
	mu := s.lockFor(rec.ISIN, rec.NAVDate, rec.Source)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT nav_value FROM nav_entries WHERE isin = ? AND nav_date = ? AND source = ?`,
		rec.ISIN, utils.DateOnly(rec.NAVDate), rec.Source).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nav_entries (isin, series_number, nav_date, nav_value, source, file_type, raw_ref, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ISIN, rec.SeriesNumber, utils.DateOnly(rec.NAVDate), rec.NAVValue.String(),
			rec.Source, rec.FileType, rec.RawRef, rec.IngestedAt.UTC().Format(time.RFC3339))
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
				return Outcome{}, fmt.Errorf("%w: concurrent insert for %s/%s/%s", models.ErrStoreConflict,
					rec.ISIN, utils.DateOnly(rec.NAVDate), rec.Source)
			}
			return Outcome{}, fmt.Errorf("insert nav entry for %s: %w", rec.ISIN, err)
		}
		if err := tx.Commit(); err != nil {
			return Outcome{}, fmt.Errorf("commit insert: %w", err)
		}
		return Outcome{Kind: Inserted}, nil

	case err != nil:
		return Outcome{}, fmt.Errorf("look up nav entry for %s: %w", rec.ISIN, err)
	}

	oldValue, err := decimal.NewFromString(existing)
	if err != nil {
		return Outcome{}, fmt.Errorf("stored nav_value %q for %s is not a decimal: %w", existing, rec.ISIN, err)
	}

	// Exact decimal equality; no tolerance.
	if oldValue.Equal(rec.NAVValue) {
		return Outcome{Kind: Unchanged}, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE nav_entries SET nav_value = ?, series_number = ?, file_type = ?, raw_ref = ?, ingested_at = ?
		 WHERE isin = ? AND nav_date = ? AND source = ?`,
		rec.NAVValue.String(), rec.SeriesNumber, rec.FileType, rec.RawRef,
		rec.IngestedAt.UTC().Format(time.RFC3339),
		rec.ISIN, utils.DateOnly(rec.NAVDate), rec.Source)
	if err != nil {
		return Outcome{}, fmt.Errorf("update nav entry for %s: %w", rec.ISIN, err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit update: %w", err)
	}
	return Outcome{Kind: Updated, OldValue: &oldValue}, nil
}

// Query returns one page of NAV history plus the total match count.
// Pages are 1-indexed; ordering is (nav_date DESC, isin ASC) so pagination
// is stable across calls.
func (s *NAVStore) Query(ctx context.Context, filter QueryFilter, page, perPage int) ([]models.NAVRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	where, args := buildWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nav_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count nav entries: %w", err)
	}

	query := `SELECT id, isin, series_number, nav_date, nav_value, source, file_type, raw_ref, ingested_at
		FROM nav_entries` + where + ` ORDER BY nav_date DESC, isin ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query nav entries: %w", err)
	}
	defer rows.Close()

	var records []models.NAVRecord
	for rows.Next() {
		rec, err := scanNAVRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// RecordsForDate returns every stored record valued on the given date,
// optionally narrowed to a set of ISINs. Used by the renderer.
func (s *NAVStore) RecordsForDate(ctx context.Context, date time.Time, isins map[string]struct{}) ([]models.NAVRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, isin, series_number, nav_date, nav_value, source, file_type, raw_ref, ingested_at
		 FROM nav_entries WHERE nav_date = ? ORDER BY isin ASC, source ASC`, utils.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("query nav entries for %s: %w", utils.DateOnly(date), err)
	}
	defer rows.Close()

	var records []models.NAVRecord
	for rows.Next() {
		rec, err := scanNAVRecord(rows)
		if err != nil {
			return nil, err
		}
		if isins != nil {
			if _, ok := isins[rec.ISIN]; !ok {
				continue
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecords returns the total number of stored NAV entries.
func (s *NAVStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nav_entries").Scan(&n)
	return n, err
}

func buildWhere(filter QueryFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.ISIN != "" {
		clauses = append(clauses, "isin = ?")
		args = append(args, filter.ISIN)
	}
	if filter.SeriesNumber != "" {
		clauses = append(clauses, "series_number = ?")
		args = append(args, filter.SeriesNumber)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "nav_date >= ?")
		args = append(args, utils.DateOnly(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "nav_date <= ?")
		args = append(args, utils.DateOnly(filter.To))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNAVRecord(rows rowScanner) (models.NAVRecord, error) {
	var rec models.NAVRecord
	var seriesNumber, fileType, rawRef sql.NullString
	var dateStr, valueStr, ingestedStr string
	if err := rows.Scan(&rec.ID, &rec.ISIN, &seriesNumber, &dateStr, &valueStr,
		&rec.Source, &fileType, &rawRef, &ingestedStr); err != nil {
		return rec, fmt.Errorf("scan nav entry: %w", err)
	}
	rec.SeriesNumber = seriesNumber.String
	rec.FileType = fileType.String
	rec.RawRef = rawRef.String

	navDate, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return rec, fmt.Errorf("stored nav_date %q is not a date: %w", dateStr, err)
	}
	rec.NAVDate = navDate

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return rec, fmt.Errorf("stored nav_value %q is not a decimal: %w", valueStr, err)
	}
	rec.NAVValue = value

	if t, err := time.Parse(time.RFC3339, ingestedStr); err == nil {
		rec.IngestedAt = t
	}
	return rec, nil
}
