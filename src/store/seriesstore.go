package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/utils"
)

// SeriesStore reads series attributes and replaces them wholesale when the
// qualitative commit step runs. Nothing else writes to these tables.
type SeriesStore struct {
	db *sql.DB
}

func NewSeriesStore(db *sql.DB) *SeriesStore {
	return &SeriesStore{db: db}
}

// SeriesByISINs returns series attributes keyed by ISIN for the given set.
func (s *SeriesStore) SeriesByISINs(ctx context.Context, isins []string) (map[string]models.Series, error) {
	result := make(map[string]models.Series, len(isins))
	if len(isins) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(isins)), ",")
	args := make([]any, len(isins))
	for i, isin := range isins {
		args[i] = isin
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT isin, common_code, series_number, series_name, status, currency, nav_frequency, series_region
		 FROM series WHERE isin IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sr models.Series
		var commonCode, seriesNumber, status, currency, frequency, region sql.NullString
		if err := rows.Scan(&sr.ISIN, &commonCode, &seriesNumber, &sr.SeriesName,
			&status, &currency, &frequency, &region); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		sr.CommonCode = commonCode.String
		sr.SeriesNumber = seriesNumber.String
		sr.Status = models.SeriesStatus(status.String)
		sr.Currency = currency.String
		sr.NAVFrequency = models.NAVFrequency(frequency.String)
		sr.Region = region.String
		result[sr.ISIN] = sr
	}
	return result, rows.Err()
}

// ActiveISINsByFrequency returns the ISINs of active series with the given
// NAV frequency. Used for frequency-based ingest filters.
func (s *SeriesStore) ActiveISINsByFrequency(ctx context.Context, frequency models.NAVFrequency) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT isin FROM series WHERE UPPER(nav_frequency) = UPPER(?) AND status = ?`,
		string(frequency), string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query series by frequency: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// ActiveISINsByProductType returns the ISINs of active series whose product
// type contains the given fragment (e.g. "Wrappers Hybrid", "Loan").
func (s *SeriesStore) ActiveISINsByProductType(ctx context.Context, productType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT isin FROM series WHERE product_type LIKE ? AND status = ?`,
		"%"+productType+"%", string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("query series by product type: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// CountSeries returns the total number of series rows.
func (s *SeriesStore) CountSeries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM series").Scan(&n)
	return n, err
}

// ReplaceAll swaps the series, custodian and fee tables for the given rows
// inside one transaction. Called only by the qualitative commit step, after
// the master file itself has been replaced.
func (s *SeriesStore) ReplaceAll(ctx context.Context, series []models.Series,
	custodians []models.Custodian, fees []models.FeeStructure) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin series replace: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"fee_structures", "custodians", "series"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	seriesStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO series (isin, common_code, series_number, series_name, status, issuance_type,
			product_type, issuance_date, maturity_date, close_date, issuer, series_region,
			portfolio_manager, asset_manager, currency, nav_frequency, issuance_principal_amount,
			fees_frequency, payment_method, underlying_valuation_cycle)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare series insert: %w", err)
	}
	defer seriesStmt.Close()

	for _, sr := range series {
		_, err := seriesStmt.ExecContext(ctx, sr.ISIN, sr.CommonCode, sr.SeriesNumber, sr.SeriesName,
			string(sr.Status), sr.IssuanceType, sr.ProductType,
			dateOrNil(sr.IssuanceDate), dateOrNil(sr.MaturityDate), dateOrNil(sr.CloseDate),
			sr.Issuer, sr.Region, sr.PortfolioManager, sr.AssetManager, sr.Currency,
			string(sr.NAVFrequency), sr.IssuancePrincipalAmount, sr.FeesFrequency,
			sr.PaymentMethod, sr.UnderlyingValuationCycle)
		if err != nil {
			return fmt.Errorf("insert series %s: %w", sr.ISIN, err)
		}
	}

	for _, c := range custodians {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO custodians (series_isin, custodian_name, account_number) VALUES (?, ?, ?)`,
			c.SeriesISIN, c.CustodianName, c.AccountNumber)
		if err != nil {
			return fmt.Errorf("insert custodian for %s: %w", c.SeriesISIN, err)
		}
	}

	for _, f := range fees {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fee_structures (series_isin, fee_type, fee_category, fee_percentage, fixed_amount, currency, notes)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.SeriesISIN, f.FeeType, string(f.Category), f.FeePercentage, f.FixedAmount, f.Currency, f.Notes)
		if err != nil {
			return fmt.Errorf("insert fee for %s: %w", f.SeriesISIN, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit series replace: %w", err)
	}
	return nil
}

func dateOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return utils.DateOnly(*t)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
