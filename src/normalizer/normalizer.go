package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/sources"
	"github.com/username/navhub/src/utils"
)

// Options narrows a normalization batch. All fields are optional.
type Options struct {
	// ExcludeISINs drops matching rows with reason excluded_isin.
	ExcludeISINs map[string]struct{}
	// TargetISINs, when non-nil, keeps only matching rows (silent skip).
	TargetISINs map[string]struct{}
	// Date, when non-zero, keeps only rows valued on that date (silent skip).
	Date time.Time
	// FileType, when set, keeps only rows from that drop file type.
	FileType string
}

// Result is the outcome of one batch normalization. Row-level problems are
// collected, never raised.
type Result struct {
	Accepted []models.NAVRecord
	Rejected []models.RejectedRow
	Skipped  int // filtered out by target/date/file-type, not a data problem
}

// NormalizeBatch converts raw rows into canonical NAV records, applying the
// per-source column mapping and the validation rules in order: missing
// field, parse error, exclusion list, value bounds.
func NormalizeBatch(rows []sources.RawRow, mappings MappingSet, opts Options) Result {
	var res Result
	for _, row := range rows {
		mapping := mappings.For(row.Source)

		if opts.FileType != "" && row.FileType != opts.FileType {
			res.Skipped++
			continue
		}

		isin := row.Fields[mapping.ISIN]
		dateStr := row.Fields[mapping.Date]
		valueStr := row.Fields[mapping.Value]

		if isin == "" || dateStr == "" || valueStr == "" {
			res.Rejected = append(res.Rejected, reject(row, models.RejectMissingField,
				missingDetail(mapping, isin, dateStr, valueStr)))
			continue
		}

		navDate, err := utils.ParseNAVDate(dateStr)
		if err != nil {
			res.Rejected = append(res.Rejected, reject(row, models.RejectParseError,
				fmt.Sprintf("date: %v", err)))
			continue
		}

		value, err := decimal.NewFromString(strings.ReplaceAll(valueStr, ",", ""))
		if err != nil {
			res.Rejected = append(res.Rejected, reject(row, models.RejectParseError,
				fmt.Sprintf("value %q: not a number", valueStr)))
			continue
		}

		if _, excluded := opts.ExcludeISINs[isin]; excluded {
			// Silently dropped per the exclusion list; reported but not an error.
			res.Rejected = append(res.Rejected, reject(row, models.RejectExcludedISIN, isin))
			continue
		}

		if value.IsNegative() {
			res.Rejected = append(res.Rejected, reject(row, models.RejectInvalidValue,
				fmt.Sprintf("negative NAV %s", value.String())))
			continue
		}

		if opts.TargetISINs != nil {
			if _, ok := opts.TargetISINs[isin]; !ok {
				res.Skipped++
				continue
			}
		}
		if !opts.Date.IsZero() && !navDate.Equal(opts.Date) {
			res.Skipped++
			continue
		}

		res.Accepted = append(res.Accepted, models.NAVRecord{
			ISIN:         isin,
			SeriesNumber: row.Fields[mapping.SeriesNumber],
			NAVDate:      navDate,
			NAVValue:     value,
			Source:       row.Source,
			FileType:     row.FileType,
			IngestedAt:   row.FetchedAt,
			RawRef:       fmt.Sprintf("%s:%d", row.File, row.Line),
		})
	}
	return res
}

func reject(row sources.RawRow, reason models.RejectReason, detail string) models.RejectedRow {
	return models.RejectedRow{
		Source: row.Source,
		File:   row.File,
		Line:   row.Line,
		Reason: reason,
		Detail: detail,
	}
}

func missingDetail(mapping ColumnMapping, isin, date, value string) string {
	var missing []string
	if isin == "" {
		missing = append(missing, mapping.ISIN)
	}
	if date == "" {
		missing = append(missing, mapping.Date)
	}
	if value == "" {
		missing = append(missing, mapping.Value)
	}
	return "missing " + strings.Join(missing, ", ")
}
