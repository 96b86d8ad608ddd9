package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/sources"
)

func rawRow(line int, fields map[string]string) sources.RawRow {
	return sources.RawRow{
		Source:    "HFMX",
		File:      "CAS_Flexfunds_NAV_07152026 HFMX.csv",
		FileType:  "standard",
		Line:      line,
		FetchedAt: time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		Fields:    fields,
	}
}

func validFields() map[string]string {
	return map[string]string{
		"ISIN":                      "XS1234567890",
		"Series Number":             "101",
		"Valuation Period-End Date": "07/15/2026",
		"NAV":                       "101.25",
		"Frequency":                 "Daily",
	}
}

func TestNormalizeBatchAcceptsValidRow(t *testing.T) {
	res := NormalizeBatch([]sources.RawRow{rawRow(1, validFields())}, nil, Options{})

	require.Len(t, res.Accepted, 1)
	assert.Empty(t, res.Rejected)
	rec := res.Accepted[0]
	assert.Equal(t, "XS1234567890", rec.ISIN)
	assert.Equal(t, "101", rec.SeriesNumber)
	assert.True(t, rec.NAVValue.Equal(decimal.RequireFromString("101.25")))
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), rec.NAVDate)
	assert.Equal(t, "HFMX", rec.Source)
	assert.Equal(t, "CAS_Flexfunds_NAV_07152026 HFMX.csv:1", rec.RawRef)
}

func TestNormalizeBatchRejectionReasons(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		opts    Options
		reason  models.RejectReason
	}{
		{
			name:   "missing ISIN",
			mutate: func(f map[string]string) { f["ISIN"] = "" },
			reason: models.RejectMissingField,
		},
		{
			name:   "missing value",
			mutate: func(f map[string]string) { delete(f, "NAV") },
			reason: models.RejectMissingField,
		},
		{
			name:   "unparseable date",
			mutate: func(f map[string]string) { f["Valuation Period-End Date"] = "not-a-date" },
			reason: models.RejectParseError,
		},
		{
			name:   "unparseable value",
			mutate: func(f map[string]string) { f["NAV"] = "abc" },
			reason: models.RejectParseError,
		},
		{
			name:   "excluded isin",
			mutate: func(f map[string]string) {},
			opts:   Options{ExcludeISINs: map[string]struct{}{"XS1234567890": {}}},
			reason: models.RejectExcludedISIN,
		},
		{
			name:   "negative value",
			mutate: func(f map[string]string) { f["NAV"] = "-1.5" },
			reason: models.RejectInvalidValue,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := validFields()
			tc.mutate(fields)
			res := NormalizeBatch([]sources.RawRow{rawRow(3, fields)}, nil, tc.opts)

			assert.Empty(t, res.Accepted)
			require.Len(t, res.Rejected, 1)
			rej := res.Rejected[0]
			assert.Equal(t, tc.reason, rej.Reason)
			assert.Equal(t, "HFMX", rej.Source)
			assert.Equal(t, 3, rej.Line)
		})
	}
}

// A row that is both excluded and malformed must report the parse error:
// the rules apply in a fixed order.
func TestNormalizeBatchRejectionOrder(t *testing.T) {
	fields := validFields()
	fields["NAV"] = "abc"
	opts := Options{ExcludeISINs: map[string]struct{}{"XS1234567890": {}}}

	res := NormalizeBatch([]sources.RawRow{rawRow(1, fields)}, nil, opts)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, models.RejectParseError, res.Rejected[0].Reason)
}

func TestNormalizeBatchRowProblemsDoNotAbortBatch(t *testing.T) {
	bad := validFields()
	bad["NAV"] = ""
	good := validFields()
	good["ISIN"] = "XS0000000001"

	res := NormalizeBatch([]sources.RawRow{rawRow(1, bad), rawRow(2, good)}, nil, Options{})

	assert.Len(t, res.Accepted, 1)
	assert.Len(t, res.Rejected, 1)
}

func TestNormalizeBatchValueWithThousandsSeparator(t *testing.T) {
	fields := validFields()
	fields["NAV"] = "1,234.56"

	res := NormalizeBatch([]sources.RawRow{rawRow(1, fields)}, nil, Options{})

	require.Len(t, res.Accepted, 1)
	assert.True(t, res.Accepted[0].NAVValue.Equal(decimal.RequireFromString("1234.56")))
}

func TestNormalizeBatchTargetAndDateFiltersAreSilentSkips(t *testing.T) {
	other := validFields()
	other["ISIN"] = "XS9999999999"
	wrongDate := validFields()
	wrongDate["Valuation Period-End Date"] = "07/14/2026"

	opts := Options{
		TargetISINs: map[string]struct{}{"XS1234567890": {}},
		Date:        time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
	}
	res := NormalizeBatch([]sources.RawRow{
		rawRow(1, validFields()),
		rawRow(2, other),
		rawRow(3, wrongDate),
	}, nil, opts)

	assert.Len(t, res.Accepted, 1)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, 2, res.Skipped)
}

func TestNormalizeBatchFileTypeFilter(t *testing.T) {
	hybrid := rawRow(1, validFields())
	hybrid.FileType = "hybrid"
	standard := rawRow(1, validFields())

	res := NormalizeBatch([]sources.RawRow{hybrid, standard}, nil, Options{FileType: "hybrid"})

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "hybrid", res.Accepted[0].FileType)
	assert.Equal(t, 1, res.Skipped)
}

func TestMappingSetFallsBackToDefault(t *testing.T) {
	custom := MappingSet{"CIX": {ISIN: "Isin Code", Date: "Date", Value: "Price"}}

	assert.Equal(t, "Isin Code", custom.For("CIX").ISIN)
	assert.Equal(t, DefaultMapping, custom.For("HFMX"))
	assert.Equal(t, DefaultMapping, MappingSet(nil).For("HFMX"))
}
