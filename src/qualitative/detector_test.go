package qualitative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, csv string) *File {
	t.Helper()
	f, err := ParseFile([]byte(csv))
	require.NoError(t, err)
	return f
}

func TestCompareDetectsAdditionsRemovalsAndUpdates(t *testing.T) {
	master := mustParse(t, strings.Join([]string{
		"ISIN,Series Number,NAV Frequency,Status",
		"XS_A,101,Daily,D",
		"XS_C,103,Monthly,A",
	}, "\n"))
	upload := mustParse(t, strings.Join([]string{
		"ISIN,Series Number,NAV Frequency,Status",
		"XS_A,101,Daily,A",
		"XS_B,102,Weekly,Matured",
	}, "\n"))

	cs := Compare(master, upload, []string{"Series Number", "Status"})

	assert.Equal(t, master.Version, cs.MasterVersion)

	require.Len(t, cs.Additions, 1)
	assert.Equal(t, SeriesRef{ISIN: "XS_B", SeriesNumber: "102", NAVFrequency: "Weekly"}, cs.Additions[0])

	require.Len(t, cs.Removals, 1)
	assert.Equal(t, "XS_C", cs.Removals[0].ISIN)

	require.Contains(t, cs.Updates, "XS_A")
	assert.Equal(t, []FieldDiff{{Field: "Status", Old: "D", New: "A"}}, cs.Updates["XS_A"])
	assert.Equal(t, []string{"XS_A"}, cs.UpdatedISINs)
	assert.False(t, cs.Empty())
}

func TestCompareIdenticalFilesIsEmpty(t *testing.T) {
	content := "ISIN,Series Number,NAV Frequency,Status\nXS_A,101,Daily,A\n"
	cs := Compare(mustParse(t, content), mustParse(t, content), nil)

	assert.True(t, cs.Empty())
	assert.Empty(t, cs.Additions)
	assert.Empty(t, cs.Removals)
	assert.Empty(t, cs.Updates)
}

// Numeric columns must not produce false diffs on formatting changes.
func TestCompareNumericEquality(t *testing.T) {
	master := mustParse(t, "ISIN,Series Number,NAV Frequency,Issuance Principal Amount\nXS_A,101,Daily,5\n")
	upload := mustParse(t, "ISIN,Series Number,NAV Frequency,Issuance Principal Amount\nXS_A,101,Daily,5.0\n")

	cs := Compare(master, upload, []string{"Issuance Principal Amount"})
	assert.True(t, cs.Empty())

	upload = mustParse(t, "ISIN,Series Number,NAV Frequency,Issuance Principal Amount\nXS_A,101,Daily,6\n")
	cs = Compare(master, upload, []string{"Issuance Principal Amount"})
	require.Contains(t, cs.Updates, "XS_A")
}

func TestCompareUntrackedColumnsIgnored(t *testing.T) {
	master := mustParse(t, "ISIN,Series Number,NAV Frequency,Issuer\nXS_A,101,Daily,Old Issuer\n")
	upload := mustParse(t, "ISIN,Series Number,NAV Frequency,Issuer\nXS_A,101,Daily,New Issuer\n")

	// "Issuer" is not in the default watch list.
	cs := Compare(master, upload, nil)
	assert.True(t, cs.Empty())
}

func TestParseFileRejectsDuplicatesAndMissingColumns(t *testing.T) {
	_, err := ParseFile([]byte("ISIN,Series Number,NAV Frequency\nXS_A,1,Daily\nXS_A,2,Daily\n"))
	assert.ErrorContains(t, err, "duplicate ISIN XS_A")

	_, err = ParseFile([]byte("ISIN,Status\nXS_A,A\n"))
	assert.ErrorContains(t, err, "missing required columns")

	_, err = ParseFile([]byte(""))
	assert.Error(t, err)
}

func TestFormatReport(t *testing.T) {
	assert.Equal(t, "No changes detected.", FormatReport(ChangeSet{}))

	cs := ChangeSet{
		Additions:    []SeriesRef{{ISIN: "XS_B", SeriesNumber: "102", NAVFrequency: "Weekly"}},
		Removals:     []SeriesRef{{ISIN: "XS_C"}},
		Updates:      map[string][]FieldDiff{"XS_A": {{Field: "Status", Old: "D", New: "A"}}},
		UpdatedISINs: []string{"XS_A"},
	}
	report := FormatReport(cs)

	assert.Contains(t, report, "New Series Added:")
	assert.Contains(t, report, "- ISIN: XS_B (Series Number: 102, NAV Frequency: Weekly)")
	assert.Contains(t, report, "Series Removed:")
	assert.Contains(t, report, "- ISIN: XS_C (Series Number: N/A, NAV Frequency: N/A)")
	assert.Contains(t, report, "Field Updates:")
	assert.Contains(t, report, "From: D")
	assert.Contains(t, report, "To:   A")
}
