package qualitative

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTrackedFields are the columns whose changes operators care about,
// in report order. The set is configuration; this default mirrors the
// distribution team's current watch list.
var DefaultTrackedFields = []string{
	"Series Number",
	"Series Name",
	"Status",
	"Issuance Date",
	"Scheduled Maturity Date",
	"Close Date",
	"Portfolio Manager",
	"Asset Manager",
	"Currency",
	"NAV Frequency",
	"Issuance Principal Amount",
}

// FieldDiff is one field-level change on an existing series.
type FieldDiff struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// SeriesRef identifies a series in an addition/removal listing.
type SeriesRef struct {
	ISIN         string `json:"isin"`
	SeriesNumber string `json:"seriesNumber,omitempty"`
	NAVFrequency string `json:"navFrequency,omitempty"`
}

// ChangeSet is the structured diff between an uploaded qualitative file and
// the master file. It is computed per request and never persisted; the
// MasterVersion token ties it to the exact master bytes it was diffed
// against.
type ChangeSet struct {
	MasterVersion string                 `json:"masterVersion"`
	Additions     []SeriesRef            `json:"additions"` // upload order
	Removals      []SeriesRef            `json:"removals"`  // master order
	Updates       map[string][]FieldDiff `json:"updates"`
	UpdatedISINs  []string               `json:"updatedIsins"` // master order, keys of Updates
}

// Empty reports whether the comparison found no changes at all.
func (cs ChangeSet) Empty() bool {
	return len(cs.Additions) == 0 && len(cs.Removals) == 0 && len(cs.Updates) == 0
}

// Compare diffs an upload against the master by identifier set difference
// and, for common identifiers, field-by-field equality over the tracked
// columns. Read-only and side-effect free; safe to call repeatedly.
func Compare(master, upload *File, trackedFields []string) ChangeSet {
	if trackedFields == nil {
		trackedFields = DefaultTrackedFields
	}

	cs := ChangeSet{
		MasterVersion: master.Version,
		Updates:       make(map[string][]FieldDiff),
	}

	for _, row := range upload.Rows {
		if _, ok := master.Lookup(row.ISIN); !ok {
			cs.Additions = append(cs.Additions, refFor(row))
		}
	}

	for _, row := range master.Rows {
		uploadRow, ok := upload.Lookup(row.ISIN)
		if !ok {
			cs.Removals = append(cs.Removals, refFor(row))
			continue
		}
		var diffs []FieldDiff
		for _, field := range trackedFields {
			oldValue := row.Get(field)
			newValue := uploadRow.Get(field)
			if !equalValues(oldValue, newValue) {
				diffs = append(diffs, FieldDiff{Field: field, Old: oldValue, New: newValue})
			}
		}
		if len(diffs) > 0 {
			cs.Updates[row.ISIN] = diffs
			cs.UpdatedISINs = append(cs.UpdatedISINs, row.ISIN)
		}
	}
	return cs
}

func refFor(row Row) SeriesRef {
	return SeriesRef{
		ISIN:         row.ISIN,
		SeriesNumber: row.Get("Series Number"),
		NAVFrequency: row.Get("NAV Frequency"),
	}
}

// equalValues compares two field values case-sensitively and type-aware:
// values that both parse as decimals compare numerically, so "5" and "5.0"
// are not a false-positive diff.
func equalValues(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		return da.Equal(db)
	}
	return false
}

// FormatReport renders a ChangeSet as the operator-facing text report.
func FormatReport(cs ChangeSet) string {
	if cs.Empty() {
		return "No changes detected."
	}

	var b strings.Builder
	b.WriteString("Change Report\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")

	if len(cs.Additions) > 0 {
		b.WriteString("\nNew Series Added:\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, ref := range cs.Additions {
			fmt.Fprintf(&b, "- ISIN: %s (Series Number: %s, NAV Frequency: %s)\n",
				ref.ISIN, orNA(ref.SeriesNumber), orNA(ref.NAVFrequency))
		}
	}

	if len(cs.Removals) > 0 {
		b.WriteString("\nSeries Removed:\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, ref := range cs.Removals {
			fmt.Fprintf(&b, "- ISIN: %s (Series Number: %s, NAV Frequency: %s)\n",
				ref.ISIN, orNA(ref.SeriesNumber), orNA(ref.NAVFrequency))
		}
	}

	if len(cs.UpdatedISINs) > 0 {
		b.WriteString("\nField Updates:\n")
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, isin := range cs.UpdatedISINs {
			fmt.Fprintf(&b, "\nISIN: %s\n", isin)
			for _, diff := range cs.Updates[isin] {
				fmt.Fprintf(&b, "  - %s:\n    From: %s\n    To:   %s\n",
					diff.Field, orNA(diff.Old), orNA(diff.New))
			}
		}
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
