package renderer

import (
	"fmt"
	"time"
)

// TemplateType selects which distribution artifact a render produces.
type TemplateType string

const (
	TemplateMorningstar TemplateType = "morningstar"
	TemplateSIX         TemplateType = "six"
)

// Field names one canonical value the renderer can place into a cell.
type Field string

const (
	FieldISIN       Field = "isin"
	FieldSeriesName Field = "series_name"
	FieldDate       Field = "valuation_date"
	FieldNAV        Field = "nav"
	FieldCurrency   Field = "currency"
	FieldFrequency  Field = "nav_frequency"
)

// CellMap is the static placement configuration for one template type. It is
// built once and never mutated at runtime.
type CellMap struct {
	Type TemplateType
	// Sheet is the worksheet to write into; empty means the first sheet.
	Sheet string
	// HeaderDateCell, when set, receives the run date (e.g. "F2").
	HeaderDateCell string
	// StartRow is the first data row (1-based).
	StartRow int
	// Columns maps canonical fields to column letters.
	Columns map[Field]string
	// Constants are fixed per-row values keyed by column letter.
	Constants map[string]string
	// NeedsSeries marks maps that join against series attributes; records
	// without a known series leave their row unfilled.
	NeedsSeries bool
}

// MorningstarCellMap matches the Morningstar performance template: run date
// in F2, data from row 9 with ISIN in A, valuation date in F, NAV in H.
func MorningstarCellMap() CellMap {
	return CellMap{
		Type:           TemplateMorningstar,
		Sheet:          "NAVs",
		HeaderDateCell: "F2",
		StartRow:       9,
		Columns: map[Field]string{
			FieldISIN: "A",
			FieldDate: "F",
			FieldNAV:  "H",
		},
	}
}

// SIXCellMap matches the SIX Financial price template: data from row 2 with
// series name, ISIN, date, currency, NAV, a fixed instrument class, and the
// valuation frequency across columns A to G.
func SIXCellMap() CellMap {
	return CellMap{
		Type:     TemplateSIX,
		StartRow: 2,
		Columns: map[Field]string{
			FieldSeriesName: "A",
			FieldISIN:       "B",
			FieldDate:       "C",
			FieldCurrency:   "D",
			FieldNAV:        "E",
			FieldFrequency:  "G",
		},
		Constants: map[string]string{
			"F": "Structured Products",
		},
		NeedsSeries: true,
	}
}

// CellMapFor returns the built-in cell map for a template type.
func CellMapFor(t TemplateType) (CellMap, error) {
	switch t {
	case TemplateMorningstar:
		return MorningstarCellMap(), nil
	case TemplateSIX:
		return SIXCellMap(), nil
	default:
		return CellMap{}, fmt.Errorf("unknown template type: %s", t)
	}
}

// OutputFileName encodes template type and date into the artifact name, in
// the shape the downstream distributors expect.
func OutputFileName(t TemplateType, date time.Time) string {
	switch t {
	case TemplateSIX:
		return fmt.Sprintf("LAM_SFI_Price - %s.xlsx", date.Format("2006.01.02"))
	default:
		return fmt.Sprintf("Flexfunds ETPs - NAVs %s.xlsx", date.Format("01.02.2006"))
	}
}
