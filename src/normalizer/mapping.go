package normalizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// ColumnMapping names the raw CSV headers that carry each canonical field
// for one source. Layouts differ per upstream, so this is configuration,
// not code.
type ColumnMapping struct {
	ISIN         string
	SeriesNumber string
	Date         string
	Value        string
	Frequency    string
}

// DefaultMapping matches the consolidated drop layout every current emitter
// uses. Sources with their own layout override it in the mapping set.
var DefaultMapping = ColumnMapping{
	ISIN:         "ISIN",
	SeriesNumber: "Series Number",
	Date:         "Valuation Period-End Date",
	Value:        "NAV",
	Frequency:    "Frequency",
}

// MappingSet holds per-source column mappings keyed by source id.
type MappingSet map[string]ColumnMapping

// For returns the mapping for a source, falling back to the default layout.
func (m MappingSet) For(source string) ColumnMapping {
	if m != nil {
		if mapping, ok := m[source]; ok {
			return mapping
		}
	}
	return DefaultMapping
}

// LoadExcludeISINs reads the one-column exclusion list. A missing file means
// nothing is excluded.
func LoadExcludeISINs(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("open exclude list %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	excluded := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read exclude list %s: %w", path, err)
		}
		if len(record) == 0 {
			continue
		}
		isin := strings.TrimSpace(record[0])
		if isin != "" {
			excluded[isin] = struct{}{}
		}
	}
	return excluded, nil
}
