package qualitative

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/username/navhub/src/models"
)

// Columns every qualitative file must carry. The rest of the column set is
// whatever the file brings; comparison only inspects the tracked fields.
var requiredColumns = []string{"ISIN", "Series Number", "NAV Frequency"}

// Row is one series line from a qualitative file.
type Row struct {
	ISIN   string
	Fields map[string]string
}

// Get returns a field value, empty when the column is absent.
func (r Row) Get(column string) string {
	return r.Fields[column]
}

// File is a parsed qualitative data file. Rows keep file order; Version is
// the SHA-256 of the raw bytes and doubles as the optimistic-concurrency
// token for commits.
type File struct {
	Columns []string
	Rows    []Row
	Version string

	index map[string]int
}

// Lookup returns the row for an identifier.
func (f *File) Lookup(isin string) (Row, bool) {
	i, ok := f.index[isin]
	if !ok {
		return Row{}, false
	}
	return f.Rows[i], true
}

// HashBytes computes the version token for a raw qualitative file.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParseFile parses a qualitative CSV keyed by the ISIN column. Duplicate
// identifiers and missing required columns escalate as batch-level failures.
func ParseFile(data []byte) (*File, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: qualitative file is empty", models.ErrBatchInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading qualitative header: %v", models.ErrBatchInvalid, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", models.ErrBatchInvalid, strings.Join(missing, ", "))
	}

	file := &File{
		Columns: header,
		Version: HashBytes(data),
		index:   make(map[string]int),
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading qualitative line %d: %v", models.ErrBatchInvalid, line+1, err)
		}
		line++

		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				fields[h] = strings.TrimSpace(record[i])
			}
		}
		isin := fields["ISIN"]
		if isin == "" {
			continue
		}
		if _, dup := file.index[isin]; dup {
			return nil, fmt.Errorf("%w: duplicate ISIN %s at line %d", models.ErrBatchInvalid, isin, line)
		}
		file.index[isin] = len(file.Rows)
		file.Rows = append(file.Rows, Row{ISIN: isin, Fields: fields})
	}
	return file, nil
}
