package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/models"
)

// RawRow is one table row as fetched from a source, before normalization.
// It carries full provenance so rejections can name their origin.
type RawRow struct {
	Source    string // emitter id, e.g. "HFMX"
	File      string
	FileType  string // standard, hybrid or loan
	Line      int    // 1-based line in the source file, header excluded
	FetchedAt time.Time
	Fields    map[string]string // raw column header -> cell value
}

// Fetcher pulls raw NAV rows for one emitter. Implementations must behave
// identically from the normalizer's perspective regardless of transport.
type Fetcher interface {
	Source() string
	// Fetch returns every raw row available for the given run date. A file
	// that simply is not there yet is not an error; connection and auth
	// failures are.
	Fetch(ctx context.Context, date time.Time) ([]RawRow, error)
}

// The upstream drop uses three filename shapes per emitter and date.
var filePatterns = []struct {
	FileType string
	Pattern  string // fmt verbs: date MMDDYYYY, emitter
}{
	{"standard", "CAS_Flexfunds_NAV_%s %s.csv"},
	{"hybrid", "CAS_Flexfunds_NAV_%s Wrappers Hybrid %s.csv"},
	{"loan", "CAS_Flexfunds_NAV_%s Loan %s.csv"},
}

type namedFile struct {
	Name     string
	FileType string
}

func fileNames(emitter string, date time.Time) []namedFile {
	dateStr := date.Format("01022006")
	files := make([]namedFile, 0, len(filePatterns))
	for _, p := range filePatterns {
		files = append(files, namedFile{
			Name:     fmt.Sprintf(p.Pattern, dateStr, emitter),
			FileType: p.FileType,
		})
	}
	return files
}

// parseCSVRows turns one fetched CSV payload into raw rows. An empty or
// header-only file escalates as a batch-level validation failure.
func parseCSVRows(source, file, fileType string, r io.Reader, fetchedAt time.Time) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file %s is empty", models.ErrBatchInvalid, file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header of %s: %v", models.ErrBatchInvalid, file, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []RawRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s line %d: %v", models.ErrBatchInvalid, file, line+1, err)
		}
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" || strings.HasPrefix(h, "Unnamed") {
				continue
			}
			if i < len(record) {
				fields[h] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, RawRow{
			Source:    source,
			File:      file,
			FileType:  fileType,
			Line:      line,
			FetchedAt: fetchedAt,
			Fields:    fields,
		})
		line++
	}
	return rows, nil
}

// NewFetchers builds one fetcher per configured emitter for the configured
// source mode.
func NewFetchers(cfg *config.AppConfig) ([]Fetcher, error) {
	var fetchers []Fetcher
	switch cfg.SourceMode {
	case "local":
		for _, emitter := range cfg.Emitters {
			fetchers = append(fetchers, NewLocalSource(emitter, cfg.InputDir))
		}
	case "ftp":
		for _, emitter := range cfg.Emitters {
			ftpCfg, ok := cfg.FTPConfigs[emitter]
			if !ok {
				return nil, fmt.Errorf("no FTP configuration for emitter %s", emitter)
			}
			fetchers = append(fetchers, NewFTPSource(emitter, ftpCfg, cfg.FetchTimeout))
		}
	case "drive":
		for _, emitter := range cfg.Emitters {
			driveCfg, ok := cfg.DriveConfigs[emitter]
			if !ok {
				return nil, fmt.Errorf("no drive configuration for emitter %s", emitter)
			}
			fetchers = append(fetchers, NewDriveSource(emitter, driveCfg, cfg.FetchTimeout))
		}
	default:
		return nil, fmt.Errorf("unknown source mode: %s", cfg.SourceMode)
	}
	return fetchers, nil
}
