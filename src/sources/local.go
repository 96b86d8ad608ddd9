package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/username/navhub/src/logger"
)

// LocalSource scans a per-emitter subdirectory of the input directory for
// the day's drop files.
type LocalSource struct {
	emitter string
	baseDir string
}

func NewLocalSource(emitter, baseDir string) *LocalSource {
	return &LocalSource{emitter: emitter, baseDir: baseDir}
}

func (s *LocalSource) Source() string { return s.emitter }

func (s *LocalSource) Fetch(ctx context.Context, date time.Time) ([]RawRow, error) {
	dir := filepath.Join(s.baseDir, s.emitter)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// No drop directory for this emitter yet: no data, not an error.
			return nil, nil
		}
		return nil, fmt.Errorf("stat input directory %s: %w", dir, err)
	}

	fetchedAt := time.Now().UTC()
	var rows []RawRow
	for _, nf := range fileNames(s.emitter, date) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, nf.Name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		fileRows, err := parseCSVRows(s.emitter, nf.Name, nf.FileType, f, fetchedAt)
		f.Close()
		if err != nil {
			return nil, err
		}
		logger.L.Debug("Read local drop file", "emitter", s.emitter, "file", nf.Name, "rows", len(fileRows))
		rows = append(rows, fileRows...)
	}
	return rows, nil
}
