package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
)

// DriveSource pulls the day's drop files from a cloud-drive folder exposed
// through per-file export URLs (BaseURL/<filename>), authenticated with a
// bearer token.
type DriveSource struct {
	emitter string
	cfg     config.DriveConfig
	client  *http.Client
}

func NewDriveSource(emitter string, cfg config.DriveConfig, timeout time.Duration) *DriveSource {
	return &DriveSource{
		emitter: emitter,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *DriveSource) Source() string { return s.emitter }

func (s *DriveSource) Fetch(ctx context.Context, date time.Time) ([]RawRow, error) {
	fetchedAt := time.Now().UTC()
	var rows []RawRow
	for _, nf := range fileNames(s.emitter, date) {
		fileRows, err := s.fetchFile(ctx, nf, fetchedAt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func (s *DriveSource) fetchFile(ctx context.Context, nf namedFile, fetchedAt time.Time) ([]RawRow, error) {
	fileURL := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + url.PathEscape(nf.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build drive request for %s: %w", nf.Name, err)
	}
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s from drive for %s: %v", models.ErrSourceUnavailable, nf.Name, s.emitter, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not dropped yet.
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("drive access denied for %s (status %d)", s.emitter, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: drive returned status %d for %s", models.ErrSourceUnavailable, resp.StatusCode, nf.Name)
	}

	fileRows, err := parseCSVRows(s.emitter, nf.Name, nf.FileType, resp.Body, fetchedAt)
	if err != nil {
		return nil, err
	}
	logger.L.Debug("Downloaded drive file", "emitter", s.emitter, "file", nf.Name, "rows", len(fileRows))
	return fileRows, nil
}
