package sources

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
)

// FTPSource pulls the day's drop files from one emitter's FTPS server.
// Connections are per-fetch; the source holds no mutable state.
type FTPSource struct {
	emitter string
	cfg     config.FTPConfig
	timeout time.Duration
}

func NewFTPSource(emitter string, cfg config.FTPConfig, timeout time.Duration) *FTPSource {
	return &FTPSource{emitter: emitter, cfg: cfg, timeout: timeout}
}

func (s *FTPSource) Source() string { return s.emitter }

func (s *FTPSource) Fetch(ctx context.Context, date time.Time) ([]RawRow, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.timeout),
		ftp.DialWithExplicitTLS(&tls.Config{ServerName: s.cfg.Host}),
	)
	if err != nil {
		// Connection failures are transient and worth a retry.
		return nil, fmt.Errorf("%w: dial %s for %s: %v", models.ErrSourceUnavailable, addr, s.emitter, err)
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		// Bad credentials are permanent; fail without retry.
		return nil, fmt.Errorf("login to %s as %s: %w", s.emitter, s.cfg.User, err)
	}
	if s.cfg.Directory != "" {
		if err := conn.ChangeDir(s.cfg.Directory); err != nil {
			return nil, fmt.Errorf("change directory %s on %s: %w", s.cfg.Directory, s.emitter, err)
		}
	}

	fetchedAt := time.Now().UTC()
	var rows []RawRow
	for _, nf := range fileNames(s.emitter, date) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := conn.Retr(nf.Name)
		if err != nil {
			if isFileNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("%w: retrieve %s from %s: %v", models.ErrSourceUnavailable, nf.Name, s.emitter, err)
		}
		fileRows, parseErr := parseCSVRows(s.emitter, nf.Name, nf.FileType, resp, fetchedAt)
		resp.Close()
		if parseErr != nil {
			return nil, parseErr
		}
		logger.L.Debug("Downloaded FTP drop file", "emitter", s.emitter, "file", nf.Name, "rows", len(fileRows))
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

// isFileNotFound reports whether the FTP error is a 550, meaning the drop
// file is not there yet.
func isFileNotFound(err error) bool {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code == ftp.StatusFileUnavailable
	}
	return false
}
