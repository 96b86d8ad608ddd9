package qualitative

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
)

// SeriesSyncer mirrors a committed master file into the reconciliation
// store's series tables.
type SeriesSyncer interface {
	ReplaceAll(ctx context.Context, series []models.Series,
		custodians []models.Custodian, fees []models.FeeStructure) error
}

// CommitResult describes a successful master-file replacement.
type CommitResult struct {
	Changes    ChangeSet `json:"changes"`
	BackupPath string    `json:"backupPath"`
	NewVersion string    `json:"newVersion"`
}

// Manager owns the master qualitative file. Compare is read-only and may run
// concurrently; Commit is single-writer and verifies the caller's version
// token against the master bytes on disk, so a compare→commit window that
// races another commit fails with ErrCommitConflict instead of silently
// overwriting.
type Manager struct {
	mu          sync.Mutex
	masterPath  string
	keepBackups int
	syncer      SeriesSyncer

	// Replaceable for fault-injection in tests.
	renameFile func(oldpath, newpath string) error
}

func NewManager(masterPath string, keepBackups int, syncer SeriesSyncer) *Manager {
	if keepBackups < 1 {
		keepBackups = 5
	}
	return &Manager{
		masterPath:  masterPath,
		keepBackups: keepBackups,
		syncer:      syncer,
		renameFile:  os.Rename,
	}
}

// Load reads and parses the current master file.
func (m *Manager) Load() (*File, error) {
	data, err := os.ReadFile(m.masterPath)
	if err != nil {
		return nil, fmt.Errorf("read master file %s: %w", m.masterPath, err)
	}
	return ParseFile(data)
}

// Compare diffs an uploaded qualitative file against the current master.
func (m *Manager) Compare(upload []byte, trackedFields []string) (ChangeSet, error) {
	master, err := m.Load()
	if err != nil {
		return ChangeSet{}, err
	}
	uploadFile, err := ParseFile(upload)
	if err != nil {
		return ChangeSet{}, err
	}
	return Compare(master, uploadFile, trackedFields), nil
}

// Commit replaces the master file with the upload. The version token must
// match the SHA-256 of the current master bytes; before replacement the
// current master is copied to a timestamped backup, and the replacement
// itself is write-temp-then-rename so a failure partway leaves the prior
// master intact with the backup already on disk.
func (m *Manager) Commit(ctx context.Context, upload []byte, version string, trackedFields []string) (*CommitResult, error) {
	uploadFile, err := ParseFile(upload)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	masterData, err := os.ReadFile(m.masterPath)
	if err != nil {
		return nil, fmt.Errorf("read master file %s: %w", m.masterPath, err)
	}
	if current := HashBytes(masterData); current != version {
		return nil, fmt.Errorf("%w: expected version %.12s, master is at %.12s; recompute the comparison",
			models.ErrCommitConflict, version, current)
	}
	masterFile, err := ParseFile(masterData)
	if err != nil {
		return nil, err
	}

	changes := Compare(masterFile, uploadFile, trackedFields)

	backupPath, err := m.writeBackup(masterData)
	if err != nil {
		return nil, err
	}
	m.pruneBackups()

	if err := m.replaceMaster(upload); err != nil {
		return nil, err
	}

	if m.syncer != nil {
		series, custodians, fees := ExtractSeries(uploadFile)
		if err := m.syncer.ReplaceAll(ctx, series, custodians, fees); err != nil {
			// The file is the source of truth and is already committed; a
			// store sync failure is surfaced, not rolled into the file.
			return nil, fmt.Errorf("master file committed but store sync failed: %w", err)
		}
	}

	logger.L.Info("Master file committed",
		"additions", len(changes.Additions),
		"removals", len(changes.Removals),
		"updates", len(changes.Updates),
		"backup", backupPath)

	return &CommitResult{
		Changes:    changes,
		BackupPath: backupPath,
		NewVersion: HashBytes(upload),
	}, nil
}

func (m *Manager) backupDir() string {
	return filepath.Join(filepath.Dir(m.masterPath), "backups")
}

func (m *Manager) backupPattern() (prefix, ext string) {
	base := filepath.Base(m.masterPath)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_backup_", ext
}

func (m *Manager) writeBackup(masterData []byte) (string, error) {
	dir := m.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory %s: %w", dir, err)
	}
	prefix, ext := m.backupPattern()
	backupPath := filepath.Join(dir, prefix+time.Now().Format("20060102_150405")+ext)
	if err := os.WriteFile(backupPath, masterData, 0o644); err != nil {
		return "", fmt.Errorf("write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// pruneBackups keeps only the most recent keepBackups copies. Best-effort;
// a failed removal is logged and skipped.
func (m *Manager) pruneBackups() {
	prefix, ext := m.backupPattern()
	entries, err := filepath.Glob(filepath.Join(m.backupDir(), prefix+"*"+ext))
	if err != nil || len(entries) <= m.keepBackups {
		return
	}
	// Timestamped names sort chronologically.
	sort.Strings(entries)
	for _, path := range entries[:len(entries)-m.keepBackups] {
		if err := os.Remove(path); err != nil {
			logger.L.Warn("Failed to remove old backup", "path", path, "error", err)
		}
	}
}

func (m *Manager) replaceMaster(upload []byte) error {
	dir := filepath.Dir(m.masterPath)
	tmp, err := os.CreateTemp(dir, ".master-*")
	if err != nil {
		return fmt.Errorf("create temp master file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(upload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp master file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp master file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp master file: %w", err)
	}
	if err := m.renameFile(tmpName, m.masterPath); err != nil {
		return fmt.Errorf("replace master file: %w", err)
	}
	return nil
}
