// Package storage provides file-based JSON persistence for FundKeeper.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/ledger"
	"github.com/ldsbg/fundkeeper/internal/models"
)

// FileStore provides file-based JSON storage with optional versioning.
type FileStore struct {
	basePath string
	versions int
	logger   *common.Logger
}

// subdirectories defines the directory layout under basePath.
var subdirectories = []string{"ledgers", "market", "charts"}

// NewFileStore creates a new FileStore and ensures all subdirectories exist.
func NewFileStore(logger *common.Logger, config *common.StorageConfig) (*FileStore, error) {
	versions := config.Versions
	if versions < 0 {
		versions = 0
	}

	fs := &FileStore{
		basePath: config.Path,
		versions: versions,
		logger:   logger,
	}

	for _, sub := range subdirectories {
		dir := filepath.Join(fs.basePath, sub)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger.Debug().Str("path", config.Path).Int("versions", versions).Msg("FileStore opened")
	return fs, nil
}

// sanitizeKey makes a key safe for use as a filename.
// Replaces /, \, : with _ and collapses ".." to "_" to prevent path traversal.
func (fs *FileStore) sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

// filePath returns the full path for a key in a directory.
func (fs *FileStore) filePath(dir, key string) string {
	return filepath.Join(dir, fs.sanitizeKey(key)+".json")
}

// readJSON reads and unmarshals a JSON file.
func (fs *FileStore) readJSON(dir, key string, dest interface{}) error {
	path := fs.filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("'%s' not found", key)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("'%s' is empty", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON marshals data to indented JSON and writes it atomically.
// If versioned is true and fs.versions > 0, rotates previous versions
// before overwriting. Ledger documents are versioned; cached market data
// is not.
func (fs *FileStore) writeJSON(dir, key string, data interface{}, versioned bool) error {
	target := fs.filePath(dir, key)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	if versioned && fs.versions > 0 {
		fs.rotateVersions(target)
	}

	// Atomic write: write to temp file in the same directory, then rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(jsonData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// rotateVersions shifts existing versions up and copies current to v1.
// v{N} -> deleted, v{N-1} -> v{N}, ..., v1 -> v2, current -> v1
func (fs *FileStore) rotateVersions(target string) {
	oldest := fmt.Sprintf("%s.v%d", target, fs.versions)
	os.Remove(oldest)

	for i := fs.versions; i > 1; i-- {
		src := fmt.Sprintf("%s.v%d", target, i-1)
		dst := fmt.Sprintf("%s.v%d", target, i)
		os.Rename(src, dst) // Ignore errors (file may not exist yet)
	}

	if _, err := os.Stat(target); err == nil {
		v1 := fmt.Sprintf("%s.v1", target)
		os.Rename(target, v1)
	}
}

// deleteJSON removes a file and all its version backups.
func (fs *FileStore) deleteJSON(dir, key string) error {
	target := fs.filePath(dir, key)

	os.Remove(target)
	for i := 1; i <= fs.versions; i++ {
		os.Remove(fmt.Sprintf("%s.v%d", target, i))
	}

	return nil
}

// listKeys returns all keys in a directory (excluding version files and temp files).
func (fs *FileStore) listKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}

// WriteRaw writes arbitrary binary data atomically using temp file + rename.
// The key is sanitized for safe filenames (e.g. "alice.png").
func (fs *FileStore) WriteRaw(subdir, key string, data []byte) error {
	dir := filepath.Join(fs.basePath, subdir)
	target := filepath.Join(dir, fs.sanitizeKey(key))

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// --- Ledger Storage ---

type ledgerStorage struct {
	fs     *FileStore
	dir    string
	logger *common.Logger
}

func newLedgerStorage(fs *FileStore, logger *common.Logger) *ledgerStorage {
	return &ledgerStorage{fs: fs, dir: filepath.Join(fs.basePath, "ledgers"), logger: logger}
}

// Load returns the user's ledger document. A missing, empty, or
// unparsable file yields a fresh empty ledger so a corrupted document
// never locks a user out of the dashboard.
func (s *ledgerStorage) Load(ctx context.Context, user string) (*ledger.Ledger, error) {
	var l ledger.Ledger
	if err := s.fs.readJSON(s.dir, user, &l); err != nil {
		s.logger.Debug().Str("user", user).Err(err).Msg("Ledger not readable, starting empty")
		return ledger.New(user), nil
	}
	l.User = user
	l.Normalize()
	return &l, nil
}

func (s *ledgerStorage) Save(ctx context.Context, l *ledger.Ledger) error {
	if l.User == "" {
		return fmt.Errorf("ledger has no user")
	}
	l.UpdatedAt = time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	if err := s.fs.writeJSON(s.dir, l.User, l, true); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	s.logger.Debug().Str("user", l.User).Int("holdings", len(l.Holdings)).Msg("Ledger saved")
	return nil
}

func (s *ledgerStorage) Delete(ctx context.Context, user string) error {
	s.fs.deleteJSON(s.dir, user)
	s.logger.Debug().Str("user", user).Msg("Ledger deleted")
	return nil
}

func (s *ledgerStorage) ListUsers(ctx context.Context) ([]string, error) {
	keys, err := s.fs.listKeys(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}
	return keys, nil
}

// --- Market Data Storage ---

type marketDataStorage struct {
	fs     *FileStore
	dir    string
	logger *common.Logger
}

func newMarketDataStorage(fs *FileStore, logger *common.Logger) *marketDataStorage {
	return &marketDataStorage{fs: fs, dir: filepath.Join(fs.basePath, "market"), logger: logger}
}

func (s *marketDataStorage) GetNavHistory(ctx context.Context, fundID string) (*models.NavHistory, error) {
	var history models.NavHistory
	if err := s.fs.readJSON(s.dir, fundID, &history); err != nil {
		return nil, fmt.Errorf("nav history for '%s' not found", fundID)
	}
	return &history, nil
}

func (s *marketDataStorage) SaveNavHistory(ctx context.Context, history *models.NavHistory) error {
	history.LastUpdated = time.Now()
	if err := s.fs.writeJSON(s.dir, history.FundID, history, false); err != nil {
		return fmt.Errorf("failed to save nav history: %w", err)
	}
	s.logger.Debug().Str("fund", history.FundID).Int("points", len(history.Points)).Msg("NAV history saved")
	return nil
}
