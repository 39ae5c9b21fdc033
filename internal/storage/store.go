// Package storage keeps uploaded document bytes on the local filesystem,
// addressed by relative paths that are stable across process restarts.
package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store writes uploads under root using date-partitioned paths. The
// returned paths are relative to root so the root can move between
// deployments.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Save streams r to disk and returns the relative stored path, shaped as
// nfse/uploads/YYYY/MM/DD/<uuid>_<sanitized name>.
func (s *Store) Save(fileName string, r io.Reader) (string, int64, error) {
	now := time.Now().UTC()
	rel := filepath.Join("nfse", "uploads",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
		uuid.New().String()+"_"+sanitizeName(fileName))

	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(abs)
		return "", 0, fmt.Errorf("write upload: %w", err)
	}

	s.logger.Debug("upload stored", "path", rel, "bytes", n)
	return rel, n, nil
}

// Open returns a reader over a previously stored path.
func (s *Store) Open(rel string) (*os.File, error) {
	abs, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// Path resolves a stored path to its absolute location on disk.
func (s *Store) Path(rel string) (string, error) {
	return s.abs(rel)
}

// Delete removes stored bytes. A missing file is not an error; cleanup is
// allowed to run more than once.
func (s *Store) Delete(rel string) error {
	abs, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// abs joins and confines the relative path to the store root.
func (s *Store) abs(rel string) (string, error) {
	abs := filepath.Join(s.root, filepath.Clean("/"+rel))
	if !strings.HasPrefix(abs, filepath.Clean(s.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes storage root", rel)
	}
	return abs, nil
}

// sanitizeName keeps the original file name readable while stripping
// directory components and path separators.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
