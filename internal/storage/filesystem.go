// Package storage persists generated artifacts onto the local filesystem and
// exposes the directory scans the library views are built from.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore owns one output directory of artifacts. Filenames are the join
// key between files on disk and history ledger records.
type FileStore struct {
	basePath string
}

// Entry describes one artifact file found in the store.
type Entry struct {
	Name    string
	ModTime time.Time
}

// NewFileStore initializes a FileStore rooted at basePath, creating it if
// needed.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists data under the given filename and returns the sanitized
// name actually used.
func (s *FileStore) Write(name string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	clean, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.basePath, clean), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return clean, nil
}

// Resolve maps a client-supplied filename to an absolute path inside the
// store, rejecting traversal attempts and disallowed extensions.
func (s *FileStore) Resolve(name string, allowedExts ...string) (string, error) {
	clean, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	if len(allowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(clean))
		ok := false
		for _, allowed := range allowedExts {
			if ext == allowed {
				ok = true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("storage: extension %q not allowed", ext)
		}
	}
	return filepath.Join(s.basePath, clean), nil
}

// List enumerates regular files in the store whose extension matches one of
// exts (lowercase, dot included). Subdirectories are not descended into.
func (s *FileStore) List(exts ...string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read dir: %w", err)
	}

	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[ext] = struct{}{}
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(filepath.Ext(de.Name()))]; !ok {
				continue
			}
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), ModTime: info.ModTime()})
	}
	return entries, nil
}

// Remove deletes one artifact. Missing files are not an error.
func (s *FileStore) Remove(name string) error {
	clean, err := sanitizeName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// Filename builds a collision-resistant artifact name from the current time
// at microsecond precision, e.g. "image_20240115_143052_123456.png".
func Filename(prefix, ext string) string {
	now := time.Now()
	return fmt.Sprintf("%s_%s_%06d.%s", prefix, now.Format("20060102_150405"), now.Nanosecond()/1000, ext)
}

// sanitizeName rejects anything that is not a plain filename inside the
// store root.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("storage: filename is required")
	}
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := filepath.Clean(name)
	if cleaned == "." || strings.Contains(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
		return "", errors.New("storage: invalid filename")
	}
	return cleaned, nil
}
