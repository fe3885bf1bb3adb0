package offline

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Files manages downloaded asset files under one directory.
// Safe for concurrent use.
type Files struct {
	basePath string
	mu       sync.RWMutex
}

// NewFiles creates the {basePath}/{subdir} directory and returns a store rooted there.
func NewFiles(basePath, subdir string) (*Files, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if subdir == "" {
		return nil, fmt.Errorf("subdirectory cannot be empty")
	}

	storagePath := filepath.Join(basePath, subdir)
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
	}

	return &Files{basePath: storagePath}, nil
}

// Save streams r into the file for id, at most limit bytes. The data is written to a
// temporary file first so a failed download never leaves a partial file under the final
// name. Returns the final path and the bytes written.
func (f *Files) Save(id, ext string, r io.Reader, limit int64) (string, int64, error) {
	if err := validID(id); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(f.basePath, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write file: %w", err)
	}
	if n == 0 {
		return "", 0, fmt.Errorf("empty download")
	}
	if n > limit {
		return "", 0, fmt.Errorf("download exceeds %d bytes", limit)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// One file per id, whatever its extension.
	f.removeLocked(id)
	path := f.Path(id, ext)
	if err := os.Rename(tmpPath, path); err != nil {
		return "", 0, fmt.Errorf("move file into place: %w", err)
	}
	return path, n, nil
}

// Exists reports whether path is a regular file inside this store.
func (f *Files) Exists(path string) bool {
	if path == "" || !f.contains(path) {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes every file stored for id. Deleting a missing file is not an error.
func (f *Files) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(id)
}

func (f *Files) removeLocked(id string) error {
	matches, err := filepath.Glob(filepath.Join(f.basePath, escapeGlob(id)+".*"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

// Size returns the total size of the stored files.
func (f *Files) Size() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var total int64
	err := filepath.WalkDir(f.basePath, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Clear removes every stored file and keeps the directory.
func (f *Files) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(f.basePath, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the full filesystem path for id with the given extension.
func (f *Files) Path(id, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(f.basePath, id+ext)
}

func (f *Files) contains(path string) bool {
	rel, err := filepath.Rel(f.basePath, path)
	return err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// validID rejects ids that would escape the store directory.
func validID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid ID %q", id)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
