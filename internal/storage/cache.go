// Package storage is the local download cache. Files live under
// <base>/<chain folder>/(<YYYYMMDD>/)?<original file name>; date
// subfolders are used by portals that publish per-day directories.
// Downloads are skipped when the target file already exists, which makes
// re-runs offline-friendly: parsers resolve files from the cache first
// and only reach for the network on a miss.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/elikochva/openprices/internal/filename"
)

// Cache is a chain-foldered file cache rooted at a base directory.
type Cache struct {
	base string
}

// NewCache creates the base directory if needed and returns the cache.
func NewCache(base string) (*Cache, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", base, err)
	}
	return &Cache{base: base}, nil
}

// Base returns the cache root.
func (c *Cache) Base() string { return c.base }

// ChainDir returns the directory for a chain folder, creating it if
// needed.
func (c *Cache) ChainDir(chain string, parts ...string) (string, error) {
	dir := filepath.Join(append([]string{c.base, chain}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chain dir %s: %w", dir, err)
	}
	return dir, nil
}

// Exists reports whether path is a regular file in the cache.
func (c *Cache) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Find walks a chain's folder looking for the first file whose name
// matches the pattern. Returns the path and whether one was found.
func (c *Cache) Find(chain string, pattern filename.Pattern) (string, bool) {
	root := filepath.Join(c.base, chain)
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are misses, not failures
		}
		if d.IsDir() {
			return nil
		}
		if pattern.MatchString(d.Name()) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil || found == "" {
		return "", false
	}
	return found, true
}

// Save writes r to path atomically (temp file + rename).
func (c *Cache) Save(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// FilenameFromResponse extracts the file name a server assigned to a
// download, preferring the Content-Disposition header and falling back
// to the final URL path.
func FilenameFromResponse(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		return filepath.Base(resp.Request.URL.Path)
	}
	return ""
}
