package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// entriesDir is the subdirectory of the cache root that FileCache owns.
// Nothing outside it is ever written or removed.
const entriesDir = "entries"

// FileCache stores entries as JSON files under a directory.
// Each entry records its own expiry.
//
// Layout: <dir>/entries/<scope>/<2 hex>/<62 hex>.json. The scope separates
// projects that share one directory; Clear only touches its own scope.
type FileCache struct {
	dir   string
	scope string
}

// NewFileCache creates a file-based cache in the given directory. A non-empty
// scope keeps the entries apart from other scopes in the same directory.
// The directory will be created if it doesn't exist.
func NewFileCache(dir, scope string) (*FileCache, error) {
	c := &FileCache{dir: dir, scope: scopeDir(scope)}
	if err := os.MkdirAll(c.root(), 0755); err != nil {
		return nil, err
	}
	return c, nil
}

// scopeDir maps a scope to a single safe path component.
func scopeDir(scope string) string {
	if scope == "" {
		return "default"
	}
	return "s-" + Hash([]byte(scope))[:16]
}

// DefaultDir returns the per-user cache directory for svgicon.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "svgicon"), nil
}

// Dir returns the cache root.
func (c *FileCache) Dir() string {
	return c.dir
}

// cacheEntry wraps cached data with metadata.
type cacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get retrieves a value from the cache.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Invalid cache entry - treat as miss
		_ = os.Remove(path)
		return nil, false, nil
	}

	// Check expiration
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false, nil
	}

	return entry.Data, true, nil
}

// Set stores a value in the cache.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := cacheEntry{
		Data: data,
	}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write then rename so concurrent readers never see a partial entry.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(entryData); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes a value from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	path := c.path(key)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes the entries of this cache's scope. Files that do not look
// like entries are left alone, as are other scopes.
func (c *FileCache) Clear(ctx context.Context) error {
	shards, err := os.ReadDir(c.root())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, shard := range shards {
		if !shard.IsDir() || !isHex(shard.Name(), 2) {
			continue
		}
		dir := filepath.Join(c.root(), shard.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.IsDir() || !isEntryName(f.Name()) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, f.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		// Fails while foreign files remain, which is fine.
		_ = os.Remove(dir)
	}
	return nil
}

// isEntryName reports whether name is an entry file or a leftover temp file.
func isEntryName(name string) bool {
	if strings.HasPrefix(name, ".entry-") {
		return true
	}
	stem, ok := strings.CutSuffix(name, ".json")
	return ok && isHex(stem, 62)
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// path converts a cache key to a file path.
// Uses a simple hash-based directory structure to avoid too many files in one dir.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	// Use first 2 chars as subdirectory for distribution
	subdir := hash[:2]
	filename := hash[2:] + ".json"
	return filepath.Join(c.root(), subdir, filename)
}

// root is the directory holding this scope's shards.
func (c *FileCache) root() string {
	return filepath.Join(c.dir, entriesDir, c.scope)
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
