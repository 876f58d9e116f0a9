package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/pkg/filesystem"
	"github.com/doeshing/preauth-guard/internal/ports"
)

// Entry is one cached verification. The key is a hash of code and note, so
// no note text is ever written to disk.
type Entry struct {
	Key       string                    `json:"key"`
	CreatedAt time.Time                 `json:"created_at"`
	Result    domain.VerificationResult `json:"result"`
}

// Stats summarizes the cache directory.
type Stats struct {
	Dir     string
	Entries int
	Expired int
	Bytes   int64
	Oldest  time.Time
	Newest  time.Time
}

// FileCache stores verification results as JSON blobs addressed by hash key.
type FileCache struct {
	dir        string
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// DefaultDir returns ~/.pguard/cache/verifications.
func DefaultDir() string {
	return filepath.Join(filesystem.UserHomeDir(), ".pguard", "cache", "verifications")
}

// NewFileCache returns a cache rooted at dir (DefaultDir when empty).
// Non-positive limits fall back to the package defaults.
func NewFileCache(dir string, ttl time.Duration, maxEntries int) *FileCache {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir()
	}
	if ttl <= 0 {
		ttl = domain.DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = domain.DefaultMaxCacheEntries
	}
	return &FileCache{
		dir:        filesystem.ExpandPath(dir),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get implements ports.VerificationCache. Expired entries are removed and reported as misses.
func (c *FileCache) Get(key string) (domain.VerificationResult, bool, error) {
	if !validKey(key) {
		return domain.VerificationResult{}, false, nil
	}
	path := c.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.VerificationResult{}, false, nil
		}
		return domain.VerificationResult{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return domain.VerificationResult{}, false, err
	}
	if c.expired(entry) {
		_ = os.Remove(path)
		return domain.VerificationResult{}, false, nil
	}
	return entry.Result, true, nil
}

// Set implements ports.VerificationCache.
func (c *FileCache) Set(key string, result domain.VerificationResult) error {
	if !validKey(key) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, domain.DirectoryPermissions); err != nil {
		return err
	}
	data, err := json.Marshal(Entry{Key: key, CreatedAt: c.now().UTC(), Result: result})
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.pathFor(key), data, domain.SecureFilePermissions); err != nil {
		return err
	}
	return c.evictIfNeeded()
}

// Dir exposes the cache directory path.
func (c *FileCache) Dir() string {
	return c.dir
}

// Clear removes all cached entries.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(c.dir)
}

// Stats scans the cache directory (best-effort).
func (c *FileCache) Stats() (Stats, error) {
	stats := Stats{Dir: c.dir}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += int64(len(data))
		if c.expired(entry) {
			stats.Expired++
		}
		if stats.Oldest.IsZero() || entry.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.Newest) {
			stats.Newest = entry.CreatedAt
		}
	}
	return stats, nil
}

func (c *FileCache) expired(entry Entry) bool {
	return c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl
}

func (c *FileCache) pathFor(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// validKey accepts only hex digests so a key can never escape the cache dir.
func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, r := range key {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func (c *FileCache) evictIfNeeded() error {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(files) <= c.maxEntries {
		return nil
	}
	type fileInfo struct {
		name string
		mod  time.Time
	}
	var infos []fileInfo
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: f.Name(), mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.Before(infos[j].mod) })
	for len(infos) > c.maxEntries {
		old := infos[0]
		_ = os.Remove(filepath.Join(c.dir, old.name))
		infos = infos[1:]
	}
	return nil
}

var _ ports.VerificationCache = (*FileCache)(nil)
