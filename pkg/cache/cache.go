package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

// DefaultTTLDays is the default entry lifetime.
const DefaultTTLDays = 30

const indexFile = "index.json"

// Entry describes one cached plan in the index.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Requirement string    `json:"requirement"`
	BaseURL     string    `json:"base_url"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Hits        int       `json:"hits"`
}

// Stats summarizes cache contents.
type Stats struct {
	Entries    int       `json:"entries"`
	TotalBytes int64     `json:"total_bytes"`
	TotalHits  int       `json:"total_hits"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
}

// Cache is a disk-backed plan cache. All methods are safe for concurrent use.
type Cache struct {
	dir string
	ttl time.Duration

	mu    sync.Mutex // guards the index file and entry files
	locks map[string]*sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTLDays overrides the entry lifetime. Zero disables expiry.
func WithTTLDays(days int) Option {
	return func(c *Cache) { c.ttl = time.Duration(days) * 24 * time.Hour }
}

// New opens a cache rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, diag.New(diag.CodeCacheError, "cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, diag.Wrap(diag.CodeCacheError, "failed to create cache directory", err)
	}
	c := &Cache{
		dir:   dir,
		ttl:   DefaultTTLDays * 24 * time.Hour,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fingerprint derives the cache key from the generation inputs. Every
// component is case-folded and trimmed so formatting differences do not
// fragment the cache.
func Fingerprint(requirement, baseURL, provider, model string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(requirement)),
		strings.ToLower(strings.TrimSpace(baseURL)),
	}
	if p := strings.ToLower(strings.TrimSpace(provider)); p != "" {
		parts = append(parts, "provider:"+p)
	}
	if m := strings.ToLower(strings.TrimSpace(model)); m != "" {
		parts = append(parts, "model:"+m)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached plan for the fingerprint, or ok=false on a miss.
// Expired entries are removed and reported as misses.
func (c *Cache) Get(fingerprint string) (*utdl.Plan, bool, error) {
	lock := c.entryLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	index, err := c.readIndex()
	if err != nil {
		c.mu.Unlock()
		return nil, false, err
	}
	entry, ok := index[fingerprint]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	if c.expired(entry) {
		if err := c.remove(fingerprint); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	plan, err := c.readEntry(fingerprint)
	if err != nil {
		// A corrupt or missing entry file is treated as a miss after
		// dropping it from the index.
		_ = c.remove(fingerprint)
		return nil, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	index, err = c.readIndex()
	if err != nil {
		return plan, true, nil
	}
	if e, ok := index[fingerprint]; ok {
		e.Hits++
		index[fingerprint] = e
		_ = c.writeIndex(index)
	}
	return plan, true, nil
}

// Put stores a plan under the fingerprint, replacing any existing entry.
func (c *Cache) Put(fingerprint string, plan *utdl.Plan, requirement, baseURL, provider, model string) error {
	raw, err := plan.MarshalCanonical()
	if err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to encode plan for cache", err)
	}

	lock := c.entryLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	path := c.entryPath(fingerprint)
	size, err := writeGzip(path, raw)
	if err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to write cache entry", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	index, err := c.readIndex()
	if err != nil {
		return err
	}
	index[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Requirement: truncate(requirement, 200),
		BaseURL:     baseURL,
		Provider:    provider,
		Model:       model,
		CreatedAt:   time.Now().UTC(),
		SizeBytes:   size,
	}
	return c.writeIndex(index)
}

// Invalidate removes one entry. Removing an absent entry is not an error.
func (c *Cache) Invalidate(fingerprint string) error {
	lock := c.entryLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()
	return c.remove(fingerprint)
}

// Cleanup removes all expired entries and returns how many were dropped.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	index, err := c.readIndex()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	removed := 0
	for fp, entry := range index {
		if c.expired(entry) {
			lock := c.entryLock(fp)
			lock.Lock()
			err := c.remove(fp)
			lock.Unlock()
			if err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry and the index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to list cache directory", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return diag.Wrap(diag.CodeCacheError, "failed to clear cache", err)
		}
	}
	return nil
}

// Stats summarizes the current index.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Entries: len(index)}
	for _, entry := range index {
		st.TotalBytes += entry.SizeBytes
		st.TotalHits += entry.Hits
		if st.Oldest.IsZero() || entry.CreatedAt.Before(st.Oldest) {
			st.Oldest = entry.CreatedAt
		}
		if entry.CreatedAt.After(st.Newest) {
			st.Newest = entry.CreatedAt
		}
	}
	return st, nil
}

// Entries returns a copy of the index.
func (c *Cache) Entries() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index, err := c.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(index))
	for _, e := range index {
		out = append(out, e)
	}
	return out, nil
}

func (c *Cache) expired(entry Entry) bool {
	if c.ttl <= 0 {
		return false
	}
	return time.Since(entry.CreatedAt) > c.ttl
}

func (c *Cache) entryLock(fingerprint string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[fingerprint]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[fingerprint] = lock
	}
	return lock
}

func (c *Cache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json.gz")
}

func (c *Cache) readEntry(fingerprint string) (*utdl.Plan, error) {
	f, err := os.Open(c.entryPath(fingerprint))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	var plan utdl.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// remove drops the entry file and its index row. Callers hold the entry lock.
func (c *Cache) remove(fingerprint string) error {
	if err := os.Remove(c.entryPath(fingerprint)); err != nil && !os.IsNotExist(err) {
		return diag.Wrap(diag.CodeCacheError, "failed to remove cache entry", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	index, err := c.readIndex()
	if err != nil {
		return err
	}
	delete(index, fingerprint)
	return c.writeIndex(index)
}

func (c *Cache) readIndex() (map[string]Entry, error) {
	raw, err := os.ReadFile(filepath.Join(c.dir, indexFile))
	if os.IsNotExist(err) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, diag.Wrap(diag.CodeCacheError, "failed to read cache index", err)
	}
	index := map[string]Entry{}
	if err := json.Unmarshal(raw, &index); err != nil {
		// A corrupt index is rebuilt empty rather than wedging the cache.
		return map[string]Entry{}, nil
	}
	return index, nil
}

func (c *Cache) writeIndex(index map[string]Entry) error {
	raw, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to encode cache index", err)
	}
	tmp := filepath.Join(c.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to write cache index", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, indexFile)); err != nil {
		return diag.Wrap(diag.CodeCacheError, "failed to replace cache index", err)
	}
	return nil
}

func writeGzip(path string, raw []byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(raw); err != nil {
		f.Close()
		return 0, err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
