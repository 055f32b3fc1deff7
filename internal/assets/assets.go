// Package assets resolves raw heightmap patches from local patch directories
// and a remote host, and caches the bytes it has loaded.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/terrastream/internal/logger"
	"github.com/Faultbox/terrastream/pkg/formats"
)

// ErrNotFound is returned when no directory holds a patch and there is no
// remote source to ask.
var ErrNotFound = errors.New("patch not found")

// Source fetches raw patch bytes for a chunk.
type Source interface {
	Fetch(ctx context.Context, cx, cy int) ([]byte, error)
}

// Manager handles patch loading from directories and a remote source.
type Manager struct {
	dirs   []string
	remote Source
	cache  *Cache
	log    *zap.Logger
	mu     sync.RWMutex
}

// NewManager creates a new patch manager. The cache keeps at most
// maxEntries patches; zero disables caching.
func NewManager(maxEntries int, log *zap.Logger) *Manager {
	return &Manager{
		cache: NewCache(maxEntries),
		log:   logger.OrNop(log),
	}
}

// AddDir adds a patch directory to the manager.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("opening patch dir %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("opening patch dir %s: not a directory", path)
	}

	m.mu.Lock()
	m.dirs = append(m.dirs, path)
	m.mu.Unlock()

	return nil
}

// SetRemote sets the source asked when no directory holds a patch.
func (m *Manager) SetRemote(src Source) {
	m.mu.Lock()
	m.remote = src
	m.mu.Unlock()
}

// Fetch returns the raw patch for chunk (cx, cy). Only successful loads are
// cached, so a failed fetch is retried on the next call.
func (m *Manager) Fetch(ctx context.Context, cx, cy int) ([]byte, error) {
	name := formats.PatchFileName(cx, cy)

	// Check cache first
	if data, ok := m.cache.Get(name); ok {
		return data, nil
	}

	m.mu.RLock()
	dirs, remote := m.dirs, m.remote
	m.mu.RUnlock()

	// Search directories in reverse order
	for i := len(dirs) - 1; i >= 0; i-- {
		path := filepath.Join(dirs[i], name)
		data, err := os.ReadFile(path)
		if err == nil {
			m.log.Debug("patch loaded from disk", zap.String("path", path), zap.Int("bytes", len(data)))
			m.cache.Set(name, data)
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn("reading patch", zap.String("path", path), zap.Error(err))
		}
	}

	if remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := remote.Fetch(ctx, cx, cy)
	if err != nil {
		return nil, err
	}
	m.cache.Set(name, data)
	return data, nil
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close forgets all directories and clears the cache.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs = nil
	m.remote = nil
	m.cache.Clear()
}

// Cache is a bounded in-memory cache for loaded patches. When full, the
// oldest entry is evicted first.
type Cache struct {
	data  map[string][]byte
	order []string
	max   int
	mu    sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache holding at most max entries.
func NewCache(max int) *Cache {
	return &Cache{
		data: make(map[string][]byte),
		max:  max,
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		for len(c.order) >= c.max {
			delete(c.data, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.data[key] = data
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
