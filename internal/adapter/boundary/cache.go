package boundary

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/observability"
)

// Cache is a read-through cache of boundary collections, one entry per
// boundary file. Each entry remembers the size and modification time the
// file had when it was loaded; a file rewritten since then replaces its
// entry on the next Get. Beyond maxEntries files the least recently used
// entry is dropped.
type Cache struct {
	nameField  string
	norm       *domain.NameNormalizer
	metrics    *observability.Metrics
	maxEntries int

	mu     sync.Mutex
	files  map[string]*list.Element // cleaned path -> element holding *cachedFile
	recent *list.List               // front is most recently used

	loadMu sync.Mutex // serializes loads so concurrent misses read the file once
	load   func(path, nameField string, norm *domain.NameNormalizer) (*Collection, error)
}

type cachedFile struct {
	path  string
	stamp fileStamp
	col   *Collection
}

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// NewCache creates a cache holding at most maxEntries collections.
func NewCache(nameField string, norm *domain.NameNormalizer, maxEntries int, metrics *observability.Metrics) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		nameField:  nameField,
		norm:       norm,
		metrics:    metrics,
		maxEntries: maxEntries,
		files:      make(map[string]*list.Element),
		recent:     list.New(),
		load:       Load,
	}
}

// Get returns the collection stored at path, loading it on a miss or when
// the file changed since it was cached.
func (c *Cache) Get(path string) (*Collection, error) {
	key := cacheKey(path)
	stamp, err := statFile(path)
	if err != nil {
		return nil, err
	}
	if col, ok := c.lookup(key, stamp); ok {
		return col, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if col, ok := c.lookup(key, stamp); ok {
		return col, nil
	}
	c.metrics.BoundaryCache.WithLabelValues("miss").Inc()

	col, err := c.load(path, c.nameField, c.norm)
	if err != nil {
		return nil, err
	}
	c.store(&cachedFile{path: key, stamp: stamp, col: col})
	return col, nil
}

// lookup returns the cached collection for key when it was loaded from the
// file version described by stamp. An entry for an older version is dropped.
func (c *Cache) lookup(key string, stamp fileStamp) (*Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.files[key]
	if !ok {
		return nil, false
	}
	cf := el.Value.(*cachedFile)
	if !cf.stamp.same(stamp) {
		c.drop(el)
		c.metrics.BoundaryCache.WithLabelValues("stale").Inc()
		return nil, false
	}
	c.recent.MoveToFront(el)
	c.metrics.BoundaryCache.WithLabelValues("hit").Inc()
	return cf.col, true
}

func (c *Cache) store(cf *cachedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.files[cf.path]; ok {
		el.Value = cf
		c.recent.MoveToFront(el)
		return
	}
	c.files[cf.path] = c.recent.PushFront(cf)
	for c.recent.Len() > c.maxEntries {
		c.drop(c.recent.Back())
	}
}

// drop removes el; c.mu must be held.
func (c *Cache) drop(el *list.Element) {
	delete(c.files, el.Value.(*cachedFile).path)
	c.recent.Remove(el)
}

// cached lists the cached paths, most recently used first.
func (c *Cache) cached() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.recent.Len())
	for el := c.recent.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*cachedFile).path)
	}
	return out
}

// cacheKey spells every path to the same file the same way.
func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func statFile(path string) (fileStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, fmt.Errorf("boundary file: %w", err)
	}
	return fileStamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}
