package reprocess

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Cache is the durable set of entry ids a reprocessing run has finalized.
// On disk it is one decimal id per line.
type Cache struct {
	path string

	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewCache returns an empty cache that saves to path. An empty path keeps
// the cache in memory only.
func NewCache(path string) *Cache {
	return &Cache{path: path, ids: make(map[int64]struct{})}
}

// LoadCache reads the cache at path. A missing file yields an empty cache.
// Lines that are not ids are ignored.
func LoadCache(path string) (*Cache, error) {
	c := NewCache(path)
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("opening processing cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		c.ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading processing cache: %w", err)
	}
	return c, nil
}

// Path returns where the cache is saved.
func (c *Cache) Path() string {
	return c.path
}

// Has reports whether id was finalized.
func (c *Cache) Has(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

// Add records ids as finalized.
func (c *Cache) Add(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
}

// Len returns the number of finalized ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Save atomically replaces the cache file: the ids are written to a
// temporary file in the same directory which is then renamed over path.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	ids := make([]int64, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, id := range ids {
		w.WriteString(strconv.FormatInt(id, 10))
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing processing cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing processing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing processing cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing processing cache: %w", err)
	}
	return nil
}
