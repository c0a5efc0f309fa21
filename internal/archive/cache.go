package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache stores downloaded granules under
// <dir>/<product>/<YYYY>/<DOY>/<basename>.
type Cache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCache creates a granule cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Path returns where a granule of product scanned at start is cached.
func (c *Cache) Path(product string, start time.Time, base string) string {
	start = start.UTC()
	return filepath.Join(c.dir, product, fmt.Sprintf("%04d", start.Year()), fmt.Sprintf("%03d", start.YearDay()), base)
}

func (c *Cache) lock(path string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[path]
	if !ok {
		l = &sync.Mutex{}
		c.locks[path] = l
	}
	return l
}

// Get returns path, calling fill to create it first if it does not exist.
// fill writes to a temporary file that is renamed into place only when it
// succeeds, and concurrent callers for the same path wait for each other.
// The second result reports whether the file was already cached.
func (c *Cache) Get(path string, fill func(w io.Writer) error) (string, bool, error) {
	l := c.lock(path)
	l.Lock()
	defer l.Unlock()

	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		return path, true, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", false, err
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", false, err
	}
	return path, false, nil
}
