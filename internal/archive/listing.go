package archive

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// ListingFreshness is how long a stored prefix listing is trusted.
const ListingFreshness = 6 * time.Hour

// listings memoizes prefix listings in memory and, when dir is set, on disk
// as zstd-compressed msgpack.
type listings struct {
	dir string
	mem *expirable.LRU[string, []Object]
	now func() time.Time
}

func newListings(dir string) *listings {
	return &listings{
		dir: dir,
		mem: expirable.NewLRU[string, []Object](256, nil, ListingFreshness),
		now: time.Now,
	}
}

func (l *listings) path(bucket, prefix string) string {
	name := strings.ReplaceAll(strings.Trim(prefix, "/"), "/", "_") + ".msgpack.zst"
	return filepath.Join(l.dir, "listings", bucket, name)
}

func (l *listings) get(bucket, prefix string) ([]Object, bool) {
	key := bucket + "/" + prefix
	if objs, ok := l.mem.Get(key); ok {
		return objs, true
	}
	if l.dir == "" {
		return nil, false
	}
	var objs []Object
	t, err := retrieve(l.path(bucket, prefix), &objs)
	if err != nil || l.now().Sub(t) >= ListingFreshness {
		return nil, false
	}
	l.mem.Add(key, objs)
	return objs, true
}

func (l *listings) put(bucket, prefix string, objs []Object) error {
	l.mem.Add(bucket+"/"+prefix, objs)
	if l.dir == "" {
		return nil
	}
	return store(l.path(bucket, prefix), objs)
}

func store(path string, obj any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(obj); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// retrieve decodes a stored object and returns its modification time.
func retrieve(path string, obj any) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		return time.Time{}, err
	}
	defer zr.Close()

	return fi.ModTime(), msgpack.NewDecoder(zr).Decode(obj)
}
