package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/rtm0/goesjson/internal/goes"
)

// ErrNotFound is returned when no granule matches a request.
var ErrNotFound = errors.New("granule not found")

// DefaultWindow is how far from the requested time a granule may start.
const DefaultWindow = time.Hour

// Request identifies the granule nearest to Time.
type Request struct {
	Satellite int
	// Product is the product name without scan domain, e.g. ABI-L2-RRQPE.
	Product string
	// Domain is F, C, M1 or M2.
	Domain string
	Time   time.Time
	// Window bounds |scan start - Time|. Zero means DefaultWindow.
	Window time.Duration
}

// Dir returns the product directory of the request.
func (r Request) Dir() string { return goes.ProductDir(r.Product, r.Domain) }

func (r Request) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultWindow
}

func (r Request) String() string {
	return fmt.Sprintf("G%d %s %s", r.Satellite, r.Dir(), r.Time.UTC().Format(time.RFC3339))
}

// Object is an archived granule. Bucket is empty for files in a local
// data directory, in which case Key is the file path.
type Object struct {
	Bucket string    `msgpack:"b"`
	Key    string    `msgpack:"k"`
	Size   int64     `msgpack:"s"`
	Start  time.Time `msgpack:"t"`
}

func (o Object) Base() string { return path.Base(o.Key) }

// Locator finds and retrieves granules.
type Locator interface {
	// Nearest returns the granule whose scan start is closest to the
	// request time, or ErrNotFound.
	Nearest(ctx context.Context, req Request) (Object, error)
	// ListDay returns every granule of the request's UTC day in scan order.
	ListDay(ctx context.Context, req Request) ([]Object, error)
	// Fetch makes the granule available as a local file and returns its
	// path.
	Fetch(ctx context.Context, obj Object) (string, error)
}

// HourPrefix is the archive prefix holding the scans of one hour:
// <dir>/<YYYY>/<DOY>/<HH>/
func HourPrefix(dir string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%04d/%03d/%02d/", dir, t.Year(), t.YearDay(), t.Hour())
}

// hoursAround returns the start of every hour overlapping [t-w, t+w].
func hoursAround(t time.Time, w time.Duration) []time.Time {
	var hours []time.Time
	for h := t.Add(-w).UTC().Truncate(time.Hour); !h.After(t.Add(w)); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}

// dayHours returns the 24 hours of the UTC day containing t.
func dayHours(t time.Time) []time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	hours := make([]time.Time, 24)
	for i := range hours {
		hours[i] = day.Add(time.Duration(i) * time.Hour)
	}
	return hours
}

// nearest picks the object starting closest to t within w. Ties go to the
// earlier scan.
func nearest(objs []Object, t time.Time, w time.Duration) (Object, error) {
	best := -1
	var bestDiff time.Duration
	for i, o := range objs {
		d := o.Start.Sub(t).Abs()
		if d > w {
			continue
		}
		if best < 0 || d < bestDiff || (d == bestDiff && o.Start.Before(objs[best].Start)) {
			best, bestDiff = i, d
		}
	}
	if best < 0 {
		return Object{}, ErrNotFound
	}
	return objs[best], nil
}

// granules keeps the objects whose key is a granule of the given product
// directory and satellite, filling in scan start times.
func granules(objs []Object, dir string, satellite int) []Object {
	out := make([]Object, 0, len(objs))
	for _, o := range objs {
		fn, err := goes.ParseFileName(o.Key)
		// Mesoscale file names carry M1/M2 where the directory has M.
		if err != nil || fn.Satellite != satellite || !strings.HasPrefix(fn.Product, dir) || len(fn.Product)-len(dir) > 1 {
			continue
		}
		o.Start = fn.Start
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Object) int { return a.Start.Compare(b.Start) })
	return out
}

// Chain consults each locator in turn.
type Chain []Locator

func (c Chain) Nearest(ctx context.Context, req Request) (Object, error) {
	var errs []error
	for _, l := range c {
		obj, err := l.Nearest(ctx, req)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return Object{}, errors.Join(errs...)
	}
	return Object{}, fmt.Errorf("%s: %w", req, ErrNotFound)
}

func (c Chain) ListDay(ctx context.Context, req Request) ([]Object, error) {
	var errs []error
	for _, l := range c {
		objs, err := l.ListDay(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(objs) > 0 {
			return objs, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (c Chain) Fetch(ctx context.Context, obj Object) (string, error) {
	for _, l := range c {
		p, err := l.Fetch(ctx, obj)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return p, err
	}
	return "", fmt.Errorf("%s: %w", obj.Key, ErrNotFound)
}
