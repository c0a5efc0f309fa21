package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalDir is a directory laid out like the remote archive:
// <root>/<product dir>/<YYYY>/<DOY>/<HH>/*.nc
// The day of year may also be written without zero padding.
type LocalDir struct {
	Root string
}

// hourDirs returns the directories that may hold the granules of hour h.
func (d LocalDir) hourDirs(dir string, h time.Time) []string {
	h = h.UTC()
	dirs := []string{filepath.Join(d.Root, filepath.FromSlash(HourPrefix(dir, h)))}
	if h.YearDay() < 100 {
		unpadded := fmt.Sprintf("%s/%04d/%d/%02d", dir, h.Year(), h.YearDay(), h.Hour())
		dirs = append(dirs, filepath.Join(d.Root, filepath.FromSlash(unpadded)))
	}
	return dirs
}

func (d LocalDir) listHours(req Request, hours []time.Time) ([]Object, error) {
	var all []Object
	for _, h := range hours {
		for _, dir := range d.hourDirs(req.Dir(), h) {
			matches, err := filepath.Glob(filepath.Join(dir, "*.nc"))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				fi, err := os.Stat(m)
				if err != nil {
					continue
				}
				all = append(all, Object{Key: m, Size: fi.Size()})
			}
		}
	}
	return granules(all, req.Dir(), req.Satellite), nil
}

func (d LocalDir) Nearest(_ context.Context, req Request) (Object, error) {
	objs, err := d.listHours(req, hoursAround(req.Time, req.window()))
	if err != nil {
		return Object{}, err
	}
	obj, err := nearest(objs, req.Time, req.window())
	if err != nil {
		return Object{}, fmt.Errorf("%s in %s: %w", req, d.Root, err)
	}
	return obj, nil
}

func (d LocalDir) ListDay(_ context.Context, req Request) ([]Object, error) {
	return d.listHours(req, dayHours(req.Time))
}

// Fetch returns the path of a local object.
func (d LocalDir) Fetch(_ context.Context, obj Object) (string, error) {
	if obj.Bucket != "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(obj.Key); err != nil {
		return "", fmt.Errorf("%s: %w", obj.Key, ErrNotFound)
	}
	return obj.Key, nil
}
