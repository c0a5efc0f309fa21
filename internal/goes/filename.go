package goes

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileName is the decoded form of a GOES-R series L1b/L2 file name, e.g.
// OR_ABI-L2-RRQPEF-M6_G16_s20242671300208_e20242671309516_c20242671310021.nc
type FileName struct {
	Product   string // ABI-L2-RRQPEF
	Mode      string // M6
	Satellite int    // 16
	Start     time.Time
	End       time.Time
	Created   time.Time
}

// ParseFileName decodes the base name of path.
func ParseFileName(path string) (FileName, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".nc")
	fields := strings.Split(base, "_")
	if len(fields) != 6 || fields[0] != "OR" {
		return FileName{}, fmt.Errorf("%s: not a GOES-R file name", path)
	}

	var fn FileName
	i := strings.LastIndex(fields[1], "-")
	if i < 0 {
		return FileName{}, fmt.Errorf("%s: missing scan mode in %q", path, fields[1])
	}
	fn.Product, fn.Mode = fields[1][:i], fields[1][i+1:]

	sat, ok := strings.CutPrefix(fields[2], "G")
	if !ok {
		return FileName{}, fmt.Errorf("%s: bad satellite field %q", path, fields[2])
	}
	n, err := strconv.Atoi(sat)
	if err != nil {
		return FileName{}, fmt.Errorf("%s: bad satellite field %q: %w", path, fields[2], err)
	}
	fn.Satellite = n

	for _, f := range []struct {
		prefix string
		field  string
		t      *time.Time
	}{
		{"s", fields[3], &fn.Start},
		{"e", fields[4], &fn.End},
		{"c", fields[5], &fn.Created},
	} {
		stamp, ok := strings.CutPrefix(f.field, f.prefix)
		if !ok {
			return FileName{}, fmt.Errorf("%s: field %q lacks %q prefix", path, f.field, f.prefix)
		}
		if *f.t, err = ParseStamp(stamp); err != nil {
			return FileName{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return fn, nil
}

// ParseStamp decodes a YYYYJJJHHMMSSt time stamp (day of year, tenths of a
// second) into UTC.
func ParseStamp(s string) (time.Time, error) {
	if len(s) != 14 {
		return time.Time{}, fmt.Errorf("time stamp %q: want 14 digits", s)
	}
	var v [6]int
	for i, w := range []struct{ from, to int }{{0, 4}, {4, 7}, {7, 9}, {9, 11}, {11, 13}, {13, 14}} {
		n, err := strconv.Atoi(s[w.from:w.to])
		if err != nil {
			return time.Time{}, fmt.Errorf("time stamp %q: %w", s, err)
		}
		v[i] = n
	}
	year, doy, hour, minute, sec, tenth := v[0], v[1], v[2], v[3], v[4], v[5]
	if doy < 1 || doy > 366 || hour > 23 || minute > 59 || sec > 60 {
		return time.Time{}, fmt.Errorf("time stamp %q out of range", s)
	}
	t := time.Date(year, 1, 1, hour, minute, sec, tenth*100_000_000, time.UTC)
	return t.AddDate(0, 0, doy-1), nil
}

// ProductDir returns the archive directory name for a product and scan
// domain: "F" full disk, "C" CONUS, "M1"/"M2" mesoscale. The product is
// named without its domain; with an empty domain it is used as given.
func ProductDir(product, domain string) string {
	if domain == "" || !strings.HasPrefix(product, "ABI") {
		return product
	}
	if strings.HasPrefix(domain, "M") {
		return product + "M"
	}
	return product + domain
}
