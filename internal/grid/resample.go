package grid

import (
	"fmt"
	"math"

	"github.com/rtm0/goesjson/internal/geos"
)

// ResampleOptions describes the regular lat/lon output raster.
type ResampleOptions struct {
	// Resolution is the output cell size in degrees.
	Resolution float64
	BBox       BoundingBox
}

// Resample warps a fixed grid raster onto a regular north-up lat/lon raster
// of cell centres covering opts.BBox, using bilinear interpolation. Native
// neighbours without data are left out and the remaining weights
// renormalised; a cell with no usable neighbour, or one the satellite
// cannot see, is NaN. Fixed grid axes longer than values are trimmed to
// its top-left window.
func Resample(values Raster, fg FixedGrid, opts ResampleOptions) (*Grid, error) {
	if !(opts.Resolution > 0) {
		return nil, fmt.Errorf("resample: resolution %v must be positive", opts.Resolution)
	}
	want := Shape{Rows: len(fg.Y), Cols: len(fg.X)}
	if !values.valid() || values.Rows > want.Rows || values.Cols > want.Cols {
		return nil, &ShapeMismatchError{Op: "resample", Want: want, Got: []Shape{values.Shape()}}
	}
	// Axes longer than the raster are trimmed to its top-left window.
	fg.X, fg.Y = fg.X[:values.Cols], fg.Y[:values.Rows]
	want = values.Shape()
	if len(fg.X) < 2 || len(fg.Y) < 2 {
		return nil, fmt.Errorf("resample: fixed grid %s too small to interpolate", want)
	}
	tr, err := geos.NewTransformer(fg.Projection)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	xa := newAxis(fg.X)
	ya := newAxis(fg.Y)

	dlon, dlat := opts.BBox.span()
	cols := max(1, int(math.Ceil(dlon/opts.Resolution-1e-9)))
	rows := max(1, int(math.Ceil(dlat/opts.Resolution-1e-9)))

	out := &Grid{
		Lat:   NewRaster(rows, cols, 0),
		Lon:   NewRaster(rows, cols, 0),
		Value: NewRaster(rows, cols, math.NaN()),
	}
	for i := range rows {
		lat := opts.BBox.MaxLat() - (float64(i)+0.5)*opts.Resolution
		for j := range cols {
			lon := opts.BBox.MinLon() + (float64(j)+0.5)*opts.Resolution
			out.Lat.Set(i, j, lat)
			out.Lon.Set(i, j, lon)

			x, y, ok := tr.Forward(lat, lon)
			if !ok {
				continue
			}
			fc, okc := xa.index(x)
			fr, okr := ya.index(y)
			if !okc || !okr {
				continue
			}
			out.Value.Set(i, j, bilinear(values, fr, fc))
		}
	}
	return out, out.Validate("resample")
}

// axis maps a coordinate on a regularly spaced axis to a fractional index.
type axis struct {
	origin float64
	step   float64
	n      int
}

func newAxis(v []float64) axis {
	return axis{origin: v[0], step: (v[len(v)-1] - v[0]) / float64(len(v)-1), n: len(v)}
}

func (a axis) index(c float64) (float64, bool) {
	if a.step == 0 || !Finite(c) {
		return 0, false
	}
	f := (c - a.origin) / a.step
	const eps = 1e-9
	if f < -eps || f > float64(a.n-1)+eps {
		return 0, false
	}
	return math.Min(math.Max(f, 0), float64(a.n-1)), true
}

// bilinear interpolates r at fractional (row, col), skipping non-finite
// neighbours.
func bilinear(r Raster, fr, fc float64) float64 {
	r0, c0 := int(math.Floor(fr)), int(math.Floor(fc))
	wr, wc := fr-float64(r0), fc-float64(c0)

	var sum, wsum float64
	for _, n := range [4]struct {
		dr, dc int
		w      float64
	}{
		{0, 0, (1 - wr) * (1 - wc)},
		{0, 1, (1 - wr) * wc},
		{1, 0, wr * (1 - wc)},
		{1, 1, wr * wc},
	} {
		rr, cc := r0+n.dr, c0+n.dc
		if n.w == 0 || rr >= r.Rows || cc >= r.Cols {
			continue
		}
		if v := r.At(rr, cc); Finite(v) {
			sum += n.w * v
			wsum += n.w
		}
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}
