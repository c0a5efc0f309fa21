package grid

import (
	"fmt"
	"math"
)

// FilterOptions selects which cells survive filtering. Zero value keeps
// everything.
type FilterOptions struct {
	FiniteOnly  bool
	NonzeroOnly bool
	// ZeroTolerance is the largest magnitude still treated as zero when
	// NonzeroOnly is set.
	ZeroTolerance float64
	// Threshold, when set, keeps only values strictly greater than it.
	Threshold *float64
	BBox      *BoundingBox
}

// Points are parallel flattened cells.
type Points struct {
	Lat   []float64
	Lon   []float64
	Value []float64
	Aux   map[string][]float64
}

func (p *Points) Len() int { return len(p.Value) }

// Flatten turns a validated grid into points in row-major order.
func Flatten(g *Grid) (*Points, error) {
	if err := g.Validate("flatten"); err != nil {
		return nil, err
	}
	p := &Points{Lat: g.Lat.Data, Lon: g.Lon.Data, Value: g.Value.Data}
	if len(g.Aux) > 0 {
		p.Aux = make(map[string][]float64, len(g.Aux))
		for name, a := range g.Aux {
			p.Aux[name] = a.Data
		}
	}
	return p, nil
}

// Filter returns the indices of p that satisfy every active predicate of
// opts, in ascending order. Predicates are applied as finiteness, then value
// threshold and nonzero, then bounding box containment.
func Filter(p *Points, opts FilterOptions) ([]int, error) {
	if len(p.Lat) != len(p.Value) || len(p.Lon) != len(p.Value) {
		return nil, &ShapeMismatchError{
			Op:   "filter",
			Want: Shape{Rows: 1, Cols: len(p.Value)},
			Got:  []Shape{{Rows: 1, Cols: len(p.Lat)}, {Rows: 1, Cols: len(p.Lon)}},
		}
	}

	idx := make([]int, 0, len(p.Value))
	for i, v := range p.Value {
		if opts.FiniteOnly && !Finite(v) {
			continue
		}
		if opts.Threshold != nil && !(v > *opts.Threshold) {
			continue
		}
		if opts.NonzeroOnly && !(math.Abs(v) > opts.ZeroTolerance) {
			continue
		}
		if opts.BBox != nil && !opts.BBox.Contains(p.Lat[i], p.Lon[i]) {
			continue
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// Decimate keeps every stride-th index, starting with the first.
func Decimate(idx []int, stride int) ([]int, error) {
	if stride < 1 {
		return nil, fmt.Errorf("decimate: stride %d must be at least 1", stride)
	}
	if stride == 1 {
		return idx, nil
	}
	out := make([]int, 0, (len(idx)+stride-1)/stride)
	for i := 0; i < len(idx); i += stride {
		out = append(out, idx[i])
	}
	return out, nil
}

// Select returns a new Points holding only the given indices.
func (p *Points) Select(idx []int) *Points {
	pick := func(v []float64) []float64 {
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = v[j]
		}
		return out
	}
	out := &Points{Lat: pick(p.Lat), Lon: pick(p.Lon), Value: pick(p.Value)}
	if len(p.Aux) > 0 {
		out.Aux = make(map[string][]float64, len(p.Aux))
		for name, a := range p.Aux {
			out.Aux[name] = pick(a)
		}
	}
	return out
}
