package goes

import (
	"fmt"
	"math"
	"strings"

	"github.com/rtm0/goesjson/internal/grid"
)

// attributes is the read side of a NetCDF attribute map.
type attributes interface {
	Get(key string) (any, bool)
}

// variable is a NetCDF variable with its values fully read.
type variable struct {
	values any
	attrs  attributes
}

// source gives access to the variables of one dataset.
type source interface {
	variable(name string) (*variable, error)
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// array is a decoded numeric variable before unpacking.
type array struct {
	data  []float64
	shape []int
	// bits is the width of the integer storage type, 0 for floats.
	bits int
}

func flat[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func flat2[T number](v [][]T) ([]float64, []int, error) {
	if len(v) == 0 {
		return nil, []int{0, 0}, nil
	}
	cols := len(v[0])
	out := make([]float64, 0, len(v)*cols)
	for i, row := range v {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("ragged row %d: %d columns, want %d", i, len(row), cols)
		}
		for _, x := range row {
			out = append(out, float64(x))
		}
	}
	return out, []int{len(v), cols}, nil
}

func flat3[T number](v [][][]T) ([]float64, []int, error) {
	if len(v) != 1 {
		return nil, nil, fmt.Errorf("3-D variable with leading dimension %d, want 1", len(v))
	}
	return flat2(v[0])
}

// toArray converts the dynamically typed values returned by the NetCDF
// reader into a float64 array.
func toArray(values any) (array, error) {
	var (
		a   array
		err error
	)
	switch v := values.(type) {
	case int8:
		a = array{data: []float64{float64(v)}, bits: 8}
	case uint8:
		a = array{data: []float64{float64(v)}, bits: 8}
	case int16:
		a = array{data: []float64{float64(v)}, bits: 16}
	case uint16:
		a = array{data: []float64{float64(v)}, bits: 16}
	case int32:
		a = array{data: []float64{float64(v)}, bits: 32}
	case uint32:
		a = array{data: []float64{float64(v)}, bits: 32}
	case int64:
		a = array{data: []float64{float64(v)}, bits: 64}
	case float32:
		a = array{data: []float64{float64(v)}}
	case float64:
		a = array{data: []float64{v}}

	case []int8:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 8}
	case []uint8:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 8}
	case []int16:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 16}
	case []uint16:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 16}
	case []int32:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 32}
	case []uint32:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 32}
	case []int64:
		a = array{data: flat(v), shape: []int{len(v)}, bits: 64}
	case []float32:
		a = array{data: flat(v), shape: []int{len(v)}}
	case []float64:
		a = array{data: flat(v), shape: []int{len(v)}}

	case [][]int8:
		a.bits = 8
		a.data, a.shape, err = flat2(v)
	case [][]uint8:
		a.bits = 8
		a.data, a.shape, err = flat2(v)
	case [][]int16:
		a.bits = 16
		a.data, a.shape, err = flat2(v)
	case [][]uint16:
		a.bits = 16
		a.data, a.shape, err = flat2(v)
	case [][]int32:
		a.bits = 32
		a.data, a.shape, err = flat2(v)
	case [][]uint32:
		a.bits = 32
		a.data, a.shape, err = flat2(v)
	case [][]float32:
		a.data, a.shape, err = flat2(v)
	case [][]float64:
		a.data, a.shape, err = flat2(v)

	case [][][]int16:
		a.bits = 16
		a.data, a.shape, err = flat3(v)
	case [][][]uint16:
		a.bits = 16
		a.data, a.shape, err = flat3(v)
	case [][][]float32:
		a.data, a.shape, err = flat3(v)
	case [][][]float64:
		a.data, a.shape, err = flat3(v)

	default:
		return array{}, fmt.Errorf("unsupported value type %T", values)
	}
	return a, err
}

// unpack applies the CF packing attributes: _Unsigned, _FillValue,
// valid_range, scale_factor and add_offset. Cells that are fill or out of
// range become NaN.
func unpack(a array, attrs attributes) []float64 {
	unsigned := a.bits > 0 && a.bits < 64 && strings.EqualFold(attrString(attrs, "_Unsigned"), "true")
	fix := func(v float64) float64 {
		if unsigned && v < 0 {
			return v + math.Exp2(float64(a.bits))
		}
		return v
	}

	fill, hasFill := attrFloat(attrs, "_FillValue")
	fill = fix(fill)
	lo, hi, hasRange := attrRange(attrs)
	if hasRange {
		lo, hi = fix(lo), fix(hi)
	}
	scale, ok := attrFloat(attrs, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := attrFloat(attrs, "add_offset")

	out := make([]float64, len(a.data))
	for i, raw := range a.data {
		raw = fix(raw)
		switch {
		case math.IsNaN(raw):
			out[i] = math.NaN()
		case hasFill && raw == fill:
			out[i] = math.NaN()
		case hasRange && (raw < lo || raw > hi):
			out[i] = math.NaN()
		default:
			out[i] = raw*scale + offset
		}
	}
	return out
}

// readFloat reads and unpacks a variable.
func readFloat(src source, name string) ([]float64, []int, *variable, error) {
	v, err := src.variable(name)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := toArray(v.values)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return unpack(a, v.attrs), a.shape, v, nil
}

// readRaster reads a variable as a 2-D raster; 1-D variables become a
// single row.
func readRaster(src source, name string) (grid.Raster, *variable, error) {
	data, shape, v, err := readFloat(src, name)
	if err != nil {
		return grid.Raster{}, nil, err
	}
	switch len(shape) {
	case 1:
		return grid.Raster{Rows: 1, Cols: shape[0], Data: data}, v, nil
	case 2:
		return grid.Raster{Rows: shape[0], Cols: shape[1], Data: data}, v, nil
	}
	return grid.Raster{}, nil, fmt.Errorf("%s: %d-D variable, want 1-D or 2-D", name, len(shape))
}

func attrFloat(attrs attributes, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	a, err := toArray(raw)
	if err != nil || len(a.data) == 0 {
		return 0, false
	}
	return a.data[0], true
}

func attrRange(attrs attributes) (lo, hi float64, ok bool) {
	if attrs == nil {
		return 0, 0, false
	}
	raw, ok := attrs.Get("valid_range")
	if !ok {
		return 0, 0, false
	}
	a, err := toArray(raw)
	if err != nil || len(a.data) != 2 {
		return 0, 0, false
	}
	return a.data[0], a.data[1], true
}

func attrString(attrs attributes, key string) string {
	if attrs == nil {
		return ""
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []byte:
		return string(v)
	}
	return fmt.Sprint(raw)
}
