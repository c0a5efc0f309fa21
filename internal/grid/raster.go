package grid

import (
	"fmt"
	"math"
	"slices"
)

// Shape is the (rows, columns) extent of a raster.
type Shape struct {
	Rows int
	Cols int
}

func (s Shape) String() string { return fmt.Sprintf("(%d,%d)", s.Rows, s.Cols) }

// Len returns the number of cells.
func (s Shape) Len() int { return s.Rows * s.Cols }

// Raster is a row-major 2-D array of float64. Non-finite values mark cells
// without data.
type Raster struct {
	Rows int
	Cols int
	Data []float64
}

// NewRaster allocates a rows x cols raster filled with v.
func NewRaster(rows, cols int, v float64) Raster {
	r := Raster{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	if v != 0 {
		for i := range r.Data {
			r.Data[i] = v
		}
	}
	return r
}

// FromRows builds a raster from a slice of equal-length rows.
func FromRows(rows [][]float64) (Raster, error) {
	if len(rows) == 0 {
		return Raster{}, nil
	}
	r := Raster{Rows: len(rows), Cols: len(rows[0]), Data: make([]float64, 0, len(rows)*len(rows[0]))}
	for i, row := range rows {
		if len(row) != r.Cols {
			return Raster{}, fmt.Errorf("row %d has %d columns, want %d", i, len(row), r.Cols)
		}
		r.Data = append(r.Data, row...)
	}
	return r, nil
}

func (r Raster) Shape() Shape { return Shape{Rows: r.Rows, Cols: r.Cols} }

func (r Raster) At(row, col int) float64 { return r.Data[row*r.Cols+col] }

func (r Raster) Set(row, col int, v float64) { r.Data[row*r.Cols+col] = v }

// Window returns a copy of the top-left rows x cols sub-raster.
func (r Raster) Window(rows, cols int) Raster {
	w := Raster{Rows: rows, Cols: cols, Data: make([]float64, 0, rows*cols)}
	for i := range rows {
		w.Data = append(w.Data, r.Data[i*r.Cols:i*r.Cols+cols]...)
	}
	return w
}

// Clone returns a deep copy of r.
func (r Raster) Clone() Raster {
	return Raster{Rows: r.Rows, Cols: r.Cols, Data: slices.Clone(r.Data)}
}

// valid reports whether the backing slice matches the declared shape.
func (r Raster) valid() bool {
	return r.Rows >= 0 && r.Cols >= 0 && len(r.Data) == r.Rows*r.Cols
}

// Finite reports whether v carries data.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ShapeMismatchError is returned when parallel arrays disagree in shape.
type ShapeMismatchError struct {
	Op   string
	Want Shape
	Got  []Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch: want %s, got %v", e.Op, e.Want, e.Got)
}

// Grid holds parallel latitude, longitude and value rasters of identical
// shape. Aux carries further value fields that travel with the grid (wind
// components, for example).
type Grid struct {
	Lat   Raster
	Lon   Raster
	Value Raster
	Aux   map[string]Raster
}

func (g *Grid) Shape() Shape { return g.Value.Shape() }

// Validate checks the shape invariant across every raster of the grid.
func (g *Grid) Validate(op string) error {
	want := g.Value.Shape()
	ok := g.Value.valid() && g.Lat.valid() && g.Lon.valid() &&
		g.Lat.Shape() == want && g.Lon.Shape() == want
	for _, a := range g.Aux {
		ok = ok && a.valid() && a.Shape() == want
	}
	if ok {
		return nil
	}
	got := []Shape{g.Lat.Shape(), g.Lon.Shape(), g.Value.Shape()}
	for _, name := range g.auxNames() {
		got = append(got, g.Aux[name].Shape())
	}
	return &ShapeMismatchError{Op: op, Want: want, Got: got}
}

func (g *Grid) auxNames() []string {
	names := make([]string, 0, len(g.Aux))
	for name := range g.Aux {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
