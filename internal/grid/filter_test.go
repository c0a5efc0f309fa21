package grid

import (
	"math"
	"slices"
	"testing"
)

func mustBox(t *testing.T, minLon, maxLon, minLat, maxLat float64) *BoundingBox {
	t.Helper()
	b, err := NewBoundingBox(minLon, maxLon, minLat, maxLat)
	if err != nil {
		t.Fatal(err)
	}
	return &b
}

func testPoints() *Points {
	return &Points{
		Lat:   []float64{15, 40, 20, 25, 30, math.NaN(), 10, 35},
		Lon:   []float64{-95, -70, -80, -80, -80, -80, -80, -60},
		Value: []float64{1, 2, 0, math.NaN(), 3.5, 4, 5, 6},
	}
}

func TestFilterBoundingBoxInclusive(t *testing.T) {
	p := testPoints()
	idx, err := Filter(p, FilterOptions{BBox: mustBox(t, -95, -70, 15, 40)})
	if err != nil {
		t.Fatal(err)
	}
	// 0 and 1 sit exactly on the corners; 5 has NaN latitude.
	if want := []int{0, 1, 2, 3, 4}; !slices.Equal(idx, want) {
		t.Errorf("idx = %v, want %v", idx, want)
	}
}

func TestFilterPredicates(t *testing.T) {
	p := testPoints()
	thr := 3.5

	idx, err := Filter(p, FilterOptions{FiniteOnly: true, NonzeroOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{0, 1, 4, 5, 6, 7}; !slices.Equal(idx, want) {
		t.Errorf("finite+nonzero idx = %v, want %v", idx, want)
	}

	idx, err = Filter(p, FilterOptions{FiniteOnly: true, Threshold: &thr})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{5, 6, 7}; !slices.Equal(idx, want) {
		t.Errorf("threshold idx = %v, want %v (strictly greater)", idx, want)
	}

	idx, err = Filter(p, FilterOptions{NonzeroOnly: true, ZeroTolerance: 1})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 4, 5, 6, 7}; !slices.Equal(idx, want) {
		t.Errorf("tolerance idx = %v, want %v", idx, want)
	}
}

func TestFilterIdempotent(t *testing.T) {
	p := testPoints()
	opts := FilterOptions{FiniteOnly: true, NonzeroOnly: true, BBox: mustBox(t, -90, -70, 10, 40)}

	once, err := Filter(p, opts)
	if err != nil {
		t.Fatal(err)
	}
	sel := p.Select(once)
	twice, err := Filter(sel, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(twice) != len(once) {
		t.Fatalf("second pass kept %d of %d", len(twice), len(once))
	}
	again := sel.Select(twice)
	if !slices.Equal(again.Value, sel.Value) || !slices.Equal(again.Lat, sel.Lat) {
		t.Errorf("second pass changed the selection: %v vs %v", again.Value, sel.Value)
	}
}

func TestFilterEmptyIsNotAnError(t *testing.T) {
	p := testPoints()
	idx, err := Filter(p, FilterOptions{BBox: mustBox(t, 0, 10, 0, 10)})
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 0 {
		t.Errorf("idx = %v, want none", idx)
	}
}

func TestFilterMismatch(t *testing.T) {
	p := &Points{Lat: []float64{1}, Lon: []float64{1, 2}, Value: []float64{1, 2}}
	if _, err := Filter(p, FilterOptions{}); err == nil {
		t.Error("expected shape mismatch")
	}
}

func TestDecimate(t *testing.T) {
	idx := []int{3, 4, 8, 9, 10, 12, 15}
	got, err := Decimate(idx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{3, 9, 15}; !slices.Equal(got, want) {
		t.Errorf("Decimate = %v, want %v", got, want)
	}
	if got, _ := Decimate(idx, 1); !slices.Equal(got, idx) {
		t.Errorf("stride 1 changed indices: %v", got)
	}
	if _, err := Decimate(idx, 0); err == nil {
		t.Error("expected error for stride 0")
	}
}

func TestSelectCarriesAux(t *testing.T) {
	p := &Points{
		Lat:   []float64{1, 2, 3},
		Lon:   []float64{4, 5, 6},
		Value: []float64{7, 8, 9},
		Aux:   map[string][]float64{"u": {10, 11, 12}},
	}
	s := p.Select([]int{2, 0})
	if !slices.Equal(s.Aux["u"], []float64{12, 10}) || !slices.Equal(s.Lon, []float64{6, 4}) {
		t.Errorf("Select = %+v", s)
	}
}

func TestBoundingBox(t *testing.T) {
	if _, err := NewBoundingBox(-70, -95, 15, 40); err == nil {
		t.Error("expected error for inverted longitudes")
	}
	if _, err := NewBoundingBox(-95, -70, 15, 95); err == nil {
		t.Error("expected error for latitude beyond the pole")
	}
	b := mustBox(t, -95, -70, 15, 40)
	if b.Contains(math.NaN(), -80) || b.Contains(20, math.Inf(-1)) {
		t.Error("non-finite coordinates must not be contained")
	}
	if !b.Intersects(Extent([]float64{10, 16}, []float64{-100, -90})) {
		t.Error("expected overlap with extent crossing the box")
	}
	if b.Intersects(Extent([]float64{math.NaN()}, []float64{-80})) {
		t.Error("empty extent must not intersect")
	}
}

func TestExtent(t *testing.T) {
	ext := Extent(
		[]float64{20, math.NaN(), 35, 25},
		[]float64{-90, -60, -75, math.Inf(1)},
	)
	if ext == nil {
		t.Fatal("Extent = nil, want bounds of the finite pairs")
	}
	if ext.Min.X != -90 || ext.Max.X != -75 || ext.Min.Y != 20 || ext.Max.Y != 35 {
		t.Errorf("Extent = %+v, want lon [-90, -75] lat [20, 35]", *ext)
	}
	if Extent(nil, nil) != nil {
		t.Error("Extent of no points must be nil")
	}

	b := mustBox(t, -95, -70, 15, 40)
	if !b.Intersects(ext) {
		t.Error("expected overlap with extent inside the box")
	}
	if b.Intersects(Extent([]float64{-30, -20}, []float64{10, 20})) {
		t.Error("expected no overlap with extent outside the box")
	}
	// Touching edges count, the box is inclusive.
	if !b.Intersects(Extent([]float64{40, 50}, []float64{-70, -60})) {
		t.Error("expected overlap with extent sharing the box corner")
	}
}
