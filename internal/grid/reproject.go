package grid

import (
	"fmt"
	"math"

	"github.com/rtm0/goesjson/internal/geos"
)

// Reproject maps every cell of values to a geographic latitude and
// longitude using the exact transform of the coordinate layout. The result
// always satisfies the grid shape invariant; otherwise a
// *ShapeMismatchError is returned.
func Reproject(values Raster, coords Coordinates) (*Grid, error) {
	var lat, lon Raster
	switch c := coords.(type) {
	case LatLon2D:
		lat, lon = c.Lat, c.Lon
	case LatLonAxes:
		lat, lon = c.Mesh()
	case FixedGrid:
		var err error
		if lat, lon, err = fixedGridLatLon(c); err != nil {
			return nil, err
		}
	case nil:
		return nil, fmt.Errorf("reproject: no coordinates")
	default:
		return nil, fmt.Errorf("reproject: unsupported coordinates %T", coords)
	}

	lat, lon, err := alignCoordinates(values.Shape(), lat, lon)
	if err != nil {
		return nil, err
	}
	g := &Grid{Lat: lat, Lon: lon, Value: values}
	return g, g.Validate("reproject")
}

// fixedGridLatLon applies the inverse geostationary transform to the mesh
// of the fixed grid axes. Cells whose line of sight misses the Earth get
// NaN coordinates.
func fixedGridLatLon(c FixedGrid) (Raster, Raster, error) {
	tr, err := geos.NewTransformer(c.Projection)
	if err != nil {
		return Raster{}, Raster{}, fmt.Errorf("reproject: %w", err)
	}
	rows, cols := len(c.Y), len(c.X)
	lat := NewRaster(rows, cols, 0)
	lon := NewRaster(rows, cols, 0)
	for i, y := range c.Y {
		for j, x := range c.X {
			la, lo, ok := tr.Inverse(x, y)
			if !ok {
				la, lo = math.NaN(), math.NaN()
			}
			lat.Set(i, j, la)
			lon.Set(i, j, lo)
		}
	}
	return lat, lon, nil
}

// alignCoordinates trims coordinate rasters that are larger than the value
// raster in both dimensions down to its top-left window. Any other
// disagreement is a shape mismatch.
func alignCoordinates(want Shape, lat, lon Raster) (Raster, Raster, error) {
	if lat.Shape() == want && lon.Shape() == want {
		return lat, lon, nil
	}
	mismatch := &ShapeMismatchError{Op: "reproject", Want: want, Got: []Shape{lat.Shape(), lon.Shape()}}
	if !lat.valid() || !lon.valid() || lat.Shape() != lon.Shape() {
		return Raster{}, Raster{}, mismatch
	}
	if lat.Rows < want.Rows || lat.Cols < want.Cols {
		return Raster{}, Raster{}, mismatch
	}
	return lat.Window(want.Rows, want.Cols), lon.Window(want.Rows, want.Cols), nil
}
