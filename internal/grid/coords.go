package grid

import "github.com/rtm0/goesjson/internal/geos"

// Coordinates is the coordinate layout a granule carries. It is one of
// LatLon2D, LatLonAxes or FixedGrid.
type Coordinates interface {
	isCoordinates()
}

// LatLon2D is a per-cell geographic grid already present in the dataset.
type LatLon2D struct {
	Lat Raster
	Lon Raster
}

// LatLonAxes are 1-D geographic axes; Lat indexes rows and Lon indexes
// columns.
type LatLonAxes struct {
	Lat []float64
	Lon []float64
}

// FixedGrid is the native geostationary grid. X and Y are in projected
// metres; X indexes columns and Y indexes rows.
type FixedGrid struct {
	Projection geos.Projection
	X          []float64
	Y          []float64
}

func (LatLon2D) isCoordinates()   {}
func (LatLonAxes) isCoordinates() {}
func (FixedGrid) isCoordinates()  {}

// Mesh expands the axes into 2-D rasters by outer product.
func (a LatLonAxes) Mesh() (lat, lon Raster) {
	rows, cols := len(a.Lat), len(a.Lon)
	lat = NewRaster(rows, cols, 0)
	lon = NewRaster(rows, cols, 0)
	for i, la := range a.Lat {
		for j, lo := range a.Lon {
			lat.Set(i, j, la)
			lon.Set(i, j, lo)
		}
	}
	return lat, lon
}
