package goes

import (
	"errors"
	"fmt"

	"github.com/rtm0/goesjson/internal/geos"
	"github.com/rtm0/goesjson/internal/grid"
)

// ProjectionVariable holds the fixed grid projection metadata of ABI
// products.
const ProjectionVariable = "goes_imager_projection"

var latLonNames = [][2]string{
	{"latitude", "longitude"},
	{"lat", "lon"},
}

// Resolve determines the coordinate layout of a dataset whose value
// variable has the given shape. Geographic coordinates stored in the
// dataset take precedence over the fixed grid projection.
func Resolve(src source, values grid.Shape) (grid.Coordinates, error) {
	for _, names := range latLonNames {
		c, ok, err := resolveLatLon(src, values, names[0], names[1])
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
	}

	fg, ok, err := resolveFixedGrid(src)
	if err != nil {
		return nil, err
	}
	if ok {
		return fg, nil
	}
	return nil, ErrUnsupportedCoordinates
}

func resolveLatLon(src source, values grid.Shape, latName, lonName string) (grid.Coordinates, bool, error) {
	lat, latShape, _, err := readFloat(src, latName)
	if errors.Is(err, errMissingVariable) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	lon, lonShape, _, err := readFloat(src, lonName)
	if errors.Is(err, errMissingVariable) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	switch {
	case len(latShape) == 0 || len(lonShape) == 0:
		// Scalar metadata, not coordinates.
		return nil, false, nil
	case len(latShape) == 2 && len(lonShape) == 2:
		return grid.LatLon2D{
			Lat: grid.Raster{Rows: latShape[0], Cols: latShape[1], Data: lat},
			Lon: grid.Raster{Rows: lonShape[0], Cols: lonShape[1], Data: lon},
		}, true, nil
	case len(latShape) == 1 && len(lonShape) == 1:
		// Per-point coordinates of a point product such as DMW.
		if values.Rows == 1 && len(lat) == values.Cols && len(lon) == values.Cols {
			return grid.LatLon2D{
				Lat: grid.Raster{Rows: 1, Cols: len(lat), Data: lat},
				Lon: grid.Raster{Rows: 1, Cols: len(lon), Data: lon},
			}, true, nil
		}
		return grid.LatLonAxes{Lat: lat, Lon: lon}, true, nil
	}
	return nil, false, fmt.Errorf("%s/%s: unsupported ranks %d and %d", latName, lonName, len(latShape), len(lonShape))
}

func resolveFixedGrid(src source) (grid.FixedGrid, bool, error) {
	pv, err := src.variable(ProjectionVariable)
	if errors.Is(err, errMissingVariable) {
		return grid.FixedGrid{}, false, nil
	}
	if err != nil {
		return grid.FixedGrid{}, false, err
	}
	p, err := projectionFromAttrs(pv.attrs)
	if err != nil {
		return grid.FixedGrid{}, false, err
	}

	x, _, _, err := readFloat(src, "x")
	if err != nil {
		return grid.FixedGrid{}, false, err
	}
	y, _, _, err := readFloat(src, "y")
	if err != nil {
		return grid.FixedGrid{}, false, err
	}
	fg := grid.FixedGrid{Projection: p, X: make([]float64, len(x)), Y: make([]float64, len(y))}
	for i, v := range x {
		fg.X[i] = p.ScanToMetres(v)
	}
	for i, v := range y {
		fg.Y[i] = p.ScanToMetres(v)
	}
	return fg, true, nil
}

func projectionFromAttrs(attrs attributes) (geos.Projection, error) {
	var p geos.Projection
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"perspective_point_height", &p.PerspectiveHeight},
		{"longitude_of_projection_origin", &p.LonOrigin},
		{"semi_major_axis", &p.SemiMajor},
		{"semi_minor_axis", &p.SemiMinor},
	} {
		v, ok := attrFloat(attrs, f.key)
		if !ok {
			return geos.Projection{}, fmt.Errorf("%s: missing attribute %q", ProjectionVariable, f.key)
		}
		*f.dst = v
	}
	p.Sweep = geos.Sweep(attrString(attrs, "sweep_angle_axis"))
	if p.Sweep == "" {
		p.Sweep = geos.SweepX
	}
	if err := p.Validate(); err != nil {
		return geos.Projection{}, fmt.Errorf("%s: %w", ProjectionVariable, err)
	}
	return p, nil
}
