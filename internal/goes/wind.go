package goes

import (
	"fmt"
	"math"

	"github.com/rtm0/goesjson/internal/grid"
)

// Auxiliary variable names used for derived motion winds.
const (
	WindDirection = "wind_direction"
	WindU         = "u"
	WindV         = "v"
)

// SpeedDirToUV converts a wind speed and the meteorological direction the
// wind blows from (degrees clockwise from north) into eastward and
// northward components in the units of speed.
func SpeedDirToUV(speed, dir float64) (u, v float64) {
	rad := dir * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}

// AddWindComponents replaces the wind direction auxiliary raster of g with
// u and v rasters computed from it and the wind speed values. Direction
// itself cannot be block-averaged, components can.
func AddWindComponents(g *Granule) error {
	dir, ok := g.Aux[WindDirection]
	if !ok {
		return fmt.Errorf("%s: %s was not read", g.Variable, WindDirection)
	}
	if dir.Shape() != g.Values.Shape() {
		return &grid.ShapeMismatchError{Op: "wind components", Want: g.Values.Shape(), Got: []grid.Shape{dir.Shape()}}
	}
	u := grid.NewRaster(dir.Rows, dir.Cols, 0)
	v := grid.NewRaster(dir.Rows, dir.Cols, 0)
	for i, spd := range g.Values.Data {
		u.Data[i], v.Data[i] = SpeedDirToUV(spd, dir.Data[i])
	}
	delete(g.Aux, WindDirection)
	g.Aux[WindU] = u
	g.Aux[WindV] = v
	return nil
}
