package grid

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// BoundingBox is an axis-aligned geographic box. X is longitude and Y is
// latitude.
type BoundingBox struct {
	b geom.Bounds
}

// NewBoundingBox returns the box [minLon, maxLon] x [minLat, maxLat].
func NewBoundingBox(minLon, maxLon, minLat, maxLat float64) (BoundingBox, error) {
	for _, v := range []float64{minLon, maxLon, minLat, maxLat} {
		if !Finite(v) {
			return BoundingBox{}, fmt.Errorf("bounding box edge %v is not finite", v)
		}
	}
	if minLon > maxLon || minLat > maxLat {
		return BoundingBox{}, fmt.Errorf("bounding box [%v, %v, %v, %v] has min greater than max", minLon, maxLon, minLat, maxLat)
	}
	if minLat < -90 || maxLat > 90 {
		return BoundingBox{}, fmt.Errorf("bounding box latitudes [%v, %v] outside [-90, 90]", minLat, maxLat)
	}
	return BoundingBox{b: geom.Bounds{
		Min: geom.Point{X: minLon, Y: minLat},
		Max: geom.Point{X: maxLon, Y: maxLat},
	}}, nil
}

func (b BoundingBox) MinLon() float64 { return b.b.Min.X }
func (b BoundingBox) MaxLon() float64 { return b.b.Max.X }
func (b BoundingBox) MinLat() float64 { return b.b.Min.Y }
func (b BoundingBox) MaxLat() float64 { return b.b.Max.Y }

// Bounds returns a copy of the underlying geometry bounds.
func (b BoundingBox) Bounds() *geom.Bounds {
	c := b.b
	return &c
}

// Contains reports whether the point lies in the box, edges included.
// Non-finite coordinates are never contained.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lon >= b.b.Min.X && lon <= b.b.Max.X &&
		lat >= b.b.Min.Y && lat <= b.b.Max.Y
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g]", b.MinLon(), b.MaxLon(), b.MinLat(), b.MaxLat())
}

// Extent returns the bounds of all finite lat/lon pairs, or nil when there
// are none.
func Extent(lat, lon []float64) *geom.Bounds {
	ext := geom.NewBounds()
	n := 0
	for i := range lat {
		if Finite(lat[i]) && Finite(lon[i]) {
			ext.Extend(geom.NewBoundsPoint(geom.Point{X: lon[i], Y: lat[i]}))
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return ext
}

// Intersects reports whether the box overlaps the extent of some data.
func (b BoundingBox) Intersects(ext *geom.Bounds) bool {
	if ext == nil {
		return false
	}
	return b.Bounds().Overlaps(ext)
}

// span returns the width and height of the box in degrees.
func (b BoundingBox) span() (dlon, dlat float64) {
	return math.Abs(b.MaxLon() - b.MinLon()), math.Abs(b.MaxLat() - b.MinLat())
}
