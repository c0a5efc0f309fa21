package goes

import (
	"errors"
	"time"

	"github.com/rtm0/goesjson/internal/geos"
	"github.com/rtm0/goesjson/internal/grid"
)

// ErrUnsupportedCoordinates is returned when a granule carries neither
// geographic coordinates nor fixed grid projection metadata.
var ErrUnsupportedCoordinates = errors.New("unsupported coordinate layout")

// Granule is one scan of one product variable.
type Granule struct {
	Path     string
	Product  string
	Variable string
	Units    string
	// Time is the nominal scan start.
	Time   time.Time
	Values grid.Raster
	// Aux holds further variables read alongside Variable, keyed by name.
	Aux    map[string]grid.Raster
	Coords grid.Coordinates
}

// Projection returns the fixed grid projection of the granule, if it has
// one.
func (g *Granule) Projection() (geos.Projection, bool) {
	if fg, ok := g.Coords.(grid.FixedGrid); ok {
		return fg.Projection, true
	}
	return geos.Projection{}, false
}

// Summary returns information about the granule suitable for logging.
func (g *Granule) Summary() []any {
	layout := "none"
	switch g.Coords.(type) {
	case grid.LatLon2D:
		layout = "latlon2d"
	case grid.LatLonAxes:
		layout = "latlon1d"
	case grid.FixedGrid:
		layout = "fixedgrid"
	}
	attrs := []any{
		"product", g.Product,
		"variable", g.Variable,
		"time", g.Time.Format(time.RFC3339),
		"shape", g.Values.Shape().String(),
		"coords", layout,
	}
	if p, ok := g.Projection(); ok {
		attrs = append(attrs, "crs", p.Proj4())
	}
	return attrs
}
