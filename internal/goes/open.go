package goes

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/goesjson/internal/grid"
)

// epoch is the reference time of the GOES-R "t" variable.
var epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

var errMissingVariable = errors.New("no such variable")

// groupSource reads variables from an open NetCDF group.
type groupSource struct {
	nc    api.Group
	names []string
}

func newGroupSource(nc api.Group) *groupSource {
	return &groupSource{nc: nc, names: nc.ListVariables()}
}

func (s *groupSource) variable(name string) (*variable, error) {
	if !slices.Contains(s.names, name) {
		return nil, fmt.Errorf("%s: %w", name, errMissingVariable)
	}
	v, err := s.nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", name, err)
	}
	return &variable{values: v.Values, attrs: v.Attributes}, nil
}

// Open reads variable name, and optionally further variables of the same
// shape, from a GOES L2 NetCDF file and resolves its coordinate layout.
func Open(path, name string, aux ...string) (*Granule, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer nc.Close()

	g, err := decode(path, newGroupSource(nc), name, aux...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func decode(path string, src source, name string, aux ...string) (*Granule, error) {
	values, v, err := readRaster(src, name)
	if err != nil {
		return nil, err
	}
	g := &Granule{
		Path:     path,
		Variable: name,
		Units:    attrString(v.attrs, "units"),
		Values:   values,
	}

	for _, a := range aux {
		r, _, err := readRaster(src, a)
		if err != nil {
			return nil, err
		}
		if r.Shape() != values.Shape() {
			return nil, &grid.ShapeMismatchError{Op: "read " + a, Want: values.Shape(), Got: []grid.Shape{r.Shape()}}
		}
		if g.Aux == nil {
			g.Aux = make(map[string]grid.Raster, len(aux))
		}
		g.Aux[a] = r
	}

	if g.Coords, err = Resolve(src, values.Shape()); err != nil {
		return nil, err
	}

	fn, fnErr := ParseFileName(path)
	if fnErr == nil {
		g.Product = fn.Product
		g.Time = fn.Start
	}
	if t, ok := scanTime(src); ok {
		g.Time = t
	} else if fnErr != nil {
		return nil, fmt.Errorf("no scan time: %w", fnErr)
	}
	return g, nil
}

// scanTime reads the "t" variable, seconds since the J2000 epoch.
func scanTime(src source) (time.Time, bool) {
	data, _, _, err := readFloat(src, "t")
	if err != nil || len(data) == 0 || !grid.Finite(data[0]) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(data[0])
	return epoch.Add(time.Duration(sec)*time.Second + time.Duration(frac*float64(time.Second))).UTC(), true
}
