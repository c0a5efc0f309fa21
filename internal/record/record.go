package record

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

// Decimal places kept when precision reduction is on. Four places is about
// 11 m on the ground.
const (
	CoordDecimals = 4
	ValueDecimals = 2
)

// Precision rounds numbers while records are built. The zero value keeps
// full precision.
type Precision struct {
	Reduce bool
}

// Coord rounds a latitude or longitude.
func (p Precision) Coord(v float64) float64 {
	if !p.Reduce || !finite(v) {
		return v
	}
	return scalar.Round(v, CoordDecimals)
}

// Value rounds a measurement.
func (p Precision) Value(v float64) float64 {
	if !p.Reduce || !finite(v) {
		return v
	}
	return scalar.Round(v, ValueDecimals)
}

// Coords rounds a slice of coordinates into a new slice.
func (p Precision) Coords(v []float64) Floats { return p.apply(v, p.Coord) }

// Values rounds a slice of measurements into a new slice.
func (p Precision) Values(v []float64) Floats { return p.apply(v, p.Value) }

func (p Precision) apply(v []float64, f func(float64) float64) Floats {
	out := make(Floats, len(v))
	for i, x := range v {
		out[i] = f(x)
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Float is a number that encodes non-finite values as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	return appendFloat(nil, float64(f)), nil
}

// Floats is a list of numbers that encodes non-finite entries as null.
type Floats []float64

func (fs Floats) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("[]"), nil
	}
	b := make([]byte, 0, 2+len(fs)*8)
	b = append(b, '[')
	for i, v := range fs {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendFloat(b, v)
	}
	return append(b, ']'), nil
}

func appendFloat(b []byte, v float64) []byte {
	if !finite(v) {
		return append(b, "null"...)
	}
	// Same switch-over to exponent notation as encoding/json.
	abs := math.Abs(v)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	return strconv.AppendFloat(b, v, format, -1, 64)
}

// Mean is the arithmetic mean of the finite entries of v, NaN when there
// are none.
func Mean(v []float64) float64 {
	var sum float64
	n := 0
	for _, x := range v {
		if finite(x) {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Point is one retained cell. It encodes as {"lat":..,"lon":..,"<VAR>":..}
// where <VAR> is the variable name.
type Point struct {
	Lat      float64
	Lon      float64
	Value    float64
	Variable string
}

func (p Point) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(p.Variable)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, 64)
	b = append(b, `{"lat":`...)
	b = appendFloat(b, p.Lat)
	b = append(b, `,"lon":`...)
	b = appendFloat(b, p.Lon)
	b = append(b, ',')
	b = append(b, key...)
	b = append(b, ':')
	b = appendFloat(b, p.Value)
	return append(b, '}'), nil
}

// NewPoints builds points from parallel slices, rounding with p.
func NewPoints(variable string, lat, lon, value []float64, p Precision) []Point {
	out := make([]Point, len(value))
	for i := range value {
		out[i] = Point{
			Lat:      p.Coord(lat[i]),
			Lon:      p.Coord(lon[i]),
			Value:    p.Value(value[i]),
			Variable: variable,
		}
	}
	return out
}

// HourRecord summarizes one hour of one day.
type HourRecord struct {
	Hour int `json:"hour"`
	// MeanValue is computed from full precision values; NaN encodes as null.
	MeanValue Float   `json:"mean_value"`
	Variable  string  `json:"variable"`
	Product   string  `json:"product"`
	Data      []Point `json:"data"`
	NumPoints int     `json:"num_points"`
}

// NewHourRecord builds an hour record. The mean is taken over value before
// rounding.
func NewHourRecord(hour int, product, variable string, lat, lon, value []float64, p Precision) HourRecord {
	data := NewPoints(variable, lat, lon, value, p)
	return HourRecord{
		Hour:      hour,
		MeanValue: Float(Mean(value)),
		Variable:  variable,
		Product:   product,
		Data:      data,
		NumPoints: len(data),
	}
}

// DayRecord wraps the hour records of one day.
type DayRecord struct {
	Date    string       `json:"date"`
	Product string       `json:"product"`
	Hours   []HourRecord `json:"hours"`
}

// NewDayRecord creates an empty day record for the given date.
func NewDayRecord(day time.Time, product string) *DayRecord {
	return &DayRecord{Date: day.Format(time.DateOnly), Product: product, Hours: []HourRecord{}}
}

// Mean is the mean of the hourly means that are defined.
func (d *DayRecord) Mean() float64 {
	v := make([]float64, len(d.Hours))
	for i, h := range d.Hours {
		v[i] = float64(h.MeanValue)
	}
	return Mean(v)
}

// SwathTimeFormat is the timestamp layout of swath records.
const SwathTimeFormat = "2006-01-02T15:04:05Z"

// WindTimeFormat is the timestamp layout of wind and batch records.
const WindTimeFormat = "2006-01-02T15:04:05"

// SwathRecord carries the retained cells of one granule as parallel
// arrays: {"datetime","lon","lat","<VAR>"}.
type SwathRecord struct {
	Datetime time.Time
	Variable string
	Lon      Floats
	Lat      Floats
	Values   Floats
}

// NewSwathRecord builds a swath record, rounding with p.
func NewSwathRecord(t time.Time, variable string, lat, lon, value []float64, p Precision) SwathRecord {
	return SwathRecord{
		Datetime: t.UTC(),
		Variable: variable,
		Lon:      p.Coords(lon),
		Lat:      p.Coords(lat),
		Values:   p.Values(value),
	}
}

func (r SwathRecord) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(r.Variable)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, 64+24*len(r.Values))
	b = append(b, `{"datetime":"`...)
	b = r.Datetime.AppendFormat(b, SwathTimeFormat)
	b = append(b, '"')
	for _, f := range []struct {
		key string
		v   Floats
	}{{`"lon"`, r.Lon}, {`"lat"`, r.Lat}, {string(key), r.Values}} {
		enc, err := f.v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		b = append(b, ',')
		b = append(b, f.key...)
		b = append(b, ':')
		b = append(b, enc...)
	}
	return append(b, '}'), nil
}

// WindRecord carries the retained wind vectors of one time step.
type WindRecord struct {
	Datetime    string `json:"datetime"`
	Latitudes   Floats `json:"latitudes"`
	Longitudes  Floats `json:"longitudes"`
	WindSpeeds  Floats `json:"wind_speeds"`
	UComponents Floats `json:"u_components,omitempty"`
	VComponents Floats `json:"v_components,omitempty"`
}

// NewWindRecord builds a wind record. u and v may be nil, in which case the
// components are omitted.
func NewWindRecord(t time.Time, lat, lon, speed, u, v []float64, p Precision) WindRecord {
	r := WindRecord{
		Datetime:   t.UTC().Format(WindTimeFormat),
		Latitudes:  p.Coords(lat),
		Longitudes: p.Coords(lon),
		WindSpeeds: p.Values(speed),
	}
	if u != nil && v != nil {
		r.UComponents = p.Values(u)
		r.VComponents = p.Values(v)
	}
	return r
}

// BatchRecord is one entry of the filtered batch array.
type BatchRecord struct {
	Datetime string  `json:"datetime"`
	Points   []Point `json:"points"`
}

// NewBatchRecord builds a batch entry, rounding with p.
func NewBatchRecord(t time.Time, variable string, lat, lon, value []float64, p Precision) BatchRecord {
	return BatchRecord{
		Datetime: t.UTC().Format(WindTimeFormat),
		Points:   NewPoints(variable, lat, lon, value, p),
	}
}

// RasterRecord is a regular lat/lon raster, typically a day mean. Lats run
// north to south, Lons west to east and Values is indexed [lat][lon].
type RasterRecord struct {
	Date        string   `json:"date"`
	Product     string   `json:"product"`
	Variable    string   `json:"variable"`
	Resolution  float64  `json:"resolution"`
	MinLon      float64  `json:"min_lon"`
	MaxLon      float64  `json:"max_lon"`
	MinLat      float64  `json:"min_lat"`
	MaxLat      float64  `json:"max_lat"`
	Lats        Floats   `json:"lats"`
	Lons        Floats   `json:"lons"`
	Values      []Floats `json:"values"`
	NumGranules int      `json:"num_granules"`
}

// Summary condenses one processed time step for monitoring sinks.
type Summary struct {
	Time      time.Time
	Product   string
	Variable  string
	Mean      float64
	NumPoints int
}
