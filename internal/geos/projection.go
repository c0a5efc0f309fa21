package geos

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sweep is the axis the instrument sweeps around. GOES uses "x", Meteosat
// uses "y".
type Sweep string

const (
	SweepX Sweep = "x"
	SweepY Sweep = "y"
)

// Projection describes a geostationary viewing geometry with the same
// semantics as the PROJ "geos" projection.
type Projection struct {
	// PerspectiveHeight is the satellite height above the ellipsoid in
	// metres.
	PerspectiveHeight float64
	// LonOrigin is the sub-satellite longitude in degrees.
	LonOrigin float64
	Sweep     Sweep
	// SemiMajor and SemiMinor are the ellipsoid axes in metres.
	SemiMajor float64
	SemiMinor float64
}

// GOESEast returns the GRS80 fixed grid of the GOES-East position (75W).
func GOESEast() Projection {
	return Projection{
		PerspectiveHeight: 35786023,
		LonOrigin:         -75,
		Sweep:             SweepX,
		SemiMajor:         6378137,
		SemiMinor:         6356752.31414,
	}
}

// Validate reports whether the projection parameters are usable.
func (p Projection) Validate() error {
	switch {
	case !(p.PerspectiveHeight > 0):
		return fmt.Errorf("perspective point height %v must be positive", p.PerspectiveHeight)
	case !(p.SemiMajor > 0) || !(p.SemiMinor > 0):
		return fmt.Errorf("ellipsoid axes %v/%v must be positive", p.SemiMajor, p.SemiMinor)
	case p.SemiMinor > p.SemiMajor:
		return fmt.Errorf("semi-minor axis %v exceeds semi-major axis %v", p.SemiMinor, p.SemiMajor)
	case p.Sweep != SweepX && p.Sweep != SweepY:
		return fmt.Errorf("sweep angle axis %q is neither x nor y", p.Sweep)
	case math.IsNaN(p.LonOrigin) || math.Abs(p.LonOrigin) > 360:
		return fmt.Errorf("longitude of projection origin %v out of range", p.LonOrigin)
	}
	return nil
}

// Proj4 returns the PROJ string for the projection, suitable for any
// generic reprojection tool.
func (p Projection) Proj4() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return strings.Join([]string{
		"+proj=geos",
		"+h=" + f(p.PerspectiveHeight),
		"+lon_0=" + f(p.LonOrigin),
		"+sweep=" + string(p.Sweep),
		"+a=" + f(p.SemiMajor),
		"+b=" + f(p.SemiMinor),
		"+units=m",
		"+no_defs",
	}, " ")
}

// ScanToMetres converts a normalized scan angle (radians) to projected
// metres.
func (p Projection) ScanToMetres(angle float64) float64 {
	return angle * p.PerspectiveHeight
}

// constants derived once per transform, in units of the semi-major axis.
type terms struct {
	radiusG      float64 // distance from earth centre to satellite
	radiusG1     float64 // perspective height
	radiusP      float64 // polar radius
	radiusP2     float64
	radiusPInv2  float64
	c            float64
	flip         bool
	lon0         float64
	perspectiveH float64
}

func (p Projection) terms() terms {
	rp := p.SemiMinor / p.SemiMajor
	g1 := p.PerspectiveHeight / p.SemiMajor
	g := 1 + g1
	return terms{
		radiusG:      g,
		radiusG1:     g1,
		radiusP:      rp,
		radiusP2:     rp * rp,
		radiusPInv2:  1 / (rp * rp),
		c:            g*g - 1,
		flip:         p.Sweep == SweepX,
		lon0:         p.LonOrigin * math.Pi / 180,
		perspectiveH: p.PerspectiveHeight,
	}
}

// Inverse maps projected coordinates in metres to geodetic latitude and
// longitude in degrees. ok is false when the line of sight misses the
// Earth.
func (p Projection) Inverse(x, y float64) (lat, lon float64, ok bool) {
	return p.terms().inverse(x, y)
}

// Forward maps geodetic latitude and longitude in degrees to projected
// metres. ok is false when the point is not visible from the satellite.
func (p Projection) Forward(lat, lon float64) (x, y float64, ok bool) {
	return p.terms().forward(lat, lon)
}

func (t terms) inverse(x, y float64) (float64, float64, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN(), math.NaN(), false
	}
	// scan angles
	ax, ay := x/t.perspectiveH, y/t.perspectiveH

	vx := -1.0
	var vy, vz float64
	if t.flip {
		vz = math.Tan(ay)
		vy = math.Tan(ax) * math.Hypot(1, vz)
	} else {
		vy = math.Tan(ax)
		vz = math.Tan(ay) * math.Hypot(1, vy)
	}

	a := vz / t.radiusP
	a = vy*vy + a*a + vx*vx
	b := 2 * t.radiusG * vx
	det := b*b - 4*a*t.c
	if det < 0 {
		return math.NaN(), math.NaN(), false
	}

	k := (-b - math.Sqrt(det)) / (2 * a)
	vx = t.radiusG + k*vx
	vy *= k
	vz *= k

	lam := math.Atan2(vy, vx)
	phi := math.Atan(vz * math.Cos(lam) / vx)
	phi = math.Atan(t.radiusPInv2 * math.Tan(phi))

	return phi * 180 / math.Pi, normalizeLon((lam + t.lon0) * 180 / math.Pi), true
}

func (t terms) forward(lat, lon float64) (float64, float64, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 {
		return math.NaN(), math.NaN(), false
	}
	lam := lon*math.Pi/180 - t.lon0
	phi := math.Atan(t.radiusP2 * math.Tan(lat*math.Pi/180))

	r := t.radiusP / math.Hypot(t.radiusP*math.Cos(phi), math.Sin(phi))
	vx := r * math.Cos(lam) * math.Cos(phi)
	vy := r * math.Sin(lam) * math.Cos(phi)
	vz := r * math.Sin(phi)

	if (t.radiusG-vx)*vx-vy*vy-vz*vz*t.radiusPInv2 < 0 {
		return math.NaN(), math.NaN(), false
	}

	tmp := t.radiusG - vx
	var ax, ay float64
	if t.flip {
		ax = math.Atan(vy / math.Hypot(vz, tmp))
		ay = math.Atan(vz / tmp)
	} else {
		ax = math.Atan(vy / tmp)
		ay = math.Atan(vz / math.Hypot(vy, tmp))
	}
	return ax * t.perspectiveH, ay * t.perspectiveH, true
}

// normalizeLon wraps a longitude into [-180, 180).
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// Transformer is a reusable inverse/forward transform for one projection.
type Transformer struct {
	t terms
}

// NewTransformer validates p and precomputes its transform constants.
func NewTransformer(p Projection) (*Transformer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Transformer{t: p.terms()}, nil
}

func (tr *Transformer) Inverse(x, y float64) (lat, lon float64, ok bool) {
	return tr.t.inverse(x, y)
}

func (tr *Transformer) Forward(lat, lon float64) (x, y float64, ok bool) {
	return tr.t.forward(lat, lon)
}
