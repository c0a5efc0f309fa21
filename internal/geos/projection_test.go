package geos

import (
	"math"
	"strings"
	"testing"
)

func TestInverseSubSatellitePoint(t *testing.T) {
	p := GOESEast()
	lat, lon, ok := p.Inverse(0, 0)
	if !ok {
		t.Fatal("sub-satellite point reported off disk")
	}
	if math.Abs(lat) > 1e-9 || math.Abs(lon-p.LonOrigin) > 1e-9 {
		t.Errorf("got (%f, %f), want (0, %f)", lat, lon, p.LonOrigin)
	}
}

// Reference point from the GOES-R product user guide, section 5.1.2.8.1.
func TestInverseReferencePoint(t *testing.T) {
	p := GOESEast()
	lat, lon, ok := p.Inverse(p.ScanToMetres(-0.024052), p.ScanToMetres(0.095340))
	if !ok {
		t.Fatal("reference point reported off disk")
	}
	if math.Abs(lat-33.846162) > 1e-4 {
		t.Errorf("lat = %f, want 33.846162", lat)
	}
	if math.Abs(lon-(-84.690932)) > 1e-4 {
		t.Errorf("lon = %f, want -84.690932", lon)
	}
}

func TestForwardInverseRoundTrip(t *testing.T) {
	for _, sweep := range []Sweep{SweepX, SweepY} {
		p := GOESEast()
		p.Sweep = sweep
		tr, err := NewTransformer(p)
		if err != nil {
			t.Fatal(err)
		}
		for _, ll := range [][2]float64{{0, -75}, {20, -60}, {-35.5, -100.25}, {45, -30}} {
			x, y, ok := tr.Forward(ll[0], ll[1])
			if !ok {
				t.Fatalf("%v: forward reported invisible", ll)
			}
			lat, lon, ok := tr.Inverse(x, y)
			if !ok {
				t.Fatalf("%v: inverse reported off disk", ll)
			}
			if math.Abs(lat-ll[0]) > 1e-7 || math.Abs(lon-ll[1]) > 1e-7 {
				t.Errorf("sweep %s: round trip %v -> (%f, %f)", sweep, ll, lat, lon)
			}
		}
	}
}

func TestOffDisk(t *testing.T) {
	p := GOESEast()
	if _, _, ok := p.Inverse(p.ScanToMetres(0.2), p.ScanToMetres(0.2)); ok {
		t.Error("expected corner of the scan to miss the Earth")
	}
	if _, _, ok := p.Forward(0, 105); ok {
		t.Error("expected the far side of the Earth to be invisible")
	}
	if lat, lon, ok := p.Inverse(math.NaN(), 0); ok || !math.IsNaN(lat) || !math.IsNaN(lon) {
		t.Error("expected NaN input to produce NaN output")
	}
}

func TestProj4(t *testing.T) {
	got := GOESEast().Proj4()
	for _, want := range []string{"+proj=geos", "+h=35786023", "+lon_0=-75", "+sweep=x", "+a=6378137", "+b=6356752.31414", "+units=m"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q missing %q", got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	p := GOESEast()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := p
	bad.Sweep = "z"
	if bad.Validate() == nil {
		t.Error("expected error for bad sweep axis")
	}

	bad = p
	bad.PerspectiveHeight = 0
	if _, err := NewTransformer(bad); err == nil {
		t.Error("expected error for zero height")
	}

	bad = p
	bad.SemiMinor = bad.SemiMajor + 1
	if bad.Validate() == nil {
		t.Error("expected error for inverted ellipsoid")
	}
}

func TestNormalizeLon(t *testing.T) {
	for in, want := range map[float64]float64{-75: -75, 190: -170, -190: 170, 180: -180, 0: 0} {
		if got := normalizeLon(in); math.Abs(got-want) > 1e-12 {
			t.Errorf("normalizeLon(%v) = %v, want %v", in, got, want)
		}
	}
}
