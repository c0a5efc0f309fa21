package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rtm0/goesjson/internal/archive"
	"github.com/rtm0/goesjson/internal/geos"
	"github.com/rtm0/goesjson/internal/goes"
	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/record"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var day0 = time.Date(2024, 9, 23, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	granules map[int64]*goes.Granule
	day      []FetchResult
	calls    []time.Time
}

func (f *fakeSource) Fetch(_ context.Context, t time.Time) FetchResult {
	f.calls = append(f.calls, t)
	if g, ok := f.granules[t.Unix()]; ok {
		return FetchResult{Granule: g}
	}
	return FetchResult{Skip: fmt.Errorf("%s: %w", t.Format(time.RFC3339), archive.ErrNotFound)}
}

func (f *fakeSource) FetchDay(_ context.Context, day time.Time) ([]FetchResult, error) {
	f.calls = append(f.calls, day)
	return f.day, nil
}

type fakeSink struct {
	sums []record.Summary
}

func (f *fakeSink) Insert(_ context.Context, sums []record.Summary) error {
	f.sums = append(f.sums, sums...)
	return nil
}

// granule4x4 is a 4x4 field on a 1 degree lat/lon grid with one missing
// cell.
func granule4x4(t time.Time) *goes.Granule {
	values, _ := grid.FromRows([][]float64{
		{1, 2, 3, 4},
		{5, math.NaN(), 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	})
	lat, lon := grid.LatLonAxes{
		Lat: []float64{40, 39, 38, 37},
		Lon: []float64{-80, -79, -78, -77},
	}.Mesh()
	return &goes.Granule{
		Product:  "ABI-L2-RRQPEF",
		Variable: "RRQPE",
		Time:     t,
		Values:   values,
		Coords:   grid.LatLon2D{Lat: lat, Lon: lon},
	}
}

func baseOptions(t *testing.T, job Job) Options {
	box, err := grid.NewBoundingBox(-81, -76, 36, 41)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	return Options{
		Job:        job,
		Satellite:  16,
		Product:    "ABI-L2-RRQPE",
		Domain:     "F",
		Variable:   "RRQPE",
		Start:      day0,
		End:        day0.AddDate(0, 0, 1),
		Cadence:    time.Hour,
		BBox:       &box,
		AreaMask:   true,
		Downsample: 1,
		Stride:     1,
		OutputDir:  dir,
		Output:     filepath.Join(dir, "out.ndjson"),
	}
}

func newTestRunner(t *testing.T, opts Options, src Source, sink Sink) (*Runner, *Metrics) {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRunner(discard, opts, src, sink, m)
	if err != nil {
		t.Fatal(err)
	}
	return r, m
}

type dayDoc struct {
	Date    string `json:"date"`
	Product string `json:"product"`
	Hours   []struct {
		Hour      int                  `json:"hour"`
		MeanValue *float64             `json:"mean_value"`
		Variable  string               `json:"variable"`
		Data      []map[string]float64 `json:"data"`
		NumPoints int                  `json:"num_points"`
	} `json:"hours"`
}

func TestEndToEnd4x4(t *testing.T) {
	opts := baseOptions(t, JobHourly)
	opts.Cadence = 24 * time.Hour
	opts.Downsample = 2
	opts.Precision = record.Precision{Reduce: true}
	src := &fakeSource{granules: map[int64]*goes.Granule{day0.Unix(): granule4x4(day0)}}
	sink := &fakeSink{}
	r, m := newTestRunner(t, opts, src, sink)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || sum.Skipped != 0 || sum.Points != 4 || sum.Records != 1 {
		t.Errorf("summary = %+v", sum)
	}

	b, err := os.ReadFile(HourlyPath(opts.OutputDir, day0, "RRQPE"))
	if err != nil {
		t.Fatal(err)
	}
	var doc dayDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Date != "2024-09-23" || doc.Product != "ABI-L2-RRQPE" || len(doc.Hours) != 1 {
		t.Fatalf("unexpected document: %s", b)
	}
	h := doc.Hours[0]
	if h.Hour != 0 || h.NumPoints != 4 || len(h.Data) != 4 {
		t.Fatalf("unexpected hour: %+v", h)
	}
	want := []map[string]float64{
		{"lat": 39.5, "lon": -79.5, "RRQPE": 2.67},
		{"lat": 39.5, "lon": -77.5, "RRQPE": 5.5},
		{"lat": 37.5, "lon": -79.5, "RRQPE": 11.5},
		{"lat": 37.5, "lon": -77.5, "RRQPE": 13.5},
	}
	for i, w := range want {
		for k, v := range w {
			if h.Data[i][k] != v {
				t.Errorf("data[%d][%s] = %v, want %v", i, k, h.Data[i][k], v)
			}
		}
	}
	wantMean := (8.0/3 + 5.5 + 11.5 + 13.5) / 4
	if h.MeanValue == nil || math.Abs(*h.MeanValue-wantMean) > 1e-9 {
		t.Errorf("mean_value = %v, want %v", h.MeanValue, wantMean)
	}

	if len(sink.sums) != 1 || sink.sums[0].NumPoints != 4 || !sink.sums[0].Time.Equal(day0) {
		t.Errorf("sink got %+v", sink.sums)
	}
	if got := testutil.ToFloat64(m.Points); got != 4 {
		t.Errorf("points metric = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.Steps.WithLabelValues(resultProcessed)); got != 1 {
		t.Errorf("processed metric = %v, want 1", got)
	}
}

func TestEmptyDay(t *testing.T) {
	opts := baseOptions(t, JobHourly)
	src := &fakeSource{}
	r, m := newTestRunner(t, opts, src, nil)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 24 || sum.Processed != 0 || sum.Records != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if _, err := os.Stat(HourlyPath(opts.OutputDir, day0, "RRQPE")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no day file, got %v", err)
	}
	if got := testutil.ToFloat64(m.Skips.WithLabelValues("not_found")); got != 24 {
		t.Errorf("not_found skips = %v, want 24", got)
	}
	if got := testutil.ToFloat64(m.Steps.WithLabelValues(resultSkipped)); got != 24 {
		t.Errorf("skipped steps = %v, want 24", got)
	}
}

func TestHourlyEmptyHourIsRecorded(t *testing.T) {
	opts := baseOptions(t, JobHourly)
	far, _ := grid.NewBoundingBox(10, 20, 10, 20)
	opts.BBox = &far
	t1 := day0.Add(5 * time.Hour)
	src := &fakeSource{granules: map[int64]*goes.Granule{t1.Unix(): granule4x4(t1)}}
	r, m := newTestRunner(t, opts, src, nil)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Empty != 1 || sum.Skipped != 23 {
		t.Errorf("summary = %+v", sum)
	}
	b, err := os.ReadFile(HourlyPath(opts.OutputDir, day0, "RRQPE"))
	if err != nil {
		t.Fatal(err)
	}
	var doc dayDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Hours) != 1 || doc.Hours[0].Hour != 5 || doc.Hours[0].MeanValue != nil || doc.Hours[0].NumPoints != 0 {
		t.Errorf("unexpected document: %s", b)
	}
	if got := testutil.ToFloat64(m.Steps.WithLabelValues(resultEmpty)); got != 1 {
		t.Errorf("empty steps = %v, want 1", got)
	}
}

func TestSwathOrderAndEmptyOmitted(t *testing.T) {
	opts := baseOptions(t, JobSwath)
	opts.End = day0.AddDate(0, 0, 2)
	opts.Cadence = 12 * time.Hour
	thr := 0.5
	opts.Threshold = &thr

	src := &fakeSource{granules: map[int64]*goes.Granule{}}
	steps := []time.Time{day0, day0.Add(12 * time.Hour), day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 1).Add(12 * time.Hour)}
	for i, st := range steps {
		g := granule4x4(st.Add(3 * time.Minute))
		if i == 1 {
			for j := range g.Values.Data {
				g.Values.Data[j] = 0
			}
		}
		src.granules[st.Unix()] = g
	}
	r, _ := newTestRunner(t, opts, src, nil)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 4 || sum.Empty != 1 || sum.Records != 3 || sum.Points != 45 {
		t.Errorf("summary = %+v", sum)
	}
	for i, c := range src.calls {
		if !c.Equal(steps[i]) {
			t.Errorf("call %d at %s, want %s", i, c, steps[i])
		}
	}

	lines, err := record.ReadLines(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-09-23T00:03:00Z", "2024-09-24T00:03:00Z", "2024-09-24T12:03:00Z"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i, l := range lines {
		var rec struct {
			Datetime string    `json:"datetime"`
			Lat      []float64 `json:"lat"`
			Values   []float64 `json:"RRQPE"`
		}
		if err := json.Unmarshal(l, &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Datetime != want[i] || len(rec.Lat) != 15 || len(rec.Values) != 15 {
			t.Errorf("line %d: %s", i, l)
		}
	}
}

func TestWindsPerDay(t *testing.T) {
	opts := baseOptions(t, JobWinds)
	opts.Variable = "DMW"
	opts.Cadence = 24 * time.Hour
	opts.PerDay = true
	opts.WindComponents = true

	g := granule4x4(day0)
	g.Values = grid.NewRaster(4, 4, 10)
	g.Aux = map[string]grid.Raster{goes.WindDirection: grid.NewRaster(4, 4, 90)}
	src := &fakeSource{granules: map[int64]*goes.Granule{day0.Unix(): g}}
	r, _ := newTestRunner(t, opts, src, nil)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	lines, err := record.ReadLines(WindDayPath(opts.OutputDir, day0))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	var rec struct {
		Datetime string    `json:"datetime"`
		Speeds   []float64 `json:"wind_speeds"`
		U        []float64 `json:"u_components"`
		V        []float64 `json:"v_components"`
	}
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Datetime != "2024-09-23T00:00:00" || len(rec.Speeds) != 16 || len(rec.U) != 16 || len(rec.V) != 16 {
		t.Fatalf("unexpected record: %s", lines[0])
	}
	if math.Abs(rec.U[0]+10) > 1e-9 || math.Abs(rec.V[0]) > 1e-9 {
		t.Errorf("u, v = %v, %v; want -10, 0", rec.U[0], rec.V[0])
	}
}

func TestBatchFlushedOnCancel(t *testing.T) {
	opts := baseOptions(t, JobBatch)
	opts.Output = filepath.Join(opts.OutputDir, "batch.json")
	opts.Cadence = 6 * time.Hour
	src := &fakeSource{granules: map[int64]*goes.Granule{day0.Unix(): granule4x4(day0)}}
	r, _ := newTestRunner(t, opts, src, nil)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Records != 1 || sum.Skipped != 3 {
		t.Errorf("summary = %+v", sum)
	}
	var batch []struct {
		Datetime string               `json:"datetime"`
		Points   []map[string]float64 `json:"points"`
	}
	b, err := os.ReadFile(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &batch); err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].Datetime != "2024-09-23T00:00:00" || len(batch[0].Points) != 15 {
		t.Errorf("unexpected batch: %s", b)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, _ = newTestRunner(t, opts, src, nil)
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	b, err = os.ReadFile(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &batch); err != nil || len(batch) != 0 {
		t.Errorf("canceled batch = %s, err %v", b, err)
	}
}

func fixedGranule(t time.Time, v float64) *goes.Granule {
	p := geos.GOESEast()
	h := p.PerspectiveHeight
	n := 101
	fg := grid.FixedGrid{Projection: p, X: make([]float64, n), Y: make([]float64, n)}
	for i := range n {
		a := -0.05 + 0.1*float64(i)/float64(n-1)
		fg.X[i] = a * h
		fg.Y[n-1-i] = a * h
	}
	return &goes.Granule{
		Product:  "ABI-L2-TPWF",
		Variable: "TPW",
		Time:     t,
		Values:   grid.NewRaster(n, n, v),
		Coords:   fg,
	}
}

func TestDayMean(t *testing.T) {
	opts := baseOptions(t, JobDayMean)
	box, _ := grid.NewBoundingBox(-80, -70, -5, 5)
	opts.BBox = &box
	opts.Product = "ABI-L2-TPW"
	opts.Variable = "TPW"
	opts.Resolution = 1
	src := &fakeSource{day: []FetchResult{
		{Granule: fixedGranule(day0.Add(time.Hour), 5)},
		{Skip: archive.ErrNotFound},
		{Granule: granule4x4(day0.Add(2 * time.Hour))},
		{Granule: fixedGranule(day0.Add(3*time.Hour), 7)},
	}}
	r, m := newTestRunner(t, opts, src, nil)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 2 || sum.Skipped != 2 || sum.Records != 1 || sum.Points != 100 {
		t.Errorf("summary = %+v", sum)
	}
	if got := testutil.ToFloat64(m.Skips.WithLabelValues("unsupported_coordinates")); got != 1 {
		t.Errorf("unsupported skips = %v, want 1", got)
	}

	b, err := os.ReadFile(DayMeanPath(opts.OutputDir, day0, "TPW"))
	if err != nil {
		t.Fatal(err)
	}
	var rec struct {
		Lats        []float64    `json:"lats"`
		Lons        []float64    `json:"lons"`
		Values      [][]*float64 `json:"values"`
		NumGranules int          `json:"num_granules"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.NumGranules != 2 || len(rec.Lats) != 10 || len(rec.Lons) != 10 || len(rec.Values) != 10 {
		t.Fatalf("unexpected raster: %s", b)
	}
	if rec.Lats[0] != 4.5 || rec.Lons[0] != -79.5 {
		t.Errorf("first centre = (%v, %v), want (4.5, -79.5)", rec.Lats[0], rec.Lons[0])
	}
	for i, row := range rec.Values {
		for j, v := range row {
			if v == nil || math.Abs(*v-6) > 1e-9 {
				t.Fatalf("values[%d][%d] = %v, want 6", i, j, v)
			}
		}
	}
}

func TestExtractOutsideBox(t *testing.T) {
	opts := baseOptions(t, JobSwath)
	far, _ := grid.NewBoundingBox(10, 20, 10, 20)
	opts.BBox = &far
	pts, err := extract(&opts, granule4x4(day0))
	if err != nil {
		t.Fatal(err)
	}
	if pts.Len() != 0 {
		t.Errorf("got %d points, want 0", pts.Len())
	}

	opts.AreaMask = false
	opts.Stride = 4
	if pts, err = extract(&opts, granule4x4(day0)); err != nil {
		t.Fatal(err)
	}
	if pts.Len() != 4 || pts.Value[1] != 5 || pts.Value[3] != 14 {
		t.Errorf("decimated values = %v, want every 4th finite value", pts.Value)
	}
}

func TestSkipReason(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", archive.ErrNotFound), "not_found"},
		{&grid.ShapeMismatchError{Op: "reproject"}, "shape_mismatch"},
		{goes.ErrUnsupportedCoordinates, "unsupported_coordinates"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "error"},
	} {
		if got := skipReason(tc.err); got != tc.want {
			t.Errorf("skipReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	ok := baseOptions(t, JobHourly)
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
	if n := len(ok.StepsOf(day0)); n != 24 {
		t.Errorf("steps = %d, want 24", n)
	}
	if d := ok.Days(); len(d) != 1 || !d[0].Equal(day0) {
		t.Errorf("days = %v", d)
	}

	for name, mutate := range map[string]func(o *Options){
		"job":        func(o *Options) { o.Job = "nope" },
		"product":    func(o *Options) { o.Product = "" },
		"satellite":  func(o *Options) { o.Satellite = 0 },
		"dates":      func(o *Options) { o.End = o.Start },
		"cadence":    func(o *Options) { o.Cadence = 0 },
		"hourKey":    func(o *Options) { o.Cadence = 30 * time.Minute },
		"downsample": func(o *Options) { o.Downsample = 0 },
		"stride":     func(o *Options) { o.Stride = 0 },
		"tolerance":  func(o *Options) { o.ZeroTolerance = -1 },
		"bbox":       func(o *Options) { o.BBox = nil },
		"outputDir":  func(o *Options) { o.OutputDir = "" },
		"daymean":    func(o *Options) { o.Job = JobDayMean },
		"swath":      func(o *Options) { o.Job, o.Output = JobSwath, "" },
		"perDay":     func(o *Options) { o.Job, o.PerDay, o.OutputDir = JobWinds, true, "" },
	} {
		o := baseOptions(t, JobHourly)
		mutate(&o)
		if err := o.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	swath := baseOptions(t, JobSwath)
	swath.Cadence = 10 * time.Minute
	if err := swath.Validate(); err != nil {
		t.Errorf("sub-hour cadence rejected for %s: %v", swath.Job, err)
	}
}
