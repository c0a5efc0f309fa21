package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/rtm0/goesjson/internal/goes"
	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/record"
)

// HourlyPath returns the per-day hourly document path for variable.
func HourlyPath(dir string, day time.Time, variable string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_hourly_%s.json", day.Format("2006_01_02"), variable))
}

// WindDayPath returns the per-day wind NDJSON path.
func WindDayPath(dir string, day time.Time) string {
	return filepath.Join(dir, day.Format(time.DateOnly)+"_hourly_DMW.ndjson")
}

// DayMeanPath returns the per-day mean raster path for variable.
func DayMeanPath(dir string, day time.Time, variable string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_daymean_%s.json", day.Format("2006_01_02"), variable))
}

// runHourly writes one document per day holding an entry per processed
// step. Days without any processed step produce no file.
func (r *Runner) runHourly(ctx context.Context) error {
	var day *record.DayRecord
	return r.steps(ctx,
		func(s step) error {
			if day == nil {
				day = record.NewDayRecord(truncateDay(s.at), r.opts.Product)
			}
			p := s.points
			day.Hours = append(day.Hours, record.NewHourRecord(s.at.Hour(), r.opts.Product, r.opts.Variable, p.Lat, p.Lon, p.Value, r.opts.Precision))
			return nil
		},
		func(d time.Time) error {
			if day == nil {
				r.logger.Info("No hourly data for day", "day", d.Format(time.DateOnly))
				return nil
			}
			path := HourlyPath(r.opts.OutputDir, d, r.opts.Variable)
			if err := record.WriteJSON(path, day, true); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			points := 0
			for _, h := range day.Hours {
				points += h.NumPoints
			}
			r.wrote(1, points)
			r.logger.Info("Wrote day", "path", path, "hours", len(day.Hours), "mean", day.Mean())
			day = nil
			return nil
		})
}

// runSwath appends one line per step with retained points.
func (r *Runner) runSwath(ctx context.Context) error {
	return r.steps(ctx, func(s step) error {
		p := s.points
		if p.Len() == 0 {
			return nil
		}
		rec := record.NewSwathRecord(s.scan, r.opts.Variable, p.Lat, p.Lon, p.Value, r.opts.Precision)
		if err := record.AppendLine(r.opts.Output, rec); err != nil {
			return fmt.Errorf("append %s: %w", r.opts.Output, err)
		}
		r.wrote(1, p.Len())
		return nil
	}, nil)
}

// runWinds writes one line per step with retained vectors, either appended
// to Output or collected into one file per day.
func (r *Runner) runWinds(ctx context.Context) error {
	var lines []record.WindRecord
	points := 0
	emit := func(s step) error {
		p := s.points
		if p.Len() == 0 {
			return nil
		}
		var u, v []float64
		if r.opts.WindComponents {
			u, v = p.Aux[goes.WindU], p.Aux[goes.WindV]
		}
		rec := record.NewWindRecord(s.at, p.Lat, p.Lon, p.Value, u, v, r.opts.Precision)
		if r.opts.PerDay {
			lines = append(lines, rec)
			points += p.Len()
			return nil
		}
		if err := record.AppendLine(r.opts.Output, rec); err != nil {
			return fmt.Errorf("append %s: %w", r.opts.Output, err)
		}
		r.wrote(1, p.Len())
		return nil
	}
	if !r.opts.PerDay {
		return r.steps(ctx, emit, nil)
	}
	return r.steps(ctx, emit, func(d time.Time) error {
		if len(lines) == 0 {
			return nil
		}
		path := WindDayPath(r.opts.OutputDir, d)
		if err := record.WriteLines(path, lines); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		r.wrote(len(lines), points)
		r.logger.Info("Wrote day", "path", path, "lines", len(lines))
		lines, points = nil, 0
		return nil
	})
}

// runBatch collects every processed step and writes them as one array at
// the end of the run, including when the run is canceled.
func (r *Runner) runBatch(ctx context.Context) error {
	batch := []record.BatchRecord{}
	points := 0
	err := r.steps(ctx, func(s step) error {
		p := s.points
		batch = append(batch, record.NewBatchRecord(s.at, r.opts.Variable, p.Lat, p.Lon, p.Value, r.opts.Precision))
		points += p.Len()
		return nil
	}, nil)

	if werr := record.WriteJSON(r.opts.Output, batch, false); werr != nil {
		return errors.Join(err, fmt.Errorf("write %s: %w", r.opts.Output, werr))
	}
	r.wrote(len(batch), points)
	r.logger.Info("Wrote batch", "path", r.opts.Output, "entries", len(batch))
	return err
}

// runDayMean resamples every fixed grid granule of a day onto a regular
// raster over the bounding box and writes the per-cell mean.
func (r *Runner) runDayMean(ctx context.Context) error {
	ro := grid.ResampleOptions{Resolution: r.opts.Resolution, BBox: *r.opts.BBox}
	for _, day := range r.opts.Days() {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		results, err := r.src.FetchDay(ctx, day)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.skipped(day, err, start)
			continue
		}

		var acc *meanAccumulator
		for _, res := range results {
			start := time.Now()
			if res.Skip != nil {
				r.skipped(day, res.Skip, start)
				continue
			}
			g := res.Granule
			fg, ok := g.Coords.(grid.FixedGrid)
			if !ok {
				r.skipped(g.Time, fmt.Errorf("%s: day mean: %w", g.Path, goes.ErrUnsupportedCoordinates), start)
				continue
			}
			out, err := grid.Resample(g.Values, fg, ro)
			if err != nil {
				r.skipped(g.Time, err, start)
				continue
			}
			pts, err := finitePoints(out)
			if err != nil {
				r.skipped(g.Time, err, start)
				continue
			}
			if acc == nil {
				acc = newMeanAccumulator(out)
			}
			acc.add(out.Value)
			r.processed(ctx, g.Time, g.Time, pts, start)
		}

		if acc == nil {
			r.logger.Info("No granules for day", "day", day.Format(time.DateOnly))
			continue
		}
		rec := acc.record(day, &r.opts)
		path := DayMeanPath(r.opts.OutputDir, day, r.opts.Variable)
		if err := record.WriteJSON(path, rec, false); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		r.wrote(1, acc.cells())
		r.logger.Info("Wrote day mean", "path", path, "granules", acc.n)
	}
	return nil
}

func finitePoints(g *grid.Grid) (*grid.Points, error) {
	pts, err := grid.Flatten(g)
	if err != nil {
		return nil, err
	}
	idx, err := grid.Filter(pts, grid.FilterOptions{FiniteOnly: true})
	if err != nil {
		return nil, err
	}
	return pts.Select(idx), nil
}

// meanAccumulator keeps a per-cell NaN-aware running mean.
type meanAccumulator struct {
	lat, lon grid.Raster
	sum      []float64
	count    []int
	n        int
}

func newMeanAccumulator(g *grid.Grid) *meanAccumulator {
	return &meanAccumulator{
		lat:   g.Lat,
		lon:   g.Lon,
		sum:   make([]float64, len(g.Value.Data)),
		count: make([]int, len(g.Value.Data)),
	}
}

func (a *meanAccumulator) add(v grid.Raster) {
	for i, x := range v.Data {
		if grid.Finite(x) {
			a.sum[i] += x
			a.count[i]++
		}
	}
	a.n++
}

// cells is the number of cells with at least one finite value.
func (a *meanAccumulator) cells() int {
	n := 0
	for _, c := range a.count {
		if c > 0 {
			n++
		}
	}
	return n
}

func (a *meanAccumulator) record(day time.Time, opts *Options) record.RasterRecord {
	p := opts.Precision
	lats := make([]float64, a.lat.Rows)
	for i := range lats {
		lats[i] = a.lat.At(i, 0)
	}
	lons := make([]float64, a.lon.Cols)
	for j := range lons {
		lons[j] = a.lon.At(0, j)
	}
	values := make([]record.Floats, a.lat.Rows)
	for i := range values {
		row := make([]float64, a.lat.Cols)
		for j := range row {
			k := i*a.lat.Cols + j
			if a.count[k] == 0 {
				row[j] = math.NaN()
				continue
			}
			row[j] = a.sum[k] / float64(a.count[k])
		}
		values[i] = p.Values(row)
	}
	return record.RasterRecord{
		Date:        day.Format(time.DateOnly),
		Product:     opts.Product,
		Variable:    opts.Variable,
		Resolution:  opts.Resolution,
		MinLon:      opts.BBox.MinLon(),
		MaxLon:      opts.BBox.MaxLon(),
		MinLat:      opts.BBox.MinLat(),
		MaxLat:      opts.BBox.MaxLat(),
		Lats:        p.Coords(lats),
		Lons:        p.Coords(lons),
		Values:      values,
		NumGranules: a.n,
	}
}
