package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/record"
)

// Summary tallies a run.
type Summary struct {
	// Processed steps produced points or an empty record.
	Processed int
	// Skipped steps had no usable granule.
	Skipped int
	// Empty steps were processed but retained no points.
	Empty int
	// Points is the number of points written.
	Points int
	// Records is the number of records or lines written.
	Records int
}

// LogAttrs returns the summary suitable for logging.
func (s Summary) LogAttrs() []any {
	return []any{
		"processed", s.Processed,
		"skipped", s.Skipped,
		"empty", s.Empty,
		"points", s.Points,
		"records", s.Records,
	}
}

// Sink receives a summary of every processed time step.
type Sink interface {
	Insert(ctx context.Context, sums []record.Summary) error
}

// Runner executes one run over its time steps, one granule at a time.
type Runner struct {
	logger  *slog.Logger
	opts    Options
	src     Source
	sink    Sink
	metrics *Metrics

	sum Summary
}

// NewRunner validates opts and prepares a run. sink and metrics may be nil.
func NewRunner(logger *slog.Logger, opts Options, src Source, sink Sink, metrics *Metrics) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Runner{logger: logger, opts: opts, src: src, sink: sink, metrics: metrics}, nil
}

// Run processes every time step in order. Failures of individual steps are
// logged and skipped; only output errors and cancellation stop the run.
// Whatever was accumulated is still written when the run is canceled.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.logger.Info("Starting run",
		"job", r.opts.Job,
		"product", r.opts.Product,
		"variable", r.opts.Variable,
		"start", r.opts.Start.Format(time.DateOnly),
		"end", r.opts.End.Format(time.DateOnly),
		"cadence", r.opts.Cadence,
	)

	var err error
	switch r.opts.Job {
	case JobHourly:
		err = r.runHourly(ctx)
	case JobSwath:
		err = r.runSwath(ctx)
	case JobWinds:
		err = r.runWinds(ctx)
	case JobBatch:
		err = r.runBatch(ctx)
	case JobDayMean:
		err = r.runDayMean(ctx)
	}
	r.logger.Info("Run finished", r.sum.LogAttrs()...)
	return r.sum, err
}

// step is one processed time step.
type step struct {
	at     time.Time
	points *grid.Points
	// scan is the scan start of the granule.
	scan time.Time
}

// process fetches and extracts the granule for t. It returns false when the
// step was skipped.
func (r *Runner) process(ctx context.Context, t time.Time) (step, bool) {
	start := time.Now()
	res := r.src.Fetch(ctx, t)
	if res.Skip == nil {
		pts, err := extract(&r.opts, res.Granule)
		if err == nil {
			return r.processed(ctx, t, res.Granule.Time, pts, start), true
		}
		res.Skip = err
	}
	r.skipped(t, res.Skip, start)
	return step{}, false
}

func (r *Runner) skipped(t time.Time, reason error, start time.Time) {
	r.sum.Skipped++
	r.metrics.skip(skipReason(reason))
	r.metrics.step(resultSkipped, time.Since(start).Seconds())

	var sme *grid.ShapeMismatchError
	if errors.As(reason, &sme) {
		r.logger.Warn("Skipping step", "time", t.Format(time.RFC3339), "op", sme.Op, "want", sme.Want.String(), "got", sme.Got, "err", reason)
		return
	}
	r.logger.Warn("Skipping step", "time", t.Format(time.RFC3339), "err", reason)
}

func (r *Runner) processed(ctx context.Context, t, scan time.Time, pts *grid.Points, start time.Time) step {
	r.sum.Processed++
	r.metrics.points(pts.Len())
	if pts.Len() == 0 {
		r.sum.Empty++
		r.metrics.step(resultEmpty, time.Since(start).Seconds())
		r.logger.Info("No points retained", "time", t.Format(time.RFC3339))
	} else {
		r.metrics.step(resultProcessed, time.Since(start).Seconds())
		r.logger.Info("Processed step", "time", t.Format(time.RFC3339), "scan", scan.Format(time.RFC3339), "points", pts.Len())
	}

	if r.sink != nil {
		sum := record.Summary{Time: scan, Product: r.opts.Product, Variable: r.opts.Variable, Mean: record.Mean(pts.Value), NumPoints: pts.Len()}
		if err := r.sink.Insert(ctx, []record.Summary{sum}); err != nil {
			r.logger.Warn("Could not insert summary", "err", err)
		}
	}
	return step{at: t, points: pts, scan: scan}
}

func (r *Runner) wrote(records, points int) {
	r.sum.Records += records
	r.sum.Points += points
	r.metrics.record(records)
}

// steps calls fn for every time step of every day, stopping early when ctx
// is done. dayEnd is called after the steps of each day.
func (r *Runner) steps(ctx context.Context, fn func(step) error, dayEnd func(day time.Time) error) error {
	for _, day := range r.opts.Days() {
		for _, t := range r.opts.StepsOf(day) {
			if err := ctx.Err(); err != nil {
				if dayEnd != nil {
					if ferr := dayEnd(day); ferr != nil {
						return errors.Join(err, ferr)
					}
				}
				return err
			}
			if s, ok := r.process(ctx, t); ok {
				if err := fn(s); err != nil {
					return err
				}
			}
		}
		if dayEnd != nil {
			if err := dayEnd(day); err != nil {
				return err
			}
		}
	}
	return nil
}
