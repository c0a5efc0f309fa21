package pipeline

import (
	"fmt"
	"time"

	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/record"
)

// Job selects what a run produces.
type Job string

const (
	// JobHourly writes one JSON document per day with an entry per hour.
	JobHourly Job = "hourly"
	// JobSwath appends one NDJSON line of parallel arrays per time step.
	JobSwath Job = "swath"
	// JobWinds writes NDJSON wind vectors, appended or one file per day.
	JobWinds Job = "winds"
	// JobBatch writes a single JSON array of point lists at the end of a run.
	JobBatch Job = "batch"
	// JobDayMean writes a day-mean raster per day.
	JobDayMean Job = "daymean"
)

// Jobs lists the supported jobs.
var Jobs = []Job{JobHourly, JobSwath, JobWinds, JobBatch, JobDayMean}

// Options is the complete, immutable description of a run.
type Options struct {
	Job       Job
	Satellite int
	// Product without scan domain, e.g. ABI-L2-RRQPE.
	Product  string
	Domain   string
	Variable string

	// Start and End are UTC days; End is exclusive.
	Start time.Time
	End   time.Time
	// Cadence is the spacing of time steps within a day, starting at 00:00.
	Cadence time.Duration
	// Window bounds how far a granule may start from its time step.
	Window time.Duration

	BBox *grid.BoundingBox
	// AreaMask enables bounding box filtering of points.
	AreaMask   bool
	Downsample int
	// FilterZeros drops values whose magnitude is at most ZeroTolerance.
	FilterZeros   bool
	ZeroTolerance float64
	// Threshold keeps only values strictly greater than it.
	Threshold *float64
	Stride    int
	Precision record.Precision

	// Resolution in degrees of the day-mean raster.
	Resolution float64
	// WindComponents adds u/v components to wind records.
	WindComponents bool
	// PerDay writes wind records to one file per day in OutputDir instead of
	// appending to Output.
	PerDay bool

	// Output is the file for appended or batch output.
	Output string
	// OutputDir receives per-day files.
	OutputDir string
}

// Validate rejects inconsistent options.
func (o *Options) Validate() error {
	switch o.Job {
	case JobHourly, JobSwath, JobWinds, JobBatch, JobDayMean:
	default:
		return fmt.Errorf("unknown job %q; supported: %v", o.Job, Jobs)
	}
	switch {
	case o.Product == "" || o.Variable == "":
		return fmt.Errorf("product and variable are required")
	case o.Satellite <= 0:
		return fmt.Errorf("satellite %d must be positive", o.Satellite)
	case o.Start.IsZero() || !o.End.After(o.Start):
		return fmt.Errorf("end %s must be after start %s", o.End.Format(time.DateOnly), o.Start.Format(time.DateOnly))
	case o.Cadence <= 0 || o.Cadence > 24*time.Hour:
		return fmt.Errorf("cadence %s must be within (0, 24h]", o.Cadence)
	case o.Downsample < 1:
		return fmt.Errorf("downsample factor %d must be at least 1", o.Downsample)
	case o.Stride < 1:
		return fmt.Errorf("stride %d must be at least 1", o.Stride)
	case o.ZeroTolerance < 0:
		return fmt.Errorf("zero tolerance %v must not be negative", o.ZeroTolerance)
	case o.AreaMask && o.BBox == nil:
		return fmt.Errorf("area mask requires a bounding box")
	}

	switch o.Job {
	case JobHourly:
		if o.OutputDir == "" {
			return fmt.Errorf("%s: output directory is required", o.Job)
		}
		// Entries are keyed by hour of day.
		if o.Cadence%time.Hour != 0 {
			return fmt.Errorf("%s: cadence %s must be a whole number of hours", o.Job, o.Cadence)
		}
	case JobDayMean:
		if o.OutputDir == "" {
			return fmt.Errorf("%s: output directory is required", o.Job)
		}
		if o.BBox == nil || !(o.Resolution > 0) {
			return fmt.Errorf("%s: bounding box and positive resolution are required", o.Job)
		}
	case JobWinds:
		if o.PerDay && o.OutputDir == "" {
			return fmt.Errorf("%s: per-day output requires an output directory", o.Job)
		}
		if !o.PerDay && o.Output == "" {
			return fmt.Errorf("%s: output file is required", o.Job)
		}
	default:
		if o.Output == "" {
			return fmt.Errorf("%s: output file is required", o.Job)
		}
	}
	return nil
}

// Days returns the UTC days of the run in order.
func (o *Options) Days() []time.Time {
	var days []time.Time
	for d := truncateDay(o.Start); d.Before(o.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// StepsOf returns the time steps of day in order.
func (o *Options) StepsOf(day time.Time) []time.Time {
	var steps []time.Time
	next := day.AddDate(0, 0, 1)
	for t := day; t.Before(next); t = t.Add(o.Cadence) {
		steps = append(steps, t)
	}
	return steps
}

func (o *Options) filter() grid.FilterOptions {
	f := grid.FilterOptions{
		FiniteOnly:    true,
		NonzeroOnly:   o.FilterZeros,
		ZeroTolerance: o.ZeroTolerance,
		Threshold:     o.Threshold,
	}
	if o.AreaMask {
		f.BBox = o.BBox
	}
	return f
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
