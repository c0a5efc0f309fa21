package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rtm0/goesjson/internal/archive"
	"github.com/rtm0/goesjson/internal/goes"
	"github.com/rtm0/goesjson/internal/grid"
)

// FetchResult is either a granule or the reason a time step is skipped.
type FetchResult struct {
	Granule *goes.Granule
	Skip    error
}

// Source provides granules.
type Source interface {
	// Fetch returns the granule nearest to t.
	Fetch(ctx context.Context, t time.Time) FetchResult
	// FetchDay returns every granule of the UTC day.
	FetchDay(ctx context.Context, day time.Time) ([]FetchResult, error)
}

// ArchiveSource reads granules found by a Locator.
type ArchiveSource struct {
	logger   *slog.Logger
	locator  archive.Locator
	req      archive.Request
	variable string
	aux      []string
}

// NewArchiveSource returns a source for the product and variable of opts.
func NewArchiveSource(logger *slog.Logger, locator archive.Locator, opts *Options) *ArchiveSource {
	s := &ArchiveSource{
		logger:  logger,
		locator: locator,
		req: archive.Request{
			Satellite: opts.Satellite,
			Product:   opts.Product,
			Domain:    opts.Domain,
			Window:    opts.Window,
		},
		variable: opts.Variable,
	}
	if opts.Job == JobWinds && opts.WindComponents {
		s.aux = []string{goes.WindDirection}
	}
	return s
}

func (s *ArchiveSource) Fetch(ctx context.Context, t time.Time) FetchResult {
	req := s.req
	req.Time = t
	obj, err := s.locator.Nearest(ctx, req)
	if err != nil {
		return FetchResult{Skip: err}
	}
	return s.open(ctx, obj)
}

func (s *ArchiveSource) FetchDay(ctx context.Context, day time.Time) ([]FetchResult, error) {
	req := s.req
	req.Time = day
	objs, err := s.locator.ListDay(ctx, req)
	if err != nil {
		return nil, err
	}
	res := make([]FetchResult, 0, len(objs))
	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res = append(res, s.open(ctx, obj))
	}
	return res, nil
}

func (s *ArchiveSource) open(ctx context.Context, obj archive.Object) FetchResult {
	path, err := s.locator.Fetch(ctx, obj)
	if err != nil {
		return FetchResult{Skip: err}
	}
	g, err := goes.Open(path, s.variable, s.aux...)
	if err != nil {
		return FetchResult{Skip: err}
	}
	s.logger.Debug("Opened granule", g.Summary()...)
	return FetchResult{Granule: g}
}

// skipReason classifies a skip for metrics.
func skipReason(err error) string {
	var sme *grid.ShapeMismatchError
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return "not_found"
	case errors.As(err, &sme):
		return "shape_mismatch"
	case errors.Is(err, goes.ErrUnsupportedCoordinates):
		return "unsupported_coordinates"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// extract turns a granule into the points that survive filtering:
// reprojection, optional wind components, block downsampling, filtering
// and finally stride decimation.
func extract(opts *Options, g *goes.Granule) (*grid.Points, error) {
	if _, ok := g.Aux[goes.WindDirection]; ok {
		if err := goes.AddWindComponents(g); err != nil {
			return nil, err
		}
	}

	gr, err := grid.Reproject(g.Values, g.Coords)
	if err != nil {
		return nil, fmt.Errorf("reproject %s: %w", g.Variable, err)
	}
	gr.Aux = g.Aux
	if opts.AreaMask && !opts.BBox.Intersects(grid.Extent(gr.Lat.Data, gr.Lon.Data)) {
		return &grid.Points{}, nil
	}

	if gr, err = grid.Downsample(gr, opts.Downsample); err != nil {
		return nil, err
	}
	pts, err := grid.Flatten(gr)
	if err != nil {
		return nil, err
	}
	idx, err := grid.Filter(pts, opts.filter())
	if err != nil {
		return nil, err
	}
	if idx, err = grid.Decimate(idx, opts.Stride); err != nil {
		return nil, err
	}
	return pts.Select(idx), nil
}
