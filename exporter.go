package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rtm0/goesjson/internal/archive"
	"github.com/rtm0/goesjson/internal/config"
	"github.com/rtm0/goesjson/internal/logging"
	"github.com/rtm0/goesjson/internal/pipeline"
	"github.com/rtm0/goesjson/internal/vm"
)

var defaults = config.DefaultConfig()

var (
	configFile = flag.String("config", "", "path to a JSON config file; flags override its values")

	job       = flag.String("job", defaults.Run.Job, "what to produce: hourly, swath, winds, batch or daymean")
	satellite = flag.Int("satellite", defaults.Run.Satellite, "GOES satellite number, e.g. 16, 18 or 19")
	product   = flag.String("product", defaults.Run.Product, "ABI L2 product without scan domain, e.g. ABI-L2-RRQPE, ABI-L2-TPW, ABI-L2-DMW")
	domain    = flag.String("domain", defaults.Run.Domain, "scan domain: F, C, M1 or M2")
	variable  = flag.String("variable", defaults.Run.Variable, "NetCDF variable to extract, e.g. RRQPE, TPW or wind_speed")
	startDate = flag.String("start", defaults.Run.StartDate, "first UTC day, YYYY-MM-DD")
	endDate   = flag.String("end", defaults.Run.EndDate, "UTC day after the last one, YYYY-MM-DD")
	cadence   = flag.Duration("cadence", defaults.Run.Cadence.Std(), "spacing of time steps within a day; whole hours for the hourly job")

	bbox            = flag.String("bbox", defaults.Filter.BBox, "bounding box minLon,maxLon,minLat,maxLat")
	areaMask        = flag.Bool("areaMask", defaults.Filter.AreaMask, "keep only points inside -bbox")
	downsample      = flag.Int("downsample", defaults.Filter.Downsample, "block mean factor; 1 keeps the native resolution")
	filterZeros     = flag.Bool("filterZeros", defaults.Filter.FilterZeros, "drop values whose magnitude is at most -zeroTolerance")
	zeroTolerance   = flag.Float64("zeroTolerance", defaults.Filter.ZeroTolerance, "largest magnitude treated as zero")
	threshold       = flag.Float64("threshold", 0, "keep only values strictly greater than this; unset keeps all values")
	stride          = flag.Int("stride", defaults.Filter.Stride, "keep every n-th point after filtering")
	reducePrecision = flag.Bool("reducePrecision", defaults.Filter.ReducePrecision, "round coordinates to 4 and values to 2 decimals")
	resolution      = flag.Float64("resolution", defaults.Filter.Resolution, "day mean raster resolution in degrees")

	output         = flag.String("output", defaults.Output.File, "output file for swath, winds and batch jobs; a .zst suffix compresses it")
	outputDir      = flag.String("outputDir", defaults.Output.Dir, "output directory for per-day files")
	perDay         = flag.Bool("perDay", defaults.Output.PerDay, "write wind records to one file per day in -outputDir")
	windComponents = flag.Bool("windComponents", defaults.Output.WindComponents, "add u/v components to wind records")

	cacheDir     = flag.String("cacheDir", defaults.Archive.CacheDir, "granule and listing cache directory; empty disables the remote archive")
	localDataDir = flag.String("localDataDir", defaults.Archive.LocalDataDir, "directory searched for granules before the remote archive")
	window       = flag.Duration("window", defaults.Archive.Window.Std(), "largest distance between a time step and the granule used for it")

	metricsFile  = flag.String("metricsFile", defaults.Monitoring.MetricsFile, "write run metrics in Prometheus text format to this file")
	vmInsertURL  = flag.String("vmInsertUrl", defaults.Monitoring.VMInsertURL, "Victoria Metrics insert API URL for per step summaries, e.g. http://localhost:8428/write")
	metricPrefix = flag.String("metricPrefix", defaults.Monitoring.MetricPrefix, "metric name prefix for Victoria Metrics")

	logLevel = flag.String("logLevel", defaults.Log.Level, "debug, info, warn or error")
	logFile  = flag.String("logFile", defaults.Log.File, "also log to this size-rotated file")
)

// flagSetters copy explicitly set flags onto the config, keyed by flag name.
var flagSetters = map[string]func(c *config.Config){
	"job":             func(c *config.Config) { c.Run.Job = *job },
	"satellite":       func(c *config.Config) { c.Run.Satellite = *satellite },
	"product":         func(c *config.Config) { c.Run.Product = *product },
	"domain":          func(c *config.Config) { c.Run.Domain = *domain },
	"variable":        func(c *config.Config) { c.Run.Variable = *variable },
	"start":           func(c *config.Config) { c.Run.StartDate = *startDate },
	"end":             func(c *config.Config) { c.Run.EndDate = *endDate },
	"cadence":         func(c *config.Config) { c.Run.Cadence = config.Duration(*cadence) },
	"bbox":            func(c *config.Config) { c.Filter.BBox = *bbox },
	"areaMask":        func(c *config.Config) { c.Filter.AreaMask = *areaMask },
	"downsample":      func(c *config.Config) { c.Filter.Downsample = *downsample },
	"filterZeros":     func(c *config.Config) { c.Filter.FilterZeros = *filterZeros },
	"zeroTolerance":   func(c *config.Config) { c.Filter.ZeroTolerance = *zeroTolerance },
	"threshold":       func(c *config.Config) { c.Filter.Threshold = threshold },
	"stride":          func(c *config.Config) { c.Filter.Stride = *stride },
	"reducePrecision": func(c *config.Config) { c.Filter.ReducePrecision = *reducePrecision },
	"resolution":      func(c *config.Config) { c.Filter.Resolution = *resolution },
	"output":          func(c *config.Config) { c.Output.File = *output },
	"outputDir":       func(c *config.Config) { c.Output.Dir = *outputDir },
	"perDay":          func(c *config.Config) { c.Output.PerDay = *perDay },
	"windComponents":  func(c *config.Config) { c.Output.WindComponents = *windComponents },
	"cacheDir":        func(c *config.Config) { c.Archive.CacheDir = *cacheDir },
	"localDataDir":    func(c *config.Config) { c.Archive.LocalDataDir = *localDataDir },
	"window":          func(c *config.Config) { c.Archive.Window = config.Duration(*window) },
	"metricsFile":     func(c *config.Config) { c.Monitoring.MetricsFile = *metricsFile },
	"vmInsertUrl":     func(c *config.Config) { c.Monitoring.VMInsertURL = *vmInsertURL },
	"metricPrefix":    func(c *config.Config) { c.Monitoring.MetricPrefix = *metricPrefix },
	"logLevel":        func(c *config.Config) { c.Log.Level = *logLevel },
	"logFile":         func(c *config.Config) { c.Log.File = *logFile },
}

func main() {
	flag.Parse()
	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			bootLogger.Error("Could not load config file", "err", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		bootLogger.Error("Invalid configuration", "err", err)
		os.Exit(2)
	}

	logger, closer, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		bootLogger.Error("Could not create logger", "err", err)
		os.Exit(1)
	}
	code := run(logger, cfg)
	closer.Close()
	os.Exit(code)
}

func run(logger *slog.Logger, cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.ToOptions()
	if err != nil {
		logger.Error("Invalid run options", "err", err)
		return 2
	}

	var locator archive.Chain
	if cfg.Archive.LocalDataDir != "" {
		locator = append(locator, archive.LocalDir{Root: cfg.Archive.LocalDataDir})
	}
	if cfg.Archive.CacheDir != "" {
		s3a, err := archive.NewS3Archive(ctx, logger, cfg.Archive.CacheDir)
		if err != nil {
			logger.Error("Could not create an S3 archive client", "err", err)
			return 1
		}
		locator = append(locator, s3a)
	}

	reg := prometheus.NewRegistry()
	metrics, err := pipeline.NewMetrics(reg)
	if err != nil {
		logger.Error("Could not register metrics", "err", err)
		return 1
	}

	var sink pipeline.Sink
	if cfg.Monitoring.VMInsertURL != "" {
		vmCli, err := vm.NewClient(logger, cfg.Monitoring.VMInsertURL, cfg.Monitoring.MetricPrefix)
		if err != nil {
			logger.Error("Could not create new VM client", "err", err)
			return 1
		}
		sink = vmCli
	}

	runner, err := pipeline.NewRunner(logger, *opts, pipeline.NewArchiveSource(logger, locator, opts), sink, metrics)
	if err != nil {
		logger.Error("Could not create a runner", "err", err)
		return 2
	}
	sum, err := runner.Run(ctx)

	if cfg.Monitoring.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(cfg.Monitoring.MetricsFile, reg); werr != nil {
			logger.Warn("Could not write metrics", "file", cfg.Monitoring.MetricsFile, "err", werr)
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("Run interrupted", sum.LogAttrs()...)
		return 130
	case err != nil:
		logger.Error("Run failed", "err", err)
		return 1
	}
	return 0
}
