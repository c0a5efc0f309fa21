package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/logging"
	"github.com/rtm0/goesjson/internal/pipeline"
	"github.com/rtm0/goesjson/internal/record"
)

// Config holds the application configuration
type Config struct {
	Run        RunConfig        `json:"run"`
	Filter     FilterConfig     `json:"filter"`
	Output     OutputConfig     `json:"output"`
	Archive    ArchiveConfig    `json:"archive"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Log        LogConfig        `json:"log"`
}

// RunConfig selects the product and the time steps
type RunConfig struct {
	Job       string `json:"job"`
	Satellite int    `json:"satellite"`
	Product   string `json:"product"`
	Domain    string `json:"domain"`
	Variable  string `json:"variable"`
	// StartDate and EndDate are YYYY-MM-DD; EndDate is exclusive.
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Cadence   Duration `json:"cadence"`
}

// FilterConfig holds the spatial and value subsetting
type FilterConfig struct {
	// BBox is "minLon,maxLon,minLat,maxLat".
	BBox            string   `json:"bbox"`
	AreaMask        bool     `json:"area_mask"`
	Downsample      int      `json:"downsample"`
	FilterZeros     bool     `json:"filter_zeros"`
	ZeroTolerance   float64  `json:"zero_tolerance"`
	Threshold       *float64 `json:"threshold,omitempty"`
	Stride          int      `json:"stride"`
	ReducePrecision bool     `json:"reduce_precision"`
	Resolution      float64  `json:"resolution"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	File           string `json:"file"`
	Dir            string `json:"dir"`
	PerDay         bool   `json:"per_day"`
	WindComponents bool   `json:"wind_components"`
}

// ArchiveConfig holds granule lookup configuration
type ArchiveConfig struct {
	CacheDir     string   `json:"cache_dir"`
	LocalDataDir string   `json:"local_data_dir"`
	Window       Duration `json:"window"`
}

// MonitoringConfig holds metrics and summary export configuration
type MonitoringConfig struct {
	MetricsFile  string `json:"metrics_file"`
	VMInsertURL  string `json:"vm_insert_url"`
	MetricPrefix string `json:"metric_prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// Duration is a time.Duration that reads "1h30m" style strings from JSON.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"1h\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Job:       string(pipeline.JobHourly),
			Satellite: getEnvInt("GOES_SATELLITE", 16),
			Product:   "ABI-L2-RRQPE",
			Domain:    "F",
			Variable:  "RRQPE",
			Cadence:   Duration(time.Hour),
		},
		Filter: FilterConfig{
			Downsample:      1,
			Stride:          1,
			ReducePrecision: getEnvBool("GOES_REDUCE_PRECISION", false),
			Resolution:      0.1,
		},
		Output: OutputConfig{
			Dir: getEnv("GOES_OUTPUT_DIR", "."),
		},
		Archive: ArchiveConfig{
			CacheDir:     getEnv("GOES_CACHE_DIR", "./goes_cache"),
			LocalDataDir: getEnv("GOES_LOCAL_DATA_DIR", ""),
			Window:       Duration(time.Hour),
		},
		Monitoring: MonitoringConfig{
			MetricPrefix: "goesjson",
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		},
	}
}

// LoadFile overlays the JSON document at path on c. Keys missing from the
// document keep their current values.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := c.ToOptions(); err != nil {
		return err
	}
	if c.Archive.CacheDir == "" && c.Archive.LocalDataDir == "" {
		return fmt.Errorf("either a cache directory or a local data directory is required")
	}
	if c.Monitoring.VMInsertURL != "" && c.Monitoring.MetricPrefix == "" {
		return fmt.Errorf("metric prefix is required when inserting into Victoria Metrics")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ToOptions converts to pipeline.Options and validates them.
func (c *Config) ToOptions() (*pipeline.Options, error) {
	start, err := time.Parse(time.DateOnly, c.Run.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start date: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.Run.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end date: %w", err)
	}

	o := &pipeline.Options{
		Job:            pipeline.Job(c.Run.Job),
		Satellite:      c.Run.Satellite,
		Product:        c.Run.Product,
		Domain:         c.Run.Domain,
		Variable:       c.Run.Variable,
		Start:          start,
		End:            end,
		Cadence:        c.Run.Cadence.Std(),
		Window:         c.Archive.Window.Std(),
		AreaMask:       c.Filter.AreaMask,
		Downsample:     c.Filter.Downsample,
		FilterZeros:    c.Filter.FilterZeros,
		ZeroTolerance:  c.Filter.ZeroTolerance,
		Threshold:      c.Filter.Threshold,
		Stride:         c.Filter.Stride,
		Precision:      record.Precision{Reduce: c.Filter.ReducePrecision},
		Resolution:     c.Filter.Resolution,
		WindComponents: c.Output.WindComponents,
		PerDay:         c.Output.PerDay,
		Output:         c.Output.File,
		OutputDir:      c.Output.Dir,
	}
	if c.Filter.BBox != "" {
		box, err := ParseBBox(c.Filter.BBox)
		if err != nil {
			return nil, err
		}
		o.BBox = &box
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// LoggingConfig converts to logging.Config
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// ParseBBox parses "minLon,maxLon,minLat,maxLat".
func ParseBBox(s string) (grid.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return grid.BoundingBox{}, fmt.Errorf("bounding box %q must be minLon,maxLon,minLat,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return grid.BoundingBox{}, fmt.Errorf("bounding box %q: %w", s, err)
		}
		v[i] = f
	}
	return grid.NewBoundingBox(v[0], v[1], v[2], v[3])
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
