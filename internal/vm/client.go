package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rtm0/goesjson/internal/grid"
	"github.com/rtm0/goesjson/internal/record"
)

// Client is a Victoria Metrics client that inserts per time step summaries
// via InfluxDB line protocol or CSV import.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	sumToText    sumToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9_]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, metricPrefix string) (*Client, error) {
	u, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	apiParams := apiParamsFuncs[u.Path]
	sumToText := sumToTextFuncs[u.Path]
	if apiParams == nil || sumToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := u.Query()
	for name, value := range apiParams(metricPrefix) {
		q.Add(name, value)
	}
	u.RawQuery = q.Encode()

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		insertURL:    u.String(),
		metricPrefix: metricPrefix,
		sumToText:    sumToText,
	}, nil
}

// Insert sends summaries to Victoria Metrics.
func (c *Client) Insert(ctx context.Context, sums []record.Summary) error {
	if len(sums) == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, sumsToText(sums, c.metricPrefix, c.sumToText))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("could not post data: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Warn("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.insertURL)
	}
	return nil
}

type apiParamsFunc func(string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(string) map[string]string {
	return nil
}

func csvAPIParams(metricPrefix string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_ms,"+
			"2:label:product,"+
			"3:label:variable,"+
			"4:metric:%[1]s_mean,"+
			"5:metric:%[1]s_points", metricPrefix),
	}
}

type sumToTextFunc func(*strings.Builder, *record.Summary, string)

// sumsToText converts summaries to the request body.
func sumsToText(sums []record.Summary, metricPrefix string, sumToText sumToTextFunc) io.Reader {
	var sb strings.Builder
	for i := range sums {
		sumToText(&sb, &sums[i], metricPrefix)
		sb.WriteString("\n")
	}
	return strings.NewReader(sb.String())
}

var sumToTextFuncs = map[string]sumToTextFunc{
	"/influx/write":        sumToInfluxDB,
	"/influx/api/v2/write": sumToInfluxDB,
	"/write":               sumToInfluxDB,
	"/api/v2/write":        sumToInfluxDB,
	"/api/v1/import/csv":   sumToCSV,
}

// sumToInfluxDB appends a summary in InfluxDB line protocol. The mean field
// is left out when no points were retained. Timestamps are in nanoseconds.
func sumToInfluxDB(sb *strings.Builder, s *record.Summary, metricPrefix string) {
	fmt.Fprintf(sb, "%s,product=%s,variable=%s points=%di", metricPrefix, escapeTag(s.Product), escapeTag(s.Variable), s.NumPoints)
	if grid.Finite(s.Mean) {
		fmt.Fprintf(sb, ",mean=%g", s.Mean)
	}
	fmt.Fprintf(sb, " %d", s.Time.UnixNano())
}

// sumToCSV appends a summary as a CSV row matching csvAPIParams.
func sumToCSV(sb *strings.Builder, s *record.Summary, _ string) {
	mean := ""
	if grid.Finite(s.Mean) {
		mean = fmt.Sprintf("%g", s.Mean)
	}
	fmt.Fprintf(sb, "%d,%s,%s,%s,%d", s.Time.UnixMilli(), s.Product, s.Variable, mean, s.NumPoints)
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

func escapeTag(v string) string { return tagEscaper.Replace(v) }
