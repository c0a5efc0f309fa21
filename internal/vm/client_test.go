package vm

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rtm0/goesjson/internal/record"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var sums = []record.Summary{
	{Time: time.Unix(1727096400, 0), Product: "ABI-L2-RRQPE", Variable: "RRQPE", Mean: 2.5, NumPoints: 4},
	{Time: time.Unix(1727100000, 0), Product: "ABI-L2-RRQPE", Variable: "RRQPE", Mean: math.NaN(), NumPoints: 0},
}

func TestInsertInfluxDB(t *testing.T) {
	var body, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body, query = string(b), r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(discard, srv.URL+"/write", "goes")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Insert(context.Background(), sums); err != nil {
		t.Fatal(err)
	}
	want := "goes,product=ABI-L2-RRQPE,variable=RRQPE points=4i,mean=2.5 1727096400000000000\n" +
		"goes,product=ABI-L2-RRQPE,variable=RRQPE points=0i 1727100000000000000\n"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
	if query != "" {
		t.Errorf("query = %q, want none", query)
	}
}

func TestInsertCSV(t *testing.T) {
	var body, format string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body, format = string(b), r.URL.Query().Get("format")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(discard, srv.URL+"/api/v1/import/csv", "rrqpe")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Insert(context.Background(), sums); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(body, "1727096400000,ABI-L2-RRQPE,RRQPE,2.5,4\n1727100000000,ABI-L2-RRQPE,RRQPE,,0\n") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(format, "4:metric:rrqpe_mean") {
		t.Errorf("format = %q", format)
	}
}

func TestInsertErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(discard, srv.URL+"/write", "goes")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Insert(context.Background(), sums); err == nil {
		t.Error("expected error for status 400")
	}
	if err := c.Insert(context.Background(), nil); err != nil {
		t.Errorf("empty insert: %v", err)
	}

	if _, err := NewClient(discard, srv.URL+"/unknown", "goes"); err == nil {
		t.Error("expected error for unsupported path")
	}
	if _, err := NewClient(discard, srv.URL+"/write", "bad prefix"); err == nil {
		t.Error("expected error for bad prefix")
	}
}
