package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap/zaptest"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/datecodec"
	"github.com/ianlewis/visits-go/internal/merge"
	"github.com/ianlewis/visits-go/internal/resultchan"
)

func newCatalogs(t *testing.T, paths ...string) (*catalog.Catalog, *datecodec.Codec) {
	t.Helper()

	visits := make([]catalog.Visit, len(paths))
	for i, p := range paths {
		visits[i] = catalog.Visit{ID: i, URI: "https://stitcher.io" + p}
	}
	routes, err := catalog.New(visits, catalog.DefaultPrefixLen)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	dates, err := datecodec.New(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 2)
	if err != nil {
		t.Fatalf("datecodec.New: %v", err)
	}
	return routes, dates
}

func writeTemp(t *testing.T, input string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "visits.csv")
	if err := os.WriteFile(path, []byte(input), 0o600); err != nil {
		t.Fatalf("unable to write temporary file: %v", err)
	}
	return path
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		cfg func(c *Config)
		err error
	}{
		"default":           {cfg: func(c *Config) {}},
		"auto capacity":     {cfg: func(c *Config) { c.SlotCapacity = 0 }},
		"one record":        {cfg: func(c *Config) { c.SlotCapacity = 8 }},
		"no workers":        {cfg: func(c *Config) { c.Workers = 0 }, err: ErrConfig},
		"no block size":     {cfg: func(c *Config) { c.BlockSize = 0 }, err: ErrConfig},
		"huge block size":   {cfg: func(c *Config) { c.BlockSize = 4 * datasize.GB }, err: ErrConfig},
		"tiny capacity":     {cfg: func(c *Config) { c.SlotCapacity = 7 }, err: ErrConfig},
		"huge capacity":     {cfg: func(c *Config) { c.SlotCapacity = 8 * datasize.GB }, err: ErrConfig},
		"newline delimiter": {cfg: func(c *Config) { c.Delimiter = '\n' }, err: ErrConfig},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.cfg(&cfg)
			err := cfg.Validate()
			if diff := cmp.Diff(tc.err, err, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("unexpected error (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestParser_Parse_example(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/a", "/b")
	input := "/a,2024-01-01T10:00:00\n/a,2024-01-01T23:00:00\n/b,2024-01-02T00:00:00\n/c,2024-01-01T00:00:00\n"
	path := writeTemp(t, input)

	cfg := DefaultConfig()
	cfg.Workers = 2
	p, err := New(cfg, routes, dates, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, sum, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	expected := &merge.Result{Routes: []merge.Route{
		{Path: "/a", Days: []merge.Day{{Date: "2024-01-01", Count: 2}}},
		{Path: "/b", Days: []merge.Day{{Date: "2024-01-02", Count: 1}}},
	}}
	if diff := cmp.Diff(expected, res); diff != "" {
		t.Fatalf("unexpected result (-want, +got):\n%s", diff)
	}
	if sum.Scan.Lines != 4 || sum.Scan.Dropped != 1 || sum.Workers != 2 || sum.Routes != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	// Two routes times two days times eight bytes.
	if sum.SlotCapacity != 32 {
		t.Fatalf("SlotCapacity = %d, want 32", sum.SlotCapacity)
	}
}

// TestParser_Parse_partitions checks that the result does not depend on the
// number of workers or the result channel's backing.
func TestParser_Parse_partitions(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/blog/a", "/blog/b", "/blog/c")
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "/blog/%c,2024-01-0%dT%02d:%02d:00+00:00\n", 'a'+rune(i%4), i%3+1, i%24, i%60)
	}
	path := writeTemp(t, b.String())

	var want *merge.Result
	for _, dir := range []string{"", t.TempDir()} {
		for n := 1; n <= 12; n++ {
			cfg := DefaultConfig()
			cfg.Workers = n
			cfg.BlockSize = 64
			cfg.ChannelDir = dir
			p, err := New(cfg, routes, dates, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, _, err := p.Parse(context.Background(), path)
			if err != nil {
				t.Fatalf("Parse(workers=%d): %v", n, err)
			}
			if want == nil {
				want = res
				continue
			}
			if diff := cmp.Diff(want, res); diff != "" {
				t.Fatalf("workers=%d dir=%q: unexpected result (-want, +got):\n%s", n, dir, diff)
			}
		}
	}

	var total uint64
	for _, rt := range want.Routes {
		for _, d := range rt.Days {
			total += d.Count
		}
	}
	// /blog/d and the third day are unknown.
	var expected uint64
	for i := 0; i < 1000; i++ {
		if i%4 != 3 && i%3 != 2 {
			expected++
		}
	}
	if total != expected {
		t.Fatalf("counted %d visits, want %d", total, expected)
	}
}

func TestParser_Parse_overflow(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/a", "/b")
	path := writeTemp(t, "/a,2024-01-01\n/b,2024-01-02\n")
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.SlotCapacity = 8
	cfg.ChannelDir = dir
	p, err := New(cfg, routes, dates, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, _, err := p.Parse(context.Background(), path)
	if diff := cmp.Diff(resultchan.ErrSlotOverflow, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("unexpected error (-want, +got):\n%s", diff)
	}
	if res != nil {
		t.Fatalf("Parse returned a result on failure")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("result channel not released: %d files left", len(entries))
	}
}

func TestParser_Parse_emptyFile(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/a")
	path := writeTemp(t, "")

	p, err := New(DefaultConfig(), routes, dates, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, _, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(&merge.Result{Routes: []merge.Route{}}, res); diff != "" {
		t.Fatalf("unexpected result (-want, +got):\n%s", diff)
	}
}

func TestParser_Parse_missingInput(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/a")
	p, err := New(DefaultConfig(), routes, dates, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = p.Parse(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if diff := cmp.Diff(os.ErrNotExist, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("unexpected error (-want, +got):\n%s", diff)
	}
}

func TestNew_invalid(t *testing.T) {
	t.Parallel()

	routes, dates := newCatalogs(t, "/a")
	cfg := DefaultConfig()
	cfg.Workers = 0
	if _, err := New(cfg, routes, dates, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("New() error = %v, want %v", err, ErrConfig)
	}
	if _, err := New(DefaultConfig(), nil, dates, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("New() error = %v, want %v", err, ErrConfig)
	}
}
