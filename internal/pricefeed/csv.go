package pricefeed

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sourcegraph/conc/pool"
)

// Bar is one row of a replay file. Action and quantity are optional and turn
// the row into a trading signal.
type Bar struct {
	Date     string  `csv:"date"`
	Ticker   string  `csv:"ticker"`
	Close    float64 `csv:"close"`
	Action   string  `csv:"action"`
	Quantity string  `csv:"quantity"`

	Time   time.Time `csv:"-"`
	Qty    int       `csv:"-"`
	Source string    `csv:"-"`
	Line   int       `csv:"-"`
}

// HasSignal reports whether the bar carries a trading action.
func (b Bar) HasSignal() bool {
	return b.Action != ""
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ReadBars parses CSV rows from r. source names the input in errors.
func ReadBars(r io.Reader, source string) ([]Bar, error) {
	var bars []Bar
	if err := gocsv.Unmarshal(r, &bars); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	for i := range bars {
		b := &bars[i]
		b.Source = source
		b.Line = i + 2 // header is line 1
		b.Ticker = strings.ToUpper(strings.TrimSpace(b.Ticker))
		b.Action = strings.ToLower(strings.TrimSpace(b.Action))

		if b.Ticker == "" {
			return nil, fmt.Errorf("%s:%d: missing ticker", source, b.Line)
		}
		if b.Close <= 0 {
			return nil, fmt.Errorf("%s:%d: close must be positive", source, b.Line)
		}
		t, err := parseDate(strings.TrimSpace(b.Date))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", source, b.Line, err)
		}
		b.Time = t

		if q := strings.TrimSpace(b.Quantity); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%s:%d: invalid quantity %q", source, b.Line, b.Quantity)
			}
			b.Qty = n
		}
		if b.HasSignal() && b.Qty == 0 && b.Action != "hold" {
			return nil, fmt.Errorf("%s:%d: action %q needs a quantity", source, b.Line, b.Action)
		}
	}
	return bars, nil
}

// ReadFile parses the CSV file at path.
func ReadFile(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBars(f, path)
}

// LoadFiles parses paths concurrently with at most workers goroutines and
// returns all bars ordered by time, then by file position in paths, then by
// line.
func LoadFiles(ctx context.Context, paths []string, workers int) ([]Bar, error) {
	if workers <= 0 {
		workers = 4
	}
	order := make(map[string]int, len(paths))
	for i, p := range paths {
		if _, dup := order[p]; !dup {
			order[p] = i
		}
	}

	p := pool.NewWithResults[[]Bar]().WithContext(ctx).WithMaxGoroutines(workers)
	for path := range order {
		p.Go(func(ctx context.Context) ([]Bar, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return ReadFile(path)
		})
	}
	chunks, err := p.Wait()
	if err != nil {
		return nil, err
	}

	var bars []Bar
	for _, c := range chunks {
		bars = append(bars, c...)
	}
	sort.SliceStable(bars, func(i, j int) bool {
		a, b := bars[i], bars[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if order[a.Source] != order[b.Source] {
			return order[a.Source] < order[b.Source]
		}
		return a.Line < b.Line
	})
	return bars, nil
}

// Step is every bar sharing one timestamp.
type Step struct {
	Time    time.Time
	Prices  map[string]float64
	Signals []Bar
}

// Timeline groups time-ordered bars into steps. Later bars for the same
// ticker within a step win.
func Timeline(bars []Bar) []Step {
	var steps []Step
	for _, b := range bars {
		if len(steps) == 0 || !steps[len(steps)-1].Time.Equal(b.Time) {
			steps = append(steps, Step{Time: b.Time, Prices: make(map[string]float64)})
		}
		s := &steps[len(steps)-1]
		s.Prices[b.Ticker] = b.Close
		if b.HasSignal() {
			s.Signals = append(s.Signals, b)
		}
	}
	return steps
}
