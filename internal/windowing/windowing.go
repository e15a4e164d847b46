// Package windowing slices a long, possibly irregularly sampled band-power
// series into overlapping fixed-duration windows that meet a minimum sample
// coverage, and reduces each window to a feature vector.
package windowing

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/features"
	"github.com/mahidalhan/axon/internal/lri"
)

var (
	ErrEmptySeries   = errors.New("windowing: cannot window an empty series")
	ErrNoBandColumns = errors.New("windowing: no band power columns in series")
	ErrNoWindows     = errors.New("windowing: no windows produced; check sampling interval and filters")
)

const (
	// DefaultSampleInterval is assumed when the series has no usable gaps.
	DefaultSampleInterval = time.Second

	minSampleInterval = 5 * time.Millisecond
	maxSampleInterval = 2 * time.Second

	// Denser sampling than this switches to wall-clock slicing.
	timeBasedThreshold = 500 * time.Millisecond
)

// Row is one timestamped sample of band-power (and optional HSI) columns.
type Row struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Series is a time-ordered sequence of rows.
type Series []Row

type Config struct {
	WindowSize  time.Duration
	Step        time.Duration
	MinCoverage float64
}

func DefaultConfig() Config {
	return Config{
		WindowSize:  30 * time.Second,
		Step:        15 * time.Second,
		MinCoverage: 0.8,
	}
}

// Window is one analysis window. SampleCount is at least the configured
// minimum coverage and Start is not after End.
type Window struct {
	Start       time.Time
	End         time.Time
	SampleCount int
	Features    features.Vector
	LRI         lri.Result
}

// Duration is End − Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// InferSamplingInterval estimates the effective sample spacing as the larger
// of the median positive gap and the average spacing over the whole series,
// clamped to [5ms, 2s]. Zero gaps from duplicate timestamps are ignored.
func InferSamplingInterval(series Series) time.Duration {
	if len(series) < 2 {
		return DefaultSampleInterval
	}
	gaps := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		d := series[i].Timestamp.Sub(series[i-1].Timestamp).Seconds()
		if d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return DefaultSampleInterval
	}
	sort.Float64s(gaps)
	median := medianSorted(gaps)

	total := series[len(series)-1].Timestamp.Sub(series[0].Timestamp).Seconds()
	avg := total / float64(len(series))

	interval := math.Max(median, avg)
	interval = math.Max(minSampleInterval.Seconds(), math.Min(maxSampleInterval.Seconds(), interval))
	return time.Duration(interval * float64(time.Second))
}

func medianSorted(x []float64) float64 {
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}

func hasBandColumns(series Series) bool {
	cols := eeg.BandColumns()
	for _, r := range series {
		for _, c := range cols {
			if _, ok := r.Values[c]; ok {
				return true
			}
		}
	}
	return false
}

// Generate produces windows over series in non-decreasing start order. The
// result is a pure function of its inputs.
//
// When the inferred interval is below 0.5s, or the series holds fewer rows
// than one window needs, a wall-clock cursor advances by Step and selects the
// rows in [cursor, cursor+WindowSize]. Otherwise an index cursor advances by
// the step expressed in samples. Windows with fewer than
// int(windowSamples × MinCoverage) rows are dropped.
func Generate(series Series, cfg Config) ([]Window, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}
	if !hasBandColumns(series) {
		return nil, ErrNoBandColumns
	}

	sorted := make(Series, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	interval := InferSamplingInterval(sorted).Seconds()
	windowSamples := max(int(math.Round(cfg.WindowSize.Seconds()/interval)), 1)
	stepSamples := max(int(math.Round(cfg.Step.Seconds()/interval)), 1)
	minSamples := int(float64(windowSamples) * cfg.MinCoverage)

	var windows []Window
	if interval < timeBasedThreshold.Seconds() || windowSamples > len(sorted) {
		windows = timeWindows(sorted, cfg, minSamples)
	} else {
		windows = indexWindows(sorted, windowSamples, stepSamples, minSamples)
	}

	if len(windows) == 0 {
		return nil, ErrNoWindows
	}
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows, nil
}

func timeWindows(series Series, cfg Config, minSamples int) []Window {
	var out []Window
	if cfg.Step <= 0 {
		return out
	}
	first := series[0].Timestamp
	last := series[len(series)-1].Timestamp
	for cursor := first; !cursor.Add(cfg.WindowSize).After(last); cursor = cursor.Add(cfg.Step) {
		end := cursor.Add(cfg.WindowSize)
		lo := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(cursor) })
		hi := sort.Search(len(series), func(i int) bool { return series[i].Timestamp.After(end) })
		if hi-lo == 0 || hi-lo < minSamples {
			continue
		}
		out = append(out, buildWindow(series[lo:hi]))
	}
	return out
}

func indexWindows(series Series, windowSamples, stepSamples, minSamples int) []Window {
	var out []Window
	total := len(series)
	for start := 0; start <= total-minSamples; start += stepSamples {
		end := min(start+windowSamples, total)
		if end-start == 0 || end-start < minSamples {
			continue
		}
		out = append(out, buildWindow(series[start:end]))
	}
	return out
}

func buildWindow(rows Series) Window {
	values := make([]map[string]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Values
	}
	return Window{
		Start:       rows[0].Timestamp,
		End:         rows[len(rows)-1].Timestamp,
		SampleCount: len(rows),
		Features:    features.FromRows(values),
	}
}

// Score fills in the LRI of every window in place and returns the slice.
func Score(windows []Window, calc *lri.Calculator, postExerciseMultiplier float64) []Window {
	for i := range windows {
		windows[i].LRI = calc.Calculate(windows[i].Features, postExerciseMultiplier)
	}
	return windows
}

// Record flattens a window into a row of the batch window table.
func (w Window) Record() map[string]any {
	rec := map[string]any{
		"window_start":    w.Start,
		"window_end":      w.End,
		"sample_count":    w.SampleCount,
		"lri":             w.LRI.LRI,
		"alertness":       w.LRI.Alertness,
		"focus":           w.LRI.Focus,
		"arousal_balance": w.LRI.ArousalBalance,
	}
	for _, col := range eeg.BandColumns() {
		if v, ok := w.Features[col]; ok {
			rec[col] = v
		}
	}
	for _, col := range features.DerivedColumns() {
		if v, ok := w.Features[col]; ok {
			rec[col] = v
		}
	}
	return rec
}

// Table flattens every window.
func Table(windows []Window) []map[string]any {
	out := make([]map[string]any, len(windows))
	for i, w := range windows {
		out[i] = w.Record()
	}
	return out
}
