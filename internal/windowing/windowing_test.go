package windowing

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func row(offset time.Duration, alpha float64) Row {
	return Row{
		Timestamp: t0.Add(offset),
		Values: map[string]float64{
			"alpha_tp9": alpha, "alpha_af7": alpha, "alpha_af8": alpha, "alpha_tp10": alpha,
			"beta_tp9": 1, "beta_af7": 1, "beta_af8": 1, "beta_tp10": 1,
			"theta_af7": 0.5, "theta_af8": 0.5,
		},
	}
}

func regular(n int, step time.Duration) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = row(time.Duration(i)*step, float64(i%7)/10)
	}
	return s
}

func TestGenerateErrors(t *testing.T) {
	if _, err := Generate(nil, DefaultConfig()); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("empty: got %v", err)
	}
	noBands := Series{{Timestamp: t0, Values: map[string]float64{"hsi_tp9": 1}}}
	if _, err := Generate(noBands, DefaultConfig()); !errors.Is(err, ErrNoBandColumns) {
		t.Fatalf("no bands: got %v", err)
	}
	short := regular(10, time.Second)
	if _, err := Generate(short, DefaultConfig()); !errors.Is(err, ErrNoWindows) {
		t.Fatalf("short series: got %v", err)
	}
}

func TestIndexBasedWindows(t *testing.T) {
	windows, err := Generate(regular(120, time.Second), DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(windows) != 7 {
		t.Fatalf("window count: got %d want 7", len(windows))
	}
	first := windows[0]
	if !first.Start.Equal(t0) || !first.End.Equal(t0.Add(29*time.Second)) || first.SampleCount != 30 {
		t.Fatalf("unexpected first window %+v", first)
	}
	for i := 1; i < len(windows); i++ {
		if windows[i].Start.Sub(windows[i-1].Start) != 15*time.Second {
			t.Fatalf("step between windows %d and %d is %v", i-1, i, windows[i].Start.Sub(windows[i-1].Start))
		}
	}
}

func TestTimeBasedWindows(t *testing.T) {
	windows, err := Generate(regular(600, 100*time.Millisecond), DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("window count: got %d want 2", len(windows))
	}
	for _, w := range windows {
		if w.SampleCount != 301 {
			t.Fatalf("inclusive bounds should select 301 rows, got %d", w.SampleCount)
		}
	}
	if !windows[1].Start.Equal(t0.Add(15 * time.Second)) {
		t.Fatalf("second window start %v", windows[1].Start)
	}
}

func TestCoverageFilterDropsGappedWindows(t *testing.T) {
	var s Series
	for i := 0; i < 1200; i++ {
		off := time.Duration(i) * 100 * time.Millisecond
		if off >= 20*time.Second && off < 50*time.Second {
			continue
		}
		s = append(s, row(off, 0.3))
	}
	windows, err := Generate(s, DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wantStarts := []time.Duration{0, 50 * time.Second, 60 * time.Second, 75 * time.Second}
	if len(windows) != len(wantStarts) {
		t.Fatalf("window count: got %d want %d", len(windows), len(wantStarts))
	}
	for i, w := range windows {
		if !w.Start.Equal(t0.Add(wantStarts[i])) {
			t.Fatalf("window %d start: got %v want %v", i, w.Start.Sub(t0), wantStarts[i])
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	s := regular(300, 250*time.Millisecond)
	a, err := Generate(s, DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := Generate(s, DefaultConfig())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("windowing is not deterministic")
	}
}

func TestInferSamplingInterval(t *testing.T) {
	cases := []struct {
		name string
		s    Series
		want time.Duration
	}{
		{"single row", regular(1, time.Second), DefaultSampleInterval},
		{"regular", regular(100, 250*time.Millisecond), 250 * time.Millisecond},
		{"clamped low", regular(100, time.Millisecond), 5 * time.Millisecond},
		{"clamped high", regular(10, 10*time.Second), 2 * time.Second},
		{"duplicates", Series{row(0, 1), row(0, 1), row(0, 1)}, DefaultSampleInterval},
	}
	for _, tc := range cases {
		got := InferSamplingInterval(tc.s)
		diff := got - tc.want
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Microsecond {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestScoreAndTable(t *testing.T) {
	windows, err := Generate(regular(120, time.Second), DefaultConfig())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	Score(windows, lri.Default(), 1)
	table := Table(windows)
	if len(table) != len(windows) {
		t.Fatalf("table rows: got %d", len(table))
	}
	rec := table[0]
	for _, key := range []string{"window_start", "window_end", "sample_count", "lri", "alertness", "focus", "arousal_balance", "alpha_af7", "beta_alpha_ratio_af7", "frontal_theta_avg"} {
		if _, ok := rec[key]; !ok {
			t.Fatalf("table row missing %q", key)
		}
	}
	if windows[0].LRI.Status == "" {
		t.Fatalf("score did not populate status")
	}
}
