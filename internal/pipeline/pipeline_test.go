package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/ingest"
	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/scores"
	"github.com/mahidalhan/axon/internal/scoring"
	"github.com/mahidalhan/axon/internal/windowing"
	"go.uber.org/zap"
)

var start = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func writeSession(t *testing.T, dir, name string, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("TimeStamp," + strings.Join(eeg.BandColumns(), ",") + ",HSI_TP9\n")
	for i := 0; i < rows; i++ {
		b.WriteString(start.Add(time.Duration(i) * time.Second).Format("2006-01-02 15:04:05.000"))
		for _, col := range eeg.BandColumns() {
			v := 0.6
			switch {
			case strings.HasPrefix(col, "beta"):
				v = 1.2
			case strings.HasPrefix(col, "alpha"):
				v = 0.4 + float64(i%5)/50
			case strings.HasPrefix(col, "gamma"):
				v = 0.2
			}
			fmt.Fprintf(&b, ",%.3f", v)
		}
		b.WriteString(",1\n")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func testRunner(out string) *Runner {
	cfg := DefaultConfig()
	cfg.OutputDir = out
	cfg.Workers = 2
	return NewRunner(cfg, scoring.Default(), zap.NewNop(), nil)
}

func TestParticipantID(t *testing.T) {
	cases := map[string]string{
		"/data/muse_session_042.csv": "042",
		"participant7.csv":           "participant7",
		"a_b.tar.csv":                "b.tar",
	}
	for in, want := range cases {
		if got := ParticipantID(in); got != want {
			t.Errorf("ParticipantID(%q) = %q want %q", in, got, want)
		}
	}
}

func TestProcessSessionEmptySeries(t *testing.T) {
	_, _, err := testRunner("").ProcessSession(context.Background(), nil)
	if !errors.Is(err, windowing.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := testRunner("").ProcessSession(ctx, windowing.Series{{Timestamp: start}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestProcessFileWritesOutputs(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeSession(t, in, "muse_session_042.csv", 120)

	res, err := testRunner(out).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ParticipantID != "042" || len(res.Windows) != 7 {
		t.Fatalf("result: id=%s windows=%d", res.ParticipantID, len(res.Windows))
	}
	if res.WindowsPath != filepath.Join(out, "participant_042_windows.json") {
		t.Fatalf("windows path: %s", res.WindowsPath)
	}

	data, err := os.ReadFile(res.SessionPath)
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("session json: %v", err)
	}
	for _, key := range []string{"session_start", "session_end", "peak_lri", "session_score", "optimal_windows", "time_in_state", "insights"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("session document missing %q", key)
		}
	}

	data, err = os.ReadFile(res.WindowsPath)
	if err != nil {
		t.Fatalf("read windows: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("windows json: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("window rows: %d", len(rows))
	}
}

func TestProcessFilesKeepsOrderAndFailsFast(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	paths := []string{
		writeSession(t, in, "s_1.csv", 90),
		writeSession(t, in, "s_2.csv", 120),
		writeSession(t, in, "s_3.csv", 60),
	}
	results, err := testRunner(out).ProcessFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("process files: %v", err)
	}
	for i, want := range []string{"1", "2", "3"} {
		if results[i].ParticipantID != want {
			t.Fatalf("result %d: %s", i, results[i].ParticipantID)
		}
	}

	broken := filepath.Join(in, "s_4.csv")
	if err := os.WriteFile(broken, []byte("TimeStamp,Delta_TP9\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = testRunner(out).ProcessFiles(context.Background(), append(paths, broken))
	if !errors.Is(err, ingest.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestDailyRollupSkipsEmptyDays(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	samples := func(d int, score float64) []lri.Sample {
		var out []lri.Sample
		for h := 9; h < 12; h++ {
			out = append(out, lri.Sample{Timestamp: day(d).Add(time.Duration(h) * time.Hour), Result: lri.Result{LRI: score}})
		}
		return out
	}
	days := []scores.Day{
		{Date: day(1), Samples: samples(1, 80), SleepScore: 90},
		{Date: day(2)},
		{Date: day(3), Samples: samples(3, 40), SleepScore: 50},
	}
	aggs, err := testRunner("").DailyRollup(context.Background(), days)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("aggregates: %d", len(aggs))
	}
	if !aggs[0].Date.Equal(day(1)) || !aggs[1].Date.Equal(day(3)) {
		t.Fatalf("order: %v %v", aggs[0].Date, aggs[1].Date)
	}
	// 0.5·80 + 0.2·90
	if aggs[0].DNOS != 58 {
		t.Fatalf("dnos: %v", aggs[0].DNOS)
	}
}

func TestRollupResultsGroupsWindowsByUTCDay(t *testing.T) {
	window := func(at time.Time, score float64) windowing.Window {
		return windowing.Window{Start: at, End: at.Add(time.Minute), LRI: lri.Result{LRI: score}}
	}
	// 09:00 in UTC+10 is 23:00 the previous UTC day, outside active hours.
	east := time.FixedZone("UTC+10", 10*3600)
	results := []Result{
		{Windows: []windowing.Window{
			window(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), 80),
			window(time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC), 80),
		}},
		{Windows: []windowing.Window{
			window(time.Date(2024, 3, 5, 9, 0, 0, 0, east), 10),
			window(time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), 40),
		}},
	}
	aggs, err := testRunner("").RollupResults(context.Background(), results)
	if err != nil {
		t.Fatalf("rollup: %v", err)
	}
	cases := []struct {
		date      string
		avg, dnos float64
	}{
		// 0.5·avg + 0.2·50 with the default sleep score.
		{"2024-03-04", 80, 50},
		{"2024-03-06", 40, 30},
	}
	if len(aggs) != len(cases) {
		t.Fatalf("aggregates: %+v", aggs)
	}
	for i, tc := range cases {
		a := aggs[i]
		if got := a.Date.Format(time.DateOnly); got != tc.date || a.Date.Location() != time.UTC {
			t.Fatalf("day %d: date %v", i, a.Date)
		}
		if a.AvgLRI != tc.avg || a.DNOS != tc.dnos {
			t.Fatalf("%s: avg %v dnos %v", tc.date, a.AvgLRI, a.DNOS)
		}
	}

	if aggs, err := testRunner("").RollupResults(context.Background(), nil); err != nil || len(aggs) != 0 {
		t.Fatalf("no results: %v %v", aggs, err)
	}
}
