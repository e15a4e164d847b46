// Package pipeline runs the batch chain: cleaned CSV -> windows -> per-window
// LRI -> session summary, and the per-day DNOS rollup.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mahidalhan/axon/internal/ingest"
	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/observability"
	"github.com/mahidalhan/axon/internal/scores"
	"github.com/mahidalhan/axon/internal/scoring"
	"github.com/mahidalhan/axon/internal/session"
	"github.com/mahidalhan/axon/internal/windowing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Windowing              windowing.Config
	HSIThreshold           float64
	PostExerciseMultiplier float64
	// PostExerciseBoost replaces the multiplier for uploads flagged as
	// recorded inside a post-exercise window.
	PostExerciseBoost float64
	Workers           int
	OutputDir         string
}

func DefaultConfig() Config {
	return Config{
		Windowing:              windowing.DefaultConfig(),
		HSIThreshold:           ingest.DefaultHSIThreshold,
		PostExerciseMultiplier: 1.0,
		PostExerciseBoost:      lri.DefaultPostExerciseMultiplier,
		Workers:                4,
		OutputDir:              "output",
	}
}

// Result is one processed participant file.
type Result struct {
	ParticipantID string             `json:"participant_id"`
	Source        string             `json:"source"`
	Report        ingest.Report      `json:"report"`
	Windows       []windowing.Window `json:"-"`
	Summary       session.Summary    `json:"summary"`
	WindowsPath   string             `json:"windows_path"`
	SessionPath   string             `json:"session_path"`
}

// Runner holds no mutable state between calls; every method may run
// concurrently.
type Runner struct {
	cfg      Config
	calc     *lri.Calculator
	analyzer *session.Analyzer
	dnos     *scores.DNOSCalculator
	loader   *ingest.Loader
	log      *zap.Logger
	metrics  *observability.Metrics
}

func NewRunner(cfg Config, profile scoring.Profile, log *zap.Logger, metrics *observability.Metrics) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	calc := lri.NewCalculator(profile.LRI)
	return &Runner{
		cfg:      cfg,
		calc:     calc,
		analyzer: session.NewAnalyzer(calc, profile.Session),
		dnos:     scores.NewDNOSCalculator(profile.DNOS),
		loader:   ingest.NewLoader(cfg.HSIThreshold, log),
		log:      log,
		metrics:  metrics,
	}
}

// Calculator is the LRI calculator the runner scores windows with.
func (r *Runner) Calculator() *lri.Calculator { return r.calc }

// ProcessSession windows a cleaned series, scores every window and
// summarises the session.
func (r *Runner) ProcessSession(ctx context.Context, series windowing.Series) ([]windowing.Window, session.Summary, error) {
	return r.process(ctx, series, r.cfg.PostExerciseMultiplier)
}

func (r *Runner) process(ctx context.Context, series windowing.Series, multiplier float64) ([]windowing.Window, session.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, session.Summary{}, err
	}
	windows, err := windowing.Generate(series, r.cfg.Windowing)
	if err != nil {
		r.metrics.SessionAnalyzed(false)
		return nil, session.Summary{}, fmt.Errorf("failed to generate windows: %w", err)
	}
	r.metrics.WindowsProduced(len(windows))
	windowing.Score(windows, r.calc, multiplier)

	summary, err := r.analyzer.Analyze(windows)
	if err != nil {
		r.metrics.SessionAnalyzed(false)
		return nil, session.Summary{}, fmt.Errorf("failed to analyse session: %w", err)
	}
	r.metrics.SessionAnalyzed(true)
	return windows, summary, nil
}

// ProcessReader cleans and analyses one uploaded CSV without writing any
// output files.
func (r *Runner) ProcessReader(ctx context.Context, src io.Reader, postExercise bool) (Result, error) {
	series, report, err := r.loader.Load(src)
	if err != nil {
		return Result{Report: report}, err
	}
	multiplier := r.cfg.PostExerciseMultiplier
	if postExercise {
		multiplier = r.cfg.PostExerciseBoost
	}
	windows, summary, err := r.process(ctx, series, multiplier)
	if err != nil {
		return Result{Report: report}, err
	}
	return Result{Report: report, Windows: windows, Summary: summary}, nil
}

// ProcessFile loads one participant CSV, processes it and writes
// participant_<id>_windows.json and participant_<id>_session.json.
func (r *Runner) ProcessFile(ctx context.Context, path string) (Result, error) {
	series, report, err := r.loader.LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	windows, summary, err := r.ProcessSession(ctx, series)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}

	id := ParticipantID(path)
	res := Result{
		ParticipantID: id,
		Source:        path,
		Report:        report,
		Windows:       windows,
		Summary:       summary,
	}
	if r.cfg.OutputDir == "" {
		return res, nil
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	res.WindowsPath = filepath.Join(r.cfg.OutputDir, fmt.Sprintf("participant_%s_windows.json", id))
	res.SessionPath = filepath.Join(r.cfg.OutputDir, fmt.Sprintf("participant_%s_session.json", id))
	if err := writeJSON(res.WindowsPath, windowing.Table(windows)); err != nil {
		return Result{}, err
	}
	if err := writeJSON(res.SessionPath, summary); err != nil {
		return Result{}, err
	}
	r.log.Info("Processed session",
		zap.String("participant", id),
		zap.Int("windows", len(windows)),
		zap.Float64("session_score", summary.SessionScore),
		zap.String("output_dir", r.cfg.OutputDir))
	return res, nil
}

// ProcessFiles processes files on up to Workers goroutines. Results keep the
// order of paths; the first failure cancels the rest.
func (r *Runner) ProcessFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := r.ProcessFile(ctx, path)
			if err != nil {
				r.log.Error("Failed to process session file", zap.String("path", path), zap.Error(err))
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DailyRollup scores each day in parallel. Days without samples are skipped;
// the rest come back in input order.
func (r *Runner) DailyRollup(ctx context.Context, days []scores.Day) ([]scores.DayAggregate, error) {
	out := make([]*scores.DayAggregate, len(days))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, d := range days {
		i, d := i, d
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			agg, ok := r.dnos.Calculate(d.Samples, d.SleepScore, d.Exercise)
			if !ok {
				r.log.Debug("Skipping day without LRI samples", zap.Time("date", d.Date))
				return nil
			}
			if !d.Date.IsZero() {
				agg.Date = d.Date
			}
			out[i] = &agg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	aggs := make([]scores.DayAggregate, 0, len(out))
	for _, a := range out {
		if a != nil {
			aggs = append(aggs, *a)
		}
	}
	return aggs, nil
}

// RollupResults groups the scored windows of processed sessions by UTC day
// and runs DailyRollup over them. Days carry no sleep or exercise data.
func (r *Runner) RollupResults(ctx context.Context, results []Result) ([]scores.DayAggregate, error) {
	var samples []lri.Sample
	for _, res := range results {
		for _, w := range res.Windows {
			samples = append(samples, lri.Sample{Timestamp: w.Start.UTC(), Result: w.LRI})
		}
	}
	return r.DailyRollup(ctx, scores.GroupByDay(samples))
}

// ParticipantID is the last underscore-separated token of the file stem:
// "muse_session_042.csv" -> "042".
func ParticipantID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")
	return parts[len(parts)-1]
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
