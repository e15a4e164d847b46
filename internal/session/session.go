// Package session turns the scored windows of one recording into a session
// summary with optimal intervals and recommendations.
package session

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/scoring"
	"github.com/mahidalhan/axon/internal/windowing"
	"gonum.org/v1/gonum/stat"
)

var ErrNoWindows = errors.New("session: cannot analyse an empty window sequence")

// Quality tiers of an optimal interval.
const (
	QualityExcellent = "excellent"
	QualityVeryGood  = "very_good"
	QualityGood      = "good"
	QualityModerate  = "moderate"
)

// OptimalInterval is a run of consecutive windows at or above the optimal
// threshold, spanning first-window start to last-window end.
type OptimalInterval struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes float64   `json:"duration_minutes"`
	AvgLRI          float64   `json:"avg_lri"`
	Quality         string    `json:"quality"`
}

// TimeInState holds interval-union minutes per readiness state.
type TimeInState struct {
	OptimalMinutes  float64 `json:"optimal_minutes"`
	ModerateMinutes float64 `json:"moderate_minutes"`
	LowMinutes      float64 `json:"low_minutes"`
}

type ComponentScores struct {
	Alertness      float64 `json:"alertness"`
	Focus          float64 `json:"focus"`
	ArousalBalance float64 `json:"arousal_balance"`
}

// Summary is the session summary document.
type Summary struct {
	SessionStart    time.Time         `json:"session_start"`
	SessionEnd      time.Time         `json:"session_end"`
	DurationMinutes float64           `json:"session_duration_minutes"`
	PeakLRI         float64           `json:"peak_lri"`
	PeakTimestamp   time.Time         `json:"peak_timestamp"`
	AvgLRI          float64           `json:"avg_lri"`
	MedianLRI       float64           `json:"median_lri"`
	StdDev          float64           `json:"std_dev"`
	SessionScore    float64           `json:"session_score"`
	OptimalWindows  []OptimalInterval `json:"optimal_windows"`
	TimeInState     TimeInState       `json:"time_in_state"`
	ComponentScores ComponentScores   `json:"component_scores"`
	Insights        []string          `json:"insights"`
	Recommendations []string          `json:"recommendations"`
}

// Analyzer summarises the scored windows of one session.
type Analyzer struct {
	calc    *lri.Calculator
	profile scoring.SessionProfile
}

// NewAnalyzer scores windows with calc and classifies them with profile.
func NewAnalyzer(calc *lri.Calculator, profile scoring.SessionProfile) *Analyzer {
	return &Analyzer{calc: calc, profile: profile}
}

// Default uses the reference thresholds.
func Default() *Analyzer {
	return NewAnalyzer(lri.Default(), scoring.Default().Session)
}

// Analyze summarises the scored windows of one continuous session. Windows
// must already be in non-decreasing start order.
func (a *Analyzer) Analyze(windows []windowing.Window) (Summary, error) {
	if len(windows) == 0 {
		return Summary{}, ErrNoWindows
	}

	scores := make([]float64, len(windows))
	alertness := make([]float64, len(windows))
	focus := make([]float64, len(windows))
	arousal := make([]float64, len(windows))
	peak := 0
	end := windows[0].End
	for i, w := range windows {
		scores[i] = w.LRI.LRI
		alertness[i] = w.LRI.Alertness
		focus[i] = w.LRI.Focus
		arousal[i] = w.LRI.ArousalBalance
		if w.LRI.LRI > windows[peak].LRI.LRI {
			peak = i
		}
		if w.End.After(end) {
			end = w.End
		}
	}

	mean, std := stat.PopMeanStdDev(scores, nil)
	s := Summary{
		SessionStart:    windows[0].Start,
		SessionEnd:      end,
		DurationMinutes: round2(end.Sub(windows[0].Start).Minutes()),
		PeakLRI:         windows[peak].LRI.LRI,
		PeakTimestamp:   windows[peak].Start,
		AvgLRI:          mean,
		MedianLRI:       median(scores),
		StdDev:          std,
		SessionScore:    a.sessionScore(scores, mean),
		OptimalWindows:  a.optimalIntervals(windows),
		TimeInState:     a.timeInState(windows),
		ComponentScores: ComponentScores{
			Alertness:      stat.Mean(alertness, nil),
			Focus:          stat.Mean(focus, nil),
			ArousalBalance: stat.Mean(arousal, nil),
		},
	}
	s.Insights = insights(s)
	s.Recommendations = a.recommendations(s)
	return s, nil
}

func (a *Analyzer) sessionScore(scores []float64, mean float64) float64 {
	optimal := 0
	for _, v := range scores {
		if v >= a.calc.OptimalThreshold() {
			optimal++
		}
	}
	pct := 100 * float64(optimal) / float64(len(scores))
	return round2(a.profile.AvgWeight*mean + a.profile.OptimalWeight*pct)
}

func (a *Analyzer) optimalIntervals(windows []windowing.Window) []OptimalInterval {
	out := []OptimalInterval{}
	var run []windowing.Window
	for _, w := range windows {
		if w.LRI.LRI >= a.calc.OptimalThreshold() {
			run = append(run, w)
			continue
		}
		if len(run) > 0 {
			out = append(out, a.closeRun(run))
			run = nil
		}
	}
	if len(run) > 0 {
		out = append(out, a.closeRun(run))
	}
	return out
}

// closeRun measures from the first start to the last end because windows
// overlap; sample count × window length would over-count.
func (a *Analyzer) closeRun(run []windowing.Window) OptimalInterval {
	var sum float64
	for _, w := range run {
		sum += w.LRI.LRI
	}
	avg := sum / float64(len(run))
	start, end := run[0].Start, run[len(run)-1].End
	return OptimalInterval{
		Start:           start,
		End:             end,
		DurationMinutes: round2(end.Sub(start).Minutes()),
		AvgLRI:          round2(avg),
		Quality:         a.classifyQuality(avg),
	}
}

func (a *Analyzer) classifyQuality(avg float64) string {
	switch {
	case avg >= a.profile.Excellent:
		return QualityExcellent
	case avg >= a.profile.VeryGood:
		return QualityVeryGood
	case avg >= a.calc.OptimalThreshold():
		return QualityGood
	default:
		return QualityModerate
	}
}

// Span is a closed time interval.
type Span struct{ Start, End time.Time }

func (a *Analyzer) timeInState(windows []windowing.Window) TimeInState {
	var optimal, moderate, low []Span
	for _, w := range windows {
		sp := Span{w.Start, w.End}
		switch a.calc.StatusFor(w.LRI.LRI) {
		case lri.StatusOptimal:
			optimal = append(optimal, sp)
		case lri.StatusModerate:
			moderate = append(moderate, sp)
		default:
			low = append(low, sp)
		}
	}
	return TimeInState{
		OptimalMinutes:  round2(UnionDuration(optimal).Minutes()),
		ModerateMinutes: round2(UnionDuration(moderate).Minutes()),
		LowMinutes:      round2(UnionDuration(low).Minutes()),
	}
}

// UnionDuration sums the length of the union of spans: spans are sorted by
// start and merged whenever a start is not after the running merged end, so
// overlapping minutes count once.
func UnionDuration(spans []Span) time.Duration {
	if len(spans) == 0 {
		return 0
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var total time.Duration
	cur := sorted[0]
	for _, sp := range sorted[1:] {
		if !sp.Start.After(cur.End) {
			if sp.End.After(cur.End) {
				cur.End = sp.End
			}
			continue
		}
		total += cur.End.Sub(cur.Start)
		cur = sp
	}
	return total + cur.End.Sub(cur.Start)
}

func insights(s Summary) []string {
	var out []string
	if s.PeakLRI >= 80 {
		out = append(out, "Peak learning readiness exceeded 80 (strong plasticity trigger).")
	} else {
		out = append(out, "Consider exercise or focus drills to raise peak readiness.")
	}

	if len(s.OptimalWindows) > 0 {
		var minutes float64
		for _, w := range s.OptimalWindows {
			minutes += w.DurationMinutes
		}
		out = append(out, fmt.Sprintf("Time in optimal state: %.1f minutes.", minutes))
	} else {
		out = append(out, "No sustained optimal windows detected in this session.")
	}
	return out
}

func (a *Analyzer) recommendations(s Summary) []string {
	out := []string{}
	if len(s.OptimalWindows) > 0 {
		out = append(out, fmt.Sprintf(
			"Schedule deep work around %s to align with your optimal window.",
			s.OptimalWindows[0].Start.Format(time.RFC3339)))
	}
	if s.PeakLRI < a.calc.OptimalThreshold() {
		out = append(out, "Experiment with high-intensity exercise 60-90 minutes before sessions.")
	}
	return out
}

func median(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	// The empirical quantile is the lower middle element for even counts.
	m := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n := len(sorted); n%2 == 0 {
		m = (m + sorted[n/2]) / 2
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
