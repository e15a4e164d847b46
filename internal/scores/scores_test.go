package scores

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
)

var day0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return day0.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func sample(ts time.Time, score float64) lri.Sample {
	return lri.Sample{Timestamp: ts, Result: lri.Result{LRI: score}}
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestDNOSEmptyDay(t *testing.T) {
	if _, ok := DNOS(nil, 80, nil); ok {
		t.Fatalf("expected no aggregate for an empty day")
	}
}

func TestDNOSFullyUtilizedWindow(t *testing.T) {
	var samples []lri.Sample
	for m := 0; m <= 120; m += 30 {
		samples = append(samples, sample(at(0, 9, m), 80))
	}
	ex := at(0, 8, 0)
	agg, ok := DNOS(samples, 85, &ex)
	if !ok {
		t.Fatalf("expected aggregate")
	}
	if agg.AvgLRI != 80 || agg.WindowUtilization != 100 || agg.SleepConsolidation != 85 {
		t.Fatalf("components: %+v", agg)
	}
	// 0.5·80 + 0.3·100 + 0.2·85
	if agg.DNOS != 87 {
		t.Fatalf("dnos: got %v want 87", agg.DNOS)
	}
	if !agg.Date.Equal(day0) {
		t.Fatalf("date: %v", agg.Date)
	}
	want := []string{
		"Strong learning readiness maintained throughout day",
		"Excellent post-exercise window capture (100%)",
		"Previous night's sleep quality supports consolidation",
	}
	if len(agg.Insights) != len(want) {
		t.Fatalf("insights: %v", agg.Insights)
	}
	for i := range want {
		if agg.Insights[i] != want[i] {
			t.Errorf("insight %d: got %q want %q", i, agg.Insights[i], want[i])
		}
	}
}

func TestDNOSDefaults(t *testing.T) {
	samples := []lri.Sample{sample(at(0, 3, 0), 30), sample(at(0, 23, 0), 30)}
	agg, ok := DNOS(samples, 0, nil)
	if !ok {
		t.Fatalf("expected aggregate")
	}
	if agg.AvgLRI != 50 || agg.SleepConsolidation != 50 || agg.WindowUtilization != 0 {
		t.Fatalf("defaults not applied: %+v", agg)
	}
	if agg.DNOS != 35 {
		t.Fatalf("dnos: got %v want 35", agg.DNOS)
	}
	if len(agg.Insights) != 1 || agg.Insights[0] != "Poor sleep quality may limit neuroplasticity outcomes" {
		t.Fatalf("insights: %v", agg.Insights)
	}
}

func TestDNOSActiveHoursInclusive(t *testing.T) {
	samples := []lri.Sample{
		sample(at(0, 7, 59), 0),
		sample(at(0, 8, 0), 60),
		sample(at(0, 20, 30), 80),
		sample(at(0, 21, 0), 0),
	}
	agg, _ := DNOS(samples, 70, nil)
	if agg.AvgLRI != 70 {
		t.Fatalf("avg lri over 08..20: got %v want 70", agg.AvgLRI)
	}
}

func TestDNOSPartialUtilization(t *testing.T) {
	ex := at(0, 8, 0)
	samples := []lri.Sample{
		sample(at(0, 8, 59), 100), // before the window
		sample(at(0, 9, 0), 80),
		sample(at(0, 10, 0), 50),
		sample(at(0, 11, 0), 55),
		sample(at(0, 12, 0), 65), // ex+4h is inclusive
	}
	agg, _ := DNOS(samples, 75, &ex)
	if agg.WindowUtilization != 50 {
		t.Fatalf("utilization: got %v want 50", agg.WindowUtilization)
	}
	found := false
	for _, s := range agg.Insights {
		if s == "Missed opportunities in post-exercise window (50% utilized)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing utilization insight: %v", agg.Insights)
	}
}

func TestGroupByDay(t *testing.T) {
	samples := []lri.Sample{
		sample(at(1, 9, 0), 60),
		sample(at(0, 9, 0), 50),
		sample(at(1, 10, 0), 70),
	}
	days := GroupByDay(samples)
	if len(days) != 2 {
		t.Fatalf("days: got %d want 2", len(days))
	}
	if !days[0].Date.Equal(day0) || len(days[0].Samples) != 1 {
		t.Fatalf("first day: %+v", days[0])
	}
	if !days[1].Date.Equal(day0.AddDate(0, 0, 1)) || len(days[1].Samples) != 2 {
		t.Fatalf("second day: %+v", days[1])
	}
}

func TestBrainScoreEmptyHistory(t *testing.T) {
	if _, err := BrainScore(nil, nil, nil); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

// Twenty-eight days of good sleep, a 75 morning baseline and a post-exercise
// afternoon lift to 95 that is fully captured.
func TestBrainScoreSustainedRoutine(t *testing.T) {
	var (
		dnos    []DayAggregate
		history []lri.Sample
		sleep   []SleepDay
	)
	for d := 0; d < 28; d++ {
		var day []lri.Sample
		for _, h := range []int{7, 8, 9} {
			for m := 0; m < 60; m++ {
				day = append(day, sample(at(d, h, m), 75))
			}
		}
		for _, h := range []int{14, 15, 16} {
			for m := 0; m < 60; m++ {
				day = append(day, sample(at(d, h, m), 95))
			}
		}
		ex := at(d, 13, 0)
		agg, ok := DNOS(day, 80, &ex)
		if !ok {
			t.Fatalf("day %d produced no aggregate", d)
		}
		dnos = append(dnos, agg)
		history = append(history, day...)
		sleep = append(sleep, SleepDay{Date: day0.AddDate(0, 0, d), Score: 80})
	}

	r, err := BrainScore(dnos, history, sleep)
	if err != nil {
		t.Fatalf("brain score: %v", err)
	}
	if r.CycleCompletion.Score != 100 || r.CycleCompletion.CompleteCycles != 28 {
		t.Fatalf("cycle completion: %+v", r.CycleCompletion)
	}
	if r.BaselineCapacity.Score != 87.5 || r.BaselineCapacity.MorningLRIAvg != 75 {
		t.Fatalf("baseline: %+v", r.BaselineCapacity)
	}
	if r.EfficiencyTrend.Score != 50 || r.EfficiencyTrend.ImprovementPct != 0 {
		t.Fatalf("trend: %+v", r.EfficiencyTrend)
	}
	if r.VagusHealth.Score != 100 || r.VagusHealth.ExerciseDays != 28 {
		t.Fatalf("vagus: %+v", r.VagusHealth)
	}
	if !approx(r.BrainScore, 84.4, 0.051) {
		t.Fatalf("brain score: got %v want 84.4", r.BrainScore)
	}
	if r.BrainScore < 70 || r.Interpretation != InterpretationGood {
		t.Fatalf("interpretation: %s at %v", r.Interpretation, r.BrainScore)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0] != "Excellent performance - maintain current protocols" {
		t.Fatalf("recommendations: %v", r.Recommendations)
	}
	if !r.PeriodStart.Equal(day0) || !r.PeriodEnd.Equal(day0.AddDate(0, 0, 27)) {
		t.Fatalf("period: %v - %v", r.PeriodStart, r.PeriodEnd)
	}
}

func trendHistory(early, recent float64) []DayAggregate {
	out := make([]DayAggregate, 28)
	// Reverse order: the calculator sorts by date.
	for i := range out {
		d := 27 - i
		v := early
		if d >= 14 {
			v = recent
		}
		out[i] = DayAggregate{Date: day0.AddDate(0, 0, d), DNOS: v}
	}
	return out
}

func TestEfficiencyTrend(t *testing.T) {
	cases := []struct {
		name          string
		early, recent float64
		score, pct    float64
	}{
		{"improving", 50, 60, 56, 20},
		{"declining", 60, 45, 42.5, -25},
		{"flat", 70, 70, 50, 0},
		{"zero baseline", 0, 40, 50, 0},
	}
	for _, tc := range cases {
		r, err := BrainScore(trendHistory(tc.early, tc.recent), nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !approx(r.EfficiencyTrend.Score, tc.score, 1e-9) || !approx(r.EfficiencyTrend.ImprovementPct, tc.pct, 1e-9) {
			t.Errorf("%s: got %+v want score %v pct %v", tc.name, r.EfficiencyTrend, tc.score, tc.pct)
		}
	}
}

func TestEfficiencyTrendUsesTrailingWindow(t *testing.T) {
	// Two older days outside the 28-day window would flip the trend.
	history := trendHistory(50, 60)
	for i := 1; i <= 2; i++ {
		history = append(history, DayAggregate{Date: day0.AddDate(0, 0, -i), DNOS: 100})
	}
	r, err := BrainScore(history, nil, nil)
	if err != nil {
		t.Fatalf("brain score: %v", err)
	}
	if !approx(r.EfficiencyTrend.Score, 56, 1e-9) || !approx(r.EfficiencyTrend.ImprovementPct, 20, 1e-9) {
		t.Fatalf("trend: %+v", r.EfficiencyTrend)
	}
}

func TestBrainScoreShortHistoryDegrades(t *testing.T) {
	dnos := []DayAggregate{{Date: day0, DNOS: 40, AvgLRI: 45}}
	r, err := BrainScore(dnos, nil, nil)
	if err != nil {
		t.Fatalf("brain score: %v", err)
	}
	if r.EfficiencyTrend.Score != 50 || r.BaselineCapacity.Score != 50 || r.VagusHealth.Score != 0 {
		t.Fatalf("defaults: %+v", r)
	}
	// 0.25·50 + 0.25·50
	if r.BrainScore != 25 || r.Interpretation != InterpretationPoor {
		t.Fatalf("composite: %v %s", r.BrainScore, r.Interpretation)
	}
	if len(r.Recommendations) != 3 {
		t.Fatalf("recommendations: %v", r.Recommendations)
	}
}

func TestVagusNeedsBothHalvesOfTheDay(t *testing.T) {
	history := []lri.Sample{
		sample(at(0, 8, 0), 50), sample(at(0, 15, 0), 70), // +20: counted
		sample(at(1, 8, 0), 50), sample(at(1, 15, 0), 65), // +15: not strictly greater
		sample(at(2, 15, 0), 99), // afternoon only
	}
	r, _ := BrainScore([]DayAggregate{{Date: day0}}, history, nil)
	if r.VagusHealth.ExerciseDays != 1 {
		t.Fatalf("exercise days: got %d want 1", r.VagusHealth.ExerciseDays)
	}
	if !approx(r.VagusHealth.Score, 4.5, 1e-9) {
		t.Fatalf("vagus score: got %v want 4.5", r.VagusHealth.Score)
	}
}

func TestInterpretBands(t *testing.T) {
	cases := map[float64]string{
		90:   InterpretationElite,
		89.9: InterpretationGood,
		70:   InterpretationGood,
		50:   InterpretationModerate,
		49.9: InterpretationPoor,
	}
	for score, want := range cases {
		if got := Interpret(score); got != want {
			t.Errorf("Interpret(%v) = %q want %q", score, got, want)
		}
	}
}

func TestSleepScore(t *testing.T) {
	ideal := SleepScore(SleepStages{DeepPct: 22, REMPct: 20, Efficiency: 90, TotalMinutes: 480})
	if ideal.Score != 100 {
		t.Fatalf("ideal night: %+v", ideal)
	}

	short := SleepScore(SleepStages{DeepPct: 12, REMPct: 15, Efficiency: 75, TotalMinutes: 390})
	if short.Components.SWSQuality != 52 {
		t.Fatalf("deep component: %v", short.Components.SWSQuality)
	}
	if !approx(short.Score, 66.1, 1e-9) {
		t.Fatalf("score: got %v want 66.1", short.Score)
	}

	long := SleepScore(SleepStages{DeepPct: 22, REMPct: 20, Efficiency: 90, TotalMinutes: 600})
	if long.Components.Duration != 70 {
		t.Fatalf("oversleep duration component: %v", long.Components.Duration)
	}

	for _, s := range []SleepStages{{DeepPct: 40, REMPct: 40}, {}, {TotalMinutes: 2000}} {
		r := SleepScore(s)
		c := r.Components
		for _, v := range []float64{r.Score, c.SWSQuality, c.REMQuality, c.Efficiency, c.Duration} {
			if v < 0 || v > 100 {
				t.Fatalf("out of range for %+v: %+v", s, r)
			}
		}
	}
}

func TestDurationScoreBranches(t *testing.T) {
	cases := []struct {
		minutes, want float64
	}{
		{420, 100},
		{540, 100},
		{541, 99.5},
		{600, 70},
		{390, 80.1},
		{360, 60},
		{300, 51},
		{0, 0},
	}
	for _, tc := range cases {
		if got := durationScore(tc.minutes); !approx(got, tc.want, 1e-9) {
			t.Errorf("durationScore(%v) = %v, want %v", tc.minutes, got, tc.want)
		}
	}
}
