package scores

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/scoring"
)

var ErrNoHistory = errors.New("scores: brain score needs at least one day of DNOS history")

// Interpretation bands of the composite Brain Score.
const (
	InterpretationElite    = "Elite Neuroplasticity Health"
	InterpretationGood     = "Good Neuroplasticity Health"
	InterpretationModerate = "Moderate Neuroplasticity Health"
	InterpretationPoor     = "Poor Neuroplasticity Health"
)

// SleepDay is the sleep score recorded for the night ending on Date.
type SleepDay struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"sleep_score"`
}

type CycleCompletion struct {
	Score          float64 `json:"score"`
	CompleteCycles int     `json:"complete_cycles"`
}

type BaselineCapacity struct {
	Score         float64 `json:"score"`
	MorningLRIAvg float64 `json:"morning_lri_avg"`
}

type EfficiencyTrend struct {
	Score          float64 `json:"score"`
	ImprovementPct float64 `json:"improvement_pct"`
}

type VagusHealth struct {
	Score        float64 `json:"score"`
	ExerciseDays int     `json:"exercise_days"`
}

// BrainScoreResult is the 28-day composite with its four sub-scores.
type BrainScoreResult struct {
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	BrainScore       float64          `json:"brain_score"`
	CycleCompletion  CycleCompletion  `json:"cycle_completion"`
	BaselineCapacity BaselineCapacity `json:"baseline_capacity"`
	EfficiencyTrend  EfficiencyTrend  `json:"efficiency_trend"`
	VagusHealth      VagusHealth      `json:"vagus_health"`
	Interpretation   string           `json:"interpretation"`
	Recommendations  []string         `json:"recommendations"`
}

type BrainScoreCalculator struct {
	profile scoring.BrainScoreProfile
}

func NewBrainScoreCalculator(profile scoring.BrainScoreProfile) *BrainScoreCalculator {
	return &BrainScoreCalculator{profile: profile}
}

// BrainScore scores the history with the reference constants.
func BrainScore(dnosHistory []DayAggregate, lriHistory []lri.Sample, sleepHistory []SleepDay) (BrainScoreResult, error) {
	return NewBrainScoreCalculator(scoring.Default().BrainScore).Calculate(dnosHistory, lriHistory, sleepHistory)
}

// Calculate combines the four sub-scores:
//
//	brain_score = 0.35·cycle + 0.25·baseline + 0.25·trend + 0.15·vagus
//
// History shorter than the window degrades the cycle and trend terms rather
// than failing; only an empty DNOS history is an error.
func (c *BrainScoreCalculator) Calculate(dnosHistory []DayAggregate, lriHistory []lri.Sample, sleepHistory []SleepDay) (BrainScoreResult, error) {
	if len(dnosHistory) == 0 {
		return BrainScoreResult{}, ErrNoHistory
	}
	days := make([]DayAggregate, len(dnosHistory))
	copy(days, dnosHistory)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	p := c.profile
	r := BrainScoreResult{
		PeriodStart:      days[0].Date,
		PeriodEnd:        days[len(days)-1].Date,
		CycleCompletion:  c.cycleCompletion(days, lriHistory, sleepHistory),
		BaselineCapacity: c.baselineCapacity(lriHistory),
		EfficiencyTrend:  c.efficiencyTrend(days),
		VagusHealth:      c.vagusHealth(lriHistory),
	}
	r.BrainScore = round1(p.CycleWeight*r.CycleCompletion.Score +
		p.BaselineWeight*r.BaselineCapacity.Score +
		p.TrendWeight*r.EfficiencyTrend.Score +
		p.VagusWeight*r.VagusHealth.Score)
	r.Interpretation = Interpret(r.BrainScore)
	r.Recommendations = recommendations(r)
	return r, nil
}

// cycleCompletion counts days where all three legs of the cycle held: at
// least CycleMinutes at LRI ≥ 70 (each sample counted as MinutesPerSample),
// the day's DNOS avg_lri ≥ 60 and that day's sleep score ≥ 70.
func (c *BrainScoreCalculator) cycleCompletion(days []DayAggregate, history []lri.Sample, sleep []SleepDay) CycleCompletion {
	p := c.profile
	high := map[string]int{}
	for _, s := range history {
		if s.LRI >= p.CycleLRI {
			high[dayKey(s.Timestamp)]++
		}
	}
	sleepByDay := map[string]float64{}
	for _, s := range sleep {
		k := dayKey(s.Date)
		if _, seen := sleepByDay[k]; !seen {
			sleepByDay[k] = s.Score
		}
	}

	completed := 0
	for _, d := range days {
		k := dayKey(d.Date)
		trigger := float64(high[k])*p.MinutesPerSample >= p.CycleMinutes
		score, ok := sleepByDay[k]
		consolidation := ok && score >= p.CycleSleep
		signal := d.AvgLRI >= p.CycleAvgLRI
		if trigger && signal && consolidation {
			completed++
		}
	}
	return CycleCompletion{
		Score:          round1(clip(100*float64(completed)/float64(p.WindowDays), 0, 100)),
		CompleteCycles: completed,
	}
}

func (c *BrainScoreCalculator) baselineCapacity(history []lri.Sample) BaselineCapacity {
	p := c.profile
	var sum float64
	var n int
	for _, s := range history {
		if slices.Contains(p.MorningHours, s.Timestamp.Hour()) {
			sum += s.LRI
			n++
		}
	}
	if n == 0 {
		return BaselineCapacity{Score: 50, MorningLRIAvg: 50}
	}
	avg := sum / float64(n)
	return BaselineCapacity{
		Score:         round1(clip((avg-p.BaselineOffset)*p.BaselineGain, 0, 100)),
		MorningLRIAvg: round1(avg),
	}
}

// efficiencyTrend compares the first and second fortnight of the trailing
// window. A zero early mean has no defined percentage change and keeps the
// neutral default.
func (c *BrainScoreCalculator) efficiencyTrend(days []DayAggregate) EfficiencyTrend {
	p := c.profile
	neutral := EfficiencyTrend{Score: 50, ImprovementPct: 0}
	if len(days) < p.WindowDays {
		return neutral
	}
	window := days[len(days)-p.WindowDays:]
	half := p.WindowDays / 2
	early, recent := meanDNOS(window[:half]), meanDNOS(window[half:])
	if early == 0 {
		return neutral
	}
	pct := (recent - early) / early * 100
	return EfficiencyTrend{
		Score:          round1(clip(50+p.TrendGain*pct/100, 0, 100)),
		ImprovementPct: round1(pct),
	}
}

// vagusHealth counts days whose afternoon mean LRI beats the morning mean by
// more than VagusBoost, the signature of an exercise-driven lift.
func (c *BrainScoreCalculator) vagusHealth(history []lri.Sample) VagusHealth {
	p := c.profile
	type acc struct {
		mSum, aSum float64
		mN, aN     int
	}
	byDay := map[string]*acc{}
	for _, s := range history {
		h := s.Timestamp.Hour()
		morning, afternoon := slices.Contains(p.VagusMorning, h), slices.Contains(p.VagusAfternoon, h)
		if !morning && !afternoon {
			continue
		}
		k := dayKey(s.Timestamp)
		a, ok := byDay[k]
		if !ok {
			a = &acc{}
			byDay[k] = a
		}
		if morning {
			a.mSum += s.LRI
			a.mN++
		}
		if afternoon {
			a.aSum += s.LRI
			a.aN++
		}
	}

	days := 0
	for _, a := range byDay {
		if a.mN == 0 || a.aN == 0 {
			continue
		}
		if a.aSum/float64(a.aN) > a.mSum/float64(a.mN)+p.VagusBoost {
			days++
		}
	}
	return VagusHealth{
		Score:        round1(clip(100*float64(days)/p.VagusTargetDays, 0, 100)),
		ExerciseDays: days,
	}
}

// Interpret maps a composite score onto its band.
func Interpret(score float64) string {
	switch {
	case score >= 90:
		return InterpretationElite
	case score >= 70:
		return InterpretationGood
	case score >= 50:
		return InterpretationModerate
	default:
		return InterpretationPoor
	}
}

func recommendations(r BrainScoreResult) []string {
	out := []string{}
	if r.CycleCompletion.Score < 70 {
		out = append(out, "Increase complete cycle frequency - focus on pairing high LRI days with quality sleep")
	}
	if r.BaselineCapacity.Score < 60 {
		out = append(out, "Improve morning baseline with consistent wake time and morning exercise routine")
	}
	if r.EfficiencyTrend.Score < 50 {
		out = append(out, "Efficiency declining - review sleep quality and stress management")
	}
	if r.VagusHealth.Score < 60 {
		out = append(out, "Add regular exercise (5-6 days/week) to activate vagus nerve pathway")
	}
	if len(out) == 0 {
		out = append(out, "Excellent performance - maintain current protocols")
	}
	return out
}

func meanDNOS(days []DayAggregate) float64 {
	var sum float64
	for _, d := range days {
		sum += d.DNOS
	}
	return sum / float64(len(days))
}
