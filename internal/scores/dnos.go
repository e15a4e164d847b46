// Package scores rolls LRI history up into the Daily Neuroplasticity
// Opportunity Score (DNOS), the 28-day Brain Score and the nightly sleep
// consolidation score.
package scores

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/scoring"
)

// DayAggregate is the DNOS of one calendar day.
type DayAggregate struct {
	Date               time.Time `json:"date"`
	DNOS               float64   `json:"dnos"`
	AvgLRI             float64   `json:"avg_lri"`
	WindowUtilization  float64   `json:"optimal_window_utilization"`
	SleepConsolidation float64   `json:"sleep_consolidation"`
	Insights           []string  `json:"insights"`
}

// Day is the raw input of one DNOS computation.
type Day struct {
	Date       time.Time
	Samples    []lri.Sample
	SleepScore float64
	Exercise   *time.Time
}

type DNOSCalculator struct {
	profile scoring.DNOSProfile
}

func NewDNOSCalculator(profile scoring.DNOSProfile) *DNOSCalculator {
	return &DNOSCalculator{profile: profile}
}

// DNOS scores one day with the reference constants.
func DNOS(samples []lri.Sample, sleepScore float64, exercise *time.Time) (DayAggregate, bool) {
	return NewDNOSCalculator(scoring.Default().DNOS).Calculate(samples, sleepScore, exercise)
}

// Calculate returns false for a day without samples; callers skip that day.
//
// avg_lri     = mean LRI of samples whose hour is within the active hours
// (inclusive), or the default LRI when none are.
// utilization = 100 · |{s ∈ [ex+1h, ex+4h] : lri ≥ high}| / |{s ∈ [ex+1h, ex+4h]}|,
// 0 without an exercise timestamp or without samples in the window.
// dnos        = 0.50·avg_lri + 0.30·utilization + 0.20·sleep, sleep = default when 0.
func (c *DNOSCalculator) Calculate(samples []lri.Sample, sleepScore float64, exercise *time.Time) (DayAggregate, bool) {
	if len(samples) == 0 {
		return DayAggregate{}, false
	}
	p := c.profile

	var sum float64
	var n int
	for _, s := range samples {
		if h := s.Timestamp.Hour(); h >= p.ActiveStartHour && h <= p.ActiveEndHour {
			sum += s.LRI
			n++
		}
	}
	avg := p.DefaultLRI
	if n > 0 {
		avg = sum / float64(n)
	}

	var util float64
	if exercise != nil {
		util = c.windowUtilization(samples, *exercise)
	}

	sleep := sleepScore
	if sleep == 0 {
		sleep = p.DefaultSleep
	}

	dnos := p.LRIWeight*avg + p.UtilizationWeight*util + p.SleepWeight*sleep
	return DayAggregate{
		Date:               dayOf(samples[0].Timestamp),
		DNOS:               round1(dnos),
		AvgLRI:             round1(avg),
		WindowUtilization:  round1(util),
		SleepConsolidation: round1(sleep),
		Insights:           dnosInsights(avg, util, sleep),
	}, true
}

func (c *DNOSCalculator) windowUtilization(samples []lri.Sample, exercise time.Time) float64 {
	start := exercise.Add(hours(c.profile.WindowStartHours))
	end := exercise.Add(hours(c.profile.WindowEndHours))

	var total, high int
	for _, s := range samples {
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		total++
		if s.LRI >= c.profile.HighLRI {
			high++
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(high) / float64(total)
}

func dnosInsights(avg, util, sleep float64) []string {
	out := []string{}
	switch {
	case avg >= 70:
		out = append(out, "Strong learning readiness maintained throughout day")
	case avg < 50:
		out = append(out, "Low baseline alertness - consider earlier sleep or exercise")
	}
	switch {
	case util >= 60:
		out = append(out, fmt.Sprintf("Excellent post-exercise window capture (%.0f%%)", util))
	case util > 0:
		out = append(out, fmt.Sprintf("Missed opportunities in post-exercise window (%.0f%% utilized)", util))
	}
	switch {
	case sleep >= 80:
		out = append(out, "Previous night's sleep quality supports consolidation")
	case sleep < 60:
		out = append(out, "Poor sleep quality may limit neuroplasticity outcomes")
	}
	return out
}

// GroupByDay buckets samples by the calendar day of their timestamp, in the
// timestamp's own location. Days come back in chronological order.
func GroupByDay(samples []lri.Sample) []Day {
	byKey := map[string]*Day{}
	var keys []string
	for _, s := range samples {
		k := dayKey(s.Timestamp)
		d, ok := byKey[k]
		if !ok {
			d = &Day{Date: dayOf(s.Timestamp)}
			byKey[k] = d
			keys = append(keys, k)
		}
		d.Samples = append(d.Samples, s)
	}
	sort.Strings(keys)
	out := make([]Day, len(keys))
	for i, k := range keys {
		out[i] = *byKey[k]
	}
	return out
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }

func hours(h float64) time.Duration { return time.Duration(h * float64(time.Hour)) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func clip(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
