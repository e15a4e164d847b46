package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/mahidalhan/axon/internal/scores"
)

type DNOSScore struct {
	ID                       uint           `gorm:"primaryKey" json:"-"`
	Date                     time.Time      `gorm:"type:date;uniqueIndex;not null" json:"date"`
	DNOS                     float64        `json:"dnos"`
	AvgLRI                   float64        `json:"avg_lri"`
	OptimalWindowUtilization float64        `json:"optimal_window_utilization"`
	SleepConsolidation       float64        `json:"sleep_consolidation"`
	Insights                 pq.StringArray `gorm:"type:text[]" json:"insights"`
	CreatedAt                time.Time      `json:"-"`
	UpdatedAt                time.Time      `json:"-"`
}

func NewDNOSScore(a scores.DayAggregate) DNOSScore {
	return DNOSScore{
		Date:                     Day(a.Date),
		DNOS:                     a.DNOS,
		AvgLRI:                   a.AvgLRI,
		OptimalWindowUtilization: a.WindowUtilization,
		SleepConsolidation:       a.SleepConsolidation,
		Insights:                 pq.StringArray(a.Insights),
	}
}

func (d DNOSScore) Aggregate() scores.DayAggregate {
	return scores.DayAggregate{
		Date:               d.Date,
		DNOS:               d.DNOS,
		AvgLRI:             d.AvgLRI,
		WindowUtilization:  d.OptimalWindowUtilization,
		SleepConsolidation: d.SleepConsolidation,
		Insights:           []string(d.Insights),
	}
}

// Aggregates converts rows in order.
func Aggregates(rows []DNOSScore) []scores.DayAggregate {
	out := make([]scores.DayAggregate, len(rows))
	for i, r := range rows {
		out[i] = r.Aggregate()
	}
	return out
}

// BrainScore is one 28-day composite, flattened the way it is queried.
type BrainScore struct {
	ID                    uint           `gorm:"primaryKey" json:"-"`
	PeriodStart           time.Time      `gorm:"type:date" json:"period_start"`
	PeriodEnd             time.Time      `gorm:"type:date;index" json:"period_end"`
	BrainScore            float64        `json:"brain_score"`
	CycleCompletionScore  float64        `json:"cycle_completion_score"`
	CompleteCycles        int            `json:"complete_cycles"`
	BaselineCapacityScore float64        `json:"baseline_capacity_score"`
	MorningLRIAvg         float64        `json:"morning_lri_avg"`
	EfficiencyTrendScore  float64        `json:"efficiency_trend_score"`
	ImprovementPct        float64        `json:"improvement_pct"`
	VagusHealthScore      float64        `json:"vagus_health_score"`
	ExerciseDays          int            `json:"exercise_days"`
	Interpretation        string         `json:"interpretation"`
	Recommendations       pq.StringArray `gorm:"type:text[]" json:"recommendations"`
	CreatedAt             time.Time      `json:"created_at"`
}

func NewBrainScore(r scores.BrainScoreResult) BrainScore {
	return BrainScore{
		PeriodStart:           Day(r.PeriodStart),
		PeriodEnd:             Day(r.PeriodEnd),
		BrainScore:            r.BrainScore,
		CycleCompletionScore:  r.CycleCompletion.Score,
		CompleteCycles:        r.CycleCompletion.CompleteCycles,
		BaselineCapacityScore: r.BaselineCapacity.Score,
		MorningLRIAvg:         r.BaselineCapacity.MorningLRIAvg,
		EfficiencyTrendScore:  r.EfficiencyTrend.Score,
		ImprovementPct:        r.EfficiencyTrend.ImprovementPct,
		VagusHealthScore:      r.VagusHealth.Score,
		ExerciseDays:          r.VagusHealth.ExerciseDays,
		Interpretation:        r.Interpretation,
		Recommendations:       pq.StringArray(r.Recommendations),
	}
}

func (b BrainScore) Result() scores.BrainScoreResult {
	return scores.BrainScoreResult{
		PeriodStart:      b.PeriodStart,
		PeriodEnd:        b.PeriodEnd,
		BrainScore:       b.BrainScore,
		CycleCompletion:  scores.CycleCompletion{Score: b.CycleCompletionScore, CompleteCycles: b.CompleteCycles},
		BaselineCapacity: scores.BaselineCapacity{Score: b.BaselineCapacityScore, MorningLRIAvg: b.MorningLRIAvg},
		EfficiencyTrend:  scores.EfficiencyTrend{Score: b.EfficiencyTrendScore, ImprovementPct: b.ImprovementPct},
		VagusHealth:      scores.VagusHealth{Score: b.VagusHealthScore, ExerciseDays: b.ExerciseDays},
		Interpretation:   b.Interpretation,
		Recommendations:  []string(b.Recommendations),
	}
}
