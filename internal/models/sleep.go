package models

import (
	"time"

	"github.com/mahidalhan/axon/internal/scores"
)

// SleepRecord is the night ending on Date. The score is computed from the
// stage data when the record is created.
type SleepRecord struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	Date         time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`
	SleepScore   float64   `json:"sleep_score"`
	TotalMinutes float64   `json:"total_sleep_min"`
	DeepPct      float64   `json:"deep_sleep_pct"`
	REMPct       float64   `json:"rem_sleep_pct"`
	Efficiency   float64   `json:"efficiency"`
	SWSQuality   float64   `json:"sws_quality"`
	REMQuality   float64   `json:"rem_quality"`
	EffQuality   float64   `json:"efficiency_quality"`
	DurQuality   float64   `json:"duration_quality"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

func NewSleepRecord(date time.Time, stages scores.SleepStages) SleepRecord {
	res := scores.SleepScore(stages)
	return SleepRecord{
		Date:         Day(date),
		SleepScore:   res.Score,
		TotalMinutes: stages.TotalMinutes,
		DeepPct:      stages.DeepPct,
		REMPct:       stages.REMPct,
		Efficiency:   stages.Efficiency,
		SWSQuality:   res.Components.SWSQuality,
		REMQuality:   res.Components.REMQuality,
		EffQuality:   res.Components.Efficiency,
		DurQuality:   res.Components.Duration,
	}
}

func (r SleepRecord) SleepDay() scores.SleepDay {
	return scores.SleepDay{Date: r.Date, Score: r.SleepScore}
}

// ExerciseEvent marks a workout; the post-exercise window opens an hour later.
type ExerciseEvent struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Activity  string    `gorm:"size:64" json:"activity"`
	CreatedAt time.Time `json:"-"`
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
