package models

import (
	"time"

	"github.com/mahidalhan/axon/internal/lri"
)

// LRIScore is one persisted readiness sample, recorded from a live
// connection or imported from a processed session.
type LRIScore struct {
	ID                     uint      `gorm:"primaryKey" json:"-"`
	ConnectionID           string    `gorm:"index" json:"connection_id,omitempty"`
	Timestamp              time.Time `gorm:"index;not null" json:"timestamp"`
	LRI                    float64   `json:"lri"`
	BaseLRI                float64   `json:"base_lri"`
	Alertness              float64   `json:"alertness"`
	Focus                  float64   `json:"focus"`
	ArousalBalance         float64   `json:"arousal_balance"`
	Status                 string    `gorm:"size:16" json:"status"`
	PostExerciseMultiplier float64   `gorm:"default:1" json:"post_exercise_multiplier"`
	CreatedAt              time.Time `json:"-"`
}

// NewLRIScore stores s for connectionID with its timestamp in UTC.
func NewLRIScore(connectionID string, s lri.Sample) LRIScore {
	return LRIScore{
		ConnectionID:           connectionID,
		Timestamp:              s.Timestamp.UTC(),
		LRI:                    s.LRI,
		BaseLRI:                s.BaseLRI,
		Alertness:              s.Alertness,
		Focus:                  s.Focus,
		ArousalBalance:         s.ArousalBalance,
		Status:                 string(s.Status),
		PostExerciseMultiplier: s.PostExerciseMultiplier,
	}
}

// PostExerciseWindow reports whether the sample was boosted.
func (s LRIScore) PostExerciseWindow() bool { return s.PostExerciseMultiplier > 1 }

// Sample converts the row back to a scoring sample. The timestamp is
// returned in UTC whatever zone the driver decoded it in, so hour-of-day and
// day keys agree with the UTC day ranges the rollup queries.
func (s LRIScore) Sample() lri.Sample {
	return lri.Sample{
		Timestamp: s.Timestamp.UTC(),
		Result: lri.Result{
			LRI:                    s.LRI,
			BaseLRI:                s.BaseLRI,
			Alertness:              s.Alertness,
			Focus:                  s.Focus,
			ArousalBalance:         s.ArousalBalance,
			Status:                 lri.Status(s.Status),
			PostExerciseMultiplier: s.PostExerciseMultiplier,
		},
	}
}

// Samples converts rows in order.
func Samples(rows []LRIScore) []lri.Sample {
	out := make([]lri.Sample, len(rows))
	for i, r := range rows {
		out[i] = r.Sample()
	}
	return out
}
