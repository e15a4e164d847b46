package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mahidalhan/axon/internal/session"
)

// SessionRecord is an analysed recording. The full summary document is kept
// as JSON next to the columns used for listing.
type SessionRecord struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	ParticipantID   string          `gorm:"index;size:64" json:"participant_id"`
	Source          string          `json:"source"`
	SessionStart    time.Time       `gorm:"index" json:"session_start"`
	SessionEnd      time.Time       `json:"session_end"`
	DurationMinutes float64         `json:"session_duration_minutes"`
	PeakLRI         float64         `json:"peak_lri"`
	AvgLRI          float64         `json:"avg_lri"`
	SessionScore    float64         `json:"session_score"`
	Summary         session.Summary `gorm:"serializer:json;type:jsonb" json:"summary"`
	CreatedAt       time.Time       `json:"created_at"`
}

func NewSessionRecord(participantID, source string, s session.Summary) SessionRecord {
	return SessionRecord{
		ID:              uuid.NewString(),
		ParticipantID:   participantID,
		Source:          source,
		SessionStart:    s.SessionStart,
		SessionEnd:      s.SessionEnd,
		DurationMinutes: s.DurationMinutes,
		PeakLRI:         s.PeakLRI,
		AvgLRI:          s.AvgLRI,
		SessionScore:    s.SessionScore,
		Summary:         s,
	}
}
