// Package repository reads and writes the score history through gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/scores"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("repository: record not found")

const batchSize = 500

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// dayRange is [day(from), day(to)+24h).
func dayRange(from, to time.Time) (time.Time, time.Time) {
	return models.Day(from), models.Day(to).Add(24 * time.Hour)
}

func (s *Store) SaveLRIScores(ctx context.Context, rows []models.LRIScore) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

func (s *Store) LatestLRIScore(ctx context.Context) (*models.LRIScore, error) {
	var row models.LRIScore
	err := s.db.WithContext(ctx).Order("timestamp DESC").First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

// LRIScoresSince returns samples at or after since, oldest first.
func (s *Store) LRIScoresSince(ctx context.Context, since time.Time) ([]models.LRIScore, error) {
	var rows []models.LRIScore
	err := s.db.WithContext(ctx).
		Where("timestamp >= ?", since.UTC()).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}

// LRISamples returns the samples of the UTC days from..to inclusive.
func (s *Store) LRISamples(ctx context.Context, from, to time.Time) ([]lri.Sample, error) {
	start, end := dayRange(from, to)
	var rows []models.LRIScore
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return models.Samples(rows), nil
}

// SaveSleepRecord replaces the record of the same night.
func (s *Store) SaveSleepRecord(ctx context.Context, rec *models.SleepRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sleep_score", "total_minutes", "deep_pct", "rem_pct", "efficiency",
			"sws_quality", "rem_quality", "eff_quality", "dur_quality", "updated_at",
		}),
	}).Create(rec).Error
}

// SleepRecords returns the nights of from..to inclusive, most recent first.
func (s *Store) SleepRecords(ctx context.Context, from, to time.Time) ([]models.SleepRecord, error) {
	start, end := dayRange(from, to)
	var rows []models.SleepRecord
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date < ?", start, end).
		Order("date DESC").
		Find(&rows).Error
	return rows, err
}

func (s *Store) SleepRecordOn(ctx context.Context, day time.Time) (*models.SleepRecord, error) {
	var row models.SleepRecord
	err := s.db.WithContext(ctx).Where("date = ?", models.Day(day)).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *Store) SaveExercise(ctx context.Context, e *models.ExerciseEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// ExercisesBetween returns workouts on the UTC days from..to inclusive.
func (s *Store) ExercisesBetween(ctx context.Context, from, to time.Time) ([]models.ExerciseEvent, error) {
	start, end := dayRange(from, to)
	var rows []models.ExerciseEvent
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Order("timestamp ASC").
		Find(&rows).Error
	return rows, err
}

// SaveDNOS upserts the score of agg.Date.
func (s *Store) SaveDNOS(ctx context.Context, agg scores.DayAggregate) error {
	row := models.NewDNOSScore(agg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"dnos", "avg_lri", "optimal_window_utilization", "sleep_consolidation", "insights", "updated_at",
		}),
	}).Create(&row).Error
}

func (s *Store) DNOSOn(ctx context.Context, day time.Time) (*models.DNOSScore, error) {
	var row models.DNOSScore
	err := s.db.WithContext(ctx).Where("date = ?", models.Day(day)).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *Store) LatestDNOS(ctx context.Context) (*models.DNOSScore, error) {
	var row models.DNOSScore
	err := s.db.WithContext(ctx).Order("date DESC").First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

// DNOSHistory returns the days from..to inclusive, oldest first.
func (s *Store) DNOSHistory(ctx context.Context, from, to time.Time) ([]scores.DayAggregate, error) {
	start, end := dayRange(from, to)
	var rows []models.DNOSScore
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date < ?", start, end).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return models.Aggregates(rows), nil
}

func (s *Store) SaveBrainScore(ctx context.Context, res scores.BrainScoreResult) error {
	row := models.NewBrainScore(res)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) LatestBrainScore(ctx context.Context) (*models.BrainScore, error) {
	var row models.BrainScore
	err := s.db.WithContext(ctx).Order("period_end DESC, created_at DESC").First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *Store) SaveSession(ctx context.Context, rec *models.SessionRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) RecentSessions(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	var rows []models.SessionRecord
	err := s.db.WithContext(ctx).Order("session_start DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) SessionByID(ctx context.Context, id string) (*models.SessionRecord, error) {
	var row models.SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}
