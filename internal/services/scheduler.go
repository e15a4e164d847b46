package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/pipeline"
	"github.com/mahidalhan/axon/internal/repository"
	"github.com/mahidalhan/axon/internal/scores"
	"github.com/mahidalhan/axon/internal/scoring"
	"go.uber.org/zap"
)

// RollupStore is the slice of the repository the nightly rollup touches.
type RollupStore interface {
	LRISamples(ctx context.Context, from, to time.Time) ([]lri.Sample, error)
	SleepRecordOn(ctx context.Context, day time.Time) (*models.SleepRecord, error)
	SleepRecords(ctx context.Context, from, to time.Time) ([]models.SleepRecord, error)
	ExercisesBetween(ctx context.Context, from, to time.Time) ([]models.ExerciseEvent, error)
	SaveDNOS(ctx context.Context, agg scores.DayAggregate) error
	DNOSHistory(ctx context.Context, from, to time.Time) ([]scores.DayAggregate, error)
	SaveBrainScore(ctx context.Context, res scores.BrainScoreResult) error
}

// Scheduler scores the previous UTC day once a day at a fixed time.
type Scheduler struct {
	log        *zap.Logger
	store      RollupStore
	runner     *pipeline.Runner
	brain      *scores.BrainScoreCalculator
	windowDays int
	at         string
	now        func() time.Time

	lastRun string
}

// NewScheduler runs the rollup when the UTC clock reads at ("HH:MM").
func NewScheduler(log *zap.Logger, store RollupStore, runner *pipeline.Runner, profile scoring.BrainScoreProfile, at string) *Scheduler {
	days := profile.WindowDays
	if days <= 0 {
		days = 28
	}
	return &Scheduler{
		log:        log,
		store:      store,
		runner:     runner,
		brain:      scores.NewBrainScoreCalculator(profile),
		windowDays: days,
		at:         at,
		now:        time.Now,
	}
}

// Start runs the scheduler in a goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting daily rollup scheduler...", zap.String("utc_time", s.at))
	go func() {
		// Ticker will fire on every minute.
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runRollupCheck(ctx)
			}
		}
	}()
}

func (s *Scheduler) runRollupCheck(ctx context.Context) {
	now := s.now().UTC()
	currentTime := now.Format("15:04")
	s.log.Debug("Running rollup check", zap.String("utc_time", currentTime))
	if currentTime != s.at {
		return
	}
	day := models.Day(now).AddDate(0, 0, -1)
	key := day.Format(time.DateOnly)
	if s.lastRun == key {
		return
	}
	s.lastRun = key
	if err := s.RunRollup(ctx, day); err != nil {
		s.log.Error("Daily rollup failed", zap.String("day", key), zap.Error(err))
	}
}

// RunRollup stores the DNOS of day and recomputes the Brain Score over the
// window ending on day. A day without LRI samples stores no DNOS; a window
// without any DNOS stores no Brain Score.
func (s *Scheduler) RunRollup(ctx context.Context, day time.Time) error {
	day = models.Day(day)
	log := s.log.With(zap.String("day", day.Format(time.DateOnly)))

	samples, err := s.store.LRISamples(ctx, day, day)
	if err != nil {
		return fmt.Errorf("failed to load LRI samples: %w", err)
	}

	var sleepScore float64
	rec, err := s.store.SleepRecordOn(ctx, day)
	switch {
	case err == nil:
		sleepScore = rec.SleepScore
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to load sleep record: %w", err)
	}

	exercises, err := s.store.ExercisesBetween(ctx, day, day)
	if err != nil {
		return fmt.Errorf("failed to load exercise events: %w", err)
	}
	var exercise *time.Time
	if len(exercises) > 0 {
		exercise = &exercises[0].Timestamp
	}

	aggs, err := s.runner.DailyRollup(ctx, []scores.Day{{Date: day, Samples: samples, SleepScore: sleepScore, Exercise: exercise}})
	if err != nil {
		return err
	}
	for _, agg := range aggs {
		if err := s.store.SaveDNOS(ctx, agg); err != nil {
			return fmt.Errorf("failed to save DNOS: %w", err)
		}
		log.Info("Stored DNOS", zap.Float64("dnos", agg.DNOS), zap.Int("samples", len(samples)))
	}
	if len(aggs) == 0 {
		log.Info("No LRI samples recorded; skipping DNOS")
	}

	return s.brainScore(ctx, day, log)
}

func (s *Scheduler) brainScore(ctx context.Context, end time.Time, log *zap.Logger) error {
	start := end.AddDate(0, 0, -(s.windowDays - 1))
	history, err := s.store.DNOSHistory(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to load DNOS history: %w", err)
	}
	samples, err := s.store.LRISamples(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to load LRI history: %w", err)
	}
	records, err := s.store.SleepRecords(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to load sleep history: %w", err)
	}
	sleep := make([]scores.SleepDay, len(records))
	for i, r := range records {
		sleep[i] = r.SleepDay()
	}

	res, err := s.brain.Calculate(history, samples, sleep)
	if errors.Is(err, scores.ErrNoHistory) {
		log.Info("No DNOS history; skipping Brain Score")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.SaveBrainScore(ctx, res); err != nil {
		return fmt.Errorf("failed to save Brain Score: %w", err)
	}
	log.Info("Stored Brain Score",
		zap.Float64("brain_score", res.BrainScore),
		zap.String("interpretation", res.Interpretation),
		zap.Int("days", len(history)))
	return nil
}
