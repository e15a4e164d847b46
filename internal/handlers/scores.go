package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/repository"
	"github.com/mahidalhan/axon/internal/scores"
	"go.uber.org/zap"
)

// ScoreStore is the persistence the score endpoints read and write.
type ScoreStore interface {
	LatestLRIScore(ctx context.Context) (*models.LRIScore, error)
	LRIScoresSince(ctx context.Context, since time.Time) ([]models.LRIScore, error)
	LatestDNOS(ctx context.Context) (*models.DNOSScore, error)
	DNOSOn(ctx context.Context, day time.Time) (*models.DNOSScore, error)
	DNOSHistory(ctx context.Context, from, to time.Time) ([]scores.DayAggregate, error)
	LatestBrainScore(ctx context.Context) (*models.BrainScore, error)
	SleepRecordOn(ctx context.Context, day time.Time) (*models.SleepRecord, error)
	SleepRecords(ctx context.Context, from, to time.Time) ([]models.SleepRecord, error)
	SaveSleepRecord(ctx context.Context, rec *models.SleepRecord) error
	SaveExercise(ctx context.Context, e *models.ExerciseEvent) error
}

// RollupFunc recomputes the DNOS of a day and the Brain Score ending on it.
type RollupFunc func(ctx context.Context, day time.Time) error

type ScoresHandler struct {
	log    *zap.Logger
	store  ScoreStore
	rollup RollupFunc
	now    func() time.Time
}

func NewScoresHandler(log *zap.Logger, store ScoreStore, rollup RollupFunc) *ScoresHandler {
	return &ScoresHandler{log: log, store: store, rollup: rollup, now: time.Now}
}

// intQuery parses a positive integer query parameter bounded by max.
func intQuery(c *gin.Context, name string, def, max int) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return n, true
}

func dateString(t time.Time) string { return t.Format(time.DateOnly) }

// storeError answers a failed lookup; notFound is the 404 message.
func (h *ScoresHandler) storeError(c *gin.Context, err error, notFound, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	h.log.Error("Failed to load "+what, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load " + what})
}

func lriPayload(s models.LRIScore) gin.H {
	return gin.H{
		"lri":       s.LRI,
		"timestamp": s.Timestamp,
		"components": gin.H{
			"alertness":       s.Alertness,
			"focus":           s.Focus,
			"arousal_balance": s.ArousalBalance,
		},
		"status":               s.Status,
		"post_exercise_window": s.PostExerciseWindow(),
	}
}

// LatestLRI is the most recent stored reading of any connection.
func (h *ScoresHandler) LatestLRI(c *gin.Context) {
	s, err := h.store.LatestLRIScore(c.Request.Context())
	if err != nil {
		h.storeError(c, err, "No LRI data found", "LRI score")
		return
	}
	c.JSON(http.StatusOK, lriPayload(*s))
}

func (h *ScoresHandler) RecentLRI(c *gin.Context) {
	hours, ok := intQuery(c, "hours", 12, 24*28)
	if !ok {
		return
	}
	rows, err := h.store.LRIScoresSince(c.Request.Context(), h.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.storeError(c, err, "", "LRI history")
		return
	}
	samples := make([]gin.H, len(rows))
	for i, r := range rows {
		samples[i] = lriPayload(r)
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
}

// DNOS serves /api/dnos/:date where date is YYYY-MM-DD, "today" for the
// latest stored day, or "history" for the last ?days= days.
func (h *ScoresHandler) DNOS(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		row *models.DNOSScore
		err error
	)
	switch param := c.Param("date"); param {
	case "history":
		h.dnosHistory(c)
		return
	case "today":
		row, err = h.store.LatestDNOS(ctx)
	default:
		day, perr := time.Parse(time.DateOnly, param)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
			return
		}
		row, err = h.store.DNOSOn(ctx, day)
	}
	if err != nil {
		h.storeError(c, err, "No DNOS data found", "DNOS")
		return
	}

	var sleepDetails any
	sleep, err := h.store.SleepRecordOn(ctx, row.Date)
	switch {
	case err == nil:
		sleepDetails = gin.H{
			"sleep_score":    sleep.SleepScore,
			"deep_sleep_pct": sleep.DeepPct,
			"rem_pct":        sleep.REMPct,
			"efficiency":     sleep.Efficiency,
		}
	case !errors.Is(err, repository.ErrNotFound):
		h.storeError(c, err, "", "sleep record")
		return
	}

	insights := []string(row.Insights)
	if insights == nil {
		insights = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"date": dateString(row.Date),
		"dnos": row.DNOS,
		"components": gin.H{
			"avg_lri":                    row.AvgLRI,
			"optimal_window_utilization": row.OptimalWindowUtilization,
			"sleep_consolidation":        row.SleepConsolidation,
		},
		"sleep_details": sleepDetails,
		"insights":      insights,
	})
}

func (h *ScoresHandler) dnosHistory(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, 365)
	if !ok {
		return
	}
	end := h.now().UTC()
	history, err := h.store.DNOSHistory(c.Request.Context(), end.AddDate(0, 0, -(days-1)), end)
	if err != nil {
		h.storeError(c, err, "", "DNOS history")
		return
	}
	out := make([]gin.H, len(history))
	for i, d := range history {
		out[i] = gin.H{
			"date":     dateString(d.Date),
			"dnos":     d.DNOS,
			"avg_lri":  d.AvgLRI,
			"insights": d.Insights,
		}
	}
	c.JSON(http.StatusOK, gin.H{"history": out, "count": len(out)})
}

func (h *ScoresHandler) CurrentBrainScore(c *gin.Context) {
	b, err := h.store.LatestBrainScore(c.Request.Context())
	if err != nil {
		h.storeError(c, err, "No Brain Score data found", "Brain Score")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"brain_score": b.BrainScore,
		"period": gin.H{
			"start": dateString(b.PeriodStart),
			"end":   dateString(b.PeriodEnd),
		},
		"interpretation": b.Interpretation,
		"components": gin.H{
			"cycle_completion":  gin.H{"score": b.CycleCompletionScore, "complete_cycles": b.CompleteCycles},
			"baseline_capacity": gin.H{"score": b.BaselineCapacityScore, "morning_lri_avg": b.MorningLRIAvg},
			"efficiency_trend":  gin.H{"score": b.EfficiencyTrendScore, "improvement_pct": b.ImprovementPct},
			"vagus_health":      gin.H{"score": b.VagusHealthScore, "exercise_days": b.ExerciseDays},
		},
		"recommendations": []string(b.Recommendations),
	})
}

func (h *ScoresHandler) RecentSleep(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, 365)
	if !ok {
		return
	}
	end := h.now().UTC()
	records, err := h.store.SleepRecords(c.Request.Context(), end.AddDate(0, 0, -(days-1)), end)
	if err != nil {
		h.storeError(c, err, "", "sleep records")
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

type sleepRequest struct {
	Date string `json:"date" binding:"required"`
	scores.SleepStages
}

// SaveSleep scores and stores one night of stage data.
func (h *ScoresHandler) SaveSleep(c *gin.Context) {
	var req sleepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sleep record"})
		return
	}
	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
		return
	}
	if req.TotalMinutes < 0 || req.DeepPct < 0 || req.REMPct < 0 || req.Efficiency < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sleep values must not be negative"})
		return
	}

	rec := models.NewSleepRecord(day, req.SleepStages)
	if err := h.store.SaveSleepRecord(c.Request.Context(), &rec); err != nil {
		h.log.Error("Failed to save sleep record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save sleep record"})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type exerciseRequest struct {
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Activity  string    `json:"activity"`
}

func (h *ScoresHandler) SaveExercise(c *gin.Context) {
	var req exerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exercise event"})
		return
	}
	e := models.ExerciseEvent{Timestamp: req.Timestamp.UTC(), Activity: req.Activity}
	if err := h.store.SaveExercise(c.Request.Context(), &e); err != nil {
		h.log.Error("Failed to save exercise event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save exercise event"})
		return
	}
	c.JSON(http.StatusCreated, e)
}

// Rollup recomputes the scores of :date on demand.
func (h *ScoresHandler) Rollup(c *gin.Context) {
	day, err := time.Parse(time.DateOnly, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
		return
	}
	if h.rollup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rollup is not available"})
		return
	}
	if err := h.rollup(c.Request.Context(), day); err != nil {
		h.log.Error("Manual rollup failed", zap.String("day", c.Param("date")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rollup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rollup completed", "date": dateString(day)})
}
