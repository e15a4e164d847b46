package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/repository"
	"github.com/mahidalhan/axon/internal/scores"
	"go.uber.org/zap"
)

var today = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

type memoryScores struct {
	lri   []models.LRIScore
	dnos  map[string]models.DNOSScore
	sleep map[string]models.SleepRecord
	brain *models.BrainScore
	saved []models.ExerciseEvent
	fail  bool
}

func newMemoryScores() *memoryScores {
	return &memoryScores{dnos: map[string]models.DNOSScore{}, sleep: map[string]models.SleepRecord{}}
}

func (m *memoryScores) LatestLRIScore(context.Context) (*models.LRIScore, error) {
	if len(m.lri) == 0 {
		return nil, repository.ErrNotFound
	}
	s := m.lri[len(m.lri)-1]
	return &s, nil
}

func (m *memoryScores) LRIScoresSince(_ context.Context, since time.Time) ([]models.LRIScore, error) {
	var out []models.LRIScore
	for _, s := range m.lri {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryScores) LatestDNOS(context.Context) (*models.DNOSScore, error) {
	if m.fail {
		return nil, errors.New("connection reset")
	}
	var latest *models.DNOSScore
	for _, d := range m.dnos {
		if latest == nil || d.Date.After(latest.Date) {
			d := d
			latest = &d
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (m *memoryScores) DNOSOn(_ context.Context, day time.Time) (*models.DNOSScore, error) {
	d, ok := m.dnos[day.Format(time.DateOnly)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (m *memoryScores) DNOSHistory(_ context.Context, from, to time.Time) ([]scores.DayAggregate, error) {
	var rows []models.DNOSScore
	for _, d := range m.dnos {
		if !d.Date.Before(models.Day(from)) && !d.Date.After(models.Day(to)) {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return models.Aggregates(rows), nil
}

func (m *memoryScores) LatestBrainScore(context.Context) (*models.BrainScore, error) {
	if m.brain == nil {
		return nil, repository.ErrNotFound
	}
	return m.brain, nil
}

func (m *memoryScores) SleepRecordOn(_ context.Context, day time.Time) (*models.SleepRecord, error) {
	r, ok := m.sleep[day.Format(time.DateOnly)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memoryScores) SleepRecords(context.Context, time.Time, time.Time) ([]models.SleepRecord, error) {
	out := make([]models.SleepRecord, 0, len(m.sleep))
	for _, r := range m.sleep {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryScores) SaveSleepRecord(_ context.Context, rec *models.SleepRecord) error {
	m.sleep[rec.Date.Format(time.DateOnly)] = *rec
	return nil
}

func (m *memoryScores) SaveExercise(_ context.Context, e *models.ExerciseEvent) error {
	m.saved = append(m.saved, *e)
	return nil
}

func scoresRouter(store ScoreStore, rollup RollupFunc) *gin.Engine {
	h := NewScoresHandler(zap.NewNop(), store, rollup)
	h.now = func() time.Time { return today.Add(15 * time.Hour) }
	r := gin.New()
	r.GET("/lri/current", h.LatestLRI)
	r.GET("/lri/recent", h.RecentLRI)
	r.GET("/dnos/:date", h.DNOS)
	r.GET("/brain-score/current", h.CurrentBrainScore)
	r.GET("/sleep/recent", h.RecentSleep)
	r.POST("/sleep", h.SaveSleep)
	r.POST("/exercise", h.SaveExercise)
	r.POST("/rollup/:date", h.Rollup)
	return r
}

func TestLatestLRI(t *testing.T) {
	store := newMemoryScores()
	r := scoresRouter(store, nil)
	if w := do(r, http.MethodGet, "/lri/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("empty store: %d", w.Code)
	}

	store.lri = append(store.lri, models.LRIScore{
		Timestamp:              today.Add(9 * time.Hour),
		LRI:                    72,
		Alertness:              80,
		Focus:                  60,
		ArousalBalance:         75,
		Status:                 "optimal",
		PostExerciseMultiplier: 1.3,
	})
	body := decode(t, do(r, http.MethodGet, "/lri/current", ""))
	if body["lri"] != float64(72) || body["post_exercise_window"] != true {
		t.Fatalf("body: %v", body)
	}
	comps := body["components"].(map[string]any)
	if comps["focus"] != float64(60) {
		t.Fatalf("components: %v", comps)
	}

	if w := do(r, http.MethodGet, "/lri/recent?hours=0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("hours=0: %d", w.Code)
	}
	if body := decode(t, do(r, http.MethodGet, "/lri/recent?hours=12", "")); body["count"] != float64(1) {
		t.Fatalf("recent: %v", body)
	}
}

func TestDNOSEndpoint(t *testing.T) {
	store := newMemoryScores()
	store.dnos["2024-05-09"] = models.DNOSScore{Date: today.AddDate(0, 0, -1), DNOS: 61, AvgLRI: 58}
	store.dnos["2024-05-10"] = models.DNOSScore{
		Date:               today,
		DNOS:               74.5,
		AvgLRI:             70,
		SleepConsolidation: 90,
		Insights:           pq.StringArray{"Excellent sleep consolidation"},
	}
	store.sleep["2024-05-10"] = models.SleepRecord{Date: today, SleepScore: 90, DeepPct: 20}
	r := scoresRouter(store, nil)

	body := decode(t, do(r, http.MethodGet, "/dnos/today", ""))
	if body["date"] != "2024-05-10" || body["dnos"] != 74.5 {
		t.Fatalf("today: %v", body)
	}
	details, ok := body["sleep_details"].(map[string]any)
	if !ok || details["sleep_score"] != float64(90) {
		t.Fatalf("sleep details: %v", body["sleep_details"])
	}

	body = decode(t, do(r, http.MethodGet, "/dnos/2024-05-09", ""))
	if body["dnos"] != float64(61) || body["sleep_details"] != nil {
		t.Fatalf("dated: %v", body)
	}
	if insights, ok := body["insights"].([]any); !ok || len(insights) != 0 {
		t.Fatalf("insights should be an empty list: %v", body["insights"])
	}

	body = decode(t, do(r, http.MethodGet, "/dnos/history?days=7", ""))
	if body["count"] != float64(2) {
		t.Fatalf("history: %v", body)
	}
	first := body["history"].([]any)[0].(map[string]any)
	if first["date"] != "2024-05-09" {
		t.Fatalf("history order: %v", body["history"])
	}

	cases := map[string]int{
		"/dnos/2024-05-01":     http.StatusNotFound,
		"/dnos/yesterday":      http.StatusBadRequest,
		"/dnos/history?days=x": http.StatusBadRequest,
	}
	for path, want := range cases {
		if w := do(r, http.MethodGet, path, ""); w.Code != want {
			t.Errorf("%s: got %d want %d", path, w.Code, want)
		}
	}

	store.fail = true
	if w := do(r, http.MethodGet, "/dnos/today", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("store failure: %d", w.Code)
	}
}

func TestCurrentBrainScore(t *testing.T) {
	store := newMemoryScores()
	r := scoresRouter(store, nil)
	if w := do(r, http.MethodGet, "/brain-score/current", ""); w.Code != http.StatusNotFound {
		t.Fatalf("empty: %d", w.Code)
	}

	store.brain = &models.BrainScore{
		PeriodStart:          today.AddDate(0, 0, -29),
		PeriodEnd:            today,
		BrainScore:           66,
		Interpretation:       "Good",
		CycleCompletionScore: 40,
		CompleteCycles:       12,
		Recommendations:      pq.StringArray{"Exercise more consistently"},
	}
	body := decode(t, do(r, http.MethodGet, "/brain-score/current", ""))
	if body["brain_score"] != float64(66) {
		t.Fatalf("body: %v", body)
	}
	period := body["period"].(map[string]any)
	if period["start"] != "2024-04-11" || period["end"] != "2024-05-10" {
		t.Fatalf("period: %v", period)
	}
	cycle := body["components"].(map[string]any)["cycle_completion"].(map[string]any)
	if cycle["complete_cycles"] != float64(12) {
		t.Fatalf("cycle: %v", cycle)
	}
}

func TestSaveSleepScoresRecord(t *testing.T) {
	store := newMemoryScores()
	r := scoresRouter(store, nil)

	w := do(r, http.MethodPost, "/sleep",
		`{"date":"2024-05-10","deep_sleep_pct":20,"rem_sleep_pct":25,"efficiency":95,"total_sleep_min":480}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if got := store.sleep["2024-05-10"].SleepScore; got != 100 {
		t.Fatalf("sleep score %v", got)
	}

	bad := []string{
		`{"deep_sleep_pct":20}`,
		`{"date":"10/05/2024","deep_sleep_pct":20}`,
		`{"date":"2024-05-10","total_sleep_min":-5}`,
	}
	for _, body := range bad {
		if w := do(r, http.MethodPost, "/sleep", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: %d", body, w.Code)
		}
	}
}

func TestSaveExercise(t *testing.T) {
	store := newMemoryScores()
	r := scoresRouter(store, nil)
	w := do(r, http.MethodPost, "/exercise", `{"timestamp":"2024-05-10T07:30:00+02:00","activity":"run"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d", w.Code)
	}
	if len(store.saved) != 1 || store.saved[0].Timestamp.Hour() != 5 {
		t.Fatalf("saved: %+v", store.saved)
	}
	if w := do(r, http.MethodPost, "/exercise", `{"activity":"run"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing timestamp: %d", w.Code)
	}
}

func TestRollup(t *testing.T) {
	var got time.Time
	r := scoresRouter(newMemoryScores(), func(_ context.Context, day time.Time) error {
		got = day
		return nil
	})
	if w := do(r, http.MethodPost, "/rollup/2024-05-09", ""); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !got.Equal(today.AddDate(0, 0, -1)) {
		t.Fatalf("rollup day %v", got)
	}

	r = scoresRouter(newMemoryScores(), nil)
	if w := do(r, http.MethodPost, "/rollup/2024-05-09", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("no rollup: %d", w.Code)
	}
}
