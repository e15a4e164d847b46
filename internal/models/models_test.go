package models

import (
	"testing"
	"time"

	"github.com/mahidalhan/axon/internal/lri"
	"github.com/mahidalhan/axon/internal/scores"
)

func TestDayTruncatesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := Day(time.Date(2024, 5, 2, 3, 30, 0, 0, loc))
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Day = %v want %v", got, want)
	}
}

func TestLRIScoreKeepsStatusAndBoost(t *testing.T) {
	s := lri.Sample{
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Result:    lri.Result{LRI: 78, BaseLRI: 60, Status: lri.StatusOptimal, PostExerciseMultiplier: 1.3},
	}
	row := NewLRIScore("conn", s)
	if row.Status != "optimal" || !row.PostExerciseWindow() {
		t.Fatalf("row: %+v", row)
	}
	back := row.Sample()
	if back.Status != lri.StatusOptimal || back.LRI != 78 || !back.Timestamp.Equal(s.Timestamp) {
		t.Fatalf("sample: %+v", back)
	}
}

func TestNewSleepRecordScoresStages(t *testing.T) {
	rec := NewSleepRecord(time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), scores.SleepStages{
		DeepPct: 20, REMPct: 25, Efficiency: 95, TotalMinutes: 480,
	})
	if rec.SleepScore != 100 {
		t.Fatalf("score: %v", rec.SleepScore)
	}
	if rec.Date.Hour() != 0 {
		t.Fatalf("date not truncated: %v", rec.Date)
	}
	if d := rec.SleepDay(); d.Score != 100 {
		t.Fatalf("sleep day: %+v", d)
	}
}

func TestBrainScoreFlattening(t *testing.T) {
	res := scores.BrainScoreResult{
		BrainScore:      84.4,
		CycleCompletion: scores.CycleCompletion{Score: 100, CompleteCycles: 28},
		VagusHealth:     scores.VagusHealth{Score: 100, ExerciseDays: 28},
		Interpretation:  scores.InterpretationGood,
		Recommendations: []string{"keep going"},
	}
	back := NewBrainScore(res).Result()
	if back.CycleCompletion != res.CycleCompletion || back.VagusHealth != res.VagusHealth {
		t.Fatalf("components: %+v", back)
	}
	if back.Interpretation != res.Interpretation || len(back.Recommendations) != 1 {
		t.Fatalf("text: %+v", back)
	}
}

func TestSampleReadsBackInUTC(t *testing.T) {
	at := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		ts   time.Time
	}{
		{"utc", at},
		{"east of utc", at.In(time.FixedZone("UTC+10", 10*3600))},
		{"west of utc", at.In(time.FixedZone("UTC-5", -5*3600))},
	}
	for _, tc := range cases {
		got := Samples([]LRIScore{{Timestamp: tc.ts, LRI: 60}})[0].Timestamp
		if got.Location() != time.UTC {
			t.Fatalf("%s: location %v", tc.name, got.Location())
		}
		if got.Hour() != 22 || got.Format(time.DateOnly) != "2024-03-04" {
			t.Fatalf("%s: read back as %v", tc.name, got)
		}
	}
}
