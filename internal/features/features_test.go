package features

import (
	"math"
	"testing"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
)

func TestFromRowsMeansAndRatios(t *testing.T) {
	rows := []map[string]float64{
		{"theta_af7": 1, "beta_af7": 2, "alpha_af7": 1, "theta_af8": 3, "alpha_tp9": 0.5, "hsi_tp9": 1},
		{"theta_af7": 3, "beta_af7": 2, "alpha_af7": 1, "theta_af8": 1, "alpha_tp9": 1.5, "hsi_tp9": 2},
	}
	v := FromRows(rows)

	if v["theta_af7"] != 2 {
		t.Fatalf("theta_af7 mean: got %v want 2", v["theta_af7"])
	}
	if got := v[ThetaBetaRatio(eeg.AF7)]; math.Abs(got-1) > 1e-5 {
		t.Fatalf("theta/beta af7: got %v want about 1", got)
	}
	if got := v[BetaAlphaRatio(eeg.AF7)]; math.Abs(got-2) > 1e-5 {
		t.Fatalf("beta/alpha af7: got %v want about 2", got)
	}
	if _, ok := v[ThetaBetaRatio(eeg.TP9)]; ok {
		t.Fatalf("ratio emitted for channel without theta and beta columns")
	}
	if v[FrontalThetaAvg] != 2 {
		t.Fatalf("frontal theta: got %v want 2", v[FrontalThetaAvg])
	}
	if v[PosteriorAlphaAvg] != 1 {
		t.Fatalf("posterior alpha uses present columns only: got %v want 1", v[PosteriorAlphaAvg])
	}
	if v[HSIMean] != 1.5 {
		t.Fatalf("hsi mean: got %v want 1.5", v[HSIMean])
	}
}

func TestRatioWithZeroDenominator(t *testing.T) {
	v := FromRows([]map[string]float64{{"theta_tp9": 1, "beta_tp9": 0}})
	got := v[ThetaBetaRatio(eeg.TP9)]
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("epsilon should keep ratio finite, got %v", got)
	}
}

func TestBandAverageMissingIsZero(t *testing.T) {
	v := Vector{"beta_tp9": 4}
	if got := v.BandAverage(eeg.Beta); got != 1 {
		t.Fatalf("band average: got %v want 1", got)
	}
	if got := v.FrontalAverage(eeg.Gamma); got != 0 {
		t.Fatalf("frontal gamma: got %v want 0", got)
	}
}

func TestFromSnapshot(t *testing.T) {
	var per [eeg.NumChannels][eeg.NumBands]float64
	for c := range per {
		per[c][eeg.Theta] = 1
		per[c][eeg.Beta] = 2
		per[c][eeg.Alpha] = 4
	}
	v := FromSnapshot(eeg.NewSnapshot(time.Now(), per))
	if len(v) != 30 {
		t.Fatalf("feature count: got %d want 30", len(v))
	}
	if got := v[BetaAlphaRatio(eeg.TP10)]; math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("beta/alpha: got %v", got)
	}
}

func TestDerivedColumns(t *testing.T) {
	cols := DerivedColumns()
	if len(cols) != 10 || cols[0] != "theta_beta_ratio_tp9" || cols[9] != PosteriorAlphaAvg {
		t.Fatalf("unexpected derived columns %v", cols)
	}
}
