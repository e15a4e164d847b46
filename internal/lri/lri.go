// Package lri computes the Learning Readiness Index of a single window of
// band-power features.
//
// Alertness = w1·N(beta_avg) + w2·(100 − N(theta_avg/(beta_avg+ε))) + w3·(100 − N(alpha_avg))
// Focus     = w1·N(frontal_theta) + w2·N(frontal_alpha) + w3·N(frontal_gamma)
// Arousal   = 100·exp(−½·((beta_avg/(alpha_avg+ε) − r*)/σ)²)
// LRI       = clip((0.4·Alertness + 0.4·Focus + 0.2·Arousal) × multiplier, 0, 100)
//
// N is Normalize with the per-term bounds of the scoring profile. Missing
// features read as zero power.
package lri

import (
	"math"
	"time"

	"github.com/mahidalhan/axon/internal/eeg"
	"github.com/mahidalhan/axon/internal/features"
	"github.com/mahidalhan/axon/internal/scoring"
)

// Status is the categorical readiness level.
type Status string

const (
	StatusOptimal  Status = "optimal"
	StatusModerate Status = "moderate"
	StatusLow      Status = "low"
)

// DefaultPostExerciseMultiplier is the boost callers apply to samples known
// to fall inside a post-exercise window.
const DefaultPostExerciseMultiplier = 1.3

// Result is the LRI of one window. Every score is within [0, 100].
type Result struct {
	LRI                    float64 `json:"lri"`
	BaseLRI                float64 `json:"base_lri"`
	Alertness              float64 `json:"alertness"`
	Focus                  float64 `json:"focus"`
	ArousalBalance         float64 `json:"arousal_balance"`
	Status                 Status  `json:"status"`
	PostExerciseMultiplier float64 `json:"post_exercise_multiplier"`
}

// Sample is an LRI result pinned to a point in time, the unit consumed by the
// daily and 28-day aggregates.
type Sample struct {
	Timestamp time.Time
	Result
}

// Normalize maps v from [lo, hi] onto [0, 100], clamping outside the range.
func Normalize(v, lo, hi float64) float64 {
	return clip(100*(v-lo)/(hi-lo), 0, 100)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Calculator scores feature vectors against one LRI profile. It holds no
// mutable state and is safe for concurrent use.
type Calculator struct {
	profile scoring.LRIProfile
}

// NewCalculator returns a calculator bound to the given constants.
func NewCalculator(profile scoring.LRIProfile) *Calculator {
	return &Calculator{profile: profile}
}

// Default uses the reference constants.
func Default() *Calculator {
	return NewCalculator(scoring.Default().LRI)
}

// StatusFor classifies an LRI value.
func (c *Calculator) StatusFor(lri float64) Status {
	switch {
	case lri >= c.profile.OptimalThreshold:
		return StatusOptimal
	case lri >= c.profile.ModerateThreshold:
		return StatusModerate
	default:
		return StatusLow
	}
}

// OptimalThreshold is the LRI at or above which a window counts as optimal.
func (c *Calculator) OptimalThreshold() float64 { return c.profile.OptimalThreshold }

// ModerateThreshold is the lower bound of the moderate band.
func (c *Calculator) ModerateThreshold() float64 { return c.profile.ModerateThreshold }

func (c *Calculator) Alertness(v features.Vector) float64 {
	p := c.profile.Alertness
	beta := v.BandAverage(eeg.Beta)
	theta := v.BandAverage(eeg.Theta)
	alpha := v.BandAverage(eeg.Alpha)

	betaScore := Normalize(beta, p.Beta.Min, p.Beta.Max)
	thetaBetaScore := 100 - Normalize(theta/(beta+c.profile.Epsilon), p.ThetaBeta.Min, p.ThetaBeta.Max)
	alphaSuppression := 100 - Normalize(alpha, p.Alpha.Min, p.Alpha.Max)

	return clip(p.BetaWeight*betaScore+p.ThetaBetaWeight*thetaBetaScore+p.AlphaWeight*alphaSuppression, 0, 100)
}

func (c *Calculator) Focus(v features.Vector) float64 {
	p := c.profile.Focus
	theta := Normalize(v.FrontalAverage(eeg.Theta), p.Theta.Min, p.Theta.Max)
	alpha := Normalize(v.FrontalAverage(eeg.Alpha), p.Alpha.Min, p.Alpha.Max)
	gamma := Normalize(v.FrontalAverage(eeg.Gamma), p.Gamma.Min, p.Gamma.Max)

	return clip(p.ThetaWeight*theta+p.AlphaWeight*alpha+p.GammaWeight*gamma, 0, 100)
}

// ArousalBalance scores the beta/alpha ratio on an inverted U: deviation in
// either direction from the optimum lowers the score symmetrically.
func (c *Calculator) ArousalBalance(v features.Vector) float64 {
	p := c.profile.Arousal
	ratio := v.BandAverage(eeg.Beta) / (v.BandAverage(eeg.Alpha) + c.profile.Epsilon)
	z := (ratio - p.OptimalRatio) / p.Width
	return clip(100*math.Exp(-0.5*z*z), 0, 100)
}

// Calculate scores a feature vector. A multiplier of zero is treated as 1.
func (c *Calculator) Calculate(v features.Vector, postExerciseMultiplier float64) Result {
	if postExerciseMultiplier == 0 {
		postExerciseMultiplier = 1
	}
	alertness := c.Alertness(v)
	focus := c.Focus(v)
	arousal := c.ArousalBalance(v)

	base := c.profile.AlertnessWeight*alertness + c.profile.FocusWeight*focus + c.profile.ArousalWeight*arousal
	score := clip(base*postExerciseMultiplier, 0, 100)

	return Result{
		LRI:                    score,
		BaseLRI:                clip(base, 0, 100),
		Alertness:              alertness,
		Focus:                  focus,
		ArousalBalance:         arousal,
		Status:                 c.StatusFor(score),
		PostExerciseMultiplier: postExerciseMultiplier,
	}
}
