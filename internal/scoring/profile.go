// Package scoring loads the tunable constants shared by the LRI, DNOS and
// Brain Score calculators.
package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Bounds is a normalization range mapped onto 0..100.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// AlertnessProfile weights beta power, the inverse theta/beta ratio and alpha suppression.
type AlertnessProfile struct {
	Beta            Bounds  `yaml:"beta"`
	ThetaBeta       Bounds  `yaml:"theta_beta"`
	Alpha           Bounds  `yaml:"alpha"`
	BetaWeight      float64 `yaml:"beta_weight"`
	ThetaBetaWeight float64 `yaml:"theta_beta_weight"`
	AlphaWeight     float64 `yaml:"alpha_weight"`
}

// FocusProfile weights the frontal (AF7/AF8) theta, alpha and gamma powers.
type FocusProfile struct {
	Theta       Bounds  `yaml:"theta"`
	Alpha       Bounds  `yaml:"alpha"`
	Gamma       Bounds  `yaml:"gamma"`
	ThetaWeight float64 `yaml:"theta_weight"`
	AlphaWeight float64 `yaml:"alpha_weight"`
	GammaWeight float64 `yaml:"gamma_weight"`
}

// ArousalProfile is the Gaussian centred on the optimal beta/alpha ratio.
type ArousalProfile struct {
	OptimalRatio float64 `yaml:"optimal_ratio"`
	Width        float64 `yaml:"width"`
}

type LRIProfile struct {
	Alertness         AlertnessProfile `yaml:"alertness"`
	Focus             FocusProfile     `yaml:"focus"`
	Arousal           ArousalProfile   `yaml:"arousal"`
	AlertnessWeight   float64          `yaml:"alertness_weight"`
	FocusWeight       float64          `yaml:"focus_weight"`
	ArousalWeight     float64          `yaml:"arousal_weight"`
	OptimalThreshold  float64          `yaml:"optimal_threshold"`
	ModerateThreshold float64          `yaml:"moderate_threshold"`
	Epsilon           float64          `yaml:"epsilon"`
}

type SessionProfile struct {
	AvgWeight     float64 `yaml:"avg_weight"`
	OptimalWeight float64 `yaml:"optimal_weight"`
	Excellent     float64 `yaml:"excellent"`
	VeryGood      float64 `yaml:"very_good"`
}

type DNOSProfile struct {
	ActiveStartHour   int     `yaml:"active_start_hour"`
	ActiveEndHour     int     `yaml:"active_end_hour"`
	WindowStartHours  float64 `yaml:"window_start_hours"`
	WindowEndHours    float64 `yaml:"window_end_hours"`
	HighLRI           float64 `yaml:"high_lri"`
	LRIWeight         float64 `yaml:"lri_weight"`
	UtilizationWeight float64 `yaml:"utilization_weight"`
	SleepWeight       float64 `yaml:"sleep_weight"`
	DefaultLRI        float64 `yaml:"default_lri"`
	DefaultSleep      float64 `yaml:"default_sleep"`
}

type BrainScoreProfile struct {
	WindowDays       int     `yaml:"window_days"`
	CycleWeight      float64 `yaml:"cycle_weight"`
	BaselineWeight   float64 `yaml:"baseline_weight"`
	TrendWeight      float64 `yaml:"trend_weight"`
	VagusWeight      float64 `yaml:"vagus_weight"`
	CycleMinutes     float64 `yaml:"cycle_minutes"`
	MinutesPerSample float64 `yaml:"minutes_per_sample"`
	CycleLRI         float64 `yaml:"cycle_lri"`
	CycleAvgLRI      float64 `yaml:"cycle_avg_lri"`
	CycleSleep       float64 `yaml:"cycle_sleep"`
	MorningHours     []int   `yaml:"morning_hours"`
	BaselineOffset   float64 `yaml:"baseline_offset"`
	BaselineGain     float64 `yaml:"baseline_gain"`
	TrendGain        float64 `yaml:"trend_gain"`
	VagusMorning     []int   `yaml:"vagus_morning_hours"`
	VagusAfternoon   []int   `yaml:"vagus_afternoon_hours"`
	VagusBoost       float64 `yaml:"vagus_boost"`
	VagusTargetDays  float64 `yaml:"vagus_target_days"`
}

// Profile holds every hand-tuned scoring constant. The defaults reproduce the
// published formulas exactly; a YAML file may override any subset of them.
type Profile struct {
	LRI        LRIProfile        `yaml:"lri"`
	Session    SessionProfile    `yaml:"session"`
	DNOS       DNOSProfile       `yaml:"dnos"`
	BrainScore BrainScoreProfile `yaml:"brain_score"`
}

// Default returns the reference scoring constants.
func Default() Profile {
	return Profile{
		LRI: LRIProfile{
			Alertness: AlertnessProfile{
				Beta:            Bounds{Min: 0.1, Max: 2.0},
				ThetaBeta:       Bounds{Min: 0.5, Max: 2.0},
				Alpha:           Bounds{Min: 0.2, Max: 1.5},
				BetaWeight:      0.4,
				ThetaBetaWeight: 0.3,
				AlphaWeight:     0.3,
			},
			Focus: FocusProfile{
				Theta:       Bounds{Min: 0.3, Max: 1.5},
				Alpha:       Bounds{Min: 0.2, Max: 1.2},
				Gamma:       Bounds{Min: 0.05, Max: 0.3},
				ThetaWeight: 0.5,
				AlphaWeight: 0.3,
				GammaWeight: 0.2,
			},
			Arousal:           ArousalProfile{OptimalRatio: 1.5, Width: 0.5},
			AlertnessWeight:   0.4,
			FocusWeight:       0.4,
			ArousalWeight:     0.2,
			OptimalThreshold:  70,
			ModerateThreshold: 40,
			Epsilon:           1e-6,
		},
		Session: SessionProfile{
			AvgWeight:     0.40,
			OptimalWeight: 0.30,
			Excellent:     85,
			VeryGood:      75,
		},
		DNOS: DNOSProfile{
			ActiveStartHour:   8,
			ActiveEndHour:     20,
			WindowStartHours:  1,
			WindowEndHours:    4,
			HighLRI:           60,
			LRIWeight:         0.50,
			UtilizationWeight: 0.30,
			SleepWeight:       0.20,
			DefaultLRI:        50,
			DefaultSleep:      50,
		},
		BrainScore: BrainScoreProfile{
			WindowDays:       28,
			CycleWeight:      0.35,
			BaselineWeight:   0.25,
			TrendWeight:      0.25,
			VagusWeight:      0.15,
			CycleMinutes:     60,
			MinutesPerSample: 0.5,
			CycleLRI:         70,
			CycleAvgLRI:      60,
			CycleSleep:       70,
			MorningHours:     []int{7, 8},
			BaselineOffset:   40,
			BaselineGain:     2.5,
			TrendGain:        30,
			VagusMorning:     []int{7, 8, 9},
			VagusAfternoon:   []int{14, 15, 16},
			VagusBoost:       15,
			VagusTargetDays:  22,
		},
	}
}

// LoadProfile reads a YAML profile on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadProfile(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read scoring profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal scoring profile YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

const weightTolerance = 1e-9

// Validate checks that every weight group sums to one and that every
// normalization range is non-empty.
func (p Profile) Validate() error {
	groups := map[string][]float64{
		"lri":       {p.LRI.AlertnessWeight, p.LRI.FocusWeight, p.LRI.ArousalWeight},
		"alertness": {p.LRI.Alertness.BetaWeight, p.LRI.Alertness.ThetaBetaWeight, p.LRI.Alertness.AlphaWeight},
		"focus":     {p.LRI.Focus.ThetaWeight, p.LRI.Focus.AlphaWeight, p.LRI.Focus.GammaWeight},
		"dnos":      {p.DNOS.LRIWeight, p.DNOS.UtilizationWeight, p.DNOS.SleepWeight},
		"brain_score": {
			p.BrainScore.CycleWeight, p.BrainScore.BaselineWeight,
			p.BrainScore.TrendWeight, p.BrainScore.VagusWeight,
		},
	}
	for name, weights := range groups {
		var sum float64
		for _, w := range weights {
			sum += w
		}
		if math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("scoring profile: %s weights sum to %.6f, want 1", name, sum)
		}
	}

	bounds := map[string]Bounds{
		"alertness.beta":       p.LRI.Alertness.Beta,
		"alertness.theta_beta": p.LRI.Alertness.ThetaBeta,
		"alertness.alpha":      p.LRI.Alertness.Alpha,
		"focus.theta":          p.LRI.Focus.Theta,
		"focus.alpha":          p.LRI.Focus.Alpha,
		"focus.gamma":          p.LRI.Focus.Gamma,
	}
	for name, b := range bounds {
		if !(b.Min < b.Max) {
			return fmt.Errorf("scoring profile: %s bounds [%v, %v] are empty", name, b.Min, b.Max)
		}
	}
	if p.LRI.Arousal.Width <= 0 {
		return fmt.Errorf("scoring profile: arousal width must be positive")
	}
	if p.BrainScore.WindowDays <= 0 {
		return fmt.Errorf("scoring profile: brain score window must be positive")
	}
	return nil
}
