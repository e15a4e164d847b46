// Package features derives the per-window feature vector from band powers.
package features

import (
	"sort"
	"strings"

	"github.com/mahidalhan/axon/internal/eeg"
)

// Epsilon keeps ratio denominators away from zero.
const Epsilon = 1e-6

const (
	FrontalThetaAvg   = "frontal_theta_avg"
	PosteriorAlphaAvg = "posterior_alpha_avg"
	HSIMean           = "hsi_mean"
)

// ThetaBetaRatio is the derived column name for a channel's theta/beta ratio.
func ThetaBetaRatio(c eeg.Channel) string { return "theta_beta_ratio_" + c.String() }

// BetaAlphaRatio is the derived column name for a channel's beta/alpha ratio.
func BetaAlphaRatio(c eeg.Channel) string { return "beta_alpha_ratio_" + c.String() }

// DerivedColumns lists every derived feature name in table order.
func DerivedColumns() []string {
	cols := make([]string, 0, 2*eeg.NumChannels+2)
	for _, c := range eeg.Channels {
		cols = append(cols, ThetaBetaRatio(c))
	}
	for _, c := range eeg.Channels {
		cols = append(cols, BetaAlphaRatio(c))
	}
	return append(cols, FrontalThetaAvg, PosteriorAlphaAvg)
}

// Vector maps feature names to values. Absent features read as zero.
type Vector map[string]float64

// Get returns the named feature or zero.
func (v Vector) Get(name string) float64 { return v[name] }

// BandAverage is the mean of a band across all four channels.
func (v Vector) BandAverage(b eeg.Band) float64 {
	var sum float64
	for _, c := range eeg.Channels {
		sum += v[eeg.Column(b, c)]
	}
	return sum / eeg.NumChannels
}

// FrontalAverage is the mean of a band over AF7 and AF8.
func (v Vector) FrontalAverage(b eeg.Band) float64 {
	return (v[eeg.Column(b, eeg.AF7)] + v[eeg.Column(b, eeg.AF8)]) / 2
}

// Names returns the feature names in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FromRows reduces a window of per-sample rows into one vector: the mean of
// every raw band-power column present, the per-channel theta/beta and
// beta/alpha ratios of those means, the frontal theta and posterior alpha
// averages, and the mean horseshoe signal quality when HSI columns exist.
func FromRows(rows []map[string]float64) Vector {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rows {
		for k, val := range row {
			sums[k] += val
			counts[k]++
		}
	}
	means := make(map[string]float64, len(sums))
	for k, s := range sums {
		means[k] = s / float64(counts[k])
	}

	v := make(Vector)
	for _, col := range eeg.BandColumns() {
		if m, ok := means[col]; ok {
			v[col] = m
		}
	}
	addDerived(v, means)

	var hsiSum float64
	var hsiCount int
	for k, m := range means {
		if strings.HasPrefix(k, "hsi_") {
			hsiSum += m
			hsiCount++
		}
	}
	if hsiCount > 0 {
		v[HSIMean] = hsiSum / float64(hsiCount)
	}
	return v
}

// FromSnapshot converts a real-time band-power snapshot into a vector.
func FromSnapshot(s eeg.BandPowerSnapshot) Vector {
	v := make(Vector, eeg.NumBands*eeg.NumChannels+2*eeg.NumChannels+2)
	for _, b := range eeg.Bands {
		for _, c := range eeg.Channels {
			v[eeg.Column(b, c)] = s.Power(c, b)
		}
	}
	addDerived(v, v)
	return v
}

func addDerived(dst Vector, means map[string]float64) {
	for _, c := range eeg.Channels {
		theta, hasTheta := means[eeg.Column(eeg.Theta, c)]
		beta, hasBeta := means[eeg.Column(eeg.Beta, c)]
		alpha, hasAlpha := means[eeg.Column(eeg.Alpha, c)]
		if hasTheta && hasBeta {
			dst[ThetaBetaRatio(c)] = theta / (beta + Epsilon)
		}
		if hasBeta && hasAlpha {
			dst[BetaAlphaRatio(c)] = beta / (alpha + Epsilon)
		}
	}
	if m, ok := meanOf(means, eeg.Column(eeg.Theta, eeg.AF7), eeg.Column(eeg.Theta, eeg.AF8)); ok {
		dst[FrontalThetaAvg] = m
	}
	if m, ok := meanOf(means, eeg.Column(eeg.Alpha, eeg.TP9), eeg.Column(eeg.Alpha, eeg.TP10)); ok {
		dst[PosteriorAlphaAvg] = m
	}
}

func meanOf(means map[string]float64, cols ...string) (float64, bool) {
	var sum float64
	var n int
	for _, c := range cols {
		if m, ok := means[c]; ok {
			sum += m
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
