package eeg

import (
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxSegmentLength caps the Welch segment length.
const MaxSegmentLength = 256

// Welch estimates the one-sided power spectral density of signal using
// averaged, Hann-windowed periodograms with 50% overlap and per-segment mean
// removal. It returns the bin frequencies in Hz and the density per bin.
func Welch(signal []float64, fs float64, nperseg int) (freqs, psd []float64) {
	n := len(signal)
	if n == 0 || fs <= 0 {
		return nil, nil
	}
	if nperseg <= 0 || nperseg > n {
		nperseg = n
	}
	step := nperseg - nperseg/2

	win := make([]float64, nperseg)
	for i := range win {
		win[i] = 1
	}
	// Hann is undefined for fewer than two points; keep rectangular there.
	if nperseg > 2 {
		win = window.Hann(win)
	}
	scale := 1 / (fs * floats.Dot(win, win))

	fft := fourier.NewFFT(nperseg)
	bins := nperseg/2 + 1
	freqs = make([]float64, bins)
	for i := range freqs {
		freqs[i] = fft.Freq(i) * fs
	}
	psd = make([]float64, bins)

	seg := make([]float64, nperseg)
	var coeffs []complex128
	segments := 0
	for start := 0; start+nperseg <= n; start += step {
		copy(seg, signal[start:start+nperseg])
		mean := stat.Mean(seg, nil)
		for i := range seg {
			seg[i] = (seg[i] - mean) * win[i]
		}
		coeffs = fft.Coefficients(coeffs, seg)
		for i, c := range coeffs {
			a := cmplx.Abs(c)
			psd[i] += a * a * scale
		}
		segments++
	}
	if segments == 0 {
		return freqs, psd
	}

	for i := range psd {
		psd[i] /= float64(segments)
		// Fold negative frequencies into the one-sided estimate; DC and an
		// even-length Nyquist bin have no mirror.
		if i != 0 && !(nperseg%2 == 0 && i == bins-1) {
			psd[i] *= 2
		}
	}
	return freqs, psd
}

// BandPowers averages the Welch estimate of one channel over each canonical
// band. Bands without any frequency bin report zero.
func BandPowers(signal []float64, fs float64) [NumBands]float64 {
	var out [NumBands]float64
	nperseg := len(signal)
	if nperseg > MaxSegmentLength {
		nperseg = MaxSegmentLength
	}
	freqs, psd := Welch(signal, fs, nperseg)
	for _, b := range Bands {
		lo, hi := b.Range()
		var sum float64
		var count int
		for i, f := range freqs {
			if f >= lo && f < hi {
				sum += psd[i]
				count++
			}
		}
		if count > 0 {
			out[b] = sum / float64(count)
		}
	}
	return out
}

// BandPowerSnapshot is the band power of every channel at one instant plus the
// cross-channel average per band. It is immutable once built.
type BandPowerSnapshot struct {
	Timestamp  time.Time
	PerChannel [NumChannels][NumBands]float64
	Average    [NumBands]float64
}

// NewSnapshot derives the cross-channel averages from per-channel powers.
func NewSnapshot(ts time.Time, perChannel [NumChannels][NumBands]float64) BandPowerSnapshot {
	s := BandPowerSnapshot{Timestamp: ts, PerChannel: perChannel}
	for _, b := range Bands {
		var sum float64
		for _, c := range Channels {
			sum += perChannel[c][b]
		}
		s.Average[b] = sum / NumChannels
	}
	return s
}

// ComputeSnapshot runs the estimator over every channel buffer.
func ComputeSnapshot(ts time.Time, channels [NumChannels][]float64, fs float64) BandPowerSnapshot {
	var per [NumChannels][NumBands]float64
	for i, ch := range channels {
		per[i] = BandPowers(ch, fs)
	}
	return NewSnapshot(ts, per)
}

// Power returns the power of band b on channel c.
func (s BandPowerSnapshot) Power(c Channel, b Band) float64 {
	return s.PerChannel[c][b]
}

// Flat renders the snapshot as the flat field set served to clients:
// "delta".."gamma" averages and "<channel>_<band>" per-channel values.
func (s BandPowerSnapshot) Flat() map[string]float64 {
	out := make(map[string]float64, NumBands*(NumChannels+1))
	for _, b := range Bands {
		out[b.String()] = s.Average[b]
		for _, c := range Channels {
			out[c.String()+"_"+b.String()] = s.PerChannel[c][b]
		}
	}
	return out
}
