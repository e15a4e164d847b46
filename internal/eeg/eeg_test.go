package eeg

import (
	"math"
	"testing"
	"time"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	r := NewRingBuffer(3)
	for i := 1; i <= 5; i++ {
		r.Push(float64(i))
	}
	if !r.Full() || r.Len() != 3 {
		t.Fatalf("expected full buffer of 3, got len %d", r.Len())
	}
	got := r.Snapshot()
	want := []float64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestRingBufferPartial(t *testing.T) {
	r := NewRingBuffer(4)
	r.Push(1)
	r.Push(2)
	if r.Full() {
		t.Fatalf("buffer should not be full")
	}
	if got := r.Snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestChannelBuffersCapacity(t *testing.T) {
	cb := NewChannelBuffers(2.0, 256)
	if cb.Cap() != 512 {
		t.Fatalf("capacity: got %d want 512", cb.Cap())
	}
	for i := 0; i < 256; i++ {
		cb.Push(Sample{Values: [NumChannels]float64{1, 2, 3, 4}})
	}
	if math.Abs(cb.Fill()-0.5) > 1e-12 {
		t.Fatalf("fill: got %.3f want 0.5", cb.Fill())
	}
	arrays := cb.Arrays()
	if arrays[TP10][0] != 4 {
		t.Fatalf("channel order broken: %v", arrays[TP10][0])
	}
}

func sine(freq, amp, fs float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func TestBandPowersPeakInAlpha(t *testing.T) {
	const fs = 256.0
	powers := BandPowers(sine(10, 10, fs, 512), fs)

	for _, b := range Bands {
		if b == Alpha {
			continue
		}
		if powers[b] >= powers[Alpha] {
			t.Fatalf("%s power %.4f not below alpha %.4f", b, powers[b], powers[Alpha])
		}
	}
}

func TestBandPowersBetaAndTheta(t *testing.T) {
	const fs = 256.0
	sig := sine(20, 5, fs, 512)
	theta := sine(6, 3, fs, 512)
	for i := range sig {
		sig[i] += theta[i]
	}
	powers := BandPowers(sig, fs)
	if powers[Beta] <= powers[Delta] || powers[Theta] <= powers[Delta] {
		t.Fatalf("expected beta and theta above delta: %+v", powers)
	}
	if powers[Gamma] >= powers[Beta] {
		t.Fatalf("expected gamma below beta: %+v", powers)
	}
}

func TestWelchParseval(t *testing.T) {
	// White-ish constant-variance signal: integrated PSD approximates variance.
	const fs = 256.0
	sig := sine(32, 2, fs, 1024)
	freqs, psd := Welch(sig, fs, 256)
	if len(freqs) != 129 || len(psd) != 129 {
		t.Fatalf("unexpected bin count %d", len(freqs))
	}
	df := freqs[1] - freqs[0]
	var total float64
	for _, p := range psd {
		total += p * df
	}
	// Variance of a sine of amplitude 2 is 2.
	if math.Abs(total-2) > 0.2 {
		t.Fatalf("integrated psd %.3f, want about 2", total)
	}
}

func TestWelchEmpty(t *testing.T) {
	if f, p := Welch(nil, 256, 256); f != nil || p != nil {
		t.Fatalf("expected nil outputs for empty signal")
	}
}

func TestSnapshotAverages(t *testing.T) {
	var per [NumChannels][NumBands]float64
	for c := range per {
		for b := range per[c] {
			per[c][b] = float64(c + 1)
		}
	}
	s := NewSnapshot(time.Unix(0, 0), per)
	if s.Average[Alpha] != 2.5 {
		t.Fatalf("average: got %v want 2.5", s.Average[Alpha])
	}
	flat := s.Flat()
	if flat["tp10_gamma"] != 4 || flat["alpha"] != 2.5 {
		t.Fatalf("unexpected flat fields: %v", flat)
	}
	if len(flat) != 25 {
		t.Fatalf("flat field count: got %d want 25", len(flat))
	}
}

func TestColumns(t *testing.T) {
	cols := BandColumns()
	if len(cols) != 20 || cols[0] != "delta_tp9" || cols[19] != "gamma_tp10" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	if Column(Theta, AF8) != "theta_af8" {
		t.Fatalf("column naming broken")
	}
}
