// Package eeg holds the Muse channel and band layout, the per-channel ring
// buffers and Welch band-power estimation.
package eeg

import (
	"fmt"
	"time"
)

// Channel identifies one of the four headband electrodes.
type Channel int

const (
	TP9 Channel = iota // left ear
	AF7                // left forehead
	AF8                // right forehead
	TP10               // right ear
)

// NumChannels is the number of electrodes on the headband.
const NumChannels = 4

// Channels lists the electrodes in wire order.
var Channels = [NumChannels]Channel{TP9, AF7, AF8, TP10}

func (c Channel) String() string {
	switch c {
	case TP9:
		return "tp9"
	case AF7:
		return "af7"
	case AF8:
		return "af8"
	case TP10:
		return "tp10"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Frontal reports whether the electrode sits on the forehead.
func (c Channel) Frontal() bool { return c == AF7 || c == AF8 }

// Band is a canonical EEG frequency band.
type Band int

const (
	Delta Band = iota
	Theta
	Alpha
	Beta
	Gamma
)

// NumBands is the number of canonical bands.
const NumBands = 5

var Bands = [NumBands]Band{Delta, Theta, Alpha, Beta, Gamma}

func (b Band) String() string {
	switch b {
	case Delta:
		return "delta"
	case Theta:
		return "theta"
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Gamma:
		return "gamma"
	}
	return fmt.Sprintf("band(%d)", int(b))
}

// Range returns the half-open frequency interval [lo, hi) in Hz.
func (b Band) Range() (lo, hi float64) {
	switch b {
	case Delta:
		return 0.5, 4
	case Theta:
		return 4, 8
	case Alpha:
		return 8, 13
	case Beta:
		return 13, 30
	case Gamma:
		return 30, 50
	}
	return 0, 0
}

// Column is the feature name of a band on a channel, e.g. "alpha_af7".
func Column(b Band, c Channel) string {
	return b.String() + "_" + c.String()
}

// BandColumns returns every raw band-power column name, band-major.
func BandColumns() []string {
	cols := make([]string, 0, NumBands*NumChannels)
	for _, b := range Bands {
		for _, c := range Channels {
			cols = append(cols, Column(b, c))
		}
	}
	return cols
}

// HSIColumns returns the per-channel horseshoe signal quality column names.
func HSIColumns() []string {
	cols := make([]string, 0, NumChannels)
	for _, c := range Channels {
		cols = append(cols, "hsi_"+c.String())
	}
	return cols
}

// Sample is one four-channel voltage reading.
type Sample struct {
	Timestamp time.Time
	Values    [NumChannels]float64
	Aux       float64
}
