package scores

// SleepStages is one night of sleep-stage data from a wearable.
type SleepStages struct {
	DeepPct      float64 `json:"deep_sleep_pct" yaml:"deep_sleep_pct"`
	REMPct       float64 `json:"rem_sleep_pct" yaml:"rem_sleep_pct"`
	Efficiency   float64 `json:"efficiency" yaml:"efficiency"`
	TotalMinutes float64 `json:"total_sleep_min" yaml:"total_sleep_min"`
}

type SleepComponents struct {
	SWSQuality float64 `json:"sws_quality"`
	REMQuality float64 `json:"rem_quality"`
	Efficiency float64 `json:"efficiency"`
	Duration   float64 `json:"duration"`
}

type SleepResult struct {
	Score      float64         `json:"sleep_score"`
	Components SleepComponents `json:"components"`
}

// SleepScore is the consolidation score of one night:
// 0.4·deep + 0.3·REM + 0.2·efficiency + 0.1·duration, every component in [0, 100].
func SleepScore(s SleepStages) SleepResult {
	deep := clip(deepScore(s.DeepPct), 0, 100)
	rem := clip(remScore(s.REMPct), 0, 100)
	eff := clip(efficiencyScore(s.Efficiency), 0, 100)
	dur := clip(durationScore(s.TotalMinutes), 0, 100)

	return SleepResult{
		Score: round1(0.4*deep + 0.3*rem + 0.2*eff + 0.1*dur),
		Components: SleepComponents{
			SWSQuality: round1(deep),
			REMQuality: round1(rem),
			Efficiency: round1(eff),
			Duration:   round1(dur),
		},
	}
}

// Optimal deep sleep is 20-25% of the night.
func deepScore(pct float64) float64 {
	switch {
	case pct >= 20 && pct <= 25:
		return 100
	case pct >= 15:
		return 70 + (pct-15)*6
	case pct >= 10:
		return 40 + (pct-10)*6
	default:
		return pct * 4
	}
}

// Optimal REM is 18-25%.
func remScore(pct float64) float64 {
	switch {
	case pct >= 18 && pct <= 25:
		return 100
	case pct >= 12:
		return 60 + (pct-12)*6.67
	default:
		return pct * 5
	}
}

func efficiencyScore(eff float64) float64 {
	switch {
	case eff >= 85:
		return 100
	case eff >= 70:
		return 50 + (eff-70)*3.33
	default:
		return eff * 0.71
	}
}

// Optimal duration is 7-9 hours; oversleeping costs half a point per minute.
func durationScore(minutes float64) float64 {
	switch {
	case minutes >= 420 && minutes <= 540:
		return 100
	case minutes > 540:
		return 100 - (minutes-540)*0.5
	case minutes >= 360:
		return 60 + (minutes-360)*0.67
	default:
		return minutes * 0.17
	}
}
