package territory

// Stats summarizes the territories held by one player.
type Stats struct {
	TotalOwned      int `json:"totalOwned"`
	TotalStrength   int `json:"totalStrength"`
	AverageStrength int `json:"averageStrength"`
	Endangered      int `json:"endangered"`
	Contested       int `json:"contested"`
}

// Summarize computes Stats over owned. Neutral records are ignored.
func Summarize(owned []*Territory) Stats {
	var s Stats
	for _, t := range owned {
		if t.IsNeutral() {
			continue
		}
		s.TotalOwned++
		s.TotalStrength += t.Strength
		if t.Strength < WeakThreshold {
			s.Endangered++
		}
		if t.IsContested {
			s.Contested++
		}
	}
	if s.TotalOwned > 0 {
		s.AverageStrength = s.TotalStrength / s.TotalOwned
	}
	return s
}

// DangerLevel rates an owned tile from 1 (safe) to 5. Neutral tiles are 0.
func (t *Territory) DangerLevel() int {
	switch {
	case t.IsNeutral():
		return 0
	case t.Strength >= 80:
		return 1
	case t.Strength >= 60:
		return 2
	case t.Strength >= 40:
		return 3
	case t.Strength >= 20:
		return 4
	default:
		return 5
	}
}

// Endangered filters owned tiles below WeakThreshold.
func Endangered(owned []*Territory) []*Territory {
	var out []*Territory
	for _, t := range owned {
		if t.IsWeak() {
			out = append(out, t)
		}
	}
	return out
}
