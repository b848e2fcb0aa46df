package signal

// CountStrength maps a counter onto [0,1]: 0 at or below min, 1 at or
// above max, linear in between.
func CountStrength(count, min, max int) float64 {
	switch {
	case count >= max:
		return 1
	case count <= min:
		return 0
	}
	return float64(count-min) / float64(max-min)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
