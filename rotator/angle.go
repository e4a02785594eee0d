package rotator

import "math"

// Normalize maps angle into the canonical [-180, 180] range.
func Normalize(angle float64) float64 {
	return math.Remainder(angle, 360)
}

// ShortestError returns the signed rotation from current to target along the
// shorter path, in [-180, 180]. A non-finite difference has no direction
// and yields 0.
func ShortestError(target, current float64) float64 {
	e := math.Remainder(target-current, 360)
	if math.IsNaN(e) {
		return 0
	}
	return e
}

func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
