package motion

import "math"

// Sample is a single 3-axis accelerometer reading, in g.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the sum of the absolute axis values. It is computed
// per sample and never stored; the detector compares it against the
// configured threshold.
func (s Sample) Magnitude() float64 {
	return math.Abs(s.X) + math.Abs(s.Y) + math.Abs(s.Z)
}
