// Package util contains misc internal utilities.
package util

// Arange returns evenly spaced samples i*step for i in [0, n],
// inclusive of both endpoints.  e.g., Arange(0.5, 4) => [0 0.5 1 1.5 2]
func Arange(step float64, n int) []float64 {
	out := make([]float64, n+1)
	for i := range out {
		out[i] = float64(i) * step
	}
	return out
}

// Reverse returns a copy of s with the element order flipped.
// The input is not modified.
func Reverse(s []float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// Limiter holds a min/max pair and can check if a value is within it
type Limiter struct {
	// Min is the lower bound
	Min float64

	// Max is the upper bound
	Max float64
}

// Check returns true if Min <= v <= Max.  The zero value of Limiter
// admits only zero.
func (l Limiter) Check(v float64) bool {
	return v >= l.Min && v <= l.Max
}
