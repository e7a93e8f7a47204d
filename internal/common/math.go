package common

// Abs returns the absolute value of an integer
func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Min returns the minimum of two integers
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max returns the maximum of two integers
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Clamp bounds v to the inclusive range [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ArgMax returns the index of the largest value in vs, or -1 for an empty
// slice. Ties resolve to the first occurrence.
func ArgMax(vs []float64) int {
	if len(vs) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(vs); i++ {
		if vs[i] > vs[best] {
			best = i
		}
	}
	return best
}
