package spectrum

import "math"

// floorDB is reported for bins with no energy.
const floorDB = -200

func power(c complex128, decibels bool) float64 {
	p := real(c)*real(c) + imag(c)*imag(c)
	if !decibels {
		return p
	}
	if p <= 0 {
		return floorDB
	}
	return max(floorDB, 10*math.Log10(p))
}
