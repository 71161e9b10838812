package problem

import (
	"math"
	"math/bits"
)

// GCD returns the greatest common divisor of a and b, GCD(0, n) = n
func GCD(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Root returns the largest k >= 1 such that k^power <= x, the value reached by
// counting k up from 1 while (k+1)^power <= x. Counting would take up to x
// steps for power 1, so it starts from a floating point estimate and settles
// on the exact answer with the same comparison.
func Root(x uint64, power uint8) uint64 {
	if power == 0 {
		panic("problem: zero power")
	}
	k := uint64(math.Pow(float64(x), 1/float64(power)))
	if k < 1 {
		k = 1
	}
	for k > 1 && !powLE(k, power, x) {
		k--
	}
	for powLE(k+1, power, x) {
		k++
	}
	return k
}

// powLE reports whether k^power <= x without overflowing
func powLE(k uint64, power uint8, x uint64) bool {
	p := uint64(1)
	for range power {
		hi, lo := bits.Mul64(p, k)
		if hi != 0 || lo > x {
			return false
		}
		p = lo
	}
	return true
}
