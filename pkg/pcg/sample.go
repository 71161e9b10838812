package pcg

import (
	"math"
	"math/bits"
	"unicode/utf8"
)

// Uint8n returns a uniform value in [low, high). Small integer types are
// widened to 32 bit samples and use an exact rejection zone.
func (s *Source) Uint8n(low, high uint8) uint8 {
	if low >= high {
		panic("pcg: empty range")
	}
	rng := uint32(high - low)
	zone := math.MaxUint32 - (math.MaxUint32-rng+1)%rng
	for {
		hi, lo := wmul32(s.Uint32(), rng)
		if lo <= zone {
			return low + uint8(hi)
		}
	}
}

// Uint32n returns a uniform value in [low, high).
func (s *Source) Uint32n(low, high uint32) uint32 {
	if low >= high {
		panic("pcg: empty range")
	}
	rng := high - low
	zone := rng<<bits.LeadingZeros32(rng) - 1
	for {
		hi, lo := wmul32(s.Uint32(), rng)
		if lo <= zone {
			return low + hi
		}
	}
}

// Uint64n returns a uniform value in [low, high).
func (s *Source) Uint64n(low, high uint64) uint64 {
	if low >= high {
		panic("pcg: empty range")
	}
	rng := high - low
	zone := rng<<bits.LeadingZeros64(rng) - 1
	for {
		hi, lo := bits.Mul64(s.Uint64(), rng)
		if lo <= zone {
			return low + hi
		}
	}
}

// index returns a uniform index in [0, bound).
func (s *Source) index(bound int) int {
	if uint64(bound) <= math.MaxUint32 {
		return int(s.Uint32n(0, uint32(bound)))
	}
	return int(s.Uint64n(0, uint64(bound)))
}

func wmul32(a, b uint32) (uint32, uint32) {
	m := uint64(a) * uint64(b)
	return uint32(m >> 32), uint32(m)
}

// runeIter walks a string rune by rune and reports the same size hint as a
// UTF-8 character iterator: at least a quarter of the remaining bytes
// (rounded up) and at most all of them.
type runeIter struct {
	s string
}

func (it *runeIter) sizeHint() (int, int) {
	n := len(it.s)
	return (n + 3) / 4, n
}

func (it *runeIter) next() (rune, bool) {
	if len(it.s) == 0 {
		return 0, false
	}
	r, size := utf8.DecodeRuneInString(it.s)
	it.s = it.s[size:]
	return r, true
}

func (it *runeIter) nth(n int) (rune, bool) {
	for ; n > 0; n-- {
		if _, ok := it.next(); !ok {
			return 0, false
		}
	}
	return it.next()
}

// ChooseRune picks one rune of str uniformly. The selection walks the string
// with reservoir sampling driven by the iterator size hint, so the number of
// samples drawn depends on the byte length of str. It returns false for an
// empty string.
func (s *Source) ChooseRune(str string) (rune, bool) {
	it := runeIter{s: str}
	lower, upper := it.sizeHint()
	if upper == lower {
		if lower == 0 {
			return 0, false
		}
		return it.nth(s.index(lower))
	}

	var (
		consumed int
		result   rune
		found    bool
	)
	for {
		if lower > 1 {
			ix := s.index(lower + consumed)
			skip := lower
			if ix < lower {
				result, found = it.nth(ix)
				skip = lower - (ix + 1)
			}
			if upper == lower {
				return result, found
			}
			consumed += lower
			if skip > 0 {
				it.nth(skip - 1)
			}
		} else {
			r, ok := it.next()
			if !ok {
				return result, found
			}
			consumed++
			if s.index(consumed) == 0 {
				result, found = r, true
			}
		}
		lower, upper = it.sizeHint()
	}
}
