// Package pcg implements the 128-bit state PCG generator with the XSL RR
// output function (Lcg128Xsl64, known as Pcg64) together with the seeding
// and sampling procedures needed to reproduce a reference random stream.
//
// Two sources seeded with the same value produce the same sequence of
// samples as long as the same sampling methods are called in the same order.
package pcg

import "math/bits"

// 0x2360ED051FC65DA44385DF649FCCF645
const (
	multiplierHi = 0x2360ED051FC65DA4
	multiplierLo = 0x4385DF649FCCF645
)

// Source is a Lcg128Xsl64 generator. It is not safe for concurrent use.
type Source struct {
	stateHi, stateLo uint64
	incHi, incLo     uint64
}

// New creates a source from a 128 bit state and increment.
// The increment is forced to be odd.
func New(stateHi, stateLo, incHi, incLo uint64) *Source {
	s := &Source{
		stateHi: stateHi,
		stateLo: stateLo,
		incHi:   incHi,
		incLo:   incLo | 1,
	}
	s.stateHi, s.stateLo = add128(s.stateHi, s.stateLo, s.incHi, s.incLo)
	s.step()
	return s
}

// FromSeed creates a source from 32 bytes of seed material, read as four
// little endian words: state low, state high, increment low, increment high.
func FromSeed(seed [32]byte) *Source {
	var w [4]uint64
	for i := range w {
		for j := 7; j >= 0; j-- {
			w[i] = w[i]<<8 | uint64(seed[i*8+j])
		}
	}
	return New(w[1], w[0], w[3], w[2])
}

// Seed creates a source from a single 64 bit value. The seed material is
// expanded with a PCG32 stream, four bytes at a time.
func Seed(seed uint64) *Source {
	const (
		mul = 6364136223846793005
		inc = 11634580027462260723
	)
	var material [32]byte
	state := seed
	for i := 0; i < len(material); i += 4 {
		state = state*mul + inc
		xorshifted := uint32(((state >> 18) ^ state) >> 27)
		x := bits.RotateLeft32(xorshifted, -int(state>>59))
		material[i] = byte(x)
		material[i+1] = byte(x >> 8)
		material[i+2] = byte(x >> 16)
		material[i+3] = byte(x >> 24)
	}
	return FromSeed(material)
}

func (s *Source) step() {
	hi, lo := mul128(s.stateHi, s.stateLo, multiplierHi, multiplierLo)
	s.stateHi, s.stateLo = add128(hi, lo, s.incHi, s.incLo)
}

// Uint64 advances the generator and returns the next output.
func (s *Source) Uint64() uint64 {
	s.step()
	rot := int(s.stateHi >> 58)
	return bits.RotateLeft64(s.stateHi^s.stateLo, -rot)
}

// Uint32 returns the low 32 bits of the next output.
func (s *Source) Uint32() uint32 {
	return uint32(s.Uint64())
}

func mul128(aHi, aLo, bHi, bLo uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(aLo, bLo)
	hi += aHi*bLo + aLo*bHi
	return hi, lo
}

func add128(aHi, aLo, bHi, bLo uint64) (uint64, uint64) {
	lo, carry := bits.Add64(aLo, bLo, 0)
	hi, _ := bits.Add64(aHi, bHi, carry)
	return hi, lo
}
