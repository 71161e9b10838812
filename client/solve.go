package client

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/skj-judge/skj-judge/types"
)

// Solve computes the answer of t from the operands received on the wire.
// Only the parameters a student reads in the assignment (the XK power and
// the SD character) are taken from t.
func Solve(t types.Task, given []string) (string, error) {
	switch t := t.(type) {
	case *types.GCD:
		n, err := parseAll(given)
		if err != nil {
			return "", err
		}
		var g uint64
		for _, v := range n {
			g = gcd(g, v)
		}
		return strconv.FormatUint(g, 10), nil

	case *types.SUM:
		n, err := parseAll(given)
		if err != nil {
			return "", err
		}
		var s uint64
		for _, v := range n {
			s += v
		}
		return strconv.FormatUint(s, 10), nil

	case *types.XK:
		n, err := parseAll(given)
		if err != nil {
			return "", err
		}
		if len(n) != 1 {
			return "", fmt.Errorf("XK expects 1 operand, got %d", len(n))
		}
		return strconv.FormatUint(root(n[0], t.Power), 10), nil

	case *types.StringDeletion:
		if len(given) != 1 {
			return "", fmt.Errorf("SD expects 1 operand, got %d", len(given))
		}
		return strings.Map(func(r rune) rune {
			if r == t.Del {
				return -1
			}
			return r
		}, given[0]), nil

	case *types.StringConcat:
		if len(given) != 1 {
			return "", fmt.Errorf("SC expects 1 operand, got %d", len(given))
		}
		return strings.Repeat(given[0], 2), nil

	default:
		return "", fmt.Errorf("unknown task %T", t)
	}
}

func parseAll(given []string) ([]uint64, error) {
	rt := make([]uint64, 0, len(given))
	for _, s := range given {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad operand: %w", err)
		}
		rt = append(rt, v)
	}
	return rt, nil
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// root returns the largest k >= 1 with k^p <= x by binary search
func root(x uint64, p uint8) uint64 {
	lo, hi := uint64(1), x
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if fits(mid, p, x) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// fits reports k^p <= x without overflowing
func fits(k uint64, p uint8, x uint64) bool {
	v := uint64(1)
	for i := uint8(0); i < p; i++ {
		hi, lo := bits.Mul64(v, k)
		if hi != 0 || lo > x {
			return false
		}
		v = lo
	}
	return true
}
