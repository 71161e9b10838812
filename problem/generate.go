// Package problem generates the task batch of a run from a seed.
package problem

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/skj-judge/skj-judge/pkg/pcg"
	"github.com/skj-judge/skj-judge/types"
)

// ErrTooManyTasks is returned when more tasks are requested than kinds exist
var ErrTooManyTasks = errors.New("problem: more tasks requested than task kinds exist")

// Generate draws count tasks of distinct kinds from a generator seeded with
// seed. The same seed and count always yield the same batch.
func Generate(seed uint64, count int) ([]types.Task, error) {
	if count > types.KindCount {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTasks, count, types.KindCount)
	}
	if count < 0 {
		return nil, fmt.Errorf("problem: negative task count %d", count)
	}

	rng := pcg.Seed(seed)

	kinds := make([]types.Kind, 0, count)
	for range count {
		k := types.Kind(rng.Uint8n(0, types.KindCount))
		for slices.Contains(kinds, k) {
			k = types.Kind(rng.Uint8n(0, types.KindCount))
		}
		kinds = append(kinds, k)
	}

	tasks := make([]types.Task, 0, count)
	for _, k := range kinds {
		tasks = append(tasks, generate(rng, k))
	}
	return tasks, nil
}

func generate(rng *pcg.Source, k types.Kind) types.Task {
	switch k {
	case types.KindGCD:
		amount := rng.Uint8n(2, 6)
		t := &types.GCD{Numbers: make([]uint64, 0, amount)}
		for range amount {
			n := natural(rng)
			t.Result = GCD(t.Result, n)
			t.Numbers = append(t.Numbers, n)
		}
		return t

	case types.KindSUM:
		t := &types.SUM{}
		for i := range t.Numbers {
			t.Numbers[i] = natural(rng)
			t.Result += t.Numbers[i]
		}
		return t

	case types.KindXK:
		x := natural(rng)
		power := rng.Uint8n(1, 6)
		return &types.XK{X: x, Power: power, Result: Root(x, power)}

	case types.KindStringDeletion:
		target := strconv.FormatUint(natural(rng), 10)
		del, _ := rng.ChooseRune(target)
		return &types.StringDeletion{
			Target: target,
			Del:    del,
			Result: types.DeleteRune(target, del),
		}

	case types.KindStringConcat:
		target := strconv.FormatUint(natural(rng), 10)
		return &types.StringConcat{Target: target, Result: target + target}
	}
	panic("problem: unknown task kind " + k.String())
}

func natural(rng *pcg.Source) uint64 {
	return rng.Uint64n(types.NumMin, types.NumMax)
}
