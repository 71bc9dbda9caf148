package arena

import (
	"fmt"
	"math/rand"

	"agon/internal/model"
)

// crossoverFunc recombines two parent gene sets into a child. Parents are
// never modified.
type crossoverFunc func(rng *rand.Rand, a, b []float64) []float64

func newCrossover(method model.CrossoverMethod) (crossoverFunc, error) {
	switch method {
	case model.CrossoverUniform:
		return uniformCrossover, nil
	case model.CrossoverOnePoint:
		return onePointCrossover, nil
	case model.CrossoverTwoPoint:
		return twoPointCrossover, nil
	default:
		return nil, fmt.Errorf("unsupported crossover method: %q", method)
	}
}

func uniformCrossover(rng *rand.Rand, a, b []float64) []float64 {
	child := make([]float64, len(a))
	for i := range child {
		if rng.Float64() < 0.5 {
			child[i] = a[i]
		} else {
			child[i] = b[i]
		}
	}
	return child
}

func onePointCrossover(rng *rand.Rand, a, b []float64) []float64 {
	child := make([]float64, len(a))
	cut := rng.Intn(len(a))
	copy(child[:cut], a[:cut])
	copy(child[cut:], b[cut:])
	return child
}

func twoPointCrossover(rng *rand.Rand, a, b []float64) []float64 {
	child := make([]float64, len(a))
	lo := rng.Intn(len(a))
	hi := rng.Intn(len(a))
	if lo > hi {
		lo, hi = hi, lo
	}
	copy(child[:lo], a[:lo])
	copy(child[lo:hi], b[lo:hi])
	copy(child[hi:], a[hi:])
	return child
}
