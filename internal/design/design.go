// Package design generates initial sample sets on the unit cube.
package design

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Kind selects the initial design.
type Kind int

const (
	LatinHypercube Kind = iota
	Uniform
)

func (k Kind) String() string {
	switch k {
	case LatinHypercube:
		return "lhs"
	case Uniform:
		return "uniform"
	}
	return fmt.Sprintf("design(%d)", int(k))
}

// ParseKind maps "lhs" or "uniform" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lhs", "latin", "latin_hypercube":
		return LatinHypercube, nil
	case "uniform", "random", "mc":
		return Uniform, nil
	}
	return 0, fmt.Errorf("unknown initial design %q", s)
}

// Generate draws n points in [0,1]^d with the given design.
func Generate(kind Kind, n, d int, rng *rand.Rand) ([][]float64, error) {
	if n < 0 || d < 1 {
		return nil, fmt.Errorf("design: invalid size n=%d d=%d", n, d)
	}
	switch kind {
	case LatinHypercube:
		return LatinHypercubeSample(n, d, rng), nil
	case Uniform:
		return UniformSample(n, d, rng), nil
	}
	return nil, fmt.Errorf("design: unknown kind %d", int(kind))
}

// LatinHypercubeSample places exactly one of n points in each of the n
// equal strata of every axis. Each axis uses an independent permutation.
func LatinHypercubeSample(n, d int, rng *rand.Rand) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, d)
	}
	for j := 0; j < d; j++ {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			points[i][j] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}
	return points
}

// UniformSample draws n independent uniform points.
func UniformSample(n, d int, rng *rand.Rand) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, d)
		for j := range p {
			p[j] = rng.Float64()
		}
		points[i] = p
	}
	return points
}
