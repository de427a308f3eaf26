package stats

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidPopulation = errors.New("population size must be positive")
	ErrRankOutOfRange    = errors.New("rank out of range")
)

// RankRangeError reports a rank that does not fit the population it is scored against
type RankRangeError struct {
	Rank       int
	Population int
}

func (e *RankRangeError) Error() string {
	return fmt.Sprintf("rank %d outside [1,%d]", e.Rank, e.Population)
}

func (e *RankRangeError) Unwrap() error {
	return ErrRankOutOfRange
}

// Mean returns the arithmetic mean, or 0 when there is no data yet.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation (divide by N), or 0 for empty input.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// InRange reports whether rank is a valid position within a population of n.
func InRange(rank, n int) bool {
	return rank >= 1 && rank <= n
}

// ValidateRanks checks every rank lies in [1, population].
func ValidateRanks(ranks []int, population int) error {
	if population <= 0 {
		return ErrInvalidPopulation
	}
	for _, r := range ranks {
		if !InRange(r, population) {
			return &RankRangeError{Rank: r, Population: population}
		}
	}
	return nil
}

// StatusScore sums N-r+1 over the ranks and divides by N(N+1)/2. N ranks
// all equal to 1 score 1, and N ranks all equal to N score 2/(N+1).
// Empty input scores 0. Ranks outside [1,N] are rejected.
func StatusScore(ranks []int, population int) (float64, error) {
	if len(ranks) == 0 {
		return 0, nil
	}
	if err := ValidateRanks(ranks, population); err != nil {
		return 0, err
	}

	n := float64(population)
	maxWeight := n * (n + 1) / 2

	var sum float64
	for _, r := range ranks {
		sum += n - float64(r) + 1
	}
	return sum / maxWeight, nil
}

// TopN counts ranks at or above position n (rank <= n).
func TopN(ranks []int, n int) int {
	count := 0
	for _, r := range ranks {
		if r <= n {
			count++
		}
	}
	return count
}

// Floats converts a rank series for the float primitives.
func Floats(ranks []int) []float64 {
	out := make([]float64, len(ranks))
	for i, r := range ranks {
		out[i] = float64(r)
	}
	return out
}
