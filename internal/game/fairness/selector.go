package fairness

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrInvariant means the selector was handed something other than exactly
// three pots. It is not recoverable for the round.
var ErrInvariant = errors.New("fairness: invariant violation")

// Weights are the nominal win weights per category.
type Weights map[Category]float64

func DefaultWeights() Weights {
	return Weights{Low: 0.4, Medium: 0.4, High: 0.2}
}

// Selection is the outcome of one draw.
type Selection struct {
	Pot      int
	Category Category
	// pot index per category for this round
	Pots map[Category]int
	// categories that were under quota before the draw
	Eligible []Category
}

type Selector struct {
	weights Weights
	rnd     *rand.Rand
}

func NewSelector(w Weights, seed int64) *Selector {
	return &Selector{weights: w, rnd: rand.New(rand.NewSource(seed))}
}

// Categorize ranks pots by ascending total: smallest is Low, largest High.
// Ties keep pot index order.
func Categorize(potTotals map[int]int64) (map[Category]int, error) {
	if len(potTotals) != len(Categories) {
		return nil, fmt.Errorf("%w: expected %d pots, got %d", ErrInvariant, len(Categories), len(potTotals))
	}
	pots := make([]int, 0, len(potTotals))
	for p := range potTotals {
		pots = append(pots, p)
	}
	sort.Slice(pots, func(i, j int) bool {
		if potTotals[pots[i]] != potTotals[pots[j]] {
			return potTotals[pots[i]] < potTotals[pots[j]]
		}
		return pots[i] < pots[j]
	})
	out := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		out[c] = pots[i]
	}
	return out, nil
}

// MaxAllowed is the per-category quota inside a window of the given size.
func (s *Selector) MaxAllowed(window int) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = int(math.Round(s.weights[c] * float64(window)))
	}
	return out
}

// Eligible returns the categories still under quota, or all of them when
// every quota is used up.
func (s *Selector) Eligible(h *History) []Category {
	counts := h.Counts()
	quota := s.MaxAllowed(h.Size())
	out := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if counts[c] < quota[c] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, Categories...)
	}
	return out
}

// Select picks the winning pot and records the winning category in h.
func (s *Selector) Select(potTotals map[int]int64, h *History) (Selection, error) {
	pots, err := Categorize(potTotals)
	if err != nil {
		return Selection{}, err
	}
	eligible := s.Eligible(h)
	cat := s.draw(eligible)
	h.Append(cat)
	return Selection{
		Pot:      pots[cat],
		Category: cat,
		Pots:     pots,
		Eligible: eligible,
	}, nil
}

// draw walks the eligible list subtracting weights from a uniform value in
// [0, sum of eligible weights).
func (s *Selector) draw(eligible []Category) Category {
	var sum float64
	for _, c := range eligible {
		sum += s.weights[c]
	}
	r := s.rnd.Float64() * sum
	for _, c := range eligible {
		r -= s.weights[c]
		if r <= 0 {
			return c
		}
	}
	return eligible[len(eligible)-1]
}
