package ranking

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Explorer adjusts a score-sorted list. It returns a new slice and must not
// modify its input.
type Explorer interface {
	Explore(sorted []ScoredItem) []ScoredItem
}

// NoExplore leaves rankings untouched.
type NoExplore struct{}

func (NoExplore) Explore(sorted []ScoredItem) []ScoredItem {
	out := make([]ScoredItem, len(sorted))
	copy(out, sorted)
	return out
}

// EpsilonGreedy, with probability Epsilon per call, picks one item
// uniformly from the lower half of the ranking and adds Boost to its score.
type EpsilonGreedy struct {
	Epsilon float64
	Boost   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEpsilonGreedy creates an explorer. A nil rng is seeded from the clock.
func NewEpsilonGreedy(epsilon, boost float64, rng *rand.Rand) *EpsilonGreedy {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &EpsilonGreedy{Epsilon: epsilon, Boost: boost, rng: rng}
}

func (g *EpsilonGreedy) Explore(sorted []ScoredItem) []ScoredItem {
	out := make([]ScoredItem, len(sorted))
	copy(out, sorted)
	if len(out) == 0 || g.Epsilon <= 0 {
		return out
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	var pick int
	if roll < g.Epsilon {
		// For a single item the lower half is the whole list.
		lower := len(out) / 2
		pick = lower + g.rng.IntN(len(out)-lower)
	}
	g.mu.Unlock()

	if roll >= g.Epsilon {
		return out
	}
	out[pick].Score += g.Boost
	out[pick].Explored = true
	return out
}
