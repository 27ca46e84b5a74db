package review

import (
	"math/rand/v2"
	"sync"
)

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

var _ Shuffler = (*rand.Rand)(nil)

type randomShuffler struct{}

func (randomShuffler) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// NewRandomShuffler returns a uniform shuffler backed by the runtime-seeded global source.
func NewRandomShuffler() Shuffler { return randomShuffler{} }

type seededShuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *seededShuffler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(n, swap)
}

// NewSeededShuffler returns a deterministic shuffler: the same seed yields the same permutations.
func NewSeededShuffler(seed uint64) Shuffler {
	return &seededShuffler{rnd: rand.New(rand.NewPCG(seed, seed))}
}
