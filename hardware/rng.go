package hardware

import "math/rand"

// RNG wraps a deterministic rand.Rand so simulations are reproducible from
// a seed.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates a new RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// Exp returns an exponentially distributed duration with the given mean.
func (r *RNG) Exp(mean float64) float64 {
	return r.r.ExpFloat64() * mean
}

// Intn returns a random int in [0, n).
func (r *RNG) Intn(n int) int {
	return r.r.Intn(n)
}
