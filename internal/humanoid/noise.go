// internal/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
)

// PinkNoise is a stochastic Voss-McCartney 1/f noise source. Consecutive samples are
// correlated, which gives pointer jitter the slow wander of a resting hand rather than
// white static.
type PinkNoise struct {
	rng     *rand.Rand
	sources []float64
	weights []float64 // cumulative update probability per source
	sum     float64
	scale   float64
}

// NewPinkNoise builds a generator with n octaves; n <= 0 selects 12.
func NewPinkNoise(rng *rand.Rand, n int) *PinkNoise {
	if n <= 0 {
		n = 12
	}
	p := &PinkNoise{
		rng:     rng,
		sources: make([]float64, n),
		weights: make([]float64, n),
		scale:   1 / math.Sqrt(float64(n)),
	}

	// Octave i changes with probability proportional to 2^-i.
	total := 0.0
	for i := range p.weights {
		total += math.Pow(2, -float64(i))
	}
	acc := 0.0
	for i := range p.weights {
		acc += math.Pow(2, -float64(i)) / total
		p.weights[i] = acc
	}
	p.weights[n-1] = 1

	for i := range p.sources {
		p.sources[i] = p.white()
		p.sum += p.sources[i]
	}
	return p
}

func (p *PinkNoise) white() float64 {
	return p.rng.Float64()*2 - 1
}

// Next returns the next sample, roughly within [-sqrt(n), sqrt(n)] before scaling
// and within [-1, 1] for most draws after it.
func (p *PinkNoise) Next() float64 {
	r := p.rng.Float64()
	idx := len(p.weights) - 1
	for i, w := range p.weights {
		if r < w {
			idx = i
			break
		}
	}
	next := p.white()
	p.sum += next - p.sources[idx]
	p.sources[idx] = next
	return p.sum * p.scale
}
