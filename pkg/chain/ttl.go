package chain

import (
	"math"
	"time"
)

// TTLPolicy decides how long a view lives in each layer of the chain.
type TTLPolicy interface {
	// TTL returns the lifetime for the layer at index out of count layers.
	TTL(index, count int, base time.Duration) time.Duration
}

// UniformTTL uses base for every layer.
type UniformTTL struct{}

func (UniformTTL) TTL(_, _ int, base time.Duration) time.Duration {
	return base
}

// DecayingTTL shortens the lifetime of the faster layers. With Factor 0.5
// and three layers, L1 keeps a view for base/4, L2 for base/2 and L3 for
// base, so a missed invalidation heals soonest where reads land first.
type DecayingTTL struct {
	Factor float64
}

func (d DecayingTTL) TTL(index, count int, base time.Duration) time.Duration {
	if d.Factor <= 0 || d.Factor >= 1 || count <= 1 {
		return base
	}
	exponent := float64(count - 1 - index)
	if exponent < 0 {
		exponent = 0
	}
	return time.Duration(float64(base) * math.Pow(d.Factor, exponent))
}

// PerLayerTTL sets an explicit lifetime per layer, falling back to base.
type PerLayerTTL struct {
	TTLs []time.Duration
}

func (p PerLayerTTL) TTL(index, _ int, base time.Duration) time.Duration {
	if index < len(p.TTLs) && p.TTLs[index] > 0 {
		return p.TTLs[index]
	}
	return base
}
