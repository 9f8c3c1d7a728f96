// Package price models per-fork token prices after a contentious split.
//
// Natural chain splits are common and must not move price, so the oracle
// gates divergence behind a sustained-fork latch: only once the combined
// depth past the common ancestor reaches min_fork_depth do the forks start
// trading at different prices. The latch is monotone: a fork that was ever
// sustained stays sustained.
//
// Once sustained, each fork's price combines three factor scores (chainwork
// share, economic share, hashrate share), each mapped through 0.8 + 0.4*w so
// a fork holding 50% of a factor scores exactly 1.0, and the combination is
// clamped to base_price * (1 ± max_divergence).
package price

import (
	"fmt"
	"math"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// Oracle owns the per-fork price map. The map is guarded by a lock so the
// export surface stays safe even if a host reads snapshots from another
// goroutine; all mutation still has to come through one scheduler.
type Oracle struct {
	mu  sync.RWMutex
	cfg forksim.PriceRules

	order     []inter.Fork
	prices    map[inter.Fork]float64
	sustained bool
	forkDepth int64

	history []inter.PricePoint
}

// New creates a price oracle for the given forks. The coefficient-sum
// invariant is checked here as well as in Rules.Validate, because a price
// oracle constructed with broken coefficients would silently misprice every
// tick after.
func New(cfg forksim.PriceRules, forks []inter.Fork) (*Oracle, error) {
	sum := cfg.ChainCoefficient + cfg.EconomicCoefficient + cfg.HashrateCoefficient
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("price coefficients sum to %v, want 1.0", sum)
	}
	if len(forks) == 0 {
		return nil, fmt.Errorf("price oracle needs at least one fork")
	}
	o := &Oracle{
		cfg:    cfg,
		order:  append([]inter.Fork(nil), forks...),
		prices: make(map[inter.Fork]float64, len(forks)),
	}
	for _, f := range forks {
		o.prices[f] = cfg.BasePrice
	}
	return o, nil
}

// UpdateFromState recomputes every fork's price from current chain state and
// agent allocations and returns the new prices.
//
// Inputs:
//   - heights: per-fork best height
//   - chainWeights: per-fork chainwork share in [0,1] (the chain-weight
//     factor is overridable by passing any weighting here)
//   - economicPcts, hashratePcts: per-fork allocation percentages [0,100]
//   - ancestor: the common ancestor height of the split
func (o *Oracle) UpdateFromState(
	t inter.SimTime,
	heights map[inter.Fork]idx.Block,
	chainWeights map[inter.Fork]float64,
	economicPcts map[inter.Fork]float64,
	hashratePcts map[inter.Fork]float64,
	ancestor idx.Block,
) map[inter.Fork]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	depth := int64(0)
	for _, f := range o.order {
		depth += int64(heights[f]) - int64(ancestor)
	}
	o.forkDepth = depth
	if !o.sustained && depth >= o.cfg.MinForkDepth {
		// One-way latch: from here on the forks price independently.
		o.sustained = true
	}

	out := make(map[inter.Fork]float64, len(o.order))
	for _, f := range o.order {
		chainW := clamp01(chainWeights[f])
		econW := clamp01(economicPcts[f] / 100)
		hashW := clamp01(hashratePcts[f] / 100)

		value := o.cfg.BasePrice
		if o.sustained {
			combined := o.cfg.ChainCoefficient*factorScore(chainW) +
				o.cfg.EconomicCoefficient*factorScore(econW) +
				o.cfg.HashrateCoefficient*factorScore(hashW)
			value = o.cfg.BasePrice * combined
			lo := o.cfg.BasePrice * (1 - o.cfg.MaxDivergence)
			hi := o.cfg.BasePrice * (1 + o.cfg.MaxDivergence)
			value = math.Min(math.Max(value, lo), hi)
		}

		o.prices[f] = value
		out[f] = value
		o.history = append(o.history, inter.PricePoint{
			Time:           t,
			Fork:           f,
			Value:          value,
			Sustained:      o.sustained,
			ChainWeight:    chainW,
			EconomicWeight: econW,
			HashrateWeight: hashW,
		})
	}
	return out
}

// factorScore maps a share in [0,1] to the 0.8..1.2 multiplier band.
func factorScore(w float64) float64 { return 0.8 + 0.4*w }

func clamp01(v float64) float64 { return math.Min(math.Max(v, 0), 1) }

// Price returns fork f's current price, 0.0 for unknown forks.
func (o *Oracle) Price(f inter.Fork) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.prices[f]
}

// Prices returns a copy of the current price map.
func (o *Oracle) Prices() map[inter.Fork]float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[inter.Fork]float64, len(o.prices))
	for f, p := range o.prices {
		out[f] = p
	}
	return out
}

// PriceRatio returns first-registered fork price over second. With fewer
// than two forks, or a zero denominator, it returns 1.0 as the neutral
// default.
func (o *Oracle) PriceRatio() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.order) < 2 {
		return 1.0
	}
	denom := o.prices[o.order[1]]
	if denom == 0 {
		return 1.0
	}
	return o.prices[o.order[0]] / denom
}

// Sustained reports whether the split has latched as sustained.
func (o *Oracle) Sustained() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sustained
}

// ForkDepth returns the last computed combined depth past the ancestor.
func (o *Oracle) ForkDepth() int64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.forkDepth
}

// Snapshot is the oracle's exportable view.
type Snapshot struct {
	Config    forksim.PriceRules `json:"config"`
	Prices    map[string]float64 `json:"prices"`
	Sustained bool               `json:"sustained"`
	ForkDepth int64              `json:"fork_depth"`
	History   []inter.PricePoint `json:"history"`
}

// Snapshot exports config, current prices keyed by fork name, the latch
// state and the full observation history.
func (o *Oracle) Snapshot(names inter.ForkSet) Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := Snapshot{
		Config:    o.cfg,
		Prices:    make(map[string]float64, len(o.prices)),
		Sustained: o.sustained,
		ForkDepth: o.forkDepth,
		History:   o.history,
	}
	for f, p := range o.prices {
		snap.Prices[names.Name(f)] = p
	}
	return snap
}
