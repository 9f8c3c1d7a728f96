package price

import (
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

func testRules() forksim.PriceRules {
	return forksim.PriceRules{
		BasePrice:           60000,
		MinForkDepth:        6,
		MaxDivergence:       0.80,
		ChainCoefficient:    0.30,
		EconomicCoefficient: 0.50,
		HashrateCoefficient: 0.20,
	}
}

var testForks = []inter.Fork{inter.ForkV27, inter.ForkV26}

func newTestOracle(t *testing.T) *Oracle {
	t.Helper()
	o, err := New(testRules(), testForks)
	require.NoError(t, err)
	return o
}

// update feeds the oracle a single observation with symmetric shorthand
// inputs.
func update(o *Oracle, t inter.SimTime, h27, h26 idx.Block, chain27, econ27, hash27 float64) map[inter.Fork]float64 {
	return o.UpdateFromState(t,
		map[inter.Fork]idx.Block{inter.ForkV27: h27, inter.ForkV26: h26},
		map[inter.Fork]float64{inter.ForkV27: chain27, inter.ForkV26: 1 - chain27},
		map[inter.Fork]float64{inter.ForkV27: econ27, inter.ForkV26: 100 - econ27},
		map[inter.Fork]float64{inter.ForkV27: hash27, inter.ForkV26: 100 - hash27},
		100,
	)
}

// TestNew_rejectsBrokenCoefficients double-checks the construction-time
// coefficient guard.
func TestNew_rejectsBrokenCoefficients(t *testing.T) {
	cfg := testRules()
	cfg.ChainCoefficient = 0.4
	if _, err := New(cfg, testForks); err == nil {
		t.Fatal("coefficients summing to 1.1 accepted")
	}
	if _, err := New(testRules(), nil); err == nil {
		t.Fatal("empty fork list accepted")
	}
}

// TestShallowSplitHoldsBasePrice: a split three blocks deep is below the
// sustained threshold, so both forks keep trading at the base price no
// matter how lopsided the allocations are.
func TestShallowSplitHoldsBasePrice(t *testing.T) {
	o := newTestOracle(t)

	// Heights 102 and 101 over ancestor 100: combined depth 3.
	prices := update(o, 10, 102, 101, 0.9, 90, 90)

	require.False(t, o.Sustained())
	require.Equal(t, int64(3), o.ForkDepth())
	require.Equal(t, 60000.0, prices[inter.ForkV27])
	require.Equal(t, 60000.0, prices[inter.ForkV26])
	require.Equal(t, 1.0, o.PriceRatio())
}

// TestSustainedLatch verifies the latch fires at min_fork_depth and never
// releases, even if the reported depth later shrinks.
func TestSustainedLatch(t *testing.T) {
	o := newTestOracle(t)

	update(o, 10, 103, 102, 0.5, 50, 50)
	require.False(t, o.Sustained())

	// Depth 6 reached: latch fires.
	update(o, 20, 104, 102, 0.5, 50, 50)
	require.True(t, o.Sustained())

	// Depth reported back at zero: latch holds.
	update(o, 30, 100, 100, 0.5, 50, 50)
	require.True(t, o.Sustained())
}

// TestBalancedSplitPricesAtBase: at exactly 50% of every factor both forks
// score 1.0 and trade at the base price even once sustained.
func TestBalancedSplitPricesAtBase(t *testing.T) {
	o := newTestOracle(t)
	prices := update(o, 10, 104, 102, 0.5, 50, 50)

	require.True(t, o.Sustained())
	require.InDelta(t, 60000.0, prices[inter.ForkV27], 1e-6)
	require.InDelta(t, 60000.0, prices[inter.ForkV26], 1e-6)
}

// TestSustainedDivergence checks the factor math on a lopsided sustained
// split.
func TestSustainedDivergence(t *testing.T) {
	o := newTestOracle(t)

	// v27 holds 70% of chainwork, 80% of economic weight, 60% of hashrate.
	prices := update(o, 10, 106, 102, 0.7, 80, 60)
	require.True(t, o.Sustained())

	// score27 = 0.3*(0.8+0.4*0.7) + 0.5*(0.8+0.4*0.8) + 0.2*(0.8+0.4*0.6)
	score27 := 0.3*1.08 + 0.5*1.12 + 0.2*1.04
	score26 := 0.3*0.92 + 0.5*0.88 + 0.2*0.96
	require.InDelta(t, 60000*score27, prices[inter.ForkV27], 1e-6)
	require.InDelta(t, 60000*score26, prices[inter.ForkV26], 1e-6)
	require.Greater(t, prices[inter.ForkV27], prices[inter.ForkV26])
	require.InDelta(t, score27/score26, o.PriceRatio(), 1e-9)
}

// TestDivergenceClamp pins prices inside base * (1 ± max_divergence).
func TestDivergenceClamp(t *testing.T) {
	cfg := testRules()
	cfg.MaxDivergence = 0.10
	o, err := New(cfg, testForks)
	require.NoError(t, err)

	// Total domination: raw score 1.2 vs 0.8, clamped to ±10%.
	prices := update(o, 10, 110, 100, 1.0, 100, 100)
	require.InDelta(t, 66000.0, prices[inter.ForkV27], 1e-6)
	require.InDelta(t, 54000.0, prices[inter.ForkV26], 1e-6)
}

// TestPriceAccessors covers unknown forks and the neutral ratio default.
func TestPriceAccessors(t *testing.T) {
	o := newTestOracle(t)
	require.Equal(t, 60000.0, o.Price(inter.ForkV27))
	require.Equal(t, 0.0, o.Price(inter.Fork(9)))

	single, err := New(testRules(), []inter.Fork{inter.ForkV27})
	require.NoError(t, err)
	require.Equal(t, 1.0, single.PriceRatio())
}

// TestHistoryAppends verifies every update appends one point per fork.
func TestHistoryAppends(t *testing.T) {
	o := newTestOracle(t)
	update(o, 10, 101, 101, 0.5, 50, 50)
	update(o, 20, 102, 102, 0.5, 50, 50)

	snap := o.Snapshot(inter.DefaultForkSet())
	require.Len(t, snap.History, 4)
	require.Equal(t, inter.SimTime(10), snap.History[0].Time)
	require.Contains(t, snap.Prices, "v27")
	require.Contains(t, snap.Prices, "v26")
}
