package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-forksim/fee"
	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

var testForks = []inter.Fork{inter.ForkV27, inter.ForkV26}

// stubPrices is a mutable PriceSource.
type stubPrices map[inter.Fork]float64

func (s stubPrices) Price(f inter.Fork) float64 { return s[f] }

// stubProfits returns fixed per-block profits regardless of price and cost.
type stubProfits map[inter.Fork]float64

func (s stubProfits) MinerProfitability(f inter.Fork, subsidyBTC, priceUSD, costUSD float64) fee.Profitability {
	return fee.Profitability{Fork: f, ProfitUSD: s[f]}
}

func testStrategyRules() forksim.StrategyRules {
	return forksim.StrategyRules{
		PoolCooldown:         3600,
		NodeCooldown:         3600,
		AssumedHashrateSplit: 0.5,
		BlockSubsidyBTC:      3.125,
		MiningCostUSD:        150000,
	}
}

func newPoolEngine(t *testing.T, profits stubProfits, pools ...inter.PoolProfile) *PoolEngine {
	t.Helper()
	e, err := NewPoolEngine(testStrategyRules(), testForks, pools, stubPrices{}, profits)
	require.NoError(t, err)
	return e
}

// TestPoolEngine_rationalChoice: a neutral pool follows the higher profit.
func TestPoolEngine_rationalChoice(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 4000},
		inter.PoolProfile{PoolID: "p1", HashratePct: 50, InitialFork: inter.ForkV27},
	)

	switches := e.EvaluateAll(0)
	require.Len(t, switches, 1)
	require.Equal(t, Switch{AgentID: "p1", From: inter.ForkV27, To: inter.ForkV26, Time: 0}, switches[0])
	require.Equal(t, inter.ForkV26, e.CurrentFork("p1"))

	d := e.Decisions()
	require.Len(t, d, 1)
	require.Equal(t, inter.ForkV26, d[0].RationalFork)
	require.False(t, d[0].IdeologyOverride)
	require.False(t, d[0].Forced)
	require.Equal(t, 0.0, d[0].OpportunityCostUSD)
}

// TestPoolEngine_profitScaling verifies the assumed-split share math: a pool
// with 50% hashrate at an assumed 50/50 split expects the full per-block
// profit of a fork.
func TestPoolEngine_profitScaling(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 500},
		inter.PoolProfile{PoolID: "half", HashratePct: 50, InitialFork: inter.ForkV27},
		inter.PoolProfile{PoolID: "tenth", HashratePct: 10, InitialFork: inter.ForkV27},
	)
	e.EvaluateAll(0)

	d := e.Decisions()
	require.Len(t, d, 2)
	require.InDelta(t, 1000.0, d[0].ProfitUSD[inter.ForkV27], 1e-9)
	require.InDelta(t, 200.0, d[1].ProfitUSD[inter.ForkV27], 1e-9)
}

// TestPoolEngine_ideologyHolds: a committed pool absorbs a loss inside
// strength * max_loss_pct and stays on its preferred fork.
func TestPoolEngine_ideologyHolds(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 950},
		inter.PoolProfile{
			PoolID:           "loyal",
			HashratePct:      50,
			ForkPreference:   inter.ForkV26,
			IdeologyStrength: 1.0,
			MaxLossPct:       0.10,
			InitialFork:      inter.ForkV26,
		},
	)

	switches := e.EvaluateAll(0)
	require.Empty(t, switches)

	d := e.Decisions()[0]
	require.Equal(t, inter.ForkV27, d.RationalFork)
	require.Equal(t, inter.ForkV26, d.ChosenFork)
	require.True(t, d.IdeologyOverride)
	require.InDelta(t, 0.05, d.LossPct, 1e-9)
	require.InDelta(t, 50.0, d.OpportunityCostUSD, 1e-9)
}

// TestPoolEngine_zeroStrengthNeverHolds: ideology_strength 0 makes any
// positive loss untenable, so the preference is inert.
func TestPoolEngine_zeroStrengthNeverHolds(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 999},
		inter.PoolProfile{
			PoolID:           "pragmatic",
			HashratePct:      50,
			ForkPreference:   inter.ForkV26,
			IdeologyStrength: 0,
			MaxLossPct:       0.50,
			InitialFork:      inter.ForkV26,
		},
	)
	switches := e.EvaluateAll(0)
	require.Len(t, switches, 1)

	d := e.Decisions()[0]
	require.True(t, d.Forced)
	require.Equal(t, inter.ForkV27, d.ChosenFork)
}

// TestPoolEngine_maxLossUSDCap: the cumulative USD cap forces a loyal pool
// off its fork once exceeded.
func TestPoolEngine_maxLossUSDCap(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 900},
		inter.PoolProfile{
			PoolID:           "capped",
			HashratePct:      50,
			ForkPreference:   inter.ForkV26,
			IdeologyStrength: 1.0,
			MaxLossPct:       0.50,
			MaxLossUSD:       150,
			InitialFork:      inter.ForkV26,
		},
	)

	// First pass: projected loss 100 fits under the 150 cap, override holds
	// and the cumulative cost rises to 100.
	require.Empty(t, e.EvaluateAll(0))
	require.InDelta(t, 100.0, e.CumulativeOpportunityCost("capped"), 1e-9)

	// Second pass: 100 + 100 > 150, ideology is no longer affordable.
	switches := e.EvaluateAll(3600)
	require.Len(t, switches, 1)
	require.Equal(t, inter.ForkV27, e.CurrentFork("capped"))
	require.True(t, e.Decisions()[1].Forced)
}

// TestPoolEngine_cooldown gates re-evaluation; the first pass always runs.
func TestPoolEngine_cooldown(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 900},
		inter.PoolProfile{PoolID: "p1", HashratePct: 50, InitialFork: inter.ForkV27},
	)

	e.EvaluateAll(0)
	require.Len(t, e.Decisions(), 1)

	e.EvaluateAll(100) // inside the 3600s cooldown
	require.Len(t, e.Decisions(), 1)

	e.EvaluateAll(3600)
	require.Len(t, e.Decisions(), 2)
}

// TestPoolEngine_switchingFriction: moving off the current fork requires the
// advantage to clear the pool's profitability threshold.
func TestPoolEngine_switchingFriction(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 1010},
		inter.PoolProfile{
			PoolID:                 "sticky",
			HashratePct:            50,
			ProfitabilityThreshold: 0.05,
			InitialFork:            inter.ForkV27,
		},
	)

	// 1% advantage < 5% threshold: stay put, but book the opportunity cost.
	require.Empty(t, e.EvaluateAll(0))
	require.Equal(t, inter.ForkV27, e.CurrentFork("sticky"))
	require.InDelta(t, 10.0, e.Decisions()[0].OpportunityCostUSD, 1e-9)
}

// TestPoolEngine_allocationAndAgents covers MiningAllocation and AgentsOn.
func TestPoolEngine_allocationAndAgents(t *testing.T) {
	e := newPoolEngine(t,
		stubProfits{inter.ForkV27: 1000, inter.ForkV26: 1000},
		inter.PoolProfile{PoolID: "a", HashratePct: 70, InitialFork: inter.ForkV27},
		inter.PoolProfile{PoolID: "b", HashratePct: 30, InitialFork: inter.ForkV26},
	)

	alloc := e.MiningAllocation()
	require.Equal(t, 70.0, alloc[inter.ForkV27])
	require.Equal(t, 30.0, alloc[inter.ForkV26])

	agents := e.AgentsOn(inter.ForkV27)
	require.Len(t, agents, 1)
	require.Equal(t, WeightedAgent{ID: "a", Weight: 70}, agents[0])

	require.Equal(t, inter.ForkNone, e.CurrentFork("nobody"))
	require.Equal(t, 0.0, e.CumulativeOpportunityCost("nobody"))
}

// TestNewPoolEngine_rejectsDuplicates.
func TestNewPoolEngine_rejectsDuplicates(t *testing.T) {
	_, err := NewPoolEngine(testStrategyRules(), testForks, []inter.PoolProfile{
		{PoolID: "dup", HashratePct: 10, InitialFork: inter.ForkV27},
		{PoolID: "dup", HashratePct: 10, InitialFork: inter.ForkV26},
	}, stubPrices{}, stubProfits{})
	require.Error(t, err)

	_, err = NewPoolEngine(testStrategyRules(), nil, nil, stubPrices{}, stubProfits{})
	require.Error(t, err)
}
