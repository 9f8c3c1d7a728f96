package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-forksim/inter"
)

func newEconEngine(t *testing.T, prices stubPrices, nodes ...inter.EconomicNodeProfile) *EconomicEngine {
	t.Helper()
	e, err := NewEconomicEngine(testStrategyRules(), testForks, nodes, prices)
	require.NoError(t, err)
	return e
}

func econNode(id string, initial inter.Fork) inter.EconomicNodeProfile {
	return inter.EconomicNodeProfile{
		NodeID:      id,
		Type:        inter.NodeEconomic,
		Activity:    inter.ActivityMixed,
		InitialFork: initial,
	}
}

// TestEconomicEngine_rationalChoice: with no friction configured a node
// follows the higher price.
func TestEconomicEngine_rationalChoice(t *testing.T) {
	e := newEconEngine(t,
		stubPrices{inter.ForkV27: 50000, inter.ForkV26: 65000},
		econNode("exchange", inter.ForkV27),
	)

	switches := e.EvaluateAll(0)
	require.Len(t, switches, 1)
	require.Equal(t, inter.ForkV26, e.CurrentFork("exchange"))

	d := e.Decisions()[0]
	require.Equal(t, inter.ForkV26, d.RationalFork)
	require.True(t, d.Switched)
	require.InDelta(t, 0.3, d.PriceAdvantagePct, 1e-9)
}

// TestEconomicEngine_inertiaHold: the advantage must clear
// switching_threshold + inertia or the node stays put.
func TestEconomicEngine_inertiaHold(t *testing.T) {
	n := econNode("sticky", inter.ForkV27)
	n.SwitchingThreshold = 0.05
	n.Inertia = 0.03
	e := newEconEngine(t,
		stubPrices{inter.ForkV27: 60000, inter.ForkV26: 63000}, // 5% advantage
		n,
	)

	require.Empty(t, e.EvaluateAll(0))
	require.Equal(t, inter.ForkV27, e.CurrentFork("sticky"))

	d := e.Decisions()[0]
	require.True(t, d.InertiaHold)
	require.False(t, d.Switched)
	require.Equal(t, 0.0, d.PriceAdvantagePct)
	// The rational fork was V26; staying costs the difference.
	require.InDelta(t, 3000.0, d.OpportunityCostUSD, 1e-9)
}

// TestEconomicEngine_ideologyHolds: a committed node absorbs a bounded price
// disadvantage.
func TestEconomicEngine_ideologyHolds(t *testing.T) {
	n := econNode("believer", inter.ForkV26)
	n.ForkPreference = inter.ForkV26
	n.IdeologyStrength = 1.0
	n.MaxLossPct = 0.10
	e := newEconEngine(t,
		stubPrices{inter.ForkV27: 60000, inter.ForkV26: 57000}, // 5% behind
		n,
	)

	require.Empty(t, e.EvaluateAll(0))
	d := e.Decisions()[0]
	require.True(t, d.IdeologyOverride)
	require.Equal(t, inter.ForkV26, d.ChosenFork)

	// Past the tolerance the node is forced to the rational fork.
	n2 := econNode("fairweather", inter.ForkV26)
	n2.ForkPreference = inter.ForkV26
	n2.IdeologyStrength = 1.0
	n2.MaxLossPct = 0.10
	e2 := newEconEngine(t,
		stubPrices{inter.ForkV27: 60000, inter.ForkV26: 48000}, // 20% behind
		n2,
	)
	switches := e2.EvaluateAll(0)
	require.Len(t, switches, 1)
	require.True(t, e2.Decisions()[0].Forced)
}

// TestEconomicEngine_profileCooldownFallback: a profile cooldown overrides
// the engine default.
func TestEconomicEngine_profileCooldownFallback(t *testing.T) {
	fast := econNode("fast", inter.ForkV27)
	fast.SwitchingCooldown = 10
	slow := econNode("slow", inter.ForkV27) // falls back to 3600s

	e := newEconEngine(t, stubPrices{inter.ForkV27: 60000, inter.ForkV26: 60000}, fast, slow)
	e.EvaluateAll(0)
	require.Len(t, e.Decisions(), 2)

	e.EvaluateAll(10)
	require.Len(t, e.Decisions(), 3) // only "fast" re-evaluated

	e.EvaluateAll(3600)
	require.Len(t, e.Decisions(), 5)
}

// TestEconomicAllocation verifies weight aggregation and the custody
// fallback.
func TestEconomicAllocation(t *testing.T) {
	a := econNode("a", inter.ForkV27)
	a.ConsensusWeight = 30
	b := econNode("b", inter.ForkV26)
	b.CustodyBTC = 10 // no consensus weight: custody is the weight

	e := newEconEngine(t, stubPrices{}, a, b)
	alloc := e.EconomicAllocation()
	require.InDelta(t, 75.0, alloc[inter.ForkV27], 1e-9)
	require.InDelta(t, 25.0, alloc[inter.ForkV26], 1e-9)
}

// TestEconomicAllocation_zeroWeights returns zeros instead of dividing by
// zero.
func TestEconomicAllocation_zeroWeights(t *testing.T) {
	e := newEconEngine(t, stubPrices{}, econNode("weightless", inter.ForkV27))
	alloc := e.EconomicAllocation()
	require.Equal(t, 0.0, alloc[inter.ForkV27])
	require.Equal(t, 0.0, alloc[inter.ForkV26])
}

// TestTransactionalWeights splits weight by transaction velocity into
// independent fee-generating and custodial totals.
func TestTransactionalWeights(t *testing.T) {
	hot := econNode("hot", inter.ForkV27)
	hot.ConsensusWeight = 40
	hot.TransactionVelocity = 1.0 // all transactional
	cold := econNode("cold", inter.ForkV26)
	cold.ConsensusWeight = 60
	cold.TransactionVelocity = 0.0 // all custodial

	e := newEconEngine(t, stubPrices{}, hot, cold)
	tw := e.TransactionalWeights()

	require.InDelta(t, 100.0, tw[inter.ForkV27].TransactionalPct, 1e-9)
	require.InDelta(t, 0.0, tw[inter.ForkV27].CustodialPct, 1e-9)
	require.InDelta(t, 0.0, tw[inter.ForkV26].TransactionalPct, 1e-9)
	require.InDelta(t, 100.0, tw[inter.ForkV26].CustodialPct, 1e-9)
}

// TestEconomicEngine_soloMiners covers MiningAllocation and MinersOn for
// nodes carrying hashrate.
func TestEconomicEngine_soloMiners(t *testing.T) {
	miner := econNode("solo", inter.ForkV26)
	miner.Type = inter.NodeUser
	miner.HashratePct = 2
	idle := econNode("idle", inter.ForkV26)

	e := newEconEngine(t, stubPrices{}, miner, idle)

	alloc := e.MiningAllocation()
	require.Equal(t, 2.0, alloc[inter.ForkV26])
	require.Equal(t, 0.0, alloc[inter.ForkV27])

	miners := e.MinersOn(inter.ForkV26)
	require.Len(t, miners, 1)
	require.Equal(t, "solo", miners[0].ID)
	require.Empty(t, e.MinersOn(inter.ForkV27))
}

// TestNewEconomicEngine_rejectsDuplicates.
func TestNewEconomicEngine_rejectsDuplicates(t *testing.T) {
	_, err := NewEconomicEngine(testStrategyRules(), testForks, []inter.EconomicNodeProfile{
		econNode("dup", inter.ForkV27),
		econNode("dup", inter.ForkV26),
	}, stubPrices{})
	require.Error(t, err)
}
