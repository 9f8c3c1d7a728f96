// Package integration provides ready-made agent rosters and rule presets for
// assembling a simulation without writing a scenario file. Presets bundle
// pool and node profiles into named profiles (tier-one, mainnet, economy) so
// drivers can spin up well-formed scenarios from a single flag.
//
// Usage:
//
//	roster := integration.TierOnePreset()   // minimal validation roster
//	roster := integration.MainnetPoolPreset() // realistic pool power law
//	roster := integration.EconomyPreset()   // full economic ecosystem
//
// Each preset returns a Roster that plugs straight into engine.New together
// with a rules preset from the forksim package.
package integration

import (
	"fmt"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// Roster bundles the agent profiles a scenario starts from.
type Roster struct {
	Name  string
	Pools []inter.PoolProfile
	Nodes []inter.EconomicNodeProfile
}

// TierOnePreset returns the minimal two-pool roster used for calibration
// runs: two fully committed pools at a 70/30 hashrate split and no economic
// nodes. Commitment matters: a rational pool would desert the minority fork
// as soon as prices diverge, so calibration pools hold their fork at any
// loss. With this roster block production tracks the split closely, which
// makes it the standard sanity check before running richer scenarios.
func TierOnePreset() Roster {
	return Roster{
		Name: "tier-one",
		Pools: []inter.PoolProfile{
			{
				PoolID:           "pool-major",
				HashratePct:      70,
				ForkPreference:   inter.ForkV27,
				IdeologyStrength: 1.0,
				MaxLossPct:       1000,
				InitialFork:      inter.ForkV27,
			},
			{
				PoolID:           "pool-minor",
				HashratePct:      30,
				ForkPreference:   inter.ForkV26,
				IdeologyStrength: 1.0,
				MaxLossPct:       1000,
				InitialFork:      inter.ForkV26,
			},
		},
	}
}

// MainnetPoolPreset returns a pool roster shaped like a real network's
// hashrate distribution: a few dominant pools, a long tail, and mixed
// ideological commitments. Thresholds and loss caps differ per pool so the
// roster exercises every branch of the mining decision.
func MainnetPoolPreset() Roster {
	return Roster{
		Name: "mainnet",
		Pools: []inter.PoolProfile{
			{
				PoolID:                 "foundry",
				HashratePct:            28,
				ForkPreference:         inter.ForkV27,
				IdeologyStrength:       0.3,
				MaxLossPct:             0.05,
				ProfitabilityThreshold: 0.02,
				InitialFork:            inter.ForkV27,
			},
			{
				PoolID:                 "antpool",
				HashratePct:            22,
				ProfitabilityThreshold: 0.01,
				InitialFork:            inter.ForkV27,
			},
			{
				PoolID:           "viabtc",
				HashratePct:      14,
				ForkPreference:   inter.ForkV26,
				IdeologyStrength: 0.8,
				MaxLossPct:       0.15,
				MaxLossUSD:       2_000_000,
				InitialFork:      inter.ForkV26,
			},
			{
				PoolID:                 "f2pool",
				HashratePct:            13,
				ProfitabilityThreshold: 0.03,
				InitialFork:            inter.ForkV27,
			},
			{
				PoolID:           "luxor",
				HashratePct:      8,
				ForkPreference:   inter.ForkV26,
				IdeologyStrength: 1.0,
				MaxLossPct:       0.25,
				InitialFork:      inter.ForkV26,
			},
			{
				PoolID:      "ocean",
				HashratePct: 5,
				InitialFork: inter.ForkV27,
			},
		},
	}
}

// EconomyPreset returns the full ecosystem roster: the mainnet pools plus
// exchanges, payment processors, custodians and retail users with distinct
// activity profiles. This is the default roster for contentious-split
// studies because price, fee and reorg pressure all have someone to act on
// them.
func EconomyPreset() Roster {
	r := MainnetPoolPreset()
	r.Name = "economy"
	r.Nodes = []inter.EconomicNodeProfile{
		{
			NodeID:              "exchange-coinbase",
			Type:                inter.NodeEconomic,
			Activity:            inter.ActivityMixed,
			TransactionVelocity: 0.6,
			SwitchingThreshold:  0.05,
			CustodyBTC:          900_000,
			DailyVolumeBTC:      45_000,
			ConsensusWeight:     30,
			Inertia:             0.02,
			InitialFork:         inter.ForkV27,
		},
		{
			NodeID:              "exchange-kraken",
			Type:                inter.NodeEconomic,
			Activity:            inter.ActivityMixed,
			TransactionVelocity: 0.5,
			ForkPreference:      inter.ForkV26,
			IdeologyStrength:    0.5,
			MaxLossPct:          0.10,
			SwitchingThreshold:  0.04,
			CustodyBTC:          350_000,
			DailyVolumeBTC:      20_000,
			ConsensusWeight:     15,
			InitialFork:         inter.ForkV26,
		},
		{
			NodeID:              "processor-strike",
			Type:                inter.NodeEconomic,
			Activity:            inter.ActivityTransactional,
			TransactionVelocity: 0.95,
			SwitchingThreshold:  0.03,
			CustodyBTC:          12_000,
			DailyVolumeBTC:      8_000,
			ConsensusWeight:     10,
			InitialFork:         inter.ForkV27,
		},
		{
			NodeID:              "custodian-fidelity",
			Type:                inter.NodeEconomic,
			Activity:            inter.ActivityCustodial,
			TransactionVelocity: 0.05,
			SwitchingThreshold:  0.10,
			CustodyBTC:          600_000,
			ConsensusWeight:     20,
			Inertia:             0.08,
			InitialFork:         inter.ForkV27,
		},
		{
			NodeID:              "user-hodler",
			Type:                inter.NodeUser,
			Activity:            inter.ActivityCustodial,
			TransactionVelocity: 0.02,
			ForkPreference:      inter.ForkV26,
			IdeologyStrength:    1.0,
			MaxLossPct:          0.50,
			SwitchingThreshold:  0.20,
			CustodyBTC:          5_000,
			InitialFork:         inter.ForkV26,
		},
		{
			NodeID:              "user-solo-miner",
			Type:                inter.NodeUser,
			Activity:            inter.ActivityMixed,
			TransactionVelocity: 0.3,
			SwitchingThreshold:  0.05,
			CustodyBTC:          800,
			HashratePct:         2,
			SwitchingCooldown:   7200,
			InitialFork:         inter.ForkV27,
		},
	}
	return r
}

// RosterByName resolves a preset roster by its name.
func RosterByName(name string) (Roster, error) {
	switch name {
	case "tier-one":
		return TierOnePreset(), nil
	case "mainnet":
		return MainnetPoolPreset(), nil
	case "economy":
		return EconomyPreset(), nil
	default:
		return Roster{}, fmt.Errorf("unknown roster preset %q", name)
	}
}

// Validate checks the roster against the given rules.
func (r Roster) Validate(rules forksim.Rules) error {
	return rules.ValidateRoster(r.Pools, r.Nodes)
}
