// Package forksim defines the configuration rules for a contentious-fork
// economics simulation.
//
// This package provides:
//   - DifficultyRules for per-fork difficulty, retargeting and emergency
//     adjustment behavior
//   - PriceRules for the per-fork token price model and its factor weights
//   - FeeRules for the organic fee model and manipulation accounting
//   - StrategyRules for the agent decision engines (mining pools and
//     economic/user nodes)
//   - ReorgRules for reorg-event clustering
//
// The Rules type is the central configuration structure: every subsystem is
// constructed from one of its sub-rule structs, and Validate is the single
// place where fatal configuration errors are raised before any tick runs.
package forksim

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-forksim/inter"
)

// Preset names accepted by the launcher.
const (
	DefaultRulesName = "default"
	FastSimRulesName = "fastsim"
)

// MinHashrateShare is the floor applied to a fork's hashrate share when
// computing expected block intervals, so a fork that lost all miners still
// has a finite (if enormous) expected interval instead of dividing by zero.
const MinHashrateShare = 0.001

// DifficultyRules governs block timing, periodic retargets and the optional
// emergency difficulty adjustment (EDA).
type DifficultyRules struct {
	// TargetBlockInterval is the protocol's target seconds between blocks at
	// difficulty 1.0 with 100% of hashrate. Sub-second values are supported.
	TargetBlockInterval float64 `json:"target_block_interval" yaml:"target_block_interval"`

	// RetargetInterval is the number of blocks between difficulty retargets.
	RetargetInterval int `json:"retarget_interval" yaml:"retarget_interval"`

	// MaxAdjustmentFactor clamps a single retarget to
	// [1/MaxAdjustmentFactor, MaxAdjustmentFactor].
	MaxAdjustmentFactor float64 `json:"max_adjustment_factor" yaml:"max_adjustment_factor"`

	// InitialDifficulty seeds every fork at registration.
	InitialDifficulty float64 `json:"initial_difficulty" yaml:"initial_difficulty"`

	// MinDifficulty floors the difficulty after retargets and EDA cuts.
	MinDifficulty float64 `json:"min_difficulty" yaml:"min_difficulty"`

	// EDAEnabled switches the emergency difficulty adjustment on. When the
	// time since a fork's last block exceeds EDAThreshold target intervals,
	// difficulty is multiplied by (1 - EDAReduction), independent of the
	// periodic retarget.
	EDAEnabled   bool    `json:"eda_enabled" yaml:"eda_enabled"`
	EDAThreshold float64 `json:"eda_threshold" yaml:"eda_threshold"`
	EDAReduction float64 `json:"eda_reduction" yaml:"eda_reduction"`
}

// PriceRules governs the per-fork token price model. The three coefficients
// weight the chainwork, economic and hashrate factor scores and must sum to
// 1.0; anything else is a fatal configuration error.
type PriceRules struct {
	// BasePrice is the pre-split token price in USD. Both forks trade at
	// BasePrice until the split is sustained.
	BasePrice float64 `json:"base_price" yaml:"base_price"`

	// MinForkDepth is the combined depth past the common ancestor at which
	// the split is considered sustained. Natural short-lived splits are
	// common and must not move price, so the latch only fires once.
	MinForkDepth int64 `json:"min_fork_depth" yaml:"min_fork_depth"`

	// MaxDivergence bounds each fork's price to
	// BasePrice * (1 ± MaxDivergence).
	MaxDivergence float64 `json:"max_divergence" yaml:"max_divergence"`

	ChainCoefficient    float64 `json:"chain_coefficient" yaml:"chain_coefficient"`
	EconomicCoefficient float64 `json:"economic_coefficient" yaml:"economic_coefficient"`
	HashrateCoefficient float64 `json:"hashrate_coefficient" yaml:"hashrate_coefficient"`
}

// FeeRules governs the organic fee model and the size basis for
// manipulation premiums.
type FeeRules struct {
	// BaseRate is the organic fee rate in sats/vB at nominal block
	// production (6 blocks/hour) and a 50% activity share.
	BaseRate float64 `json:"base_rate" yaml:"base_rate"`

	// MempoolPressure scales the organic rate; 1.0 is neutral.
	MempoolPressure float64 `json:"mempool_pressure" yaml:"mempool_pressure"`

	// BlockVBytes is the block capacity used to spread manipulation spend
	// across a period's blocks.
	BlockVBytes float64 `json:"block_vbytes" yaml:"block_vbytes"`
}

// StrategyRules governs both agent decision engines.
type StrategyRules struct {
	// PoolCooldown is the minimum simulated seconds between re-evaluations
	// of a pool's fork choice.
	PoolCooldown float64 `json:"pool_cooldown" yaml:"pool_cooldown"`

	// NodeCooldown is the fallback switching cooldown for economic nodes
	// whose profile leaves it unset.
	NodeCooldown float64 `json:"node_cooldown" yaml:"node_cooldown"`

	// AssumedHashrateSplit is the hashrate share each fork is assumed to
	// hold during pool profitability evaluation. Pinned rather than read
	// from the live allocation: a minority fork must not look unprofitable
	// merely for being minority.
	AssumedHashrateSplit float64 `json:"assumed_hashrate_split" yaml:"assumed_hashrate_split"`

	// BlockSubsidyBTC is the fixed block subsidy used in miner
	// profitability, in BTC.
	BlockSubsidyBTC float64 `json:"block_subsidy_btc" yaml:"block_subsidy_btc"`

	// MiningCostUSD is the fixed per-block mining cost at full hashrate,
	// in USD.
	MiningCostUSD float64 `json:"mining_cost_usd" yaml:"mining_cost_usd"`
}

// ReorgRules governs incident clustering.
type ReorgRules struct {
	// PropagationWindow is the maximum simulated seconds between member
	// events of one ForkIncident.
	PropagationWindow float64 `json:"propagation_window" yaml:"propagation_window"`
}

// Rules describes the complete configuration for a simulation run.
type Rules struct {
	Name  string        `json:"name" yaml:"name"`
	Forks inter.ForkSet `json:"forks" yaml:"-"`

	// TickInterval is the simulated seconds advanced per engine tick.
	TickInterval float64 `json:"tick_interval" yaml:"tick_interval"`

	// StartHeight is the common height both forks share at the split; it is
	// also the LCA height for reorg depth accounting.
	StartHeight idx.Block `json:"start_height" yaml:"start_height"`

	// Seed feeds the engine's deterministic RNG.
	Seed int64 `json:"seed" yaml:"seed"`

	Difficulty DifficultyRules `json:"difficulty" yaml:"difficulty"`
	Price      PriceRules      `json:"price" yaml:"price"`
	Fee        FeeRules        `json:"fee" yaml:"fee"`
	Strategy   StrategyRules   `json:"strategy" yaml:"strategy"`
	Reorg      ReorgRules      `json:"reorg" yaml:"reorg"`
}

// DefaultRules returns the Bitcoin-like production parameterization: ten
// minute blocks, 2016-block retargets, a 60k USD base price.
func DefaultRules() Rules {
	return Rules{
		Name:         DefaultRulesName,
		Forks:        inter.DefaultForkSet(),
		TickInterval: 1.0,
		StartHeight:  100,
		Seed:         1,
		Difficulty: DifficultyRules{
			TargetBlockInterval: 600,
			RetargetInterval:    2016,
			MaxAdjustmentFactor: 4.0,
			InitialDifficulty:   1.0,
			MinDifficulty:       0.001,
			EDAEnabled:          false,
			EDAThreshold:        12,
			EDAReduction:        0.20,
		},
		Price: PriceRules{
			BasePrice:           60000,
			MinForkDepth:        6,
			MaxDivergence:       0.80,
			ChainCoefficient:    0.30,
			EconomicCoefficient: 0.50,
			HashrateCoefficient: 0.20,
		},
		Fee: FeeRules{
			BaseRate:        10,
			MempoolPressure: 1.0,
			BlockVBytes:     1_000_000,
		},
		Strategy: StrategyRules{
			PoolCooldown:         3600,
			NodeCooldown:         3600,
			AssumedHashrateSplit: 0.5,
			BlockSubsidyBTC:      3.125,
			MiningCostUSD:        150_000,
		},
		Reorg: ReorgRules{
			PropagationWindow: 300,
		},
	}
}

// FastSimRules returns an accelerated parameterization for quick runs and
// tests: ten second blocks, short retarget period, EDA enabled, cooldowns
// compressed to match.
func FastSimRules() Rules {
	r := DefaultRules()
	r.Name = FastSimRulesName
	r.Difficulty.TargetBlockInterval = 10
	r.Difficulty.RetargetInterval = 144
	r.Difficulty.EDAEnabled = true
	r.Strategy.PoolCooldown = 60
	r.Strategy.NodeCooldown = 60
	r.Reorg.PropagationWindow = 30
	return r
}

// RulesByName resolves a preset name, defaulting unknown names to an error.
func RulesByName(name string) (Rules, error) {
	switch name {
	case DefaultRulesName, "":
		return DefaultRules(), nil
	case FastSimRulesName:
		return FastSimRules(), nil
	default:
		return Rules{}, fmt.Errorf("unknown rules preset %q", name)
	}
}

// coefficientTolerance is how far the price coefficients may drift from
// summing to exactly 1.0 before Validate rejects them.
const coefficientTolerance = 1e-9

// Validate raises every fatal configuration condition. It must be called
// before the first tick; the oracles assume validated rules.
func (r Rules) Validate() error {
	if err := r.Forks.Validate(); err != nil {
		return fmt.Errorf("forks: %w", err)
	}
	if r.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", r.TickInterval)
	}

	d := r.Difficulty
	if d.TargetBlockInterval <= 0 {
		return fmt.Errorf("difficulty: target_block_interval must be positive, got %v", d.TargetBlockInterval)
	}
	if d.RetargetInterval <= 0 {
		return fmt.Errorf("difficulty: retarget_interval must be positive, got %d", d.RetargetInterval)
	}
	if d.MaxAdjustmentFactor < 1 {
		return fmt.Errorf("difficulty: max_adjustment_factor must be >= 1, got %v", d.MaxAdjustmentFactor)
	}
	if d.InitialDifficulty < d.MinDifficulty {
		return fmt.Errorf("difficulty: initial_difficulty %v below min_difficulty %v", d.InitialDifficulty, d.MinDifficulty)
	}
	if d.MinDifficulty <= 0 {
		return fmt.Errorf("difficulty: min_difficulty must be positive, got %v", d.MinDifficulty)
	}
	if d.EDAEnabled {
		if d.EDAThreshold <= 0 {
			return fmt.Errorf("difficulty: eda_threshold must be positive, got %v", d.EDAThreshold)
		}
		if d.EDAReduction <= 0 || d.EDAReduction >= 1 {
			return fmt.Errorf("difficulty: eda_reduction %v out of (0,1)", d.EDAReduction)
		}
	}

	p := r.Price
	if p.BasePrice <= 0 {
		return fmt.Errorf("price: base_price must be positive, got %v", p.BasePrice)
	}
	if p.MinForkDepth < 0 {
		return fmt.Errorf("price: min_fork_depth must be non-negative, got %d", p.MinForkDepth)
	}
	if p.MaxDivergence < 0 || p.MaxDivergence > 1 {
		return fmt.Errorf("price: max_divergence %v out of [0,1]", p.MaxDivergence)
	}
	sum := p.ChainCoefficient + p.EconomicCoefficient + p.HashrateCoefficient
	if math.Abs(sum-1.0) > coefficientTolerance {
		return fmt.Errorf("price: coefficients sum to %v, want 1.0", sum)
	}
	if p.ChainCoefficient < 0 || p.EconomicCoefficient < 0 || p.HashrateCoefficient < 0 {
		return fmt.Errorf("price: coefficients must be non-negative")
	}

	f := r.Fee
	if f.BaseRate < 0 {
		return fmt.Errorf("fee: base_rate must be non-negative, got %v", f.BaseRate)
	}
	if f.MempoolPressure <= 0 {
		return fmt.Errorf("fee: mempool_pressure must be positive, got %v", f.MempoolPressure)
	}
	if f.BlockVBytes <= 0 {
		return fmt.Errorf("fee: block_vbytes must be positive, got %v", f.BlockVBytes)
	}

	s := r.Strategy
	if s.PoolCooldown < 0 || s.NodeCooldown < 0 {
		return fmt.Errorf("strategy: cooldowns must be non-negative")
	}
	if s.AssumedHashrateSplit <= 0 || s.AssumedHashrateSplit > 1 {
		return fmt.Errorf("strategy: assumed_hashrate_split %v out of (0,1]", s.AssumedHashrateSplit)
	}
	if s.BlockSubsidyBTC < 0 {
		return fmt.Errorf("strategy: block_subsidy_btc must be non-negative, got %v", s.BlockSubsidyBTC)
	}

	if r.Reorg.PropagationWindow < 0 {
		return fmt.Errorf("reorg: propagation_window must be non-negative, got %v", r.Reorg.PropagationWindow)
	}
	return nil
}

// ValidateRoster checks the agent profiles against the rules' fork set and
// the aggregate hashrate invariant: pool plus solo-miner hashrate must not
// exceed 100%.
func (r Rules) ValidateRoster(pools []inter.PoolProfile, nodes []inter.EconomicNodeProfile) error {
	total := 0.0
	poolIDs := make(map[string]struct{}, len(pools))
	for i := range pools {
		if err := pools[i].Validate(r.Forks); err != nil {
			return err
		}
		if _, dup := poolIDs[pools[i].PoolID]; dup {
			return fmt.Errorf("duplicate pool id %q", pools[i].PoolID)
		}
		poolIDs[pools[i].PoolID] = struct{}{}
		total += pools[i].HashratePct
	}
	nodeIDs := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		if err := nodes[i].Validate(r.Forks); err != nil {
			return err
		}
		if _, dup := nodeIDs[nodes[i].NodeID]; dup {
			return fmt.Errorf("duplicate node id %q", nodes[i].NodeID)
		}
		nodeIDs[nodes[i].NodeID] = struct{}{}
		total += nodes[i].HashratePct
	}
	if total > 100+coefficientTolerance {
		return fmt.Errorf("total hashrate %.4f%% exceeds 100%%", total)
	}
	return nil
}

// String renders the rules as compact JSON for logging and config dumps.
func (r Rules) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}
