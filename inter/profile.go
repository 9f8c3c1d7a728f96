package inter

import "fmt"

// NodeType classifies an economic agent. Economic nodes (exchanges, payment
// processors) carry custody and volume weight; user nodes model individual
// participants, possibly with solo-mining hashrate.
type NodeType uint8

const (
	NodeEconomic NodeType = iota + 1
	NodeUser
)

func (t NodeType) String() string {
	switch t {
	case NodeEconomic:
		return "economic"
	case NodeUser:
		return "user"
	default:
		return fmt.Sprintf("node-type-%d", uint8(t))
	}
}

// ActivityType describes how a node's weight interacts with the fee market.
// Custodial weight supports price only; transactional weight generates fees.
type ActivityType uint8

const (
	ActivityTransactional ActivityType = iota + 1
	ActivityCustodial
	ActivityMixed
)

func (a ActivityType) String() string {
	switch a {
	case ActivityTransactional:
		return "transactional"
	case ActivityCustodial:
		return "custodial"
	case ActivityMixed:
		return "mixed"
	default:
		return fmt.Sprintf("activity-type-%d", uint8(a))
	}
}

// PoolProfile is the static description of a mining pool, supplied once at
// simulation start. Only the pool's current fork choice mutates during a run,
// and that lives in the strategy engine, not here.
type PoolProfile struct {
	// PoolID uniquely identifies the pool in decision logs and block
	// attribution.
	PoolID string `json:"pool_id" yaml:"pool_id"`

	// HashratePct is the pool's share of total network hashrate, in percent.
	// The sum over all pools plus solo miners must not exceed 100.
	HashratePct float64 `json:"hashrate_pct" yaml:"hashrate_pct"`

	// ForkPreference is the pool's ideological side. ForkNone means neutral:
	// the pool always follows the rational (higher profit) choice.
	ForkPreference Fork `json:"fork_preference" yaml:"fork_preference"`

	// IdeologyStrength in [0,1] scales how much loss the pool tolerates to
	// stay on its preferred fork. Zero makes the preference inert.
	IdeologyStrength float64 `json:"ideology_strength" yaml:"ideology_strength"`

	// ProfitabilityThreshold is the minimum relative profit advantage the
	// alternative fork must show before the pool bothers to switch.
	// Models switching friction on the mining side.
	ProfitabilityThreshold float64 `json:"profitability_threshold" yaml:"profitability_threshold"`

	// MaxLossUSD caps the cumulative opportunity cost the pool will absorb
	// for ideology, in USD. Zero means no cap.
	MaxLossUSD float64 `json:"max_loss_usd,omitempty" yaml:"max_loss_usd"`

	// MaxLossPct is the per-decision fractional loss cap; ideology can only
	// hold when loss_pct <= IdeologyStrength * MaxLossPct.
	MaxLossPct float64 `json:"max_loss_pct" yaml:"max_loss_pct"`

	// InitialFork is where the pool starts mining at the split.
	InitialFork Fork `json:"initial_fork" yaml:"initial_fork"`
}

// Validate fails fast on malformed profiles; these are configuration errors
// and non-recoverable.
func (p *PoolProfile) Validate(forks ForkSet) error {
	if p.PoolID == "" {
		return fmt.Errorf("pool profile has no pool_id")
	}
	if p.HashratePct < 0 || p.HashratePct > 100 {
		return fmt.Errorf("pool %s: hashrate_pct %.2f out of [0,100]", p.PoolID, p.HashratePct)
	}
	if p.IdeologyStrength < 0 || p.IdeologyStrength > 1 {
		return fmt.Errorf("pool %s: ideology_strength %.2f out of [0,1]", p.PoolID, p.IdeologyStrength)
	}
	if p.MaxLossPct < 0 {
		return fmt.Errorf("pool %s: negative max_loss_pct", p.PoolID)
	}
	if p.ForkPreference != ForkNone && !forks.Contains(p.ForkPreference) {
		return fmt.Errorf("pool %s: fork_preference %d not in fork set", p.PoolID, p.ForkPreference)
	}
	if !forks.Contains(p.InitialFork) {
		return fmt.Errorf("pool %s: initial_fork %d not in fork set", p.PoolID, p.InitialFork)
	}
	return nil
}

// EconomicNodeProfile is the static description of an economic or user node.
// As with pools, the profile never mutates; the node's current allocation is
// tracked externally by the strategy engine.
type EconomicNodeProfile struct {
	NodeID   string       `json:"node_id" yaml:"node_id"`
	Type     NodeType     `json:"node_type" yaml:"node_type"`
	Activity ActivityType `json:"activity_type" yaml:"activity_type"`

	// TransactionVelocity in [0,1] splits the node's weight between
	// fee-generating (transactional) and custodial buckets.
	TransactionVelocity float64 `json:"transaction_velocity" yaml:"transaction_velocity"`

	ForkPreference   Fork    `json:"fork_preference" yaml:"fork_preference"`
	IdeologyStrength float64 `json:"ideology_strength" yaml:"ideology_strength"`

	// SwitchingThreshold is the minimum fractional price advantage required
	// before the node considers moving at all; Inertia adds on top of it.
	SwitchingThreshold float64 `json:"switching_threshold" yaml:"switching_threshold"`

	CustodyBTC     float64 `json:"custody_btc" yaml:"custody_btc"`
	DailyVolumeBTC float64 `json:"daily_volume_btc" yaml:"daily_volume_btc"`

	// ConsensusWeight is the node's explicit economic weight. When zero,
	// callers fall back to CustodyBTC as the weight. This is a documented
	// fallback, not a bug: roster generators that only know custody leave
	// the field unset.
	ConsensusWeight float64 `json:"consensus_weight" yaml:"consensus_weight"`

	// HashratePct is non-zero only for solo-mining user nodes and feeds the
	// hashrate aggregation alongside pool hashrate.
	HashratePct float64 `json:"hashrate_pct" yaml:"hashrate_pct"`

	// SwitchingCooldown is the minimum simulated seconds between
	// re-evaluations of this node's allocation.
	SwitchingCooldown float64 `json:"switching_cooldown" yaml:"switching_cooldown"`

	MaxLossPct float64 `json:"max_loss_pct" yaml:"max_loss_pct"`

	// Inertia models switching costs: even a rational/ideological choice is
	// discarded unless the price advantage clears SwitchingThreshold+Inertia.
	Inertia float64 `json:"inertia" yaml:"inertia"`

	InitialFork Fork `json:"initial_fork" yaml:"initial_fork"`
}

// Weight returns the node's economic weight: ConsensusWeight when set,
// otherwise CustodyBTC.
func (p *EconomicNodeProfile) Weight() float64 {
	if p.ConsensusWeight > 0 {
		return p.ConsensusWeight
	}
	return p.CustodyBTC
}

// Validate fails fast on malformed profiles.
func (p *EconomicNodeProfile) Validate(forks ForkSet) error {
	if p.NodeID == "" {
		return fmt.Errorf("economic node profile has no node_id")
	}
	if p.Type != NodeEconomic && p.Type != NodeUser {
		return fmt.Errorf("node %s: unknown node_type %d", p.NodeID, p.Type)
	}
	if p.Activity != ActivityTransactional && p.Activity != ActivityCustodial && p.Activity != ActivityMixed {
		return fmt.Errorf("node %s: unknown activity_type %d", p.NodeID, p.Activity)
	}
	if p.TransactionVelocity < 0 || p.TransactionVelocity > 1 {
		return fmt.Errorf("node %s: transaction_velocity %.2f out of [0,1]", p.NodeID, p.TransactionVelocity)
	}
	if p.IdeologyStrength < 0 || p.IdeologyStrength > 1 {
		return fmt.Errorf("node %s: ideology_strength %.2f out of [0,1]", p.NodeID, p.IdeologyStrength)
	}
	if p.ConsensusWeight < 0 {
		return fmt.Errorf("node %s: negative consensus_weight", p.NodeID)
	}
	if p.HashratePct < 0 {
		return fmt.Errorf("node %s: negative hashrate_pct", p.NodeID)
	}
	if p.CustodyBTC < 0 || p.DailyVolumeBTC < 0 {
		return fmt.Errorf("node %s: negative custody or volume", p.NodeID)
	}
	if p.ForkPreference != ForkNone && !forks.Contains(p.ForkPreference) {
		return fmt.Errorf("node %s: fork_preference %d not in fork set", p.NodeID, p.ForkPreference)
	}
	if !forks.Contains(p.InitialFork) {
		return fmt.Errorf("node %s: initial_fork %d not in fork set", p.NodeID, p.InitialFork)
	}
	return nil
}
