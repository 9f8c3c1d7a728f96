package inter

// MiningDecision is one entry of the append-only per-pool decision log.
// Every evaluation produces exactly one record, whether or not the pool
// moved, so the log is the ground truth for reorg triggers and for
// opportunity-cost analysis.
type MiningDecision struct {
	Time   SimTime `json:"time"`
	PoolID string  `json:"pool_id"`

	// ProfitUSD holds the evaluated daily profit on every fork, keyed by
	// fork id, at the assumed hashrate split.
	ProfitUSD map[Fork]float64 `json:"profit_usd"`

	// RationalFork is the higher-profit choice; ChosenFork is what the pool
	// actually committed to after ideology and loss caps.
	RationalFork Fork `json:"rational_fork"`
	ChosenFork   Fork `json:"chosen_fork"`
	PreviousFork Fork `json:"previous_fork"`

	// IdeologyOverride is set when the pool knowingly accepted the less
	// profitable fork. Forced is set when ideology wanted to hold but the
	// loss caps pushed the pool onto the rational choice.
	IdeologyOverride bool `json:"ideology_override"`
	Forced           bool `json:"forced"`

	// LossPct is the fractional profit given up by the preferred fork
	// relative to the rational one at this evaluation.
	LossPct float64 `json:"loss_pct"`

	// OpportunityCostUSD is the incremental cost of this decision;
	// CumulativeOpportunityCostUSD is the running total for the pool.
	OpportunityCostUSD           float64 `json:"opportunity_cost_usd"`
	CumulativeOpportunityCostUSD float64 `json:"cumulative_opportunity_cost_usd"`
}

// EconomicDecision is the economic-node counterpart of MiningDecision.
// The profit signal here is token price, not mining profit.
type EconomicDecision struct {
	Time   SimTime `json:"time"`
	NodeID string  `json:"node_id"`

	PriceUSD map[Fork]float64 `json:"price_usd"`

	RationalFork Fork `json:"rational_fork"`
	ChosenFork   Fork `json:"chosen_fork"`
	PreviousFork Fork `json:"previous_fork"`

	IdeologyOverride bool `json:"ideology_override"`
	Forced           bool `json:"forced"`

	// InertiaHold is set when the node wanted to move but the price
	// advantage did not clear switching_threshold + inertia.
	InertiaHold bool `json:"inertia_hold"`

	// Switched reports whether the allocation actually changed.
	Switched bool `json:"switched"`

	// PriceAdvantagePct is the fractional advantage of the chosen fork over
	// the fork the node held before this evaluation.
	PriceAdvantagePct float64 `json:"price_advantage_pct"`

	OpportunityCostUSD           float64 `json:"opportunity_cost_usd"`
	CumulativeOpportunityCostUSD float64 `json:"cumulative_opportunity_cost_usd"`
}
