// Package strategy implements the two agent decision engines of the fork
// simulation: mining pools choosing where to point hashrate, and
// economic/user nodes choosing which fork to hold and transact on.
//
// Both engines share the same decision shape: a cooldown gates
// re-evaluation, a rational choice is computed from the oracles, and a fixed
// ideological preference may override it within a bounded loss tolerance.
// Every evaluation appends an immutable decision record; those records are
// the ground truth for reorg-event triggers and opportunity-cost analysis.
package strategy

import (
	"fmt"
	"math"

	"github.com/rony4d/go-forksim/fee"
	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// PriceSource is the read surface the engines need from the price oracle.
type PriceSource interface {
	Price(f inter.Fork) float64
}

// ProfitSource is the read surface the pool engine needs from the fee
// oracle.
type ProfitSource interface {
	MinerProfitability(f inter.Fork, subsidyBTC, priceUSD, costUSD float64) fee.Profitability
}

// Switch reports one agent moving between forks during an evaluation pass.
type Switch struct {
	AgentID string        `json:"agent_id"`
	From    inter.Fork    `json:"from"`
	To      inter.Fork    `json:"to"`
	Time    inter.SimTime `json:"time"`
}

// profitEpsilon guards relative-loss divisions when the rational profit is
// at or near zero.
const profitEpsilon = 1e-9

// poolState is a pool's mutable decision state; the profile itself is
// static.
type poolState struct {
	profile   inter.PoolProfile
	current   inter.Fork
	lastEval  inter.SimTime
	evaluated bool
	cumOppUSD float64
}

// PoolEngine re-evaluates every pool's fork choice against mining
// profitability, ideology and loss caps.
type PoolEngine struct {
	cfg forksim.StrategyRules

	forks  []inter.Fork
	order  []string
	pools  map[string]*poolState
	prices PriceSource
	fees   ProfitSource

	decisions []inter.MiningDecision
}

// NewPoolEngine builds the engine from validated profiles. Pools start on
// their profile's initial fork.
func NewPoolEngine(cfg forksim.StrategyRules, forks []inter.Fork, profiles []inter.PoolProfile, prices PriceSource, fees ProfitSource) (*PoolEngine, error) {
	if len(forks) == 0 {
		return nil, fmt.Errorf("pool engine needs at least one fork")
	}
	e := &PoolEngine{
		cfg:    cfg,
		forks:  append([]inter.Fork(nil), forks...),
		pools:  make(map[string]*poolState, len(profiles)),
		prices: prices,
		fees:   fees,
	}
	for _, p := range profiles {
		if _, dup := e.pools[p.PoolID]; dup {
			return nil, fmt.Errorf("duplicate pool id %q", p.PoolID)
		}
		e.pools[p.PoolID] = &poolState{profile: p, current: p.InitialFork}
		e.order = append(e.order, p.PoolID)
	}
	return e, nil
}

// EvaluateAll runs one cooldown-gated decision pass over every pool and
// returns the fork switches that resulted, in roster order.
func (e *PoolEngine) EvaluateAll(t inter.SimTime) []Switch {
	var switches []Switch
	for _, id := range e.order {
		st := e.pools[id]
		if st.evaluated && t.Seconds()-st.lastEval.Seconds() < e.cfg.PoolCooldown {
			continue
		}
		if sw := e.evaluate(st, t); sw != nil {
			switches = append(switches, *sw)
		}
	}
	return switches
}

// evaluate runs one pool decision and appends its MiningDecision record.
func (e *PoolEngine) evaluate(st *poolState, t inter.SimTime) *Switch {
	st.lastEval = t
	st.evaluated = true
	p := &st.profile

	// Profit per fork at the assumed hashrate split. The split is a
	// deliberate approximation (default 50/50): using the live allocation
	// would let a fork's low share depress its own profitability estimate.
	// The pool's expected share of a fork's blocks under that assumption is
	// hashrate / split, applied to the per-block profit.
	poolShare := (p.HashratePct / 100) / e.cfg.AssumedHashrateSplit
	profits := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		perBlock := e.fees.MinerProfitability(f, e.cfg.BlockSubsidyBTC, e.prices.Price(f), e.cfg.MiningCostUSD)
		profits[f] = perBlock.ProfitUSD * poolShare
	}

	rational := e.forks[0]
	for _, f := range e.forks[1:] {
		if profits[f] > profits[rational] {
			rational = f
		}
	}

	chosen := rational
	override := false
	forced := false
	lossPct := 0.0
	if p.ForkPreference != inter.ForkNone && p.ForkPreference != rational {
		lossUSD := profits[rational] - profits[p.ForkPreference]
		lossPct = lossUSD / math.Max(math.Abs(profits[rational]), profitEpsilon)
		withinPct := lossPct <= p.IdeologyStrength*p.MaxLossPct
		withinUSD := p.MaxLossUSD == 0 || st.cumOppUSD+math.Max(lossUSD, 0) <= p.MaxLossUSD
		if withinPct && withinUSD {
			chosen = p.ForkPreference
			override = true
		} else {
			forced = true
		}
	}

	// Switching friction: moving off the current fork needs a relative
	// profit advantage past the pool's threshold.
	if chosen != st.current && p.ProfitabilityThreshold > 0 {
		advantage := (profits[chosen] - profits[st.current]) /
			math.Max(math.Abs(profits[st.current]), profitEpsilon)
		if advantage < p.ProfitabilityThreshold {
			chosen = st.current
		}
	}

	oppCost := math.Max(profits[rational]-profits[chosen], 0)
	st.cumOppUSD += oppCost

	previous := st.current
	st.current = chosen

	e.decisions = append(e.decisions, inter.MiningDecision{
		Time:                         t,
		PoolID:                       p.PoolID,
		ProfitUSD:                    profits,
		RationalFork:                 rational,
		ChosenFork:                   chosen,
		PreviousFork:                 previous,
		IdeologyOverride:             override,
		Forced:                       forced,
		LossPct:                      lossPct,
		OpportunityCostUSD:           oppCost,
		CumulativeOpportunityCostUSD: st.cumOppUSD,
	})

	if chosen != previous {
		return &Switch{AgentID: p.PoolID, From: previous, To: chosen, Time: t}
	}
	return nil
}

// MiningAllocation sums pool hashrate percentages by current fork.
func (e *PoolEngine) MiningAllocation() map[inter.Fork]float64 {
	alloc := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		alloc[f] = 0
	}
	for _, id := range e.order {
		st := e.pools[id]
		alloc[st.current] += st.profile.HashratePct
	}
	return alloc
}

// WeightedAgent pairs an agent id with its hashrate weight, for producer
// sampling.
type WeightedAgent struct {
	ID     string
	Weight float64
}

// AgentsOn returns the pools currently mining fork f with their hashrate
// weights, in roster order.
func (e *PoolEngine) AgentsOn(f inter.Fork) []WeightedAgent {
	var out []WeightedAgent
	for _, id := range e.order {
		st := e.pools[id]
		if st.current == f && st.profile.HashratePct > 0 {
			out = append(out, WeightedAgent{ID: id, Weight: st.profile.HashratePct})
		}
	}
	return out
}

// CurrentFork returns where a pool is mining, ForkNone for unknown pools.
func (e *PoolEngine) CurrentFork(poolID string) inter.Fork {
	if st, ok := e.pools[poolID]; ok {
		return st.current
	}
	return inter.ForkNone
}

// CumulativeOpportunityCost returns a pool's running opportunity cost in
// USD, 0.0 for unknown pools.
func (e *PoolEngine) CumulativeOpportunityCost(poolID string) float64 {
	if st, ok := e.pools[poolID]; ok {
		return st.cumOppUSD
	}
	return 0
}

// Decisions returns the append-only decision log.
func (e *PoolEngine) Decisions() []inter.MiningDecision {
	return e.decisions
}

// PoolIDs returns the roster in registration order.
func (e *PoolEngine) PoolIDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// PoolSnapshot is the exportable per-pool state.
type PoolSnapshot struct {
	Profile                      inter.PoolProfile `json:"profile"`
	CurrentFork                  string            `json:"current_fork"`
	LastEvaluation               inter.SimTime     `json:"last_evaluation"`
	CumulativeOpportunityCostUSD float64           `json:"cumulative_opportunity_cost_usd"`
}

// PoolEngineSnapshot is the engine's exportable view.
type PoolEngineSnapshot struct {
	Config    forksim.StrategyRules   `json:"config"`
	Pools     map[string]PoolSnapshot `json:"pools"`
	Decisions []inter.MiningDecision  `json:"decisions"`
}

// Snapshot exports config, per-pool state and the full decision history.
func (e *PoolEngine) Snapshot(names inter.ForkSet) PoolEngineSnapshot {
	snap := PoolEngineSnapshot{
		Config:    e.cfg,
		Pools:     make(map[string]PoolSnapshot, len(e.pools)),
		Decisions: e.decisions,
	}
	for id, st := range e.pools {
		snap.Pools[id] = PoolSnapshot{
			Profile:                      st.profile,
			CurrentFork:                  names.Name(st.current),
			LastEvaluation:               st.lastEval,
			CumulativeOpportunityCostUSD: st.cumOppUSD,
		}
	}
	return snap
}
