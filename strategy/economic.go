package strategy

import (
	"fmt"
	"math"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// TransactionalWeight splits a fork's economic weight into the fee-generating
// and custodial percentages of the network totals.
type TransactionalWeight struct {
	TransactionalPct float64 `json:"transactional_pct"`
	CustodialPct     float64 `json:"custodial_pct"`
}

// nodeState is a node's mutable decision state; the profile is static and
// the current allocation is tracked here, outside the profile.
type nodeState struct {
	profile   inter.EconomicNodeProfile
	current   inter.Fork
	lastEval  inter.SimTime
	evaluated bool
	cumOppUSD float64
}

// EconomicEngine re-evaluates economic and user node allocations. The shape
// matches the pool engine but the profit signal is token price, and an
// inertia term resists switching even when the rational choice has moved.
type EconomicEngine struct {
	cfg forksim.StrategyRules

	forks  []inter.Fork
	order  []string
	nodes  map[string]*nodeState
	prices PriceSource

	decisions []inter.EconomicDecision
}

// NewEconomicEngine builds the engine from validated profiles. Nodes start
// on their profile's initial fork.
func NewEconomicEngine(cfg forksim.StrategyRules, forks []inter.Fork, profiles []inter.EconomicNodeProfile, prices PriceSource) (*EconomicEngine, error) {
	if len(forks) == 0 {
		return nil, fmt.Errorf("economic engine needs at least one fork")
	}
	e := &EconomicEngine{
		cfg:    cfg,
		forks:  append([]inter.Fork(nil), forks...),
		nodes:  make(map[string]*nodeState, len(profiles)),
		prices: prices,
	}
	for _, p := range profiles {
		if _, dup := e.nodes[p.NodeID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", p.NodeID)
		}
		e.nodes[p.NodeID] = &nodeState{profile: p, current: p.InitialFork}
		e.order = append(e.order, p.NodeID)
	}
	return e, nil
}

// EvaluateAll runs one cooldown-gated decision pass over every node and
// returns the resulting switches, in roster order.
func (e *EconomicEngine) EvaluateAll(t inter.SimTime) []Switch {
	var switches []Switch
	for _, id := range e.order {
		st := e.nodes[id]
		cooldown := st.profile.SwitchingCooldown
		if cooldown <= 0 {
			cooldown = e.cfg.NodeCooldown
		}
		if st.evaluated && t.Seconds()-st.lastEval.Seconds() < cooldown {
			continue
		}
		if sw := e.evaluate(st, t); sw != nil {
			switches = append(switches, *sw)
		}
	}
	return switches
}

// evaluate runs one node decision and appends its EconomicDecision record.
func (e *EconomicEngine) evaluate(st *nodeState, t inter.SimTime) *Switch {
	st.lastEval = t
	st.evaluated = true
	p := &st.profile

	prices := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		prices[f] = e.prices.Price(f)
	}

	rational := e.forks[0]
	for _, f := range e.forks[1:] {
		if prices[f] > prices[rational] {
			rational = f
		}
	}

	chosen := rational
	override := false
	forced := false
	if p.ForkPreference != inter.ForkNone && p.ForkPreference != rational {
		disadvantage := (prices[rational] - prices[p.ForkPreference]) /
			math.Max(prices[rational], profitEpsilon)
		if disadvantage <= p.IdeologyStrength*p.MaxLossPct {
			chosen = p.ForkPreference
			override = true
		} else {
			forced = true
		}
	}

	// Inertia: even the rational/ideological choice is discarded in favor
	// of staying put unless the price advantage clears
	// switching_threshold + inertia.
	inertiaHold := false
	advantage := 0.0
	if chosen != st.current {
		advantage = (prices[chosen] - prices[st.current]) /
			math.Max(prices[st.current], profitEpsilon)
		if advantage < p.SwitchingThreshold+p.Inertia {
			chosen = st.current
			inertiaHold = true
			advantage = 0
		}
	}

	oppCost := math.Max(prices[rational]-prices[chosen], 0)
	st.cumOppUSD += oppCost

	previous := st.current
	st.current = chosen
	switched := chosen != previous

	e.decisions = append(e.decisions, inter.EconomicDecision{
		Time:                         t,
		NodeID:                       p.NodeID,
		PriceUSD:                     prices,
		RationalFork:                 rational,
		ChosenFork:                   chosen,
		PreviousFork:                 previous,
		IdeologyOverride:             override,
		Forced:                       forced,
		InertiaHold:                  inertiaHold,
		Switched:                     switched,
		PriceAdvantagePct:            advantage,
		OpportunityCostUSD:           oppCost,
		CumulativeOpportunityCostUSD: st.cumOppUSD,
	})

	if switched {
		return &Switch{AgentID: p.NodeID, From: previous, To: chosen, Time: t}
	}
	return nil
}

// EconomicAllocation sums each node's weight (consensus weight, falling back
// to custody) into its chosen fork and returns percentages of the total.
// With zero total weight every fork reads 0.
func (e *EconomicEngine) EconomicAllocation() map[inter.Fork]float64 {
	alloc := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		alloc[f] = 0
	}
	total := 0.0
	for _, id := range e.order {
		st := e.nodes[id]
		w := st.profile.Weight()
		alloc[st.current] += w
		total += w
	}
	if total == 0 {
		return alloc
	}
	for f := range alloc {
		alloc[f] = alloc[f] / total * 100
	}
	return alloc
}

// TransactionalWeights splits the same per-fork weight by transaction
// velocity into fee-generating vs custodial percentages of the respective
// network totals.
func (e *EconomicEngine) TransactionalWeights() map[inter.Fork]TransactionalWeight {
	tx := make(map[inter.Fork]float64, len(e.forks))
	custody := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		tx[f] = 0
		custody[f] = 0
	}
	txTotal, custodyTotal := 0.0, 0.0
	for _, id := range e.order {
		st := e.nodes[id]
		w := st.profile.Weight()
		txPart := w * st.profile.TransactionVelocity
		tx[st.current] += txPart
		custody[st.current] += w - txPart
		txTotal += txPart
		custodyTotal += w - txPart
	}

	out := make(map[inter.Fork]TransactionalWeight, len(e.forks))
	for _, f := range e.forks {
		tw := TransactionalWeight{}
		if txTotal > 0 {
			tw.TransactionalPct = tx[f] / txTotal * 100
		}
		if custodyTotal > 0 {
			tw.CustodialPct = custody[f] / custodyTotal * 100
		}
		out[f] = tw
	}
	return out
}

// MiningAllocation sums solo-mining node hashrate by chosen fork; it feeds
// the difficulty oracle alongside pool hashrate.
func (e *EconomicEngine) MiningAllocation() map[inter.Fork]float64 {
	alloc := make(map[inter.Fork]float64, len(e.forks))
	for _, f := range e.forks {
		alloc[f] = 0
	}
	for _, id := range e.order {
		st := e.nodes[id]
		if st.profile.HashratePct > 0 {
			alloc[st.current] += st.profile.HashratePct
		}
	}
	return alloc
}

// MinersOn returns the solo-mining nodes currently on fork f with their
// hashrate weights, in roster order.
func (e *EconomicEngine) MinersOn(f inter.Fork) []WeightedAgent {
	var out []WeightedAgent
	for _, id := range e.order {
		st := e.nodes[id]
		if st.current == f && st.profile.HashratePct > 0 {
			out = append(out, WeightedAgent{ID: id, Weight: st.profile.HashratePct})
		}
	}
	return out
}

// CurrentFork returns a node's allocation, ForkNone for unknown nodes.
func (e *EconomicEngine) CurrentFork(nodeID string) inter.Fork {
	if st, ok := e.nodes[nodeID]; ok {
		return st.current
	}
	return inter.ForkNone
}

// Decisions returns the append-only decision log.
func (e *EconomicEngine) Decisions() []inter.EconomicDecision {
	return e.decisions
}

// NodeIDs returns the roster in registration order.
func (e *EconomicEngine) NodeIDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// NodeSnapshot is the exportable per-node state.
type NodeSnapshot struct {
	Profile                      inter.EconomicNodeProfile `json:"profile"`
	CurrentFork                  string                    `json:"current_fork"`
	LastEvaluation               inter.SimTime             `json:"last_evaluation"`
	CumulativeOpportunityCostUSD float64                   `json:"cumulative_opportunity_cost_usd"`
}

// EconomicEngineSnapshot is the engine's exportable view.
type EconomicEngineSnapshot struct {
	Config    forksim.StrategyRules    `json:"config"`
	Nodes     map[string]NodeSnapshot  `json:"nodes"`
	Decisions []inter.EconomicDecision `json:"decisions"`
}

// Snapshot exports config, per-node state and the full decision history.
func (e *EconomicEngine) Snapshot(names inter.ForkSet) EconomicEngineSnapshot {
	snap := EconomicEngineSnapshot{
		Config:    e.cfg,
		Nodes:     make(map[string]NodeSnapshot, len(e.nodes)),
		Decisions: e.decisions,
	}
	for id, st := range e.nodes {
		snap.Nodes[id] = NodeSnapshot{
			Profile:                      st.profile,
			CurrentFork:                  names.Name(st.current),
			LastEvaluation:               st.lastEval,
			CumulativeOpportunityCostUSD: st.cumOppUSD,
		}
	}
	return snap
}
