// Package engine composes the fork simulation's oracles and agent engines
// into one tick-driven pipeline.
//
// The per-tick ordering is an explicit, load-bearing invariant:
//
//  1. agents re-evaluate allocations using last tick's prices and fees
//  2. hashrate and economic percentages are re-aggregated
//  3. each fork samples block production at the new hashrate split
//  4. produced blocks update chainwork/difficulty and block attribution,
//     then every allocation change is logged as a reorg event
//  5. prices and fees refresh from the updated heights and allocations
//
// The engine is single-threaded and cooperative: nothing blocks, all
// waiting is simulated-time comparison, and every mutating call carries an
// explicit timestamp so runs replay deterministically.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-forksim/difficulty"
	"github.com/rony4d/go-forksim/fee"
	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
	"github.com/rony4d/go-forksim/price"
	"github.com/rony4d/go-forksim/reorg"
	"github.com/rony4d/go-forksim/strategy"
)

// BlockHost is the narrow interface to whatever actually appends blocks.
// For every produce-a-block decision the host must append exactly one block
// to that fork's chain and report the resulting height and hash. The engine
// itself never mines or validates anything.
type BlockHost interface {
	ProduceBlock(f inter.Fork, producerID string, t inter.SimTime) (idx.Block, common.Hash, error)
}

// TickResult summarizes one pipeline step for the driver.
type TickResult struct {
	Time           inter.SimTime              `json:"time"`
	Tick           int                        `json:"tick"`
	BlocksProduced map[inter.Fork]int         `json:"blocks_produced"`
	Switches       []strategy.Switch          `json:"switches"`
	Retargets      []difficulty.RetargetEvent `json:"retargets"`
	Prices         map[inter.Fork]float64     `json:"prices"`
}

// Engine wires the oracles together and owns the simulation clock.
type Engine struct {
	rules forksim.Rules
	log   *logrus.Logger
	rng   *rand.Rand
	host  BlockHost

	diff  *difficulty.Oracle
	price *price.Oracle
	fee   *fee.Oracle
	pools *strategy.PoolEngine
	econ  *strategy.EconomicEngine
	reorg *reorg.Oracle

	ancestor idx.Block
	now      inter.SimTime
	tick     int
}

// New validates the rules and roster and assembles a ready-to-tick engine.
// A nil host gets an in-memory one; a nil logger gets the standard logger.
func New(rules forksim.Rules, pools []inter.PoolProfile, nodes []inter.EconomicNodeProfile, host BlockHost, log *logrus.Logger) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if err := rules.ValidateRoster(pools, nodes); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if host == nil {
		host = NewMemHost(rules.Forks, rules.StartHeight)
	}

	rng := rand.New(rand.NewSource(rules.Seed))
	forks := rules.Forks.IDs()

	diffOracle := difficulty.New(rules.Difficulty, rng)
	for _, f := range forks {
		if err := diffOracle.InitializeFork(f, rules.StartHeight, 0); err != nil {
			return nil, err
		}
	}

	priceOracle, err := price.New(rules.Price, forks)
	if err != nil {
		return nil, err
	}
	feeOracle := fee.New(rules.Fee, forks)

	poolEngine, err := strategy.NewPoolEngine(rules.Strategy, forks, pools, priceOracle, feeOracle)
	if err != nil {
		return nil, err
	}
	econEngine, err := strategy.NewEconomicEngine(rules.Strategy, forks, nodes, priceOracle)
	if err != nil {
		return nil, err
	}

	reorgOracle := reorg.New(rules.Reorg, rules.StartHeight, ancestorHash(rules))
	for _, p := range pools {
		if err := reorgOracle.RegisterNode(p.PoolID, p.InitialFork); err != nil {
			return nil, err
		}
	}
	for _, n := range nodes {
		if err := reorgOracle.RegisterNode(n.NodeID, n.InitialFork); err != nil {
			return nil, err
		}
	}
	for _, f := range forks {
		reorgOracle.SetForkHeight(f, rules.StartHeight)
	}

	return &Engine{
		rules: rules,
		log:   log,
		rng:   rng,
		host:  host,
		diff:  diffOracle,
		price: priceOracle,
		fee:   feeOracle,
		pools: poolEngine,
		econ:  econEngine,
		reorg: reorgOracle,

		ancestor: rules.StartHeight,
	}, nil
}

// ancestorHash derives the split point's hash deterministically from the
// rules, so independent runs of the same scenario agree on incident keys.
func ancestorHash(rules forksim.Rules) common.Hash {
	return blockHash("ancestor", rules.StartHeight)
}

// Step advances the internal clock by one tick interval and runs the
// pipeline.
func (e *Engine) Step() (TickResult, error) {
	return e.Tick(e.now + inter.SimTime(e.rules.TickInterval))
}

// Run executes n consecutive ticks and returns the last result.
func (e *Engine) Run(n int) (TickResult, error) {
	var last TickResult
	var err error
	for i := 0; i < n; i++ {
		if last, err = e.Step(); err != nil {
			return last, err
		}
	}
	return last, nil
}

// Tick runs one full pipeline step at simulated time t. Time must advance
// monotonically; the engine never reads a wall clock.
func (e *Engine) Tick(t inter.SimTime) (TickResult, error) {
	if t < e.now {
		return TickResult{}, fmt.Errorf("tick time %v precedes current time %v", t, e.now)
	}
	tickInterval := t.Seconds() - e.now.Seconds()
	if e.tick == 0 && tickInterval == 0 {
		tickInterval = e.rules.TickInterval
	}
	e.now = t
	e.tick++

	res := TickResult{
		Time:           t,
		Tick:           e.tick,
		BlocksProduced: make(map[inter.Fork]int),
	}

	// Phase 1: agent re-evaluation against last tick's prices/fees.
	res.Switches = append(e.pools.EvaluateAll(t), e.econ.EvaluateAll(t)...)

	// Phase 2: aggregation.
	hashAlloc := e.pools.MiningAllocation()
	for f, pct := range e.econ.MiningAllocation() {
		hashAlloc[f] += pct
	}
	econAlloc := e.econ.EconomicAllocation()
	txWeights := e.econ.TransactionalWeights()

	// Phase 3+4: block production, chain-state update, attribution.
	for _, f := range e.rules.Forks.IDs() {
		if ev := e.diff.ApplyEmergencyAdjustment(f, t); ev != nil {
			res.Retargets = append(res.Retargets, *ev)
			e.logRetarget(ev)
		}
		blocks := e.diff.BlocksToMine(f, hashAlloc[f], tickInterval)
		for i := 0; i < blocks; i++ {
			producer := e.sampleProducer(f)
			if producer == "" {
				// No agent is committed to this fork; the sampled block
				// has no one to mine it.
				continue
			}
			height, _, err := e.host.ProduceBlock(f, producer, t)
			if err != nil {
				return res, fmt.Errorf("host: produce block on %s: %w", e.rules.Forks.Name(f), err)
			}
			if ev := e.diff.RecordBlock(f, t, height); ev != nil {
				res.Retargets = append(res.Retargets, *ev)
				e.logRetarget(ev)
			}
			e.reorg.RecordBlockAttribution(producer, f, height)
			res.BlocksProduced[f]++
		}
	}

	// Phase 4 (cont.): reorg events for every allocation change.
	for _, sw := range res.Switches {
		ev := e.reorg.RecordForkSwitch(sw.AgentID, sw.From, sw.To, sw.Time)
		e.log.WithFields(logrus.Fields{
			"node":  sw.AgentID,
			"from":  e.rules.Forks.Name(sw.From),
			"to":    e.rules.Forks.Name(sw.To),
			"depth": ev.Depth,
		}).Info("fork switch")
	}

	// Phase 5: price/fee refresh from the updated chain state.
	heights := make(map[inter.Fork]idx.Block, len(e.rules.Forks))
	chainWeights := make(map[inter.Fork]float64, len(e.rules.Forks))
	for _, f := range e.rules.Forks.IDs() {
		heights[f] = e.diff.Height(f)
		chainWeights[f] = e.diff.ChainWeight(f)
	}
	res.Prices = e.price.UpdateFromState(t, heights, chainWeights, econAlloc, hashAlloc, e.ancestor)
	for _, f := range e.rules.Forks.IDs() {
		blocksPerHour := 0.0
		if interval := e.diff.ExpectedInterval(f, hashAlloc[f]); interval > 0 {
			blocksPerHour = 3600 / interval
		}
		e.fee.OrganicFee(t, f, blocksPerHour, econAlloc[f], txWeights[f].TransactionalPct)
	}

	e.log.WithFields(logrus.Fields{
		"tick":     e.tick,
		"time":     t,
		"blocks":   res.BlocksProduced,
		"switches": len(res.Switches),
	}).Debug("tick complete")
	return res, nil
}

// sampleProducer picks which agent mines the next block on fork f, weighted
// by hashrate across pools and solo miners committed to f.
func (e *Engine) sampleProducer(f inter.Fork) string {
	candidates := e.pools.AgentsOn(f)
	candidates = append(candidates, e.econ.MinersOn(f)...)
	total := 0.0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return ""
	}
	target := e.rng.Float64() * total
	acc := 0.0
	for _, c := range candidates {
		acc += c.Weight
		if target < acc {
			return c.ID
		}
	}
	return candidates[len(candidates)-1].ID
}

func (e *Engine) logRetarget(ev *difficulty.RetargetEvent) {
	e.log.WithFields(logrus.Fields{
		"fork":      e.rules.Forks.Name(ev.Fork),
		"old":       ev.OldDifficulty,
		"new":       ev.NewDifficulty,
		"emergency": ev.Emergency,
	}).Info("difficulty adjusted")
}

// Now returns the current simulated time.
func (e *Engine) Now() inter.SimTime { return e.now }

// Ticks returns how many pipeline steps have run.
func (e *Engine) Ticks() int { return e.tick }

// Rules returns the engine's validated configuration.
func (e *Engine) Rules() forksim.Rules { return e.rules }

// Difficulty exposes the difficulty oracle's read surface.
func (e *Engine) Difficulty() *difficulty.Oracle { return e.diff }

// Price exposes the price oracle's read surface.
func (e *Engine) Price() *price.Oracle { return e.price }

// Fee exposes the fee oracle, including the manipulation entry points the
// scenario driver calls between ticks.
func (e *Engine) Fee() *fee.Oracle { return e.fee }

// Pools exposes the mining-pool decision engine.
func (e *Engine) Pools() *strategy.PoolEngine { return e.pools }

// Economy exposes the economic-node decision engine.
func (e *Engine) Economy() *strategy.EconomicEngine { return e.econ }

// Reorg exposes the reorg bookkeeping oracle.
func (e *Engine) Reorg() *reorg.Oracle { return e.reorg }
