// Package fee models the per-fork fee market: the organic fee rate driven by
// block production and economic activity, deliberate fee manipulation on top
// of it, miner USD profitability, and the dual-token sustainability
// accounting that decides whether a manipulation campaign pays for itself.
//
// The organic rate separates custodial HODL weight from transactional
// weight: custody supports price but generates no fees, so when the caller
// supplies a transactional (fee-generating) percentage it takes precedence
// over the total economic percentage.
package fee

import (
	"math"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// PriceSource is the narrow read surface the fee oracle needs from the price
// oracle.
type PriceSource interface {
	Price(f inter.Fork) float64
}

// satsPerBTC converts BTC amounts into satoshis for fee-rate math.
const satsPerBTC = 1e8

// nominalBlocksPerHour anchors the organic fee model: the base rate holds at
// six blocks per hour, slower production raises fees proportionally.
const nominalBlocksPerHour = 6.0

// nominalActivityPct anchors the activity term: 50% of economic activity on
// a fork is fee-neutral.
const nominalActivityPct = 50.0

// Profitability is the per-block miner profit breakdown in USD.
type Profitability struct {
	Fork       inter.Fork `json:"fork"`
	FeeRate    float64    `json:"fee_rate"`    // sats/vB in effect
	FeeBTC     float64    `json:"fee_btc"`     // fees per block
	SubsidyBTC float64    `json:"subsidy_btc"` // fixed block subsidy
	RevenueUSD float64    `json:"revenue_usd"` // (fees+subsidy) * price
	CostUSD    float64    `json:"cost_usd"`    // mining cost per block
	ProfitUSD  float64    `json:"profit_usd"`  // revenue - cost
	PriceUSD   float64    `json:"price_usd"`   // token price used
}

// SustainabilityVerdict reports whether an actor's manipulation campaign has
// paid for itself so far. Sustainable requires the ratio to strictly exceed
// 1.0: appreciation exactly matching spend is not sustainable.
type SustainabilityVerdict struct {
	Actor             string  `json:"actor"`
	Sustainable       bool    `json:"sustainable"`
	Ratio             float64 `json:"sustainability_ratio"`
	PortfolioValueUSD float64 `json:"portfolio_value_usd"`
	InitialValueUSD   float64 `json:"initial_value_usd"`
	CumulativeCostUSD float64 `json:"cumulative_cost_usd"`
	Reason            string  `json:"reason,omitempty"`
}

// ManipulationRecord is one append-only manipulation history entry.
type ManipulationRecord struct {
	Time           inter.SimTime `json:"time"`
	Fork           inter.Fork    `json:"fork"`
	Actor          string        `json:"actor"`
	BTCSpent       float64       `json:"btc_spent"`
	BlocksInPeriod int           `json:"blocks_in_period"`
	Premium        float64       `json:"premium"` // sats/vB
	CostUSD        float64       `json:"cost_usd"`
}

// forkFees is the oracle's exclusively-owned per-fork fee state.
type forkFees struct {
	organicRate float64 // sats/vB, last computed
	premium     float64 // sats/vB from active manipulation
}

// actorState tracks a manipulator's holdings and spend. At fork time an
// actor holds equal BTC on both partitions, so the initial portfolio value
// is 2 * holdings * price0; sustainability is evaluated across BOTH forks'
// holdings, not the manipulated fork alone.
type actorState struct {
	holdings      map[inter.Fork]float64
	price0        float64
	initialValue  float64
	cumulativeUSD float64
}

// Oracle owns per-fork fee state and the manipulation actor registry.
type Oracle struct {
	cfg forksim.FeeRules

	order  []inter.Fork
	states map[inter.Fork]*forkFees
	actors map[string]*actorState

	history       []inter.FeePoint
	manipulations []ManipulationRecord
}

// New creates a fee oracle for the given forks.
func New(cfg forksim.FeeRules, forks []inter.Fork) *Oracle {
	o := &Oracle{
		cfg:    cfg,
		order:  append([]inter.Fork(nil), forks...),
		states: make(map[inter.Fork]*forkFees, len(forks)),
		actors: make(map[string]*actorState),
	}
	for _, f := range forks {
		o.states[f] = &forkFees{organicRate: cfg.BaseRate}
	}
	return o
}

// OrganicFee recomputes fork f's organic fee rate in sats/vB:
//
//	base_rate * (6/blocks_per_hour) * (activity/50) * mempool_pressure
//
// transactionalPct, when positive, replaces activityPct as the fee-driving
// share: custody-only weight supports price but produces no transactions.
// Appends a FeePoint and returns the effective rate (organic + premium).
func (o *Oracle) OrganicFee(t inter.SimTime, f inter.Fork, blocksPerHour, activityPct, transactionalPct float64) float64 {
	st, ok := o.states[f]
	if !ok {
		return 0
	}
	pct := activityPct
	if transactionalPct > 0 {
		pct = transactionalPct
	}
	// Degenerate-input guards: the simulation must keep advancing on a
	// stalled fork, so floor the production rate instead of dividing by
	// zero.
	bph := math.Max(blocksPerHour, forksim.MinHashrateShare)
	rate := o.cfg.BaseRate * (nominalBlocksPerHour / bph) * (pct / nominalActivityPct) * o.cfg.MempoolPressure
	if rate < 0 {
		rate = 0
	}
	st.organicRate = rate

	effective := rate + st.premium
	o.history = append(o.history, inter.FeePoint{
		Time:          t,
		Fork:          f,
		OrganicRate:   rate,
		Premium:       st.premium,
		EffectiveRate: effective,
		BlocksPerHour: blocksPerHour,
		ActivityPct:   pct,
	})
	return effective
}

// Fee returns fork f's current effective rate (organic + premium), 0.0 for
// unknown forks.
func (o *Oracle) Fee(f inter.Fork) float64 {
	if st, ok := o.states[f]; ok {
		return st.organicRate + st.premium
	}
	return 0
}

// Premium returns fork f's active manipulation premium in sats/vB.
func (o *Oracle) Premium(f inter.Fork) float64 {
	if st, ok := o.states[f]; ok {
		return st.premium
	}
	return 0
}

// RegisterActor creates a manipulation actor holding the given BTC amount on
// every fork at price0 (the split-time price). Registering twice resets the
// actor.
func (o *Oracle) RegisterActor(name string, holdingsBTC, price0 float64) {
	holdings := make(map[inter.Fork]float64, len(o.order))
	for _, f := range o.order {
		holdings[f] = holdingsBTC
	}
	o.actors[name] = &actorState{
		holdings:     holdings,
		price0:       price0,
		initialValue: float64(len(o.order)) * holdingsBTC * price0,
	}
}

// ApplyManipulation spends btcSpent worth of fees across blocksInPeriod
// blocks on fork f, raising that fork's premium by
//
//	btc_spent * 1e8 / (blocks * block_vbytes)  sats/vB
//
// The spend is deducted from the actor's holdings on the manipulated fork
// only and added to their cumulative campaign cost at the split-time price.
// Unknown actors and non-positive inputs are ignored: the driver calls this
// opportunistically.
func (o *Oracle) ApplyManipulation(t inter.SimTime, f inter.Fork, btcSpent float64, blocksInPeriod int, actor string) float64 {
	st, ok := o.states[f]
	if !ok || btcSpent <= 0 || blocksInPeriod <= 0 {
		return 0
	}
	a, ok := o.actors[actor]
	if !ok {
		return 0
	}

	premium := btcSpent * satsPerBTC / (float64(blocksInPeriod) * o.cfg.BlockVBytes)
	st.premium = premium

	a.holdings[f] = math.Max(a.holdings[f]-btcSpent, 0)
	costUSD := btcSpent * a.price0
	a.cumulativeUSD += costUSD

	o.manipulations = append(o.manipulations, ManipulationRecord{
		Time:           t,
		Fork:           f,
		Actor:          actor,
		BTCSpent:       btcSpent,
		BlocksInPeriod: blocksInPeriod,
		Premium:        premium,
		CostUSD:        costUSD,
	})
	return premium
}

// ClearManipulation drops fork f's active premium, modelling the end of a
// manipulation period.
func (o *Oracle) ClearManipulation(f inter.Fork) {
	if st, ok := o.states[f]; ok {
		st.premium = 0
	}
}

// MinerProfitability computes the per-block USD profit of mining fork f at
// the given subsidy, token price and per-block cost, using the fork's
// current effective fee rate.
func (o *Oracle) MinerProfitability(f inter.Fork, subsidyBTC, priceUSD, costUSD float64) Profitability {
	rate := o.Fee(f)
	feeBTC := rate * o.cfg.BlockVBytes / satsPerBTC
	revenue := (subsidyBTC + feeBTC) * priceUSD
	return Profitability{
		Fork:       f,
		FeeRate:    rate,
		FeeBTC:     feeBTC,
		SubsidyBTC: subsidyBTC,
		RevenueUSD: revenue,
		CostUSD:    costUSD,
		ProfitUSD:  revenue - costUSD,
		PriceUSD:   priceUSD,
	}
}

// ManipulationSustainability evaluates whether an actor's campaign has paid
// for itself: the appreciation of their whole dual-fork portfolio over its
// split-time value must strictly exceed the cumulative campaign cost.
func (o *Oracle) ManipulationSustainability(prices PriceSource, actor string) SustainabilityVerdict {
	a, ok := o.actors[actor]
	if !ok {
		return SustainabilityVerdict{
			Actor:  actor,
			Reason: "actor not initialized",
		}
	}
	if a.cumulativeUSD == 0 {
		return SustainabilityVerdict{
			Actor:             actor,
			InitialValueUSD:   a.initialValue,
			PortfolioValueUSD: o.portfolioValue(a, prices),
			Reason:            "no manipulation recorded",
		}
	}

	value := o.portfolioValue(a, prices)
	ratio := (value - a.initialValue) / a.cumulativeUSD
	return SustainabilityVerdict{
		Actor:             actor,
		Sustainable:       ratio > 1.0,
		Ratio:             ratio,
		PortfolioValueUSD: value,
		InitialValueUSD:   a.initialValue,
		CumulativeCostUSD: a.cumulativeUSD,
	}
}

func (o *Oracle) portfolioValue(a *actorState, prices PriceSource) float64 {
	value := 0.0
	for f, h := range a.holdings {
		value += h * prices.Price(f)
	}
	return value
}

// ActorHoldings returns a copy of the actor's per-fork holdings, nil for
// unknown actors.
func (o *Oracle) ActorHoldings(actor string) map[inter.Fork]float64 {
	a, ok := o.actors[actor]
	if !ok {
		return nil
	}
	out := make(map[inter.Fork]float64, len(a.holdings))
	for f, h := range a.holdings {
		out[f] = h
	}
	return out
}

// ForkSnapshot is the exportable per-fork fee state.
type ForkSnapshot struct {
	OrganicRate   float64 `json:"organic_rate"`
	Premium       float64 `json:"premium"`
	EffectiveRate float64 `json:"effective_rate"`
}

// ActorSnapshot is the exportable manipulation-actor state.
type ActorSnapshot struct {
	Holdings          map[string]float64 `json:"holdings_btc"`
	InitialValueUSD   float64            `json:"initial_value_usd"`
	CumulativeCostUSD float64            `json:"cumulative_cost_usd"`
}

// Snapshot is the oracle's exportable view.
type Snapshot struct {
	Config        forksim.FeeRules         `json:"config"`
	Forks         map[string]ForkSnapshot  `json:"forks"`
	Actors        map[string]ActorSnapshot `json:"actors"`
	History       []inter.FeePoint         `json:"history"`
	Manipulations []ManipulationRecord     `json:"manipulations"`
}

// Snapshot exports config, per-fork and per-actor state keyed by name, and
// the full fee/manipulation histories.
func (o *Oracle) Snapshot(names inter.ForkSet) Snapshot {
	snap := Snapshot{
		Config:        o.cfg,
		Forks:         make(map[string]ForkSnapshot, len(o.states)),
		Actors:        make(map[string]ActorSnapshot, len(o.actors)),
		History:       o.history,
		Manipulations: o.manipulations,
	}
	for f, st := range o.states {
		snap.Forks[names.Name(f)] = ForkSnapshot{
			OrganicRate:   st.organicRate,
			Premium:       st.premium,
			EffectiveRate: st.organicRate + st.premium,
		}
	}
	for name, a := range o.actors {
		holdings := make(map[string]float64, len(a.holdings))
		for f, h := range a.holdings {
			holdings[names.Name(f)] = h
		}
		snap.Actors[name] = ActorSnapshot{
			Holdings:          holdings,
			InitialValueUSD:   a.initialValue,
			CumulativeCostUSD: a.cumulativeUSD,
		}
	}
	return snap
}
