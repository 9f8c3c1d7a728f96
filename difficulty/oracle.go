// Package difficulty tracks per-fork difficulty, cumulative chainwork and
// probabilistic block timing for a contentious chain split.
//
// The oracle is the leaf of the simulation's dependency graph: it consumes
// only hashrate shares and simulated time, and everything else (price, fees,
// agent strategies) reads chain state back out of it through accessors.
//
// Block production is sampled, not scheduled. For each tick the expected
// number of blocks on a fork is
//
//	tick_interval / (target_interval * difficulty / hashrate_share)
//
// and the oracle emits floor(expected) guaranteed blocks plus one more with
// probability equal to the fractional remainder. This keeps the model valid
// for sub-second target intervals where several blocks land in one tick.
package difficulty

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// RetargetEvent describes one difficulty change, either a periodic retarget
// or an emergency adjustment.
type RetargetEvent struct {
	Time          inter.SimTime `json:"time"`
	Fork          inter.Fork    `json:"fork"`
	Height        idx.Block     `json:"height"`
	OldDifficulty float64       `json:"old_difficulty"`
	NewDifficulty float64       `json:"new_difficulty"`
	Emergency     bool          `json:"emergency"`

	// ActualSeconds and TargetSeconds are only meaningful for periodic
	// retargets: the measured vs intended duration of the retarget window.
	ActualSeconds float64 `json:"actual_seconds,omitempty"`
	TargetSeconds float64 `json:"target_seconds,omitempty"`
}

// forkState is the difficulty oracle's exclusively-owned per-fork state.
// Nothing outside this package mutates it.
type forkState struct {
	difficulty          float64
	blocksSinceRetarget int
	chainwork           float64
	blocksMined         int
	height              idx.Block
	startHeight         idx.Block
	lastBlockTime       inter.SimTime
	lastRetargetTime    inter.SimTime
	registeredAt        inter.SimTime
}

// Oracle owns the difficulty state of every registered fork.
type Oracle struct {
	cfg forksim.DifficultyRules

	// order preserves registration order for tie-breaking in WinningFork.
	order  []inter.Fork
	states map[inter.Fork]*forkState

	rng *rand.Rand

	retargets []RetargetEvent
}

// New creates an oracle from validated rules and a deterministic RNG.
func New(cfg forksim.DifficultyRules, rng *rand.Rand) *Oracle {
	return &Oracle{
		cfg:    cfg,
		states: make(map[inter.Fork]*forkState),
		rng:    rng,
	}
}

// InitializeFork registers a fork at the given starting height. Forks are
// created once at simulation start and never destroyed.
func (o *Oracle) InitializeFork(f inter.Fork, height idx.Block, t inter.SimTime) error {
	if _, ok := o.states[f]; ok {
		return fmt.Errorf("fork %d already initialized", f)
	}
	o.states[f] = &forkState{
		difficulty:       o.cfg.InitialDifficulty,
		height:           height,
		startHeight:      height,
		lastBlockTime:    t,
		lastRetargetTime: t,
		registeredAt:     t,
	}
	o.order = append(o.order, f)
	return nil
}

// ExpectedInterval returns the expected seconds between blocks on f at the
// given hashrate share (percent of total network hashrate). The share is
// floored at forksim.MinHashrateShare so a deserted fork slows to a crawl
// instead of dividing by zero.
func (o *Oracle) ExpectedInterval(f inter.Fork, hashratePct float64) float64 {
	st, ok := o.states[f]
	if !ok {
		return math.Inf(1)
	}
	share := math.Max(hashratePct/100, forksim.MinHashrateShare)
	return o.cfg.TargetBlockInterval * (st.difficulty / share)
}

// BlocksToMine samples how many blocks fork f produces during one tick of
// tickInterval simulated seconds at the given hashrate share. Always >= 0.
func (o *Oracle) BlocksToMine(f inter.Fork, hashratePct, tickInterval float64) int {
	interval := o.ExpectedInterval(f, hashratePct)
	if math.IsInf(interval, 1) || interval <= 0 {
		return 0
	}
	expected := tickInterval / interval
	if expected < 1 {
		if o.rng.Float64() < expected {
			return 1
		}
		return 0
	}
	blocks := int(math.Floor(expected))
	if o.rng.Float64() < expected-math.Floor(expected) {
		blocks++
	}
	return blocks
}

// RecordBlock accounts one produced block on fork f at the reported height:
// chainwork grows by the current difficulty (chainwork, not block count, is
// the fork-weight metric), and every RetargetInterval blocks the difficulty
// retargets. Returns the retarget event when one fired.
func (o *Oracle) RecordBlock(f inter.Fork, t inter.SimTime, height idx.Block) *RetargetEvent {
	st, ok := o.states[f]
	if !ok {
		return nil
	}
	st.blocksMined++
	st.blocksSinceRetarget++
	st.chainwork += st.difficulty
	st.lastBlockTime = t
	if height > st.height {
		st.height = height
	}

	if st.blocksSinceRetarget < o.cfg.RetargetInterval {
		return nil
	}
	return o.retarget(f, st, t)
}

// retarget applies the periodic adjustment: scale by target/actual window
// duration, clamped to [1/max_factor, max_factor], floored at minimum
// difficulty.
func (o *Oracle) retarget(f inter.Fork, st *forkState, t inter.SimTime) *RetargetEvent {
	targetSeconds := float64(o.cfg.RetargetInterval) * o.cfg.TargetBlockInterval
	actualSeconds := t.Seconds() - st.lastRetargetTime.Seconds()

	// A zero-length window means the whole period landed inside one tick;
	// that pegs the adjustment at the clamp instead of dividing by zero.
	factor := o.cfg.MaxAdjustmentFactor
	if actualSeconds > 0 {
		factor = targetSeconds / actualSeconds
		factor = math.Min(factor, o.cfg.MaxAdjustmentFactor)
		factor = math.Max(factor, 1/o.cfg.MaxAdjustmentFactor)
	}

	old := st.difficulty
	st.difficulty = math.Max(old*factor, o.cfg.MinDifficulty)
	st.blocksSinceRetarget = 0
	st.lastRetargetTime = t

	ev := RetargetEvent{
		Time:          t,
		Fork:          f,
		Height:        st.height,
		OldDifficulty: old,
		NewDifficulty: st.difficulty,
		ActualSeconds: actualSeconds,
		TargetSeconds: targetSeconds,
	}
	o.retargets = append(o.retargets, ev)
	return &ev
}

// ApplyEmergencyAdjustment implements the optional EDA: when fork f has not
// produced a block for EDAThreshold target intervals, its difficulty is cut
// by EDAReduction, independent of the periodic retarget. Returns the event
// when a cut fired.
func (o *Oracle) ApplyEmergencyAdjustment(f inter.Fork, now inter.SimTime) *RetargetEvent {
	if !o.cfg.EDAEnabled {
		return nil
	}
	st, ok := o.states[f]
	if !ok {
		return nil
	}
	stale := now.Seconds() - st.lastBlockTime.Seconds()
	if stale <= o.cfg.EDAThreshold*o.cfg.TargetBlockInterval {
		return nil
	}

	old := st.difficulty
	st.difficulty = math.Max(old*(1-o.cfg.EDAReduction), o.cfg.MinDifficulty)
	// Reset the stale clock so one dry spell yields one cut per threshold
	// period, not one per tick.
	st.lastBlockTime = now

	ev := RetargetEvent{
		Time:          now,
		Fork:          f,
		Height:        st.height,
		OldDifficulty: old,
		NewDifficulty: st.difficulty,
		Emergency:     true,
	}
	o.retargets = append(o.retargets, ev)
	return &ev
}

// WinningFork returns the fork with the highest cumulative chainwork along
// with the winner's and best loser's work. Ties retain the first-registered
// fork. With fewer than two forks the loser work is zero.
func (o *Oracle) WinningFork() (inter.Fork, float64, float64) {
	var winner inter.Fork
	winnerWork := math.Inf(-1)
	for _, f := range o.order {
		if work := o.states[f].chainwork; work > winnerWork {
			winner = f
			winnerWork = work
		}
	}
	if winner == inter.ForkNone {
		return inter.ForkNone, 0, 0
	}
	loserWork := 0.0
	for _, f := range o.order {
		if f == winner {
			continue
		}
		if work := o.states[f].chainwork; work > loserWork {
			loserWork = work
		}
	}
	return winner, winnerWork, loserWork
}

// Difficulty returns fork f's current difficulty, 0.0 for unknown forks.
func (o *Oracle) Difficulty(f inter.Fork) float64 {
	if st, ok := o.states[f]; ok {
		return st.difficulty
	}
	return 0
}

// Chainwork returns fork f's cumulative chainwork, 0.0 for unknown forks.
func (o *Oracle) Chainwork(f inter.Fork) float64 {
	if st, ok := o.states[f]; ok {
		return st.chainwork
	}
	return 0
}

// Height returns fork f's best height, 0 for unknown forks.
func (o *Oracle) Height(f inter.Fork) idx.Block {
	if st, ok := o.states[f]; ok {
		return st.height
	}
	return 0
}

// BlocksMined returns how many blocks fork f has produced since the split.
func (o *Oracle) BlocksMined(f inter.Fork) int {
	if st, ok := o.states[f]; ok {
		return st.blocksMined
	}
	return 0
}

// ChainWeight returns fork f's share of total chainwork in [0,1]. Before any
// block exists every registered fork weighs equally.
func (o *Oracle) ChainWeight(f inter.Fork) float64 {
	st, ok := o.states[f]
	if !ok {
		return 0
	}
	total := 0.0
	for _, other := range o.states {
		total += other.chainwork
	}
	if total == 0 {
		if len(o.order) == 0 {
			return 0
		}
		return 1 / float64(len(o.order))
	}
	return st.chainwork / total
}

// Forks returns the registered forks in registration order.
func (o *Oracle) Forks() []inter.Fork {
	out := make([]inter.Fork, len(o.order))
	copy(out, o.order)
	return out
}

// ForkSnapshot is the exportable view of one fork's difficulty state.
type ForkSnapshot struct {
	Difficulty          float64       `json:"current_difficulty"`
	BlocksSinceRetarget int           `json:"blocks_since_retarget"`
	Chainwork           float64       `json:"cumulative_chainwork"`
	BlocksMined         int           `json:"blocks_mined"`
	Height              idx.Block     `json:"height"`
	StartHeight         idx.Block     `json:"start_height"`
	LastBlockTime       inter.SimTime `json:"last_block_time"`
	LastRetargetTime    inter.SimTime `json:"last_retarget_time"`
}

// Snapshot exports config, per-fork state (keyed by fork name) and the full
// retarget history as a JSON-serializable structure.
type Snapshot struct {
	Config    forksim.DifficultyRules `json:"config"`
	Forks     map[string]ForkSnapshot `json:"forks"`
	Retargets []RetargetEvent         `json:"retargets"`
}

// Snapshot builds the export view. Histories are append-only, so exporting
// mid-run is always safe in a single-threaded host.
func (o *Oracle) Snapshot(names inter.ForkSet) Snapshot {
	snap := Snapshot{
		Config:    o.cfg,
		Forks:     make(map[string]ForkSnapshot, len(o.states)),
		Retargets: o.retargets,
	}
	for f, st := range o.states {
		snap.Forks[names.Name(f)] = ForkSnapshot{
			Difficulty:          st.difficulty,
			BlocksSinceRetarget: st.blocksSinceRetarget,
			Chainwork:           st.chainwork,
			BlocksMined:         st.blocksMined,
			Height:              st.height,
			StartHeight:         st.startHeight,
			LastBlockTime:       st.lastBlockTime,
			LastRetargetTime:    st.lastRetargetTime,
		}
	}
	return snap
}
