package engine

import (
	"github.com/sugawarayuuta/sonnet"

	"github.com/rony4d/go-forksim/difficulty"
	"github.com/rony4d/go-forksim/fee"
	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
	"github.com/rony4d/go-forksim/price"
	"github.com/rony4d/go-forksim/reorg"
	"github.com/rony4d/go-forksim/strategy"
)

// Snapshot aggregates every oracle's exportable view: configuration, current
// state and full histories. Field names are the export contract; report
// tooling reads the encoded form as plain nested maps and lists.
type Snapshot struct {
	Rules forksim.Rules `json:"rules"`
	Tick  int           `json:"tick"`
	Time  inter.SimTime `json:"time"`

	WinningFork string  `json:"winning_fork"`
	WinnerWork  float64 `json:"winner_work"`
	LoserWork   float64 `json:"loser_work"`

	Difficulty difficulty.Snapshot             `json:"difficulty"`
	Price      price.Snapshot                  `json:"price"`
	Fee        fee.Snapshot                    `json:"fee"`
	Pools      strategy.PoolEngineSnapshot     `json:"mining_pools"`
	Economy    strategy.EconomicEngineSnapshot `json:"economic_nodes"`
	Reorg      reorg.Snapshot                  `json:"reorg"`
}

// Snapshot captures the whole simulation state. Histories are append-only,
// so this is safe at any tick boundary.
func (e *Engine) Snapshot() Snapshot {
	names := e.rules.Forks
	winner, winnerWork, loserWork := e.diff.WinningFork()
	return Snapshot{
		Rules:       e.rules,
		Tick:        e.tick,
		Time:        e.now,
		WinningFork: names.Name(winner),
		WinnerWork:  winnerWork,
		LoserWork:   loserWork,
		Difficulty:  e.diff.Snapshot(names),
		Price:       e.price.Snapshot(names),
		Fee:         e.fee.Snapshot(names),
		Pools:       e.pools.Snapshot(names),
		Economy:     e.econ.Snapshot(names),
		Reorg:       e.reorg.Snapshot(names),
	}
}

// Encode marshals the snapshot. Histories grow with run length, so this
// uses sonnet's drop-in encoder rather than encoding/json.
func (s Snapshot) Encode() ([]byte, error) {
	return sonnet.MarshalIndent(s, "", "  ")
}
