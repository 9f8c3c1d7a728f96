package inter

import (
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
)

// ReorgEvent records one agent abandoning a fork. Depth is measured from the
// abandoned fork's tip back to the last common ancestor, and
// BlocksInvalidated counts the blocks this agent itself mined on the
// abandoned side since the split.
type ReorgEvent struct {
	Time   SimTime `json:"time"`
	NodeID string  `json:"node_id"`

	LCAHeight idx.Block   `json:"lca_height"`
	LCAHash   common.Hash `json:"lca_hash"`

	Depth    int  `json:"depth"`
	FromFork Fork `json:"fork_old"`
	ToFork   Fork `json:"fork_new"`

	BlocksInvalidated int `json:"blocks_invalidated"`
}

// ForkIncident clusters ReorgEvents that share the same split point and
// winning fork within a propagation window. Incidents are only ever appended
// to, never rewritten.
type ForkIncident struct {
	ID          string      `json:"id"`
	LCAHash     common.Hash `json:"lca_hash"`
	WinningFork Fork        `json:"winning_fork"`

	FirstSeen SimTime `json:"first_seen"`
	LastSeen  SimTime `json:"last_seen"`

	Events []ReorgEvent `json:"events"`

	// Nodes is the set of distinct agents involved, for penetration math.
	Nodes map[string]bool `json:"nodes"`
}

// ReorgMass is the total number of blocks invalidated across the incident's
// member events, measured as the sum of event depths.
func (i *ForkIncident) ReorgMass() int {
	mass := 0
	for _, ev := range i.Events {
		mass += ev.Depth
	}
	return mass
}

// Penetration is the fraction of all simulated agents touched by this
// incident.
func (i *ForkIncident) Penetration(totalNodes int) float64 {
	if totalNodes == 0 {
		return 0
	}
	return float64(len(i.Nodes)) / float64(totalNodes)
}

// NodeMetrics aggregates per-agent chain statistics. All counters are
// monotonically non-decreasing.
type NodeMetrics struct {
	BlocksMined        int          `json:"blocks_mined"`
	BlocksMinedPerFork map[Fork]int `json:"blocks_mined_per_fork"`
	BlocksOrphaned     int          `json:"blocks_orphaned"`
	TotalExposure      int          `json:"total_exposure"`
	ReorgCount         int          `json:"reorg_count"`
}

// NewNodeMetrics returns zeroed metrics with the per-fork map allocated.
func NewNodeMetrics() *NodeMetrics {
	return &NodeMetrics{BlocksMinedPerFork: make(map[Fork]int)}
}

// OrphanRate is blocks orphaned over blocks mined, 0.0 when nothing was
// mined.
func (m *NodeMetrics) OrphanRate() float64 {
	if m.BlocksMined == 0 {
		return 0
	}
	return float64(m.BlocksOrphaned) / float64(m.BlocksMined)
}
