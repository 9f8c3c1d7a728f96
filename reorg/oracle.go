// Package reorg tracks the chain-level fallout of agents switching forks.
//
// Every fork switch is recorded as a ReorgEvent whose depth is the abandoned
// fork's height over the last common ancestor; events sharing a split point
// and winning fork within a propagation window cluster into ForkIncidents.
// From those the oracle derives per-node orphan rates, total reorg mass and
// a penetration-weighted consensus stress score.
//
// The oracle is pure bookkeeping: it never influences block production or
// agent decisions, and the reunion projection is a non-mutating what-if.
package reorg

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// ReunionProjection is the what-if cost of the two partitions merging now:
// the chainwork loser is reorged away down to the common ancestor.
type ReunionProjection struct {
	LosingFork        inter.Fork `json:"losing_fork"`
	WinningFork       inter.Fork `json:"winning_fork"`
	Depth             int        `json:"depth"`
	NodesOnLoser      []string   `json:"nodes_on_loser"`
	BlocksInvalidated int        `json:"blocks_invalidated"`
}

// Oracle owns all reorg bookkeeping state.
type Oracle struct {
	cfg forksim.ReorgRules

	lcaHeight idx.Block
	lcaHash   common.Hash

	forkHeights map[inter.Fork]idx.Block

	// nodeBlocks tracks the heights each node mined per fork since the
	// split, for orphan accounting when the node abandons a fork.
	nodeBlocks map[string]map[inter.Fork][]idx.Block
	nodeForks  map[string]inter.Fork
	metrics    map[string]*inter.NodeMetrics
	nodeOrder  []string

	events    []inter.ReorgEvent
	incidents []*inter.ForkIncident
}

// New creates a reorg oracle anchored at the split point: the common
// ancestor height and its block hash.
func New(cfg forksim.ReorgRules, lcaHeight idx.Block, lcaHash common.Hash) *Oracle {
	return &Oracle{
		cfg:         cfg,
		lcaHeight:   lcaHeight,
		lcaHash:     lcaHash,
		forkHeights: make(map[inter.Fork]idx.Block),
		nodeBlocks:  make(map[string]map[inter.Fork][]idx.Block),
		nodeForks:   make(map[string]inter.Fork),
		metrics:     make(map[string]*inter.NodeMetrics),
	}
}

// RegisterNode declares an agent and its starting fork. Penetration and the
// reunion projection only see registered nodes.
func (o *Oracle) RegisterNode(nodeID string, start inter.Fork) error {
	if _, ok := o.nodeForks[nodeID]; ok {
		return fmt.Errorf("node %q already registered", nodeID)
	}
	o.nodeForks[nodeID] = start
	o.metrics[nodeID] = inter.NewNodeMetrics()
	o.nodeBlocks[nodeID] = make(map[inter.Fork][]idx.Block)
	o.nodeOrder = append(o.nodeOrder, nodeID)
	return nil
}

// SetForkHeight records fork f's best height after block production.
func (o *Oracle) SetForkHeight(f inter.Fork, height idx.Block) {
	if height > o.forkHeights[f] {
		o.forkHeights[f] = height
	}
}

// RecordBlockAttribution credits one mined block to a node on a fork.
// Unknown nodes are registered implicitly on that fork; the driver calls
// this opportunistically for every produced block.
func (o *Oracle) RecordBlockAttribution(nodeID string, f inter.Fork, height idx.Block) {
	if _, ok := o.nodeForks[nodeID]; !ok {
		_ = o.RegisterNode(nodeID, f)
	}
	o.nodeBlocks[nodeID][f] = append(o.nodeBlocks[nodeID][f], height)
	m := o.metrics[nodeID]
	m.BlocksMined++
	m.BlocksMinedPerFork[f]++
	o.SetForkHeight(f, height)
}

// RecordForkSwitch logs one agent abandoning oldFork for newFork at time t.
// Depth is the abandoned fork's height over the ancestor; the node's own
// blocks on the abandoned side count as orphaned and are cleared so a later
// return to that fork does not double-count them.
func (o *Oracle) RecordForkSwitch(nodeID string, oldFork, newFork inter.Fork, t inter.SimTime) inter.ReorgEvent {
	if _, ok := o.nodeForks[nodeID]; !ok {
		_ = o.RegisterNode(nodeID, oldFork)
	}

	depth := 0
	if h, ok := o.forkHeights[oldFork]; ok && h > o.lcaHeight {
		depth = int(h - o.lcaHeight)
	}
	orphaned := len(o.nodeBlocks[nodeID][oldFork])
	o.nodeBlocks[nodeID][oldFork] = nil

	m := o.metrics[nodeID]
	m.TotalExposure += depth
	m.BlocksOrphaned += orphaned
	m.ReorgCount++
	o.nodeForks[nodeID] = newFork

	ev := inter.ReorgEvent{
		Time:              t,
		NodeID:            nodeID,
		LCAHeight:         o.lcaHeight,
		LCAHash:           o.lcaHash,
		Depth:             depth,
		FromFork:          oldFork,
		ToFork:            newFork,
		BlocksInvalidated: orphaned,
	}
	o.events = append(o.events, ev)
	o.cluster(ev)
	return ev
}

// cluster folds an event into an open incident with the same split point and
// winning fork inside the propagation window, or opens a new one.
func (o *Oracle) cluster(ev inter.ReorgEvent) {
	for _, inc := range o.incidents {
		if inc.LCAHash == ev.LCAHash && inc.WinningFork == ev.ToFork &&
			ev.Time.Seconds()-inc.LastSeen.Seconds() <= o.cfg.PropagationWindow {
			inc.Events = append(inc.Events, ev)
			inc.Nodes[ev.NodeID] = true
			inc.LastSeen = ev.Time
			return
		}
	}
	o.incidents = append(o.incidents, &inter.ForkIncident{
		ID:          uuid.New().String(),
		LCAHash:     ev.LCAHash,
		WinningFork: ev.ToFork,
		FirstSeen:   ev.Time,
		LastSeen:    ev.Time,
		Events:      []inter.ReorgEvent{ev},
		Nodes:       map[string]bool{ev.NodeID: true},
	})
}

// TotalReorgMass is the sum of event depths over all recorded events.
func (o *Oracle) TotalReorgMass() int {
	mass := 0
	for _, ev := range o.events {
		mass += ev.Depth
	}
	return mass
}

// OrphanRate returns a node's orphaned/mined ratio, 0.0 for unknown nodes
// or nodes that mined nothing.
func (o *Oracle) OrphanRate(nodeID string) float64 {
	if m, ok := o.metrics[nodeID]; ok {
		return m.OrphanRate()
	}
	return 0
}

// ConsensusStress is the penetration-weighted, node-normalized sum of
// incident reorg masses.
func (o *Oracle) ConsensusStress() float64 {
	total := len(o.nodeForks)
	if total == 0 {
		return 0
	}
	stress := 0.0
	for _, inc := range o.incidents {
		stress += inc.Penetration(total) * float64(inc.ReorgMass()) / float64(total)
	}
	return stress
}

// NodeMetrics returns a copy of a node's metrics, nil for unknown nodes.
func (o *Oracle) NodeMetrics(nodeID string) *inter.NodeMetrics {
	m, ok := o.metrics[nodeID]
	if !ok {
		return nil
	}
	out := &inter.NodeMetrics{
		BlocksMined:        m.BlocksMined,
		BlocksMinedPerFork: make(map[inter.Fork]int, len(m.BlocksMinedPerFork)),
		BlocksOrphaned:     m.BlocksOrphaned,
		TotalExposure:      m.TotalExposure,
		ReorgCount:         m.ReorgCount,
	}
	for f, n := range m.BlocksMinedPerFork {
		out.BlocksMinedPerFork[f] = n
	}
	return out
}

// Events returns the append-only reorg event log.
func (o *Oracle) Events() []inter.ReorgEvent {
	return o.events
}

// Incidents returns the incident list. Incidents are only appended to, so
// callers must treat them as read-only.
func (o *Oracle) Incidents() []*inter.ForkIncident {
	return o.incidents
}

// ReunionReorg projects the cost of the partitions merging under the given
// chainwork standings: the lighter fork loses, its depth since the ancestor
// is the reorg depth, and every node still on it would be dragged through
// the reorg. Pure projection; nothing is mutated.
func (o *Oracle) ReunionReorg(workA float64, forkA inter.Fork, workB float64, forkB inter.Fork) ReunionProjection {
	winner, loser := forkA, forkB
	// Ties favor the first argument, mirroring first-registered-fork wins.
	if workB > workA {
		winner, loser = forkB, forkA
	}

	depth := 0
	if h, ok := o.forkHeights[loser]; ok && h > o.lcaHeight {
		depth = int(h - o.lcaHeight)
	}

	var stranded []string
	invalidated := 0
	for _, id := range o.nodeOrder {
		if o.nodeForks[id] == loser {
			stranded = append(stranded, id)
			invalidated += len(o.nodeBlocks[id][loser])
		}
	}
	return ReunionProjection{
		LosingFork:        loser,
		WinningFork:       winner,
		Depth:             depth,
		NodesOnLoser:      stranded,
		BlocksInvalidated: invalidated,
	}
}

// Snapshot is the oracle's exportable view.
type Snapshot struct {
	Config          forksim.ReorgRules            `json:"config"`
	LCAHeight       idx.Block                     `json:"lca_height"`
	LCAHash         common.Hash                   `json:"lca_hash"`
	ForkHeights     map[string]idx.Block          `json:"fork_heights"`
	NodeForks       map[string]string             `json:"node_forks"`
	NodeMetrics     map[string]*inter.NodeMetrics `json:"node_metrics"`
	Events          []inter.ReorgEvent            `json:"reorg_events"`
	Incidents       []*inter.ForkIncident         `json:"incidents"`
	TotalReorgMass  int                           `json:"total_reorg_mass"`
	ConsensusStress float64                       `json:"consensus_stress"`
}

// Snapshot exports the full bookkeeping state keyed by fork and node names.
func (o *Oracle) Snapshot(names inter.ForkSet) Snapshot {
	snap := Snapshot{
		Config:          o.cfg,
		LCAHeight:       o.lcaHeight,
		LCAHash:         o.lcaHash,
		ForkHeights:     make(map[string]idx.Block, len(o.forkHeights)),
		NodeForks:       make(map[string]string, len(o.nodeForks)),
		NodeMetrics:     make(map[string]*inter.NodeMetrics, len(o.metrics)),
		Events:          o.events,
		Incidents:       o.incidents,
		TotalReorgMass:  o.TotalReorgMass(),
		ConsensusStress: o.ConsensusStress(),
	}
	for f, h := range o.forkHeights {
		snap.ForkHeights[names.Name(f)] = h
	}
	for id, f := range o.nodeForks {
		snap.NodeForks[id] = names.Name(f)
	}
	for id := range o.metrics {
		snap.NodeMetrics[id] = o.NodeMetrics(id)
	}
	return snap
}
