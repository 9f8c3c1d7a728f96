package reorg

import (
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

var splitHash = common.HexToHash("0xdead")

func testRules() forksim.ReorgRules {
	return forksim.ReorgRules{PropagationWindow: 300}
}

func newTestOracle(t *testing.T, nodes ...string) *Oracle {
	t.Helper()
	o := New(testRules(), 100, splitHash)
	for _, n := range nodes {
		require.NoError(t, o.RegisterNode(n, inter.ForkV27))
	}
	return o
}

// TestRegisterNode rejects duplicates.
func TestRegisterNode(t *testing.T) {
	o := newTestOracle(t, "a")
	require.Error(t, o.RegisterNode("a", inter.ForkV26))
}

// TestRecordForkSwitch_depth: depth is the abandoned fork's height over the
// common ancestor.
func TestRecordForkSwitch_depth(t *testing.T) {
	o := newTestOracle(t, "a")
	o.SetForkHeight(inter.ForkV27, 107)

	ev := o.RecordForkSwitch("a", inter.ForkV27, inter.ForkV26, 10)
	require.Equal(t, 7, ev.Depth)
	require.Equal(t, inter.ForkV27, ev.FromFork)
	require.Equal(t, inter.ForkV26, ev.ToFork)
	require.Equal(t, splitHash, ev.LCAHash)

	// A fork still at the ancestor has zero reorg depth.
	o2 := newTestOracle(t, "b")
	ev = o2.RecordForkSwitch("b", inter.ForkV27, inter.ForkV26, 10)
	require.Equal(t, 0, ev.Depth)
}

// TestRecordForkSwitch_orphans: the node's own blocks on the abandoned side
// count once and are cleared.
func TestRecordForkSwitch_orphans(t *testing.T) {
	o := newTestOracle(t, "miner")
	o.RecordBlockAttribution("miner", inter.ForkV27, 101)
	o.RecordBlockAttribution("miner", inter.ForkV27, 102)

	ev := o.RecordForkSwitch("miner", inter.ForkV27, inter.ForkV26, 10)
	require.Equal(t, 2, ev.BlocksInvalidated)

	// Returning and leaving again must not double-count the same blocks.
	o.RecordForkSwitch("miner", inter.ForkV26, inter.ForkV27, 20)
	ev = o.RecordForkSwitch("miner", inter.ForkV27, inter.ForkV26, 30)
	require.Equal(t, 0, ev.BlocksInvalidated)

	m := o.NodeMetrics("miner")
	require.Equal(t, 2, m.BlocksMined)
	require.Equal(t, 2, m.BlocksOrphaned)
	require.Equal(t, 3, m.ReorgCount)
	require.InDelta(t, 1.0, o.OrphanRate("miner"), 1e-9)
}

// TestRecordBlockAttribution_implicitRegistration: unknown producers are
// registered on the fork they mined.
func TestRecordBlockAttribution_implicitRegistration(t *testing.T) {
	o := New(testRules(), 100, splitHash)
	o.RecordBlockAttribution("ghost", inter.ForkV26, 101)

	m := o.NodeMetrics("ghost")
	require.NotNil(t, m)
	require.Equal(t, 1, m.BlocksMined)
	require.Equal(t, 1, m.BlocksMinedPerFork[inter.ForkV26])
}

// TestIncidentClustering: switches to the same fork within the propagation
// window share one incident; a later switch opens a new one.
func TestIncidentClustering(t *testing.T) {
	o := newTestOracle(t, "a", "b", "c")
	o.SetForkHeight(inter.ForkV27, 105)

	o.RecordForkSwitch("a", inter.ForkV27, inter.ForkV26, 10)
	o.RecordForkSwitch("b", inter.ForkV27, inter.ForkV26, 200) // within 300s of 10
	require.Len(t, o.Incidents(), 1)
	require.Len(t, o.Incidents()[0].Nodes, 2)

	// 600s after the incident's last event: new incident.
	o.RecordForkSwitch("c", inter.ForkV27, inter.ForkV26, 800)
	require.Len(t, o.Incidents(), 2)

	// Opposite direction never joins: different winning fork.
	o.RecordForkSwitch("a", inter.ForkV26, inter.ForkV27, 810)
	require.Len(t, o.Incidents(), 3)

	for _, inc := range o.Incidents() {
		require.NotEmpty(t, inc.ID)
	}
}

// TestTotalReorgMass sums event depths.
func TestTotalReorgMass(t *testing.T) {
	o := newTestOracle(t, "a", "b")
	o.SetForkHeight(inter.ForkV27, 103) // depth 3
	o.RecordForkSwitch("a", inter.ForkV27, inter.ForkV26, 10)
	o.SetForkHeight(inter.ForkV27, 105) // depth 5
	o.RecordForkSwitch("b", inter.ForkV27, inter.ForkV26, 20)

	require.Equal(t, 8, o.TotalReorgMass())
}

// TestConsensusStress verifies the penetration-weighted normalization on a
// hand-computed case.
func TestConsensusStress(t *testing.T) {
	o := newTestOracle(t, "a", "b", "c", "d")
	require.Equal(t, 0.0, o.ConsensusStress())

	o.SetForkHeight(inter.ForkV27, 104) // depth 4 per event
	o.RecordForkSwitch("a", inter.ForkV27, inter.ForkV26, 10)
	o.RecordForkSwitch("b", inter.ForkV27, inter.ForkV26, 20)

	// One incident: 2 of 4 nodes, mass 8 -> 0.5 * 8 / 4 = 1.0
	require.InDelta(t, 1.0, o.ConsensusStress(), 1e-9)
}

// TestReunionReorg projects the merge cost without mutating anything.
func TestReunionReorg(t *testing.T) {
	require := require.New(t)
	o := newTestOracle(t, "a", "b")
	require.NoError(o.RegisterNode("c", inter.ForkV26))

	o.RecordBlockAttribution("c", inter.ForkV26, 101)
	o.RecordBlockAttribution("c", inter.ForkV26, 102)
	o.SetForkHeight(inter.ForkV27, 110)

	// v27 carries more work: v26 loses, its 2 blocks over the ancestor die.
	proj := o.ReunionReorg(50, inter.ForkV27, 20, inter.ForkV26)
	require.Equal(inter.ForkV26, proj.LosingFork)
	require.Equal(inter.ForkV27, proj.WinningFork)
	require.Equal(2, proj.Depth)
	require.Equal([]string{"c"}, proj.NodesOnLoser)
	require.Equal(2, proj.BlocksInvalidated)

	// Ties favor the first argument.
	proj = o.ReunionReorg(50, inter.ForkV26, 50, inter.ForkV27)
	require.Equal(inter.ForkV27, proj.LosingFork)

	// Projection is pure: nothing was recorded.
	require.Empty(o.Events())
	require.Empty(o.Incidents())
}

// TestSnapshot keys everything by fork and node names.
func TestSnapshot(t *testing.T) {
	o := newTestOracle(t, "a")
	o.SetForkHeight(inter.ForkV27, 105)
	o.RecordForkSwitch("a", inter.ForkV27, inter.ForkV26, 10)

	snap := o.Snapshot(inter.DefaultForkSet())
	require.Equal(t, idx.Block(100), snap.LCAHeight)
	require.Equal(t, idx.Block(105), snap.ForkHeights["v27"])
	require.Equal(t, "v26", snap.NodeForks["a"])
	require.Equal(t, 5, snap.TotalReorgMass)
	require.Len(t, snap.Events, 1)
}
