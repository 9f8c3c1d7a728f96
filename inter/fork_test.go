package inter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestForkSet verifies id assignment, name lookup and the unknown-fork
// fallbacks used by logging paths.
func TestForkSet(t *testing.T) {
	require := require.New(t)

	set := DefaultForkSet()
	require.Equal([]Fork{ForkV27, ForkV26}, set.IDs())
	require.Equal("v27", set.Name(ForkV27))
	require.Equal("v26", set.Name(ForkV26))
	require.Equal("none", set.Name(ForkNone))
	require.Equal("fork-9", set.Name(Fork(9)))

	require.Equal(ForkV26, set.ByName("v26"))
	require.Equal(ForkNone, set.ByName("v99"))

	require.True(set.Contains(ForkV27))
	require.False(set.Contains(Fork(9)))
	require.False(set.Contains(ForkNone))
}

// TestForkSetValidate covers the malformed-set conditions.
func TestForkSetValidate(t *testing.T) {
	tests := []struct {
		name string
		set  ForkSet
		ok   bool
	}{
		{"default", DefaultForkSet(), true},
		{"three way", NewForkSet("a", "b", "c"), true},
		{"empty", ForkSet{}, false},
		{"reserved id", ForkSet{{ID: ForkNone, Name: "zero"}}, false},
		{"empty name", ForkSet{{ID: 1, Name: ""}}, false},
		{"duplicate name", ForkSet{{ID: 1, Name: "x"}, {ID: 2, Name: "x"}}, false},
		{"duplicate id", ForkSet{{ID: 1, Name: "x"}, {ID: 1, Name: "y"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestNodeProfileWeight verifies the documented consensus-weight fallback to
// custody.
func TestNodeProfileWeight(t *testing.T) {
	p := EconomicNodeProfile{CustodyBTC: 500}
	if got := p.Weight(); got != 500 {
		t.Errorf("Weight = %v, want custody fallback 500", got)
	}
	p.ConsensusWeight = 25
	if got := p.Weight(); got != 25 {
		t.Errorf("Weight = %v, want consensus weight 25", got)
	}
}

// TestForkIncidentMath verifies reorg mass and penetration.
func TestForkIncidentMath(t *testing.T) {
	inc := &ForkIncident{
		Events: []ReorgEvent{{Depth: 3}, {Depth: 5}},
		Nodes:  map[string]bool{"a": true, "b": true},
	}
	if got := inc.ReorgMass(); got != 8 {
		t.Errorf("ReorgMass = %d, want 8", got)
	}
	if got := inc.Penetration(4); got != 0.5 {
		t.Errorf("Penetration = %v, want 0.5", got)
	}
	if got := inc.Penetration(0); got != 0 {
		t.Errorf("Penetration(0) = %v, want 0", got)
	}
}

// TestNodeMetricsOrphanRate covers the nothing-mined guard.
func TestNodeMetricsOrphanRate(t *testing.T) {
	m := NewNodeMetrics()
	if got := m.OrphanRate(); got != 0 {
		t.Errorf("OrphanRate = %v, want 0 with no blocks", got)
	}
	m.BlocksMined = 10
	m.BlocksOrphaned = 4
	if got := m.OrphanRate(); got != 0.4 {
		t.Errorf("OrphanRate = %v, want 0.4", got)
	}
}
