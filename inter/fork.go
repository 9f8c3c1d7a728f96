// Package inter defines the core data structures shared by the fork
// simulation subsystems: fork identifiers, agent profiles, decision records,
// price/fee observations and reorg bookkeeping types.
//
// Key concepts:
//   - Fork: a compact numeric identifier for one chain partition after a
//     contentious split (e.g. v27 vs v26)
//   - ForkSet: the ordered roster of partitions a simulation runs with,
//     mapping Fork ids to human-readable names
//   - SimTime: explicit simulation time; the engine never reads a wall clock
//
// Every mutating operation in the simulation is keyed by Fork and stamped
// with a SimTime, which makes runs deterministic and replayable.
package inter

import "fmt"

// Fork identifies one chain partition. The zero value ForkNone means
// "no fork" and doubles as the neutral (no preference) marker in agent
// profiles. Valid forks are numbered from 1 in ForkSet registration order,
// so a map keyed by Fork never needs string comparisons.
type Fork uint8

// ForkNone is the zero Fork: unknown partition or neutral preference.
const ForkNone Fork = 0

// The default two-partition split modeled by the reference scenarios.
// Additional partitions simply extend the ForkSet; nothing in the engine
// assumes exactly two.
const (
	ForkV27 Fork = iota + 1
	ForkV26
)

// ForkDescriptor ties a Fork id to its display name.
type ForkDescriptor struct {
	ID   Fork   `json:"id"`
	Name string `json:"name"`
}

// ForkSet is the ordered roster of partitions in a run. Order matters twice:
// it assigns Fork ids, and it breaks chainwork ties in favor of the
// first-registered fork.
type ForkSet []ForkDescriptor

// NewForkSet builds a ForkSet from partition names, assigning ids in order
// starting at 1.
func NewForkSet(names ...string) ForkSet {
	set := make(ForkSet, 0, len(names))
	for i, name := range names {
		set = append(set, ForkDescriptor{ID: Fork(i + 1), Name: name})
	}
	return set
}

// DefaultForkSet returns the canonical v27/v26 split.
func DefaultForkSet() ForkSet {
	return NewForkSet("v27", "v26")
}

// IDs returns the fork ids in registration order.
func (fs ForkSet) IDs() []Fork {
	ids := make([]Fork, 0, len(fs))
	for _, d := range fs {
		ids = append(ids, d.ID)
	}
	return ids
}

// Name resolves a fork id to its display name. Unknown ids render as
// "fork-N" rather than failing, since name lookups happen opportunistically
// in logging and export paths.
func (fs ForkSet) Name(f Fork) string {
	for _, d := range fs {
		if d.ID == f {
			return d.Name
		}
	}
	if f == ForkNone {
		return "none"
	}
	return fmt.Sprintf("fork-%d", f)
}

// ByName resolves a display name to a fork id, returning ForkNone when the
// name is not part of the set.
func (fs ForkSet) ByName(name string) Fork {
	for _, d := range fs {
		if d.Name == name {
			return d.ID
		}
	}
	return ForkNone
}

// Contains reports whether f is a member of the set.
func (fs ForkSet) Contains(f Fork) bool {
	for _, d := range fs {
		if d.ID == f {
			return true
		}
	}
	return false
}

// Validate checks the set for emptiness, duplicate names and duplicate ids.
func (fs ForkSet) Validate() error {
	if len(fs) == 0 {
		return fmt.Errorf("fork set is empty")
	}
	names := make(map[string]struct{}, len(fs))
	ids := make(map[Fork]struct{}, len(fs))
	for _, d := range fs {
		if d.ID == ForkNone {
			return fmt.Errorf("fork %q uses reserved id 0", d.Name)
		}
		if d.Name == "" {
			return fmt.Errorf("fork %d has an empty name", d.ID)
		}
		if _, ok := names[d.Name]; ok {
			return fmt.Errorf("duplicate fork name %q", d.Name)
		}
		if _, ok := ids[d.ID]; ok {
			return fmt.Errorf("duplicate fork id %d", d.ID)
		}
		names[d.Name] = struct{}{}
		ids[d.ID] = struct{}{}
	}
	return nil
}

// SimTime is a point in simulated time, in seconds since simulation start.
// Wall-clock seconds work well as units but nothing depends on that; the
// engine is equally valid driven by a virtual clock.
type SimTime float64

// Seconds returns the time as a plain float64.
func (t SimTime) Seconds() float64 { return float64(t) }
