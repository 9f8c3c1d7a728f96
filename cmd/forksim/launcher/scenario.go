package launcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/inter"
)

// Scenario is the YAML document shape. Forks are referenced by name
// everywhere in the file; ids are assigned from the forks list. The rules
// node is kept raw and decoded over the selected preset, so a scenario only
// overrides the fields it mentions.
type Scenario struct {
	Name   string    `yaml:"name"`
	Rules  yaml.Node `yaml:"rules"`
	Ticks  int       `yaml:"ticks"`
	Roster string    `yaml:"roster"`

	Forks []ForkSpec `yaml:"forks"`
	Pools []PoolSpec `yaml:"pools"`
	Nodes []NodeSpec `yaml:"nodes"`

	Manipulations []ManipulationSpec `yaml:"manipulations"`
}

// ForkSpec names one side of the split.
type ForkSpec struct {
	ID   uint8  `yaml:"id"`
	Name string `yaml:"name"`
}

// PoolSpec mirrors inter.PoolProfile with fork names instead of ids.
type PoolSpec struct {
	PoolID                 string  `yaml:"pool_id"`
	HashratePct            float64 `yaml:"hashrate_pct"`
	ForkPreference         string  `yaml:"fork_preference"`
	IdeologyStrength       float64 `yaml:"ideology_strength"`
	ProfitabilityThreshold float64 `yaml:"profitability_threshold"`
	MaxLossUSD             float64 `yaml:"max_loss_usd"`
	MaxLossPct             float64 `yaml:"max_loss_pct"`
	InitialFork            string  `yaml:"initial_fork"`
}

// NodeSpec mirrors inter.EconomicNodeProfile with fork names instead of ids
// and string enums for type and activity.
type NodeSpec struct {
	NodeID              string  `yaml:"node_id"`
	Type                string  `yaml:"node_type"`
	Activity            string  `yaml:"activity_type"`
	TransactionVelocity float64 `yaml:"transaction_velocity"`
	ForkPreference      string  `yaml:"fork_preference"`
	IdeologyStrength    float64 `yaml:"ideology_strength"`
	SwitchingThreshold  float64 `yaml:"switching_threshold"`
	CustodyBTC          float64 `yaml:"custody_btc"`
	DailyVolumeBTC      float64 `yaml:"daily_volume_btc"`
	ConsensusWeight     float64 `yaml:"consensus_weight"`
	HashratePct         float64 `yaml:"hashrate_pct"`
	SwitchingCooldown   float64 `yaml:"switching_cooldown"`
	MaxLossPct          float64 `yaml:"max_loss_pct"`
	Inertia             float64 `yaml:"inertia"`
	InitialFork         string  `yaml:"initial_fork"`
}

// ManipulationSpec schedules a fee-manipulation campaign: the actor spends
// btc per period across the period's blocks on one fork, from start_tick
// until stop_tick (0 keeps it running to the end).
type ManipulationSpec struct {
	Actor       string  `yaml:"actor"`
	HoldingsBTC float64 `yaml:"holdings_btc"`
	Fork        string  `yaml:"fork"`
	BTCPerTick  float64 `yaml:"btc_per_tick"`
	Blocks      int     `yaml:"blocks"`
	StartTick   int     `yaml:"start_tick"`
	StopTick    int     `yaml:"stop_tick"`
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &s, nil
}

// ApplyRules decodes the scenario's raw rules node over the given rules, so
// only fields present in the document change.
func (s *Scenario) ApplyRules(rules *forksim.Rules) error {
	if s.Rules.IsZero() {
		return nil
	}
	if err := s.Rules.Decode(rules); err != nil {
		return fmt.Errorf("scenario rules: %w", err)
	}
	return nil
}

// ForkSet builds the scenario's fork set, or nil when the scenario keeps the
// preset's forks.
func (s *Scenario) ForkSet() (inter.ForkSet, error) {
	if len(s.Forks) == 0 {
		return nil, nil
	}
	set := make(inter.ForkSet, 0, len(s.Forks))
	for _, fs := range s.Forks {
		set = append(set, inter.ForkDescriptor{ID: inter.Fork(fs.ID), Name: fs.Name})
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("scenario forks: %w", err)
	}
	return set, nil
}

// PoolProfiles resolves the scenario's pool specs against the fork set.
func (s *Scenario) PoolProfiles(forks inter.ForkSet) ([]inter.PoolProfile, error) {
	out := make([]inter.PoolProfile, 0, len(s.Pools))
	for _, ps := range s.Pools {
		pref, err := resolveFork(forks, ps.ForkPreference, true)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", ps.PoolID, err)
		}
		initial, err := resolveFork(forks, ps.InitialFork, false)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", ps.PoolID, err)
		}
		out = append(out, inter.PoolProfile{
			PoolID:                 ps.PoolID,
			HashratePct:            ps.HashratePct,
			ForkPreference:         pref,
			IdeologyStrength:       ps.IdeologyStrength,
			ProfitabilityThreshold: ps.ProfitabilityThreshold,
			MaxLossUSD:             ps.MaxLossUSD,
			MaxLossPct:             ps.MaxLossPct,
			InitialFork:            initial,
		})
	}
	return out, nil
}

// NodeProfiles resolves the scenario's node specs against the fork set.
func (s *Scenario) NodeProfiles(forks inter.ForkSet) ([]inter.EconomicNodeProfile, error) {
	out := make([]inter.EconomicNodeProfile, 0, len(s.Nodes))
	for _, ns := range s.Nodes {
		pref, err := resolveFork(forks, ns.ForkPreference, true)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", ns.NodeID, err)
		}
		initial, err := resolveFork(forks, ns.InitialFork, false)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", ns.NodeID, err)
		}
		nodeType, err := parseNodeType(ns.Type)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", ns.NodeID, err)
		}
		activity, err := parseActivity(ns.Activity)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", ns.NodeID, err)
		}
		out = append(out, inter.EconomicNodeProfile{
			NodeID:              ns.NodeID,
			Type:                nodeType,
			Activity:            activity,
			TransactionVelocity: ns.TransactionVelocity,
			ForkPreference:      pref,
			IdeologyStrength:    ns.IdeologyStrength,
			SwitchingThreshold:  ns.SwitchingThreshold,
			CustodyBTC:          ns.CustodyBTC,
			DailyVolumeBTC:      ns.DailyVolumeBTC,
			ConsensusWeight:     ns.ConsensusWeight,
			HashratePct:         ns.HashratePct,
			SwitchingCooldown:   ns.SwitchingCooldown,
			MaxLossPct:          ns.MaxLossPct,
			Inertia:             ns.Inertia,
			InitialFork:         initial,
		})
	}
	return out, nil
}

// resolveFork maps a fork name to its id. Empty is only legal where ForkNone
// is (preferences); initial forks must name a real fork.
func resolveFork(forks inter.ForkSet, name string, allowEmpty bool) (inter.Fork, error) {
	if name == "" {
		if allowEmpty {
			return inter.ForkNone, nil
		}
		return inter.ForkNone, fmt.Errorf("missing fork name")
	}
	f := forks.ByName(name)
	if f == inter.ForkNone {
		return inter.ForkNone, fmt.Errorf("unknown fork %q", name)
	}
	return f, nil
}

func parseNodeType(s string) (inter.NodeType, error) {
	switch s {
	case "economic", "":
		return inter.NodeEconomic, nil
	case "user":
		return inter.NodeUser, nil
	default:
		return 0, fmt.Errorf("unknown node_type %q", s)
	}
}

func parseActivity(s string) (inter.ActivityType, error) {
	switch s {
	case "transactional":
		return inter.ActivityTransactional, nil
	case "custodial":
		return inter.ActivityCustodial, nil
	case "mixed", "":
		return inter.ActivityMixed, nil
	default:
		return 0, fmt.Errorf("unknown activity_type %q", s)
	}
}
