package launcher

import (
	"fmt"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-forksim/forksim"
	"github.com/rony4d/go-forksim/integration"
	"github.com/rony4d/go-forksim/inter"
)

// Config aggregates everything the launcher needs to run one simulation.
type Config struct {
	Rules forksim.Rules
	Pools []inter.PoolProfile
	Nodes []inter.EconomicNodeProfile

	Ticks         int
	Manipulations []ManipulationSpec

	Logging    LoggingConfig
	ExportPath string
}

// LoggingConfig mirrors the log.* flags.
type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
}

// MakeConfig merges the rules preset, the optional scenario file, then CLI
// flag overrides, in that order of precedence (later wins).
func MakeConfig(ctx *cli.Context) (Config, error) {
	rules, err := forksim.RulesByName(ctx.GlobalString("rules"))
	if err != nil {
		return Config{}, err
	}

	roster, err := integration.RosterByName(ctx.GlobalString("roster"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Rules: rules,
		Pools: roster.Pools,
		Nodes: roster.Nodes,
		Ticks: ctx.GlobalInt("ticks"),
		Logging: LoggingConfig{
			Verbosity: ctx.GlobalInt("log.verbosity"),
			Format:    ctx.GlobalString("log.format"),
			Color:     ctx.GlobalBool("log.color"),
		},
		ExportPath: ctx.GlobalString("export"),
	}

	if path := ctx.GlobalString("scenario"); path != "" {
		if err := cfg.applyScenario(path); err != nil {
			return Config{}, err
		}
	}

	// Flags override the scenario file.
	if v := ctx.GlobalFloat64("tick.interval"); v > 0 {
		cfg.Rules.TickInterval = v
	}
	if v := ctx.GlobalInt64("seed"); v != 0 {
		cfg.Rules.Seed = v
	}

	if err := cfg.Rules.Validate(); err != nil {
		return Config{}, fmt.Errorf("rules: %w", err)
	}
	if err := cfg.Rules.ValidateRoster(cfg.Pools, cfg.Nodes); err != nil {
		return Config{}, fmt.Errorf("roster: %w", err)
	}
	return cfg, nil
}

// applyScenario layers a scenario file over the preset-derived config. A
// scenario may replace the fork set, the roster, the tick count and any rules
// field it names.
func (cfg *Config) applyScenario(path string) error {
	s, err := LoadScenario(path)
	if err != nil {
		return err
	}

	if err := s.ApplyRules(&cfg.Rules); err != nil {
		return err
	}
	forks, err := s.ForkSet()
	if err != nil {
		return err
	}
	if forks != nil {
		cfg.Rules.Forks = forks
	}

	if s.Roster != "" {
		roster, err := integration.RosterByName(s.Roster)
		if err != nil {
			return err
		}
		cfg.Pools = roster.Pools
		cfg.Nodes = roster.Nodes
	}
	if len(s.Pools) > 0 {
		if cfg.Pools, err = s.PoolProfiles(cfg.Rules.Forks); err != nil {
			return err
		}
	}
	if len(s.Nodes) > 0 {
		if cfg.Nodes, err = s.NodeProfiles(cfg.Rules.Forks); err != nil {
			return err
		}
	}
	if s.Ticks > 0 {
		cfg.Ticks = s.Ticks
	}
	cfg.Manipulations = s.Manipulations
	return nil
}
