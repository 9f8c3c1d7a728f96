package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// ScenarioFlags holds knobs that select and shape a simulation run (rules
// preset, roster, scenario file, length, seed).

func ScenarioFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "scenario",
			Usage: "Path to a YAML scenario file (overrides presets field by field)",
		},
		cli.StringFlag{
			Name:  "rules",
			Usage: "Rules preset to start from (default|fastsim)",
			Value: "default",
		},
		cli.StringFlag{
			Name:  "roster",
			Usage: "Agent roster preset (tier-one|mainnet|economy)",
			Value: "tier-one",
		},
		cli.IntFlag{
			Name:  "ticks",
			Usage: "Number of simulation ticks to run",
			Value: 1000,
		},
		cli.Float64Flag{
			Name:  "tick.interval",
			Usage: "Simulated seconds per tick (0 keeps the preset value)",
		},
		cli.Int64Flag{
			Name:  "seed",
			Usage: "Deterministic RNG seed (0 keeps the preset value)",
		},
	}
}

// ExportFlags holds knobs for writing run results out.

func ExportFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "export",
			Usage: "Write the final simulation snapshot as JSON to this path",
		},
	}
}
