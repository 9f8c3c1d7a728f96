package launcher

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-forksim/engine"
	"github.com/rony4d/go-forksim/flags"
	"github.com/rony4d/go-forksim/inter"
)

var app = flags.NewApp()

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.ScenarioFlags()...)
	app.Flags = append(app.Flags, flags.ExportFlags()...)
	app.Action = run
}

// Launch parses flags and runs one simulation to completion.
func Launch(args []string) error {
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	cfg, err := MakeConfig(ctx)
	if err != nil {
		return err
	}
	log := makeLogger(cfg.Logging)

	sim, err := engine.New(cfg.Rules, cfg.Pools, cfg.Nodes, nil, log)
	if err != nil {
		return err
	}

	sched, err := makeSchedule(cfg, sim)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"rules": cfg.Rules.Name,
		"ticks": cfg.Ticks,
		"pools": len(cfg.Pools),
		"nodes": len(cfg.Nodes),
		"seed":  cfg.Rules.Seed,
	}).Info("simulation start")

	for i := 0; i < cfg.Ticks; i++ {
		sched.apply(sim, i)
		if _, err := sim.Step(); err != nil {
			return fmt.Errorf("tick %d: %w", i+1, err)
		}
	}

	logSummary(log, sim, sched)

	if cfg.ExportPath != "" {
		raw, err := sim.Snapshot().Encode()
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := os.WriteFile(cfg.ExportPath, raw, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		log.WithField("path", cfg.ExportPath).Info("snapshot written")
	}
	return nil
}

// schedule is the resolved manipulation timetable.
type schedule struct {
	items []scheduleItem
}

type scheduleItem struct {
	spec ManipulationSpec
	fork inter.Fork
}

// makeSchedule resolves manipulation specs against the fork set and registers
// their actors with the fee oracle at the pre-split base price.
func makeSchedule(cfg Config, sim *engine.Engine) (*schedule, error) {
	s := &schedule{}
	for _, m := range cfg.Manipulations {
		f := cfg.Rules.Forks.ByName(m.Fork)
		if f == inter.ForkNone {
			return nil, fmt.Errorf("manipulation actor %s: unknown fork %q", m.Actor, m.Fork)
		}
		sim.Fee().RegisterActor(m.Actor, m.HoldingsBTC, cfg.Rules.Price.BasePrice)
		s.items = append(s.items, scheduleItem{spec: m, fork: f})
	}
	return s, nil
}

// apply runs the timetable for one tick: active campaigns spend before the
// tick executes, expired ones clear their premium.
func (s *schedule) apply(sim *engine.Engine, tick int) {
	t := sim.Now()
	for _, it := range s.items {
		m := it.spec
		switch {
		case tick < m.StartTick:
		case m.StopTick > 0 && tick >= m.StopTick:
			if tick == m.StopTick {
				sim.Fee().ClearManipulation(it.fork)
			}
		default:
			sim.Fee().ApplyManipulation(t, it.fork, m.BTCPerTick, m.Blocks, m.Actor)
		}
	}
}

func logSummary(log *logrus.Logger, sim *engine.Engine, sched *schedule) {
	names := sim.Rules().Forks
	winner, winnerWork, loserWork := sim.Difficulty().WinningFork()

	fields := logrus.Fields{
		"ticks":        sim.Ticks(),
		"winning_fork": names.Name(winner),
		"winner_work":  winnerWork,
		"loser_work":   loserWork,
		"stress":       sim.Reorg().ConsensusStress(),
		"reorg_mass":   sim.Reorg().TotalReorgMass(),
	}
	for _, f := range names.IDs() {
		fields["price_"+names.Name(f)] = sim.Price().Price(f)
		fields["blocks_"+names.Name(f)] = sim.Difficulty().BlocksMined(f)
	}
	log.WithFields(fields).Info("simulation complete")

	for _, it := range sched.items {
		v := sim.Fee().ManipulationSustainability(sim.Price(), it.spec.Actor)
		log.WithFields(logrus.Fields{
			"actor":       it.spec.Actor,
			"sustainable": v.Sustainable,
			"ratio":       v.Ratio,
			"reason":      v.Reason,
		}).Info("manipulation verdict")
	}
}

// makeLogger maps the log.* flags onto a logrus logger.
func makeLogger(cfg LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	levels := []logrus.Level{
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
		logrus.DebugLevel,
		logrus.TraceLevel,
	}
	v := cfg.Verbosity
	if v < 0 {
		v = 0
	}
	if v >= len(levels) {
		v = len(levels) - 1
	}
	log.SetLevel(levels[v])

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{ForceColors: cfg.Color})
	}
	return log
}
