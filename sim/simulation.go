package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adversarial-coverage/adsim/sim/cmdline"
)

// ErrRunFinished is returned by FinishRun when the current run was already finalized.
var ErrRunFinished = errors.New("run already finished")

// Simulation owns one world and sequences a run: construction, ticks,
// terminal detection and statistics. It is not safe for concurrent use.
type Simulation struct {
	settings *Settings
	cfg      *Config
	rng      *PartitionedRNG
	gen      *HazardGenerator
	hazard   *HazardModel
	memory   *PolicyMemory
	commands *CommandRegistry

	world    *GridWorld
	stats    *RunStatistics
	scenario Scenario
	starts   map[int][2]int // fixed start cell per agent id
	runID    string
	finished bool

	scenarioCommands []string
	policyFactory    PolicyFactory
	hookOut          io.Writer
	inHook           bool
}

// SimulationOption customizes a Simulation at construction.
type SimulationOption func(*Simulation)

// WithPolicyFactory builds every agent's policy with f instead of resolving
// the configured selector through the registry.
func WithPolicyFactory(f PolicyFactory) SimulationOption {
	return func(s *Simulation) { s.policyFactory = f }
}

// WithHookOutput sets where the post-init hook command writes. The default
// discards its output.
func WithHookOutput(w io.Writer) SimulationOption {
	return func(s *Simulation) { s.hookOut = w }
}

// NewSimulation validates settings, builds the first run and registers the
// core commands. settings stays owned by the simulation; change it through
// SetSetting or call ReloadSettings after editing it directly.
func NewSimulation(settings *Settings, opts ...SimulationOption) (*Simulation, error) {
	cfg, err := NewConfig(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &Simulation{
		settings: settings,
		rng:      NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		memory:   NewPolicyMemory(),
		commands: NewCommandRegistry(),
		hookOut:  io.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.applyConfig(cfg); err != nil {
		return nil, err
	}
	s.registerCommands()
	if err := s.NewRun(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) Config() *Config             { return s.cfg }
func (s *Simulation) Settings() *Settings         { return s.settings }
func (s *Simulation) World() *GridWorld           { return s.world }
func (s *Simulation) Stats() *RunStatistics       { return s.stats }
func (s *Simulation) Scenario() Scenario          { return s.scenario }
func (s *Simulation) Memory() *PolicyMemory       { return s.memory }
func (s *Simulation) Commands() *CommandRegistry  { return s.commands }
func (s *Simulation) HazardModel() *HazardModel   { return s.hazard }
func (s *Simulation) RNG() *PartitionedRNG        { return s.rng }
func (s *Simulation) RunID() string               { return s.runID }
func (s *Simulation) RunFinished() bool           { return s.finished }
func (s *Simulation) IsTerminal() bool            { return s.scenario.IsTerminal(s.world) }
func (s *Simulation) Generator() *HazardGenerator { return s.gen }

// applyConfig swaps in cfg. The world of the current run keeps its size and
// agents; hazard factors and the batch size apply immediately.
func (s *Simulation) applyConfig(cfg *Config) error {
	gen, err := ParseHazardGenerator(cfg.Grid.GeneratorExpr)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.gen = gen
	if s.hazard == nil {
		s.hazard = NewHazardModel(cfg.Hazard.SpreadFactor, cfg.Hazard.DecayFactor, cfg.Hazard.Cap)
	} else {
		s.hazard.SpreadFactor = cfg.Hazard.SpreadFactor
		s.hazard.DecayFactor = cfg.Hazard.DecayFactor
		s.hazard.Cap = cfg.Hazard.Cap
	}
	if s.stats != nil {
		s.stats.SetBatchSize(cfg.Run.BatchSize)
	}
	return nil
}

// ReloadSettings rebuilds the Config from the current Settings. On error the
// previous Config stays in effect.
func (s *Simulation) ReloadSettings() error {
	cfg, err := NewConfig(s.settings)
	if err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}
	return s.applyConfig(cfg)
}

// SetSetting changes one setting and reloads. A value that parses but fails
// validation is rolled back.
func (s *Simulation) SetSetting(key, raw string) error {
	old, err := s.settings.Format(key)
	if err != nil {
		return err
	}
	if err := s.settings.Set(key, raw); err != nil {
		return err
	}
	if err := s.ReloadSettings(); err != nil {
		if rerr := s.settings.Set(key, old); rerr != nil {
			logrus.Errorf("restoring %s: %v", key, rerr)
		}
		return err
	}
	return nil
}

// NewRun builds a fresh world with fresh statistics. The batch window restarts.
func (s *Simulation) NewRun() error {
	stats := NewRunStatistics(s.cfg.Run.BatchSize)
	if err := s.startRun(stats); err != nil {
		return err
	}
	logrus.Debugf("new run %s: %dx%d grid, %d agents", s.runID, s.world.Width(), s.world.Height(), len(s.world.Agents()))
	return nil
}

// NextRun builds a fresh world but keeps the batch window, as auto-restart does.
func (s *Simulation) NextRun() error {
	return s.startRun(s.stats)
}

func (s *Simulation) startRun(stats *RunStatistics) error {
	cfg := s.cfg
	scenario, err := NewScenario(cfg)
	if err != nil {
		return err
	}
	w := NewGridWorld(cfg.Grid.Width, cfg.Grid.Height)
	w.Regenerate(cfg.Grid.Size, s.gen, cfg.Hazard.Cap, s.rng.ForSubsystem(SubsystemGenerator))
	scenario.Prepare(w, s.rng.ForSubsystem(SubsystemScenario))

	rules := ActionRules{
		Breakable: cfg.Agents.Breakable,
		Reward:    scenario.Reward(),
		Recorder:  stats,
		RNG:       s.rng.ForSubsystem(SubsystemHazard),
	}
	for i := 0; i < cfg.Agents.Count; i++ {
		a := NewAgent(i, i%w.Width(), (i/w.Width())%w.Height())
		env := PolicyEnv{
			Sensor:   NewSensor(w, a),
			Actuator: NewActuator(w, a, rules),
			RNG:      s.rng.ForSubsystem(SubsystemAgentPolicy(i)),
			Config:   cfg,
			Scenario: scenario,
			Memory:   s.memory,
		}
		p, err := s.newPolicy(env)
		if err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
		a.Policy = p
		w.AddAgent(a)
	}
	if err := w.Init(cfg.Agents.Placement, s.rng.ForSubsystem(SubsystemPlacement)); err != nil {
		return err
	}

	s.world = w
	s.stats = stats
	s.setScenario(scenario)
	s.starts = make(map[int][2]int, len(w.Agents()))
	for _, a := range w.Agents() {
		s.starts[a.ID] = [2]int{a.X, a.Y}
	}
	s.beginRun()
	s.runPostInitHook()
	return nil
}

func (s *Simulation) newPolicy(env PolicyEnv) (Policy, error) {
	if s.policyFactory != nil {
		return s.policyFactory(env)
	}
	return NewPolicy(env.Config.Policy, env)
}

// Restart resets the current run in place: dimensions and hazard field stay,
// cover counts are zeroed, agents are repaired and placed again (at their
// original cells when placement is fixed), and policies are re-initialized.
// The batch window is kept.
func (s *Simulation) Restart() error {
	s.world.ResetCoverage()
	if !s.cfg.Agents.Placement.Randomize {
		for _, a := range s.world.Agents() {
			if start, ok := s.starts[a.ID]; ok {
				a.SetLocation(start[0], start[1])
			}
		}
	}
	if err := s.world.Init(s.cfg.Agents.Placement, s.rng.ForSubsystem(SubsystemPlacement)); err != nil {
		return err
	}
	s.beginRun()
	s.runPostInitHook()
	return nil
}

// runPostInitHook executes the configured hook command. Failures are logged
// and do not stop the run. A hook that re-initializes the world does not
// trigger itself again.
func (s *Simulation) runPostInitHook() {
	hook := s.cfg.PostInitHook
	if len(hook) == 0 || s.inHook {
		return
	}
	s.inHook = true
	defer func() { s.inHook = false }()
	if err := s.commands.Exec(context.Background(), s.hookOut, hook[0], hook[1:]); err != nil {
		logrus.Warnf("%s %q: %v", KeyPostInitHook, strings.Join(hook, " "), err)
	}
}

func (s *Simulation) beginRun() {
	s.runID = uuid.NewString()
	s.finished = false
	s.stats.BeginRun(s.world, s.runID)
}

func (s *Simulation) setScenario(scenario Scenario) {
	for _, name := range s.scenarioCommands {
		s.commands.Unregister(name)
	}
	s.scenario = scenario
	s.scenarioCommands = s.scenarioCommands[:0]
	for _, c := range scenario.Commands() {
		s.commands.Register(c)
		s.scenarioCommands = append(s.scenarioCommands, c.Name)
	}
}

// Tick executes one tick: every unbroken agent acts once in order, then the
// hazard field diffuses, then the tick is recorded. A finalized or terminal
// run is left untouched and Tick reports false.
//
// A policy error aborts the tick before diffusion and is returned; the run
// must not be ticked again.
func (s *Simulation) Tick(ctx context.Context) (bool, error) {
	if s.finished || s.IsTerminal() {
		return false, nil
	}
	if err := s.world.Step(ctx); err != nil {
		return false, err
	}
	s.hazard.Update(s.world)
	s.stats.RecordTick()
	return true, nil
}

// FinishRun finalizes the current run once: the run summary is recorded into
// the batch window and returned, with the batch summary when the batch filled.
func (s *Simulation) FinishRun() (RunSummary, *BatchSummary, error) {
	if s.finished {
		return RunSummary{}, nil, ErrRunFinished
	}
	s.finished = true
	run, batch := s.stats.FinishRun(s.scenario.RunExtras(s.world))
	LogRunEnd(run)
	if batch != nil {
		LogBatchEnd(*batch)
	}
	return run, batch, nil
}

// Close releases shared policy resources.
func (s *Simulation) Close() error {
	return s.memory.Close()
}

func (s *Simulation) registerCommands() {
	printGrid := Command{Name: ":env_printgrid", Usage: "[stdout|stderr]", Help: "dump the grid"}
	printGrid.Run = func(_ context.Context, out io.Writer, args []string) error {
		if len(args) > 0 && args[0] == "stderr" {
			out = os.Stderr
		}
		return s.world.PrintGrid(out)
	}

	setPos := Command{Name: ":env_set_robot_pos", Usage: "<id> <x> <y>", Help: "move an agent directly"}
	setPos.Run = func(_ context.Context, _ io.Writer, args []string) error {
		if len(args) < 3 {
			return setPos.UsageError()
		}
		var v [3]int
		for i := range v {
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return setPos.UsageError()
			}
			v[i] = n
		}
		return s.world.SetAgentLocation(v[0], v[1], v[2])
	}

	export := Command{Name: ":env_export_hazard", Help: "print the hazard field, x-major"}
	export.Run = func(_ context.Context, out io.Writer, _ []string) error {
		_, err := fmt.Fprintln(out, s.world.ExportHazard())
		return err
	}

	importCmd := Command{Name: ":env_import_hazard", Usage: "<values...>", Help: "load a hazard field, x-major"}
	importCmd.Run = func(_ context.Context, _ io.Writer, args []string) error {
		return s.world.ImportHazard(strings.Join(args, " "), s.cfg.Hazard.Cap)
	}

	alias := Command{Name: ":registerCommand", Usage: "<name> <command> [args...]", Help: "define a command alias with bound arguments"}
	alias.Run = func(_ context.Context, _ io.Writer, args []string) error {
		if len(args) < 2 {
			return alias.UsageError()
		}
		target := args[1:]
		if len(target) == 1 {
			// A single quoted command line is split into its words.
			words, err := cmdline.Split(target[0])
			if err != nil {
				return fmt.Errorf("%s: %w", alias.Name, err)
			}
			target = words
		}
		return s.commands.Alias(args[0], target)
	}

	isRegistered := Command{Name: ":isRegistered", Usage: "<name>", Help: "print whether a command exists"}
	isRegistered.Run = func(_ context.Context, out io.Writer, args []string) error {
		if len(args) != 1 {
			return isRegistered.UsageError()
		}
		_, ok := s.commands.Lookup(args[0])
		_, err := fmt.Fprintln(out, ok)
		return err
	}

	for _, c := range []Command{printGrid, setPos, export, importCmd, alias, isRegistered} {
		s.commands.Register(c)
	}
}
