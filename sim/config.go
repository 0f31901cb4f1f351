package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/adversarial-coverage/adsim/sim/cmdline"
)

// GridConfig groups grid dimensions and generation parameters.
type GridConfig struct {
	Width         int         // dimensions of a freshly constructed world (must be > 0)
	Height        int         // dimensions of a freshly constructed world (must be > 0)
	Size          SizeOptions // re-sampling bounds used by Regenerate
	GeneratorExpr string      // hazard field generator expression
}

// AgentConfig groups agent population and placement parameters.
type AgentConfig struct {
	Count     int              // number of agents per run (must be > 0)
	Breakable bool             // triggered hazards break agents
	Placement PlacementOptions // randomized start and neighbour clearing
}

// HazardConfig groups hazard diffusion parameters.
type HazardConfig struct {
	SpreadFactor float64 // fraction of a cell's hazard pushed to each neighbour (≥ 0)
	DecayFactor  float64 // fraction of a cell's hazard burned or lost per tick (≥ 0)
	Cap          float64 // upper bound of every hazard probability, in (0, 1]
}

// RunConfig groups driver pacing and run lifecycle parameters.
type RunConfig struct {
	StepDelay   time.Duration // target delay between ticks (≥ 0)
	AutoRestart bool          // start the next run when one finishes
	Repaint     bool          // refresh the display after every tick
	MaxSteps    int           // step cap per run, 0 = unlimited
	BatchSize   int           // runs per statistics batch (must be > 0)
}

// Config is the validated snapshot of Settings that components receive at
// construction. It is rebuilt by ReloadSettings, never mutated in place.
type Config struct {
	Grid     GridConfig
	Agents   AgentConfig
	Hazard   HazardConfig
	Run      RunConfig
	Policy   string // "[meta+]base" selector
	Scenario string // "coverage" (default) or "pathplan"
	Seed     int64

	ClearGoalNeighbors bool // pathplan: clear obstacles around the goal

	// PostInitHook is the tokenized command run after every world init.
	// Empty means no hook.
	PostInitHook []string

	// Settings is the source of this snapshot. Policies read their own keys from it.
	Settings *Settings
}

// NewConfig reads every core key from s and validates the result.
func NewConfig(s *Settings) (*Config, error) {
	r := settingsReader{s: s}
	cfg := &Config{
		Grid: GridConfig{
			Width:  r.integer(KeyGridWidth),
			Height: r.integer(KeyGridHeight),
			Size: SizeOptions{
				Variable:    r.boolean(KeyVariableGridSize),
				ForceSquare: r.boolean(KeyForceSquare),
				MinWidth:    r.integer(KeyGridMinWidth),
				MaxWidth:    r.integer(KeyGridMaxWidth),
				MinHeight:   r.integer(KeyGridMinHeight),
				MaxHeight:   r.integer(KeyGridMaxHeight),
			},
			GeneratorExpr: r.text(KeyGeneratorExpr),
		},
		Agents: AgentConfig{
			Count:     r.integer(KeyAgentCount),
			Breakable: r.boolean(KeyBreakable),
			Placement: PlacementOptions{
				Randomize:     r.boolean(KeyRandomizeStart),
				ClearAdjacent: r.boolean(KeyClearAdjacent),
			},
		},
		Hazard: HazardConfig{
			SpreadFactor: r.number(KeySpreadFactor),
			DecayFactor:  r.number(KeyDecayFactor),
			Cap:          r.number(KeyHazardCap),
		},
		Run: RunConfig{
			StepDelay:   time.Duration(r.integer(KeyStepDelay)) * time.Millisecond,
			AutoRestart: r.boolean(KeyAutoRestart),
			Repaint:     r.boolean(KeyRepaint),
			MaxSteps:    r.integer(KeyMaxStepsPerRun),
			BatchSize:   r.integer(KeyBatchSize),
		},
		Policy:             r.text(KeyPolicySelector),
		Scenario:           r.text(KeyScenario),
		Seed:               int64(r.integer(KeySeed)),
		ClearGoalNeighbors: r.boolean(KeyClearGoalNeighbors),
		Settings:           s.Clone(),
	}
	if r.err != nil {
		return nil, r.err
	}
	hook, err := cmdline.Split(r.text(KeyPostInitHook))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", KeyPostInitHook, err, ErrInvalidSetting)
	}
	cfg.PostInitHook = hook
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the Config built from default Settings.
func DefaultConfig() *Config {
	cfg, err := NewConfig(NewSettings())
	if err != nil {
		panic(fmt.Sprintf("default settings are invalid: %v", err))
	}
	return cfg
}

// Validate checks value ranges. Every violation is reported, joined.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format+": %w", append(args, ErrInvalidSetting)...))
		}
	}
	check(c.Grid.Width > 0 && c.Grid.Height > 0, "grid size %dx%d must be positive", c.Grid.Width, c.Grid.Height)
	if c.Grid.Size.Variable {
		check(c.Grid.Size.MinWidth > 0 && c.Grid.Size.MinWidth <= c.Grid.Size.MaxWidth,
			"width bounds [%d, %d] invalid", c.Grid.Size.MinWidth, c.Grid.Size.MaxWidth)
		check(c.Grid.Size.MinHeight > 0 && c.Grid.Size.MinHeight <= c.Grid.Size.MaxHeight,
			"height bounds [%d, %d] invalid", c.Grid.Size.MinHeight, c.Grid.Size.MaxHeight)
	}
	check(c.Agents.Count > 0, "agent count %d must be positive", c.Agents.Count)
	check(isFinite(c.Hazard.SpreadFactor) && c.Hazard.SpreadFactor >= 0, "spread factor %g must be finite and non-negative", c.Hazard.SpreadFactor)
	check(isFinite(c.Hazard.DecayFactor) && c.Hazard.DecayFactor >= 0, "decay factor %g must be finite and non-negative", c.Hazard.DecayFactor)
	check(c.Hazard.Cap > 0 && c.Hazard.Cap <= 1, "hazard cap %g must be in (0, 1]", c.Hazard.Cap)
	check(c.Run.StepDelay >= 0, "step delay %v must be non-negative", c.Run.StepDelay)
	check(c.Run.MaxSteps >= 0, "max steps %d must be non-negative", c.Run.MaxSteps)
	check(c.Run.BatchSize > 0, "batch size %d must be positive", c.Run.BatchSize)
	check(IsValidScenario(c.Scenario), "unknown scenario %q", c.Scenario)
	if _, err := ParseHazardGenerator(c.Grid.GeneratorExpr); err != nil {
		errs = append(errs, err)
	}
	if c.Settings != nil {
		if err := validatePolicy(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// settingsReader collects the first lookup error so NewConfig reads linearly.
type settingsReader struct {
	s   *Settings
	err error
}

func (r *settingsReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *settingsReader) boolean(key string) bool {
	v, err := r.s.Bool(key)
	r.keep(err)
	return v
}

func (r *settingsReader) integer(key string) int {
	v, err := r.s.Int(key)
	r.keep(err)
	return v
}

func (r *settingsReader) number(key string) float64 {
	v, err := r.s.Float(key)
	r.keep(err)
	return v
}

func (r *settingsReader) text(key string) string {
	v, err := r.s.String(key)
	r.keep(err)
	return v
}
