// Package testutil provides shared test infrastructure for the adsim simulator.
// It consolidates grid builders, scripted policies and assertion helpers used
// across the sim/, sim/driver/, sim/policy/ and sim/control/ test packages.
package testutil

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/adversarial-coverage/adsim/sim"
)

// ParseGrid builds a world from text rows. rows[y][x] is the cell at (x, y):
// '.' free, '#' obstacle, 'H' free with hazard 1.0, a digit d free with hazard d/10.
func ParseGrid(t testing.TB, rows ...string) *sim.GridWorld {
	t.Helper()
	if len(rows) == 0 {
		t.Fatal("ParseGrid: no rows")
	}
	w := sim.NewGridWorld(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != w.Width() {
			t.Fatalf("ParseGrid: row %d has width %d, want %d", y, len(row), w.Width())
		}
		for x, ch := range row {
			c, _ := w.Cell(x, y)
			switch {
			case ch == '#':
				c.Type = sim.Obstacle
			case ch == 'H':
				c.HazardProb = 1
			case ch >= '0' && ch <= '9':
				c.HazardProb = float64(ch-'0') / 10
			case ch == '.':
			default:
				t.Fatalf("ParseGrid: unknown cell %q at (%d, %d)", ch, x, y)
			}
		}
	}
	return w
}

// FreeGrid builds a width×height all-Free world with zero hazard.
func FreeGrid(width, height int) *sim.GridWorld {
	return sim.NewGridWorld(width, height)
}

// Place adds an agent at (x, y) with a scripted policy acting through an
// Actuator bound by rules. A nil rules.RNG is replaced by a seeded source.
func Place(w *sim.GridWorld, id, x, y int, rules sim.ActionRules, actions ...sim.Action) (*sim.Agent, *ScriptedPolicy) {
	if rules.RNG == nil {
		rules.RNG = rand.New(rand.NewSource(1))
	}
	a := sim.NewAgent(id, x, y)
	p := &ScriptedPolicy{Actions: actions, Actuator: sim.NewActuator(w, a, rules)}
	a.Policy = p
	w.AddAgent(a)
	return a, p
}

// ScriptedPolicy replays a fixed list of actions, then covers in place.
type ScriptedPolicy struct {
	Actions  []sim.Action
	Actuator *sim.Actuator
	// Err, when set, is returned by Step instead of acting.
	Err error

	InitCalls int
	StepCalls int
	next      int
}

func (p *ScriptedPolicy) Init() error {
	p.InitCalls++
	p.next = 0
	return nil
}

func (p *ScriptedPolicy) Step(context.Context) error {
	p.StepCalls++
	if p.Err != nil {
		return p.Err
	}
	action := sim.CoverInPlace
	if p.next < len(p.Actions) {
		action = p.Actions[p.next]
		p.next++
	}
	p.Actuator.TakeAction(action)
	return nil
}

// ScriptedFactory returns a PolicyFactory whose policies all replay actions.
// Built policies are appended to *built when built is non-nil.
func ScriptedFactory(built *[]*ScriptedPolicy, actions ...sim.Action) sim.PolicyFactory {
	return func(env sim.PolicyEnv) (sim.Policy, error) {
		p := &ScriptedPolicy{Actions: actions, Actuator: env.Actuator}
		if built != nil {
			*built = append(*built, p)
		}
		return p, nil
	}
}

// Settings returns default settings with overrides applied.
func Settings(t testing.TB, overrides map[string]string) *sim.Settings {
	t.Helper()
	s := sim.NewSettings()
	if err := s.Apply(overrides); err != nil {
		t.Fatalf("applying settings: %v", err)
	}
	return s
}

// QuietSettings returns small deterministic settings for fast tests:
// a 5x5 obstacle-free grid without hazard, one random agent, no pacing delay.
func QuietSettings(t testing.TB, overrides map[string]string) *sim.Settings {
	t.Helper()
	base := map[string]string{
		sim.KeyGridWidth:      "5",
		sim.KeyGridHeight:     "5",
		sim.KeyGeneratorExpr:  "obstacle=0 hazard=0",
		sim.KeyAgentCount:     "1",
		sim.KeyPolicySelector: "random",
		sim.KeyStepDelay:      "0",
		sim.KeyBatchSize:      "3",
	}
	for k, v := range overrides {
		base[k] = v
	}
	return Settings(t, base)
}

// SnakePath returns the moves that sweep a width×height grid row by row,
// starting at (0, 0): right along y=0, up, left along y=1, and so on.
func SnakePath(width, height int) []sim.Action {
	var path []sim.Action
	for y := 0; y < height; y++ {
		dir := sim.MoveRight
		if y%2 == 1 {
			dir = sim.MoveLeft
		}
		for i := 0; i < width-1; i++ {
			path = append(path, dir)
		}
		if y < height-1 {
			path = append(path, sim.MoveUp)
		}
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
