package sim

import (
	"context"
	"math/rand"
)

// scriptPolicy replays actions then covers in place. Package sim tests cannot
// use sim/internal/testutil, which imports this package.
type scriptPolicy struct {
	act     *Actuator
	actions []Action
	next    int
	err     error
	inits   int
	steps   int
}

func (p *scriptPolicy) Init() error {
	p.inits++
	p.next = 0
	return nil
}

func (p *scriptPolicy) Step(context.Context) error {
	p.steps++
	if p.err != nil {
		return p.err
	}
	a := CoverInPlace
	if p.next < len(p.actions) {
		a = p.actions[p.next]
		p.next++
	}
	p.act.TakeAction(a)
	return nil
}

// recorder counts cover events per agent.
type recorder struct {
	events map[int]int
}

func (r *recorder) UpdateCellCovered(a *Agent) {
	if r.events == nil {
		r.events = make(map[int]int)
	}
	r.events[a.ID]++
}

func testRules(breakable bool, rec CoverRecorder) ActionRules {
	return ActionRules{Breakable: breakable, Reward: CoverageReward, Recorder: rec, RNG: rand.New(rand.NewSource(7))}
}

// addScripted places an agent with a scripted policy at (x, y).
func addScripted(w *GridWorld, id, x, y int, rules ActionRules, actions ...Action) (*Agent, *scriptPolicy) {
	a := NewAgent(id, x, y)
	p := &scriptPolicy{act: NewActuator(w, a, rules), actions: actions}
	a.Policy = p
	w.AddAgent(a)
	return a, p
}

func mustCell(w *GridWorld, x, y int) *Cell {
	c, ok := w.Cell(x, y)
	if !ok {
		panic("cell off grid")
	}
	return c
}

func totalCoverCount(w *GridWorld) int {
	n := 0
	w.ForEachCell(func(c *Cell) { n += c.CoverCount })
	return n
}
