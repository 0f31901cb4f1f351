// Package driver paces a sim.Simulation: one goroutine owns the simulation
// and advances it tick by tick, while every other caller talks to it through a
// bounded command channel.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/store"
	"github.com/adversarial-coverage/adsim/sim/trace"
	"github.com/sirupsen/logrus"
)

// State is the driver's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Killed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Killed:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrRunFailed rejects Step and Run after a tick error until NewRun or Restart.
	ErrRunFailed = errors.New("run failed; start a new run or restart")
	// ErrKilled is returned by every operation once the driver is killed.
	ErrKilled = errors.New("driver killed")
)

// commandQueueSize bounds the number of pending operations.
const commandQueueSize = 16

// RunObserver receives every finished run, with the batch summary when the
// run completed a batch. It is called from the loop goroutine and must not
// call back into the driver.
type RunObserver func(run sim.RunSummary, batch *sim.BatchSummary)

// Option configures a Driver.
type Option func(*Driver)

// WithDisplay sets the display refreshed after ticks. The default draws nothing.
func WithDisplay(d Display) Option {
	return func(dr *Driver) { dr.display = d }
}

// WithStore persists every finished run and batch into st. st must be initialized.
func WithStore(st store.Store) Option {
	return func(dr *Driver) { dr.store = st }
}

// WithRunObserver adds a callback for finished runs.
func WithRunObserver(o RunObserver) Option {
	return func(dr *Driver) { dr.observers = append(dr.observers, o) }
}

// WithFailureObserver adds a callback for tick errors that fail a run. It is
// called from the loop goroutine and must not call back into the driver.
func WithFailureObserver(o func(err error)) Option {
	return func(dr *Driver) { dr.failureObservers = append(dr.failureObservers, o) }
}

// WithRunLimit pauses the loop once n runs have finished and closes
// LimitReached. Zero means no limit.
func WithRunLimit(n int) Option {
	return func(dr *Driver) { dr.runLimit = n }
}

// WithOutput sets where driver commands write. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(dr *Driver) { dr.out = w }
}

type request struct {
	op    func() error
	reply chan error
}

// Driver sequences ticks for one simulation. All simulation state is owned by
// the loop goroutine started by Start; the exported methods are safe for
// concurrent use.
type Driver struct {
	sim       *sim.Simulation
	display   Display
	store     store.Store
	observers []RunObserver
	out       io.Writer
	runLimit  int

	failureObservers []func(error)

	cmds         chan request
	done         chan struct{}
	limitReached chan struct{}

	// Owned by the loop goroutine.
	state        State
	failed       error
	pace         *time.Timer
	finishedRuns int
}

// New wraps s. The driver takes ownership of s and closes it when killed.
func New(s *sim.Simulation, opts ...Option) *Driver {
	d := &Driver{
		sim:          s,
		display:      nopDisplay{},
		out:          os.Stdout,
		cmds:         make(chan request, commandQueueSize),
		done:         make(chan struct{}),
		limitReached: make(chan struct{}),
		state:        Idle,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.pace = time.NewTimer(time.Hour)
	d.pace.Stop()
	d.registerCommands()
	return d
}

// Start launches the loop goroutine. Cancelling ctx kills the driver.
func (d *Driver) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Done is closed when the loop has exited.
func (d *Driver) Done() <-chan struct{} { return d.done }

// LimitReached is closed when the run limit set by WithRunLimit is reached.
func (d *Driver) LimitReached() <-chan struct{} { return d.limitReached }

func (d *Driver) loop(ctx context.Context) {
	defer close(d.done)
	for {
		var tick <-chan time.Time
		if d.state == Running {
			tick = d.pace.C
		}
		select {
		case <-ctx.Done():
			d.kill()
			return
		case req := <-d.cmds:
			req.reply <- req.op()
			if d.state == Killed {
				return
			}
		case <-tick:
			if err := d.advance(ctx, true); err != nil {
				continue
			}
			if d.state == Running {
				d.pace.Reset(d.sim.Config().Run.StepDelay)
			}
		}
	}
}

// do runs op on the loop goroutine and waits for its result.
func (d *Driver) do(ctx context.Context, op func() error) error {
	req := request{op: op, reply: make(chan error, 1)}
	select {
	case d.cmds <- req:
	case <-d.done:
		return ErrKilled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-d.done:
		return ErrKilled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance executes one tick and handles a terminal world. In the loop a
// finished run either starts the next one or pauses.
func (d *Driver) advance(ctx context.Context, looping bool) error {
	if d.failed != nil {
		return ErrRunFailed
	}
	ticked, err := d.sim.Tick(ctx)
	if err != nil {
		logrus.Errorf("run %s failed at step %d: %v", d.sim.RunID(), d.sim.World().StepCount(), err)
		d.fail(err)
		return fmt.Errorf("tick: %w", err)
	}
	if ticked {
		logrus.Debugf("tick %d", d.sim.World().StepCount())
		if d.sim.Config().Run.Repaint {
			d.refresh()
		}
	}
	// A finished run stays over even if a command made the world
	// non-terminal again; only a new run can continue.
	if !d.sim.RunFinished() && !d.sim.IsTerminal() {
		return nil
	}
	d.finishRun(ctx)
	if !looping {
		return nil
	}
	if d.limitHit() {
		d.stopLoop(Paused)
		return nil
	}
	if !d.sim.Config().Run.AutoRestart {
		d.stopLoop(Paused)
		return nil
	}
	if err := d.sim.NextRun(); err != nil {
		logrus.Errorf("starting next run: %v", err)
		d.fail(err)
		return err
	}
	d.refresh()
	return nil
}

// finishRun finalizes the current run once and hands the summaries to the
// store, the trace and the observers.
func (d *Driver) finishRun(ctx context.Context) {
	if d.sim.RunFinished() {
		return
	}
	run, batch, err := d.sim.FinishRun()
	if err != nil {
		return
	}
	d.finishedRuns++
	if v, ok := d.sim.Memory().Get(trace.MemoryKey); ok {
		if st, ok := v.(*trace.SimulationTrace); ok {
			st.EndRun(run.RunID, run.Steps)
		}
	}
	if d.store != nil {
		if err := d.store.SaveRun(ctx, run); err != nil {
			logrus.Warnf("saving run %s: %v", run.RunID, err)
		}
		if batch != nil {
			if _, err := d.store.SaveBatch(ctx, *batch); err != nil {
				logrus.Warnf("saving batch %d: %v", batch.Batch, err)
			}
		}
	}
	for _, o := range d.observers {
		o(run, batch)
	}
	if d.limitHit() {
		select {
		case <-d.limitReached:
		default:
			close(d.limitReached)
		}
	}
}

func (d *Driver) fail(err error) {
	d.failed = err
	d.stopLoop(Paused)
	for _, o := range d.failureObservers {
		o(err)
	}
}

func (d *Driver) limitHit() bool {
	return d.runLimit > 0 && d.finishedRuns >= d.runLimit
}

func (d *Driver) refresh() {
	if err := d.display.Refresh(d.sim); err != nil {
		logrus.Warnf("display refresh: %v", err)
	}
}

func (d *Driver) stopLoop(next State) {
	d.pace.Stop()
	d.state = next
}

func (d *Driver) run() error {
	if d.failed != nil {
		return ErrRunFailed
	}
	if d.limitHit() {
		return fmt.Errorf("run limit %d reached", d.runLimit)
	}
	if d.state != Running {
		d.state = Running
		d.pace.Reset(0)
	}
	return nil
}

func (d *Driver) pause() error {
	if d.state == Running {
		d.stopLoop(Paused)
	}
	return nil
}

// step pauses a running loop and executes one tick. It never starts a new run.
func (d *Driver) step(ctx context.Context) error {
	if d.state == Running {
		d.stopLoop(Paused)
	}
	return d.advance(ctx, false)
}

func (d *Driver) newRun() error {
	if err := d.sim.NewRun(); err != nil {
		return err
	}
	d.failed = nil
	d.stopLoop(Idle)
	d.refresh()
	return nil
}

func (d *Driver) restart() error {
	if err := d.sim.Restart(); err != nil {
		return err
	}
	d.failed = nil
	d.stopLoop(Idle)
	d.refresh()
	return nil
}

func (d *Driver) kill() {
	d.stopLoop(Killed)
	d.display.Dispose()
	if err := d.sim.Close(); err != nil {
		logrus.Warnf("closing simulation: %v", err)
	}
}

// Run starts or resumes the tick loop.
func (d *Driver) Run(ctx context.Context) error {
	return d.do(ctx, d.run)
}

// Pause stops the loop before its next tick.
func (d *Driver) Pause(ctx context.Context) error {
	return d.do(ctx, d.pause)
}

// Step executes exactly one tick unless the run is already terminal, in
// which case the run is finalized and nothing else happens.
func (d *Driver) Step(ctx context.Context) error {
	return d.do(ctx, func() error { return d.step(ctx) })
}

// NewRun discards the current run and builds a fresh world and batch window.
func (d *Driver) NewRun(ctx context.Context) error {
	return d.do(ctx, d.newRun)
}

// Restart resets the current world in place and keeps the batch window.
func (d *Driver) Restart(ctx context.Context) error {
	return d.do(ctx, d.restart)
}

// Refresh redraws the display on demand.
func (d *Driver) Refresh(ctx context.Context) error {
	return d.do(ctx, func() error { return d.display.Refresh(d.sim) })
}

// SetDisplay disposes the current display and draws the world on disp.
// A nil disp draws nothing.
func (d *Driver) SetDisplay(ctx context.Context, disp Display) error {
	return d.do(ctx, func() error { return d.setDisplay(disp) })
}

func (d *Driver) setDisplay(disp Display) error {
	if disp == nil {
		disp = nopDisplay{}
	}
	d.display.Dispose()
	d.display = disp
	return d.display.Refresh(d.sim)
}

// Inspect runs fn on the loop goroutine between ticks. fn must not retain s.
func (d *Driver) Inspect(ctx context.Context, fn func(s *sim.Simulation) error) error {
	return d.do(ctx, func() error { return fn(d.sim) })
}

// Exec runs a registered command between ticks, writing its output to out.
func (d *Driver) Exec(ctx context.Context, out io.Writer, name string, args []string) error {
	return d.do(ctx, func() error { return d.sim.Commands().Exec(ctx, out, name, args) })
}

// State reports the current lifecycle state.
func (d *Driver) State(ctx context.Context) (State, error) {
	var st State
	err := d.do(ctx, func() error {
		st = d.state
		return nil
	})
	if errors.Is(err, ErrKilled) {
		return Killed, nil
	}
	return st, err
}

// Err returns the error that failed the current run, if any.
func (d *Driver) Err(ctx context.Context) error {
	var failed error
	err := d.do(ctx, func() error {
		failed = d.failed
		return nil
	})
	if errors.Is(err, ErrKilled) {
		<-d.done
		return d.failed
	}
	if err != nil {
		return err
	}
	return failed
}

// Kill stops the loop, disposes the display and closes the simulation.
// It is idempotent.
func (d *Driver) Kill(ctx context.Context) error {
	err := d.do(ctx, func() error {
		d.kill()
		return nil
	})
	if errors.Is(err, ErrKilled) {
		return nil
	}
	return err
}
