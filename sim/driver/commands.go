package driver

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/trace"
)

// registerCommands adds the driver's operations to the simulation's command
// registry. Command bodies run on the loop goroutine, so they call the
// unexported operations directly.
func (d *Driver) registerCommands() {
	reg := d.sim.Commands()
	simple := func(name, help string, op func() error) {
		reg.Register(sim.Command{Name: name, Help: help, Run: func(context.Context, io.Writer, []string) error {
			return op()
		}})
	}
	simple(":run", "start or resume the tick loop", d.run)
	simple(":pause", "pause the tick loop", d.pause)
	simple(":restart", "reset the current world, keeping the batch", d.restart)
	simple(":new", "start a fresh run and batch", d.newRun)
	simple(":reload", "rebuild the configuration from the settings", d.sim.ReloadSettings)

	reg.Register(sim.Command{Name: ":step", Help: "execute one tick", Run: func(ctx context.Context, _ io.Writer, _ []string) error {
		return d.step(ctx)
	}})
	reg.Register(sim.Command{Name: ":showstate", Help: "print the driver and run state", Run: func(_ context.Context, out io.Writer, _ []string) error {
		return d.printState(out)
	}})
	reg.Register(sim.Command{Name: ":stats", Help: "print run, batch and trace statistics", Run: func(_ context.Context, out io.Writer, _ []string) error {
		d.printStats(out)
		return nil
	}})
	reg.Register(sim.Command{Name: ":showsettings", Help: "print every setting", Run: func(_ context.Context, out io.Writer, _ []string) error {
		_, err := io.WriteString(out, sim.FormatSettings(d.sim.Settings()))
		return err
	}})
	reg.Register(sim.Command{Name: ":help", Help: "list commands", Run: func(_ context.Context, out io.Writer, _ []string) error {
		return reg.WriteHelp(out)
	}})

	set := sim.Command{Name: ":set", Usage: "<key> <value>", Help: "change a setting and reload"}
	set.Run = func(_ context.Context, _ io.Writer, args []string) error {
		if len(args) < 2 {
			return set.UsageError()
		}
		return d.sim.SetSetting(args[0], strings.Join(args[1:], " "))
	}
	reg.Register(set)

	setDisplay := sim.Command{Name: ":setdisplay", Usage: "none|text", Help: "replace the grid display"}
	setDisplay.Run = func(_ context.Context, _ io.Writer, args []string) error {
		if len(args) != 1 {
			return setDisplay.UsageError()
		}
		switch strings.ToLower(args[0]) {
		case "none":
			return d.setDisplay(nil)
		case "text":
			return d.setDisplay(NewTextDisplay(d.out))
		default:
			return setDisplay.UsageError()
		}
	}
	reg.Register(setDisplay)

	get := sim.Command{Name: ":get", Usage: "<key>", Help: "print a setting"}
	get.Run = func(_ context.Context, out io.Writer, args []string) error {
		if len(args) < 1 {
			return get.UsageError()
		}
		v, err := d.sim.Settings().Format(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s = %s\n", args[0], v)
		return err
	}
	reg.Register(get)
}

func (d *Driver) printState(out io.Writer) error {
	w := d.sim.World()
	fmt.Fprintf(out, "state      : %s\n", d.state)
	fmt.Fprintf(out, "run        : %s\n", d.sim.RunID())
	fmt.Fprintf(out, "scenario   : %s\n", d.sim.Scenario().Name())
	fmt.Fprintf(out, "grid       : %dx%d\n", w.Width(), w.Height())
	fmt.Fprintf(out, "step       : %d\n", w.StepCount())
	fmt.Fprintf(out, "terminal   : %t\n", d.sim.IsTerminal())
	if d.failed != nil {
		fmt.Fprintf(out, "failed     : %v\n", d.failed)
	}
	_, err := fmt.Fprintf(out, "batch      : %d/%d runs\n", d.sim.Stats().RunsInBatch(), d.sim.Stats().BatchSize())
	return err
}

func (d *Driver) printStats(out io.Writer) {
	stats := d.sim.Stats()
	stats.Snapshot().Print(out)
	if stats.RunsInBatch() > 0 {
		stats.BatchProgress().Print(out)
	}
	if v, ok := d.sim.Memory().Get(trace.MemoryKey); ok {
		if st, ok := v.(*trace.SimulationTrace); ok {
			trace.Summarize(st).Print(out)
		}
	}
}
