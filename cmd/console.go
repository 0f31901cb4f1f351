package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/cmdline"
	"github.com/adversarial-coverage/adsim/sim/driver"
)

// maxScriptDepth bounds :runfile nesting.
const maxScriptDepth = 16

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// Console is a line-oriented command interpreter. It only tokenizes lines
// and dispatches them to the driver; the commands themselves live in the
// simulation's registry.
type Console struct {
	driver *driver.Driver
	out    io.Writer
	errOut io.Writer
	echo   bool
	depth  int
}

// NewConsole writes command output to out and command errors to errOut.
func NewConsole(d *driver.Driver, out, errOut io.Writer) *Console {
	return &Console{driver: d, out: out, errOut: errOut}
}

// Run reads lines from in until EOF, :quit or ctx is done. Failed commands are
// reported to errOut and do not stop the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.HandleLine(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if errors.Is(err, driver.ErrKilled) {
			return err
		}
		if err != nil {
			fmt.Fprintf(c.errOut, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// HandleLine executes one line. Blank lines and '#' comments do nothing.
func (c *Console) HandleLine(ctx context.Context, line string) error {
	if c.echo {
		fmt.Fprintf(c.out, "> %s\n", line)
	}
	args, err := cmdline.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}
	name, rest := args[0], args[1:]
	switch name {
	case ":quit", ":exit":
		return errQuit
	case ":setecho":
		return c.setEcho(rest)
	case ":runfile":
		if len(rest) != 1 {
			return usageError(":runfile", "<path>")
		}
		return c.RunFile(ctx, rest[0])
	case ":execAll":
		return c.execAll(ctx, rest)
	case ":print":
		_, err := io.WriteString(c.out, strings.Join(rest, " "))
		return err
	}
	return c.driver.Exec(ctx, c.out, name, rest)
}

// execAll handles each argument as a full command line, in order. The first
// failing line stops the rest.
func (c *Console) execAll(ctx context.Context, lines []string) error {
	for i, line := range lines {
		if err := c.HandleLine(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			return fmt.Errorf(":execAll line %d: %w", i+1, err)
		}
	}
	return nil
}

func usageError(name, usage string) error {
	return sim.Command{Name: name, Usage: usage}.UsageError()
}

func (c *Console) setEcho(args []string) error {
	if len(args) != 1 {
		return usageError(":setecho", "on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true":
		c.echo = true
	case "off", "false":
		c.echo = false
	default:
		return usageError(":setecho", "on|off")
	}
	return nil
}

// RunFile executes every line of the file at path. The first failing line
// stops the script.
func (c *Console) RunFile(ctx context.Context, path string) error {
	if c.depth >= maxScriptDepth {
		return fmt.Errorf("runfile %s: nested deeper than %d", path, maxScriptDepth)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("runfile: %w", err)
	}
	defer f.Close()

	c.depth++
	defer func() { c.depth-- }()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := c.HandleLine(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
	}
	return scanner.Err()
}

// consoleCmd starts the interactive interpreter, or runs scripts and exits
var consoleCmd = &cobra.Command{
	Use:   "console [script...]",
	Short: "Control the simulation with console commands from stdin or script files",
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(configPath, settingOverrides)
		if err != nil {
			logrus.Fatalf("Invalid settings: %v", err)
		}
		s, err := sim.NewSimulation(settings, sim.WithHookOutput(os.Stdout))
		if err != nil {
			logrus.Fatalf("Creating simulation: %v", err)
		}
		st, err := openStore()
		if err != nil {
			logrus.Fatalf("Opening store: %v", err)
		}
		defer closeStore(st)

		opts := []driver.Option{driver.WithOutput(os.Stdout)}
		if st != nil {
			opts = append(opts, driver.WithStore(st))
		}
		if displayMode == "text" {
			opts = append(opts, driver.WithDisplay(driver.NewTextDisplay(os.Stdout)))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		d := driver.New(s, opts...)
		d.Start(ctx)
		defer func() { _ = d.Kill(context.Background()) }()

		console := NewConsole(d, os.Stdout, os.Stderr)
		if len(args) > 0 {
			for _, path := range args {
				err := console.RunFile(ctx, path)
				if errors.Is(err, errQuit) {
					return
				}
				if err != nil {
					logrus.Errorf("Script failed: %v", err)
					return
				}
			}
			return
		}
		if err := console.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorf("Console stopped: %v", err)
		}
	},
}
