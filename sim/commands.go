package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	// ErrUnknownCommand is returned by Exec for names that were never registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command receives malformed arguments.
	ErrUsage = errors.New("bad command arguments")
	// ErrAliasCycle rejects an alias that would end up invoking itself.
	ErrAliasCycle = errors.New("alias cycle")
)

// CommandFunc executes a named operation. args exclude the command name.
// Output meant for the operator goes to out.
type CommandFunc func(ctx context.Context, out io.Writer, args []string) error

// Command is a named operation exposed to an external interpreter.
type Command struct {
	Name  string // e.g. ":env_printgrid"
	Usage string // argument synopsis, e.g. "<id> <x> <y>"
	Help  string
	Run   CommandFunc
}

// UsageError reports malformed arguments for c.
func (c Command) UsageError() error {
	return fmt.Errorf("%s %s: %w", c.Name, c.Usage, ErrUsage)
}

// CommandRegistry maps command names to operations. The core registers
// commands; it never parses command text itself.
type CommandRegistry struct {
	commands map[string]Command
	aliases  map[string][]string // alias name -> bound command and args
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
		aliases:  make(map[string][]string),
	}
}

// Register adds c, replacing any command or alias with the same name.
func (r *CommandRegistry) Register(c Command) {
	delete(r.aliases, c.Name)
	r.commands[c.Name] = c
}

// Unregister removes the command registered under name, if any.
func (r *CommandRegistry) Unregister(name string) {
	delete(r.aliases, name)
	delete(r.commands, name)
}

// Alias registers name as a shorthand for target[0] called with target[1:]
// followed by the alias's own arguments. The target must already be
// registered, and aliases may not form a cycle.
func (r *CommandRegistry) Alias(name string, target []string) error {
	if name == "" || len(target) == 0 {
		return fmt.Errorf("alias needs a name and a command: %w", ErrUsage)
	}
	if _, ok := r.commands[target[0]]; !ok {
		return fmt.Errorf("alias %s: %q: %w", name, target[0], ErrUnknownCommand)
	}
	for next := target[0]; ; {
		if next == name {
			return fmt.Errorf("alias %s -> %s: %w", name, target[0], ErrAliasCycle)
		}
		bound, ok := r.aliases[next]
		if !ok {
			break
		}
		next = bound[0]
	}
	bound := append([]string(nil), target...)
	r.aliases[name] = bound
	r.commands[name] = Command{
		Name:  name,
		Usage: "[args...]",
		Help:  "alias for " + strings.Join(bound, " "),
		Run: func(ctx context.Context, out io.Writer, args []string) error {
			full := append(append([]string(nil), bound[1:]...), args...)
			return r.Exec(ctx, out, bound[0], full)
		},
	}
	return nil
}

// Lookup returns the command registered under name.
func (r *CommandRegistry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Names returns every registered name in sorted order.
func (r *CommandRegistry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Exec runs the command registered under name.
func (r *CommandRegistry) Exec(ctx context.Context, out io.Writer, name string, args []string) error {
	c, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownCommand)
	}
	return c.Run(ctx, out, args)
}

// WriteHelp lists every command with its usage and help line.
func (r *CommandRegistry) WriteHelp(out io.Writer) error {
	for _, n := range r.Names() {
		c := r.commands[n]
		if _, err := fmt.Fprintf(out, "%-22s %-16s %s\n", c.Name, c.Usage, c.Help); err != nil {
			return err
		}
	}
	return nil
}
