package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/driver"
)

// quietSettings is a 4x4 hazard-free grid with one random agent and no delay.
func quietSettings(t *testing.T, overrides ...string) *sim.Settings {
	t.Helper()
	base := []string{
		sim.KeyGridWidth + "=4",
		sim.KeyGridHeight + "=4",
		sim.KeyGeneratorExpr + "=obstacle=0 hazard=0",
		sim.KeyAgentCount + "=1",
		sim.KeyPolicySelector + "=random",
		sim.KeyStepDelay + "=0",
		sim.KeyBatchSize + "=2",
		sim.KeyMaxStepsPerRun + "=20",
	}
	settings, err := loadSettings("", append(base, overrides...))
	require.NoError(t, err)
	return settings
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	s, err := sim.NewSimulation(quietSettings(t))
	require.NoError(t, err)
	d := driver.New(s)
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Kill(context.Background()) })
	var out, errOut bytes.Buffer
	return NewConsole(d, &out, &errOut), &out, &errOut
}

func writeScript(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestConsole_HandleLine(t *testing.T) {
	console, out, _ := newTestConsole(t)
	ctx := context.Background()

	// GIVEN comments and blank lines WHEN handled THEN nothing is dispatched
	require.NoError(t, console.HandleLine(ctx, "# a comment"))
	require.NoError(t, console.HandleLine(ctx, ""))
	assert.Empty(t, out.String())

	// WHEN a quoted value is set and read back
	require.NoError(t, console.HandleLine(ctx, `:set env.grid.dangervalues "obstacle=0.1 hazard=0"`))
	require.NoError(t, console.HandleLine(ctx, ":get env.grid.dangervalues"))
	assert.Equal(t, "env.grid.dangervalues = obstacle=0.1 hazard=0\n", out.String())

	// AND unknown commands are reported
	assert.ErrorIs(t, console.HandleLine(ctx, ":fly"), sim.ErrUnknownCommand)
	assert.ErrorIs(t, console.HandleLine(ctx, ":setecho maybe"), sim.ErrUsage)
	assert.ErrorIs(t, console.HandleLine(ctx, ":runfile"), sim.ErrUsage)
}

func TestConsole_Echo(t *testing.T) {
	console, out, _ := newTestConsole(t)
	ctx := context.Background()

	require.NoError(t, console.HandleLine(ctx, ":setecho on"))
	require.NoError(t, console.HandleLine(ctx, ":get robots.count"))
	require.NoError(t, console.HandleLine(ctx, ":setecho off"))
	require.NoError(t, console.HandleLine(ctx, ":get robots.count"))

	assert.Equal(t, "> :get robots.count\nrobots.count = 1\n> :setecho off\nrobots.count = 1\n", out.String())
}

func TestConsole_RunReportsErrorsAndStopsAtQuit(t *testing.T) {
	console, out, errOut := newTestConsole(t)

	// GIVEN input with a failing command followed by :quit and more commands
	in := strings.NewReader(":fly\n:get robots.count\n:quit\n:get sim.seed\n")
	require.NoError(t, console.Run(context.Background(), in))

	// THEN the error is reported, processing continues, and stops at :quit
	assert.Contains(t, errOut.String(), "error: ")
	assert.Equal(t, "robots.count = 1\n", out.String())
}

func TestConsole_RunFile(t *testing.T) {
	console, out, _ := newTestConsole(t)
	ctx := context.Background()
	dir := t.TempDir()

	// GIVEN a script that sets a value and includes a nested script
	writeScript(t, dir, "inner.txt", ":step", ":step")
	outer := writeScript(t, dir, "outer.txt",
		"# configure then step",
		":set robots.count 2",
		":runfile "+filepath.Join(dir, "inner.txt"),
		":get robots.count",
	)

	// WHEN it runs
	require.NoError(t, console.RunFile(ctx, outer))

	// THEN every line executed in order
	assert.Equal(t, "robots.count = 2\n", out.String())
	out.Reset()
	require.NoError(t, console.HandleLine(ctx, ":showstate"))
	assert.Contains(t, out.String(), "step       : 2")
}

func TestConsole_RunFileStopsAtFirstError(t *testing.T) {
	console, out, _ := newTestConsole(t)
	script := writeScript(t, t.TempDir(), "bad.txt", ":get robots.count", ":fly", ":get sim.seed")

	err := console.RunFile(context.Background(), script)

	require.Error(t, err)
	assert.ErrorIs(t, err, sim.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "bad.txt:2")
	assert.Equal(t, "robots.count = 1\n", out.String())
}

func TestConsole_RunFileRecursionBounded(t *testing.T) {
	console, _, _ := newTestConsole(t)
	dir := t.TempDir()
	self := filepath.Join(dir, "self.txt")
	writeScript(t, dir, "self.txt", ":runfile "+self)

	err := console.RunFile(context.Background(), self)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested deeper than")
}

func TestConsole_ExecAllAndPrint(t *testing.T) {
	console, out, _ := newTestConsole(t)
	ctx := context.Background()

	// GIVEN several quoted command lines WHEN run as one THEN each executes in order
	require.NoError(t, console.HandleLine(ctx, `:execAll ":set robots.count 3" ":print count\ " ":get robots.count"`))
	assert.Equal(t, "count robots.count = 3\n", out.String())

	// AND :print writes its arguments without a newline
	out.Reset()
	require.NoError(t, console.HandleLine(ctx, `:print a "b c" \n`))
	assert.Equal(t, "a b c \n", out.String())

	// AND a failing line stops the rest
	out.Reset()
	err := console.HandleLine(ctx, `:execAll ":fly" ":get robots.count"`)
	assert.ErrorIs(t, err, sim.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "line 1")
	assert.Empty(t, out.String())

	// AND :quit inside ends the console
	in := strings.NewReader(":execAll :quit \":get robots.count\"\n:get robots.count\n")
	require.NoError(t, console.Run(ctx, in))
	assert.Empty(t, out.String())
}

func TestConsole_RegisterCommand(t *testing.T) {
	console, out, _ := newTestConsole(t)
	ctx := context.Background()

	// GIVEN an alias bound to a quoted command line
	require.NoError(t, console.HandleLine(ctx, `:registerCommand :robots ":set robots.count"`))
	require.NoError(t, console.HandleLine(ctx, ":isRegistered :robots"))
	require.NoError(t, console.HandleLine(ctx, ":isRegistered :fly"))
	assert.Equal(t, "true\nfalse\n", out.String())

	// WHEN it is invoked with the remaining argument
	out.Reset()
	require.NoError(t, console.HandleLine(ctx, ":robots 2"))
	require.NoError(t, console.HandleLine(ctx, ":get robots.count"))

	// THEN the bound command ran
	assert.Equal(t, "robots.count = 2\n", out.String())
	assert.ErrorIs(t, console.HandleLine(ctx, ":registerCommand :x"), sim.ErrUsage)
}
