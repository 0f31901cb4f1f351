package driver

import (
	"bytes"
	"context"
	"testing"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exec(t *testing.T, d *Driver, name string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := d.Exec(context.Background(), &buf, name, args)
	return buf.String(), err
}

func TestDriverCommands_StepAndShowState(t *testing.T) {
	d := New(sweepSim(t, nil))
	startDriver(t, d)

	_, err := exec(t, d, ":step")
	require.NoError(t, err)
	_, err = exec(t, d, ":step")
	require.NoError(t, err)
	out, err := exec(t, d, ":showstate")
	require.NoError(t, err)

	assert.Contains(t, out, "state      : idle")
	assert.Contains(t, out, "step       : 2")
	assert.Contains(t, out, "scenario   : coverage")
	assert.Contains(t, out, "batch      : 0/3 runs")
}

func TestDriverCommands_RunPause(t *testing.T) {
	d := New(sweepSim(t, map[string]string{sim.KeyStepDelay: "3600000"}))
	startDriver(t, d)
	ctx := context.Background()

	_, err := exec(t, d, ":run")
	require.NoError(t, err)
	st, err := d.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Running, st)

	_, err = exec(t, d, ":pause")
	require.NoError(t, err)
	st, err = d.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, Paused, st)
}

func TestDriverCommands_SetGet(t *testing.T) {
	d := New(sweepSim(t, nil))
	startDriver(t, d)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"valid value", []string{sim.KeySpreadFactor, "0.3"}, nil},
		{"unknown key", []string{"no.such.key", "1"}, sim.ErrUnknownSetting},
		{"unparseable", []string{sim.KeyBatchSize, "many"}, sim.ErrInvalidSetting},
		{"fails validation", []string{sim.KeyHazardCap, "2"}, sim.ErrInvalidSetting},
		{"missing value", []string{sim.KeySpreadFactor}, sim.ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec(t, d, ":set", tt.args...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	out, err := exec(t, d, ":get", sim.KeySpreadFactor)
	require.NoError(t, err)
	assert.Equal(t, sim.KeySpreadFactor+" = 0.3\n", out)
	out, err = exec(t, d, ":get", sim.KeyHazardCap)
	require.NoError(t, err)
	assert.Equal(t, sim.KeyHazardCap+" = 1\n", out)
	require.NoError(t, d.Inspect(context.Background(), func(s *sim.Simulation) error {
		assert.Equal(t, 0.3, s.HazardModel().SpreadFactor)
		return nil
	}))
}

func TestDriverCommands_Reports(t *testing.T) {
	d := New(sweepSim(t, nil))
	startDriver(t, d)
	for i := 0; i < 25; i++ {
		_, err := exec(t, d, ":step")
		require.NoError(t, err)
	}

	out, err := exec(t, d, ":stats")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Run Statistics ===")
	assert.Contains(t, out, "=== Batch Statistics ===")

	out, err = exec(t, d, ":showsettings")
	require.NoError(t, err)
	assert.Contains(t, out, sim.KeyBatchSize+" = 3\n")

	out, err = exec(t, d, ":help")
	require.NoError(t, err)
	for _, name := range []string{":run", ":pause", ":step", ":new", ":restart", ":env_printgrid"} {
		assert.Contains(t, out, name)
	}
}

func TestDriverCommands_NewAndRestart(t *testing.T) {
	d := New(sweepSim(t, nil))
	startDriver(t, d)
	first := runID(t, d)

	_, err := exec(t, d, ":step")
	require.NoError(t, err)
	_, err = exec(t, d, ":restart")
	require.NoError(t, err)
	assert.Equal(t, 0, stepCount(t, d))
	restarted := runID(t, d)
	assert.NotEqual(t, first, restarted)

	_, err = exec(t, d, ":new")
	require.NoError(t, err)
	assert.NotEqual(t, restarted, runID(t, d))
}

func TestDriverCommands_Unknown(t *testing.T) {
	d := New(sweepSim(t, nil))
	startDriver(t, d)

	_, err := exec(t, d, ":nope")
	assert.ErrorIs(t, err, sim.ErrUnknownCommand)
}

func TestDriverCommands_SetDisplay(t *testing.T) {
	var out bytes.Buffer
	disp := &countingDisplay{}
	d := New(sweepSim(t, nil), WithDisplay(disp), WithOutput(&out))
	startDriver(t, d)

	// WHEN the text display is selected THEN the old one is disposed and the grid drawn
	_, err := exec(t, d, ":setdisplay", "text")
	require.NoError(t, err)
	_, disposed := disp.counts()
	assert.Equal(t, 1, disposed)
	assert.Contains(t, out.String(), "step 0 ---")

	// AND stepping repaints on the driver output
	_, err = exec(t, d, ":step")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "step 1 ---")

	// WHEN the display is turned off THEN stepping draws nothing
	_, err = exec(t, d, ":setdisplay", "none")
	require.NoError(t, err)
	out.Reset()
	_, err = exec(t, d, ":step")
	require.NoError(t, err)
	assert.Empty(t, out.String())

	_, err = exec(t, d, ":setdisplay", "window")
	assert.ErrorIs(t, err, sim.ErrUsage)
}
