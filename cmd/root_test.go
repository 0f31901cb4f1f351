package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/policy"
	"github.com/adversarial-coverage/adsim/sim/store"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.WarnLevel)
	os.Exit(m.Run())
}

func TestRunHeadless_StopsAtRunLimitAndStores(t *testing.T) {
	// GIVEN auto-restart disabled in settings and a memory store
	settings := quietSettings(t, sim.KeyAutoRestart+"=false")
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Init(context.Background()))

	// WHEN three runs are requested
	var out bytes.Buffer
	require.NoError(t, runHeadless(context.Background(), settings, 3, mem, &out))

	// THEN auto-restart was forced, all three runs were stored, and one batch of two completed
	runs, err := mem.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 3)
	for i, r := range runs {
		assert.Equal(t, i+1, r.Run)
		assert.LessOrEqual(t, r.Steps, 20)
	}
	batches, err := mem.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Summary.Runs)
	assert.Contains(t, out.String(), "=== Run Statistics ===")
}

func TestRunHeadless_DefaultsToOneBatch(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Init(context.Background()))

	require.NoError(t, runHeadless(context.Background(), quietSettings(t), 0, mem, &bytes.Buffer{}))

	runs, err := mem.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunHeadless_InvalidPolicyConfiguration(t *testing.T) {
	// GIVEN the externally-delegated policy without an oracle command
	settings := quietSettings(t, sim.KeyPolicySelector+"=external")

	err := runHeadless(context.Background(), settings, 1, nil, &bytes.Buffer{})

	assert.ErrorIs(t, err, policy.ErrNoOracleCommand)
}

func TestRunHeadless_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runHeadless(ctx, quietSettings(t, sim.KeyStepDelay+"=1000"), 5, nil, &bytes.Buffer{})

	assert.Error(t, err)
}
