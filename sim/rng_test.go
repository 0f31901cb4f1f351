package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.seed, int64(NewSimulationKey(tt.seed)))
		})
	}
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		assert.Equal(t, rng1.ForSubsystem(SubsystemHazard).Float64(), rng2.ForSubsystem(SubsystemHazard).Float64(), "draw %d", i)
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN two RNGs from the same key
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	fresh := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN A draws heavily from the generator subsystem
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemGenerator).Float64()
	}

	// THEN A's hazard stream still starts at its first value
	assert.Equal(t, fresh.ForSubsystem(SubsystemHazard).Float64(), rngA.ForSubsystem(SubsystemHazard).Float64())
}

func TestPartitionedRNG_GeneratorUsesMasterSeed(t *testing.T) {
	seed := int64(42)
	generatorRNG := NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemGenerator)
	directRNG := rand.New(rand.NewSource(seed))

	for i := 0; i < 10; i++ {
		assert.Equal(t, directRNG.Float64(), generatorRNG.Float64(), "draw %d", i)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	assert.Same(t, rng.ForSubsystem(SubsystemPlacement), rng.ForSubsystem(SubsystemPlacement))
	assert.Equal(t, SimulationKey(42), rng.Key())
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	require.Empty(t, rng.subsystems)

	rng.ForSubsystem(SubsystemGenerator)
	assert.Len(t, rng.subsystems, 1)
}

func TestFnv1a64_NoCollisionBetweenSubsystems(t *testing.T) {
	names := []string{
		SubsystemGenerator,
		SubsystemPlacement,
		SubsystemHazard,
		SubsystemScenario,
		SubsystemAgentPolicy(0),
		SubsystemAgentPolicy(1),
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func TestSubsystemAgentPolicy(t *testing.T) {
	assert.Equal(t, "policy_0", SubsystemAgentPolicy(0))
	assert.Equal(t, "policy_17", SubsystemAgentPolicy(17))
}

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemHazard)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemHazard)
	}
}
