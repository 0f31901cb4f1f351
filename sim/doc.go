// Package sim provides the core tick-based simulation engine for adsim.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - grid.go: GridWorld, the 2-D cell array plus the ordered agent list
//   - agent.go: Agent, Sensor (read-only view) and Actuator (movement, cover, hazard draw)
//   - hazard.go: the per-tick hazard spread/decay update over a delta buffer
//   - simulation.go: one run end to end (placement, tick, terminal check, statistics)
//
// # Architecture
//
// The sim package defines the world model and the extension points; implementations
// of the richer extension points live in sub-packages:
//   - sim/policy/: tabular Q-learning, externally delegated and meta-composite policies
//   - sim/driver/: the tick loop, pacing and run/batch lifecycle
//   - sim/trace/: decision trace recording
//   - sim/store/: run and batch history persistence
//   - sim/control/: MCP server exposing driver operations as tools
//
// Sub-packages register their implementations via init() functions that call
// RegisterPolicy and RegisterMetaPolicy.
//
// # Key Interfaces
//
//   - Policy: Init once per run, Step once per tick while the agent is unbroken
//   - Scenario: terminal-state predicate, reward function and per-run extra metrics
//   - CoverRecorder: receives exactly one call per cover event
//
// Simulation state is not safe for concurrent use; sim/driver serializes all access
// on a single goroutine.
package sim
