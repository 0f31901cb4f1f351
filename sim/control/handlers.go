package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adversarial-coverage/adsim/sim"
	"github.com/adversarial-coverage/adsim/sim/driver"
	"github.com/adversarial-coverage/adsim/sim/trace"
)

// maxStepsPerCall bounds sim_step so one call cannot hold the loop forever.
const maxStepsPerCall = 10000

// historyLimit is the number of stored runs sim_stats returns.
const historyLimit = 50

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_step",
		Description: "Pause the loop and execute one or more ticks of the current run",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_run",
		Description: "Start or resume the paced tick loop",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_pause",
		Description: "Pause the tick loop before its next tick",
	}, s.handlePause)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_new_run",
		Description: "Discard the current run and start a fresh world and statistics batch",
	}, s.handleNewRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_restart",
		Description: "Reset coverage of the current world and place the agents again",
	}, s.handleRestart)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_state",
		Description: "Report driver state, grid size, step count and agent positions",
	}, s.handleState)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_dump_grid",
		Description: "Dump the grid (OBS, FREE or hazard per cell, with coverage markers) and the hazard field",
	}, s.handleDumpGrid)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_stats",
		Description: "Report current run, batch and decision-trace statistics and the stored run history",
	}, s.handleStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sim_command",
		Description: "Execute a registered simulator command such as :env_set_robot_pos or :set",
	}, s.handleCommand)
}

func (s *Server) handleStep(ctx context.Context, _ *sdk.CallToolRequest, args StepInput) (*sdk.CallToolResult, StepOutput, error) {
	n := args.Count
	if n <= 0 {
		n = 1
	}
	if n > maxStepsPerCall {
		return nil, StepOutput{}, fmt.Errorf("count %d exceeds %d", n, maxStepsPerCall)
	}
	executed := 0
	for ; executed < n; executed++ {
		if err := s.driver.Step(ctx); err != nil {
			return nil, StepOutput{}, fmt.Errorf("step %d: %w", executed+1, err)
		}
	}
	st, err := s.state(ctx)
	if err != nil {
		return nil, StepOutput{}, err
	}
	return nil, StepOutput{Executed: executed, State: st}, nil
}

func (s *Server) handleRun(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StateOutput, error) {
	return s.control(ctx, s.driver.Run)
}

func (s *Server) handlePause(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StateOutput, error) {
	return s.control(ctx, s.driver.Pause)
}

func (s *Server) handleNewRun(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StateOutput, error) {
	return s.control(ctx, s.driver.NewRun)
}

func (s *Server) handleRestart(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StateOutput, error) {
	return s.control(ctx, s.driver.Restart)
}

func (s *Server) handleState(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StateOutput, error) {
	st, err := s.state(ctx)
	return nil, st, err
}

// control applies op and reports the resulting state.
func (s *Server) control(ctx context.Context, op func(context.Context) error) (*sdk.CallToolResult, StateOutput, error) {
	if err := op(ctx); err != nil {
		return nil, StateOutput{}, err
	}
	st, err := s.state(ctx)
	return nil, st, err
}

func (s *Server) state(ctx context.Context) (StateOutput, error) {
	state, err := s.driver.State(ctx)
	if err != nil {
		return StateOutput{}, err
	}
	out := StateOutput{State: state.String()}
	if failed := s.driver.Err(ctx); failed != nil {
		out.Failed = failed.Error()
	}
	err = s.driver.Inspect(ctx, func(sm *sim.Simulation) error {
		w := sm.World()
		out.RunID = sm.RunID()
		out.Scenario = sm.Scenario().Name()
		out.Width, out.Height = w.Width(), w.Height()
		out.Step = w.StepCount()
		out.Terminal = sm.IsTerminal()
		if free := w.FreeCellCount(); free > 0 {
			out.Coverage = float64(w.CoveredFreeCellCount()) / float64(free)
		}
		out.RunsInBatch = sm.Stats().RunsInBatch()
		out.BatchSize = sm.Stats().BatchSize()
		out.Agents = make([]AgentOutput, 0, len(w.Agents()))
		for _, a := range w.Agents() {
			out.Agents = append(out.Agents, AgentOutput{ID: a.ID, X: a.X, Y: a.Y, Broken: a.Broken})
		}
		return nil
	})
	if err != nil && !errors.Is(err, driver.ErrKilled) {
		return StateOutput{}, err
	}
	return out, nil
}

func (s *Server) handleDumpGrid(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, DumpGridOutput, error) {
	var out DumpGridOutput
	err := s.driver.Inspect(ctx, func(sm *sim.Simulation) error {
		var sb strings.Builder
		if err := sm.World().PrintGrid(&sb); err != nil {
			return err
		}
		out.Grid = sb.String()
		out.Hazard = sm.World().ExportHazard()
		return nil
	})
	return nil, out, err
}

func (s *Server) handleStats(ctx context.Context, _ *sdk.CallToolRequest, _ EmptyInput) (*sdk.CallToolResult, StatsOutput, error) {
	var out StatsOutput
	err := s.driver.Inspect(ctx, func(sm *sim.Simulation) error {
		var sb strings.Builder
		stats := sm.Stats()
		stats.Snapshot().Print(&sb)
		if stats.RunsInBatch() > 0 {
			stats.BatchProgress().Print(&sb)
		}
		if v, ok := sm.Memory().Get(trace.MemoryKey); ok {
			if st, ok := v.(*trace.SimulationTrace); ok {
				trace.Summarize(st).Print(&sb)
			}
		}
		out.Report = sb.String()
		return nil
	})
	if err != nil {
		return nil, StatsOutput{}, err
	}
	if s.store != nil {
		runs, err := s.store.ListRuns(ctx)
		if err != nil {
			return nil, StatsOutput{}, fmt.Errorf("run history: %w", err)
		}
		if len(runs) > historyLimit {
			runs = runs[len(runs)-historyLimit:]
		}
		for _, r := range runs {
			out.History = append(out.History, RunBrief{
				RunID:         r.RunID,
				Run:           r.Run,
				Steps:         r.Steps,
				Coverage:      r.Coverage,
				Survivability: r.Survivability,
			})
		}
	}
	return nil, out, nil
}

func (s *Server) handleCommand(ctx context.Context, _ *sdk.CallToolRequest, args CommandInput) (*sdk.CallToolResult, CommandOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, CommandOutput{}, errors.New("command name is required")
	}
	if !strings.HasPrefix(name, ":") {
		name = ":" + name
	}
	var sb strings.Builder
	if err := s.driver.Exec(ctx, &sb, name, args.Args); err != nil {
		return nil, CommandOutput{}, err
	}
	return nil, CommandOutput{Output: sb.String()}, nil
}
