package control

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// StepInput defines the input for sim_step.
type StepInput struct {
	Count int `json:"count,omitempty" jsonschema:"number of ticks to execute, default 1"`
}

// AgentOutput describes one agent.
type AgentOutput struct {
	ID     int  `json:"id"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Broken bool `json:"broken"`
}

// StateOutput defines the output for sim_state and the control tools.
type StateOutput struct {
	State       string        `json:"state" jsonschema:"driver state: idle, running, paused or killed"`
	RunID       string        `json:"run_id"`
	Scenario    string        `json:"scenario"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Step        int           `json:"step" jsonschema:"ticks executed in the current run"`
	Terminal    bool          `json:"terminal" jsonschema:"whether the current run has reached a terminal state"`
	Failed      string        `json:"failed,omitempty" jsonschema:"error that failed the current run"`
	Coverage    float64       `json:"coverage" jsonschema:"covered free cells over free cells"`
	Agents      []AgentOutput `json:"agents"`
	RunsInBatch int           `json:"runs_in_batch"`
	BatchSize   int           `json:"batch_size"`
}

// StepOutput defines the output for sim_step.
type StepOutput struct {
	Executed int         `json:"executed" jsonschema:"step requests processed"`
	State    StateOutput `json:"state"`
}

// DumpGridOutput defines the output for sim_dump_grid.
type DumpGridOutput struct {
	Grid   string `json:"grid" jsonschema:"diagnostic dump, one line per row"`
	Hazard string `json:"hazard" jsonschema:"hazard probabilities, x-major, whitespace separated"`
}

// RunBrief is a stored run in sim_stats history.
type RunBrief struct {
	RunID         string  `json:"run_id"`
	Run           int     `json:"run"`
	Steps         int     `json:"steps"`
	Coverage      float64 `json:"coverage"`
	Survivability float64 `json:"survivability"`
}

// StatsOutput defines the output for sim_stats.
type StatsOutput struct {
	Report  string     `json:"report" jsonschema:"current run, batch and trace report"`
	History []RunBrief `json:"history,omitempty" jsonschema:"finished runs, oldest first"`
}

// CommandInput defines the input for sim_command.
type CommandInput struct {
	Name string   `json:"name" jsonschema:"registered command name, e.g. :env_printgrid"`
	Args []string `json:"args,omitempty" jsonschema:"command arguments"`
}

// CommandOutput defines the output for sim_command.
type CommandOutput struct {
	Output string `json:"output" jsonschema:"text the command wrote"`
}
