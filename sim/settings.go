package sim

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownSetting is returned for keys that were never registered.
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrInvalidSetting is returned for values that cannot be parsed or are out of range.
	ErrInvalidSetting = errors.New("invalid setting value")
)

// SettingKind is the value type of a setting key.
type SettingKind int

const (
	KindBool SettingKind = iota
	KindInt
	KindFloat
	KindString
)

func (k SettingKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

type settingDef struct {
	kind SettingKind
	def  any
	help string
}

// Setting keys read by the core.
const (
	KeyGridWidth          = "env.grid.width"
	KeyGridHeight         = "env.grid.height"
	KeyGridMinWidth       = "env.grid.minwidth"
	KeyGridMaxWidth       = "env.grid.maxwidth"
	KeyGridMinHeight      = "env.grid.minheight"
	KeyGridMaxHeight      = "env.grid.maxheight"
	KeyForceSquare        = "env.grid.force_square"
	KeyVariableGridSize   = "env.variable_grid_size"
	KeyClearAdjacent      = "env.clear_adjacent_cells_on_init"
	KeyGeneratorExpr      = "env.grid.dangervalues"
	KeyStepDelay          = "autorun.stepdelay"
	KeyAutoRestart        = "autorun.finished.newgrid"
	KeyRepaint            = "autorun.do_repaint"
	KeyRandomizeStart     = "autorun.randomize_robot_start"
	KeyMaxStepsPerRun     = "autorun.max_steps_per_run"
	KeyAgentCount         = "robots.count"
	KeyBreakable          = "robots.breakable"
	KeySpreadFactor       = "hazard.spread_factor"
	KeyDecayFactor        = "hazard.decay_factor"
	KeyHazardCap          = "hazard.cap"
	KeyBatchSize          = "stats.multirun.batch_size"
	KeyPolicySelector     = "adsim.algorithm_name"
	KeyScenario           = "adsim.scenario"
	KeySeed               = "sim.seed"
	KeyQLearnAlpha        = "qlearn.alpha"
	KeyQLearnGamma        = "qlearn.gamma"
	KeyQLearnEpsilon      = "qlearn.epsilon"
	KeyExternalCommand    = "policy.external.command"
	KeyClearGoalNeighbors = "pathplan.clear_obstacles_adjacent_to_goal"
	KeyPostInitHook       = "hooks.env.post_init.cmd"
)

var settingDefs = map[string]settingDef{
	KeyGridWidth:          {KindInt, 10, "grid width for a new run"},
	KeyGridHeight:         {KindInt, 10, "grid height for a new run"},
	KeyGridMinWidth:       {KindInt, 5, "minimum width when the grid size is variable"},
	KeyGridMaxWidth:       {KindInt, 20, "maximum width when the grid size is variable"},
	KeyGridMinHeight:      {KindInt, 5, "minimum height when the grid size is variable"},
	KeyGridMaxHeight:      {KindInt, 20, "maximum height when the grid size is variable"},
	KeyForceSquare:        {KindBool, false, "use the sampled width as height"},
	KeyVariableGridSize:   {KindBool, false, "re-sample grid size on regeneration"},
	KeyClearAdjacent:      {KindBool, true, "clear obstacles around a randomly placed agent"},
	KeyGeneratorExpr:      {KindString, DefaultGeneratorExpr, "hazard field generator expression"},
	KeyStepDelay:          {KindInt, 50, "target delay between ticks in milliseconds"},
	KeyAutoRestart:        {KindBool, true, "start a new run when a run finishes"},
	KeyRepaint:            {KindBool, true, "refresh the display after every tick"},
	KeyRandomizeStart:     {KindBool, true, "randomize agent placement on init"},
	KeyMaxStepsPerRun:     {KindInt, 0, "step cap per run, 0 for none"},
	KeyAgentCount:         {KindInt, 4, "number of agents"},
	KeyBreakable:          {KindBool, true, "hazards disable agents"},
	KeySpreadFactor:       {KindFloat, 0.1, "hazard spread factor"},
	KeyDecayFactor:        {KindFloat, 0.1, "hazard decay factor"},
	KeyHazardCap:          {KindFloat, 1.0, "upper bound of a cell's hazard probability"},
	KeyBatchSize:          {KindInt, 10, "runs per statistics batch"},
	KeyPolicySelector:     {KindString, DefaultPolicyName, "policy selector, [meta+]base"},
	KeyScenario:           {KindString, ScenarioCoverage, "scenario: coverage or pathplan"},
	KeySeed:               {KindInt, 42, "master random seed"},
	KeyQLearnAlpha:        {KindFloat, 0.1, "Q-learning rate"},
	KeyQLearnGamma:        {KindFloat, 0.9, "Q-learning discount"},
	KeyQLearnEpsilon:      {KindFloat, 0.1, "Q-learning exploration rate"},
	KeyExternalCommand:    {KindString, "", "command line of the external decision oracle"},
	KeyClearGoalNeighbors: {KindBool, true, "clear obstacles around the pathplan goal"},
	KeyPostInitHook:       {KindString, "", "command line run after every world init"},
}

// Settings is a key-based store of typed configuration values. Every key has a
// registered kind and default; values are only replaced by parseable input.
type Settings struct {
	values map[string]any
}

// NewSettings returns Settings holding the registered defaults.
func NewSettings() *Settings {
	s := &Settings{values: make(map[string]any, len(settingDefs))}
	for k, d := range settingDefs {
		s.values[k] = d.def
	}
	return s
}

// Clone returns an independent copy.
func (s *Settings) Clone() *Settings {
	c := &Settings{values: make(map[string]any, len(s.values))}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Has reports whether key is registered.
func (s *Settings) Has(key string) bool {
	_, ok := settingDefs[key]
	return ok
}

// Keys returns every registered key in sorted order.
func (s *Settings) Keys() []string {
	keys := make([]string, 0, len(settingDefs))
	for k := range settingDefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Help returns the one-line description of key.
func (s *Settings) Help(key string) string {
	return settingDefs[key].help
}

func (s *Settings) lookup(key string, want SettingKind) (any, error) {
	d, ok := settingDefs[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}
	if d.kind != want {
		return nil, fmt.Errorf("%q is a %s setting, not %s: %w", key, d.kind, want, ErrInvalidSetting)
	}
	return s.values[key], nil
}

func (s *Settings) Bool(key string) (bool, error) {
	v, err := s.lookup(key, KindBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *Settings) Int(key string) (int, error) {
	v, err := s.lookup(key, KindInt)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Settings) Float(key string) (float64, error) {
	v, err := s.lookup(key, KindFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (s *Settings) String(key string) (string, error) {
	v, err := s.lookup(key, KindString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Format renders the value of key as text.
func (s *Settings) Format(key string) (string, error) {
	d, ok := settingDefs[key]
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}
	switch d.kind {
	case KindFloat:
		return strconv.FormatFloat(s.values[key].(float64), 'g', -1, 64), nil
	default:
		return fmt.Sprint(s.values[key]), nil
	}
}

// Set parses raw according to the kind of key and stores it. Settings are left
// unchanged on error.
func (s *Settings) Set(key, raw string) error {
	v, err := parseSetting(key, raw)
	if err != nil {
		return err
	}
	s.values[key] = v
	return nil
}

// Apply sets every entry or none of them.
func (s *Settings) Apply(entries map[string]string) error {
	parsed := make(map[string]any, len(entries))
	for k, raw := range entries {
		v, err := parseSetting(k, raw)
		if err != nil {
			return err
		}
		parsed[k] = v
	}
	for k, v := range parsed {
		s.values[k] = v
	}
	return nil
}

func parseSetting(key, raw string) (any, error) {
	d, ok := settingDefs[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}
	raw = strings.TrimSpace(raw)
	switch d.kind {
	case KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q: %q is not a bool: %w", key, raw, ErrInvalidSetting)
		}
		return v, nil
	case KindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q: %q is not an int: %w", key, raw, ErrInvalidSetting)
		}
		return v, nil
	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isFinite(v) {
			return nil, fmt.Errorf("%q: %q is not a finite number: %w", key, raw, ErrInvalidSetting)
		}
		return v, nil
	default:
		return raw, nil
	}
}
