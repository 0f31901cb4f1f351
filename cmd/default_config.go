package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/adversarial-coverage/adsim/sim"
)

// loadSettings builds the simulator settings: registered defaults, then the
// YAML file at configPath when set, then the --set overrides. A later override
// of the same key wins. Either every override applies or none does.
func loadSettings(configPath string, overrides []string) (*sim.Settings, error) {
	settings := sim.NewSettings()
	if configPath != "" {
		if err := sim.LoadSettingsFile(configPath, settings); err != nil {
			return nil, fmt.Errorf("loading %s: %w", configPath, err)
		}
	}
	entries := make(map[string]string, len(overrides))
	for _, raw := range overrides {
		key, value, err := parseOverride(raw)
		if err != nil {
			return nil, err
		}
		entries[key] = value
	}
	if err := settings.Apply(entries); err != nil {
		return nil, fmt.Errorf("applying --set overrides: %w", err)
	}
	return settings, nil
}

// parseOverride splits a key=value flag. The value may itself contain '='.
func parseOverride(raw string) (key, value string, err error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid --set %q: expected key=value", raw)
	}
	return key, strings.TrimSpace(value), nil
}

// dumpSettings writes the effective settings as a YAML document that
// --config reads back.
func dumpSettings(w io.Writer, settings *sim.Settings) error {
	data, err := sim.MarshalSettingsYAML(settings)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
