// Package policy provides the learning and oracle-backed decision policies.
// Importing it (usually blank) registers them with the sim policy registry.
package policy

import (
	"fmt"
	"strings"

	"github.com/adversarial-coverage/adsim/sim"
)

func init() {
	sim.RegisterPolicy(sim.DefaultPolicyName, newQLearnFromEnv)
	sim.RegisterPolicy("dql", newQLearnFromEnv)
	sim.RegisterPolicy("external", newExternalFromEnv)
	sim.RegisterMetaPolicy("external", newExternalMetaFromEnv)
	sim.RegisterMetaPolicy("trace", newTraceFromEnv)

	sim.RegisterPolicyValidator(sim.DefaultPolicyName, validateQLearn)
	sim.RegisterPolicyValidator("dql", validateQLearn)
	sim.RegisterPolicyValidator("external", validateExternal)
}

func validateQLearn(cfg *sim.Config) error {
	_, err := qlearnParams(cfg.Settings)
	return err
}

// validateExternal serves both the base and the meta "external" policy.
func validateExternal(cfg *sim.Config) error {
	command, err := cfg.Settings.String(sim.KeyExternalCommand)
	if err != nil {
		return err
	}
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: %w", ErrNoOracleCommand, sim.ErrInvalidSetting)
	}
	return nil
}
