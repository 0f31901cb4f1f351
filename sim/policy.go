package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultPolicyName is the base policy used when the selector names none or an
// unknown one. It is registered by sim/policy.
const DefaultPolicyName = "qlearn"

// Policy is the pluggable decision-maker controlling one agent.
// Init is called once per run before the first Step. Step is called once per
// tick while the agent is unbroken; it observes through the Sensor and acts
// through the Actuator it was built with. A Step error is fatal to the run.
type Policy interface {
	Init() error
	Step(ctx context.Context) error
}

// PolicyEnv carries the capabilities and shared state a policy is built with.
type PolicyEnv struct {
	Sensor   *Sensor
	Actuator *Actuator
	RNG      *rand.Rand
	Config   *Config
	Scenario Scenario
	Memory   *PolicyMemory
}

// PolicyFactory builds a base policy.
type PolicyFactory func(env PolicyEnv) (Policy, error)

// PolicyValidator checks the settings a policy reads, so a bad value is
// rejected when the Config is built rather than when the next run starts.
type PolicyValidator func(cfg *Config) error

// MetaPolicyFactory builds a policy that wraps inner, intercepting or
// overriding its decisions.
type MetaPolicyFactory func(env PolicyEnv, inner Policy) (Policy, error)

var (
	policyFactories     = map[string]PolicyFactory{"random": newRandomPolicy}
	metaPolicyFactories = map[string]MetaPolicyFactory{}
	policyValidators    = map[string]PolicyValidator{}
)

func normalizePolicyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RegisterPolicy makes a base policy available by name. Names are
// case-insensitive. It panics on an empty name or a duplicate registration.
func RegisterPolicy(name string, f PolicyFactory) {
	name = normalizePolicyName(name)
	if name == "" || f == nil {
		panic("sim: RegisterPolicy with empty name or nil factory")
	}
	if _, dup := policyFactories[name]; dup {
		panic(fmt.Sprintf("sim: policy %q registered twice", name))
	}
	policyFactories[name] = f
}

// RegisterMetaPolicy makes a meta policy available by name.
func RegisterMetaPolicy(name string, f MetaPolicyFactory) {
	name = normalizePolicyName(name)
	if name == "" || f == nil {
		panic("sim: RegisterMetaPolicy with empty name or nil factory")
	}
	if _, dup := metaPolicyFactories[name]; dup {
		panic(fmt.Sprintf("sim: meta policy %q registered twice", name))
	}
	metaPolicyFactories[name] = f
}

// RegisterPolicyValidator attaches v to the base or meta policy called name.
// Config.Validate runs the validators of the policies its selector picks.
func RegisterPolicyValidator(name string, v PolicyValidator) {
	name = normalizePolicyName(name)
	if name == "" || v == nil {
		panic("sim: RegisterPolicyValidator with empty name or nil validator")
	}
	if _, dup := policyValidators[name]; dup {
		panic(fmt.Sprintf("sim: policy validator %q registered twice", name))
	}
	policyValidators[name] = v
}

// validatePolicy runs the validators for the policies NewPolicy would build
// from cfg.Policy, with the same fallbacks for unknown names.
func validatePolicy(cfg *Config) error {
	meta, base := ParsePolicySelector(cfg.Policy)
	if _, ok := policyFactories[base]; !ok {
		base = DefaultPolicyName
	}
	var errs []error
	if v, ok := policyValidators[base]; ok {
		if err := v(cfg); err != nil {
			errs = append(errs, fmt.Errorf("policy %q: %w", base, err))
		}
	}
	if _, ok := metaPolicyFactories[meta]; ok && meta != base {
		if v, ok := policyValidators[meta]; ok {
			if err := v(cfg); err != nil {
				errs = append(errs, fmt.Errorf("meta policy %q: %w", meta, err))
			}
		}
	}
	return errors.Join(errs...)
}

// PolicyNames returns the registered base policy names, sorted.
func PolicyNames() []string { return sortedKeys(policyFactories) }

// MetaPolicyNames returns the registered meta policy names, sorted.
func MetaPolicyNames() []string { return sortedKeys(metaPolicyFactories) }

// ParsePolicySelector splits a "[meta+]base" selector into normalized names.
// Meta is empty when the selector has no '+'.
func ParsePolicySelector(selector string) (meta, base string) {
	if before, after, found := strings.Cut(selector, "+"); found {
		return normalizePolicyName(before), normalizePolicyName(after)
	}
	return "", normalizePolicyName(selector)
}

// NewPolicy builds the policy named by selector.
//
// An empty or unknown base falls back to DefaultPolicyName. An unknown meta
// name is ignored and the base policy is returned unwrapped. Both cases log a
// warning.
func NewPolicy(selector string, env PolicyEnv) (Policy, error) {
	meta, base := ParsePolicySelector(selector)

	factory, ok := policyFactories[base]
	if !ok {
		if base != "" {
			logrus.Warnf("unknown policy %q, using %q", base, DefaultPolicyName)
		}
		factory, ok = policyFactories[DefaultPolicyName]
		if !ok {
			return nil, fmt.Errorf("default policy %q is not registered", DefaultPolicyName)
		}
	}
	p, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("building policy %q: %w", base, err)
	}

	if meta == "" {
		return p, nil
	}
	metaFactory, ok := metaPolicyFactories[meta]
	if !ok {
		logrus.Warnf("unknown meta policy %q ignored", meta)
		return p, nil
	}
	wrapped, err := metaFactory(env, p)
	if err != nil {
		return nil, fmt.Errorf("building meta policy %q: %w", meta, err)
	}
	return wrapped, nil
}

// RandomPolicy chooses uniformly among the five primitive actions.
type RandomPolicy struct {
	act *Actuator
	rng *rand.Rand
}

func newRandomPolicy(env PolicyEnv) (Policy, error) {
	return &RandomPolicy{act: env.Actuator, rng: env.RNG}, nil
}

func (p *RandomPolicy) Init() error { return nil }

func (p *RandomPolicy) Step(context.Context) error {
	p.act.TakeActionByID(p.rng.Intn(NumActions))
	return nil
}

// PolicyMemory is state shared by every policy of a simulation and kept across
// runs, such as a learned value table. Values implementing io.Closer are
// closed by Close.
type PolicyMemory struct {
	items map[string]any
}

func NewPolicyMemory() *PolicyMemory {
	return &PolicyMemory{items: make(map[string]any)}
}

// LoadOrCreate returns the value stored under key, creating it with create on
// first use.
func (m *PolicyMemory) LoadOrCreate(key string, create func() (any, error)) (any, error) {
	if v, ok := m.items[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	m.items[key] = v
	return v, nil
}

// Get returns the value stored under key.
func (m *PolicyMemory) Get(key string) (any, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Keys returns the stored keys, sorted.
func (m *PolicyMemory) Keys() []string {
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every stored io.Closer and empties the memory.
func (m *PolicyMemory) Close() error {
	var errs []error
	for _, k := range m.Keys() {
		if c, ok := m.items[k].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", k, err))
			}
		}
	}
	clear(m.items)
	return errors.Join(errs...)
}
