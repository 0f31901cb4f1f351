package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicySelector(t *testing.T) {
	tests := []struct {
		selector   string
		meta, base string
	}{
		{"qlearn", "", "qlearn"},
		{" QLearn ", "", "qlearn"},
		{"external+qlearn", "external", "qlearn"},
		{"Trace + Random", "trace", "random"},
		{"+random", "", "random"},
		{"", "", ""},
	}
	for _, tt := range tests {
		meta, base := ParsePolicySelector(tt.selector)
		assert.Equal(t, tt.meta, meta, tt.selector)
		assert.Equal(t, tt.base, base, tt.selector)
	}
}

// withFactories swaps the registries for the duration of a test.
func withFactories(t *testing.T, base map[string]PolicyFactory, meta map[string]MetaPolicyFactory) {
	t.Helper()
	oldBase, oldMeta := policyFactories, metaPolicyFactories
	policyFactories, metaPolicyFactories = base, meta
	t.Cleanup(func() { policyFactories, metaPolicyFactories = oldBase, oldMeta })
}

type namedPolicy struct {
	name  string
	inner Policy
}

func (p *namedPolicy) Init() error                { return nil }
func (p *namedPolicy) Step(context.Context) error { return nil }

func namedFactory(name string) PolicyFactory {
	return func(PolicyEnv) (Policy, error) { return &namedPolicy{name: name}, nil }
}

func TestNewPolicy_Resolution(t *testing.T) {
	withFactories(t,
		map[string]PolicyFactory{
			DefaultPolicyName: namedFactory("default"),
			"other":           namedFactory("other"),
		},
		map[string]MetaPolicyFactory{
			"wrap": func(_ PolicyEnv, inner Policy) (Policy, error) {
				return &namedPolicy{name: "wrap", inner: inner}, nil
			},
		})

	tests := []struct {
		selector  string
		wantName  string
		wantInner string
		wantWarn  bool
	}{
		{"other", "other", "", false},
		{"", "default", "", false},
		{"bogus", "default", "", true},
		{"wrap+other", "wrap", "other", false},
		{"nosuchmeta+other", "other", "", true},
		{"wrap+bogus", "wrap", "default", true},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			hook := test.NewGlobal()
			defer hook.Reset()

			p, err := NewPolicy(tt.selector, PolicyEnv{})
			require.NoError(t, err)

			np := p.(*namedPolicy)
			assert.Equal(t, tt.wantName, np.name)
			if tt.wantInner != "" {
				assert.Equal(t, tt.wantInner, np.inner.(*namedPolicy).name)
			}
			assert.Equal(t, tt.wantWarn, len(hook.AllEntries()) > 0)
		})
	}
}

func TestNewPolicy_NoDefaultRegistered(t *testing.T) {
	withFactories(t, map[string]PolicyFactory{}, map[string]MetaPolicyFactory{})
	_, err := NewPolicy("missing", PolicyEnv{})
	assert.Error(t, err)
}

func TestNewPolicy_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	withFactories(t,
		map[string]PolicyFactory{"bad": func(PolicyEnv) (Policy, error) { return nil, boom }},
		map[string]MetaPolicyFactory{})
	_, err := NewPolicy("bad", PolicyEnv{})
	assert.ErrorIs(t, err, boom)
}

func TestRegisterPolicy_Panics(t *testing.T) {
	withFactories(t, map[string]PolicyFactory{"taken": namedFactory("taken")}, map[string]MetaPolicyFactory{})

	assert.Panics(t, func() { RegisterPolicy("", namedFactory("x")) })
	assert.Panics(t, func() { RegisterPolicy("x", nil) })
	assert.Panics(t, func() { RegisterPolicy(" TAKEN ", namedFactory("x")) })
	assert.NotPanics(t, func() { RegisterPolicy("fresh", namedFactory("x")) })
	assert.Equal(t, []string{"fresh", "taken"}, PolicyNames())

	inner := func(PolicyEnv, Policy) (Policy, error) { return nil, nil }
	RegisterMetaPolicy("m", inner)
	assert.Panics(t, func() { RegisterMetaPolicy("M", inner) })
	assert.Equal(t, []string{"m"}, MetaPolicyNames())
}

func TestRandomPolicy_ActsOncePerStep(t *testing.T) {
	w := NewGridWorld(5, 5)
	a := NewAgent(0, 2, 2)
	w.AddAgent(a)
	rec := &recorder{}
	p, err := newRandomPolicy(PolicyEnv{
		Actuator: NewActuator(w, a, testRules(false, rec)),
		RNG:      rand.New(rand.NewSource(5)),
	})
	require.NoError(t, err)
	require.NoError(t, p.Init())
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Step(context.Background()))
	}
	assert.Equal(t, 20, rec.events[0])
	assert.Equal(t, 20, totalCoverCount(w))
}

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestPolicyMemory(t *testing.T) {
	m := NewPolicyMemory()
	created := 0
	create := func() (any, error) {
		created++
		return &closer{}, nil
	}

	v1, err := m.LoadOrCreate("a", create)
	require.NoError(t, err)
	v2, err := m.LoadOrCreate("a", create)
	require.NoError(t, err)
	assert.Same(t, v1, v2)
	assert.Equal(t, 1, created)

	_, err = m.LoadOrCreate("b", func() (any, error) { return nil, errors.New("nope") })
	assert.Error(t, err)
	_, ok := m.Get("b")
	assert.False(t, ok, "failed creation stores nothing")

	failing := &closer{err: errors.New("close failed")}
	_, _ = m.LoadOrCreate("c", func() (any, error) { return failing, nil })
	_, _ = m.LoadOrCreate("d", func() (any, error) { return 42, nil })
	assert.Equal(t, []string{"a", "c", "d"}, m.Keys())

	err = m.Close()
	assert.ErrorContains(t, err, "closing c")
	assert.Equal(t, 1, v1.(*closer).closed)
	assert.Equal(t, 1, failing.closed)
	assert.Empty(t, m.Keys())
}
