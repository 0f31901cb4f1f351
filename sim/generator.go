package sim

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"unicode"
)

// DefaultGeneratorExpr is the hazard-field generator used when none is configured.
const DefaultGeneratorExpr = "obstacle=0.1 hazard=sparse(0.3,0,0.25) fuel=uniform(0,0.5) spread=1 cost=1"

// sampler draws one value for a generator field.
type sampler interface {
	sample(rng *rand.Rand) float64
	String() string
}

type constant float64

func (c constant) sample(*rand.Rand) float64 { return float64(c) }
func (c constant) String() string            { return strconv.FormatFloat(float64(c), 'g', -1, 64) }

type uniform struct{ lo, hi float64 }

func (u uniform) sample(rng *rand.Rand) float64 { return u.lo + rng.Float64()*(u.hi-u.lo) }
func (u uniform) String() string                { return fmt.Sprintf("uniform(%g,%g)", u.lo, u.hi) }

// sparse is uniform(lo, hi) with probability p and zero otherwise.
type sparse struct{ p, lo, hi float64 }

func (s sparse) sample(rng *rand.Rand) float64 {
	if rng.Float64() >= s.p {
		return 0
	}
	return s.lo + rng.Float64()*(s.hi-s.lo)
}
func (s sparse) String() string { return fmt.Sprintf("sparse(%g,%g,%g)", s.p, s.lo, s.hi) }

// HazardGenerator populates cell type and hazard fields from an expression of
// whitespace- or semicolon-separated field=value clauses.
//
// Fields: obstacle (probability a cell becomes an obstacle), hazard, fuel,
// spread, cost. Values: a number, uniform(lo,hi) or sparse(p,lo,hi).
// Omitted fields default to obstacle=0 hazard=0 fuel=0 spread=1 cost=1.
type HazardGenerator struct {
	expr   string
	fields map[string]sampler
}

var generatorFields = map[string]float64{
	"obstacle": 0,
	"hazard":   0,
	"fuel":     0,
	"spread":   1,
	"cost":     1,
}

// ParseHazardGenerator compiles a generator expression.
func ParseHazardGenerator(expr string) (*HazardGenerator, error) {
	g := &HazardGenerator{expr: expr, fields: make(map[string]sampler, len(generatorFields))}
	for name, def := range generatorFields {
		g.fields[name] = constant(def)
	}
	for _, clause := range splitClauses(expr) {
		name, raw, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, fmt.Errorf("generator clause %q: missing '=': %w", clause, ErrInvalidSetting)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, known := generatorFields[name]; !known {
			return nil, fmt.Errorf("generator field %q: %w", name, ErrInvalidSetting)
		}
		s, err := parseSampler(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("generator field %q: %w", name, err)
		}
		g.fields[name] = s
	}
	return g, nil
}

// Expr returns the expression the generator was compiled from.
func (g *HazardGenerator) Expr() string { return g.expr }

// Apply draws fresh type and hazard fields for c. Obstacles carry no hazard.
func (g *HazardGenerator) Apply(c *Cell, hazardCap float64, rng *rand.Rand) {
	if rng.Float64() < g.fields["obstacle"].sample(rng) {
		c.Type = Obstacle
	} else {
		c.Type = Free
	}
	hazard := g.fields["hazard"].sample(rng)
	c.HazardFuel = max(0, g.fields["fuel"].sample(rng))
	c.Spreadability = max(0, g.fields["spread"].sample(rng))
	c.Cost = g.fields["cost"].sample(rng)
	if c.IsObstacle() {
		hazard = 0
	}
	c.HazardProb = clampHazard(hazard, hazardCap)
}

// splitClauses splits on whitespace and ';' outside parentheses.
func splitClauses(expr string) []string {
	var clauses []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			clauses = append(clauses, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			depth--
			cur.WriteRune(r)
		case depth == 0 && (r == ';' || unicode.IsSpace(r)):
			flush()
		case unicode.IsSpace(r):
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return clauses
}

func parseSampler(raw string) (sampler, error) {
	open := strings.IndexByte(raw, '(')
	if open < 0 {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !isFinite(v) {
			return nil, fmt.Errorf("value %q: %w", raw, ErrInvalidSetting)
		}
		return constant(v), nil
	}
	if !strings.HasSuffix(raw, ")") {
		return nil, fmt.Errorf("value %q: unbalanced parentheses: %w", raw, ErrInvalidSetting)
	}
	fn := strings.ToLower(raw[:open])
	var args []float64
	for _, part := range strings.Split(raw[open+1:len(raw)-1], ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || !isFinite(v) {
			return nil, fmt.Errorf("value %q: argument %q: %w", raw, part, ErrInvalidSetting)
		}
		args = append(args, v)
	}
	switch {
	case fn == "uniform" && len(args) == 2:
		return uniform{lo: args[0], hi: args[1]}, nil
	case fn == "sparse" && len(args) == 3:
		return sparse{p: args[0], lo: args[1], hi: args[2]}, nil
	default:
		return nil, fmt.Errorf("value %q: unknown function or arity: %w", raw, ErrInvalidSetting)
	}
}
