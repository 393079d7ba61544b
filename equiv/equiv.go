// Package equiv decides whether two expressions are the same function of one
// variable. An exact symbolic test runs first and a numeric test at fixed
// probe points always runs after it; either one succeeding is enough.
package equiv

import (
	"math"

	"github.com/njchilds90/derivtutor/symbolic"
)

// Verdict is the summary outcome of a check.
type Verdict string

const (
	Correct   Verdict = "correct"
	Incorrect Verdict = "incorrect"
)

// Stats counts the probe points that produced two finite values (Tested)
// and, of those, the points where the values agreed (Matched).
type Stats struct {
	Tested  int `json:"tested"`
	Matched int `json:"matched"`
}

// Result of one equivalence check. Verdict is Correct exactly when
// SymbolicEqual or NumericEqual holds.
type Result struct {
	SymbolicEqual bool    `json:"symbolic_equal"`
	NumericEqual  bool    `json:"numeric_equal"`
	Stats         Stats   `json:"numeric_stats"`
	Verdict       Verdict `json:"verdict"`
}

const (
	// Tolerance scales the match threshold |a-b| <= Tolerance*(1+|a|+|b|).
	Tolerance = 1e-6
	// MinTested is the smallest sample that can establish numeric equality.
	MinTested = 4
	// MinMatched is the floor on matching points regardless of sample size.
	MinMatched = 3
)

var defaultProbes = []float64{-3, -2, -1, -0.5, -1.0 / 3, 0.5, 1, 2, 3}

// DefaultProbes returns a copy of the fixed probe set.
func DefaultProbes() []float64 {
	return append([]float64(nil), defaultProbes...)
}

// Options configures an Engine.
type Options struct {
	// Probes replaces the default probe set when non-empty.
	Probes []float64
}

// Engine runs equivalence checks against a fixed probe set. An Engine holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	probes []float64
}

// New returns an Engine for opts.
func New(opts Options) *Engine {
	probes := opts.Probes
	if len(probes) == 0 {
		probes = defaultProbes
	}
	return &Engine{probes: append([]float64(nil), probes...)}
}

var defaultEngine = New(Options{})

// Check compares candidate and student with the default probe set.
func Check(candidate, student symbolic.Expr, variable string) Result {
	return defaultEngine.Check(candidate, student, variable)
}

// Probes returns a copy of the engine's probe set.
func (e *Engine) Probes() []float64 {
	return append([]float64(nil), e.probes...)
}

// Check compares candidate and student as functions of variable.
func (e *Engine) Check(candidate, student symbolic.Expr, variable string) Result {
	res := Result{SymbolicEqual: SymbolicZero(symbolic.Sub(candidate, student))}
	res.Stats = e.sample(candidate, student, variable)
	res.NumericEqual = numericEqual(res.Stats)
	res.Verdict = Incorrect
	if res.SymbolicEqual || res.NumericEqual {
		res.Verdict = Correct
	}
	return res
}

const (
	// maxSymbolicNodes is the largest difference the symbolic tier examines.
	maxSymbolicNodes = 50000
	// maxExpandProducts caps the products expansion may form.
	maxExpandProducts = 1 << 14
)

// SymbolicZero reports whether diff simplifies to exactly zero, first as is
// and then after expansion. A difference too large to simplify, or one whose
// expansion outgrows its budget, is reported as not zero and left to the
// numeric tier.
func SymbolicZero(diff symbolic.Expr) bool {
	if symbolic.Size(diff, maxSymbolicNodes) > maxSymbolicNodes {
		return false
	}
	d := symbolic.DeepSimplify(diff)
	if isZero(d) {
		return true
	}
	expanded, ok := symbolic.ExpandWithin(d, maxExpandProducts)
	if !ok {
		return false
	}
	return isZero(symbolic.DeepSimplify(expanded))
}

func isZero(e symbolic.Expr) bool {
	n, ok := e.(*symbolic.Num)
	return ok && n.IsZero()
}

func (e *Engine) sample(a, b symbolic.Expr, variable string) Stats {
	var st Stats
	env := map[string]float64{}
	for _, p := range e.probes {
		env[variable] = p
		av, ok := evalFinite(a, env)
		if !ok {
			continue
		}
		bv, ok := evalFinite(b, env)
		if !ok {
			continue
		}
		st.Tested++
		if Close(av, bv) {
			st.Matched++
		}
	}
	return st
}

func evalFinite(e symbolic.Expr, env map[string]float64) (float64, bool) {
	v, err := symbolic.Evaluate(e, env)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Close reports |a-b| <= 1e-6*(1+|a|+|b|).
func Close(a, b float64) bool {
	return math.Abs(a-b) <= Tolerance*(1+math.Abs(a)+math.Abs(b))
}

// numericEqual needs MinTested points and max(MinMatched, ceil(0.8*tested))
// matches.
func numericEqual(st Stats) bool {
	if st.Tested < MinTested {
		return false
	}
	need := (4*st.Tested + 4) / 5
	if need < MinMatched {
		need = MinMatched
	}
	return st.Matched >= need
}
