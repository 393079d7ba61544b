package symbolic_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/njchilds90/derivtutor/symbolic"
)

// ============================================================
// Parse tests
// ============================================================

func mustParse(t *testing.T, formula, variable string) symbolic.Expr {
	t.Helper()
	e, err := symbolic.Parse(formula, variable)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", formula, err)
	}
	return e
}

func evalAt(t *testing.T, e symbolic.Expr, variable string, v float64) float64 {
	t.Helper()
	got, err := symbolic.Evaluate(e, map[string]float64{variable: v})
	if err != nil {
		t.Fatalf("Evaluate(%s) failed: %v", e, err)
	}
	return got
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		formula string
		at      float64
		want    float64
	}{
		{"2**3**2", 0, 512},
		{"-x**2", 3, -9},
		{"1e3*x", 1, 1000},
		{".5*x", 2, 1},
		{"x/2/2", 8, 2},
		{"x - -x", 4, 8},
		{"sqrt(x)", 9, 3},
		{"abs(x)", -2, 2},
		{"exp(0) + ln(E)", 0, 2},
		{"pi*x", 1, math.Pi},
		{"π*x", 1, math.Pi},
		{"e**x", 1, math.E},
		{"arctan(x)", 1, math.Pi / 4},
	}
	for _, tt := range tests {
		e := mustParse(t, tt.formula, "x")
		if got := evalAt(t, e, "x", tt.at); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s at x=%v: want %v, got %v", tt.formula, tt.at, tt.want, got)
		}
	}
}

func TestParse_LogWithBase(t *testing.T) {
	e := mustParse(t, "log(x, 2)", "x")
	if got := evalAt(t, e, "x", 8); math.Abs(got-3) > 1e-12 {
		t.Errorf("log(8, 2) should be 3, got %v", got)
	}
}

func TestParse_VariableShadowsConstant(t *testing.T) {
	e := mustParse(t, "e**2", "e")
	if symbolic.String(e) != "e**2" {
		t.Errorf("want e**2 as a power of the variable, got %s", symbolic.String(e))
	}
	d := symbolic.Diff(e, "e")
	if symbolic.String(d) != "2*e" {
		t.Errorf("want 2*e, got %s", symbolic.String(d))
	}
}

func TestParse_SecondSymbol(t *testing.T) {
	e := mustParse(t, "x*y", "x")
	syms := symbolic.FreeSymbols(e)
	if _, ok := syms["y"]; !ok || len(syms) != 2 {
		t.Errorf("want free symbols {x, y}, got %v", syms)
	}
	if symbolic.String(symbolic.Diff(e, "x")) != "y" {
		t.Errorf("d/dx(x*y) should be y, got %s", symbolic.String(symbolic.Diff(e, "x")))
	}
}

func TestParse_DivisionByZeroIsAPole(t *testing.T) {
	e := mustParse(t, "1/0 + x", "x")
	if got := evalAt(t, e, "x", 1); !math.IsInf(got, 1) {
		t.Errorf("1/0 should evaluate to +Inf, got %v", got)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	formulas := []string{
		"x**2 + 3*x",
		"sin(x)*cos(x)",
		"exp(-x)/x",
		"sqrt(x**2 + 1)",
		"log(x)**2 - x",
		"atan(1/x)",
		"abs(x) - 1/2",
		"-2*x + pi",
		"(x + 1)**(1/3)",
	}
	for _, f := range formulas {
		first := symbolic.String(mustParse(t, f, "x"))
		second := symbolic.String(mustParse(t, first, "x"))
		if first != second {
			t.Errorf("%s: round trip changed %q into %q", f, first, second)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		formula string
		reason  string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"x^2", "**"},
		{"2x", "implicit"},
		{"x(x+1)", "implicit"},
		{"(x+1)(x-1)", "implicit"},
		{"(2x)", "implicit"},
		{"(x+1", "unbalanced"},
		{"x+1)", "unbalanced"},
		{"foo(x)", "unknown function"},
		{"z", "unknown identifier"},
		{"import os", "unknown identifier"},
		{"__import__('os')", "unexpected character"},
		{"sin", "parenthesised"},
		{"sin()", "needs an argument"},
		{"sin(x, 2)", "one argument"},
		{"log(x, 2, 3)", "one argument"},
		{"x $ 2", "unexpected character"},
		{"x +", "end of formula"},
	}
	for _, tt := range tests {
		_, err := symbolic.Parse(tt.formula, "x")
		var pe *symbolic.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%q: want *ParseError, got %v", tt.formula, err)
			continue
		}
		if !strings.Contains(pe.Reason, tt.reason) {
			t.Errorf("%q: want reason containing %q, got %q", tt.formula, tt.reason, pe.Reason)
		}
		if pe.Formula != tt.formula {
			t.Errorf("%q: error should carry the formula, got %q", tt.formula, pe.Formula)
		}
	}
}

func TestParse_DepthLimit(t *testing.T) {
	ok := strings.Repeat("(", 10) + "x" + strings.Repeat(")", 10)
	if _, err := symbolic.Parse(ok, "x"); err != nil {
		t.Errorf("shallow nesting should parse, got %v", err)
	}
	deep := strings.Repeat("(", 200) + "x" + strings.Repeat(")", 200)
	if _, err := symbolic.Parse(deep, "x"); err == nil {
		t.Error("deep nesting should be rejected")
	}
	unary := strings.Repeat("-", 200) + "x"
	if _, err := symbolic.Parse(unary, "x"); err == nil {
		t.Error("deep unary chain should be rejected")
	}
}

func TestParse_LengthLimit(t *testing.T) {
	long := "x" + strings.Repeat(" + x", symbolic.MaxFormulaLen)
	if _, err := symbolic.Parse(long, "x"); err == nil {
		t.Error("overlong formula should be rejected")
	}
}

// finishesWithin fails the test when fn is still running after d.
func finishesWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("still running after %s", d)
	}
}

func TestParse_HugeExponentNotFolded(t *testing.T) {
	tests := []string{
		"2**4611686018427387904",
		"x*3**3074457345618258603",
		"2**(-9223372036854775808)",
		"(1/2)**9223372036854775807",
	}
	for _, formula := range tests {
		var (
			e   symbolic.Expr
			err error
		)
		finishesWithin(t, 2*time.Second, func() { e, err = symbolic.Parse(formula, "x") })
		if err != nil {
			t.Errorf("%s: %v", formula, err)
			continue
		}
		if got := symbolic.String(e); !strings.Contains(got, "**") {
			t.Errorf("%s: want the power left unfolded, got %s", formula, got)
		}
	}
}

func TestParse_MinInt64ExponentKeepsValue(t *testing.T) {
	e := mustParse(t, "2**(-9223372036854775808)", "x")
	if got := evalAt(t, e, "x", 0); got != 0 {
		t.Errorf("want 2**(-2**63) to underflow to 0, got %v", got)
	}
}

// ============================================================
// Differentiation rules, checked numerically
// ============================================================

func TestDiff_Rules(t *testing.T) {
	tests := []struct {
		f, want string
		at      []float64
	}{
		{"tan(x)", "1/cos(x)**2", []float64{0.3, -1.1}},
		{"cot(x)", "-1/sin(x)**2", []float64{0.3, 2}},
		{"sec(x)", "sin(x)/cos(x)**2", []float64{0.3, -1.1}},
		{"csc(x)", "-cos(x)/sin(x)**2", []float64{0.3, 2}},
		{"asin(x)", "1/sqrt(1 - x**2)", []float64{0.3, -0.7}},
		{"acos(x)", "-1/sqrt(1 - x**2)", []float64{0.3, -0.7}},
		{"atan(x)", "1/(1 + x**2)", []float64{0.3, -2}},
		{"sinh(x)", "cosh(x)", []float64{0.3, -2}},
		{"cosh(x)", "sinh(x)", []float64{0.3, -2}},
		{"tanh(x)", "1/cosh(x)**2", []float64{0.3, -2}},
		{"asinh(x)", "1/sqrt(x**2 + 1)", []float64{0.3, -2}},
		{"acosh(x)", "1/sqrt(x**2 - 1)", []float64{1.5, 3}},
		{"atanh(x)", "1/(1 - x**2)", []float64{0.3, -0.7}},
		{"ln(x)", "1/x", []float64{0.3, 2}},
		{"abs(x)", "x/abs(x)", []float64{0.3, -2}},
		{"2**x", "2**x*ln(2)", []float64{0.3, -2}},
		{"x**x", "x**x*(ln(x) + 1)", []float64{0.3, 2}},
		{"sin(x**2)", "2*x*cos(x**2)", []float64{0.3, -2}},
		{"x*exp(x)", "exp(x) + x*exp(x)", []float64{0.3, -2}},
		{"log(x, 10)", "1/(x*ln(10))", []float64{0.3, 2}},
	}
	for _, tt := range tests {
		d := symbolic.Diff(mustParse(t, tt.f, "x"), "x")
		want := mustParse(t, tt.want, "x")
		for _, v := range tt.at {
			got, exp := evalAt(t, d, "x", v), evalAt(t, want, "x", v)
			if math.Abs(got-exp) > 1e-9*(1+math.Abs(exp)) {
				t.Errorf("d/dx %s at x=%v: want %v, got %v (derivative %s)", tt.f, v, exp, got, d)
			}
		}
	}
}

func TestDiff_NestedTowersFinish(t *testing.T) {
	tests := []string{
		"x" + strings.Repeat("**x", 11),
		"x" + strings.Repeat("**x", 29),
		"(sin(x)+cos(x)+tan(x)+x+1)**10*(sin(x)-cos(x)+x+2)**10",
		strings.Repeat("sec(", 40) + "x" + strings.Repeat(")", 40),
	}
	for _, f := range tests {
		e := mustParse(t, f, "x")
		finishesWithin(t, 5*time.Second, func() {
			d := symbolic.Diff(e, "x")
			symbolic.DeepSimplify(symbolic.Expand(d))
		})
	}
}

func TestDiff_TowerValue(t *testing.T) {
	// d/dx x**(x**x) = x**(x**x) * x**x * ((ln(x) + 1)*ln(x) + 1/x)
	d := symbolic.Diff(mustParse(t, "x**x**x", "x"), "x")
	want := mustParse(t, "x**(x**x)*x**x*((ln(x) + 1)*ln(x) + 1/x)", "x")
	for _, v := range []float64{0.5, 1.3, 2} {
		got, exp := evalAt(t, d, "x", v), evalAt(t, want, "x", v)
		if math.Abs(got-exp) > 1e-9*(1+math.Abs(exp)) {
			t.Errorf("at x=%v: want %v, got %v", v, exp, got)
		}
	}
}

func TestDiff_OutputReparses(t *testing.T) {
	for _, f := range []string{"asin(x)", "x**x", "abs(x)*sec(x)", "log(x, 2)", "atanh(x**2)"} {
		d := symbolic.Diff(mustParse(t, f, "x"), "x")
		if _, err := symbolic.Parse(symbolic.String(d), "x"); err != nil {
			t.Errorf("derivative of %s printed as %q does not reparse: %v", f, symbolic.String(d), err)
		}
	}
}
