package verify_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/derivtutor/decode"
	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/symbolic"
	"github.com/njchilds90/derivtutor/verify"
)

func TestVerify_FreeTextCorrect(t *testing.T) {
	out, err := verify.Verify(
		"SYMPY: x**2\nLATEX: x^{2}\nVAR: x",
		"SYMPY: 2*x\nLATEX: 2x\nVAR: x",
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Variable)
	assert.Equal(t, "2*x", symbolic.String(out.Derivative))
	assert.True(t, out.Result.SymbolicEqual)
	assert.Equal(t, equiv.Correct, out.Result.Verdict)
}

func TestVerify_Incorrect(t *testing.T) {
	out, err := verify.Verify(
		map[string]any{"expr_sympy": "x**2"},
		map[string]any{"expr_sympy": "3*x"},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, equiv.Incorrect, out.Result.Verdict)
	assert.Equal(t, equiv.Stats{Tested: 9, Matched: 0}, out.Result.Stats)
}

func TestVerify_VariableResolution(t *testing.T) {
	tests := []struct {
		name string
		f    any
		hint string
		want string
	}{
		{"f variable wins", "SYMPY: t**2\nVAR: t", "s", "t"},
		{"hint when f has none", "SYMPY: s**2", "s", "s"},
		{"hint sanitized", "SYMPY: s**2", "9s!", "s"},
		{"default x", "SYMPY: x**2", "", "x"},
		{"bad hint falls back", "SYMPY: x**2", "123", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := verify.Verify(tt.f, "SYMPY: 2*"+tt.want, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Variable)
			assert.Equal(t, equiv.Correct, out.Result.Verdict)
		})
	}
}

func TestVerify_ParseErrorF(t *testing.T) {
	_, err := verify.Verify("SYMPY: foo(x)", "SYMPY: 1", "")
	require.Error(t, err)

	var pe *verify.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, verify.SideF, pe.Side)
	assert.Equal(t, "foo(x)", pe.Formula)
	assert.True(t, errors.Is(err, verify.ErrParse))

	var spe *symbolic.ParseError
	assert.True(t, errors.As(err, &spe), "kernel error stays reachable")
}

func TestVerify_ParseErrorG(t *testing.T) {
	_, err := verify.Verify("SYMPY: x**2", "SYMPY: 2x", "")
	var pe *verify.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, verify.SideG, pe.Side)
	assert.Equal(t, "2x", pe.Formula)
}

func TestVerify_EmptyFormulaIsParseError(t *testing.T) {
	_, err := verify.Verify("nothing useful", "SYMPY: 1", "")
	var pe *verify.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, verify.SideF, pe.Side)
}

func TestVerify_Idempotent(t *testing.T) {
	f := `{"expr_sympy": "sin(x)*exp(x)", "variable": "x"}`
	g := "SYMPY: exp(x)*(sin(x) + cos(x))"
	first, err := verify.Verify(f, g, "x")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := verify.Verify(f, g, "x")
		require.NoError(t, err)
		assert.Equal(t, first.Result, again.Result)
		assert.Equal(t, first.Report(), again.Report())
	}
}

func TestVerifier_CustomEngine(t *testing.T) {
	v := verify.New(equiv.New(equiv.Options{Probes: []float64{1, 2}}))
	out, err := v.Verify("SYMPY: x**2", "SYMPY: 2*x + 0.0000001", "")
	require.NoError(t, err)
	assert.False(t, out.Result.NumericEqual, "two probes cannot establish numeric equality")
	assert.Equal(t, equiv.Incorrect, out.Result.Verdict)
}

func TestReport_JSONShape(t *testing.T) {
	out, err := verify.Verify(
		decode.ParsedExpression{Formula: "x**3", DisplayForm: "x^{3}", Variable: "x"},
		"SYMPY: 3*x**2\nLATEX: 3x^{2}",
		"",
	)
	require.NoError(t, err)

	b, err := json.Marshal(out.Report())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "x", m["variable"])
	assert.Equal(t, "correct", m["verdict"])
	assert.Equal(t, true, m["symbolic_equal"])
	assert.Equal(t, true, m["numeric_equal"])
	assert.Equal(t, map[string]any{"tested": float64(9), "matched": float64(9)}, m["numeric_stats"])
	assert.Equal(t, map[string]any{"display": "x^{3}", "formula": "x**3"}, m["f"])
	assert.Equal(t, map[string]any{"display": "3x^{2}", "formula": "3*x**2"}, m["g"])
	assert.Equal(t, map[string]any{"latex": "3 x^{2}", "formula": "3*x**2"}, m["derivative"])
}

// productOfSines returns sin(2*x)*sin(3*x)*...*sin((n+1)*x).
func productOfSines(n int) string {
	factors := make([]string, n)
	for i := range factors {
		factors[i] = fmt.Sprintf("sin(%d*x)", i+2)
	}
	return strings.Join(factors, "*")
}

func verifyWithin(t *testing.T, d time.Duration, f, g string) (*verify.Outcome, error) {
	t.Helper()
	type result struct {
		out *verify.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := verify.Verify(f, g, "")
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(d):
		t.Fatalf("check of %.40q still running after %s", f, d)
		return nil, nil
	}
}

func TestVerify_HugeExponents(t *testing.T) {
	out, err := verifyWithin(t, 5*time.Second, "SYMPY: 2**4611686018427387904\nVAR: x", "SYMPY: 0")
	require.NoError(t, err)
	assert.Equal(t, "0", symbolic.String(out.Derivative))
	assert.Equal(t, equiv.Correct, out.Result.Verdict)

	out, err = verifyWithin(t, 5*time.Second, "SYMPY: x*3**3074457345618258603", "SYMPY: 0")
	require.NoError(t, err)
	assert.Equal(t, equiv.Incorrect, out.Result.Verdict)
}

func TestVerify_ShortHostileFormulasFinish(t *testing.T) {
	formulas := []string{
		"x" + strings.Repeat("**x", 11),
		"x" + strings.Repeat("**x", 29),
		"(sin(x)+cos(x)+tan(x)+x+1)**8*(sin(x)-cos(x)+x+2)**8",
		"(sin(x)+cos(x)+tan(x)+x+1)**10*(sin(x)-cos(x)+x+2)**10",
	}
	for _, f := range formulas {
		out, err := verifyWithin(t, 5*time.Second, "SYMPY: "+f, "SYMPY: 0")
		require.NoError(t, err, f)
		assert.Equal(t, equiv.Incorrect, out.Result.Verdict, f)
	}
}

func TestVerify_LargePowerProductChecksNumerically(t *testing.T) {
	out, err := verifyWithin(t, 5*time.Second,
		"SYMPY: (x + 1)**10*(sin(x) + cos(x) + tan(x) + x + 2)**10",
		"SYMPY: 10*(x + 1)**9*(sin(x) + cos(x) + tan(x) + x + 2)**10 + "+
			"10*(x + 1)**10*(sin(x) + cos(x) + tan(x) + x + 2)**9*(cos(x) - sin(x) + 1/cos(x)**2 + 1)")
	require.NoError(t, err)
	assert.True(t, out.Result.NumericEqual)
	assert.Equal(t, equiv.Correct, out.Result.Verdict)
}

func TestVerify_DerivativeTooComplex(t *testing.T) {
	_, err := verifyWithin(t, 10*time.Second, "SYMPY: "+productOfSines(300), "SYMPY: 0")
	require.Error(t, err)
	assert.ErrorIs(t, err, symbolic.ErrTooComplex)
	assert.NotErrorIs(t, err, verify.ErrParse)
}

func TestVerifyContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := verify.New(nil).VerifyContext(ctx, "SYMPY: x**2", "SYMPY: 2*x", "")
	assert.ErrorIs(t, err, context.Canceled)

	out, err := verify.New(nil).VerifyContext(context.Background(), "SYMPY: x**2", "SYMPY: 2*x", "")
	require.NoError(t, err)
	assert.Equal(t, equiv.Correct, out.Result.Verdict)
}
