// Package verify runs the end-to-end derivative check: decode both sides,
// build them under one variable, differentiate f once and compare the result
// with g.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/njchilds90/derivtutor/decode"
	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/symbolic"
)

// Side names which input of a check an error or value belongs to.
type Side string

const (
	SideF Side = "f"
	SideG Side = "g"
)

// ErrParse matches every *ParseError with errors.Is.
var ErrParse = errors.New("verify: parse error")

// ParseError reports that one side's formula could not be built. Err is
// usually a *symbolic.ParseError.
type ParseError struct {
	Side    Side
	Formula string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("verify: cannot build %s from %q: %v", e.Side, e.Formula, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// MaxDerivativeNodes bounds the tree size of f's derivative. Checks whose
// derivative grows past it fail with symbolic.ErrTooComplex.
const MaxDerivativeNodes = 100000

// Operand is one decoded and built side of a check.
type Operand struct {
	Parsed decode.ParsedExpression
	Expr   symbolic.Expr
}

// Outcome is the result of a successful check.
type Outcome struct {
	F, G       Operand
	Variable   string
	Derivative symbolic.Expr
	Result     equiv.Result
}

// Verifier runs checks with a particular equivalence engine.
type Verifier struct {
	Engine *equiv.Engine
}

// New returns a Verifier using engine, or the default engine when nil.
func New(engine *equiv.Engine) *Verifier {
	if engine == nil {
		engine = equiv.New(equiv.Options{})
	}
	return &Verifier{Engine: engine}
}

var defaultVerifier = New(nil)

// Verify checks gRaw against the derivative of fRaw with the default engine.
// fRaw and gRaw may be any input decode.Decode accepts.
func Verify(fRaw, gRaw any, variableHint string) (*Outcome, error) {
	return defaultVerifier.Verify(fRaw, gRaw, variableHint)
}

// Verify checks gRaw against the derivative of fRaw. The variable is f's own
// when it carries one, otherwise the hint, otherwise "x".
func (v *Verifier) Verify(fRaw, gRaw any, variableHint string) (*Outcome, error) {
	return v.VerifyContext(context.Background(), fRaw, gRaw, variableHint)
}

// VerifyContext is Verify that gives up between stages once ctx is done,
// returning the context's error.
func (v *Verifier) VerifyContext(ctx context.Context, fRaw, gRaw any, variableHint string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := decode.Decode(fRaw)
	g := decode.Decode(gRaw)
	variable := ResolveVariable(f, variableHint)

	fExpr, err := symbolic.Parse(f.Formula, variable)
	if err != nil {
		return nil, &ParseError{Side: SideF, Formula: f.Formula, Err: err}
	}
	gExpr, err := symbolic.Parse(g.Formula, variable)
	if err != nil {
		return nil, &ParseError{Side: SideG, Formula: g.Formula, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := symbolic.DiffWithin(fExpr, variable, MaxDerivativeNodes)
	if err != nil {
		return nil, fmt.Errorf("verify: differentiating f: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{
		F:          Operand{Parsed: f, Expr: fExpr},
		G:          Operand{Parsed: g, Expr: gExpr},
		Variable:   variable,
		Derivative: d,
		Result:     v.Engine.Check(d, gExpr, variable),
	}, nil
}

// ResolveVariable picks the active variable for a check.
func ResolveVariable(f decode.ParsedExpression, hint string) string {
	if f.VariableExplicit {
		return f.Variable
	}
	if h, ok := decode.SanitizeVariable(hint); ok {
		return h
	}
	return decode.DefaultVariable
}
