package symbolic

import (
	"math"
)

// ============================================================
// Func: named function applications
// ============================================================

// FuncKind enumerates the closed set of elementary functions a tree may
// contain. There is no way to build a Func outside this set.
type FuncKind int

const (
	FuncSin FuncKind = iota
	FuncCos
	FuncTan
	FuncCot
	FuncSec
	FuncCsc
	FuncAsin
	FuncAcos
	FuncAtan
	FuncSinh
	FuncCosh
	FuncTanh
	FuncAsinh
	FuncAcosh
	FuncAtanh
	FuncLn
	FuncExp
	FuncAbs
)

var funcNames = [...]string{
	FuncSin:   "sin",
	FuncCos:   "cos",
	FuncTan:   "tan",
	FuncCot:   "cot",
	FuncSec:   "sec",
	FuncCsc:   "csc",
	FuncAsin:  "asin",
	FuncAcos:  "acos",
	FuncAtan:  "atan",
	FuncSinh:  "sinh",
	FuncCosh:  "cosh",
	FuncTanh:  "tanh",
	FuncAsinh: "asinh",
	FuncAcosh: "acosh",
	FuncAtanh: "atanh",
	FuncLn:    "log",
	FuncExp:   "exp",
	FuncAbs:   "abs",
}

func (k FuncKind) String() string { return funcNames[k] }

// odd reports f(-u) = -f(u); even reports f(-u) = f(u).
func (k FuncKind) odd() bool {
	switch k {
	case FuncSin, FuncTan, FuncCot, FuncCsc, FuncAsin, FuncAtan, FuncSinh, FuncTanh, FuncAsinh, FuncAtanh:
		return true
	}
	return false
}

func (k FuncKind) even() bool {
	switch k {
	case FuncCos, FuncSec, FuncCosh, FuncAbs:
		return true
	}
	return false
}

type Func struct {
	kind       FuncKind
	arg        Expr
	simplified bool
	str        strCache
}

func funcOf(kind FuncKind, arg Expr) *Func { return &Func{kind: kind, arg: arg} }

func SinOf(arg Expr) Expr   { return funcOf(FuncSin, arg).Simplify() }
func CosOf(arg Expr) Expr   { return funcOf(FuncCos, arg).Simplify() }
func TanOf(arg Expr) Expr   { return funcOf(FuncTan, arg).Simplify() }
func CotOf(arg Expr) Expr   { return funcOf(FuncCot, arg).Simplify() }
func SecOf(arg Expr) Expr   { return funcOf(FuncSec, arg).Simplify() }
func CscOf(arg Expr) Expr   { return funcOf(FuncCsc, arg).Simplify() }
func AsinOf(arg Expr) Expr  { return funcOf(FuncAsin, arg).Simplify() }
func AcosOf(arg Expr) Expr  { return funcOf(FuncAcos, arg).Simplify() }
func AtanOf(arg Expr) Expr  { return funcOf(FuncAtan, arg).Simplify() }
func SinhOf(arg Expr) Expr  { return funcOf(FuncSinh, arg).Simplify() }
func CoshOf(arg Expr) Expr  { return funcOf(FuncCosh, arg).Simplify() }
func TanhOf(arg Expr) Expr  { return funcOf(FuncTanh, arg).Simplify() }
func AsinhOf(arg Expr) Expr { return funcOf(FuncAsinh, arg).Simplify() }
func AcoshOf(arg Expr) Expr { return funcOf(FuncAcosh, arg).Simplify() }
func AtanhOf(arg Expr) Expr { return funcOf(FuncAtanh, arg).Simplify() }
func LnOf(arg Expr) Expr    { return funcOf(FuncLn, arg).Simplify() }
func ExpOf(arg Expr) Expr   { return funcOf(FuncExp, arg).Simplify() }
func AbsOf(arg Expr) Expr   { return funcOf(FuncAbs, arg).Simplify() }
func SqrtOf(arg Expr) Expr  { return PowOf(arg, F(1, 2)) }

// LogOf returns the base-b logarithm of arg as ln(arg)/ln(b).
func LogOf(arg, b Expr) Expr { return Div(LnOf(arg), LnOf(b)) }

// Simplify folds only exact values; sin(1) stays symbolic.
func (f *Func) Simplify() Expr {
	if f.simplified {
		return f
	}
	arg := f.arg.Simplify()

	if pos, ok := negated(arg); ok {
		if f.kind.odd() {
			return MulOf(N(-1), funcOf(f.kind, pos).Simplify())
		}
		if f.kind.even() {
			return funcOf(f.kind, pos).Simplify()
		}
	}

	if n, ok := arg.(*Num); ok {
		switch f.kind {
		case FuncSin, FuncTan, FuncAsin, FuncAtan, FuncSinh, FuncTanh, FuncAsinh, FuncAtanh:
			if n.IsZero() {
				return N(0)
			}
		case FuncCos, FuncCosh, FuncSec, FuncExp:
			if n.IsZero() {
				return N(1)
			}
		case FuncLn, FuncAcos, FuncAcosh:
			if n.IsOne() {
				return N(0)
			}
		case FuncAbs:
			return numAbs(n)
		}
	}
	switch f.kind {
	case FuncLn:
		if c, ok := arg.(*Const); ok && c == E {
			return N(1)
		}
		if inner, ok := arg.(*Func); ok && inner.kind == FuncExp {
			return inner.arg
		}
	case FuncExp:
		if inner, ok := arg.(*Func); ok && inner.kind == FuncLn {
			return inner.arg
		}
	case FuncAbs:
		if inner, ok := arg.(*Func); ok && inner.kind == FuncAbs {
			return inner
		}
	}
	return &Func{kind: f.kind, arg: arg, simplified: true}
}

func (f *Func) String() string {
	return f.str.get(func() string { return f.kind.String() + "(" + f.arg.String() + ")" })
}

func (f *Func) LaTeX() string {
	inner := "\\left(" + f.arg.LaTeX() + "\\right)"
	switch f.kind {
	case FuncSin, FuncCos, FuncTan, FuncCot, FuncSec, FuncCsc, FuncSinh, FuncCosh, FuncTanh, FuncExp:
		return "\\" + f.kind.String() + inner
	case FuncLn:
		return "\\ln" + inner
	case FuncAsin:
		return "\\arcsin" + inner
	case FuncAcos:
		return "\\arccos" + inner
	case FuncAtan:
		return "\\arctan" + inner
	case FuncAbs:
		return "\\left|" + f.arg.LaTeX() + "\\right|"
	}
	return "\\operatorname{" + f.kind.String() + "}" + inner
}

func (f *Func) Diff(varName string) Expr {
	du := f.arg.Diff(varName)
	u := f.arg
	oneMinusSq := AddOf(N(1), MulOf(N(-1), PowOf(u, N(2))))
	var outer Expr
	switch f.kind {
	case FuncSin:
		outer = CosOf(u)
	case FuncCos:
		outer = MulOf(N(-1), SinOf(u))
	case FuncTan:
		outer = AddOf(N(1), PowOf(TanOf(u), N(2)))
	case FuncCot:
		outer = MulOf(N(-1), AddOf(N(1), PowOf(CotOf(u), N(2))))
	case FuncSec:
		outer = MulOf(SecOf(u), TanOf(u))
	case FuncCsc:
		outer = MulOf(N(-1), CscOf(u), CotOf(u))
	case FuncAsin:
		outer = PowOf(oneMinusSq, F(-1, 2))
	case FuncAcos:
		outer = MulOf(N(-1), PowOf(oneMinusSq, F(-1, 2)))
	case FuncAtan:
		outer = PowOf(AddOf(N(1), PowOf(u, N(2))), N(-1))
	case FuncSinh:
		outer = CoshOf(u)
	case FuncCosh:
		outer = SinhOf(u)
	case FuncTanh:
		outer = AddOf(N(1), MulOf(N(-1), PowOf(TanhOf(u), N(2))))
	case FuncAsinh:
		outer = PowOf(AddOf(PowOf(u, N(2)), N(1)), F(-1, 2))
	case FuncAcosh:
		outer = PowOf(AddOf(PowOf(u, N(2)), N(-1)), F(-1, 2))
	case FuncAtanh:
		outer = PowOf(oneMinusSq, N(-1))
	case FuncLn:
		outer = PowOf(u, N(-1))
	case FuncExp:
		outer = ExpOf(u)
	case FuncAbs:
		// d|u|/du = u/|u|, undefined at zero like the function's kink.
		outer = MulOf(u, PowOf(AbsOf(u), N(-1)))
	}
	return MulOf(outer, du)
}

func (f *Func) eval(env map[string]float64) (float64, error) {
	v, err := f.arg.eval(env)
	if err != nil {
		return 0, err
	}
	switch f.kind {
	case FuncSin:
		return math.Sin(v), nil
	case FuncCos:
		return math.Cos(v), nil
	case FuncTan:
		return math.Tan(v), nil
	case FuncCot:
		return 1 / math.Tan(v), nil
	case FuncSec:
		return 1 / math.Cos(v), nil
	case FuncCsc:
		return 1 / math.Sin(v), nil
	case FuncAsin:
		return math.Asin(v), nil
	case FuncAcos:
		return math.Acos(v), nil
	case FuncAtan:
		return math.Atan(v), nil
	case FuncSinh:
		return math.Sinh(v), nil
	case FuncCosh:
		return math.Cosh(v), nil
	case FuncTanh:
		return math.Tanh(v), nil
	case FuncAsinh:
		return math.Asinh(v), nil
	case FuncAcosh:
		return math.Acosh(v), nil
	case FuncAtanh:
		return math.Atanh(v), nil
	case FuncLn:
		return math.Log(v), nil
	case FuncExp:
		return math.Exp(v), nil
	case FuncAbs:
		return math.Abs(v), nil
	}
	return math.NaN(), nil
}

func (f *Func) Equal(other Expr) bool {
	o, ok := other.(*Func)
	return ok && f.kind == o.kind && f.arg.Equal(o.arg)
}

func (f *Func) exprType() string { return "func" }
func (f *Func) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "func", "name": f.kind.String(), "arg": f.arg.toJSON()}
}
