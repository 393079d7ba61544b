package symbolic

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTooComplex is returned when a result outgrows its node budget.
var ErrTooComplex = errors.New("symbolic: expression too complex")

// ============================================================
// Top-level convenience functions
// ============================================================

func Simplify(e Expr) Expr { return e.Simplify() }
func String(e Expr) string { return e.String() }
func LaTeX(e Expr) string  { return e.LaTeX() }

// Diff differentiates expr with respect to varName. Every tree Parse can
// build differentiates successfully; the result is deep-simplified.
func Diff(expr Expr, varName string) Expr {
	return DeepSimplify(expr.Diff(varName))
}

// DiffWithin is Diff with a bound on the derivative's size. The raw
// derivative is measured before simplification; more than maxNodes nodes
// yields ErrTooComplex.
func DiffWithin(expr Expr, varName string, maxNodes int) (Expr, error) {
	d := expr.Diff(varName)
	if Size(d, maxNodes) > maxNodes {
		return nil, fmt.Errorf("%w: derivative has more than %d nodes", ErrTooComplex, maxNodes)
	}
	return DeepSimplify(d), nil
}

func Diff2(expr Expr, varName string) Expr {
	return Diff(Diff(expr, varName), varName)
}

func DiffN(expr Expr, varName string, n int) Expr {
	result := expr
	for i := 0; i < n; i++ {
		result = Diff(result, varName)
	}
	return result
}

// Evaluate computes e numerically with the given symbol bindings. Domain
// violations and poles surface as NaN or ±Inf rather than errors; a symbol
// missing from env yields ErrUnbound.
func Evaluate(e Expr, env map[string]float64) (float64, error) {
	return e.eval(env)
}

func ToJSON(e Expr) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// ============================================================
// Deep Simplification and Trig Identities
// ============================================================

// TrigSimplify applies sin²+cos²=1 wherever a sum contains both halves with
// equal coefficients.
func TrigSimplify(e Expr) Expr {
	return trigSimplifyExpr(e.Simplify()).Simplify()
}

func trigSimplifyExpr(e Expr) Expr {
	switch v := e.(type) {
	case *Add:
		newTerms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			newTerms[i] = trigSimplifyExpr(t)
		}
		return trigFindPythagorean(AddOf(newTerms...))
	case *Mul:
		newFactors := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			newFactors[i] = trigSimplifyExpr(f)
		}
		return MulOf(newFactors...)
	case *Pow:
		return PowOf(trigSimplifyExpr(v.base), v.exp)
	case *Func:
		return funcOf(v.kind, trigSimplifyExpr(v.arg)).Simplify()
	}
	return e
}

// trigFindPythagorean folds every c*sin(u)**2 + c*cos(u)**2 pair in a sum
// to c in one pass.
func trigFindPythagorean(e Expr) Expr {
	add, ok := e.(*Add)
	if !ok {
		return e
	}
	type half struct {
		idx   int
		coeff *Num
	}
	open := map[string]half{}
	dropped := map[int]bool{}
	var folded []Expr
	for idx, t := range add.terms {
		coeff, inner := extractCoefficient(t)
		kind, arg, ok := squaredSinCos(inner)
		if !ok {
			continue
		}
		partner := FuncCos
		if kind == FuncCos {
			partner = FuncSin
		}
		suffix := "|" + arg.String() + "|" + coeff.String()
		if h, ok := open[partner.String()+suffix]; ok {
			delete(open, partner.String()+suffix)
			dropped[h.idx], dropped[idx] = true, true
			folded = append(folded, h.coeff)
			continue
		}
		if _, ok := open[kind.String()+suffix]; !ok {
			open[kind.String()+suffix] = half{idx: idx, coeff: coeff}
		}
	}
	if len(folded) == 0 {
		return e
	}
	newTerms := folded
	for idx, t := range add.terms {
		if !dropped[idx] {
			newTerms = append(newTerms, t)
		}
	}
	return AddOf(newTerms...)
}

func squaredSinCos(e Expr) (FuncKind, Expr, bool) {
	p, ok := e.(*Pow)
	if !ok {
		return 0, nil, false
	}
	en, ok := p.exp.(*Num)
	if !ok || !en.Equal(N(2)) {
		return 0, nil, false
	}
	fn, ok := p.base.(*Func)
	if !ok || (fn.kind != FuncSin && fn.kind != FuncCos) {
		return 0, nil, false
	}
	return fn.kind, fn.arg, true
}

// DeepSimplify applies repeated simplification+trig passes until stable.
func DeepSimplify(e Expr) Expr {
	prev := ""
	curr := e.Simplify()
	for i := 0; i < 10; i++ {
		str := curr.String()
		if str == prev {
			break
		}
		prev = str
		curr = TrigSimplify(curr).Simplify()
	}
	return curr
}

// ============================================================
// Expand
// ============================================================

// maxExpandTerms caps the number of products a single distribution step may
// produce; larger products are left factored.
const maxExpandTerms = 4096

// expandBudget caps the products one Expand call may form in total.
const expandBudget = 1 << 16

// Expand distributes products over sums and small integer powers of sums,
// including inside function arguments. Expansion stops early, leaving the
// rest factored, once it would form too many products.
func Expand(e Expr) Expr {
	out, _ := ExpandWithin(e, expandBudget)
	return out
}

// ExpandWithin is Expand with an explicit cap on the products formed. It
// reports false when expansion stopped early; the result is then only
// partly expanded but still equal to e.
func ExpandWithin(e Expr, budget int) (Expr, bool) {
	x := &expander{budget: budget}
	out := x.expand(e).Simplify()
	return out, !x.exhausted
}

type expander struct {
	budget    int
	exhausted bool
}

func (x *expander) expand(e Expr) Expr {
	if x.exhausted {
		return e
	}
	switch v := e.(type) {
	case *Mul:
		acc := Expr(N(1))
		for _, f := range v.factors {
			acc = x.distribute(acc, x.expand(f))
		}
		return acc
	case *Add:
		newTerms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			newTerms[i] = x.expand(t)
		}
		return AddOf(newTerms...)
	case *Pow:
		base := x.expand(v.base)
		if n, ok := v.exp.(*Num); ok && n.IsInteger() {
			if _, isAdd := base.(*Add); isAdd && n.val.Num().IsInt64() {
				exp := n.val.Num().Int64()
				if exp >= 2 && exp <= 10 {
					result := Expr(N(1))
					for i := int64(0); i < exp; i++ {
						result = x.distribute(result, base)
					}
					return result
				}
			}
		}
		return PowOf(base, x.expand(v.exp))
	case *Func:
		return funcOf(v.kind, x.expand(v.arg)).Simplify()
	}
	return e
}

func (x *expander) distribute(a, b Expr) Expr {
	at, bt := termsOf(a), termsOf(b)
	n := len(at) * len(bt)
	if x.exhausted || n > maxExpandTerms || n > x.budget {
		x.exhausted = true
		return MulOf(a, b)
	}
	x.budget -= n
	terms := make([]Expr, 0, n)
	for _, p := range at {
		for _, q := range bt {
			terms = append(terms, MulOf(p, q))
		}
	}
	return AddOf(terms...)
}

func termsOf(e Expr) []Expr {
	if a, ok := e.(*Add); ok {
		return a.terms
	}
	return []Expr{e}
}

// ============================================================
// Free Symbols
// ============================================================

func FreeSymbols(e Expr) map[string]struct{} {
	result := map[string]struct{}{}
	collectSymbols(e, result)
	return result
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, out)
		}
	case *Pow:
		collectSymbols(v.base, out)
		collectSymbols(v.exp, out)
	case *Func:
		collectSymbols(v.arg, out)
	}
}

// Size counts the nodes of e as a tree, stopping once the count passes
// limit.
func Size(e Expr, limit int) int {
	n := 0
	var walk func(Expr)
	walk = func(e Expr) {
		if n > limit {
			return
		}
		n++
		switch v := e.(type) {
		case *Add:
			for _, t := range v.terms {
				walk(t)
			}
		case *Mul:
			for _, f := range v.factors {
				walk(f)
			}
		case *Pow:
			walk(v.base)
			walk(v.exp)
		case *Func:
			walk(v.arg)
		}
	}
	walk(e)
	return n
}
