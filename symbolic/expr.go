// Package symbolic is the exact expression kernel behind the derivative
// checker.
//
// Design goals:
//   - Exact rational arithmetic (math/big.Rat)
//   - Deterministic simplification and stable output
//   - A closed vocabulary: trees come from Parse over an allow-list, never
//     from evaluating text
//   - String output that Parse accepts back, LaTeX output for display
//
// Every constructor returns a simplified tree and no operation mutates a
// tree after construction, so expressions may be shared across goroutines.
package symbolic

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync/atomic"
)

// ============================================================
// Core Interface
// ============================================================

type Expr interface {
	Simplify() Expr
	String() string
	LaTeX() string
	Diff(varName string) Expr
	Equal(other Expr) bool
	eval(env map[string]float64) (float64, error)
	exprType() string
	toJSON() map[string]interface{}
}

// ErrUnbound is returned by Evaluate when a symbol has no value in the
// environment.
var ErrUnbound = errors.New("symbolic: unbound symbol")

// strCache memoizes the rendering of an immutable node. Concurrent first
// calls may render twice; they store equal strings.
type strCache struct{ p atomic.Pointer[string] }

func (c *strCache) get(render func() string) string {
	if s := c.p.Load(); s != nil {
		return *s
	}
	s := render()
	c.p.Store(&s)
	return s
}

// ============================================================
// Num: exact rational number
// ============================================================

type Num struct{ val *big.Rat }

func N(n int64) *Num { return &Num{val: new(big.Rat).SetInt64(n)} }
func F(p, q int64) *Num {
	if q == 0 {
		panic("symbolic: denominator is zero")
	}
	return &Num{val: new(big.Rat).SetFrac(big.NewInt(p), big.NewInt(q))}
}

func (n *Num) Simplify() Expr        { return n }
func (n *Num) Diff(string) Expr      { return N(0) }
func (n *Num) Equal(other Expr) bool { o, ok := other.(*Num); return ok && n.val.Cmp(o.val) == 0 }
func (n *Num) exprType() string      { return "num" }
func (n *Num) IsZero() bool          { return n.val.Sign() == 0 }
func (n *Num) IsOne() bool           { return n.val.Cmp(big.NewRat(1, 1)) == 0 }
func (n *Num) IsNegOne() bool        { return n.val.Cmp(big.NewRat(-1, 1)) == 0 }
func (n *Num) IsInteger() bool       { return n.val.IsInt() }
func (n *Num) IsNegative() bool      { return n.val.Sign() < 0 }

func (n *Num) eval(map[string]float64) (float64, error) {
	f, _ := n.val.Float64()
	return f, nil
}

func (n *Num) String() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	return n.val.RatString()
}

func (n *Num) LaTeX() string {
	if n.val.IsInt() {
		return n.val.Num().String()
	}
	sign := ""
	v := new(big.Rat).Set(n.val)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	return fmt.Sprintf("%s\\frac{%s}{%s}", sign, v.Num().String(), v.Denom().String())
}

func (n *Num) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "num", "value": n.String()}
}

func numAdd(a, b *Num) *Num { return &Num{val: new(big.Rat).Add(a.val, b.val)} }
func numMul(a, b *Num) *Num { return &Num{val: new(big.Rat).Mul(a.val, b.val)} }
func numNeg(a *Num) *Num    { return &Num{val: new(big.Rat).Neg(a.val)} }
func numRecip(a *Num) *Num {
	if a.IsZero() {
		panic("symbolic: division by zero")
	}
	return &Num{val: new(big.Rat).Inv(a.val)}
}
func numAbs(a *Num) *Num { return &Num{val: new(big.Rat).Abs(a.val)} }

// maxFoldBits bounds the size of rationals produced by constant folding.
const maxFoldBits = 4096

// numPowInt raises a to the integer power e, reporting false when the result
// would be unreasonably large.
func numPowInt(a *Num, e int64) (*Num, bool) {
	abs := e
	if abs < 0 {
		abs = -abs
	}
	// abs stays negative for math.MinInt64.
	if abs < 0 {
		return nil, false
	}
	bits := int64(a.val.Num().BitLen() + a.val.Denom().BitLen())
	if bits > 0 && abs > maxFoldBits/bits {
		return nil, false
	}
	num := new(big.Int).Exp(a.val.Num(), big.NewInt(abs), nil)
	den := new(big.Int).Exp(a.val.Denom(), big.NewInt(abs), nil)
	r := &Num{val: new(big.Rat).SetFrac(num, den)}
	if e < 0 {
		return numRecip(r), true
	}
	return r, true
}

// numSqrt returns the exact square root of a non-negative rational that is a
// perfect square.
func numSqrt(a *Num) (*Num, bool) {
	if a.IsNegative() {
		return nil, false
	}
	num := new(big.Int).Sqrt(a.val.Num())
	den := new(big.Int).Sqrt(a.val.Denom())
	if new(big.Int).Mul(num, num).Cmp(a.val.Num()) != 0 || new(big.Int).Mul(den, den).Cmp(a.val.Denom()) != 0 {
		return nil, false
	}
	return &Num{val: new(big.Rat).SetFrac(num, den)}, true
}

// ============================================================
// Sym: symbolic variable
// ============================================================

type Sym struct{ name string }

func S(name string) *Sym             { return &Sym{name: name} }
func (s *Sym) Simplify() Expr        { return s }
func (s *Sym) String() string        { return s.name }
func (s *Sym) LaTeX() string         { return s.name }
func (s *Sym) Equal(other Expr) bool { o, ok := other.(*Sym); return ok && s.name == o.name }
func (s *Sym) exprType() string      { return "sym" }
func (s *Sym) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "sym", "name": s.name}
}
func (s *Sym) Diff(varName string) Expr {
	if s.name == varName {
		return N(1)
	}
	return N(0)
}
func (s *Sym) eval(env map[string]float64) (float64, error) {
	v, ok := env[s.name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnbound, s.name)
	}
	return v, nil
}

// ============================================================
// Const: named mathematical constants
// ============================================================

type Const struct {
	name  string
	latex string
	value float64
}

var (
	// Pi is the circle constant π.
	Pi = &Const{name: "pi", latex: "\\pi", value: math.Pi}
	// E is Euler's number.
	E = &Const{name: "E", latex: "e", value: math.E}
)

func (c *Const) Simplify() Expr                           { return c }
func (c *Const) String() string                           { return c.name }
func (c *Const) LaTeX() string                            { return c.latex }
func (c *Const) Diff(string) Expr                         { return N(0) }
func (c *Const) Equal(other Expr) bool                    { o, ok := other.(*Const); return ok && c.name == o.name }
func (c *Const) eval(map[string]float64) (float64, error) { return c.value, nil }
func (c *Const) exprType() string                         { return "const" }
func (c *Const) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "const", "name": c.name}
}

// ============================================================
// Add: sum of terms
// ============================================================

// Add is a sum. A node returned by Simplify is marked so later passes
// return it as is instead of walking it again.
type Add struct {
	terms      []Expr
	simplified bool
	str        strCache
}

func AddOf(terms ...Expr) Expr { return (&Add{terms: terms}).Simplify() }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return AddOf(a, MulOf(N(-1), b)) }

// Simplify flattens nested sums, folds numeric terms and collects like terms
// by their non-numeric part, so 2*x*sin(x) and -2*x*sin(x) cancel.
func (a *Add) Simplify() Expr {
	if a.simplified {
		return a
	}
	flat := make([]Expr, 0, len(a.terms))
	for _, t := range a.terms {
		s := t.Simplify()
		if inner, ok := s.(*Add); ok {
			flat = append(flat, inner.terms...)
		} else {
			flat = append(flat, s)
		}
	}
	numAccum := N(0)
	coeffs := map[string]*Num{}
	rests := map[string]Expr{}
	order := []string{}
	for _, t := range flat {
		if v, ok := t.(*Num); ok {
			numAccum = numAdd(numAccum, v)
			continue
		}
		coeff, rest := extractCoefficient(t)
		key := rest.String()
		if _, seen := coeffs[key]; !seen {
			order = append(order, key)
			coeffs[key] = N(0)
			rests[key] = rest
		}
		coeffs[key] = numAdd(coeffs[key], coeff)
	}
	sort.Strings(order)
	result := []Expr{}
	for _, key := range order {
		coeff := coeffs[key]
		if coeff.IsZero() {
			continue
		}
		if coeff.IsOne() {
			result = append(result, rests[key])
		} else {
			result = append(result, MulOf(coeff, rests[key]))
		}
	}
	if !numAccum.IsZero() {
		result = append(result, numAccum)
	}
	if len(result) == 0 {
		return N(0)
	}
	if len(result) == 1 {
		return result[0]
	}
	return &Add{terms: result, simplified: true}
}

func (a *Add) String() string { return a.str.get(a.render) }

func (a *Add) render() string {
	if len(a.terms) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range a.terms {
		if i == 0 {
			sb.WriteString(t.String())
			continue
		}
		if neg, ok := negated(t); ok {
			sb.WriteString(" - ")
			sb.WriteString(neg.String())
			continue
		}
		sb.WriteString(" + ")
		sb.WriteString(t.String())
	}
	return sb.String()
}

func (a *Add) LaTeX() string {
	var sb strings.Builder
	for i, t := range a.terms {
		if i == 0 {
			sb.WriteString(t.LaTeX())
			continue
		}
		if neg, ok := negated(t); ok {
			sb.WriteString(" - ")
			sb.WriteString(neg.LaTeX())
			continue
		}
		sb.WriteString(" + ")
		sb.WriteString(t.LaTeX())
	}
	return sb.String()
}

func (a *Add) Diff(varName string) Expr {
	dTerms := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		dTerms[i] = t.Diff(varName)
	}
	return AddOf(dTerms...)
}

func (a *Add) eval(env map[string]float64) (float64, error) {
	acc := 0.0
	for _, t := range a.terms {
		v, err := t.eval(env)
		if err != nil {
			return 0, err
		}
		acc += v
	}
	return acc, nil
}

func (a *Add) Equal(other Expr) bool {
	o, ok := other.(*Add)
	if !ok || len(a.terms) != len(o.terms) {
		return false
	}
	for i := range a.terms {
		if !a.terms[i].Equal(o.terms[i]) {
			return false
		}
	}
	return true
}

func (a *Add) exprType() string { return "add" }
func (a *Add) toJSON() map[string]interface{} {
	ts := make([]map[string]interface{}, len(a.terms))
	for i, t := range a.terms {
		ts[i] = t.toJSON()
	}
	return map[string]interface{}{"type": "add", "terms": ts}
}

// negated returns -t when t carries a negative numeric coefficient.
func negated(t Expr) (Expr, bool) {
	switch v := t.(type) {
	case *Num:
		if v.IsNegative() {
			return numNeg(v), true
		}
	case *Mul:
		if c, ok := v.factors[0].(*Num); ok && c.IsNegative() {
			factors := append([]Expr{numNeg(c)}, v.factors[1:]...)
			return MulOf(factors...), true
		}
	}
	return nil, false
}

// ============================================================
// Mul: product of factors
// ============================================================

type Mul struct {
	factors    []Expr
	simplified bool
	str        strCache
}

func MulOf(factors ...Expr) Expr { return (&Mul{factors: factors}).Simplify() }

// Div returns a / b.
func Div(a, b Expr) Expr { return MulOf(a, PowOf(b, N(-1))) }

// Simplify flattens nested products, folds the numeric coefficient and merges
// factors that share a base by adding their exponents.
func (m *Mul) Simplify() Expr {
	if m.simplified {
		return m
	}
	flat := make([]Expr, 0, len(m.factors))
	for _, f := range m.factors {
		s := f.Simplify()
		if inner, ok := s.(*Mul); ok {
			flat = append(flat, inner.factors...)
		} else {
			flat = append(flat, s)
		}
	}
	coeff := N(1)
	bases := map[string]Expr{}
	exps := map[string][]Expr{}
	order := []string{}
	for _, f := range flat {
		if v, ok := f.(*Num); ok {
			coeff = numMul(coeff, v)
			continue
		}
		base, exp := Expr(f), Expr(N(1))
		if p, ok := f.(*Pow); ok {
			base, exp = p.base, p.exp
		}
		key := base.String()
		if _, seen := bases[key]; !seen {
			order = append(order, key)
			bases[key] = base
		}
		exps[key] = append(exps[key], exp)
	}
	if coeff.IsZero() {
		return N(0)
	}

	others := []Expr{}
	for _, key := range order {
		merged := Expr(&Pow{base: bases[key], exp: exps[key][0]})
		if len(exps[key]) > 1 {
			merged = PowOf(bases[key], AddOf(exps[key]...))
		} else {
			merged = merged.Simplify()
		}
		switch v := merged.(type) {
		case *Num:
			coeff = numMul(coeff, v)
		case *Mul:
			for _, f := range v.factors {
				if n, ok := f.(*Num); ok {
					coeff = numMul(coeff, n)
				} else {
					others = append(others, f)
				}
			}
		default:
			others = append(others, merged)
		}
	}
	if coeff.IsZero() {
		return N(0)
	}
	if len(others) == 0 {
		return coeff
	}

	// Precompute sort keys to avoid repeated String() calls in comparator.
	type keyed struct {
		e   Expr
		key string
	}
	ks := make([]keyed, len(others))
	for i, e := range others {
		ks[i] = keyed{e: e, key: e.String()}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })
	sortedOthers := make([]Expr, len(ks))
	for i := range ks {
		sortedOthers[i] = ks[i].e
	}
	others = sortedOthers

	if coeff.IsOne() {
		if len(others) == 1 {
			return others[0]
		}
		return &Mul{factors: others, simplified: true}
	}
	return &Mul{factors: append([]Expr{coeff}, others...), simplified: true}
}

func (m *Mul) String() string { return m.str.get(m.render) }

func (m *Mul) render() string {
	if len(m.factors) == 0 {
		return "1"
	}
	parts := make([]string, 0, len(m.factors))
	prefix := ""
	for i, f := range m.factors {
		if i == 0 {
			if c, ok := f.(*Num); ok && c.IsNegOne() {
				prefix = "-"
				continue
			}
		}
		if _, isAdd := f.(*Add); isAdd {
			parts = append(parts, "("+f.String()+")")
		} else {
			parts = append(parts, f.String())
		}
	}
	return prefix + strings.Join(parts, "*")
}

// LaTeX renders factors with negative numeric exponents as a fraction.
func (m *Mul) LaTeX() string {
	coeff, rest := extractCoefficient(m)
	var numer, denom []string
	for _, f := range factorsOf(rest) {
		if p, ok := f.(*Pow); ok {
			if en, ok := p.exp.(*Num); ok && en.IsNegative() {
				denom = append(denom, latexFactor(PowOf(p.base, numNeg(en))))
				continue
			}
		}
		numer = append(numer, latexFactor(f))
	}
	sign := ""
	if coeff.IsNegative() {
		sign = "-"
		coeff = numNeg(coeff)
	}
	r := coeff.val
	if r.Num().Cmp(big.NewInt(1)) != 0 {
		numer = append([]string{r.Num().String()}, numer...)
	}
	if !r.IsInt() {
		denom = append([]string{r.Denom().String()}, denom...)
	}
	top := strings.Join(numer, " ")
	if top == "" {
		top = "1"
	}
	if len(denom) == 0 {
		return sign + top
	}
	return sign + "\\frac{" + top + "}{" + strings.Join(denom, " ") + "}"
}

func latexFactor(e Expr) string {
	if _, isAdd := e.(*Add); isAdd {
		return "\\left(" + e.LaTeX() + "\\right)"
	}
	return e.LaTeX()
}

func factorsOf(e Expr) []Expr {
	if m, ok := e.(*Mul); ok {
		return m.factors
	}
	if n, ok := e.(*Num); ok && n.IsOne() {
		return nil
	}
	return []Expr{e}
}

func (m *Mul) Diff(varName string) Expr {
	terms := make([]Expr, len(m.factors))
	for i, fi := range m.factors {
		dfi := fi.Diff(varName)
		others := make([]Expr, 0, len(m.factors)-1)
		for j, fj := range m.factors {
			if j != i {
				others = append(others, fj)
			}
		}
		if len(others) == 0 {
			terms[i] = dfi
		} else {
			terms[i] = MulOf(append([]Expr{dfi}, others...)...)
		}
	}
	return AddOf(terms...)
}

func (m *Mul) eval(env map[string]float64) (float64, error) {
	acc := 1.0
	for _, f := range m.factors {
		v, err := f.eval(env)
		if err != nil {
			return 0, err
		}
		acc *= v
	}
	return acc, nil
}

func (m *Mul) Equal(other Expr) bool {
	o, ok := other.(*Mul)
	if !ok || len(m.factors) != len(o.factors) {
		return false
	}
	for i := range m.factors {
		if !m.factors[i].Equal(o.factors[i]) {
			return false
		}
	}
	return true
}

func (m *Mul) exprType() string { return "mul" }
func (m *Mul) toJSON() map[string]interface{} {
	fs := make([]map[string]interface{}, len(m.factors))
	for i, f := range m.factors {
		fs[i] = f.toJSON()
	}
	return map[string]interface{}{"type": "mul", "factors": fs}
}

// extractCoefficient splits a term into its numeric coefficient and the rest.
func extractCoefficient(e Expr) (*Num, Expr) {
	if m, ok := e.(*Mul); ok && len(m.factors) >= 2 {
		if coeff, ok2 := m.factors[0].(*Num); ok2 {
			rest := m.factors[1:]
			if len(rest) == 1 {
				return coeff, rest[0]
			}
			return coeff, &Mul{factors: rest, simplified: m.simplified}
		}
	}
	return N(1), e
}

// ============================================================
// Pow: base**exponent
// ============================================================

type Pow struct {
	base, exp  Expr
	simplified bool
	str        strCache
}

func PowOf(base, exp Expr) Expr { return (&Pow{base: base, exp: exp}).Simplify() }

func (p *Pow) Simplify() Expr {
	if p.simplified {
		return p
	}
	base := p.base.Simplify()
	exp := p.exp.Simplify()

	en, expIsNum := exp.(*Num)
	if expIsNum && en.IsZero() {
		return N(1)
	}
	if expIsNum && en.IsOne() {
		return base
	}

	// Handle 0**exp carefully.
	if bn, ok := base.(*Num); ok && bn.IsZero() {
		if expIsNum && (en.IsZero() || en.IsNegative()) {
			// 0**negative is a pole; leave it for evaluation to reject.
			return &Pow{base: base, exp: exp, simplified: true}
		}
		return N(0)
	}

	if bn, ok := base.(*Num); ok && bn.IsOne() {
		return N(1)
	}
	if bn, ok := base.(*Num); ok && expIsNum {
		if en.IsInteger() && en.val.Num().IsInt64() {
			if r, ok := numPowInt(bn, en.val.Num().Int64()); ok {
				return r
			}
		}
		if en.val.Denom().Cmp(big.NewInt(2)) == 0 && en.val.Num().IsInt64() {
			if root, ok := numSqrt(bn); ok {
				return PowOf(root, N(en.val.Num().Int64()))
			}
		}
	}
	if c, ok := base.(*Const); ok && c == E {
		return ExpOf(exp)
	}
	if inner, ok := base.(*Pow); ok && expIsNum && en.IsInteger() {
		return PowOf(inner.base, MulOf(inner.exp, exp))
	}
	if m, ok := base.(*Mul); ok && expIsNum && en.IsInteger() {
		factors := make([]Expr, len(m.factors))
		for i, f := range m.factors {
			factors[i] = PowOf(f, exp)
		}
		return MulOf(factors...)
	}
	return &Pow{base: base, exp: exp, simplified: true}
}

func (p *Pow) String() string {
	return p.str.get(func() string { return powOperand(p.base) + "**" + powOperand(p.exp) })
}

func powOperand(e Expr) string {
	switch v := e.(type) {
	case *Num:
		if v.IsInteger() && !v.IsNegative() {
			return v.String()
		}
		return "(" + v.String() + ")"
	case *Add, *Mul, *Pow:
		return "(" + v.String() + ")"
	}
	return e.String()
}

func (p *Pow) LaTeX() string {
	if en, ok := p.exp.(*Num); ok {
		if en.IsNegative() {
			return "\\frac{1}{" + PowOf(p.base, numNeg(en)).LaTeX() + "}"
		}
		if en.val.Cmp(big.NewRat(1, 2)) == 0 {
			return "\\sqrt{" + p.base.LaTeX() + "}"
		}
	}
	baseStr := p.base.LaTeX()
	switch p.base.(type) {
	case *Add, *Mul, *Pow:
		baseStr = "\\left(" + baseStr + "\\right)"
	case *Num:
		if n := p.base.(*Num); n.IsNegative() || !n.IsInteger() {
			baseStr = "\\left(" + baseStr + "\\right)"
		}
	}
	return baseStr + "^{" + p.exp.LaTeX() + "}"
}

func (p *Pow) Diff(varName string) Expr {
	du := p.base.Diff(varName)
	dv := p.exp.Diff(varName)
	if _, expIsNum := p.exp.(*Num); expIsNum {
		newExp := AddOf(p.exp, N(-1))
		return MulOf(p.exp, PowOf(p.base, newExp), du)
	}
	if isConstant(p.base) {
		return MulOf(PowOf(p.base, p.exp), LnOf(p.base), dv)
	}
	logTerm := MulOf(dv, LnOf(p.base))
	divTerm := MulOf(p.exp, du, PowOf(p.base, N(-1)))
	return MulOf(PowOf(p.base, p.exp), AddOf(logTerm, divTerm))
}

func (p *Pow) eval(env map[string]float64) (float64, error) {
	b, err := p.base.eval(env)
	if err != nil {
		return 0, err
	}
	e, err := p.exp.eval(env)
	if err != nil {
		return 0, err
	}
	return math.Pow(b, e), nil
}

func (p *Pow) Equal(other Expr) bool {
	o, ok := other.(*Pow)
	return ok && p.base.Equal(o.base) && p.exp.Equal(o.exp)
}

func (p *Pow) exprType() string { return "pow" }
func (p *Pow) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "pow", "base": p.base.toJSON(), "exp": p.exp.toJSON()}
}

func isConstant(e Expr) bool {
	switch e.(type) {
	case *Num, *Const:
		return true
	}
	return false
}
