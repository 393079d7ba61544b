package symbolic

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

// ============================================================
// Parse: allow-listed formula builder
// ============================================================

const (
	// MaxFormulaLen is the longest formula Parse accepts, in bytes.
	MaxFormulaLen = 4096
	// MaxDepth bounds nesting of parentheses, calls and unary operators.
	MaxDepth = 64
	// SecondVar is the extra symbol every formula may reference.
	SecondVar = "y"

	maxNumberLen = 64
)

// ParseError reports a formula that cannot be built into a tree.
type ParseError struct {
	Formula string
	Pos     int
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("symbolic: cannot parse %q at offset %d: %s", e.Formula, e.Pos, e.Reason)
}

type funcSpec struct {
	build   func(Expr) Expr
	twoArgs bool
}

// vocabulary is the complete set of callable names.
var vocabulary = map[string]funcSpec{
	"sin":    {build: SinOf},
	"cos":    {build: CosOf},
	"tan":    {build: TanOf},
	"cot":    {build: CotOf},
	"sec":    {build: SecOf},
	"csc":    {build: CscOf},
	"asin":   {build: AsinOf},
	"acos":   {build: AcosOf},
	"atan":   {build: AtanOf},
	"arcsin": {build: AsinOf},
	"arccos": {build: AcosOf},
	"arctan": {build: AtanOf},
	"sinh":   {build: SinhOf},
	"cosh":   {build: CoshOf},
	"tanh":   {build: TanhOf},
	"asinh":  {build: AsinhOf},
	"acosh":  {build: AcoshOf},
	"atanh":  {build: AtanhOf},
	"ln":     {build: LnOf},
	"log":    {build: LnOf, twoArgs: true},
	"exp":    {build: ExpOf},
	"abs":    {build: AbsOf},
	"sqrt":   {build: SqrtOf},
}

// Parse builds a tree from formula in which variable and "y" are the only
// free symbols. Any other identifier, an unknown function, unbalanced
// parentheses or an empty formula is a *ParseError.
func Parse(formula, variable string) (Expr, error) {
	if len(formula) > MaxFormulaLen {
		return nil, &ParseError{Formula: formula, Reason: fmt.Sprintf("formula longer than %d bytes", MaxFormulaLen)}
	}
	if strings.TrimSpace(formula) == "" {
		return nil, &ParseError{Formula: formula, Reason: "empty formula"}
	}
	toks, err := lex(formula)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, formula: formula, variable: variable}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		switch t.kind {
		case tokRParen:
			return nil, p.errAt(t, "unbalanced parentheses")
		case tokNum, tokIdent, tokLParen:
			return nil, p.errAt(t, "implicit multiplication is not supported, use *")
		}
		return nil, p.errAt(t, fmt.Sprintf("unexpected %q", t.text))
	}
	return e.Simplify(), nil
}

// ------------------------------------------------------------
// Lexer
// ------------------------------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPow
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i = scanNumber(src, i)
			if i-start > maxNumberLen {
				return nil, &ParseError{Formula: src, Pos: start, Reason: "numeric literal too long"}
			}
			toks = append(toks, token{tokNum, src[start:i], start})
		case isLetter(c):
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i]) || src[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		case c == '*':
			if i+1 < len(src) && src[i+1] == '*' {
				toks = append(toks, token{tokPow, "**", i})
				i += 2
			} else {
				toks = append(toks, token{tokStar, "*", i})
				i++
			}
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '^':
			return nil, &ParseError{Formula: src, Pos: i, Reason: "use ** for powers, ^ is not supported"}
		default:
			r, size := utf8.DecodeRuneInString(src[i:])
			if r == 'π' {
				toks = append(toks, token{tokIdent, "pi", i})
				i += size
				continue
			}
			return nil, &ParseError{Formula: src, Pos: i, Reason: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

// scanNumber consumes digits[.digits][(e|E)[+-]digits]. The exponent is only
// taken when digits follow, so "2*e" style constants are never swallowed.
func scanNumber(src string, i int) int {
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			k := j
			for k < len(src) && isDigit(src[k]) {
				k++
			}
			if k-j <= 3 {
				return k
			}
		}
	}
	return i
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// ------------------------------------------------------------
// Recursive-descent parser
// ------------------------------------------------------------
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := ('+' | '-') unary | power
//	power   := primary ('**' unary)?
//	primary := number | name | name '(' args ')' | '(' expr ')'

type parser struct {
	toks     []token
	i        int
	formula  string
	variable string
	depth    int
}

func (p *parser) peek() token { return p.toks[p.i] }
func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errAt(t token, reason string) *ParseError {
	return &ParseError{Formula: p.formula, Pos: t.pos, Reason: reason}
}

func (p *parser) enter(t token) error {
	p.depth++
	if p.depth > MaxDepth {
		return p.errAt(t, "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			break
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if t.kind == tokMinus {
			right = &Mul{factors: []Expr{N(-1), right}}
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return &Add{terms: terms}, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	factors := []Expr{left}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			break
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.kind == tokSlash {
			right = &Pow{base: right, exp: N(-1)}
		}
		factors = append(factors, right)
	}
	if len(factors) == 1 {
		return left, nil
	}
	return &Mul{factors: factors}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	if t.kind != tokMinus && t.kind != tokPlus {
		return p.parsePower()
	}
	if err := p.enter(t); err != nil {
		return nil, err
	}
	defer p.leave()
	p.next()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if t.kind == tokMinus {
		return &Mul{factors: []Expr{N(-1), operand}}, nil
	}
	return operand, nil
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokPow {
		return base, nil
	}
	if err := p.enter(t); err != nil {
		return nil, err
	}
	defer p.leave()
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Pow{base: base, exp: exp}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		text := t.text
		if strings.HasPrefix(text, ".") {
			text = "0" + text
		}
		r, ok := new(big.Rat).SetString(text)
		if !ok {
			return nil, p.errAt(t, fmt.Sprintf("invalid number %q", t.text))
		}
		return &Num{val: r}, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			if _, isFunc := vocabulary[t.text]; !isFunc {
				if _, err := p.resolveName(t); err == nil {
					return nil, p.errAt(p.peek(), "implicit multiplication is not supported, use *")
				}
			}
			return p.parseCall(t)
		}
		return p.resolveName(t)
	case tokLParen:
		if err := p.enter(t); err != nil {
			return nil, err
		}
		defer p.leave()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.closeParen(t); err != nil {
			return nil, err
		}
		return e, nil
	case tokRParen:
		return nil, p.errAt(t, "unbalanced parentheses")
	case tokEOF:
		return nil, p.errAt(t, "unexpected end of formula")
	}
	return nil, p.errAt(t, fmt.Sprintf("unexpected %q", t.text))
}

// closeParen consumes the ')' matching open.
func (p *parser) closeParen(open token) error {
	t := p.next()
	switch t.kind {
	case tokRParen:
		return nil
	case tokNum, tokIdent, tokLParen:
		return p.errAt(t, "implicit multiplication is not supported, use *")
	case tokEOF:
		return p.errAt(open, "unbalanced parentheses")
	}
	return p.errAt(t, fmt.Sprintf("unexpected %q", t.text))
}

// resolveName maps a bare identifier onto the allow-list. The active variable
// shadows the constants, so a formula in e or E still differentiates.
func (p *parser) resolveName(t token) (Expr, error) {
	switch {
	case t.text == p.variable, t.text == SecondVar:
		return S(t.text), nil
	case t.text == "pi":
		return Pi, nil
	case t.text == "E", t.text == "e":
		return E, nil
	}
	if _, isFunc := vocabulary[t.text]; isFunc {
		return nil, p.errAt(t, fmt.Sprintf("function %q needs parenthesised arguments", t.text))
	}
	return nil, p.errAt(t, fmt.Sprintf("unknown identifier %q", t.text))
}

func (p *parser) parseCall(name token) (Expr, error) {
	spec, ok := vocabulary[name.text]
	if !ok {
		return nil, p.errAt(name, fmt.Sprintf("unknown function %q", name.text))
	}
	open := p.next()
	if err := p.enter(open); err != nil {
		return nil, err
	}
	defer p.leave()

	var args []Expr
	if p.peek().kind == tokRParen {
		return nil, p.errAt(p.peek(), fmt.Sprintf("function %q needs an argument", name.text))
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if err := p.closeParen(open); err != nil {
		return nil, err
	}

	switch {
	case len(args) == 2 && spec.twoArgs:
		return LogOf(args[0], args[1]), nil
	case len(args) != 1:
		return nil, p.errAt(name, fmt.Sprintf("function %q takes one argument, got %d", name.text, len(args)))
	}
	return spec.build(args[0]), nil
}
