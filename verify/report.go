package verify

import (
	"github.com/njchilds90/derivtutor/equiv"
	"github.com/njchilds90/derivtutor/symbolic"
)

// OperandReport shows one side as the learner wrote it and as it was parsed.
type OperandReport struct {
	Display string `json:"display"`
	Formula string `json:"formula"`
}

// DerivativeReport is the computed derivative of f.
type DerivativeReport struct {
	LaTeX   string `json:"latex"`
	Formula string `json:"formula"`
}

// Report is the JSON record handed back to callers.
type Report struct {
	F             OperandReport    `json:"f"`
	G             OperandReport    `json:"g"`
	Variable      string           `json:"variable"`
	Derivative    DerivativeReport `json:"derivative"`
	SymbolicEqual bool             `json:"symbolic_equal"`
	NumericEqual  bool             `json:"numeric_equal"`
	NumericStats  equiv.Stats      `json:"numeric_stats"`
	Verdict       equiv.Verdict    `json:"verdict"`
}

// Report projects the outcome onto its wire form.
func (o *Outcome) Report() Report {
	return Report{
		F:        operandReport(o.F),
		G:        operandReport(o.G),
		Variable: o.Variable,
		Derivative: DerivativeReport{
			LaTeX:   symbolic.LaTeX(o.Derivative),
			Formula: symbolic.String(o.Derivative),
		},
		SymbolicEqual: o.Result.SymbolicEqual,
		NumericEqual:  o.Result.NumericEqual,
		NumericStats:  o.Result.Stats,
		Verdict:       o.Result.Verdict,
	}
}

func operandReport(op Operand) OperandReport {
	return OperandReport{
		Display: op.Parsed.DisplayForm,
		Formula: symbolic.String(op.Expr),
	}
}
