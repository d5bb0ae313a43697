/*Package trap computes RF power ramps and drives a signal generator through
them to open and close an ion trap.

The generator executes an uploaded list-sweep program autonomously; this
package computes the program from a user formula (ComputeProfile), stages it
on the instrument (Upload), and runs a local position simulation that stays
in lock-step with the instrument across pause and resume (Controller).
*/
package trap

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/iontrap-lab/rflab/util"
)

// the SMA100B accepts at most 10000 points per list
const maxListPoints = 10000

// ProfileRequest holds the user inputs a ramp profile is computed from
type ProfileRequest struct {
	// OpenVoltage is the level at which the trap is open, dBm
	OpenVoltage float64 `json:"open-voltage"`

	// CloseVoltage is the level at which the trap is closed, dBm.
	// must be >= OpenVoltage.
	CloseVoltage float64 `json:"close-voltage"`

	// StepInterval is the dwell time per step, seconds
	StepInterval float64 `json:"step-interval"`

	// StepCount is the number of intervals; the ramp has StepCount+1 points
	StepCount int `json:"step-count"`

	// Formula is an expression in t, the time sample in seconds.
	// blank is treated as "t" (a linear ramp).
	Formula string `json:"formula"`
}

// Profile is a computed ramp.  Closing runs from OpenVoltage up to
// CloseVoltage; Opening is the exact reverse.  Profiles are immutable once
// computed; do not modify the slices.
type Profile struct {
	// Times holds the time samples, i*StepInterval
	Times []float64 `json:"times"`

	// Closing holds the power levels of the trap-closing program, ascending
	Closing []float64 `json:"closing"`

	// Opening holds the levels of the trap-opening program, Closing reversed
	Opening []float64 `json:"opening"`

	// Dwell is the hold time per level, seconds
	Dwell float64 `json:"dwell"`
}

// StepCount returns the number of intervals in the ramp
func (p *Profile) StepCount() int {
	return len(p.Times) - 1
}

// unary adapts a one-argument math function to a govaluate function
func unary(f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("argument must be a number")
		}
		return f(x), nil
	}
}

// formulaFunctions is the whitelist of functions a formula may call.
// The evaluator exposes nothing else; in particular there is no way for a
// formula to reach the instrument, the filesystem, or the runtime.
var formulaFunctions = map[string]govaluate.ExpressionFunction{
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"sinh":  unary(math.Sinh),
	"cosh":  unary(math.Cosh),
	"tanh":  unary(math.Tanh),
	"exp":   unary(math.Exp),
	"log":   unary(math.Log),
	"log2":  unary(math.Log2),
	"log10": unary(math.Log10),
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"pow": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		x, xok := args[0].(float64)
		y, yok := args[1].(float64)
		if !xok || !yok {
			return nil, fmt.Errorf("arguments must be numbers")
		}
		return math.Pow(x, y), nil
	},
}

// ComputeProfile evaluates the formula over the time samples, normalizes the
// result so the first point is 0 and the last is 1, and rescales it into
// [OpenVoltage, CloseVoltage].  It is pure; the instrument is not contacted.
func ComputeProfile(req ProfileRequest) (p *Profile, err error) {
	if req.OpenVoltage > req.CloseVoltage {
		return nil, ErrInvalidRange
	}
	if req.StepInterval <= 0 {
		return nil, fmt.Errorf("step interval must be positive, got %G", req.StepInterval)
	}
	if req.StepCount < 1 {
		return nil, fmt.Errorf("step count must be at least 1, got %d", req.StepCount)
	}
	if req.StepCount+1 > maxListPoints {
		return nil, fmt.Errorf("ramp has %d points, instrument limit is %d", req.StepCount+1, maxListPoints)
	}
	formula := req.Formula
	if formula == "" {
		formula = "t"
	}
	// the evaluator is pure Go, but a malformed expression tree could still
	// panic; a bad formula must never take the process down
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = FormulaError{Formula: formula, Err: fmt.Errorf("%v", r)}
		}
	}()
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(formula, formulaFunctions)
	if err != nil {
		return nil, FormulaError{Formula: formula, Err: err}
	}

	times := util.Arange(req.StepInterval, req.StepCount)
	raw := make([]float64, len(times))
	for i, t := range times {
		res, err := expr.Evaluate(map[string]interface{}{"t": t})
		if err != nil {
			return nil, FormulaError{Formula: formula, Err: err}
		}
		f, ok := res.(float64)
		if !ok {
			return nil, FormulaError{Formula: formula, Err: fmt.Errorf("result at t=%G is not a number", t)}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, FormulaError{Formula: formula, Err: fmt.Errorf("result at t=%G is not finite", t)}
		}
		raw[i] = f
	}

	span := raw[len(raw)-1] - raw[0]
	if span == 0 {
		return nil, ErrDegenerateFormula
	}
	closing := make([]float64, len(raw))
	for i, f := range raw {
		closing[i] = (f-raw[0])/span*(req.CloseVoltage-req.OpenVoltage) + req.OpenVoltage
	}
	return &Profile{
		Times:   times,
		Closing: closing,
		Opening: util.Reverse(closing),
		Dwell:   req.StepInterval,
	}, nil
}
