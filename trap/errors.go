package trap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is generated when the trap-open voltage is above the
	// trap-closed voltage
	ErrInvalidRange = errors.New("trap opened voltage should be lower or equal to closed voltage")

	// ErrDegenerateFormula is generated when the formula produces the same
	// value at both endpoints, so the ramp cannot be normalized
	ErrDegenerateFormula = errors.New("formula spans zero range between the first and last time sample")

	// ErrSweepActive is generated when a toggle names the direction
	// opposite a running or paused sweep
	ErrSweepActive = errors.New("a sweep is already active in the other direction")

	// ErrNotArmed is generated when a sweep is toggled before a successful
	// preview, or after an input change invalidated the last one
	ErrNotArmed = errors.New("no uploaded profile; run a preview first")
)

// FormulaError indicates the user-supplied formula could not be parsed or
// did not evaluate to a finite number at every time sample
type FormulaError struct {
	Formula string
	Err     error
}

func (e FormulaError) Error() string {
	return fmt.Sprintf("formula %q: %v", e.Formula, e.Err)
}

func (e FormulaError) Unwrap() error { return e.Err }

// UploadError indicates the instrument rejected a staged list-sweep program
type UploadError struct {
	Filename string
	Err      error
}

func (e UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.Filename, e.Err)
}

func (e UploadError) Unwrap() error { return e.Err }

// HardwareError indicates the instrument was unreachable or rejected a
// start/stop/select command during a sweep transition.  The local state
// machine is left as it was before the attempted transition.
type HardwareError struct {
	Op  string
	Err error
}

func (e HardwareError) Error() string {
	return fmt.Sprintf("sweep %s: %v", e.Op, e.Err)
}

func (e HardwareError) Unwrap() error { return e.Err }
