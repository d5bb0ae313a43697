package trap

// Instrument-side program files, one per direction, overwritten on every
// successful preview
const (
	OpenTrapFilename  = "/var/user/open_trap.lsw"
	CloseTrapFilename = "/var/user/close_trap.lsw"
)

// Sweeper is the slice of the generator the sweep machinery consumes
type Sweeper interface {
	// SetListSweep stages a program without starting it
	SetListSweep(powers []float64, dwell float64, repeat bool, filename string) error

	// ChangeListSweep selects a staged program
	ChangeListSweep(filename string) error

	// StartListSweep begins executing the selected program
	StartListSweep() error

	// StopSweep halts execution
	StopSweep() error
}

// filename returns the program file matching a direction
func filename(d Direction) string {
	if d == Opening {
		return OpenTrapFilename
	}
	return CloseTrapFilename
}

// Upload stages both directions of a profile on the instrument under the
// fixed filenames.  Neither program is started, and whichever program is
// currently selected stays selected.  Errors wrap as UploadError.
func Upload(s Sweeper, p *Profile) error {
	err := s.SetListSweep(p.Closing, p.Dwell, false, CloseTrapFilename)
	if err != nil {
		return UploadError{Filename: CloseTrapFilename, Err: err}
	}
	err = s.SetListSweep(p.Opening, p.Dwell, false, OpenTrapFilename)
	if err != nil {
		return UploadError{Filename: OpenTrapFilename, Err: err}
	}
	return nil
}
