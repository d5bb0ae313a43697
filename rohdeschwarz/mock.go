package rohdeschwarz

import (
	"errors"
	"sync"
)

// ErrMockUnknownFile is generated when a mock sweep selects a file that
// was never staged
var ErrMockUnknownFile = errors.New("no list sweep staged under that filename")

type mockProgram struct {
	powers []float64
	dwell  float64
	repeat bool
}

// Mock is an in-memory stand-in for an SMA100B, for tests and for running
// the server against no hardware.  It implements Controller.
type Mock struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by every method.  Tests use it to
	// simulate an unreachable instrument.
	Err error

	pow      float64
	limit    float64
	freq     float64
	output   bool
	programs map[string]mockProgram
	active   string
	sweeping bool
	index    int
}

// NewMock returns a fresh mock generator with a 6 dBm power limit
func NewMock() *Mock {
	return &Mock{limit: 6, programs: map[string]mockProgram{}}
}

// Sweeping returns true if a list sweep is executing.  Not part of the
// Controller surface; used by tests.
func (m *Mock) Sweeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeping
}

// Program returns the staged power levels under filename.  Test helper.
func (m *Mock) Program(filename string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.programs[filename].powers
}

// Active returns the selected program filename.  Test helper.
func (m *Mock) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SetPower sets the mock output level
func (m *Mock) SetPower(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if level > m.limit {
		level = m.limit
	}
	m.pow = level
	return nil
}

// GetPower returns the mock output level
func (m *Mock) GetPower() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pow, m.Err
}

// SetPowerLimit sets the mock level bound
func (m *Mock) SetPowerLimit(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.limit = level
	return nil
}

// GetPowerLimit returns the mock level bound
func (m *Mock) GetPowerLimit() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit, m.Err
}

// SetFrequency sets the mock CW frequency
func (m *Mock) SetFrequency(hz float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.freq = hz
	return nil
}

// GetFrequency returns the mock CW frequency
func (m *Mock) GetFrequency() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freq, m.Err
}

// SetOutput sets the mock output connector state
func (m *Mock) SetOutput(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.output = on
	return nil
}

// GetOutput returns the mock output connector state
func (m *Mock) GetOutput() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output, m.Err
}

// SetListSweep stages a program without touching the active selection
func (m *Mock) SetListSweep(powers []float64, dwell float64, repeat bool, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := make([]float64, len(powers))
	copy(cp, powers)
	m.programs[filename] = mockProgram{powers: cp, dwell: dwell, repeat: repeat}
	return nil
}

// ChangeListSweep selects a staged program
func (m *Mock) ChangeListSweep(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.programs[filename]; !ok {
		return ErrMockUnknownFile
	}
	m.active = filename
	return nil
}

// StartListSweep begins "executing" the active program
func (m *Mock) StartListSweep() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.programs[m.active]; !ok {
		return ErrMockUnknownFile
	}
	m.sweeping = true
	return nil
}

// StopSweep halts execution
func (m *Mock) StopSweep() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sweeping = false
	m.index = 0
	return nil
}

// GetListIndex returns the mock list index
func (m *Mock) GetListIndex() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, m.Err
}

// Ready always reports a completed startup
func (m *Mock) Ready() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return true, nil
}
