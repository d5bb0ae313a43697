// Package rohdeschwarz provides an interface to Rohde & Schwarz
// signal generators
package rohdeschwarz

import (
	"fmt"
	"strconv"
	"time"

	"github.com/iontrap-lab/rflab/comm"
	"github.com/iontrap-lab/rflab/scpi"
	"github.com/tarm/serial"
)

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        115200,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Minute}
}

// Controller is the capability surface of an RF signal generator consumed
// by the rest of this module.  *SMA100B and *Mock both satisfy it.
type Controller interface {
	// SetPower sets the RF output level in dBm
	SetPower(float64) error

	// GetPower returns the RF output level in dBm
	GetPower() (float64, error)

	// SetPowerLimit sets the upper bound the output level may not exceed
	SetPowerLimit(float64) error

	// GetPowerLimit returns the output level bound
	GetPowerLimit() (float64, error)

	// SetFrequency sets the CW frequency in Hz
	SetFrequency(float64) error

	// GetFrequency returns the CW frequency in Hz
	GetFrequency() (float64, error)

	// SetOutput turns the RF output connector on or off
	SetOutput(bool) error

	// GetOutput queries if the RF output is on
	GetOutput() (bool, error)

	// SetListSweep stages a list-sweep program of power levels, each held
	// for dwell seconds, under the given instrument-side filename.
	// It must not start the program.
	SetListSweep(powers []float64, dwell float64, repeat bool, filename string) error

	// ChangeListSweep selects a previously staged program as the active one
	ChangeListSweep(filename string) error

	// StartListSweep begins autonomous execution of the active program
	StartListSweep() error

	// StopSweep halts sweep execution and returns the generator to CW
	StopSweep() error

	// GetListIndex returns the index the instrument reports for the
	// currently executing list step
	GetListIndex() (int, error)

	// Ready queries if the instrument has completed its startup sequence
	Ready() (bool, error)
}

// SMA100B is an interface to the hardware of the same name
type SMA100B struct {
	scpi.SCPI
}

// NewSMA100B creates a new SMA100B instance with the communication set up.
// addr is a host:port for the VISA socket (port 5025 on the instrument)
// or a serial device path if isSerial is true.
func NewSMA100B(addr string, isSerial bool) *SMA100B {
	var maker comm.CreationFunc
	if isSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	return &SMA100B{scpi.SCPI{Pool: pool, Handshaking: true}}
}

// Idn returns the identification string of the instrument
func (s *SMA100B) Idn() (string, error) {
	return s.ReadString("*IDN?")
}

// Ready returns true once the instrument's startup sequence has completed
func (s *SMA100B) Ready() (bool, error) {
	return s.ReadBool("SYSTem:STARtup:COMPlete?")
}

// SetPower sets the RF output level in dBm
func (s *SMA100B) SetPower(level float64) error {
	str := strconv.FormatFloat(level, 'G', -1, 64)
	return s.Write("SOURce:POWer:POWer", str)
}

// GetPower returns the RF output level in dBm
func (s *SMA100B) GetPower() (float64, error) {
	return s.ReadFloat("SOURce:POWer:POWer?")
}

// SetPowerLimit sets the level the output may not exceed regardless of
// any later SetPower or list-sweep program
func (s *SMA100B) SetPowerLimit(level float64) error {
	str := strconv.FormatFloat(level, 'G', -1, 64)
	return s.Write("SOURce:POWer:LIMit:AMPLitude", str)
}

// GetPowerLimit returns the output level bound
func (s *SMA100B) GetPowerLimit() (float64, error) {
	return s.ReadFloat("SOURce:POWer:LIMit:AMPLitude?")
}

// SetFrequency sets the CW frequency in Hz
func (s *SMA100B) SetFrequency(hz float64) error {
	str := strconv.FormatFloat(hz, 'G', -1, 64)
	return s.Write("SOURce:FREQuency:CW", str)
}

// GetFrequency returns the CW frequency in Hz
func (s *SMA100B) GetFrequency() (float64, error) {
	return s.ReadFloat("SOURce:FREQuency:CW?")
}

// SetOutput turns the RF output connector on or off
func (s *SMA100B) SetOutput(on bool) error {
	var mnemonic string
	if on {
		mnemonic = "ON"
	} else {
		mnemonic = "OFF"
	}
	return s.Write("OUTPut:STATe", mnemonic)
}

// GetOutput queries if the RF output is on
func (s *SMA100B) GetOutput() (bool, error) {
	return s.ReadBool("OUTPut:STATe?")
}

// SetListSweep stages a list-sweep program under filename on the
// instrument's file store.  Every power level is paired with the same dwell
// time, and the frequency list is filled with the current CW frequency, so
// the ramp moves power only.  The staged program is not started and the
// active program is left alone.
func (s *SMA100B) SetListSweep(powers []float64, dwell float64, repeat bool, filename string) error {
	if len(powers) == 0 {
		return fmt.Errorf("list sweep requires at least one point")
	}
	freq, err := s.GetFrequency()
	if err != nil {
		return err
	}
	freqs := make([]float64, len(powers))
	for i := range freqs {
		freqs[i] = freq
	}
	active, err := s.ReadString("SOURce:LIST:SELect?")
	if err != nil {
		return err
	}
	mode := "SINGle"
	if repeat {
		mode = "AUTO"
	}
	err = s.Write(
		fmt.Sprintf("SOURce:LIST:SELect '%s';", filename),
		fmt.Sprintf(":SOURce:LIST:FREQuency %s;", scpi.FormatFloats(freqs)),
		fmt.Sprintf(":SOURce:LIST:POWer %s;", scpi.FormatFloats(powers)),
		fmt.Sprintf(":SOURce:LIST:DWELl %s;", strconv.FormatFloat(dwell, 'G', -1, 64)),
		fmt.Sprintf(":SOURce:LIST:TRIGger:SOURce %s", mode))
	if err != nil {
		return err
	}
	// re-select whatever was active before staging
	if active != "" {
		return s.Write(fmt.Sprintf("SOURce:LIST:SELect %s", active))
	}
	return nil
}

// ChangeListSweep selects a previously staged program as the active one
func (s *SMA100B) ChangeListSweep(filename string) error {
	return s.Write(fmt.Sprintf("SOURce:LIST:SELect '%s'", filename))
}

// StartListSweep puts the generator in list mode and triggers execution
// of the active program
func (s *SMA100B) StartListSweep() error {
	return s.Write("SOURce:FREQuency:MODE LIST;", ":SOURce:LIST:TRIGger:EXECute")
}

// StopSweep halts execution and drops the generator back to CW operation
func (s *SMA100B) StopSweep() error {
	return s.Write("SOURce:FREQuency:MODE CW")
}

// GetListIndex returns the instrument's own index into the executing list
func (s *SMA100B) GetListIndex() (int, error) {
	return s.ReadInt("SOURce:LIST:INDex?")
}
