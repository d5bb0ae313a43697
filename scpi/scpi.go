// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iontrap-lab/rflab/comm"
)

const (
	timeout = 5 * time.Second

	tcpFrameSize = 1500
)

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool
}

// wrap decorates a pool connection with newline termination and a deadline
func wrap(conn io.ReadWriter) (io.ReadWriter, error) {
	var rw io.ReadWriter
	rw = comm.NewTerminator(conn, '\n', '\n')
	return comm.NewTimeout(rw, timeout)
}

// handshake brackets cmds with a status clear and an error query
func handshake(cmds []string) []string {
	out := make([]string, 0, len(cmds)+2)
	out = append(out, "*CLS;")
	out = append(out, cmds...)
	return append(out, ";:SYSTem:ERRor?")
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK.
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	rw, err := wrap(conn)
	if err != nil {
		return err
	}
	if s.Handshaking {
		cmds = handshake(cmds)
	}
	_, err = io.WriteString(rw, strings.Join(cmds, " "))
	if err != nil {
		return err
	}
	if s.Handshaking {
		buf := make([]byte, tcpFrameSize)
		var n int
		n, err = rw.Read(buf)
		if err != nil {
			return err
		}
		resp := string(buf[:n])
		if !strings.HasPrefix(resp, "+0") && !strings.HasPrefix(resp, "0,") {
			err = fmt.Errorf("%s", resp)
			return err
		}
	}
	return nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	var resp []byte
	conn, err := s.Pool.Get()
	if err != nil {
		return resp, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	rw, err := wrap(conn)
	if err != nil {
		return resp, err
	}
	if s.Handshaking {
		cmds = handshake(cmds)
	}
	_, err = io.WriteString(rw, strings.Join(cmds, " "))
	if err != nil {
		return resp, err
	}
	buf := make([]byte, tcpFrameSize)
	n, err := rw.Read(buf)
	if err != nil {
		return resp, err
	}
	resp = buf[:n]
	if s.Handshaking {
		pieces := bytes.Split(resp, []byte{';'})
		errS := string(pieces[len(pieces)-1])
		if !strings.HasPrefix(errS, "+0") && !strings.HasPrefix(errS, "0,") {
			err = fmt.Errorf("%s", errS)
			return resp, err
		}
		return bytes.Join(pieces[:len(pieces)-1], []byte{}), nil
	}
	return resp, nil
}

// ReadString sends a command to the device, then reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(resp, "\r\n")), nil
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean
func (s *SCPI) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(resp)
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer
func (s *SCPI) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(resp)
}

// Raw sends a command to the device and returns a response if it was a
// query, else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device.
// nil is returned when the queue is empty.
func (s *SCPI) PopError() error {
	str, err := s.ReadString("SYSTem:ERRor?") // unclear why the case needs to be this way
	if err != nil {
		return err
	}
	if strings.HasPrefix(str, "+0") || strings.HasPrefix(str, "0,") {
		return nil
	}
	return fmt.Errorf("%s", str)
}

// AllErrors returns all errors from the device as a list
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
	}
	return errs
}

// FormatFloats converts a slice of floats to the comma separated
// representation used by SCPI list commands.
// e.g., []float64{0, 2.5, 5} => "0,2.5,5"
func FormatFloats(fs []float64) string {
	strs := make([]string, len(fs))
	for i, f := range fs {
		strs[i] = strconv.FormatFloat(f, 'G', -1, 64)
	}
	return strings.Join(strs, ",")
}
