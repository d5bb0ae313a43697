package comm

import (
	"bufio"
	"bytes"
	"io"
	"time"
)

// Terminator wraps a ReadWriter, appending the Tx terminator to each write
// and consuming up to (and stripping) the Rx terminator on each read
type Terminator struct {
	rw io.ReadWriter
	rx byte
	tx byte
}

// NewTerminator returns a Terminator decorating rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: tx}
}

// Write sends p followed by the Tx terminator
func (t *Terminator) Write(p []byte) (int, error) {
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads up to the Rx terminator, strips it, and copies the payload
// into p.  The read is unbuffered beyond the terminator, so the underlying
// connection can be returned to a pool without losing data.
func (t *Terminator) Read(p []byte) (int, error) {
	buf, err := bufio.NewReader(t.rw).ReadBytes(t.rx)
	if err != nil {
		return 0, err
	}
	buf = bytes.TrimSuffix(buf, []byte{t.rx})
	n := copy(p, buf)
	if n < len(buf) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

// deadliner is implemented by net.Conn and anything else which can have
// i/o deadlines set on it
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Timeout wraps a ReadWriter, arming a fresh deadline before each i/o call
type Timeout struct {
	rw      io.ReadWriter
	dl      deadliner
	timeout time.Duration
}

// NewTimeout returns a Timeout decorating rw.  If neither rw nor the
// connection underneath a Terminator supports deadlines (e.g. a serial
// port, which has its own read timeout) rw is returned unwrapped.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	inner := rw
	if t, ok := rw.(*Terminator); ok {
		inner = t.rw
	}
	dl, ok := inner.(deadliner)
	if !ok {
		return rw, nil
	}
	return &Timeout{rw: rw, dl: dl, timeout: timeout}, nil
}

func (t *Timeout) Write(p []byte) (int, error) {
	err := t.dl.SetDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}

func (t *Timeout) Read(p []byte) (int, error) {
	err := t.dl.SetDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}
