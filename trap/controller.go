package trap

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iontrap-lab/rflab/util"
)

// Direction selects which ramp program a sweep executes
type Direction int

const (
	// Opening ramps power from the closed level down to the open level
	Opening Direction = iota

	// Closing ramps power from the open level up to the closed level
	Closing
)

func (d Direction) String() string {
	if d == Opening {
		return "opening"
	}
	return "closing"
}

// Phase is the sweep session state
type Phase int

const (
	// Idle means no sweep session exists
	Idle Phase = iota

	// Running means the instrument is executing and ticks are advancing
	Running

	// Paused means execution is halted mid-ramp and can be resumed
	Paused
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Lockable is anything which can be locked while a sweep session is active,
// e.g. the HTTP locker guarding the generator's manual routes
type Lockable interface {
	Lock()
	Unlock()
}

// Status is a snapshot of the controller, also the payload of its events
type Status struct {
	Phase       string  `json:"phase"`
	Direction   string  `json:"direction"`
	Position    int     `json:"position"`
	StepCount   int     `json:"step-count"`
	Armed       bool    `json:"armed"`
	RemainingMS int64   `json:"remaining-ms"`
	Voltage     float64 `json:"voltage"`
}

/*Controller runs sweep sessions against the generator.

The instrument executes the uploaded list autonomously once started; the
controller mirrors its progress with a simulated position that advances one
step per dwell interval.  A session is started, paused, and resumed through
the single Toggle operation, matching the one button per direction the
operator sees.

Directions are mutually exclusive: toggling the direction opposite an
active session fails with ErrSweepActive rather than silently stopping the
other ramp mid-flight.

All methods are safe for concurrent use.  Event listeners are invoked
synchronously with the controller's internal lock held and must not call
back into the controller.
*/
type Controller struct {
	// Settle is added to the captured remainder when resuming, covering the
	// instrument's response time to the re-start command
	Settle time.Duration

	// Locks are locked while a session is active and unlocked at Idle
	Locks []Lockable

	// Limits, when non-nil, is the permitted band for the ramp endpoint
	// levels, e.g. the power limit of the amplifier behind the generator
	Limits *util.Limiter

	mu        sync.Mutex
	sweeper   Sweeper
	ticks     tickSource
	profile   *Profile
	armed     bool
	phase     Phase
	direction Direction
	position  int
	remaining time.Duration
	listeners []func(Status)
}

// NewController returns an Idle controller for the given generator
func NewController(s Sweeper) *Controller {
	return &Controller{Settle: time.Second, sweeper: s}
}

// Notify registers a listener for state transitions and position updates
func (c *Controller) Notify(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Status returns a snapshot of the session
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

// Profile returns the armed profile, or nil if there is none
func (c *Controller) Profile() *Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return nil
	}
	return c.profile
}

/*Preview computes a fresh profile, stages both directions on the
instrument, and arms the controller.  It mirrors the preview action in
front of the operator: any paused session is abandoned, the position marker
resets, and the manual controls unlock.

Preview fails with ErrSweepActive while a sweep is running; pause first.
On any compute or upload failure the controller is left disarmed, so a
stale ramp can never be started by accident.
*/
func (c *Controller) Preview(req ProfileRequest) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Running {
		return nil, ErrSweepActive
	}
	c.armed = false
	if c.Limits != nil {
		if !c.Limits.Check(req.OpenVoltage) || !c.Limits.Check(req.CloseVoltage) {
			return nil, fmt.Errorf("requested levels outside the permitted band [%G, %G] dBm", c.Limits.Min, c.Limits.Max)
		}
	}
	p, err := ComputeProfile(req)
	if err != nil {
		return nil, err
	}
	if err := Upload(c.sweeper, p); err != nil {
		return nil, err
	}
	if c.phase == Paused {
		// the instrument is already halted from the pause; drop it back to
		// CW and forget the session
		if err := c.sweeper.StopSweep(); err != nil {
			log.Println("trap: halting abandoned sweep:", err)
		}
	}
	c.ticks.cancel()
	c.phase = Idle
	c.position = 0
	c.remaining = 0
	c.profile = p
	c.armed = true
	c.ticks.interval = time.Duration(p.Dwell * float64(time.Second))
	c.unlock()
	c.emit()
	return p, nil
}

// Invalidate disarms the controller.  Called whenever an input control or a
// manual instrument setting changes, so the operator must preview again
// before starting a ramp that no longer matches what is staged.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	c.emit()
}

/*Toggle drives the session the way the per-direction button does:

	Idle               -> Running   select program, start instrument, tick
	Running (same dir) -> Paused    capture time to next tick, halt
	Paused  (same dir) -> Running   re-start, finish the captured remainder
	any     (other dir)-> ErrSweepActive

Hardware faults surface as HardwareError and leave the local state exactly
as it was; the operator retries explicitly.
*/
func (c *Controller) Toggle(d Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case Idle:
		return c.start(d)
	case Running:
		if d != c.direction {
			return ErrSweepActive
		}
		return c.pause()
	default: // Paused
		if d != c.direction {
			return ErrSweepActive
		}
		return c.resume()
	}
}

// Abort force-ends any session: ticks stop, the instrument drops to CW,
// the position resets, and the controls unlock.  The armed profile stays
// armed; the operator can immediately start over.
func (c *Controller) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == Idle {
		return nil
	}
	if err := c.sweeper.StopSweep(); err != nil {
		return HardwareError{Op: "abort", Err: err}
	}
	c.ticks.cancel()
	c.phase = Idle
	c.position = 0
	c.remaining = 0
	c.unlock()
	c.emit()
	return nil
}

func (c *Controller) start(d Direction) error {
	if !c.armed {
		return ErrNotArmed
	}
	if err := c.sweeper.ChangeListSweep(filename(d)); err != nil {
		return HardwareError{Op: "select", Err: err}
	}
	if err := c.sweeper.StartListSweep(); err != nil {
		return HardwareError{Op: "start", Err: err}
	}
	c.direction = d
	c.position = 0
	c.phase = Running
	c.lock()
	c.ticks.start(c.onTick)
	c.emit()
	return nil
}

func (c *Controller) pause() error {
	// capture first: remaining is defined as time-to-next-tick at the
	// moment of the call, not after the instrument round trip
	rem := c.ticks.remaining()
	if err := c.sweeper.StopSweep(); err != nil {
		return HardwareError{Op: "pause", Err: err}
	}
	c.ticks.cancel()
	c.remaining = rem
	c.phase = Paused
	c.emit()
	return nil
}

func (c *Controller) resume() error {
	if !c.armed {
		return ErrNotArmed
	}
	if err := c.sweeper.StartListSweep(); err != nil {
		return HardwareError{Op: "resume", Err: err}
	}
	c.ticks.resume(c.remaining+c.Settle, c.onTick)
	c.remaining = 0
	c.phase = Running
	c.emit()
	return nil
}

// onTick advances the simulated position by one dwell step
func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.ticks.gen || c.phase != Running {
		// stale callback from before a pause or abort
		return
	}
	c.position++
	if c.position >= c.profile.StepCount() {
		// natural completion
		c.ticks.cancel()
		if err := c.sweeper.StopSweep(); err != nil {
			log.Println("trap: halting instrument after completed sweep:", err)
		}
		c.position = 0
		c.phase = Idle
		c.unlock()
		c.emit()
		return
	}
	c.ticks.next(c.onTick)
	c.emit()
}

func (c *Controller) lock() {
	for _, l := range c.Locks {
		l.Lock()
	}
}

func (c *Controller) unlock() {
	for _, l := range c.Locks {
		l.Unlock()
	}
}

// status builds a snapshot; callers hold c.mu
func (c *Controller) status() Status {
	s := Status{
		Phase:       c.phase.String(),
		Direction:   c.direction.String(),
		Position:    c.position,
		Armed:       c.armed,
		RemainingMS: c.remaining.Milliseconds(),
	}
	if c.profile != nil {
		s.StepCount = c.profile.StepCount()
		program := c.profile.Closing
		if c.direction == Opening {
			program = c.profile.Opening
		}
		if c.position < len(program) {
			s.Voltage = program[c.position]
		}
	}
	return s
}

// emit pushes a snapshot to every listener; callers hold c.mu
func (c *Controller) emit() {
	s := c.status()
	for _, fn := range c.listeners {
		fn(s)
	}
}
