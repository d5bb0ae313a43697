package trap_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iontrap-lab/rflab/rohdeschwarz"
	"github.com/iontrap-lab/rflab/trap"
	"github.com/iontrap-lab/rflab/util"
)

// the instrument mock is usable anywhere the sweep machinery wants a generator
var _ trap.Sweeper = &rohdeschwarz.Mock{}

// fakeSweeper records sweep calls and injects faults per operation
type fakeSweeper struct {
	mu       sync.Mutex
	calls    []string
	programs map[string][]float64
	selected string
	sweeping bool
	failOn   map[string]error
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{programs: map[string][]float64{}, failOn: map[string]error{}}
}

func (f *fakeSweeper) record(op string) error {
	f.calls = append(f.calls, op)
	return f.failOn[op]
}

func (f *fakeSweeper) SetListSweep(powers []float64, dwell float64, repeat bool, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set"); err != nil {
		return err
	}
	f.programs[filename] = powers
	return nil
}

func (f *fakeSweeper) ChangeListSweep(filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("change"); err != nil {
		return err
	}
	f.selected = filename
	return nil
}

func (f *fakeSweeper) StartListSweep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("start"); err != nil {
		return err
	}
	f.sweeping = true
	return nil
}

func (f *fakeSweeper) StopSweep() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("stop"); err != nil {
		return err
	}
	f.sweeping = false
	return nil
}

func (f *fakeSweeper) isSweeping() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeping
}

func (f *fakeSweeper) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOn, op)
		return
	}
	f.failOn[op] = err
}

func (f *fakeSweeper) called(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// countingLock stands in for the HTTP locker guarding manual routes
type countingLock struct {
	mu      sync.Mutex
	locks   int
	unlocks int
}

func (c *countingLock) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locks++
}

func (c *countingLock) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlocks++
}

func (c *countingLock) counts() (locks, unlocks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locks, c.unlocks
}

func quickReq() trap.ProfileRequest {
	return trap.ProfileRequest{
		OpenVoltage:  0,
		CloseVoltage: 10,
		StepInterval: 0.02,
		StepCount:    3,
		Formula:      "t",
	}
}

// armed returns a controller with a previewed 3-step, 20ms-dwell profile
// and a channel of its events
func armed(t *testing.T, fs *fakeSweeper) (*trap.Controller, chan trap.Status) {
	t.Helper()
	ctl := trap.NewController(fs)
	ctl.Settle = 5 * time.Millisecond
	if _, err := ctl.Preview(quickReq()); err != nil {
		t.Fatal(err)
	}
	// subscribe after the preview, so the channel carries only the session's
	// own events; the preview itself emits an idle snapshot that would
	// otherwise satisfy a completion wait before the sweep even starts
	events := make(chan trap.Status, 128)
	ctl.Notify(func(s trap.Status) { events <- s })
	return ctl, events
}

// waitFor consumes events until one matches, or fails the test
func waitFor(t *testing.T, events chan trap.Status, what string, match func(trap.Status) bool) trap.Status {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-events:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestUploadStagesWithoutStarting(t *testing.T) {
	fs := newFakeSweeper()
	p, err := trap.ComputeProfile(quickReq())
	if err != nil {
		t.Fatal(err)
	}
	if err := trap.Upload(fs, p); err != nil {
		t.Fatal(err)
	}
	if fs.isSweeping() {
		t.Error("upload started a sweep")
	}
	if fs.called("start") != 0 {
		t.Error("upload issued a start command")
	}
	for _, fn := range []string{trap.CloseTrapFilename, trap.OpenTrapFilename} {
		if _, ok := fs.programs[fn]; !ok {
			t.Errorf("no program staged under %s", fn)
		}
	}
	if fs.programs[trap.OpenTrapFilename][0] != 10 {
		t.Errorf("opening program should start at the closed level, got %f", fs.programs[trap.OpenTrapFilename][0])
	}
}

func TestUploadWrapsInstrumentFault(t *testing.T) {
	fs := newFakeSweeper()
	fs.fail("set", errors.New("connection reset"))
	p, err := trap.ComputeProfile(quickReq())
	if err != nil {
		t.Fatal(err)
	}
	err = trap.Upload(fs, p)
	var ue trap.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if ue.Filename != trap.CloseTrapFilename {
		t.Errorf("fault attributed to %s, expected the closing program", ue.Filename)
	}
}

func TestPreviewArms(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	s := ctl.Status()
	if !s.Armed || s.Phase != "idle" || s.Position != 0 {
		t.Errorf("expected armed idle at position 0, got %+v", s)
	}
	if ctl.Profile() == nil {
		t.Error("no profile exposed after preview")
	}
	if fs.isSweeping() {
		t.Error("preview started a sweep")
	}
}

func TestPreviewRejectsLevelsOutsideBand(t *testing.T) {
	ctl := trap.NewController(newFakeSweeper())
	ctl.Limits = &util.Limiter{Min: -145, Max: 5}
	req := quickReq() // close level 10, above the band
	if _, err := ctl.Preview(req); err == nil {
		t.Error("expected an error for a close level above the permitted band")
	}
	if ctl.Status().Armed {
		t.Error("a rejected preview left the controller armed")
	}
	req.CloseVoltage = 5
	if _, err := ctl.Preview(req); err != nil {
		t.Errorf("levels at the band edge should be accepted, got %v", err)
	}
}

func TestToggleBeforePreviewFails(t *testing.T) {
	ctl := trap.NewController(newFakeSweeper())
	if err := ctl.Toggle(trap.Closing); !errors.Is(err, trap.ErrNotArmed) {
		t.Errorf("expected ErrNotArmed, got %v", err)
	}
}

func TestStartSelectsAndRuns(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	defer ctl.Abort()
	if fs.selected != trap.CloseTrapFilename {
		t.Errorf("selected %s, expected the closing program", fs.selected)
	}
	if !fs.isSweeping() {
		t.Error("instrument not sweeping after toggle")
	}
	s := ctl.Status()
	if s.Phase != "running" || s.Direction != "closing" || s.Position != 0 {
		t.Errorf("expected running closing at position 0, got %+v", s)
	}
}

func TestCompletionReturnsToIdle(t *testing.T) {
	fs := newFakeSweeper()
	ctl, events := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	s := waitFor(t, events, "completion", func(s trap.Status) bool { return s.Phase == "idle" })
	if s.Position != 0 {
		t.Errorf("position %d after completion, expected 0", s.Position)
	}
	if fs.isSweeping() {
		t.Error("instrument still sweeping after completion")
	}
	if !s.Armed {
		t.Error("completion should leave the profile armed for the next run")
	}
}

func TestPauseCapturesAndResumes(t *testing.T) {
	fs := newFakeSweeper()
	ctl, events := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, "first tick", func(s trap.Status) bool { return s.Position == 1 })
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	s := ctl.Status()
	if s.Phase != "paused" {
		t.Fatalf("expected paused, got %s", s.Phase)
	}
	if fs.isSweeping() {
		t.Error("instrument still sweeping while paused")
	}
	if s.RemainingMS < 0 || s.RemainingMS > 20 {
		t.Errorf("remaining %dms outside the dwell interval", s.RemainingMS)
	}
	pos := s.Position

	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	if got := ctl.Status(); got.Phase != "running" || got.Position != pos {
		t.Errorf("resume should keep position %d, got %+v", pos, got)
	}
	s = waitFor(t, events, "completion after resume", func(s trap.Status) bool { return s.Phase == "idle" })
	if s.Position != 0 {
		t.Errorf("position %d after completion, expected 0", s.Position)
	}
}

func TestOppositeDirectionRejected(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	defer ctl.Abort()
	if err := ctl.Toggle(trap.Opening); !errors.Is(err, trap.ErrSweepActive) {
		t.Errorf("expected ErrSweepActive while running, got %v", err)
	}
	if err := ctl.Toggle(trap.Closing); err != nil { // pause
		t.Fatal(err)
	}
	if err := ctl.Toggle(trap.Opening); !errors.Is(err, trap.ErrSweepActive) {
		t.Errorf("expected ErrSweepActive while paused, got %v", err)
	}
}

func TestHardwareFaultDoesNotCommit(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	fs.fail("start", errors.New("instrument unreachable"))
	err := ctl.Toggle(trap.Closing)
	var hw trap.HardwareError
	if !errors.As(err, &hw) {
		t.Fatalf("expected HardwareError, got %v", err)
	}
	if s := ctl.Status(); s.Phase != "idle" {
		t.Errorf("failed start left phase %s, expected idle", s.Phase)
	}

	fs.fail("start", nil)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	defer ctl.Abort()
	fs.fail("stop", errors.New("instrument unreachable"))
	if err := ctl.Toggle(trap.Closing); !errors.As(err, &hw) {
		t.Fatalf("expected HardwareError on pause, got %v", err)
	}
	if s := ctl.Status(); s.Phase != "running" {
		t.Errorf("failed pause left phase %s, expected running", s.Phase)
	}
	fs.fail("stop", nil)
}

func TestInvalidateBlocksResume(t *testing.T) {
	fs := newFakeSweeper()
	ctl, events := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, "first tick", func(s trap.Status) bool { return s.Position == 1 })
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	ctl.Invalidate()
	if err := ctl.Toggle(trap.Closing); !errors.Is(err, trap.ErrNotArmed) {
		t.Errorf("expected ErrNotArmed after invalidate, got %v", err)
	}
}

func TestPreviewWhileRunningRejected(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	defer ctl.Abort()
	if _, err := ctl.Preview(quickReq()); !errors.Is(err, trap.ErrSweepActive) {
		t.Errorf("expected ErrSweepActive, got %v", err)
	}
}

func TestPreviewWhilePausedAbandonsSession(t *testing.T) {
	fs := newFakeSweeper()
	ctl, events := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, "first tick", func(s trap.Status) bool { return s.Position == 1 })
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	if _, err := ctl.Preview(quickReq()); err != nil {
		t.Fatal(err)
	}
	s := ctl.Status()
	if s.Phase != "idle" || s.Position != 0 || !s.Armed {
		t.Errorf("expected armed idle at position 0 after preview from pause, got %+v", s)
	}
}

func TestControlsLockedDuringSession(t *testing.T) {
	fs := newFakeSweeper()
	ctl, events := armed(t, fs)
	lk := &countingLock{}
	ctl.Locks = []trap.Lockable{lk}
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	if locks, _ := lk.counts(); locks != 1 {
		t.Errorf("expected controls locked once at start, got %d", locks)
	}
	waitFor(t, events, "completion", func(s trap.Status) bool { return s.Phase == "idle" })
	if _, unlocks := lk.counts(); unlocks != 1 {
		t.Errorf("expected controls unlocked once at completion, got %d", unlocks)
	}
}

func TestAbortResets(t *testing.T) {
	fs := newFakeSweeper()
	ctl, _ := armed(t, fs)
	if err := ctl.Toggle(trap.Closing); err != nil {
		t.Fatal(err)
	}
	if err := ctl.Abort(); err != nil {
		t.Fatal(err)
	}
	s := ctl.Status()
	if s.Phase != "idle" || s.Position != 0 {
		t.Errorf("expected idle at position 0 after abort, got %+v", s)
	}
	if fs.isSweeping() {
		t.Error("instrument still sweeping after abort")
	}
	// position must not creep after the session ended
	time.Sleep(60 * time.Millisecond)
	if s := ctl.Status(); s.Position != 0 {
		t.Errorf("stale tick advanced position to %d after abort", s.Position)
	}
}
