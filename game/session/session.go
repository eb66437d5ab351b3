package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/program"
)

var (
	ErrNoWorld      = errors.New("no world loaded")
	ErrNoRobot      = errors.New("no robot placed")
	ErrRunning      = errors.New("a program is running")
	ErrNotRunning   = errors.New("no program is running")
	ErrInvalidState = errors.New("invalid session state")
	ErrForeignRobot = errors.New("robot does not live in this session's world")
)

// State is a step of the session life cycle.
type State string

const (
	StateIdle      State = "idle"
	StateLoaded    State = "loaded"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Result kinds reported at the session boundary in addition to the engine's.
const (
	KindProgramError engine.Kind = "ProgramError"
	KindCancelled    engine.Kind = "Cancelled"
)

// Result describes how a run ended.
type Result struct {
	Program      string      `json:"program"`
	State        State       `json:"state"`
	Kind         engine.Kind `json:"kind,omitempty"`
	Message      string      `json:"message,omitempty"`
	Instructions int         `json:"instructions"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// TraceFunc observes a running program. It is called after every committed
// instruction on the program goroutine while the session is locked, so it
// must not call back into the session.
type TraceFunc func(id string, w *engine.World, instructions int)

// Option configures a Session.
type Option func(*Session)

// WithTrace installs a trace observer.
func WithTrace(fn TraceFunc) Option {
	return func(s *Session) { s.onTrace = fn }
}

// WithPacing delays each instruction according to the world's speed using
// sleep, which also serves the robot's Pause. A nil sleep uses time.Sleep.
func WithPacing(sleep func(time.Duration)) Option {
	return func(s *Session) {
		if sleep == nil {
			sleep = time.Sleep
		}
		s.paced = engine.NewPacedMonitor(engine.DefaultSpeed, sleep)
		s.pause = sleep
	}
}

// Session owns one world and runs programs against it.
//
// Idle -> Loaded -> Running -> {Completed | Failed | Cancelled}. A world can
// be (re)loaded from any state except Running; Reset returns to Loaded with
// the world as it was when loaded.
type Session struct {
	ID             string
	WorldName      string
	CreatedAt      time.Time
	LastAccessedAt time.Time

	// mu guards the world and is held for the whole of a run.
	mu       sync.Mutex
	world    *engine.World
	snapshot *engine.World
	last     *Result
	count    int
	onTrace  TraceFunc
	paced    *engine.PacedMonitor
	pause    func(time.Duration) // installed as the robot's pauser for paced runs

	// stateMu guards state, cancel and LastAccessedAt so they stay usable
	// during a run. WorldName is written holding both locks.
	stateMu sync.RWMutex
	state   State
	cancel  context.CancelFunc
}

// New returns an idle session.
func New(id string, opts ...Option) *Session {
	now := time.Now()
	s := &Session{
		ID:             id,
		CreatedAt:      now,
		LastAccessedAt: now,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.world = &engine.World{}
	monitors := engine.Multi{engine.MonitorFuncs{OnTrace: s.traced}}
	if s.paced != nil {
		monitors = append(monitors, s.paced)
	}
	s.world.SetMonitor(monitors)
	return s
}

func (s *Session) traced() {
	s.count++
	if s.onTrace != nil {
		s.onTrace(s.ID, s.world, s.count)
	}
}

// State returns the current life-cycle state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Touch records an access. It does not wait for a running program.
func (s *Session) Touch() {
	s.stateMu.Lock()
	s.LastAccessedAt = time.Now()
	s.stateMu.Unlock()
}

func (s *Session) LastAccessed() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.LastAccessedAt
}

// LoadWorld parses a world file and makes it the session's world. On error
// the session is left unchanged.
func (s *Session) LoadWorld(name string, r io.Reader) error {
	if s.State() == StateRunning {
		return ErrRunning
	}
	w, err := engine.Load(r)
	if err != nil {
		return err
	}
	return s.SetWorld(name, w)
}

// SetWorld makes a copy of w the session's world, as LoadWorld does for a
// parsed file.
func (s *Session) SetWorld(name string, w *engine.World) error {
	if s.State() == StateRunning {
		return ErrRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(name, w)
	return nil
}

// LoadWorldText is LoadWorld for a world held in a string.
func (s *Session) LoadWorldText(name, text string) error {
	return s.LoadWorld(name, strings.NewReader(text))
}

// install makes a copy of w the current world and its snapshot. Callers hold mu.
func (s *Session) install(name string, w *engine.World) {
	s.world.CopyFrom(w)
	s.snapshot = w.Clone()
	s.stateMu.Lock()
	s.WorldName = name
	s.stateMu.Unlock()
	s.last = nil
	if s.paced != nil {
		s.paced.SetSpeed(w.Speed())
	}
	s.setState(StateLoaded)
}

// requireLoaded checks the session can be edited. Callers hold mu.
func (s *Session) requireLoaded(op string) error {
	switch st := s.State(); st {
	case StateLoaded:
		return nil
	case StateIdle:
		return ErrNoWorld
	case StateRunning:
		return ErrRunning
	default:
		return fmt.Errorf("%w: %s while %s, reset first", ErrInvalidState, op, st)
	}
}

// PlaceRobot puts r on (x, y) facing dir with bag beepers and registers it
// with the session's world. A robot from another world is moved here. The
// placement becomes part of the state Reset returns to.
func (s *Session) PlaceRobot(r *engine.Robot, x, y int, dir engine.Direction, bag int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("placeRobot"); err != nil {
		return err
	}
	if !dir.IsValid() {
		return fmt.Errorf("placeRobot: invalid direction %d", int(dir))
	}
	if bag < 0 {
		return fmt.Errorf("placeRobot: negative bag count %d", bag)
	}
	if r.World() == s.world {
		if err := r.SetLocation(x, y); err != nil {
			return err
		}
	} else {
		if s.world.OutOfBounds(x, y) {
			return &engine.Error{Kind: engine.KindOutOfBounds, Op: "placeRobot", Msg: "Out of bounds"}
		}
		if s.world.RobotAt(x, y) != nil {
			return &engine.Error{Kind: engine.KindOccupied, Op: "placeRobot", Msg: "Square is already occupied"}
		}
		if old := r.World(); old != nil {
			old.Remove(r)
		}
		if err := r.SetLocation(x, y); err != nil {
			return err
		}
		if err := s.world.Add(r); err != nil {
			return err
		}
	}
	r.SetDirection(dir)
	r.SetBag(bag)
	s.snapshot = s.world.Clone()
	return nil
}

// PlaceDefaultRobot places a robot on (1, 1) facing East with an infinite
// bag when the world has none. It reports whether a robot was placed.
func (s *Session) PlaceDefaultRobot() (bool, error) {
	s.mu.Lock()
	hasRobot := s.world.Robot() != nil
	s.mu.Unlock()
	if hasRobot {
		return false, nil
	}
	if err := s.PlaceRobot(engine.NewRobot(), 1, 1, engine.East, engine.Infinite); err != nil {
		return false, err
	}
	return true, nil
}

// Edit runs fn against the loaded world between StartEdit and EndEdit. The
// edited world becomes the state Reset returns to. When fn fails the world
// goes back to its state before the edit, with fresh copies of its robots.
func (s *Session) Edit(fn func(w *engine.World) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("edit"); err != nil {
		return err
	}
	s.world.StartEdit()
	err := fn(s.world)
	s.world.EndEdit()
	if err != nil {
		if s.snapshot != nil {
			s.world.CopyFrom(s.snapshot)
		}
		return err
	}
	s.snapshot = s.world.Clone()
	return nil
}

// Run runs prog on the world's first robot. See RunRobot.
func (s *Session) Run(ctx context.Context, prog program.Program, opts ...program.Option) (*Result, error) {
	return s.RunRobot(ctx, nil, prog, opts...)
}

// RunRobot runs prog on r, or on the first robot when r is nil, and blocks
// until it finishes. The returned error reports why the run could not start;
// how the program ended is in the Result.
func (s *Session) RunRobot(ctx context.Context, r *engine.Robot, prog program.Program, opts ...program.Option) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded("run"); err != nil {
		return nil, err
	}
	if r == nil {
		r = s.world.Robot()
		if r == nil {
			return nil, ErrNoRobot
		}
	} else if r.World() != s.world {
		return nil, ErrForeignRobot
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.stateMu.Lock()
	s.state = StateRunning
	s.cancel = cancel
	s.stateMu.Unlock()
	defer func() {
		s.stateMu.Lock()
		if s.state == StateRunning {
			s.state = StateFailed
		}
		s.cancel = nil
		s.stateMu.Unlock()
	}()

	if s.pause != nil {
		r.SetPauser(s.pause)
	}
	s.count = 0
	res := &Result{Program: prog.Info().Name, StartedAt: time.Now()}
	err := execute(runCtx, prog, r, opts)
	res.FinishedAt = time.Now()
	res.Instructions = s.count
	classify(res, err)
	s.last = res

	s.stateMu.Lock()
	s.state = res.State
	s.cancel = nil
	s.stateMu.Unlock()
	return res, nil
}

// execute runs prog, turning a panic that escapes it into an error.
func execute(ctx context.Context, prog program.Program, r *engine.Robot, opts []program.Option) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", program.ErrPanic, p)
		}
	}()
	return prog.Execute(ctx, r, opts...)
}

// classify fills the outcome fields of res from a program error.
func classify(res *Result, err error) {
	var engErr *engine.Error
	switch {
	case err == nil:
		res.State = StateCompleted
		return
	case errors.As(err, &engErr):
		res.State = StateFailed
		res.Kind = engErr.Kind
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, program.ErrInstructionLimit):
		res.State = StateCancelled
		res.Kind = KindCancelled
	default:
		res.State = StateFailed
		res.Kind = KindProgramError
	}
	res.Message = err.Error()
}

// Cancel stops the running program before its next instruction.
func (s *Session) Cancel() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state != StateRunning || s.cancel == nil {
		return ErrNotRunning
	}
	s.cancel()
	return nil
}

// Reset restores the world to its state when loaded (including later robot
// placements and edits) and returns to Loaded.
func (s *Session) Reset() error {
	if s.State() == StateRunning {
		return ErrRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return ErrNoWorld
	}
	s.world.CopyFrom(s.snapshot)
	s.last = nil
	s.setState(StateLoaded)
	return nil
}

// LastResult returns the outcome of the most recent run since the world was
// loaded or reset, or nil.
func (s *Session) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	res := *s.last
	return &res
}

// View runs fn with read access to the current world. It waits for a running
// program to finish.
func (s *Session) View(fn func(w *engine.World) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return ErrNoWorld
	}
	return fn(s.world)
}

// Snapshot returns a value copy of the current world.
func (s *Session) Snapshot() (engine.Snapshot, error) {
	var snap engine.Snapshot
	err := s.View(func(w *engine.World) error {
		snap = w.Snapshot()
		return nil
	})
	return snap, err
}

// Text returns the current world in world-file format.
func (s *Session) Text() (string, error) {
	var text string
	err := s.View(func(w *engine.World) error {
		text = w.Text()
		return nil
	})
	return text, err
}

// restore reinstates persisted state. A session saved mid-run comes back
// Cancelled.
func (s *Session) restore(name string, current, snapshot *engine.World, st State, last *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot == nil {
		s.setState(StateIdle)
		return
	}
	s.install(name, snapshot)
	if current != nil {
		s.world.CopyFrom(current)
	}
	if st == StateRunning {
		st = StateCancelled
	}
	if st != StateIdle {
		s.setState(st)
	}
	s.last = last
}

// persisted captures what persistence stores. Callers must not hold mu.
func (s *Session) persisted() (data PersistedSessionData, current string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data = PersistedSessionData{
		ID:             s.ID,
		WorldName:      s.WorldName,
		State:          s.State(),
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		LastResult:     s.last,
	}
	if s.snapshot != nil {
		data.InitialWorld = s.snapshot.Text()
		current = s.world.Text()
	}
	return data, current
}

// SetSpeed changes the pacing speed, also while a program runs. It has no
// effect on a session created without WithPacing.
func (s *Session) SetSpeed(speed float64) {
	if s.paced != nil {
		s.paced.SetSpeed(speed)
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	WorldName      string
	State          State
	LastAccessedAt time.Time
	// World and LastResult are nil while a program holds the session or
	// before a world is loaded.
	World      *engine.Snapshot
	LastResult *Result
}

// Status describes the session without waiting for a running program.
func (s *Session) Status() Status {
	s.stateMu.RLock()
	st := Status{WorldName: s.WorldName, State: s.state, LastAccessedAt: s.LastAccessedAt}
	s.stateMu.RUnlock()

	if !s.mu.TryLock() {
		return st
	}
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return st
	}
	snap := s.world.Snapshot()
	st.World = &snap
	if s.last != nil {
		res := *s.last
		st.LastResult = &res
	}
	return st
}
