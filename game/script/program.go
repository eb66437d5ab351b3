package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/program"
)

var (
	ErrOpcodeLimit = fmt.Errorf("lua opcode budget: %w", program.ErrInstructionLimit)
	ErrScript      = errors.New("lua script error")
)

// Script is a robot program written in Lua. The robot's instructions and
// sensors are Lua globals named as in Karel (move, turnLeft,
// frontIsClear, ...). SuperKarel scripts additionally get turnRight,
// turnAround, paintCorner, cornerColorIs, random and pause.
type Script struct {
	info        program.Info
	source      string
	opcodeLimit int
}

// New returns a Lua program of the given kind.
func New(name string, kind program.Kind, source string) *Script {
	return &Script{
		info:   program.Info{Name: name, Kind: kind, Language: "lua"},
		source: source,
	}
}

// WithWorld records the world file the script expects to run in.
func (s *Script) WithWorld(world string) *Script {
	s.info.World = world
	return s
}

// WithDescription attaches a one-line description.
func (s *Script) WithDescription(desc string) *Script {
	s.info.Description = desc
	return s
}

// WithOpcodeLimit bounds the Lua opcodes executed per run. Zero uses
// DefaultOpcodeLimit.
func (s *Script) WithOpcodeLimit(n int) *Script {
	s.opcodeLimit = n
	return s
}

func (s *Script) Info() program.Info { return s.info }

// Source returns the Lua source.
func (s *Script) Source() string { return s.source }

// Check compiles the script without running it.
func (s *Script) Check() error {
	L, cancel := NewSandboxedState(context.Background(), s.opcodeLimit)
	defer cancel()
	defer L.Close()
	if _, err := L.LoadString(s.source); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScript, s.info.Name, err)
	}
	return nil
}

func (s *Script) Execute(ctx context.Context, r *engine.Robot, opts ...program.Option) error {
	if r == nil {
		return fmt.Errorf("script: nil robot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o := program.Apply(opts...)

	L, counter, cancel := newSandbox(ctx, s.opcodeLimit)
	defer cancel()
	defer L.Close()

	b := &binding{ctx: ctx, robot: r, limit: o.InstructionLimit}
	b.register(L, s.info.Kind)

	err := L.DoString(s.source)
	if b.err != nil {
		// an instruction failed; a pcall in the script does not undo that
		return b.err
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if counter.exhausted() {
		limit := s.opcodeLimit
		if limit <= 0 {
			limit = DefaultOpcodeLimit
		}
		return fmt.Errorf("%w (%d)", ErrOpcodeLimit, limit)
	}
	return fmt.Errorf("%w: %s: %v", ErrScript, s.info.Name, err)
}

// binding exposes one robot to one LState.
type binding struct {
	ctx   context.Context
	robot *engine.Robot
	limit int
	calls int
	err   error
}

func (b *binding) fail(L *lua.LState, err error) {
	b.err = err
	L.RaiseError("%s", err.Error())
}

// step runs before every instruction and sensor query.
func (b *binding) step(L *lua.LState) {
	if b.err != nil {
		L.RaiseError("%s", b.err.Error())
	}
	if err := b.ctx.Err(); err != nil {
		b.fail(L, err)
	}
	b.calls++
	if b.limit > 0 && b.calls > b.limit {
		b.fail(L, fmt.Errorf("%w (%d)", program.ErrInstructionLimit, b.limit))
	}
}

func (b *binding) action(f func() error) lua.LGFunction {
	return func(L *lua.LState) int {
		b.step(L)
		if err := f(); err != nil {
			b.fail(L, err)
		}
		return 0
	}
}

func (b *binding) sensor(f func() (bool, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		b.step(L)
		ok, err := f()
		if err != nil {
			b.fail(L, err)
		}
		L.Push(lua.LBool(ok))
		return 1
	}
}

func (b *binding) register(L *lua.LState, kind program.Kind) {
	r := b.robot
	funcs := map[string]lua.LGFunction{
		"move":             b.action(r.Move),
		"turnLeft":         b.action(r.TurnLeft),
		"pickBeeper":       b.action(r.PickBeeper),
		"putBeeper":        b.action(r.PutBeeper),
		"frontIsClear":     b.sensor(r.FrontIsClear),
		"frontIsBlocked":   b.sensor(r.FrontIsBlocked),
		"leftIsClear":      b.sensor(r.LeftIsClear),
		"leftIsBlocked":    b.sensor(r.LeftIsBlocked),
		"rightIsClear":     b.sensor(r.RightIsClear),
		"rightIsBlocked":   b.sensor(r.RightIsBlocked),
		"beepersPresent":   b.sensor(r.BeepersPresent),
		"noBeepersPresent": b.sensor(r.NoBeepersPresent),
		"beepersInBag":     b.sensor(r.BeepersInBag),
		"noBeepersInBag":   b.sensor(r.NoBeepersInBag),
		"facingNorth":      b.sensor(r.FacingNorth),
		"facingEast":       b.sensor(r.FacingEast),
		"facingSouth":      b.sensor(r.FacingSouth),
		"facingWest":       b.sensor(r.FacingWest),
		"notFacingNorth":   b.sensor(r.NotFacingNorth),
		"notFacingEast":    b.sensor(r.NotFacingEast),
		"notFacingSouth":   b.sensor(r.NotFacingSouth),
		"notFacingWest":    b.sensor(r.NotFacingWest),
	}
	if kind == program.KindSuperKarel {
		funcs["turnRight"] = b.action(r.TurnRight)
		funcs["turnAround"] = b.action(r.TurnAround)
		funcs["paintCorner"] = b.paintCorner
		funcs["cornerColorIs"] = b.cornerColorIs
		funcs["random"] = b.random
		funcs["pause"] = b.pause
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func checkColor(L *lua.LState, n int) engine.Color {
	c, err := engine.ParseColor(L.OptString(n, ""))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return c
}

func (b *binding) paintCorner(L *lua.LState) int {
	c := checkColor(L, 1)
	b.step(L)
	if err := b.robot.PaintCorner(c); err != nil {
		b.fail(L, err)
	}
	return 0
}

func (b *binding) cornerColorIs(L *lua.LState) int {
	c := checkColor(L, 1)
	b.step(L)
	ok, err := b.robot.CornerColorIs(c)
	if err != nil {
		b.fail(L, err)
	}
	L.Push(lua.LBool(ok))
	return 1
}

func (b *binding) random(L *lua.LState) int {
	p := float64(L.OptNumber(1, engine.DefaultChance))
	b.step(L)
	ok, err := b.robot.Random(p)
	if err != nil {
		b.fail(L, err)
	}
	L.Push(lua.LBool(ok))
	return 1
}

// pause takes milliseconds.
func (b *binding) pause(L *lua.LState) int {
	ms := L.OptInt(1, 0)
	b.step(L)
	if err := b.robot.Pause(time.Duration(ms) * time.Millisecond); err != nil {
		b.fail(L, err)
	}
	return 0
}
