package program

import (
	"context"
	"fmt"
	"time"

	"github.com/wricardo/karel/game/engine"
)

// fault carries an instruction failure from deep inside user code back to
// the Program boundary. It never escapes this package.
type fault struct {
	err error
}

// driver adapts *engine.Robot to the SuperKarel capability set. Every call
// first checks for cancellation and the call budget, so a stop request is
// honoured between instructions and never inside one.
type driver struct {
	ctx   context.Context
	robot *engine.Robot
	limit int
	calls int
}

func (d *driver) check() {
	if err := d.ctx.Err(); err != nil {
		panic(fault{err: err})
	}
	d.calls++
	if d.limit > 0 && d.calls > d.limit {
		panic(fault{err: fmt.Errorf("%w (%d)", ErrInstructionLimit, d.limit)})
	}
}

func (d *driver) do(err error) {
	if err != nil {
		panic(fault{err: err})
	}
}

func (d *driver) ask(ok bool, err error) bool {
	if err != nil {
		panic(fault{err: err})
	}
	return ok
}

func (d *driver) Move()       { d.check(); d.do(d.robot.Move()) }
func (d *driver) TurnLeft()   { d.check(); d.do(d.robot.TurnLeft()) }
func (d *driver) PickBeeper() { d.check(); d.do(d.robot.PickBeeper()) }
func (d *driver) PutBeeper()  { d.check(); d.do(d.robot.PutBeeper()) }
func (d *driver) TurnRight()  { d.check(); d.do(d.robot.TurnRight()) }
func (d *driver) TurnAround() { d.check(); d.do(d.robot.TurnAround()) }

func (d *driver) PaintCorner(c engine.Color) {
	d.check()
	d.do(d.robot.PaintCorner(c))
}

func (d *driver) Pause(p time.Duration) {
	d.check()
	d.do(d.robot.Pause(p))
}

func (d *driver) CornerColorIs(c engine.Color) bool {
	d.check()
	return d.ask(d.robot.CornerColorIs(c))
}

func (d *driver) Random(p float64) bool {
	d.check()
	return d.ask(d.robot.Random(p))
}

func (d *driver) Flip() bool { return d.Random(engine.DefaultChance) }

func (d *driver) FrontIsClear() bool     { d.check(); return d.ask(d.robot.FrontIsClear()) }
func (d *driver) FrontIsBlocked() bool   { d.check(); return d.ask(d.robot.FrontIsBlocked()) }
func (d *driver) LeftIsClear() bool      { d.check(); return d.ask(d.robot.LeftIsClear()) }
func (d *driver) LeftIsBlocked() bool    { d.check(); return d.ask(d.robot.LeftIsBlocked()) }
func (d *driver) RightIsClear() bool     { d.check(); return d.ask(d.robot.RightIsClear()) }
func (d *driver) RightIsBlocked() bool   { d.check(); return d.ask(d.robot.RightIsBlocked()) }
func (d *driver) BeepersPresent() bool   { d.check(); return d.ask(d.robot.BeepersPresent()) }
func (d *driver) NoBeepersPresent() bool { d.check(); return d.ask(d.robot.NoBeepersPresent()) }
func (d *driver) BeepersInBag() bool     { d.check(); return d.ask(d.robot.BeepersInBag()) }
func (d *driver) NoBeepersInBag() bool   { d.check(); return d.ask(d.robot.NoBeepersInBag()) }
func (d *driver) FacingNorth() bool      { d.check(); return d.ask(d.robot.FacingNorth()) }
func (d *driver) FacingEast() bool       { d.check(); return d.ask(d.robot.FacingEast()) }
func (d *driver) FacingSouth() bool      { d.check(); return d.ask(d.robot.FacingSouth()) }
func (d *driver) FacingWest() bool       { d.check(); return d.ask(d.robot.FacingWest()) }
func (d *driver) NotFacingNorth() bool   { d.check(); return d.ask(d.robot.NotFacingNorth()) }
func (d *driver) NotFacingEast() bool    { d.check(); return d.ask(d.robot.NotFacingEast()) }
func (d *driver) NotFacingSouth() bool   { d.check(); return d.ask(d.robot.NotFacingSouth()) }
func (d *driver) NotFacingWest() bool    { d.check(); return d.ask(d.robot.NotFacingWest()) }

// drive runs body against a driver for r and converts instruction failures
// and user panics into an error.
func drive(ctx context.Context, r *engine.Robot, opts Options, body func(d *driver)) (err error) {
	if r == nil {
		return fmt.Errorf("program: nil robot")
	}
	d := &driver{ctx: ctx, robot: r, limit: opts.InstructionLimit}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if f, ok := rec.(fault); ok {
			err = f.err
			return
		}
		err = fmt.Errorf("%w: %v", ErrPanic, rec)
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	body(d)
	return nil
}
