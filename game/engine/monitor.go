package engine

import (
	"math"
	"sync/atomic"
	"time"
)

// Monitor receives notifications from a World. The engine calls it and never
// depends on what it does; GUIs, WebSocket broadcasters and tests implement it.
type Monitor interface {
	// Trace is called after every committed state-changing instruction.
	Trace()
	StartEdit()
	EndEdit()
	WallToggled(p Point, d Direction)
	CornerClicked(p Point)
}

// NopMonitor ignores every notification.
type NopMonitor struct{}

func (NopMonitor) Trace() {}
func (NopMonitor) StartEdit() {}
func (NopMonitor) EndEdit() {}
func (NopMonitor) WallToggled(Point, Direction) {}
func (NopMonitor) CornerClicked(Point) {}

// MonitorFuncs adapts optional callbacks to the Monitor interface.
// Nil fields are skipped.
type MonitorFuncs struct {
	OnTrace         func()
	OnStartEdit     func()
	OnEndEdit       func()
	OnWallToggled   func(p Point, d Direction)
	OnCornerClicked func(p Point)
}

func (m MonitorFuncs) Trace() {
	if m.OnTrace != nil {
		m.OnTrace()
	}
}

func (m MonitorFuncs) StartEdit() {
	if m.OnStartEdit != nil {
		m.OnStartEdit()
	}
}

func (m MonitorFuncs) EndEdit() {
	if m.OnEndEdit != nil {
		m.OnEndEdit()
	}
}

func (m MonitorFuncs) WallToggled(p Point, d Direction) {
	if m.OnWallToggled != nil {
		m.OnWallToggled(p, d)
	}
}

func (m MonitorFuncs) CornerClicked(p Point) {
	if m.OnCornerClicked != nil {
		m.OnCornerClicked(p)
	}
}

// Multi fans every notification out to each monitor in order.
type Multi []Monitor

func (mm Multi) Trace() {
	for _, m := range mm {
		m.Trace()
	}
}

func (mm Multi) StartEdit() {
	for _, m := range mm {
		m.StartEdit()
	}
}

func (mm Multi) EndEdit() {
	for _, m := range mm {
		m.EndEdit()
	}
}

func (mm Multi) WallToggled(p Point, d Direction) {
	for _, m := range mm {
		m.WallToggled(p, d)
	}
}

func (mm Multi) CornerClicked(p Point) {
	for _, m := range mm {
		m.CornerClicked(p)
	}
}

const (
	slowDelay = 200 * time.Millisecond
	fastDelay = 0
)

// TraceDelay returns the pause applied after each instruction at the given
// speed in [0, 1]. Speeds of 0.98 and above run without delay.
func TraceDelay(speed float64) time.Duration {
	if speed >= 0.98 {
		return 0
	}
	if speed < 0 {
		speed = 0
	}
	return slowDelay + time.Duration(math.Sqrt(speed)*float64(fastDelay-slowDelay))
}

// PacedMonitor sleeps after every trace according to its speed, giving
// observers time to animate. It is safe to change the speed while a program
// is running.
type PacedMonitor struct {
	NopMonitor
	speed atomic.Uint64
	sleep func(time.Duration)
}

// NewPacedMonitor returns a PacedMonitor at the given speed. A nil sleep
// uses time.Sleep.
func NewPacedMonitor(speed float64, sleep func(time.Duration)) *PacedMonitor {
	if sleep == nil {
		sleep = time.Sleep
	}
	m := &PacedMonitor{sleep: sleep}
	m.SetSpeed(speed)
	return m
}

// SetSpeed clamps speed to [0, 1] and stores it.
func (m *PacedMonitor) SetSpeed(speed float64) {
	speed = math.Max(0, math.Min(1, speed))
	m.speed.Store(math.Float64bits(speed))
}

// Speed returns the current speed.
func (m *PacedMonitor) Speed() float64 {
	return math.Float64frombits(m.speed.Load())
}

func (m *PacedMonitor) Trace() {
	if d := TraceDelay(m.Speed()); d > 0 {
		m.sleep(d)
	}
}
