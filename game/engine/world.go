package engine

import (
	"fmt"
	"sort"
)

// DefaultSpeed is the animation speed of a freshly initialised world.
const DefaultSpeed = 0.5

// MaxDimension bounds both sides of a world.
const MaxDimension = 1000

// Wall is a wall segment identified by a corner and one of its edges.
type Wall struct {
	Point
	Dir Direction `json:"dir"`
}

func (w Wall) String() string {
	return fmt.Sprintf("%s %s", w.Point, w.Dir)
}

type corner struct {
	beepers int
	color   Color
}

// World is the grid of corners, walls and robots Karel lives in.
//
// Walls are stored canonically on the north or east edge of a corner, which
// makes them symmetric: the east edge of (x, y) is the west edge of (x+1, y).
// The outer border is never stored; CheckWall treats leaving the grid as
// blocked instead.
//
// World is not safe for concurrent use.
type World struct {
	width   int
	height  int
	corners []corner
	walls   map[Wall]struct{}
	robots  []*Robot
	monitor Monitor
	speed   float64
}

// NewWorld returns an empty width x height world.
func NewWorld(width, height int) (*World, error) {
	w := &World{}
	if err := w.Init(width, height); err != nil {
		return nil, err
	}
	return w, nil
}

// Init resets w to an empty width x height grid: no walls, no beepers,
// no paint and no robots. The monitor is kept.
func (w *World) Init(width, height int) error {
	if width < 1 || height < 1 {
		return newError(KindInvalidDimension, "init",
			fmt.Sprintf("dimensions must be positive, got %dx%d", width, height))
	}
	if width > MaxDimension || height > MaxDimension {
		return newError(KindInvalidDimension, "init",
			fmt.Sprintf("dimensions must be at most %dx%d, got %dx%d", MaxDimension, MaxDimension, width, height))
	}
	for _, r := range w.robots {
		r.world = nil
	}
	w.width = width
	w.height = height
	w.corners = make([]corner, width*height)
	w.walls = make(map[Wall]struct{})
	w.robots = nil
	w.speed = DefaultSpeed
	return nil
}

// Width returns the number of avenues.
func (w *World) Width() int { return w.width }

// Height returns the number of streets.
func (w *World) Height() int { return w.height }

// Speed returns the animation speed recorded with the world, in [0, 1].
func (w *World) Speed() float64 { return w.speed }

// SetSpeed records the animation speed, clamped to [0, 1].
func (w *World) SetSpeed(speed float64) {
	switch {
	case speed < 0:
		speed = 0
	case speed > 1:
		speed = 1
	}
	w.speed = speed
}

// SetMonitor installs the notification sink. A nil monitor disables
// notifications.
func (w *World) SetMonitor(m Monitor) {
	w.monitor = m
}

// Monitor returns the installed monitor, or nil.
func (w *World) Monitor() Monitor {
	return w.monitor
}

// OutOfBounds reports whether (x, y) lies outside the grid.
func (w *World) OutOfBounds(x, y int) bool {
	return x < 1 || x > w.width || y < 1 || y > w.height
}

func (w *World) index(x, y int) int {
	return (y-1)*w.width + (x - 1)
}

// canonicalWall maps an edge onto the north or east edge of the corner that
// owns it.
func canonicalWall(x, y int, d Direction) Wall {
	switch d {
	case South:
		return Wall{Point: Point{X: x, Y: y - 1}, Dir: North}
	case West:
		return Wall{Point: Point{X: x - 1, Y: y}, Dir: East}
	default:
		return Wall{Point: Point{X: x, Y: y}, Dir: d}
	}
}

// onBorder reports whether the edge of (x, y) facing d is the outer boundary.
func (w *World) onBorder(x, y int, d Direction) bool {
	nx, ny := AdjacentCorner(x, y, d)
	return w.OutOfBounds(nx, ny)
}

// HasWall reports whether a wall is stored on the given edge. Border edges
// always report false.
func (w *World) HasWall(x, y int, d Direction) bool {
	if w.OutOfBounds(x, y) || !d.IsValid() {
		return false
	}
	_, ok := w.walls[canonicalWall(x, y, d)]
	return ok
}

// SetWall adds or removes the wall on the given edge. Border edges are
// implicit and setting them is a no-op.
func (w *World) SetWall(x, y int, d Direction, present bool) error {
	if w.OutOfBounds(x, y) {
		return newError(KindOutOfBounds, "setWall", fmt.Sprintf("corner (%d, %d) is outside the world", x, y))
	}
	if !d.IsValid() {
		return fmt.Errorf("setWall: invalid direction %d", int(d))
	}
	if w.onBorder(x, y, d) {
		return nil
	}
	key := canonicalWall(x, y, d)
	if present {
		w.walls[key] = struct{}{}
	} else {
		delete(w.walls, key)
	}
	return nil
}

// CheckWall reports whether movement from (x, y) in direction d is blocked,
// either by a stored wall or by the edge of the grid.
func (w *World) CheckWall(x, y int, d Direction) bool {
	if w.onBorder(x, y, d) {
		return true
	}
	return w.HasWall(x, y, d)
}

// Walls returns the stored walls in canonical form, sorted by position.
func (w *World) Walls() []Wall {
	out := make([]Wall, 0, len(w.walls))
	for wall := range w.walls {
		out = append(out, wall)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Dir < b.Dir
	})
	return out
}

// BeepersOnCorner returns the number of beepers on (x, y); zero when out of
// bounds.
func (w *World) BeepersOnCorner(x, y int) int {
	if w.OutOfBounds(x, y) {
		return 0
	}
	return w.corners[w.index(x, y)].beepers
}

// SetBeepersOnCorner sets the beeper count on (x, y). The count must be
// non-negative or Infinite.
func (w *World) SetBeepersOnCorner(x, y, n int) error {
	if w.OutOfBounds(x, y) {
		return newError(KindOutOfBounds, "setBeepersOnCorner", fmt.Sprintf("corner (%d, %d) is outside the world", x, y))
	}
	if n < 0 {
		return fmt.Errorf("setBeepersOnCorner: negative beeper count %d", n)
	}
	w.corners[w.index(x, y)].beepers = n
	return nil
}

// CornerColor returns the paint on (x, y), or NoColor.
func (w *World) CornerColor(x, y int) Color {
	if w.OutOfBounds(x, y) {
		return NoColor
	}
	return w.corners[w.index(x, y)].color
}

// SetCornerColor paints (x, y). NoColor removes the paint.
func (w *World) SetCornerColor(x, y int, c Color) error {
	if w.OutOfBounds(x, y) {
		return newError(KindOutOfBounds, "setCornerColor", fmt.Sprintf("corner (%d, %d) is outside the world", x, y))
	}
	w.corners[w.index(x, y)].color = c
	return nil
}

// TotalBeepers sums the finite beeper counts on every corner and reports
// whether any corner holds an infinite supply.
func (w *World) TotalBeepers() (total int, infinite bool) {
	for _, c := range w.corners {
		if c.beepers == Infinite {
			infinite = true
			continue
		}
		total += c.beepers
	}
	return total, infinite
}

// RobotAt returns the robot on (x, y), or nil.
func (w *World) RobotAt(x, y int) *Robot {
	for _, r := range w.robots {
		if r.x == x && r.y == y {
			return r
		}
	}
	return nil
}

// Robots returns the robots living in the world in the order they were added.
func (w *World) Robots() []*Robot {
	out := make([]*Robot, len(w.robots))
	copy(out, w.robots)
	return out
}

// Robot returns the first robot added to the world, or nil.
func (w *World) Robot() *Robot {
	if len(w.robots) == 0 {
		return nil
	}
	return w.robots[0]
}

// Add registers r at its current position. Adding a robot that already
// lives in w is a no-op. A robot living in another world is moved here.
func (w *World) Add(r *Robot) error {
	if r.world == w {
		return nil
	}
	if w.OutOfBounds(r.x, r.y) {
		return newError(KindOutOfBounds, "add", fmt.Sprintf("corner (%d, %d) is outside the world", r.x, r.y))
	}
	if occupant := w.RobotAt(r.x, r.y); occupant != nil {
		return newError(KindOccupied, "add", fmt.Sprintf("corner (%d, %d) is already occupied", r.x, r.y))
	}
	if r.world != nil {
		r.world.Remove(r)
	}
	r.world = w
	w.robots = append(w.robots, r)
	return nil
}

// Remove takes r out of the world. It is a no-op if r does not live here.
func (w *World) Remove(r *Robot) {
	for i, other := range w.robots {
		if other == r {
			w.robots = append(w.robots[:i], w.robots[i+1:]...)
			r.world = nil
			return
		}
	}
}

// trace forwards an instruction notification to the monitor.
func (w *World) trace() {
	if w.monitor != nil {
		w.monitor.Trace()
	}
}

// StartEdit tells the monitor an editing session has begun.
func (w *World) StartEdit() {
	if w.monitor != nil {
		w.monitor.StartEdit()
	}
}

// EndEdit tells the monitor an editing session has finished.
func (w *World) EndEdit() {
	if w.monitor != nil {
		w.monitor.EndEdit()
	}
}

// ToggleWall flips the wall on the given edge and notifies the monitor.
func (w *World) ToggleWall(x, y int, d Direction) error {
	if err := w.SetWall(x, y, d, !w.HasWall(x, y, d)); err != nil {
		return err
	}
	if w.monitor != nil {
		w.monitor.WallToggled(Point{X: x, Y: y}, d)
	}
	return nil
}

// ClickCorner applies an editor click on (x, y), which drops one beeper on
// the corner, and reports it to the monitor.
func (w *World) ClickCorner(x, y int) error {
	if w.OutOfBounds(x, y) {
		return newError(KindOutOfBounds, "clickCorner", fmt.Sprintf("corner (%d, %d) is outside the world", x, y))
	}
	i := w.index(x, y)
	w.corners[i].beepers = AdjustBeepers(w.corners[i].beepers, 1)
	if w.monitor != nil {
		w.monitor.CornerClicked(Point{X: x, Y: y})
	}
	return nil
}

// Clone returns a deep copy of w, robots included. The copy has no monitor.
func (w *World) Clone() *World {
	c := &World{
		width:   w.width,
		height:  w.height,
		corners: make([]corner, len(w.corners)),
		walls:   make(map[Wall]struct{}, len(w.walls)),
		speed:   w.speed,
	}
	copy(c.corners, w.corners)
	for k := range w.walls {
		c.walls[k] = struct{}{}
	}
	for _, r := range w.robots {
		nr := *r
		nr.world = c
		c.robots = append(c.robots, &nr)
	}
	return c
}

// replace swaps the contents of w for those of src, keeping w's monitor.
// Robots of src are re-homed to w.
func (w *World) replace(src *World) {
	for _, r := range w.robots {
		r.world = nil
	}
	w.width = src.width
	w.height = src.height
	w.corners = src.corners
	w.walls = src.walls
	w.speed = src.speed
	w.robots = src.robots
	for _, r := range w.robots {
		r.world = w
	}
}

// CopyFrom replaces the contents of w with a deep copy of src, keeping w's
// monitor. Robots of w are detached; w receives copies of src's robots.
func (w *World) CopyFrom(src *World) {
	w.replace(src.Clone())
}
