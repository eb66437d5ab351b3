package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestWorld(t testing.TB, width, height int) *World {
	t.Helper()
	w, err := NewWorld(width, height)
	require.NoError(t, err)
	return w
}

func TestInitRejectsNonPositiveDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 5}, {5, 0}, {-1, -1}} {
		_, err := NewWorld(dims[0], dims[1])
		assert.ErrorIs(t, err, ErrInvalidDimension)
	}
}

func TestInitRejectsOversizedDimensions(t *testing.T) {
	for _, dims := range [][2]int{{MaxDimension + 1, 1}, {1, MaxDimension + 1}, {1 << 32, 1 << 32}} {
		_, err := NewWorld(dims[0], dims[1])
		assert.ErrorIs(t, err, ErrInvalidDimension)
	}

	w, err := NewWorld(MaxDimension, 2)
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, w.Width())
}

func TestInitClearsWorld(t *testing.T) {
	w := newTestWorld(t, 4, 4)
	require.NoError(t, w.SetWall(1, 1, East, true))
	require.NoError(t, w.SetBeepersOnCorner(2, 2, 3))
	require.NoError(t, w.SetCornerColor(3, 3, Red))
	r := NewRobot()
	require.NoError(t, w.Add(r))

	require.NoError(t, w.Init(2, 3))
	assert.Equal(t, 2, w.Width())
	assert.Equal(t, 3, w.Height())
	assert.Empty(t, w.Walls())
	assert.Equal(t, 0, w.BeepersOnCorner(2, 2))
	assert.Equal(t, NoColor, w.CornerColor(1, 1))
	assert.Empty(t, w.Robots())
	assert.Nil(t, r.World())
}

func TestOutOfBounds(t *testing.T) {
	w := newTestWorld(t, 3, 2)
	assert.False(t, w.OutOfBounds(1, 1))
	assert.False(t, w.OutOfBounds(3, 2))
	assert.True(t, w.OutOfBounds(0, 1))
	assert.True(t, w.OutOfBounds(4, 1))
	assert.True(t, w.OutOfBounds(1, 3))
	assert.True(t, w.OutOfBounds(1, 0))
}

func TestCheckWallBorderIsNotStored(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	assert.True(t, w.CheckWall(1, 1, West))
	assert.True(t, w.CheckWall(1, 1, South))
	assert.True(t, w.CheckWall(3, 3, North))
	assert.True(t, w.CheckWall(3, 3, East))
	assert.False(t, w.CheckWall(2, 2, North))

	// border edges never enter the wall set
	require.NoError(t, w.SetWall(3, 3, East, true))
	assert.False(t, w.HasWall(3, 3, East))
	assert.Empty(t, w.Walls())
}

func TestWallSymmetry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.IntRange(2, 8).Draw(t, "width")
		height := rapid.IntRange(1, 8).Draw(t, "height")
		x := rapid.IntRange(1, width-1).Draw(t, "x")
		y := rapid.IntRange(1, height).Draw(t, "y")

		w, err := NewWorld(width, height)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.SetWall(x, y, East, true); err != nil {
			t.Fatal(err)
		}
		if !w.CheckWall(x, y, East) || !w.CheckWall(x+1, y, West) {
			t.Fatalf("wall east of (%d, %d) not visible from both sides", x, y)
		}
		for cx := 1; cx <= width; cx++ {
			for cy := 1; cy <= height; cy++ {
				for _, d := range AllDirections() {
					same := (cx == x && cy == y && d == East) || (cx == x+1 && cy == y && d == West)
					if w.HasWall(cx, cy, d) != same {
						t.Fatalf("unexpected wall state at (%d, %d) %s", cx, cy, d)
					}
				}
			}
		}
	})
}

func TestSetWallRemoveAndSouthWestForms(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	require.NoError(t, w.SetWall(2, 2, South, true))
	assert.True(t, w.HasWall(2, 1, North))
	require.NoError(t, w.SetWall(2, 2, West, true))
	assert.True(t, w.HasWall(1, 2, East))
	assert.Equal(t, []Wall{
		{Point: Point{X: 2, Y: 1}, Dir: North},
		{Point: Point{X: 1, Y: 2}, Dir: East},
	}, w.Walls())

	require.NoError(t, w.SetWall(2, 1, North, false))
	assert.False(t, w.HasWall(2, 2, South))

	assert.ErrorIs(t, w.SetWall(4, 1, North, true), ErrOutOfBounds)
}

func TestBeeperAndColorAccessors(t *testing.T) {
	w := newTestWorld(t, 2, 2)
	require.NoError(t, w.SetBeepersOnCorner(1, 2, 7))
	assert.Equal(t, 7, w.BeepersOnCorner(1, 2))
	assert.Equal(t, 0, w.BeepersOnCorner(5, 5))
	assert.ErrorIs(t, w.SetBeepersOnCorner(3, 1, 1), ErrOutOfBounds)
	assert.Error(t, w.SetBeepersOnCorner(1, 1, -2))

	require.NoError(t, w.SetCornerColor(2, 2, Blue))
	assert.Equal(t, Blue, w.CornerColor(2, 2))
	assert.ErrorIs(t, w.SetCornerColor(0, 0, Blue), ErrOutOfBounds)

	require.NoError(t, w.SetBeepersOnCorner(2, 1, Infinite))
	total, infinite := w.TotalBeepers()
	assert.Equal(t, 7, total)
	assert.True(t, infinite)
}

func TestAddOccupancy(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	first := NewRobotAt(2, 2, North, 0)
	require.NoError(t, w.Add(first))
	assert.Same(t, first, w.RobotAt(2, 2))

	// re-adding the same robot is a no-op
	require.NoError(t, w.Add(first))
	assert.Len(t, w.Robots(), 1)

	second := NewRobotAt(2, 2, South, 0)
	assert.ErrorIs(t, w.Add(second), ErrOccupied)
	assert.Nil(t, second.World())

	offGrid := NewRobotAt(4, 1, North, 0)
	assert.ErrorIs(t, w.Add(offGrid), ErrOutOfBounds)

	w.Remove(first)
	assert.Nil(t, w.RobotAt(2, 2))
	require.NoError(t, w.Add(second))
}

func TestAddMovesRobotBetweenWorlds(t *testing.T) {
	a := newTestWorld(t, 2, 2)
	b := newTestWorld(t, 2, 2)
	r := NewRobot()
	require.NoError(t, a.Add(r))
	require.NoError(t, b.Add(r))
	assert.Empty(t, a.Robots())
	assert.Same(t, b, r.World())
}

func TestEditingNotifiesMonitor(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	var events []string
	w.SetMonitor(MonitorFuncs{
		OnStartEdit: func() { events = append(events, "start") },
		OnEndEdit:   func() { events = append(events, "end") },
		OnWallToggled: func(p Point, d Direction) {
			events = append(events, "wall "+p.String()+" "+d.String())
		},
		OnCornerClicked: func(p Point) { events = append(events, "click "+p.String()) },
	})

	w.StartEdit()
	require.NoError(t, w.ToggleWall(1, 1, North))
	assert.True(t, w.HasWall(1, 2, South))
	require.NoError(t, w.ToggleWall(1, 1, North))
	assert.False(t, w.HasWall(1, 1, North))
	require.NoError(t, w.ClickCorner(2, 2))
	require.NoError(t, w.ClickCorner(2, 2))
	w.EndEdit()

	assert.Equal(t, 2, w.BeepersOnCorner(2, 2))
	assert.Equal(t, []string{
		"start",
		"wall (1, 1) north",
		"wall (1, 1) north",
		"click (2, 2)",
		"click (2, 2)",
		"end",
	}, events)
	assert.ErrorIs(t, w.ClickCorner(9, 9), ErrOutOfBounds)
}

func TestCloneIsIndependent(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	require.NoError(t, w.SetWall(1, 1, East, true))
	require.NoError(t, w.SetBeepersOnCorner(2, 2, 1))
	r := NewRobotAt(1, 1, North, 4)
	require.NoError(t, w.Add(r))

	c := w.Clone()
	require.NoError(t, r.Move())
	require.NoError(t, w.SetBeepersOnCorner(2, 2, 9))
	require.NoError(t, w.SetWall(1, 1, East, false))

	assert.Equal(t, 1, c.BeepersOnCorner(2, 2))
	assert.True(t, c.HasWall(1, 1, East))
	cr := c.Robot()
	require.NotNil(t, cr)
	assert.Equal(t, Point{X: 1, Y: 1}, cr.Location())
	assert.Same(t, c, cr.World())
	assert.Nil(t, c.Monitor())
}

func TestCopyFromKeepsMonitor(t *testing.T) {
	src := newTestWorld(t, 2, 2)
	require.NoError(t, src.SetBeepersOnCorner(2, 2, 3))
	placedRobot(t, src, 1, 1, North, 2)

	dst := newTestWorld(t, 5, 5)
	mon := &traceCounter{}
	dst.SetMonitor(mon)
	dst.CopyFrom(src)

	assert.Equal(t, 2, dst.Width())
	assert.Equal(t, 3, dst.BeepersOnCorner(2, 2))
	r := dst.Robot()
	require.NotNil(t, r)
	assert.NotSame(t, src.Robot(), r)
	require.NoError(t, r.Move())
	assert.Equal(t, 1, mon.n)
	assert.Equal(t, Point{X: 1, Y: 1}, src.Robot().Location())
}

func TestSnapshot(t *testing.T) {
	w := newTestWorld(t, 2, 2)
	require.NoError(t, w.SetWall(1, 1, North, true))
	require.NoError(t, w.SetBeepersOnCorner(2, 1, Infinite))
	require.NoError(t, w.SetBeepersOnCorner(1, 2, 2))
	require.NoError(t, w.SetCornerColor(2, 2, Pink))
	placedRobot(t, w, 1, 1, East, Infinite)

	s := w.Snapshot()
	assert.Equal(t, 2, s.Width)
	assert.Equal(t, []Wall{{Point: Point{X: 1, Y: 1}, Dir: North}}, s.Walls)
	assert.Equal(t, []BeeperSnapshot{
		{Point: Point{X: 2, Y: 1}, Count: -1, Infinite: true},
		{Point: Point{X: 1, Y: 2}, Count: 2},
	}, s.Beepers)
	assert.Equal(t, []ColorSnapshot{{Point: Point{X: 2, Y: 2}, Color: Pink}}, s.Colors)
	assert.Equal(t, []RobotSnapshot{{Point: Point{X: 1, Y: 1}, Direction: "east", Bag: -1, InfiniteBag: true}}, s.Robots)
}
