package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoadScenarioWorldFile(t *testing.T) {
	w, err := LoadString("Dimension: (3,3)\nRobot: (2,2) north\nRobotBag: 5\n")
	require.NoError(t, err)

	assert.Equal(t, 3, w.Width())
	assert.Equal(t, 3, w.Height())
	robots := w.Robots()
	require.Len(t, robots, 1)
	assert.Equal(t, Point{X: 2, Y: 2}, robots[0].Location())
	assert.Equal(t, North, robots[0].Direction())
	assert.Equal(t, 5, robots[0].Bag())
	assert.Same(t, w, robots[0].World())
}

func TestLoadFullWorld(t *testing.T) {
	src := `
# a comment line that is not a keyword
Beeper: (2, 1) 3
Dimension: (5, 4)
wall: (1, 1) EAST
Wall: (2, 2) south
Beeper: (3, 3) INFINITE
Beeper: (2, 1) 4
Color: (4, 4) dark_gray
Karel: (1, 1) west
BeeperBag: infinite
Robot: (5, 4) South
Speed: 0.75
Title: ignored because unknown
`
	w, err := LoadString(src)
	require.NoError(t, err)

	assert.Equal(t, 5, w.Width())
	assert.Equal(t, 4, w.Height())
	assert.True(t, w.CheckWall(2, 1, West))
	assert.True(t, w.HasWall(2, 1, North))
	assert.Equal(t, 4, w.BeepersOnCorner(2, 1), "Beeper sets, it does not add")
	assert.Equal(t, Infinite, w.BeepersOnCorner(3, 3))
	assert.Equal(t, DarkGray, w.CornerColor(4, 4))
	assert.InDelta(t, 0.75, w.Speed(), 1e-9)

	robots := w.Robots()
	require.Len(t, robots, 2)
	assert.Equal(t, West, robots[0].Direction())
	assert.Equal(t, Infinite, robots[0].Bag())
	assert.Equal(t, Point{X: 5, Y: 4}, robots[1].Location())
	assert.Equal(t, 0, robots[1].Bag())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"missing dimension", "Robot: (1,1) north\n", "missing Dimension"},
		{"duplicate dimension", "Dimension: (2,2)\n\nDimension: (3,3)\n", "line 3"},
		{"bad coordinate", "Dimension: (2,2)\nWall: (1, x) north\n", "line 2"},
		{"negative dimension", "Dimension: (-1, 2)\n", "line 1"},
		{"zero dimension", "Dimension: (0, 2)\n", "line 1"},
		{"oversized dimension", "Dimension: (100000, 100000)\n", "at most"},
		{"overflowing dimension", "Dimension: (4294967296, 4294967296)\nBeeper: (1, 1) 1\n", "line 1"},
		{"dimension near overflow", "Dimension: (3037000500, 3037000500)\n", "line 1"},
		{"unknown direction", "Dimension: (2,2)\nRobot: (1,1) up\n", "line 2"},
		{"bag before robot", "Dimension: (2,2)\nRobotBag: 3\n", "line 2"},
		{"robot out of bounds", "Dimension: (2,2)\nRobot: (3,1) east\n", "line 2"},
		{"robots share a corner", "Dimension: (2,2)\nRobot: (1,1) east\nRobot: (1,1) west\n", "line 3"},
		{"wall out of bounds", "Dimension: (2,2)\nWall: (5,5) north\n", "line 2"},
		{"speed out of range", "Dimension: (2,2)\nSpeed: 1.5\n", "line 2"},
		{"unknown color", "Dimension: (2,2)\nColor: (1,1) chartreuse\n", "line 2"},
		{"trailing tokens", "Dimension: (2,2)\nBeeper: (1,1) 2 3\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(tt.src)
			require.ErrorIs(t, err, ErrMalformedWorldFile)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestWorldLoadKeepsMonitorAndLeavesWorldOnError(t *testing.T) {
	w := newTestWorld(t, 2, 2)
	mon := &traceCounter{}
	w.SetMonitor(mon)
	old := placedRobot(t, w, 1, 1, East, 0)

	require.Error(t, w.Load(strings.NewReader("Wall: (1,1) north\n")))
	assert.Equal(t, 2, w.Width())
	assert.Same(t, w, old.World())

	require.NoError(t, w.Load(strings.NewReader("Dimension: (4,4)\nRobot: (3,3) east\nRobotBag: 1\n")))
	assert.Equal(t, 4, w.Width())
	assert.Nil(t, old.World())
	r := w.Robot()
	require.NotNil(t, r)
	assert.Same(t, w, r.World())

	require.NoError(t, r.Move())
	assert.Equal(t, 1, mon.n)
}

func TestSaveOutput(t *testing.T) {
	w := newTestWorld(t, 3, 2)
	require.NoError(t, w.SetWall(2, 2, West, true))
	require.NoError(t, w.SetBeepersOnCorner(3, 1, Infinite))
	require.NoError(t, w.SetCornerColor(1, 2, Red))
	placedRobot(t, w, 2, 1, North, 4)

	want := `Dimension: (3, 2)
Wall: (1, 2) east
Beeper: (3, 1) INFINITE
Color: (1, 2) red
Robot: (2, 1) north
RobotBag: 4
Speed: 0.5
`
	assert.Equal(t, want, w.Text())
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.IntRange(1, 8).Draw(t, "width")
		height := rapid.IntRange(1, 8).Draw(t, "height")
		w, err := NewWorld(width, height)
		if err != nil {
			t.Fatal(err)
		}
		for i, n := 0, rapid.IntRange(0, 12).Draw(t, "walls"); i < n; i++ {
			_ = w.SetWall(
				rapid.IntRange(1, width).Draw(t, "wx"),
				rapid.IntRange(1, height).Draw(t, "wy"),
				Direction(rapid.IntRange(0, 3).Draw(t, "wd")),
				true,
			)
		}
		for i, n := 0, rapid.IntRange(0, 8).Draw(t, "beepers"); i < n; i++ {
			count := rapid.OneOf(rapid.IntRange(0, 99), rapid.Just(Infinite)).Draw(t, "count")
			_ = w.SetBeepersOnCorner(
				rapid.IntRange(1, width).Draw(t, "bx"),
				rapid.IntRange(1, height).Draw(t, "by"),
				count,
			)
		}
		for i, n := 0, rapid.IntRange(0, 3).Draw(t, "colors"); i < n; i++ {
			_ = w.SetCornerColor(
				rapid.IntRange(1, width).Draw(t, "cx"),
				rapid.IntRange(1, height).Draw(t, "cy"),
				rapid.SampledFrom(Colors()).Draw(t, "color"),
			)
		}
		for i, n := 0, rapid.IntRange(0, 3).Draw(t, "robots"); i < n; i++ {
			bag := rapid.OneOf(rapid.IntRange(0, 50), rapid.Just(Infinite)).Draw(t, "bag")
			r := NewRobotAt(
				rapid.IntRange(1, width).Draw(t, "rx"),
				rapid.IntRange(1, height).Draw(t, "ry"),
				Direction(rapid.IntRange(0, 3).Draw(t, "rd")),
				bag,
			)
			_ = w.Add(r)
		}
		w.SetSpeed(rapid.Float64Range(0, 1).Draw(t, "speed"))

		loaded, err := LoadString(w.Text())
		if err != nil {
			t.Fatalf("reload failed: %v\n%s", err, w.Text())
		}
		if loaded.Width() != width || loaded.Height() != height {
			t.Fatalf("dimensions changed")
		}
		if loaded.Speed() != w.Speed() {
			t.Fatalf("speed %v != %v", loaded.Speed(), w.Speed())
		}
		assert.Equal(t, w.Walls(), loaded.Walls())
		for x := 1; x <= width; x++ {
			for y := 1; y <= height; y++ {
				if w.BeepersOnCorner(x, y) != loaded.BeepersOnCorner(x, y) {
					t.Fatalf("beepers differ at (%d, %d)", x, y)
				}
				if w.CornerColor(x, y) != loaded.CornerColor(x, y) {
					t.Fatalf("color differs at (%d, %d)", x, y)
				}
			}
		}
		want, got := w.Robots(), loaded.Robots()
		if len(want) != len(got) {
			t.Fatalf("robot count %d != %d", len(got), len(want))
		}
		for i := range want {
			if want[i].Location() != got[i].Location() ||
				want[i].Direction() != got[i].Direction() ||
				want[i].Bag() != got[i].Bag() {
				t.Fatalf("robot %d differs", i)
			}
		}
	})
}
