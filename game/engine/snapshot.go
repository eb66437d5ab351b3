package engine

// Snapshot is a plain value copy of a world, suitable for JSON encoding.
type Snapshot struct {
	Width   int              `json:"width"`
	Height  int              `json:"height"`
	Speed   float64          `json:"speed"`
	Walls   []Wall           `json:"walls"`
	Beepers []BeeperSnapshot `json:"beepers"`
	Colors  []ColorSnapshot  `json:"colors"`
	Robots  []RobotSnapshot  `json:"robots"`
}

// BeeperSnapshot is a corner holding beepers. Infinite corners report
// Count -1.
type BeeperSnapshot struct {
	Point
	Count    int  `json:"count"`
	Infinite bool `json:"infinite,omitempty"`
}

type ColorSnapshot struct {
	Point
	Color Color `json:"color"`
}

// RobotSnapshot is a robot's position, direction and bag. An infinite bag
// reports Bag -1.
type RobotSnapshot struct {
	Point
	Direction   string `json:"direction"`
	Bag         int    `json:"bag"`
	InfiniteBag bool   `json:"infinite_bag,omitempty"`
}

func snapshotCount(n int) (int, bool) {
	if n == Infinite {
		return -1, true
	}
	return n, false
}

// Snapshot copies the world into a Snapshot.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{
		Width:   w.width,
		Height:  w.height,
		Speed:   w.speed,
		Walls:   w.Walls(),
		Beepers: []BeeperSnapshot{},
		Colors:  []ColorSnapshot{},
		Robots:  make([]RobotSnapshot, 0, len(w.robots)),
	}
	for y := 1; y <= w.height; y++ {
		for x := 1; x <= w.width; x++ {
			c := w.corners[w.index(x, y)]
			if c.beepers != 0 {
				n, inf := snapshotCount(c.beepers)
				s.Beepers = append(s.Beepers, BeeperSnapshot{Point: Point{X: x, Y: y}, Count: n, Infinite: inf})
			}
			if c.color != NoColor {
				s.Colors = append(s.Colors, ColorSnapshot{Point: Point{X: x, Y: y}, Color: c.color})
			}
		}
	}
	for _, r := range w.robots {
		n, inf := snapshotCount(r.beepers)
		s.Robots = append(s.Robots, RobotSnapshot{
			Point:       Point{X: r.x, Y: r.y},
			Direction:   r.dir.String(),
			Bag:         n,
			InfiniteBag: inf,
		})
	}
	return s
}
