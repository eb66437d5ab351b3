package engine

import (
	"fmt"
	"math"
	"strings"
)

// Direction is one of the four compass directions Karel can face.
// Values are ordered clockwise so that turning right adds one.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// Infinite marks a beeper count that is never decremented or incremented.
const Infinite = math.MaxInt32

// AllDirections returns the four directions in clockwise order starting at North.
func AllDirections() []Direction {
	return []Direction{North, East, South, West}
}

// String returns the lowercase name used by the world file format.
func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// IsValid reports whether d is one of the four compass directions.
func (d Direction) IsValid() bool {
	return d >= North && d <= West
}

// Left returns the direction 90 degrees counterclockwise from d.
func (d Direction) Left() Direction { return Left(d) }

// Right returns the direction 90 degrees clockwise from d.
func (d Direction) Right() Direction { return Right(d) }

// Opposite returns the direction 180 degrees from d.
func (d Direction) Opposite() Direction { return Opposite(d) }

// Left returns the direction 90 degrees counterclockwise from d.
func Left(d Direction) Direction {
	return Direction((int(d) + 3) % 4)
}

// Right returns the direction 90 degrees clockwise from d.
func Right(d Direction) Direction {
	return Direction((int(d) + 1) % 4)
}

// Opposite returns the direction 180 degrees from d.
func Opposite(d Direction) Direction {
	return Direction((int(d) + 2) % 4)
}

// ParseDirection parses a direction name, ignoring case and surrounding space.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north":
		return North, nil
	case "east":
		return East, nil
	case "south":
		return South, nil
	case "west":
		return West, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Point is a corner coordinate. Avenues (X) run west to east, streets (Y)
// run south to north; both are 1-based.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// AdjacentCorner returns the corner one step from (x, y) in direction d.
// It does not check bounds.
func AdjacentCorner(x, y int, d Direction) (int, int) {
	switch d {
	case North:
		return x, y + 1
	case East:
		return x + 1, y
	case South:
		return x, y - 1
	case West:
		return x - 1, y
	default:
		return x, y
	}
}

// AdjustBeepers returns n+delta, leaving an Infinite supply untouched.
func AdjustBeepers(n, delta int) int {
	if n == Infinite {
		return Infinite
	}
	return n + delta
}

// FormatBeepers renders a beeper count the way the world file spells it.
func FormatBeepers(n int) string {
	if n == Infinite {
		return "INFINITE"
	}
	return fmt.Sprintf("%d", n)
}
