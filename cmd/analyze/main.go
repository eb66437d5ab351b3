// Command analyze prints quick, human-readable statistics about the world
// files in a directory (worlds by default): dimensions, walls, beepers and
// painted corners, and for each robot how much of the grid it can reach and
// how far away the farthest beeper is.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/library"
)

// Analysis summarizes one world.
type Analysis struct {
	Info          *library.WorldInfo
	Speed         float64
	Colored       int
	BeeperCorners []engine.Point
	Robots        []RobotReach
}

// RobotReach describes what one robot can get to from where it starts.
type RobotReach struct {
	Start       engine.Point
	Direction   engine.Direction
	Bag         int
	Reachable   int
	Farthest    int // moves to the farthest reachable corner
	Unreachable []engine.Point
	// moves to the farthest reachable beeper corner, -1 without one
	FarthestBeeper int
}

func analyzeWorld(id string, w *engine.World) Analysis {
	a := Analysis{
		Info:  library.Summarize(id, w),
		Speed: w.Speed(),
	}
	for y := 1; y <= w.Height(); y++ {
		for x := 1; x <= w.Width(); x++ {
			if w.BeepersOnCorner(x, y) != 0 {
				a.BeeperCorners = append(a.BeeperCorners, engine.Point{X: x, Y: y})
			}
			if w.CornerColor(x, y) != engine.NoColor {
				a.Colored++
			}
		}
	}

	robots := w.Robots()
	if len(robots) == 0 {
		robots = []*engine.Robot{engine.NewRobotAt(1, 1, engine.East, engine.Infinite)}
	}
	for _, r := range robots {
		start := r.Location()
		dist := w.Reachable(start.X, start.Y)
		reach := RobotReach{
			Start:          start,
			Direction:      r.Direction(),
			Bag:            r.Bag(),
			Reachable:      len(dist),
			FarthestBeeper: -1,
		}
		for _, n := range dist {
			reach.Farthest = max(reach.Farthest, n)
		}
		for _, p := range a.BeeperCorners {
			n, ok := dist[p]
			if !ok {
				reach.Unreachable = append(reach.Unreachable, p)
				continue
			}
			reach.FarthestBeeper = max(reach.FarthestBeeper, n)
		}
		a.Robots = append(a.Robots, reach)
	}
	return a
}

func printAnalysis(out io.Writer, a Analysis) {
	info := a.Info
	fmt.Fprintf(out, "Grid Size: %d x %d\n", info.Width, info.Height)
	fmt.Fprintf(out, "Speed: %.2f\n", a.Speed)
	corners := info.Width * info.Height
	// a grid has (w-1)*h + w*(h-1) inner edges
	edges := (info.Width-1)*info.Height + info.Width*(info.Height-1)
	if edges > 0 {
		fmt.Fprintf(out, "Walls: %d (%.0f%% of inner edges)\n", info.Walls, 100*float64(info.Walls)/float64(edges))
	} else {
		fmt.Fprintf(out, "Walls: %d\n", info.Walls)
	}
	beepers := fmt.Sprint(info.Beepers)
	if info.InfiniteBeepers {
		beepers += " + INFINITE"
	}
	fmt.Fprintf(out, "Beepers: %s on %d corners\n", beepers, len(a.BeeperCorners))
	fmt.Fprintf(out, "Painted Corners: %d\n", a.Colored)

	if info.Robots == 0 {
		fmt.Fprintf(out, "Robots: none, Karel starts at (1, 1) facing east\n")
	} else {
		fmt.Fprintf(out, "Robots: %d\n", info.Robots)
	}

	for _, r := range a.Robots {
		fmt.Fprintf(out, "Karel at %s facing %s, bag %s\n", r.Start, r.Direction, engine.FormatBeepers(r.Bag))
		fmt.Fprintf(out, "  Reachable Corners: %d/%d, farthest %d moves away\n", r.Reachable, corners, r.Farthest)
		if r.FarthestBeeper >= 0 {
			fmt.Fprintf(out, "  Farthest Beeper: %d moves\n", r.FarthestBeeper)
		}
		if len(r.Unreachable) == 0 {
			fmt.Fprintf(out, "  ✅ All beepers are reachable\n")
			continue
		}
		fmt.Fprintf(out, "  ⚠️  WARNING: %d beeper corners are unreachable!\n", len(r.Unreachable))
		for i, p := range r.Unreachable {
			if i == 5 {
				fmt.Fprintf(out, "     ... and %d more\n", len(r.Unreachable)-5)
				break
			}
			fmt.Fprintf(out, "     Unreachable: %s\n", p)
		}
	}
}

// analyzeDir prints an analysis of every valid world in dir.
func analyzeDir(dir string, out io.Writer) error {
	lib, err := library.New(dir, zap.NewNop())
	if err != nil {
		return err
	}
	infos, err := lib.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return fmt.Errorf("no world files in %s", dir)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].WorldID < infos[j].WorldID })

	for _, info := range infos {
		w, err := lib.Load(info.WorldID)
		if err != nil {
			fmt.Fprintf(out, "\n=== %s ===\nError loading world: %v\n", info.Filename, err)
			continue
		}
		fmt.Fprintf(out, "\n=== Analyzing %s ===\n", info.Filename)
		printAnalysis(out, analyzeWorld(info.WorldID, w))
	}
	return nil
}

func main() {
	dir := "worlds"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := analyzeDir(dir, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
