package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// World files are line oriented. Each recognised line is parsed on its own
// by the grammar below; anything before the first ':' that is not a known
// keyword marks a line to skip.
//
//	Dimension: (10, 10)
//	Wall: (1, 1) east
//	Beeper: (2, 1) 3
//	Color: (3, 3) red
//	Robot: (1, 1) east
//	RobotBag: INFINITE
//	Speed: 0.5

type worldLine struct {
	Dimension *pointArg  `parser:"  'Dimension' ':' @@"`
	Wall      *placedArg `parser:"| 'Wall' ':' @@"`
	Beeper    *beeperArg `parser:"| 'Beeper' ':' @@"`
	Robot     *placedArg `parser:"| ('Robot' | 'Karel') ':' @@"`
	Bag       *countArg  `parser:"| ('RobotBag' | 'BeeperBag') ':' @@"`
	Speed     *float64   `parser:"| 'Speed' ':' @(Float | Int)"`
	Color     *colorArg  `parser:"| 'Color' ':' @@"`
}

type pointArg struct {
	X int `parser:"'(' @Int"`
	Y int `parser:"',' @Int ')'"`
}

type placedArg struct {
	At  pointArg `parser:"@@"`
	Dir string   `parser:"@Ident"`
}

type countArg struct {
	Infinite bool `parser:"  @'INFINITE'"`
	N        int  `parser:"| @Int"`
}

func (c countArg) value() int {
	if c.Infinite {
		return Infinite
	}
	return c.N
}

type beeperArg struct {
	At    pointArg `parser:"@@"`
	Count countArg `parser:"@@"`
}

type colorArg struct {
	At   pointArg `parser:"@@"`
	Name string   `parser:"@Ident"`
}

var lineParser = participle.MustBuild[worldLine](
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

var worldKeywords = map[string]bool{
	"dimension": true,
	"wall":      true,
	"beeper":    true,
	"robot":     true,
	"karel":     true,
	"robotbag":  true,
	"beeperbag": true,
	"speed":     true,
	"color":     true,
}

type numberedLine struct {
	n    int
	line *worldLine
}

func malformed(n int, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if n > 0 {
		msg = fmt.Sprintf("line %d: %s", n, msg)
	}
	return newError(KindMalformedWorldFile, "load", msg)
}

// Load parses a world description into a new World.
func Load(r io.Reader) (*World, error) {
	var (
		lines []numberedLine
		dim   *numberedLine
	)
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		keyword, _, found := strings.Cut(text, ":")
		if !found || !worldKeywords[strings.ToLower(strings.TrimSpace(keyword))] {
			continue
		}
		parsed, err := lineParser.ParseString("", text)
		if err != nil {
			return nil, malformed(n, "%v", err)
		}
		nl := numberedLine{n: n, line: parsed}
		if parsed.Dimension != nil {
			if dim != nil {
				return nil, malformed(n, "duplicate Dimension (first declared on line %d)", dim.n)
			}
			dim = &nl
			continue
		}
		lines = append(lines, nl)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load: reading world: %w", err)
	}
	if dim == nil {
		return nil, malformed(0, "missing Dimension line")
	}

	w, err := NewWorld(dim.line.Dimension.X, dim.line.Dimension.Y)
	if err != nil {
		return nil, malformed(dim.n, "%v", err)
	}
	var last *Robot
	for _, nl := range lines {
		if err := w.applyLine(nl.line, &last); err != nil {
			return nil, malformed(nl.n, "%v", err)
		}
	}
	return w, nil
}

// LoadString parses a world description held in a string.
func LoadString(s string) (*World, error) {
	return Load(strings.NewReader(s))
}

// Load replaces the contents of w with the parsed description. The monitor
// is kept. On error w is left untouched.
func (w *World) Load(r io.Reader) error {
	nw, err := Load(r)
	if err != nil {
		return err
	}
	w.replace(nw)
	return nil
}

func (w *World) applyLine(l *worldLine, last **Robot) error {
	switch {
	case l.Wall != nil:
		d, err := ParseDirection(l.Wall.Dir)
		if err != nil {
			return err
		}
		return w.SetWall(l.Wall.At.X, l.Wall.At.Y, d, true)
	case l.Beeper != nil:
		return w.SetBeepersOnCorner(l.Beeper.At.X, l.Beeper.At.Y, l.Beeper.Count.value())
	case l.Robot != nil:
		d, err := ParseDirection(l.Robot.Dir)
		if err != nil {
			return err
		}
		r := NewRobotAt(l.Robot.At.X, l.Robot.At.Y, d, 0)
		if err := w.Add(r); err != nil {
			return err
		}
		*last = r
	case l.Bag != nil:
		if *last == nil {
			return fmt.Errorf("RobotBag before any Robot line")
		}
		(*last).SetBag(l.Bag.value())
	case l.Speed != nil:
		if *l.Speed < 0 || *l.Speed > 1 {
			return fmt.Errorf("speed %v outside [0, 1]", *l.Speed)
		}
		w.SetSpeed(*l.Speed)
	case l.Color != nil:
		c, err := ParseColor(l.Color.Name)
		if err != nil {
			return err
		}
		return w.SetCornerColor(l.Color.At.X, l.Color.At.Y, c)
	}
	return nil
}

// Save writes w in the world description format. The output loads back into
// an identical world.
func (w *World) Save(out io.Writer) error {
	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "Dimension: (%d, %d)\n", w.width, w.height)
	for _, wall := range w.Walls() {
		fmt.Fprintf(bw, "Wall: (%d, %d) %s\n", wall.X, wall.Y, wall.Dir)
	}
	for y := 1; y <= w.height; y++ {
		for x := 1; x <= w.width; x++ {
			if n := w.BeepersOnCorner(x, y); n != 0 {
				fmt.Fprintf(bw, "Beeper: (%d, %d) %s\n", x, y, FormatBeepers(n))
			}
		}
	}
	for y := 1; y <= w.height; y++ {
		for x := 1; x <= w.width; x++ {
			if c := w.CornerColor(x, y); c != NoColor {
				fmt.Fprintf(bw, "Color: (%d, %d) %s\n", x, y, c)
			}
		}
	}
	for _, r := range w.robots {
		fmt.Fprintf(bw, "Robot: (%d, %d) %s\n", r.x, r.y, r.dir)
		fmt.Fprintf(bw, "RobotBag: %s\n", FormatBeepers(r.beepers))
	}
	fmt.Fprintf(bw, "Speed: %s\n", strconv.FormatFloat(w.speed, 'f', -1, 64))
	return bw.Flush()
}

// Text returns the world description as a string.
func (w *World) Text() string {
	var sb strings.Builder
	_ = w.Save(&sb)
	return sb.String()
}
