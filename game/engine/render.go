package engine

import "strings"

var robotGlyphs = map[Direction]byte{North: '^', East: '>', South: 'v', West: '<'}

// Render draws the world as ASCII art, north at the top. Robots show as an
// arrow in their facing direction, beepers as a count ('*' for more than
// nine or Infinite), painted corners as the first letter of the color in
// lower case and empty corners as '.'.
func (w *World) Render() string {
	var sb strings.Builder
	horizontal := func(y int) {
		// edge between street y and y+1; y == height or 0 is the border
		sb.WriteByte('+')
		for x := 1; x <= w.width; x++ {
			if y == 0 || y == w.height || w.HasWall(x, y, North) {
				sb.WriteString("---")
			} else {
				sb.WriteString("   ")
			}
			sb.WriteByte('+')
		}
		sb.WriteByte('\n')
	}

	horizontal(w.height)
	for y := w.height; y >= 1; y-- {
		sb.WriteByte('|')
		for x := 1; x <= w.width; x++ {
			sb.WriteByte(' ')
			sb.WriteByte(w.cornerGlyph(x, y))
			sb.WriteByte(' ')
			if x == w.width || w.HasWall(x, y, East) {
				sb.WriteByte('|')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
		horizontal(y - 1)
	}
	return sb.String()
}

func (w *World) cornerGlyph(x, y int) byte {
	if r := w.RobotAt(x, y); r != nil {
		return robotGlyphs[r.dir]
	}
	switch n := w.BeepersOnCorner(x, y); {
	case n > 9:
		return '*'
	case n > 0:
		return byte('0' + n)
	}
	if c := w.CornerColor(x, y); c != NoColor {
		return c[0]
	}
	return '.'
}
