package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Color is the paint on a corner. The zero value means unpainted.
type Color string

// Named colors available to SuperKarel programs.
const (
	NoColor   Color = ""
	Black     Color = "black"
	Blue      Color = "blue"
	Cyan      Color = "cyan"
	DarkGray  Color = "dark_gray"
	Gray      Color = "gray"
	Green     Color = "green"
	LightGray Color = "light_gray"
	Magenta   Color = "magenta"
	Orange    Color = "orange"
	Pink      Color = "pink"
	Red       Color = "red"
	White     Color = "white"
	Yellow    Color = "yellow"
)

var namedColors = map[Color]bool{
	Black: true, Blue: true, Cyan: true, DarkGray: true, Gray: true,
	Green: true, LightGray: true, Magenta: true, Orange: true, Pink: true,
	Red: true, White: true, Yellow: true,
}

// Colors returns every named color in alphabetical order.
func Colors() []Color {
	out := make([]Color, 0, len(namedColors))
	for c := range namedColors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseColor accepts a color name in any case, with spaces, dashes or
// underscores between words ("DARK_GRAY", "dark gray", "darkgray").
func ParseColor(s string) (Color, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "", "none", "null":
		return NoColor, nil
	case "darkgray", "darkgrey", "dark_grey":
		return DarkGray, nil
	case "lightgray", "lightgrey", "light_grey":
		return LightGray, nil
	case "grey":
		return Gray, nil
	}
	c := Color(key)
	if !namedColors[c] {
		return NoColor, fmt.Errorf("unknown color %q", s)
	}
	return c, nil
}
