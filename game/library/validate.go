package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/karel/game/engine"
)

// Report is the outcome of validating one world file. Info lists facts about
// a valid world; Errors lists every problem found.
type Report struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
	Info   []string `json:"info,omitempty"`
}

func (r *Report) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateFile parses the world file at path and checks that it survives a
// save/load round trip and that every beeper can be reached by its robots.
func ValidateFile(path string) Report {
	report := Report{File: filepath.Base(path), Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		report.fail("Failed to read file: %v", err)
		return report
	}
	w, err := engine.LoadString(string(data))
	if err != nil {
		report.fail("Invalid world: %v", err)
		return report
	}

	text := w.Text()
	again, err := engine.LoadString(text)
	if err != nil {
		report.fail("Saved form does not parse: %v", err)
	} else if again.Text() != text {
		report.fail("Saved form is not stable across a round trip")
	}

	starts := make([]engine.Point, 0, len(w.Robots()))
	for _, r := range w.Robots() {
		starts = append(starts, r.Location())
	}
	if len(starts) == 0 {
		// the default robot stands on (1, 1)
		starts = append(starts, engine.Point{X: 1, Y: 1})
		report.Info = append(report.Info, "No robot: Karel starts at (1, 1) facing east")
	}

	reached := make(map[engine.Point]bool)
	for _, p := range starts {
		for q := range w.Reachable(p.X, p.Y) {
			reached[q] = true
		}
	}
	var unreachable, beeperCorners int
	for y := 1; y <= w.Height(); y++ {
		for x := 1; x <= w.Width(); x++ {
			if w.BeepersOnCorner(x, y) == 0 {
				continue
			}
			beeperCorners++
			if !reached[engine.Point{X: x, Y: y}] {
				unreachable++
				report.Errors = append(report.Errors, fmt.Sprintf("Unreachable: beepers at (%d, %d)", x, y))
			}
		}
	}
	if unreachable > 0 {
		report.Valid = false
		report.Errors = append(report.Errors, fmt.Sprintf("Connectivity failure: %d/%d beeper corners unreachable", unreachable, beeperCorners))
	}

	if report.Valid {
		total, infinite := w.TotalBeepers()
		beepers := fmt.Sprint(total)
		if infinite {
			beepers += " + INFINITE"
		}
		report.Info = append(report.Info,
			fmt.Sprintf("Grid: %dx%d", w.Width(), w.Height()),
			fmt.Sprintf("Walls: %d", len(w.Walls())),
			fmt.Sprintf("Beepers: %s on %d corners", beepers, beeperCorners),
			fmt.Sprintf("Robots: %d", len(w.Robots())),
			fmt.Sprintf("Reachable corners: %d/%d", len(reached), w.Width()*w.Height()),
		)
	}
	return report
}

// ValidateDir validates every world file in dir, sorted by file name.
func ValidateDir(dir string) ([]Report, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, fmt.Errorf("finding world files: %w", err)
	}
	sort.Strings(files)

	reports := make([]Report, 0, len(files))
	for _, f := range files {
		reports = append(reports, ValidateFile(f))
	}
	return reports, nil
}

// AllValid reports whether every report is valid.
func AllValid(reports []Report) bool {
	for _, r := range reports {
		if !r.Valid {
			return false
		}
	}
	return true
}

// String formats the report the way the validate command prints it.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", strings.Repeat("=", 20), r.File)
	if r.Valid {
		b.WriteString("✅ VALID\n")
		for _, info := range r.Info {
			b.WriteString("  ✓ " + info + "\n")
		}
		return b.String()
	}
	b.WriteString("❌ INVALID\n")
	for _, e := range r.Errors {
		b.WriteString("  ❌ " + e + "\n")
	}
	return b.String()
}
