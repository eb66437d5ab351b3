// Command validate checks the world files in a directory (../worlds by
// default). For each .w file it checks that:
//   - the file parses
//   - the saved form loads back into the same world
//   - every corner holding beepers is reachable from a robot, or from (1, 1)
//     when the file places none
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wricardo/karel/game/library"
)

// run validates dir, printing a report per file to out. It returns false if
// any file is invalid.
func run(dir string, out io.Writer) (bool, error) {
	reports, err := library.ValidateDir(dir)
	if err != nil {
		return false, err
	}
	if len(reports) == 0 {
		return false, fmt.Errorf("no world files in %s", dir)
	}

	for _, r := range reports {
		fmt.Fprintf(out, "\n%s", r)
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if library.AllValid(reports) {
		fmt.Fprintln(out, "✅ All worlds are valid!")
		return true, nil
	}
	fmt.Fprintln(out, "❌ Some worlds have errors")
	return false, nil
}

func main() {
	dir := "../worlds"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	ok, err := run(dir, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
