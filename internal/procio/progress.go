package procio

import (
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
)

// phaseMarker appears in conda's phase lines: "Fetching packages ...", "Extracting packages ...", "Linking packages ...".
const phaseMarker = "ing packages ..."

var (
	// bracketedPercent matches "[ 10%]" and the older "[      COMPLETE      ]|#####| 100%".
	bracketedPercent = regexp.MustCompile(`^\[.*\d+%\]?$`)
	// pipePercent matches tqdm style bars: "numpy-1.11.1  | 6.1 MB | 45% |####      |".
	pipePercent = regexp.MustCompile(`\d+% \|`)
	// complete matches a progress line that reached 100%.
	complete = regexp.MustCompile(`(^|[^\d])100%(\]?$| \|)`)
)

// IsProgress reports whether line is a percentage line that should be redrawn in place.
func IsProgress(line string) bool {
	return bracketedPercent.MatchString(line) || pipePercent.MatchString(line)
}

// Watch renders the output of a package-manager install onto out and returns every line it saw.
//
// Percentage lines overwrite each other with a carriage return instead of scrolling; once a bar
// reaches 100% a newline is written so the next bar starts on its own row. Phase lines pass
// through, "Extracting" preceded by a blank line. Everything else is only accumulated, for error
// messages built after the process exits.
func Watch(lines iter.Seq[string], out io.Writer) []string {
	var seen []string
	for line := range lines {
		seen = append(seen, line)

		switch {
		case IsProgress(line):
			fmt.Fprint(out, "\r", line)
			if complete.MatchString(line) {
				fmt.Fprintln(out)
			}
		case strings.Contains(line, phaseMarker):
			if strings.HasPrefix(line, "Extracting") {
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, line)
		}
	}
	return seen
}

// Tail returns at most the last n non-empty lines joined by newlines.
func Tail(lines []string, n int) string {
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append(kept, lines[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
