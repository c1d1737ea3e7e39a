package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
)

// AssertTextEqual compares two multi-line strings and fails the test with a
// colorized unified diff when they differ. Lines are compared with trailing
// whitespace stripped so tabwriter padding never breaks a test.
func AssertTextEqual(t *testing.T, expected, actual string) {
	t.Helper()

	normExpected := normalizeLines(expected)
	normActual := normalizeLines(actual)
	if normExpected == normActual {
		return
	}

	edits := myers.ComputeEdits("", normExpected, normActual)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", normExpected, edits))
	t.Errorf("Text mismatch:\n%s", colorizeDiff(unified))
}

func normalizeLines(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func colorizeDiff(diff string) string {
	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
