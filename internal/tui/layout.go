package tui

import (
	"fmt"
	"strings"
)

// Geometry is the terminal size in cells.
type Geometry struct {
	Columns int
	Rows    int
}

// ScrollbackRows returns how many rows are left for message history.
func (g Geometry) ScrollbackRows() int {
	if g.Rows < 3 {
		return 0
	}
	return g.Rows - 3
}

// InputRow returns the zero-based row of the input line.
func (g Geometry) InputRow() int {
	if g.Rows < 2 {
		return 0
	}
	return g.Rows - 2
}

// Compose lays records out on a screen of the given size.
//
// The result has one string per row: the scrollback (newest lines at the
// bottom, oldest lines dropped when they do not fit), a rule, the empty
// input line and a closing rule.
func Compose(records []fmt.Stringer, g Geometry) []string {
	if g.Rows <= 0 {
		return nil
	}

	area := g.ScrollbackRows()
	lines := Wrap(records, area, g.Columns)
	if len(lines) > area {
		lines = lines[len(lines)-area:]
	}

	rule := strings.Repeat("-", max(g.Columns, 0))
	grid := make([]string, 0, area+3)
	for i := len(lines); i < area; i++ {
		grid = append(grid, "")
	}
	grid = append(grid, lines...)
	grid = append(grid, rule, "", rule)
	return grid[len(grid)-g.Rows:]
}
