// Package tui draws the chat screen: a scrollback area of wrapped messages
// above an input line framed by two rules.
package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// Wrap turns records, ordered newest first, into display lines ordered
// oldest first, each at most width cells wide.
//
// Lines of one record stay together and in order. Records stop being
// consumed once maxLines lines are collected, so the result may exceed
// maxLines by the lines of the last record taken. At least one record is
// always consumed.
func Wrap(records []fmt.Stringer, maxLines, width int) []string {
	var result []string
	for _, r := range records {
		if len(result) > 0 && len(result) >= maxLines {
			break
		}
		result = append(splitWidth(r.String(), width), result...)
	}
	return result
}

// splitWidth cuts s into chunks of at most width terminal cells without
// breaking grapheme clusters. A cluster wider than width gets its own chunk.
func splitWidth(s string, width int) []string {
	if width <= 0 || s == "" {
		return []string{s}
	}

	var (
		chunks []string
		cur    strings.Builder
		curW   int
	)
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		w := runewidth.StringWidth(cluster)
		if curW > 0 && curW+w > width {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curW = 0
		}
		cur.WriteString(cluster)
		curW += w
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
