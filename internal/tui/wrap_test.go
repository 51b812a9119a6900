package tui_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/termchat/internal/tui"
	"github.com/omochice/termchat/pkg/protocol"
)

func sampleRecords() []fmt.Stringer {
	return []fmt.Stringer{
		protocol.Message{Time: "123", Author: "aboba", Body: "ABOBA"},
		protocol.Message{Time: "122", Author: "cock", Body: "cam"},
		protocol.Message{Time: "32", Author: "cockerel", Body: "beef"},
	}
}

func TestWrap_Empty(t *testing.T) {
	for _, n := range []int{0, 1, 10} {
		for _, w := range []int{0, 1, 80} {
			assert.Empty(t, tui.Wrap(nil, n, w), "Wrap(nil, %d, %d)", n, w)
		}
	}
}

func TestWrap_OldestOnTop(t *testing.T) {
	got := tui.Wrap(sampleRecords(), 8, 5)

	want := []string{
		"[32]c", "ocker", "el:be", "ef",
		"[122]", "cock:", "cam",
		"[123]", "aboba", ":ABOB", "A",
	}
	assert.Equal(t, want, got)
}

func TestWrap_SoftCap(t *testing.T) {
	tests := []struct {
		name     string
		maxLines int
		want     int
	}{
		{name: "first record already fills", maxLines: 2, want: 4},
		{name: "cap reached inside second record", maxLines: 5, want: 7},
		{name: "all records fit", maxLines: 100, want: 11},
		{name: "zero still takes newest record", maxLines: 0, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tui.Wrap(sampleRecords(), tt.maxLines, 5)
			assert.Len(t, got, tt.want)
			assert.Equal(t, "A", got[len(got)-1], "newest record must end at the bottom")
		})
	}
}

func TestWrap_NeverExceedsConsumedChunks(t *testing.T) {
	records := sampleRecords()
	for maxLines := 0; maxLines < 15; maxLines++ {
		for width := 1; width < 20; width++ {
			got := tui.Wrap(records, maxLines, width)
			assert.NotEmpty(t, got)

			total := 0
			for _, r := range records {
				total += (len(r.String()) + width - 1) / width
			}
			assert.LessOrEqual(t, len(got), total)
			for _, line := range got {
				assert.LessOrEqual(t, len(line), width)
			}
		}
	}
}

func TestWrap_NonPositiveWidthKeepsRecordWhole(t *testing.T) {
	got := tui.Wrap([]fmt.Stringer{protocol.Notice("Log in format: login/password")}, 5, 0)
	assert.Equal(t, []string{"Log in format: login/password"}, got)
}

func TestWrap_EmptyRecordTakesOneLine(t *testing.T) {
	got := tui.Wrap([]fmt.Stringer{protocol.Notice(""), protocol.Notice("x")}, 5, 10)
	assert.Equal(t, []string{"x", ""}, got)
}

func TestWrap_GraphemesAndWideRunes(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{name: "wide runes by cell", text: "日本語", width: 4, want: []string{"日本", "語"}},
		{name: "wide rune wider than width", text: "日本", width: 1, want: []string{"日", "本"}},
		{name: "combining mark stays with base", text: "cafe\u0301s", width: 4, want: []string{"cafe\u0301", "s"}},
		{name: "ascii", text: strings.Repeat("ab", 3), width: 4, want: []string{"abab", "ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tui.Wrap([]fmt.Stringer{protocol.Notice(tt.text)}, 10, tt.width)
			assert.Equal(t, tt.want, got)
		})
	}
}
