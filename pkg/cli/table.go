package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const columnGap = 2

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visualLen is the printed width of s, ignoring ANSI color codes.
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

// Table buffers rows and prints them column-aligned on Flush. Columns are
// narrowed to fit the terminal when stdout is one. An empty table prints
// nothing.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	prefix  string
	width   int
}

// NewTable creates a table with the given column headers writing to stdout.
func NewTable(headers ...string) *Table {
	t := &Table{out: os.Stdout, headers: headers}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		t.width = w
	}
	return t
}

// WithWriter redirects output and disables terminal fitting.
func (t *Table) WithWriter(w io.Writer) *Table {
	t.out = w
	t.width = 0
	return t
}

// WithPrefix sets a string prepended to each line.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// Row appends a row.
func (t *Table) Row(values ...string) {
	t.rows = append(t.rows, values)
}

// Flush prints the headers, a dash divider and all rows.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := visualLen(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	if t.width > 0 {
		widths = capWidths(widths, t.headers, t.width, visualLen(t.prefix))
	}

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.line(widths, t.headers)
	t.line(widths, dividers)
	for _, row := range t.rows {
		t.line(widths, row)
	}
}

func (t *Table) line(widths []int, cells []string) {
	var b strings.Builder
	b.WriteString(t.prefix)
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = truncate(cells[i], w)
		}
		b.WriteString(cell)
		if i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", w-visualLen(cell)+columnGap))
		}
	}
	fmt.Fprintln(t.out, strings.TrimRight(b.String(), " "))
}

// truncate shortens s to width runes, ending in "…". Colored cells are
// left alone.
func truncate(s string, width int) string {
	if visualLen(s) <= width || ansiEscape.MatchString(s) || width < 1 {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}

// capWidths narrows the widest columns until the row fits total, never
// below a column's header width.
func capWidths(widths []int, headers []string, total, prefix int) []int {
	out := append([]int(nil), widths...)
	minWidths := make([]int, len(headers))
	for i, h := range headers {
		minWidths[i] = visualLen(h)
	}
	sum := func() int {
		n := prefix + columnGap*(len(out)-1)
		for _, w := range out {
			n += w
		}
		return n
	}
	for sum() > total {
		widest := -1
		for i, w := range out {
			if w > minWidths[i] && (widest < 0 || w > out[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		out[widest]--
	}
	return out
}
