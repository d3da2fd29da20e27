/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cli

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// VisibleLen returns the number of terminal cells s occupies. ANSI codes
// take none and East Asian wide characters take two.
func VisibleLen(s string) int {
	n := 0
	for _, r := range ansiRegex.ReplaceAllString(s, "") {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// PadRight pads s to w visible cells.
func PadRight(s string, w int) string {
	if n := VisibleLen(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

// OutputFormat selects how tables are printed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatPlain OutputFormat = "plain"
)

// ParseOutputFormat parses a format name. Unknown names select a table.
func ParseOutputFormat(s string) OutputFormat {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "plain":
		return FormatPlain
	default:
		return FormatTable
	}
}

// Table collects rows and prints them in one of the output formats.
type Table struct {
	headers []string
	rows    [][]string
	format  OutputFormat
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, format: FormatTable}
}

// SetFormat sets the output format.
func (t *Table) SetFormat(format OutputFormat) {
	t.format = format
}

// AddRow appends a row.
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Print writes the table.
func (t *Table) Print() {
	switch t.format {
	case FormatJSON:
		t.printJSON()
	case FormatPlain:
		for _, row := range t.rows {
			fmt.Fprintln(Stdout, strings.Join(row, "\t"))
		}
	default:
		t.printTable()
	}
}

func (t *Table) columns() int {
	n := len(t.headers)
	for _, row := range t.rows {
		n = max(n, len(row))
	}
	return n
}

func (t *Table) printTable() {
	if len(t.rows) == 0 {
		fmt.Fprintln(Stdout, Dimmed("(none)"))
		return
	}

	cols := t.columns()
	widths := make([]int, cols)
	for i, h := range t.headers {
		widths[i] = VisibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], VisibleLen(cell))
		}
	}

	border := func(left, mid, right string) string {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return Dimmed(left + strings.Join(parts, mid) + right)
	}
	line := func(cells []string, style func(string) string) string {
		var b strings.Builder
		b.WriteString(Dimmed("│"))
		for i := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + style(PadRight(cell, widths[i])) + " ")
			b.WriteString(Dimmed("│"))
		}
		return b.String()
	}
	plain := func(s string) string { return s }

	fmt.Fprintln(Stdout, border("┌", "┬", "┐"))
	if len(t.headers) > 0 {
		fmt.Fprintln(Stdout, line(t.headers, Highlight))
		fmt.Fprintln(Stdout, border("├", "┼", "┤"))
	}
	for _, row := range t.rows {
		fmt.Fprintln(Stdout, line(row, plain))
	}
	fmt.Fprintln(Stdout, border("└", "┴", "┘"))
}

func (t *Table) printJSON() {
	out := make([]map[string]string, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]string, len(row))
		for j, v := range row {
			if j < len(t.headers) {
				m[t.headers[j]] = v
			} else {
				m[fmt.Sprintf("col%d", j)] = v
			}
		}
		out[i] = m
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		PrintError("format JSON: %v", err)
		return
	}
	fmt.Fprintln(Stdout, string(data))
}

// KeyValue prints an aligned key and value.
func KeyValue(key, value string, keyWidth int) {
	fmt.Fprintf(Stdout, "  %s %s\n", PadRight(key+":", keyWidth+1), value)
}

// Block prints a titled block of text, indented.
func Block(title, content string) {
	fmt.Fprintln(Stdout, Highlight(title))
	fmt.Fprintln(Stdout, Dimmed(Separator(max(VisibleLen(title), 20))))
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintln(Stdout, "  "+line)
	}
}
