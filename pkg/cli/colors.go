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

/*
Package cli holds the terminal helpers shared by the Turing binaries:
colors, tables, prompts, a spinner and friendly error rendering.

Everything writes to Stdout, which tests replace with a buffer. Colors are
disabled when NO_COLOR is set or Stdout is not a terminal.
*/
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI escape codes.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// Stdout receives all output of the package.
var Stdout io.Writer = os.Stdout

var colorsEnabled = true

func init() {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		colorsEnabled = false
	}
}

// SetColorsEnabled enables or disables color output.
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// ColorsEnabled reports whether colors are enabled.
func ColorsEnabled() bool {
	return colorsEnabled
}

func colorize(color, text string) string {
	if !colorsEnabled {
		return text
	}
	return color + text + Reset
}

// Success formats text in green.
func Success(text string) string { return colorize(Green, text) }

// Error formats text in red.
func Error(text string) string { return colorize(Red, text) }

// Warning formats text in yellow.
func Warning(text string) string { return colorize(Yellow, text) }

// Info formats text in cyan.
func Info(text string) string { return colorize(Cyan, text) }

// Highlight formats text in bold.
func Highlight(text string) string { return colorize(Bold, text) }

// Dimmed formats text dimmed.
func Dimmed(text string) string { return colorize(Dim, text) }

// User formats a username so it stands out in chat and listings.
func User(name string) string { return colorize(Magenta, name) }

// Document formats a document name.
func Document(name string) string { return colorize(Blue, name) }

func SuccessIcon() string { return colorize(Green, "✓") }
func ErrorIcon() string   { return colorize(Red, "✗") }
func WarningIcon() string { return colorize(Yellow, "⚠") }
func InfoIcon() string    { return colorize(Cyan, "ℹ") }

// PrintSuccess prints a success line.
func PrintSuccess(format string, args ...any) {
	fmt.Fprintf(Stdout, "%s %s\n", SuccessIcon(), Success(fmt.Sprintf(format, args...)))
}

// PrintError prints an error line.
func PrintError(format string, args ...any) {
	fmt.Fprintf(Stdout, "%s %s\n", ErrorIcon(), Error(fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning line.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(Stdout, "%s %s\n", WarningIcon(), Warning(fmt.Sprintf(format, args...)))
}

// PrintInfo prints an informational line.
func PrintInfo(format string, args ...any) {
	fmt.Fprintf(Stdout, "%s %s\n", InfoIcon(), Info(fmt.Sprintf(format, args...)))
}

// Separator returns a horizontal rule.
func Separator(width int) string {
	return strings.Repeat("─", width)
}
