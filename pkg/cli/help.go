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
	"fmt"
	"strings"
)

// Command is one entry of a help screen.
type Command struct {
	Name        string
	Args        string
	Description string
	Examples    []string
}

// Usage returns "name args".
func (c Command) Usage() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

// Flag is one command-line flag of a binary.
type Flag struct {
	Name        string
	Description string
	Default     string
}

// HelpFormatter renders help screens.
type HelpFormatter struct {
	AppName    string
	AppVersion string
	Summary    string
	Commands   []Command
	Flags      []Flag
}

// NewHelpFormatter creates a formatter for appName.
func NewHelpFormatter(appName, version, summary string) *HelpFormatter {
	return &HelpFormatter{AppName: appName, AppVersion: version, Summary: summary}
}

// AddCommand appends a command.
func (h *HelpFormatter) AddCommand(cmd Command) {
	h.Commands = append(h.Commands, cmd)
}

// AddFlag appends a flag.
func (h *HelpFormatter) AddFlag(f Flag) {
	h.Flags = append(h.Flags, f)
}

// Lookup finds a command by name.
func (h *HelpFormatter) Lookup(name string) (Command, bool) {
	for _, c := range h.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// PrintVersion prints the version line.
func (h *HelpFormatter) PrintVersion() {
	fmt.Fprintf(Stdout, "%s version %s\n", h.AppName, h.AppVersion)
}

// PrintUsage prints the overview.
func (h *HelpFormatter) PrintUsage() {
	fmt.Fprintf(Stdout, "%s - %s\n\n", Highlight(h.AppName), h.Summary)

	if len(h.Commands) > 0 {
		fmt.Fprintln(Stdout, Highlight("COMMANDS:"))
		width := 0
		for _, c := range h.Commands {
			width = max(width, VisibleLen(c.Usage()))
		}
		for _, c := range h.Commands {
			fmt.Fprintf(Stdout, "  %s  %s\n", PadRight(c.Usage(), width), Dimmed(c.Description))
		}
		fmt.Fprintln(Stdout)
	}

	if len(h.Flags) > 0 {
		fmt.Fprintln(Stdout, Highlight("FLAGS:"))
		for _, f := range h.Flags {
			def := ""
			if f.Default != "" {
				def = fmt.Sprintf(" (default: %s)", f.Default)
			}
			fmt.Fprintf(Stdout, "  --%-18s %s%s\n", f.Name, f.Description, def)
		}
		fmt.Fprintln(Stdout)
	}
}

// PrintCommandHelp prints one command in detail.
func (h *HelpFormatter) PrintCommandHelp(name string) {
	c, ok := h.Lookup(name)
	if !ok {
		ErrUnknownCommand(name).Print()
		return
	}
	fmt.Fprintf(Stdout, "%s\n  %s\n\n", Highlight(strings.ToUpper(c.Name)), c.Description)
	fmt.Fprintf(Stdout, "%s\n  %s\n", Highlight("USAGE:"), c.Usage())
	if len(c.Examples) > 0 {
		fmt.Fprintf(Stdout, "\n%s\n", Highlight("EXAMPLES:"))
		for _, ex := range c.Examples {
			fmt.Fprintf(Stdout, "  %s\n", Info(ex))
		}
	}
}
