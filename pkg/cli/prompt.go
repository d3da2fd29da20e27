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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Stdin is where prompts read from when it is not a terminal.
var Stdin io.Reader = os.Stdin

// LineEditor, when set, reads prompted lines in place of Stdin. An
// interactive shell points it at its line editor so both share the
// terminal.
var LineEditor func(prompt string) (string, error)

var (
	stdinOnce   sync.Once
	stdinReader *bufio.Reader
)

func lineReader() *bufio.Reader {
	stdinOnce.Do(func() { stdinReader = bufio.NewReader(Stdin) })
	return stdinReader
}

func readLine() (string, error) {
	line, err := lineReader().ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Prompt prints message and reads one line.
func Prompt(message string) (string, error) {
	if LineEditor != nil {
		line, err := LineEditor(message)
		return strings.TrimSpace(line), err
	}
	fmt.Fprint(Stdout, message)
	line, err := readLine()
	return strings.TrimSpace(line), err
}

// PromptWithDefault reads a line and returns defaultVal when it is empty.
func PromptWithDefault(message, defaultVal string) string {
	line, err := Prompt(fmt.Sprintf("%s [%s]: ", message, Warning(defaultVal)))
	if err != nil || line == "" {
		return defaultVal
	}
	return line
}

// PromptYesNo asks a yes/no question.
func PromptYesNo(message string, defaultYes bool) bool {
	choice := "y/N"
	if defaultYes {
		choice = "Y/n"
	}
	line, err := Prompt(fmt.Sprintf("%s [%s]: ", message, choice))
	if err != nil || line == "" {
		return defaultYes
	}
	line = strings.ToLower(line)
	return line == "y" || line == "yes"
}

// PromptPassword reads a password without echo when stdin is a terminal.
// Piped input is read as a plain line.
func PromptPassword(message string) (string, error) {
	fmt.Fprintf(Stdout, "%s: ", message)
	if f, ok := Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(Stdout)
		return string(pw), err
	}
	return readLine()
}
