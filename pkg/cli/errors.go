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
	"errors"
	"fmt"
	"os"

	terrors "turing/internal/errors"
	"turing/internal/protocol"
)

// CLIError is an error rendered with hints for the user.
type CLIError struct {
	Message     string
	Detail      string
	Suggestions []string
	ExitCode    int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Print renders the error.
func (e *CLIError) Print() {
	fmt.Fprintf(Stdout, "%s %s\n", ErrorIcon(), Error(e.Message))
	if e.Detail != "" {
		fmt.Fprintf(Stdout, "  %s\n", Dimmed(e.Detail))
	}
	for _, s := range e.Suggestions {
		fmt.Fprintf(Stdout, "  %s %s\n", Dimmed("hint:"), s)
	}
}

// Exit prints the error and exits with its code.
func (e *CLIError) Exit() {
	e.Print()
	os.Exit(e.ExitCode)
}

// NewCLIError creates an error with exit code 1.
func NewCLIError(message string) *CLIError {
	return &CLIError{Message: message, ExitCode: 1}
}

// WithDetail adds a second line.
func (e *CLIError) WithDetail(detail string) *CLIError {
	e.Detail = detail
	return e
}

// WithSuggestion adds a hint.
func (e *CLIError) WithSuggestion(suggestion string) *CLIError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithExitCode sets the exit code.
func (e *CLIError) WithExitCode(code int) *CLIError {
	e.ExitCode = code
	return e
}

// hints maps refusals to what the user can do about them.
var hints = map[protocol.Status]string{
	protocol.StatusUserNotOnline:                    "log in first: turing login <username>",
	protocol.StatusUserNotRegistered:                "create an account: turing register <username>",
	protocol.StatusUserAlreadyOnline:                "log out from the other client first",
	protocol.StatusUserNotAllowedToEdit:             "ask the creator to share the document with you",
	protocol.StatusUserAlreadyEditingAnotherSection: "finish the current edit: turing end-edit <document> <section>",
	protocol.StatusUserNotEditing:                   "start an edit first: turing edit <document> <section>",
	protocol.StatusSectionAlreadyInEditingMode:      "try again when the other user is done",
	protocol.StatusInvalidArguments:                 "see turing help for the expected arguments",
	protocol.StatusUnknownCommand:                   "see turing help for the list of commands",
}

// FromError renders err for the terminal. Server refusals keep their
// status message; anything else is reported as a failure of the client.
func FromError(err error) *CLIError {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var e *terrors.Error
	if errors.As(err, &e) {
		out := NewCLIError(e.UserMessage())
		if hint, ok := hints[e.Status]; ok {
			out.WithSuggestion(hint)
		}
		return out
	}
	return NewCLIError(err.Error())
}

// ErrConnectionFailed reports a server that cannot be reached.
func ErrConnectionFailed(addr string, err error) *CLIError {
	return NewCLIError("Cannot reach the Turing server").
		WithDetail(fmt.Sprintf("%s: %v", addr, err)).
		WithSuggestion("check that turing-server is running, or find one with turing-discover").
		WithExitCode(2)
}

// ErrUsage reports a command line that does not match the grammar.
func ErrUsage(usage string) *CLIError {
	return NewCLIError("Invalid arguments").
		WithSuggestion("usage: " + usage)
}

// ErrUnknownCommand reports a verb the client does not know.
func ErrUnknownCommand(verb string) *CLIError {
	return NewCLIError(fmt.Sprintf("Unknown command: %s", verb)).
		WithSuggestion("type help for the list of commands")
}
