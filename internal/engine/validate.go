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

package engine

import (
	"errors"
	"strconv"
	"unicode/utf8"

	terrors "turing/internal/errors"
	"turing/internal/protocol"
	"turing/internal/registry"
)

func invalidArgument(reason string) *terrors.Error {
	return terrors.New(protocol.StatusInvalidArguments).WithCause(errors.New(reason))
}

// Limits bounds request arguments. Every check runs before any shared state
// is touched.
type Limits struct {
	MaxNameLength     int
	MaxPasswordLength int
	MaxSections       int
	MaxSectionSize    int
	MaxMessageLength  int
}

// DefaultLimits returns the limits of the default configuration.
func DefaultLimits() Limits {
	return Limits{
		MaxNameLength:     32,
		MaxPasswordLength: 64,
		MaxSections:       20,
		MaxSectionSize:    1024 * 1024,
		MaxMessageLength:  1024,
	}
}

// CheckName validates a username or document name.
func (l Limits) CheckName(name string) error {
	if !registry.ValidName(name) {
		return terrors.InvalidName(name)
	}
	if registry.NameLength(name) > l.MaxNameLength {
		return terrors.NameTooLong(l.MaxNameLength)
	}
	return nil
}

// CheckPassword validates a password.
func (l Limits) CheckPassword(pw string) error {
	if pw == "" || !utf8.ValidString(pw) {
		return invalidArgument("password must be non-empty UTF-8")
	}
	if utf8.RuneCountInString(pw) > l.MaxPasswordLength {
		return terrors.PasswordTooLong(l.MaxPasswordLength)
	}
	return nil
}

// ParseSectionCount parses the section count of a new document.
func (l Limits) ParseSectionCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, terrors.InvalidNumber(s)
	}
	if n < 1 || n > l.MaxSections {
		return 0, terrors.SectionCountOutOfRange(l.MaxSections)
	}
	return n, nil
}

// ParseSectionIndex parses a section index. Range is checked against the
// document later.
func (l Limits) ParseSectionIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, terrors.InvalidNumber(s)
	}
	return n, nil
}

// CheckSectionBody validates an uploaded section.
func (l Limits) CheckSectionBody(body []byte) error {
	if len(body) > l.MaxSectionSize {
		return terrors.SectionTooLarge(l.MaxSectionSize)
	}
	if !utf8.Valid(body) {
		return invalidArgument("section is not valid UTF-8")
	}
	return nil
}

// CheckMessage validates a chat message.
func (l Limits) CheckMessage(text string) error {
	if text == "" {
		return invalidArgument("empty message")
	}
	if utf8.RuneCountInString(text) > l.MaxMessageLength {
		return terrors.MessageTooLong(l.MaxMessageLength)
	}
	return nil
}
