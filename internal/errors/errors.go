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
Package errors provides structured error handling for Turing.

Every business-rule failure is an *Error that carries the protocol Status
the client receives, so the dispatcher can turn any error returned by the
task layer into exactly one response code. Network and framing failures are
not represented here: they are ordinary wrapped Go errors and make the
connection close.

Error Categories:
  - VALIDATION: malformed or out-of-limit arguments; nothing was touched
  - SESSION: login state problems (not online, already online, ...)
  - CONFLICT: the name or section is already taken
  - PERMISSION: the caller may not perform the operation
  - RESOURCE: a finite resource ran out (notification addresses)
  - PROTOCOL: the request itself cannot be understood
  - INTERNAL: the server failed; the cause is kept for the log

The Detail field feeds the placeholder of the status message template, for
example the name of the user currently editing a section.
*/
package errors

import (
	"errors"
	"fmt"

	"turing/internal/protocol"
)

// Category represents the error category.
type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategorySession    Category = "SESSION"
	CategoryConflict   Category = "CONFLICT"
	CategoryPermission Category = "PERMISSION"
	CategoryResource   Category = "RESOURCE"
	CategoryProtocol   Category = "PROTOCOL"
	CategoryInternal   Category = "INTERNAL"
)

// Error represents a structured error in Turing.
type Error struct {
	Status   protocol.Status
	Category Category
	Detail   string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (%s): %s", e.Status, e.Category, e.Status.Message(e.Detail))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns the message shown to the client.
func (e *Error) UserMessage() string {
	return e.Status.Message(e.Detail)
}

// WithDetail adds detail to the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates an error for the given status. The category follows from the
// status.
func New(status protocol.Status) *Error {
	return &Error{Status: status, Category: categoryOf(status)}
}

func categoryOf(s protocol.Status) Category {
	switch s {
	case protocol.StatusUserAlreadyOnline, protocol.StatusUserNotRegistered,
		protocol.StatusPasswordIncorrect, protocol.StatusUserNotOnline,
		protocol.StatusUserNotEditing, protocol.StatusInvalidSessionToken:
		return CategorySession
	case protocol.StatusUsernameAlreadyTaken, protocol.StatusDocumentAlreadyExists,
		protocol.StatusDestAlreadyContributor, protocol.StatusSectionAlreadyInEditingMode,
		protocol.StatusUserAlreadyEditingAnotherSection, protocol.StatusSectionNotInEditingMode,
		protocol.StatusSectionEditedBySomeoneElse, protocol.StatusDocumentNotExist,
		protocol.StatusSectionNotExist, protocol.StatusDestNotRegistered:
		return CategoryConflict
	case protocol.StatusUserNotCreator, protocol.StatusUserIsDest,
		protocol.StatusPermissionDenied, protocol.StatusUserNotAllowedToEdit:
		return CategoryPermission
	case protocol.StatusNotificationAddressExhausted, protocol.StatusServerBusy:
		return CategoryResource
	case protocol.StatusUnknownCommand:
		return CategoryProtocol
	case protocol.StatusSendFailure, protocol.StatusReceiveFailure,
		protocol.StatusInternalError, protocol.StatusShuttingDown:
		return CategoryInternal
	}
	if s >= protocol.StatusInvalidArguments && s < protocol.StatusInvite {
		return CategoryValidation
	}
	return CategoryInternal
}

// ============================================================================
// Validation Error Constructors
// ============================================================================

// InvalidArguments creates an error for a wrong argument count.
func InvalidArguments(cmd protocol.Command, want, got int) *Error {
	return New(protocol.StatusInvalidArguments).
		WithCause(fmt.Errorf("%s expects %d arguments, got %d", cmd, want, got))
}

// NameTooLong creates an error for a name above the configured limit.
func NameTooLong(max int) *Error {
	return New(protocol.StatusNameTooLong).WithDetail(fmt.Sprint(max))
}

// PasswordTooLong creates an error for a password above the configured limit.
func PasswordTooLong(max int) *Error {
	return New(protocol.StatusPasswordTooLong).WithDetail(fmt.Sprint(max))
}

// InvalidName creates an error for an empty or malformed name.
func InvalidName(name string) *Error {
	return New(protocol.StatusInvalidName).WithDetail(fmt.Sprintf("%q", name))
}

// InvalidNumber creates an error for a non-numeric argument.
func InvalidNumber(value string) *Error {
	return New(protocol.StatusInvalidNumber).WithDetail(fmt.Sprintf("%q", value))
}

// SectionCountOutOfRange creates an error for a section count outside [1, max].
func SectionCountOutOfRange(max int) *Error {
	return New(protocol.StatusSectionCountOutOfRange).WithDetail(fmt.Sprint(max))
}

// SectionTooLarge creates an error for a section body above the limit.
func SectionTooLarge(max int) *Error {
	return New(protocol.StatusSectionTooLarge).WithDetail(fmt.Sprint(max))
}

// MessageTooLong creates an error for a chat message above the limit.
func MessageTooLong(max int) *Error {
	return New(protocol.StatusMessageTooLong).WithDetail(fmt.Sprint(max))
}

// UnknownCommand creates an error for an undefined request tag.
func UnknownCommand(tag int32) *Error {
	return New(protocol.StatusUnknownCommand).WithDetail(fmt.Sprint(tag))
}

// ============================================================================
// Document Error Constructors
// ============================================================================

// DocumentAlreadyExists creates an error for a duplicate document name.
func DocumentAlreadyExists(doc string) *Error {
	return New(protocol.StatusDocumentAlreadyExists).WithDetail(doc)
}

// DocumentNotExist creates an error for an unknown document.
func DocumentNotExist(doc string) *Error {
	return New(protocol.StatusDocumentNotExist).WithDetail(doc)
}

// SectionNotExist creates an error for an index outside the document.
func SectionNotExist(index int) *Error {
	return New(protocol.StatusSectionNotExist).WithDetail(fmt.Sprint(index))
}

// DestAlreadyContributor creates an error for a repeated share.
func DestAlreadyContributor(dest string) *Error {
	return New(protocol.StatusDestAlreadyContributor).WithDetail(dest)
}

// DestNotRegistered creates an error for sharing with an unknown user.
func DestNotRegistered(dest string) *Error {
	return New(protocol.StatusDestNotRegistered).WithDetail(dest)
}

// ============================================================================
// Editing Error Constructors
// ============================================================================

// SectionAlreadyInEditingMode creates an error naming the current editor.
func SectionAlreadyInEditingMode(holder string) *Error {
	return New(protocol.StatusSectionAlreadyInEditingMode).WithDetail(holder)
}

// SectionEditedBySomeoneElse creates an error naming the current editor.
func SectionEditedBySomeoneElse(holder string) *Error {
	return New(protocol.StatusSectionEditedBySomeoneElse).WithDetail(holder)
}

// AlreadyEditing creates an error naming the section the user is editing.
func AlreadyEditing(where string) *Error {
	return New(protocol.StatusUserAlreadyEditingAnotherSection).WithDetail(where)
}

// ============================================================================
// Internal Error Constructors
// ============================================================================

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return New(protocol.StatusInternalError).WithCause(cause)
}

// SendFailure wraps a failed publish.
func SendFailure(cause error) *Error {
	return New(protocol.StatusSendFailure).WithCause(cause)
}

// ============================================================================
// Helper Functions
// ============================================================================

// StatusOf returns the protocol status for err. A nil error is OK and any
// error that is not an *Error is an internal error.
func StatusOf(err error) protocol.Status {
	if err == nil {
		return protocol.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return protocol.StatusInternalError
}

// DetailOf returns the detail of err, or an empty string.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

// Is reports whether err carries the given status.
func Is(err error, status protocol.Status) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == CategoryValidation
}

// IsInternal checks if an error is internal. Errors that are not *Error
// count as internal.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category == CategoryInternal
	}
	return true
}

// FormatError formats an error for user display.
func FormatError(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return "ERROR: " + e.UserMessage()
	}
	return fmt.Sprintf("ERROR: %v", err)
}
