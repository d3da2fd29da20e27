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

package protocol

import (
	"fmt"
	"strings"
)

// Status is a response tag.
type Status int32

// Response statuses. Values are part of the wire format.
const (
	StatusOK Status = 0

	// Session and registration (1-9)
	StatusUsernameAlreadyTaken Status = 1
	StatusUserAlreadyOnline    Status = 2
	StatusUserNotRegistered    Status = 3
	StatusPasswordIncorrect    Status = 4
	StatusUserNotOnline        Status = 5

	// Documents and sharing (10-19)
	StatusDocumentAlreadyExists        Status = 10
	StatusNotificationAddressExhausted Status = 11
	StatusDocumentNotExist             Status = 12
	StatusSectionNotExist              Status = 13
	StatusUserNotCreator               Status = 14
	StatusUserIsDest                   Status = 15
	StatusDestAlreadyContributor       Status = 16
	StatusDestNotRegistered            Status = 17
	StatusPermissionDenied             Status = 18

	// Editing (20-29)
	StatusUserNotAllowedToEdit             Status = 20
	StatusSectionAlreadyInEditingMode      Status = 21
	StatusUserAlreadyEditingAnotherSection Status = 22
	StatusSectionNotInEditingMode          Status = 23
	StatusSectionEditedBySomeoneElse       Status = 24
	StatusUserNotEditing                   Status = 25

	// Chat (30-39)
	StatusSendFailure    Status = 30
	StatusReceiveFailure Status = 31

	// Validation (40-59)
	StatusInvalidArguments       Status = 40
	StatusNameTooLong            Status = 41
	StatusPasswordTooLong        Status = 42
	StatusInvalidName            Status = 43
	StatusInvalidNumber          Status = 44
	StatusSectionCountOutOfRange Status = 45
	StatusSectionTooLarge        Status = 46
	StatusMessageTooLong         Status = 47
	StatusUnknownCommand         Status = 48

	// Control (60-)
	StatusInvite              Status = 60
	StatusServerBusy          Status = 61
	StatusShuttingDown        Status = 62
	StatusInternalError       Status = 63
	StatusInvalidSessionToken Status = 64
)

type statusInfo struct {
	name     string
	template string
}

var statuses = map[Status]statusInfo{
	StatusOK: {"OK", "done"},

	StatusUsernameAlreadyTaken: {"UsernameAlreadyTaken", "username is already taken"},
	StatusUserAlreadyOnline:    {"UserAlreadyOnline", "user is already online"},
	StatusUserNotRegistered:    {"UserNotRegistered", "user is not registered"},
	StatusPasswordIncorrect:    {"PasswordIncorrect", "password is incorrect"},
	StatusUserNotOnline:        {"UserNotOnline", "you must be logged in"},

	StatusDocumentAlreadyExists:        {"DocumentAlreadyExists", "document %s already exists"},
	StatusNotificationAddressExhausted: {"NotificationAddressExhausted", "no chat address is left for a new document"},
	StatusDocumentNotExist:             {"DocumentNotExist", "document %s does not exist"},
	StatusSectionNotExist:              {"SectionNotExist", "section %s does not exist"},
	StatusUserNotCreator:               {"UserNotCreator", "only the creator can share the document"},
	StatusUserIsDest:                   {"UserIsDest", "you cannot share a document with yourself"},
	StatusDestAlreadyContributor:       {"DestAlreadyContributor", "%s is already a collaborator"},
	StatusDestNotRegistered:            {"DestNotRegistered", "%s is not registered"},
	StatusPermissionDenied:             {"PermissionDenied", "you are not allowed to see this document"},

	StatusUserNotAllowedToEdit:             {"UserNotAllowedToEdit", "you are not allowed to edit this document"},
	StatusSectionAlreadyInEditingMode:      {"SectionAlreadyInEditingMode", "section is being edited by %s"},
	StatusUserAlreadyEditingAnotherSection: {"UserAlreadyEditingAnotherSection", "you are already editing %s"},
	StatusSectionNotInEditingMode:          {"SectionNotInEditingMode", "section is not being edited"},
	StatusSectionEditedBySomeoneElse:       {"SectionEditedBySomeoneElse", "section is being edited by %s"},
	StatusUserNotEditing:                   {"UserNotEditing", "you are not editing any section"},

	StatusSendFailure:    {"SendFailure", "message could not be sent"},
	StatusReceiveFailure: {"ReceiveFailure", "messages could not be received"},

	StatusInvalidArguments:       {"InvalidArguments", "wrong number of arguments"},
	StatusNameTooLong:            {"NameTooLong", "name is longer than %s characters"},
	StatusPasswordTooLong:        {"PasswordTooLong", "password is longer than %s characters"},
	StatusInvalidName:            {"InvalidName", "name %s is not valid"},
	StatusInvalidNumber:          {"InvalidNumber", "%s is not a number"},
	StatusSectionCountOutOfRange: {"SectionCountOutOfRange", "section count must be between 1 and %s"},
	StatusSectionTooLarge:        {"SectionTooLarge", "section is larger than %s bytes"},
	StatusMessageTooLong:         {"MessageTooLong", "message is longer than %s characters"},
	StatusUnknownCommand:         {"UnknownCommand", "unknown command %s"},

	StatusInvite:              {"Invite", "you have been invited to edit %s"},
	StatusServerBusy:          {"ServerBusy", "server is busy, try again"},
	StatusShuttingDown:        {"ShuttingDown", "server is shutting down"},
	StatusInternalError:       {"InternalError", "internal server error"},
	StatusInvalidSessionToken: {"InvalidSessionToken", "session token is not valid"},
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if info, ok := statuses[s]; ok {
		return info.name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Known reports whether s is a defined status.
func (s Status) Known() bool {
	_, ok := statuses[s]
	return ok
}

// Message renders the human-readable template of the status. The detail,
// when given, fills the template placeholder.
func (s Status) Message(detail string) string {
	info, ok := statuses[s]
	if !ok {
		return fmt.Sprintf("unexpected response %d", int32(s))
	}
	if !strings.Contains(info.template, "%s") {
		return info.template
	}
	if detail == "" {
		detail = "?"
	}
	return fmt.Sprintf(info.template, detail)
}

// Statuses returns every defined status.
func Statuses() []Status {
	out := make([]Status, 0, len(statuses))
	for s := range statuses {
		out = append(out, s)
	}
	return out
}
