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

import "strings"

// Command is a request tag.
type Command int32

// Request commands. Values are part of the wire format.
const (
	CmdHelp         Command = 1
	CmdRegister     Command = 2
	CmdLogin        Command = 3
	CmdLogout       Command = 4
	CmdCreate       Command = 5
	CmdShare        Command = 6
	CmdShowDocument Command = 7
	CmdShowSection  Command = 8
	CmdList         Command = 9
	CmdEdit         Command = 10
	CmdEndEdit      Command = 11
	CmdSend         Command = 12
	CmdReceive      Command = 13
	CmdExit         Command = 14

	// Control tags.
	CmdChannelPrimary Command = 64 // connection carries requests
	CmdChannelNotify  Command = 65 // connection receives invite pushes
	CmdSectionUpdate  Command = 66 // raw section body follows END_EDIT
)

var commandNames = map[Command]string{
	CmdHelp:           "help",
	CmdRegister:       "register",
	CmdLogin:          "login",
	CmdLogout:         "logout",
	CmdCreate:         "create",
	CmdShare:          "share",
	CmdShowDocument:   "show-document",
	CmdShowSection:    "show-section",
	CmdList:           "list",
	CmdEdit:           "edit",
	CmdEndEdit:        "end-edit",
	CmdSend:           "send",
	CmdReceive:        "receive",
	CmdExit:           "exit",
	CmdChannelPrimary: "channel-primary",
	CmdChannelNotify:  "channel-notify",
	CmdSectionUpdate:  "section-update",
}

// String returns the lowercase verb of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether c is a defined command.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommand maps a verb to its command. The lookup is case-insensitive
// and accepts underscores in place of dashes.
func ParseCommand(verb string) (Command, bool) {
	verb = strings.ReplaceAll(strings.ToLower(verb), "_", "-")
	for cmd, name := range commandNames {
		if name == verb {
			return cmd, true
		}
	}
	return 0, false
}
