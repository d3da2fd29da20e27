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

package server

import "fmt"

// Usage describes one client command.
type Usage struct {
	Verb        string
	Args        string
	Description string
}

// Usages lists the client commands in display order.
var Usages = []Usage{
	{"register", "[user] [password]", "create an account"},
	{"login", "[user] [password]", "start a session"},
	{"logout", "", "end the session"},
	{"create", "<doc> <sections>", "create a document"},
	{"share", "<doc> <user>", "invite a collaborator"},
	{"show", "<doc> [section]", "print a document or one section"},
	{"list", "", "list the documents you can edit"},
	{"edit", "<doc> <section>", "start editing a section"},
	{"end-edit", "<doc> <section>", "upload a section and stop editing"},
	{"send", "<message>", "chat with the other editors of the document"},
	{"receive", "", "print new chat messages"},
	{"help", "", "show this help"},
	{"exit", "", "leave"},
}

// HelpLines renders Usages one command per line.
func HelpLines() []string {
	lines := make([]string, 0, len(Usages))
	for _, u := range Usages {
		lines = append(lines, fmt.Sprintf("%-9s %-18s %s", u.Verb, u.Args, u.Description))
	}
	return lines
}
