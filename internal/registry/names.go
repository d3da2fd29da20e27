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
Package registry holds the shared users and documents.

Both registries are maps behind a read/write mutex. Single-key operations
(insert-if-absent, lookup) run under one lock acquisition. Operations that
link two entities, creating a document and granting its creator the edit
right, or sharing a document and granting the collaborator the edit right,
run in one critical section so no intermediate state is visible.

Names are normalised to Unicode NFC before they are used as keys so that
two visually identical names always collide.
*/
package registry

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical key for a user or document name.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// ValidName reports whether name is usable as a user or document name:
// non-empty valid UTF-8 without control characters, path separators or
// surrounding spaces. The path elements "." and ".." are refused because
// names become directory names on disk.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || !utf8.ValidString(name) {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}

// NameLength returns the length of name in characters after normalisation.
func NameLength(name string) int {
	return utf8.RuneCountInString(Normalize(name))
}
