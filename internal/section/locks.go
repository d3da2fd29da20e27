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
Package section implements the per-document table of section locks.

Each section of a document is independently lockable: the table holds one
small mutex per index guarding a FREE/LOCKED state and the owner name.
Acquisition never blocks. TryLock fails immediately when the section is
already held so the caller can report who is editing it.

The table is sized once when the document is created and never resized.
Locking one section never touches the state of another, and none of the
operations require a registry-wide lock.
*/
package section

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfRange is returned for an index outside [0, Len()).
	ErrOutOfRange = errors.New("section index out of range")
	// ErrNotLocked is returned when unlocking a free section.
	ErrNotLocked = errors.New("section is not locked")
	// ErrNotHolder is returned when someone other than the owner unlocks.
	ErrNotHolder = errors.New("section is locked by another owner")
)

type slot struct {
	mu     sync.Mutex
	locked bool
	holder string
}

// LockTable holds one lock per section.
type LockTable struct {
	slots []slot
}

// NewLockTable creates a table of n free sections.
func NewLockTable(n int) *LockTable {
	if n < 0 {
		n = 0
	}
	return &LockTable{slots: make([]slot, n)}
}

// Len returns the number of sections.
func (t *LockTable) Len() int {
	return len(t.slots)
}

// Valid reports whether i is a section index of the table.
func (t *LockTable) Valid(i int) bool {
	return i >= 0 && i < len(t.slots)
}

// TryLock acquires section i for owner without blocking. It returns false
// when the section is already held, by anyone including owner.
func (t *LockTable) TryLock(i int, owner string) bool {
	if !t.Valid(i) {
		return false
	}
	s := &t.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return false
	}
	s.locked = true
	s.holder = owner
	return true
}

// IsLocked reports whether section i is held.
func (t *LockTable) IsLocked(i int) bool {
	locked, _ := t.State(i)
	return locked
}

// Holder returns the owner of section i, or "" when it is free.
func (t *LockTable) Holder(i int) string {
	_, holder := t.State(i)
	return holder
}

// State returns the lock state and owner of section i in one read.
func (t *LockTable) State(i int) (bool, string) {
	if !t.Valid(i) {
		return false, ""
	}
	s := &t.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked, s.holder
}

// Unlock releases section i. Only the current holder may release it.
func (t *LockTable) Unlock(i int, owner string) error {
	if !t.Valid(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	s := &t.slots[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return ErrNotLocked
	}
	if s.holder != owner {
		return fmt.Errorf("%w (%s)", ErrNotHolder, s.holder)
	}
	s.locked = false
	s.holder = ""
	return nil
}

// Holders returns the owner of every section, "" for free ones.
func (t *LockTable) Holders() []string {
	out := make([]string, len(t.slots))
	for i := range t.slots {
		out[i] = t.Holder(i)
	}
	return out
}
