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

package section

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTryLockAndUnlock(t *testing.T) {
	table := NewLockTable(3)

	if table.Len() != 3 {
		t.Fatalf("Expected 3 sections, got %d", table.Len())
	}
	if !table.TryLock(1, "bob") {
		t.Fatal("Expected first TryLock to succeed")
	}
	if table.TryLock(1, "alice") {
		t.Error("Second TryLock on a held section must fail")
	}
	if table.TryLock(1, "bob") {
		t.Error("TryLock is not reentrant")
	}
	if !table.IsLocked(1) || table.Holder(1) != "bob" {
		t.Errorf("Unexpected state: locked=%v holder=%q", table.IsLocked(1), table.Holder(1))
	}
	if table.IsLocked(0) || table.IsLocked(2) {
		t.Error("Neighbouring sections must stay free")
	}

	if err := table.Unlock(1, "alice"); !errors.Is(err, ErrNotHolder) {
		t.Errorf("Expected ErrNotHolder, got %v", err)
	}
	if err := table.Unlock(1, "bob"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := table.Unlock(1, "bob"); !errors.Is(err, ErrNotLocked) {
		t.Errorf("Expected ErrNotLocked, got %v", err)
	}
	if !table.TryLock(1, "alice") {
		t.Error("Section should be free after unlock")
	}
}

func TestOutOfRange(t *testing.T) {
	table := NewLockTable(2)

	for _, i := range []int{-1, 2, 100} {
		if table.TryLock(i, "bob") {
			t.Errorf("TryLock(%d) must fail", i)
		}
		if table.IsLocked(i) {
			t.Errorf("IsLocked(%d) must be false", i)
		}
		if err := table.Unlock(i, "bob"); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Unlock(%d): expected ErrOutOfRange, got %v", i, err)
		}
	}
}

func TestHolders(t *testing.T) {
	table := NewLockTable(4)
	table.TryLock(0, "bob")
	table.TryLock(3, "alice")

	if got := fmt.Sprint(table.Holders()); got != "[bob   alice]" {
		t.Errorf("Holders() = %q", got)
	}
	if err := table.Unlock(0, "bob"); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprintf("%q", table.Holders()); got != `["" "" "" "alice"]` {
		t.Errorf("Holders() after unlock = %s", got)
	}
}

func TestConcurrentTryLockIsExclusive(t *testing.T) {
	const sections = 8
	const contenders = 32

	for round := 0; round < 20; round++ {
		table := NewLockTable(sections)
		var winners [sections]atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for c := 0; c < contenders; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				<-start
				for i := 0; i < sections; i++ {
					if table.TryLock(i, fmt.Sprintf("user%d", c)) {
						winners[i].Add(1)
					}
				}
			}(c)
		}
		close(start)
		wg.Wait()

		for i := range winners {
			if n := winners[i].Load(); n != 1 {
				t.Fatalf("Round %d: section %d acquired %d times", round, i, n)
			}
		}
	}
}
