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

package storage

import (
	"fmt"
	"sync"
)

// MemoryStore keeps section bodies on the heap. Values are copied in and
// out so callers never share a buffer with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][][]byte
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][][]byte)}
}

func (m *MemoryStore) CreateDocument(doc string, sections int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc]; ok {
		return fmt.Errorf("%w: %s", ErrDocumentExists, doc)
	}
	m.docs[doc] = make([][]byte, sections)
	return nil
}

func (m *MemoryStore) ReadSection(doc string, index int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sections, ok := m.docs[doc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
	}
	if err := checkIndex(doc, index, len(sections)); err != nil {
		return nil, err
	}
	return append([]byte(nil), sections[index]...), nil
}

func (m *MemoryStore) WriteSection(doc string, index int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sections, ok := m.docs[doc]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
	}
	if err := checkIndex(doc, index, len(sections)); err != nil {
		return err
	}
	sections[index] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryStore) DeleteSection(doc string, index int) error {
	return m.WriteSection(doc, index, nil)
}

func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Backend: BackendMemory, Documents: len(m.docs)}
	for _, sections := range m.docs {
		s.Sections += len(sections)
		for _, b := range sections {
			s.DataSize += int64(len(b))
		}
	}
	return s
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string][][]byte)
	return nil
}
