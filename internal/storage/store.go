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
Package storage holds the authoritative text of every document section.

Architecture Overview:
======================

	┌─────────────────────────────────────────────────────────────────┐
	│                      Task layer (engine)                        │
	└─────────────────────────────────────────────────────────────────┘
	                              │
	                              ▼
	┌─────────────────────────────────────────────────────────────────┐
	│                       Store Interface                           │
	│   (CreateDocument, ReadSection, WriteSection, DeleteSection)    │
	└─────────────────────────────────────────────────────────────────┘
	            │                   │                    │
	            ▼                   ▼                    ▼
	      ┌──────────┐        ┌───────────┐        ┌───────────┐
	      │  Memory  │        │   Disk    │        │   Bolt    │
	      │  Store   │        │   Store   │        │   Store   │
	      └──────────┘        └───────────┘        └───────────┘

Lifetime:
=========

Documents live as long as the server process. The disk and bolt backends
move section bodies out of the heap but start empty on every open; they are
not a persistence layer.

Disk and bolt bodies go through the compression package, so a store opened
with one algorithm can read values written with another.

Concurrency:
============

Every backend is safe for concurrent use. Writes to one section are
serialised by the section lock held by the editor, so the store never sees
two concurrent writers for the same key.
*/
package storage

import (
	"errors"
	"fmt"

	"turing/internal/compression"
)

// Backend names a store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendDisk   Backend = "disk"
	BackendBolt   Backend = "bolt"
)

var (
	// ErrDocumentNotFound is returned for a document never created.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrSectionNotFound is returned for an index outside the document.
	ErrSectionNotFound = errors.New("section not found")
	// ErrDocumentExists is returned when creating a document twice.
	ErrDocumentExists = errors.New("document already stored")
	// ErrBackendNotSupported is returned for an unknown backend name.
	ErrBackendNotSupported = errors.New("storage backend not supported")
)

// Store persists section bodies.
type Store interface {
	// CreateDocument creates sections empty sections for doc.
	CreateDocument(doc string, sections int) error
	// ReadSection returns the body of one section.
	ReadSection(doc string, index int) ([]byte, error)
	// WriteSection replaces the body of one section.
	WriteSection(doc string, index int, body []byte) error
	// DeleteSection empties one section.
	DeleteSection(doc string, index int) error
	// Stats reports store contents.
	Stats() Stats
	// Close releases the backend.
	Close() error
}

// Stats describes a store.
type Stats struct {
	Backend   Backend
	Documents int
	Sections  int
	DataSize  int64 // stored bytes, after compression
}

// String returns a human-readable representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("Backend: %s, Documents: %d, Sections: %d, DataSize: %d bytes",
		s.Backend, s.Documents, s.Sections, s.DataSize)
}

// Config selects and configures a store.
type Config struct {
	Backend     Backend
	DataDir     string
	Compression compression.Config
}

// Open creates the store named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendDisk:
		return NewDiskStore(cfg.DataDir, compression.NewCompressor(cfg.Compression))
	case BackendBolt:
		return NewBoltStore(cfg.DataDir, compression.NewCompressor(cfg.Compression))
	default:
		return nil, fmt.Errorf("%w: %s", ErrBackendNotSupported, cfg.Backend)
	}
}

func checkIndex(doc string, index, sections int) error {
	if index < 0 || index >= sections {
		return fmt.Errorf("%w: %s#%d", ErrSectionNotFound, doc, index)
	}
	return nil
}
