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

package registry

import (
	"errors"
	"net/netip"
	"sort"
	"sync"

	"turing/internal/section"
)

var (
	// ErrDocumentExists is returned when creating a document whose name is
	// taken.
	ErrDocumentExists = errors.New("document already exists")
	// ErrAlreadyCollaborator is returned when sharing twice with one user.
	ErrAlreadyCollaborator = errors.New("user is already a collaborator")
)

// Document is a named, sectioned document. Name, creator, section count and
// notification address are fixed at creation.
type Document struct {
	name     string
	creator  string
	address  netip.Addr
	sections *section.LockTable

	mu            sync.RWMutex
	collaborators []string
}

// Name returns the normalised document name.
func (d *Document) Name() string { return d.name }

// Creator returns the creator's username.
func (d *Document) Creator() string { return d.creator }

// Address returns the notification group address.
func (d *Document) Address() netip.Addr { return d.address }

// Sections returns the section lock table.
func (d *Document) Sections() *section.LockTable { return d.sections }

// SectionCount returns the number of sections.
func (d *Document) SectionCount() int { return d.sections.Len() }

// Collaborators returns the invited users in invitation order.
func (d *Document) Collaborators() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.collaborators...)
}

// IsCollaborator reports whether user was invited to the document.
func (d *Document) IsCollaborator(user string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.collaborators {
		if c == user {
			return true
		}
	}
	return false
}

// CanEdit reports whether user is the creator or a collaborator.
func (d *Document) CanEdit(user string) bool {
	return user == d.creator || d.IsCollaborator(user)
}

// AddressAllocator prepares a new document and returns its notification
// address. It runs outside the registry lock.
type AddressAllocator func() (netip.Addr, error)

// DocumentRegistry maps document names to documents.
//
// Lock order is registry, then document, then user. Nothing holding a
// section lock takes any of them.
type DocumentRegistry struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	creating map[string]struct{}
}

// NewDocumentRegistry creates an empty registry.
func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		docs:     make(map[string]*Document),
		creating: make(map[string]struct{}),
	}
}

// Create inserts a document if the name is free.
//
// The name is reserved under the registry lock, then alloc runs without
// it, so lookups never wait on store I/O. A concurrent Create of a reserved
// name fails with ErrDocumentExists. On success the document and its
// creator's edit right are published in one critical section; a failed
// alloc frees the reservation and leaves the registry unchanged.
func (r *DocumentRegistry) Create(name string, creator *User, sections int, alloc AddressAllocator) (*Document, error) {
	name = Normalize(name)

	r.mu.Lock()
	_, exists := r.docs[name]
	_, pending := r.creating[name]
	if exists || pending {
		r.mu.Unlock()
		return nil, ErrDocumentExists
	}
	r.creating[name] = struct{}{}
	r.mu.Unlock()

	addr, err := alloc()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creating, name)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		name:     name,
		creator:  creator.Name(),
		address:  addr,
		sections: section.NewLockTable(sections),
	}
	r.docs[name] = doc
	creator.addEditable(name)
	return doc, nil
}

// Share adds dest as a collaborator of doc and gives dest the edit right
// in one critical section.
func (r *DocumentRegistry) Share(doc *Document, dest *User) error {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	for _, c := range doc.collaborators {
		if c == dest.Name() {
			return ErrAlreadyCollaborator
		}
	}
	doc.collaborators = append(doc.collaborators, dest.Name())
	dest.addEditable(doc.name)
	return nil
}

// Lookup returns the document registered under name.
func (r *DocumentRegistry) Lookup(name string) (*Document, bool) {
	name = Normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[name]
	return d, ok
}

// Editable returns the documents user may edit, sorted by name.
func (r *DocumentRegistry) Editable(user *User) []*Document {
	names := user.EditableDocuments()

	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := make([]*Document, 0, len(names))
	for _, n := range names {
		if d, ok := r.docs[n]; ok {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].name < docs[j].name })
	return docs
}

// Len returns the number of documents.
func (r *DocumentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
