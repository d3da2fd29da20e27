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
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"turing/internal/compression"
)

// DiskStore keeps one file per section:
//
//	<data_dir>/sections/<escaped document>/<index>.section
//
// The sections directory is wiped when the store opens.
type DiskStore struct {
	root       string
	compressor *compression.Compressor

	mu   sync.RWMutex
	docs map[string]int

	sizeMu sync.Mutex
	sizes  map[string]int64
}

// NewDiskStore prepares an empty sections directory under dataDir.
func NewDiskStore(dataDir string, c *compression.Compressor) (*DiskStore, error) {
	root := filepath.Join(dataDir, "sections")
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("reset %s: %w", root, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", root, err)
	}
	return &DiskStore{
		root:       root,
		compressor: c,
		docs:       make(map[string]int),
		sizes:      make(map[string]int64),
	}, nil
}

func (d *DiskStore) docDir(doc string) string {
	return filepath.Join(d.root, dirName(doc))
}

// dirName escapes a document name into a single path element below root.
func dirName(doc string) string {
	if doc == "." || doc == ".." {
		return strings.ReplaceAll(doc, ".", "%2E")
	}
	return url.PathEscape(doc)
}

func (d *DiskStore) sectionPath(doc string, index int) string {
	return filepath.Join(d.docDir(doc), strconv.Itoa(index)+".section")
}

func (d *DiskStore) CreateDocument(doc string, sections int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.docs[doc]; ok {
		return fmt.Errorf("%w: %s", ErrDocumentExists, doc)
	}
	if err := os.MkdirAll(d.docDir(doc), 0755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}
	for i := 0; i < sections; i++ {
		if err := d.writeFile(doc, i, nil); err != nil {
			return err
		}
	}
	d.docs[doc] = sections
	return nil
}

func (d *DiskStore) lookup(doc string, index int) error {
	n, ok := d.docs[doc]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
	}
	return checkIndex(doc, index, n)
}

func (d *DiskStore) ReadSection(doc string, index int) ([]byte, error) {
	d.mu.RLock()
	err := d.lookup(doc, index)
	d.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(d.sectionPath(doc, index))
	if err != nil {
		return nil, fmt.Errorf("read section %s#%d: %w", doc, index, err)
	}
	return d.compressor.Decompress(raw)
}

func (d *DiskStore) WriteSection(doc string, index int, body []byte) error {
	d.mu.RLock()
	err := d.lookup(doc, index)
	d.mu.RUnlock()
	if err != nil {
		return err
	}
	return d.writeFile(doc, index, body)
}

// writeFile replaces a section file through a temporary file and a rename
// so readers never observe a partial body.
func (d *DiskStore) writeFile(doc string, index int, body []byte) error {
	data, err := d.compressor.Compress(body)
	if err != nil {
		return err
	}
	path := d.sectionPath(doc, index)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".section-*")
	if err != nil {
		return fmt.Errorf("write section %s#%d: %w", doc, index, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write section %s#%d: %w", doc, index, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write section %s#%d: %w", doc, index, err)
	}

	d.sizeMu.Lock()
	d.sizes[path] = int64(len(data))
	d.sizeMu.Unlock()
	return nil
}

func (d *DiskStore) DeleteSection(doc string, index int) error {
	return d.WriteSection(doc, index, nil)
}

func (d *DiskStore) Stats() Stats {
	d.mu.RLock()
	s := Stats{Backend: BackendDisk, Documents: len(d.docs)}
	for _, n := range d.docs {
		s.Sections += n
	}
	d.mu.RUnlock()

	d.sizeMu.Lock()
	for _, n := range d.sizes {
		s.DataSize += n
	}
	d.sizeMu.Unlock()
	return s
}

func (d *DiskStore) Close() error {
	return nil
}
