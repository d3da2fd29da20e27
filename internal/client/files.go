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

package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalFiles keeps downloaded sections on disk so an editor can work on
// them:
//
//	<root>/<user>/<document>/<index>.txt
//
// User and document names are path-escaped into a single directory each.
type LocalFiles struct {
	root string
}

// NewLocalFiles stores files under root.
func NewLocalFiles(root string) *LocalFiles {
	return &LocalFiles{root: root}
}

// Dir returns the directory of a document.
func (l *LocalFiles) Dir(user, doc string) string {
	return filepath.Join(l.root, element(user), element(doc))
}

func element(name string) string {
	if name == "." || name == ".." {
		return strings.ReplaceAll(name, ".", "%2E")
	}
	return url.PathEscape(name)
}

// Path returns the file of a section.
func (l *LocalFiles) Path(user, doc string, index int) string {
	return filepath.Join(l.Dir(user, doc), strconv.Itoa(index)+".txt")
}

// CreateDirectory creates the directory of a document.
func (l *LocalFiles) CreateDirectory(user, doc string) error {
	return os.MkdirAll(l.Dir(user, doc), 0o755)
}

// WriteSection replaces the local copy of a section.
func (l *LocalFiles) WriteSection(user, doc string, index int, body []byte) error {
	if err := l.CreateDirectory(user, doc); err != nil {
		return err
	}
	path := l.Path(user, doc, index)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".section-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSection returns the local copy of a section.
func (l *LocalFiles) ReadSection(user, doc string, index int) ([]byte, error) {
	body, err := os.ReadFile(l.Path(user, doc, index))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("section %d of %s was not downloaded: %w", index, doc, err)
	}
	return body, err
}

// DeleteSection removes the local copy of a section. A missing file is not
// an error.
func (l *LocalFiles) DeleteSection(user, doc string, index int) error {
	err := os.Remove(l.Path(user, doc, index))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
