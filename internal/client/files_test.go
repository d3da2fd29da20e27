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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFilesLayout(t *testing.T) {
	root := t.TempDir()
	l := NewLocalFiles(root)

	assert.Equal(t, filepath.Join(root, "alice", "report", "2.txt"), l.Path("alice", "report", 2))
	// Names never escape their directory.
	assert.Equal(t, filepath.Join(root, "alice", "..%2Fetc"), l.Dir("alice", "../etc"))
	assert.Equal(t, filepath.Join(root, "alice", "%2E%2E"), l.Dir("alice", ".."))
	assert.Equal(t, filepath.Join(root, "%2E%2E", "%2E"), l.Dir("..", "."))
}

func TestLocalFilesSections(t *testing.T) {
	l := NewLocalFiles(t.TempDir())

	_, err := l.ReadSection("alice", "doc", 0)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, l.WriteSection("alice", "doc", 0, []byte("first")))
	require.NoError(t, l.WriteSection("alice", "doc", 0, []byte("second")))
	body, err := l.ReadSection("alice", "doc", 0)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))

	entries, err := os.ReadDir(l.Dir("alice", "doc"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")

	require.NoError(t, l.DeleteSection("alice", "doc", 0))
	require.NoError(t, l.DeleteSection("alice", "doc", 0))
	_, err = l.ReadSection("alice", "doc", 0)
	assert.Error(t, err)
}
