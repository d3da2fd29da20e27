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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turing/internal/compression"
)

// setupStores returns one store of every backend, closed on cleanup.
func setupStores(t *testing.T) map[Backend]Store {
	t.Helper()
	comp := compression.Config{Algorithm: compression.AlgorithmZstd, Level: compression.LevelDefault, MinSize: 16}

	stores := make(map[Backend]Store)
	for _, b := range []Backend{BackendMemory, BackendDisk, BackendBolt} {
		s, err := Open(Config{Backend: b, DataDir: t.TempDir(), Compression: comp})
		require.NoError(t, err, "open %s", b)
		t.Cleanup(func() { s.Close() })
		stores[b] = s
	}
	return stores
}

func TestStoreContract(t *testing.T) {
	for backend, s := range setupStores(t) {
		t.Run(string(backend), func(t *testing.T) {
			require.NoError(t, s.CreateDocument("quarterly report", 3))
			assert.ErrorIs(t, s.CreateDocument("quarterly report", 2), ErrDocumentExists)

			body, err := s.ReadSection("quarterly report", 0)
			require.NoError(t, err)
			assert.Empty(t, body, "new sections are empty")

			text := []byte(strings.Repeat("revenue grew in every region. ", 20))
			require.NoError(t, s.WriteSection("quarterly report", 1, text))

			got, err := s.ReadSection("quarterly report", 1)
			require.NoError(t, err)
			assert.Equal(t, text, got)

			require.NoError(t, s.WriteSection("quarterly report", 1, []byte("short")))
			got, err = s.ReadSection("quarterly report", 1)
			require.NoError(t, err)
			assert.Equal(t, "short", string(got))

			require.NoError(t, s.DeleteSection("quarterly report", 1))
			got, err = s.ReadSection("quarterly report", 1)
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = s.ReadSection("quarterly report", 3)
			assert.ErrorIs(t, err, ErrSectionNotFound)
			_, err = s.ReadSection("quarterly report", -1)
			assert.ErrorIs(t, err, ErrSectionNotFound)
			assert.ErrorIs(t, s.WriteSection("quarterly report", 7, nil), ErrSectionNotFound)
			_, err = s.ReadSection("missing", 0)
			assert.ErrorIs(t, err, ErrDocumentNotFound)
			assert.ErrorIs(t, s.WriteSection("missing", 0, nil), ErrDocumentNotFound)

			stats := s.Stats()
			assert.Equal(t, backend, stats.Backend)
			assert.Equal(t, 1, stats.Documents)
			assert.Equal(t, 3, stats.Sections)
		})
	}
}

func TestStoreCopiesValues(t *testing.T) {
	for backend, s := range setupStores(t) {
		t.Run(string(backend), func(t *testing.T) {
			require.NoError(t, s.CreateDocument("doc", 1))
			buf := []byte("original")
			require.NoError(t, s.WriteSection("doc", 0, buf))
			buf[0] = 'X'

			got, err := s.ReadSection("doc", 0)
			require.NoError(t, err)
			assert.Equal(t, "original", string(got))
			got[0] = 'Y'

			again, _ := s.ReadSection("doc", 0)
			assert.Equal(t, "original", string(again))
		})
	}
}

func TestStoreConcurrentSections(t *testing.T) {
	for backend, s := range setupStores(t) {
		t.Run(string(backend), func(t *testing.T) {
			const n = 8
			require.NoError(t, s.CreateDocument("doc", n))

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					for round := 0; round < 10; round++ {
						assert.NoError(t, s.WriteSection("doc", i, []byte(strings.Repeat("x", i+round))))
					}
				}(i)
			}
			wg.Wait()

			for i := 0; i < n; i++ {
				got, err := s.ReadSection("doc", i)
				require.NoError(t, err)
				assert.Len(t, got, i+9)
			}
		})
	}
}

func TestDiskStoreLayout(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "sections", "old", "0.section")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0644))

	s, err := NewDiskStore(dir, compression.NewCompressor(compression.DefaultConfig()))
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "previous contents must be wiped")

	require.NoError(t, s.CreateDocument("a/b c", 2))
	_, err = os.Stat(filepath.Join(dir, "sections", "a%2Fb%20c", "1.section"))
	assert.NoError(t, err, "document names are escaped into one directory")
}

func TestDiskStoreContainsDotNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir, compression.NewCompressor(compression.DefaultConfig()))
	require.NoError(t, err)
	defer s.Close()

	for _, doc := range []string{".", ".."} {
		require.NoError(t, s.CreateDocument(doc, 1))
		require.NoError(t, s.WriteSection(doc, 0, []byte("text of "+doc)))
	}

	root := filepath.Join(dir, "sections")
	err = filepath.WalkDir(dir, func(path string, e os.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		assert.True(t, strings.HasPrefix(path, root+string(filepath.Separator)), "%s written outside %s", path, root)
		return nil
	})
	require.NoError(t, err)

	for _, doc := range []string{".", ".."} {
		body, err := s.ReadSection(doc, 0)
		require.NoError(t, err)
		assert.Equal(t, "text of "+doc, string(body))
	}
	_, err = os.Stat(filepath.Join(root, "%2E%2E", "0.section"))
	assert.NoError(t, err)
}

func TestBoltStoreRecreated(t *testing.T) {
	dir := t.TempDir()
	c := compression.NewCompressor(compression.DefaultConfig())

	first, err := NewBoltStore(dir, c)
	require.NoError(t, err)
	require.NoError(t, first.CreateDocument("doc", 1))
	require.NoError(t, first.Close())

	second, err := NewBoltStore(dir, c)
	require.NoError(t, err)
	defer second.Close()
	_, err = second.ReadSection("doc", 0)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "tape"})
	assert.ErrorIs(t, err, ErrBackendNotSupported)
}
