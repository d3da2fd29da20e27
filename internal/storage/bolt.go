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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"turing/internal/compression"
)

// BoltFile is the database file name inside the data directory.
const BoltFile = "sections.bolt"

// BoltStore keeps sections in a bbolt file, one bucket per document keyed
// by the big-endian section index. The file is recreated on open.
type BoltStore struct {
	db         *bolt.DB
	compressor *compression.Compressor
}

// NewBoltStore recreates the database file under dataDir.
func NewBoltStore(dataDir string, c *compression.Compressor) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, BoltFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reset %s: %w", path, err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &BoltStore{db: db, compressor: c}, nil
}

func bucketName(doc string) []byte {
	return []byte("doc:" + doc)
}

func sectionKey(index int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(index))
	return k[:]
}

func (b *BoltStore) CreateDocument(doc string, sections int) error {
	empty, err := b.compressor.Compress(nil)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(doc)) != nil {
			return fmt.Errorf("%w: %s", ErrDocumentExists, doc)
		}
		bucket, err := tx.CreateBucket(bucketName(doc))
		if err != nil {
			return err
		}
		for i := 0; i < sections; i++ {
			if err := bucket.Put(sectionKey(i), empty); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) ReadSection(doc string, index int) ([]byte, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(doc))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
		}
		v := bucket.Get(sectionKey(index))
		if v == nil || index < 0 {
			return fmt.Errorf("%w: %s#%d", ErrSectionNotFound, doc, index)
		}
		// v is only valid inside the transaction.
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.compressor.Decompress(raw)
}

func (b *BoltStore) WriteSection(doc string, index int, body []byte) error {
	data, err := b.compressor.Compress(body)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(doc))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc)
		}
		if index < 0 || bucket.Get(sectionKey(index)) == nil {
			return fmt.Errorf("%w: %s#%d", ErrSectionNotFound, doc, index)
		}
		return bucket.Put(sectionKey(index), data)
	})
}

func (b *BoltStore) DeleteSection(doc string, index int) error {
	return b.WriteSection(doc, index, nil)
}

func (b *BoltStore) Stats() Stats {
	s := Stats{Backend: BackendBolt}
	_ = b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, bucket *bolt.Bucket) error {
			s.Documents++
			return bucket.ForEach(func(_, v []byte) error {
				s.Sections++
				s.DataSize += int64(len(v))
				return nil
			})
		})
	})
	return s
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
