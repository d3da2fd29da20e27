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
Package compression compresses section bodies before the storage layer
writes them.

Supported Algorithms:
=====================

 1. gzip: portable, moderate ratio
 2. LZ4: fast compression and decompression
 3. Snappy: very fast, lower ratio
 4. Zstd: best ratio

Envelope:
=========

Every compressed value starts with one byte naming the algorithm used,
followed by the algorithm's own output. Values smaller than MinSize are
stored with the "none" marker, so a store can always be read back
regardless of the algorithm configured at read time.
*/
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm byte

const (
	AlgorithmNone Algorithm = iota
	AlgorithmGzip
	AlgorithmLZ4
	AlgorithmSnappy
	AlgorithmZstd
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses a compression algorithm from string.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return AlgorithmNone, nil
	case "gzip":
		return AlgorithmGzip, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "snappy":
		return AlgorithmSnappy, nil
	case "zstd":
		return AlgorithmZstd, nil
	default:
		return AlgorithmNone, fmt.Errorf("unknown compression algorithm: %s", s)
	}
}

// Level represents compression level.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 5
	LevelBest    Level = 9
)

// Config holds compression configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
	MinSize   int // values below this size are stored uncompressed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmNone,
		Level:     LevelDefault,
		MinSize:   256,
	}
}

// Errors
var (
	ErrInvalidHeader    = errors.New("invalid compression header")
	ErrUnsupportedAlgo  = errors.New("unsupported compression algorithm")
	ErrDecompressFailed = errors.New("decompression failed")
)

// Compressor compresses and decompresses values. It is safe for concurrent
// use.
type Compressor struct {
	config     Config
	bufferPool sync.Pool

	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
}

// NewCompressor creates a new compressor.
func NewCompressor(config Config) *Compressor {
	return &Compressor{
		config: config,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Algorithm returns the configured algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.config.Algorithm
}

// Compress returns data wrapped in the algorithm envelope.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	algo := c.config.Algorithm
	if len(data) < c.config.MinSize {
		algo = AlgorithmNone
	}

	var payload []byte
	var err error
	switch algo {
	case AlgorithmNone:
		payload = data
	case AlgorithmGzip:
		payload, err = c.gzipCompress(data)
	case AlgorithmLZ4:
		payload, err = c.lz4Compress(data)
	case AlgorithmSnappy:
		payload = snappy.Encode(nil, data)
	case AlgorithmZstd:
		if err = c.initZstd(); err == nil {
			payload = c.zstdEnc.EncodeAll(data, nil)
		}
	default:
		return nil, ErrUnsupportedAlgo
	}
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", algo, err)
	}

	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(algo))
	return append(out, payload...), nil
}

// Decompress reverses Compress. The algorithm is read from the envelope.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, ErrInvalidHeader
	}
	algo, payload := Algorithm(data[0]), data[1:]

	var out []byte
	var err error
	switch algo {
	case AlgorithmNone:
		out = append([]byte(nil), payload...)
	case AlgorithmGzip:
		var r *gzip.Reader
		if r, err = gzip.NewReader(bytes.NewReader(payload)); err == nil {
			out, err = io.ReadAll(r)
			r.Close()
		}
	case AlgorithmLZ4:
		out, err = io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
	case AlgorithmSnappy:
		out, err = snappy.Decode(nil, payload)
	case AlgorithmZstd:
		if err = c.initZstd(); err == nil {
			out, err = c.zstdDec.DecodeAll(payload, nil)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgo, data[0])
	}
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecompressFailed, algo, err)
	}
	return out, nil
}

func (c *Compressor) gzipCompress(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w, err := gzip.NewWriterLevel(buf, int(c.config.Level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

func (c *Compressor) lz4Compress(data []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	w := lz4.NewWriter(buf)
	if c.config.Level >= LevelBest {
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

func (c *Compressor) initZstd() error {
	c.zstdOnce.Do(func() {
		level := zstd.EncoderLevelFromZstd(int(c.config.Level))
		c.zstdEnc, c.zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if c.zstdErr != nil {
			return
		}
		c.zstdDec, c.zstdErr = zstd.NewReader(nil)
	})
	return c.zstdErr
}
