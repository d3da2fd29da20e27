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

package compression

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestCompression(t *testing.T) {
	config := DefaultConfig()
	config.MinSize = 0 // compress everything

	testData := []byte(strings.Repeat("the quick brown fox edits section three of the report. ", 40))

	algorithms := []Algorithm{
		AlgorithmNone,
		AlgorithmGzip,
		AlgorithmLZ4,
		AlgorithmSnappy,
		AlgorithmZstd,
	}

	for _, algo := range algorithms {
		t.Run(algo.String(), func(t *testing.T) {
			config.Algorithm = algo
			compressor := NewCompressor(config)

			compressed, err := compressor.Compress(testData)
			if err != nil {
				t.Fatalf("failed to compress with %s: %v", algo, err)
			}
			if Algorithm(compressed[0]) != algo {
				t.Errorf("envelope marker = %d, want %d", compressed[0], algo)
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("failed to decompress with %s: %v", algo, err)
			}
			if !bytes.Equal(testData, decompressed) {
				t.Errorf("decompressed data does not match original for %s", algo)
			}
		})
	}
}

func TestSmallValuesStoredRaw(t *testing.T) {
	config := DefaultConfig()
	config.Algorithm = AlgorithmZstd
	config.MinSize = 64
	c := NewCompressor(config)

	out, err := c.Compress([]byte("short"))
	if err != nil {
		t.Fatal(err)
	}
	if Algorithm(out[0]) != AlgorithmNone {
		t.Errorf("expected raw marker for small value, got %s", Algorithm(out[0]))
	}
	back, err := c.Decompress(out)
	if err != nil || string(back) != "short" {
		t.Errorf("got %q, %v", back, err)
	}
}

func TestDecompressIndependentOfConfig(t *testing.T) {
	writer := NewCompressor(Config{Algorithm: AlgorithmSnappy, Level: LevelDefault})
	reader := NewCompressor(Config{Algorithm: AlgorithmGzip, Level: LevelDefault})

	data := []byte("written with snappy, read by a gzip-configured compressor")
	out, err := writer.Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	back, err := reader.Decompress(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, data) {
		t.Errorf("got %q", back)
	}
}

func TestDecompressErrors(t *testing.T) {
	c := NewCompressor(DefaultConfig())

	if _, err := c.Decompress(nil); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got %v", err)
	}
	if _, err := c.Decompress([]byte{200, 1, 2}); !errors.Is(err, ErrUnsupportedAlgo) {
		t.Errorf("expected ErrUnsupportedAlgo, got %v", err)
	}
	if _, err := c.Decompress([]byte{byte(AlgorithmGzip), 1, 2, 3}); !errors.Is(err, ErrDecompressFailed) {
		t.Errorf("expected ErrDecompressFailed, got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", AlgorithmNone, false},
		{"none", AlgorithmNone, false},
		{"GZIP", AlgorithmGzip, false},
		{"lz4", AlgorithmLZ4, false},
		{"snappy", AlgorithmSnappy, false},
		{"zstd", AlgorithmZstd, false},
		{"brotli", AlgorithmNone, true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
