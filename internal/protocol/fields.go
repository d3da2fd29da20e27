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

package protocol

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// ErrShortBody is returned when a body ends in the middle of a field.
var ErrShortBody = errors.New("body ends inside a field")

// Encoder builds a field-encoded body.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// WriteString appends a length-prefixed string field.
func (e *Encoder) WriteString(s string) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteBytes appends a length-prefixed byte field.
func (e *Encoder) WriteBytes(p []byte) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(p)))
	e.buf = append(e.buf, p...)
}

// WriteUint32 appends a fixed 4-byte integer.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

// WriteInt64 appends a fixed 8-byte integer.
func (e *Encoder) WriteInt64(v int64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, uint64(v))
}

// Bytes returns the encoded body.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Decoder reads fields from a body.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder creates a decoder over body.
func NewDecoder(body []byte) *Decoder {
	return &Decoder{buf: body}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// ReadUint32 reads a fixed 4-byte integer.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrShortBody
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

// ReadInt64 reads a fixed 8-byte integer.
func (d *Decoder) ReadInt64() (int64, error) {
	if d.Remaining() < 8 {
		return 0, ErrShortBody
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return int64(v), nil
}

// ReadBytes reads a length-prefixed byte field. The returned slice aliases
// the body.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(d.Remaining()) {
		return nil, ErrShortBody
	}
	p := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return p, nil
}

// ReadString reads a length-prefixed string field.
func (d *Decoder) ReadString() (string, error) {
	p, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// EncodeArgs encodes request arguments as a field sequence.
func EncodeArgs(args ...string) []byte {
	if len(args) == 0 {
		return nil
	}
	e := NewEncoder()
	for _, a := range args {
		e.WriteString(a)
	}
	return e.Bytes()
}

// DecodeArgs splits a request body into its arguments.
func DecodeArgs(body []byte) ([]string, error) {
	d := NewDecoder(body)
	var args []string
	for d.Remaining() > 0 {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		args = append(args, s)
	}
	return args, nil
}

// WriteStrings appends a counted list of strings.
func (e *Encoder) WriteStrings(items []string) {
	e.WriteUint32(uint32(len(items)))
	for _, s := range items {
		e.WriteString(s)
	}
}

// EncodeStrings encodes a counted list of strings.
func EncodeStrings(items []string) []byte {
	e := NewEncoder()
	e.WriteStrings(items)
	return e.Bytes()
}

// DecodeStrings reads a counted list of strings.
func DecodeStrings(d *Decoder) ([]string, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int(n) > d.Remaining()/4 {
		return nil, ErrShortBody
	}
	items := make([]string, 0, n)
	for range n {
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}

// FormatIndex renders a section index as a request argument.
func FormatIndex(i int) string {
	return strconv.Itoa(i)
}
