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
Package protocol implements the Turing binary wire protocol.

Protocol Overview:
==================

Clients and the server exchange frames over a TCP stream. Every frame is a
fixed 8-byte header followed by a variable-length body. The same framing is
used for requests, responses, the out-of-band notification channel and the
registration side channel.

Frame Format:
=============

	+--------+--------+--------+--------+--------+--------+--------+--------+...
	|           Tag (4B)                |         Body Length (4B)          | Body...
	+--------+--------+--------+--------+--------+--------+--------+--------+...

	- Tag (4 bytes): big-endian int32, a Command on requests and a Status
	  on responses
	- Body Length (4 bytes): big-endian int32, number of body bytes
	- Body: UTF-8 payload, usually a sequence of length-prefixed fields

Body Encoding:
==============

Request arguments are a sequence of fields, each encoded as a big-endian
uint32 length followed by that many bytes. An empty body carries no
arguments. Responses reuse the same field encoding for structured data.

The SECTION_UPDATE control frame is the exception: its body is the raw text
of the section. A zero length body means the section becomes empty.

Numbering:
==========

Command and Status values are part of the wire format and are assigned
explicitly. New variants get new numbers; existing numbers never move.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol constants.
const (
	// HeaderSize is the size of a frame header in bytes.
	HeaderSize = 8

	// MaxFrameSize bounds the body of a single frame (16 MB).
	MaxFrameSize = 16 * 1024 * 1024

	// Version is the protocol version advertised by servers.
	Version = "v1.0.0"
)

// Common errors.
var (
	ErrPeerClosed     = errors.New("peer closed the connection")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrNegativeLength = errors.New("negative frame length")
)

// Header represents a frame header.
type Header struct {
	Tag    int32
	Length int32
}

// Frame represents a complete protocol frame.
type Frame struct {
	Tag  int32
	Body []byte
}

// Command returns the frame tag interpreted as a request command.
func (f *Frame) Command() Command {
	return Command(f.Tag)
}

// Status returns the frame tag interpreted as a response status.
func (f *Frame) Status() Status {
	return Status(f.Tag)
}

// EncodeHeader encodes a tag and body length into an 8-byte header.
func EncodeHeader(tag, length int32) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(tag))
	binary.BigEndian.PutUint32(buf[4:8], uint32(length))
	return buf
}

// DecodeHeader decodes an 8-byte header. It performs no validation so that
// every int32 pair round-trips; use Validate before trusting the length.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("short header: %d bytes", len(buf))
	}
	return Header{
		Tag:    int32(binary.BigEndian.Uint32(buf[0:4])),
		Length: int32(binary.BigEndian.Uint32(buf[4:8])),
	}, nil
}

// Validate checks that the header announces a body the server will accept.
func (h Header) Validate() error {
	if h.Length < 0 {
		return ErrNegativeLength
	}
	if h.Length > MaxFrameSize {
		return ErrFrameTooLarge
	}
	return nil
}

// ReadExact reads exactly n bytes from r. A stream that ends before n bytes
// have been collected is reported as ErrPeerClosed.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read %d of %d bytes: %w", got, n, ErrPeerClosed)
		}
		return nil, fmt.Errorf("read %d of %d bytes: %w", got, n, err)
	}
	return buf, nil
}

// WriteExact writes all of p to w, looping over short writes.
func WriteExact(w io.Writer, p []byte) error {
	for written := 0; written < len(p); {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return fmt.Errorf("wrote %d of %d bytes: %w", written, len(p), err)
		}
		if n == 0 {
			return fmt.Errorf("wrote %d of %d bytes: %w", written, len(p), io.ErrShortWrite)
		}
	}
	return nil
}

// ReadHeader reads and validates a frame header.
func ReadHeader(r io.Reader) (Header, error) {
	buf, err := ReadExact(r, HeaderSize)
	if err != nil {
		return Header{}, err
	}
	h, _ := DecodeHeader(buf)
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadFrame reads a complete frame from the reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	f := &Frame{Tag: h.Tag}
	if h.Length > 0 {
		if f.Body, err = ReadExact(r, int(h.Length)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// AppendFrame appends the encoded frame to dst and returns the result.
func AppendFrame(dst []byte, tag int32, body []byte) []byte {
	h := EncodeHeader(tag, int32(len(body)))
	dst = append(dst, h[:]...)
	return append(dst, body...)
}

// WriteFrame writes a complete frame in a single write call so that
// concurrent writers guarded by the same lock never interleave partial
// frames.
func WriteFrame(w io.Writer, tag int32, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	return WriteExact(w, AppendFrame(make([]byte, 0, HeaderSize+len(body)), tag, body))
}

// WriteRequest encodes args as fields and writes a request frame.
func WriteRequest(w io.Writer, cmd Command, args ...string) error {
	return WriteFrame(w, int32(cmd), EncodeArgs(args...))
}
