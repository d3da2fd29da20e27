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

// Framer accumulates bytes from a non-blocking reader and cuts them into
// frames. Nothing is consumed until Discard is called, so a caller can look
// ahead for a multi-frame request and wait for more bytes if it is not
// complete yet.
type Framer struct {
	buf []byte
}

// Write appends p to the buffered bytes. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes not yet discarded.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// PeekAt returns the frame starting at off and its encoded size. ok is
// false when the frame is not complete yet. A header that can never become
// valid is returned as an error.
func (f *Framer) PeekAt(off int) (frame Frame, size int, ok bool, err error) {
	if len(f.buf)-off < HeaderSize {
		return Frame{}, 0, false, nil
	}
	h, _ := DecodeHeader(f.buf[off : off+HeaderSize])
	if err := h.Validate(); err != nil {
		return Frame{}, 0, false, err
	}
	size = HeaderSize + int(h.Length)
	if len(f.buf)-off < size {
		return Frame{}, 0, false, nil
	}
	body := make([]byte, h.Length)
	copy(body, f.buf[off+HeaderSize:off+size])
	return Frame{Tag: h.Tag, Body: body}, size, true, nil
}

// Discard drops the first n buffered bytes.
func (f *Framer) Discard(n int) {
	if n >= len(f.buf) {
		f.buf = f.buf[:0]
		return
	}
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

// Reset drops all buffered bytes and releases the buffer.
func (f *Framer) Reset() {
	f.buf = nil
}
