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
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestEncodeDecodeHeader(t *testing.T) {
	tests := []struct {
		name   string
		tag    int32
		length int32
	}{
		{"zero", 0, 0},
		{"login request", int32(CmdLogin), 12},
		{"negative tag", -1, 5},
		{"negative length", 7, -42},
		{"max values", math.MaxInt32, math.MaxInt32},
		{"min values", math.MinInt32, math.MinInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := EncodeHeader(tt.tag, tt.length)
			h, err := DecodeHeader(buf[:])
			if err != nil {
				t.Fatalf("DecodeHeader failed: %v", err)
			}
			if h.Tag != tt.tag {
				t.Errorf("Tag mismatch: got %d, want %d", h.Tag, tt.tag)
			}
			if h.Length != tt.length {
				t.Errorf("Length mismatch: got %d, want %d", h.Length, tt.length)
			}
		})
	}
}

func TestHeaderRoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		tag := int32(r.Uint32())
		length := int32(r.Uint32())
		buf := EncodeHeader(tag, length)
		h, _ := DecodeHeader(buf[:])
		if h.Tag != tag || h.Length != length {
			t.Fatalf("round trip of (%d, %d) gave (%d, %d)", tag, length, h.Tag, h.Length)
		}
	}
}

func TestDecodeShortHeader(t *testing.T) {
	if _, err := DecodeHeader([]byte{0, 0, 0}); err == nil {
		t.Error("Expected error for short header")
	}
}

func TestWriteAndReadFrame(t *testing.T) {
	body := EncodeArgs("doc one", "3")

	buf := new(bytes.Buffer)
	if err := WriteFrame(buf, int32(CmdCreate), body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Errorf("Expected %d bytes on the wire, got %d", HeaderSize+len(body), buf.Len())
	}

	f, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Command() != CmdCreate {
		t.Errorf("Command mismatch: got %v, want %v", f.Command(), CmdCreate)
	}
	if !bytes.Equal(f.Body, body) {
		t.Errorf("Body mismatch: got %x, want %x", f.Body, body)
	}
}

func TestEmptyBody(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteFrame(buf, int32(StatusOK), nil); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	f, err := ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Status() != StatusOK {
		t.Errorf("Status mismatch: got %v", f.Status())
	}
	if len(f.Body) != 0 {
		t.Errorf("Expected empty body, got %d bytes", len(f.Body))
	}
}

func TestReadHeaderRejectsBadLengths(t *testing.T) {
	tests := []struct {
		name    string
		length  int32
		wantErr error
	}{
		{"negative", -1, ErrNegativeLength},
		{"too large", MaxFrameSize + 1, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := EncodeHeader(int32(CmdLogin), tt.length)
			_, err := ReadHeader(bytes.NewReader(h[:]))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadExactPeerClosed(t *testing.T) {
	_, err := ReadExact(bytes.NewReader([]byte{1, 2, 3}), 8)
	if !errors.Is(err, ErrPeerClosed) {
		t.Errorf("Expected ErrPeerClosed, got %v", err)
	}

	_, err = ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, ErrPeerClosed) {
		t.Errorf("Expected ErrPeerClosed on empty stream, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	buf := new(bytes.Buffer)
	WriteFrame(buf, int32(CmdSend), []byte("hello world"))
	truncated := buf.Bytes()[:buf.Len()-3]

	if _, err := ReadFrame(bytes.NewReader(truncated)); !errors.Is(err, ErrPeerClosed) {
		t.Errorf("Expected ErrPeerClosed, got %v", err)
	}
}

// shortWriter accepts at most two bytes per call.
type shortWriter struct {
	bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > 2 {
		p = p[:2]
	}
	return w.Buffer.Write(p)
}

func TestWriteExactLoopsOnShortWrites(t *testing.T) {
	w := &shortWriter{}
	payload := []byte("section content")
	if err := WriteExact(w, payload); err != nil {
		t.Fatalf("WriteExact failed: %v", err)
	}
	if !bytes.Equal(w.Bytes(), payload) {
		t.Errorf("Payload mismatch: got %q", w.Bytes())
	}
}

func TestStatusMessages(t *testing.T) {
	for _, s := range Statuses() {
		if msg := s.Message("x"); msg == "" {
			t.Errorf("Status %v has an empty message", s)
		}
	}

	if got := StatusSectionAlreadyInEditingMode.Message("bob"); got != "section is being edited by bob" {
		t.Errorf("Unexpected message: %q", got)
	}
	if got := StatusOK.Message("ignored"); got != "done" {
		t.Errorf("Unexpected message: %q", got)
	}
	if Status(999).Known() {
		t.Error("Status 999 should not be known")
	}
}

func TestStatusNumbersAreStable(t *testing.T) {
	tests := []struct {
		status Status
		value  int32
	}{
		{StatusOK, 0},
		{StatusUsernameAlreadyTaken, 1},
		{StatusDocumentAlreadyExists, 10},
		{StatusUserNotAllowedToEdit, 20},
		{StatusSendFailure, 30},
		{StatusInvalidArguments, 40},
		{StatusInvite, 60},
	}

	for _, tt := range tests {
		if int32(tt.status) != tt.value {
			t.Errorf("%v = %d, want %d", tt.status, int32(tt.status), tt.value)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		verb string
		want Command
		ok   bool
	}{
		{"login", CmdLogin, true},
		{"LOGIN", CmdLogin, true},
		{"end-edit", CmdEndEdit, true},
		{"end_edit", CmdEndEdit, true},
		{"show-document", CmdShowDocument, true},
		{"bogus", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseCommand(tt.verb)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, %v; want %v, %v", tt.verb, got, ok, tt.want, tt.ok)
		}
	}
}
