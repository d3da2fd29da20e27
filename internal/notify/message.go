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

package notify

import (
	"fmt"
	"net/netip"
	"time"

	"turing/internal/protocol"
)

// Kind classifies a group message.
type Kind string

const (
	KindChat   Kind = "chat"
	KindJoined Kind = "joined"
	KindLeft   Kind = "left"
)

// Message is one event broadcast to a document group.
type Message struct {
	Kind  Kind
	Group netip.Addr
	From  string
	Text  string
	At    time.Time
}

// String renders the message for a terminal.
func (m Message) String() string {
	ts := m.At.Local().Format("15:04:05")
	switch m.Kind {
	case KindJoined:
		return fmt.Sprintf("[%s] %s started editing", ts, m.From)
	case KindLeft:
		return fmt.Sprintf("[%s] %s stopped editing", ts, m.From)
	default:
		return fmt.Sprintf("[%s] %s: %s", ts, m.From, m.Text)
	}
}

// Encode serialises the message as protocol fields.
func (m Message) Encode() []byte {
	e := protocol.NewEncoder()
	m.EncodeTo(e)
	return e.Bytes()
}

// EncodeTo appends the message fields to e.
func (m Message) EncodeTo(e *protocol.Encoder) {
	group := ""
	if m.Group.IsValid() {
		group = m.Group.String()
	}
	e.WriteString(string(m.Kind))
	e.WriteString(group)
	e.WriteString(m.From)
	e.WriteString(m.Text)
	e.WriteInt64(m.At.UnixNano())
}

// DecodeMessage parses a message produced by Encode.
func DecodeMessage(b []byte) (Message, error) {
	return ReadMessage(protocol.NewDecoder(b))
}

// ReadMessage reads one message from d.
func ReadMessage(d *protocol.Decoder) (Message, error) {
	var m Message
	fields := make([]string, 4)
	for i := range fields {
		s, err := d.ReadString()
		if err != nil {
			return Message{}, fmt.Errorf("decode message: %w", err)
		}
		fields[i] = s
	}
	nanos, err := d.ReadInt64()
	if err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	m.Kind = Kind(fields[0])
	if fields[1] != "" {
		if m.Group, err = netip.ParseAddr(fields[1]); err != nil {
			return Message{}, fmt.Errorf("decode message group: %w", err)
		}
	}
	m.From = fields[2]
	m.Text = fields[3]
	m.At = time.Unix(0, nanos)
	return m, nil
}
