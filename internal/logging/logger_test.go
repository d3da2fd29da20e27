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

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"strings"
	"testing"
	"time"
)

// capture redirects every logger into a buffer for the duration of a test.
func capture(t *testing.T, lvl Level, asJSON bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevLevel, prevJSON, prevClock := GlobalLevel(), jsonMode.Load(), timestamp
	SetGlobalOutput(&buf)
	SetGlobalLevel(lvl)
	SetJSONMode(asJSON)
	timestamp = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		SetGlobalOutput(os.Stderr)
		SetGlobalLevel(prevLevel)
		SetJSONMode(prevJSON)
		timestamp = prevClock
	})
	return &buf
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, lvl := range []Level{DEBUG, INFO, WARN, ERROR} {
		if got := ParseLevel(strings.ToLower(lvl.String())); got != lvl {
			t.Errorf("ParseLevel(%q) = %v, want %v", lvl.String(), got, lvl)
		}
	}
	tests := map[string]Level{
		"warning": WARN,
		" Error ": ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if Level(42).String() != "UNKNOWN" {
		t.Errorf("unexpected name for an unknown level: %s", Level(42))
	}
}

func TestTextLine(t *testing.T) {
	buf := capture(t, DEBUG, false)

	NewLogger("reactor").Info("connection accepted", "conn", 7, "remote", "10.0.0.2:4000")

	want := "2026-03-01T12:00:00Z [INFO ] [reactor] connection accepted conn=7 remote=10.0.0.2:4000\n"
	if got := buf.String(); got != want {
		t.Errorf("text line:\n got %q\nwant %q", got, want)
	}
}

func TestJSONLine(t *testing.T) {
	buf := capture(t, DEBUG, true)

	group := netip.MustParseAddr("239.1.2.3")
	NewLogger("notify").Warn("publish failed", "group", group, "error", errors.New("no route"))

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Component != "notify" || entry.Message != "publish failed" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["group"] != "239.1.2.3" || entry.Fields["error"] != "no route" {
		t.Errorf("unexpected fields: %v", entry.Fields)
	}
	if entry.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp: %s", entry.Timestamp)
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		min  Level
		want []string
	}{
		{DEBUG, []string{"d", "i", "w", "e"}},
		{INFO, []string{"i", "w", "e"}},
		{WARN, []string{"w", "e"}},
		{ERROR, []string{"e"}},
	}
	for _, tt := range tests {
		t.Run(tt.min.String(), func(t *testing.T) {
			buf := capture(t, tt.min, false)
			l := NewLogger("engine")
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(tt.want), buf.String())
			}
			for i, msg := range tt.want {
				if !strings.HasSuffix(lines[i], "] "+msg) {
					t.Errorf("line %d = %q, want message %q", i, lines[i], msg)
				}
			}
		})
	}
}

func TestWithKeepsParentFields(t *testing.T) {
	buf := capture(t, DEBUG, false)

	base := NewLogger("server").With("conn", 3)
	child := base.With("user", "alice")
	child.Info("login")
	base.Info("closed")

	out := buf.String()
	if !strings.Contains(out, "login conn=3 user=alice") {
		t.Errorf("child fields missing: %s", out)
	}
	if strings.Contains(out, "closed conn=3 user=alice") {
		t.Errorf("child fields leaked into the parent: %s", out)
	}
}

func TestOddKeyValues(t *testing.T) {
	buf := capture(t, DEBUG, false)

	NewLogger("engine").Warn("section lock released", "doc", "notes", "section")

	out := buf.String()
	if !strings.Contains(out, "doc=notes") || !strings.Contains(out, "section=MISSING") {
		t.Errorf("unexpected output: %s", out)
	}
}
