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
Package logging provides structured, leveled logging for Turing.

Each component creates its own Logger with NewLogger("reactor"),
NewLogger("engine"), ... Output destination, minimum level and format are
process-wide settings so that a config reload can change them for every
component at once.

Output Formats:
===============

Text (default):

	2026-01-02T15:04:05Z [INFO ] [reactor] connection accepted conn=3 addr=127.0.0.1:5512

JSON (one object per line):

	{"timestamp":"...","level":"INFO","component":"reactor","message":"connection accepted","fields":{"conn":"3"}}

Key/value pairs are passed as alternating arguments. A trailing key
without a value is logged with the value "MISSING".
*/
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a log severity.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Entry is the JSON representation of a log line.
type Entry struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Component string            `json:"component"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

var (
	outputMu  sync.Mutex
	output    io.Writer = os.Stderr
	level     atomic.Int32
	jsonMode  atomic.Bool
	timestamp = func() time.Time { return time.Now().UTC() }
)

func init() {
	level.Store(int32(INFO))
}

// SetGlobalOutput sets the destination of every logger.
func SetGlobalOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

// SetGlobalLevel sets the minimum level written by every logger.
func SetGlobalLevel(l Level) {
	level.Store(int32(l))
}

// GlobalLevel returns the current minimum level.
func GlobalLevel() Level {
	return Level(level.Load())
}

// SetJSONMode switches every logger between text and JSON output.
func SetJSONMode(enabled bool) {
	jsonMode.Store(enabled)
}

// Logger writes log lines for one component.
type Logger struct {
	component string
	fields    []string
}

// NewLogger creates a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// With returns a logger that adds the given key/value pairs to every line.
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := make([]string, 0, len(l.fields)+len(kv)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, pairs(kv)...)
	return &Logger{component: l.component, fields: fields}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(DEBUG, msg, kv) }

// Info logs at INFO level.
func (l *Logger) Info(msg string, kv ...interface{}) { l.log(INFO, msg, kv) }

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.log(WARN, msg, kv) }

// Error logs at ERROR level.
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(ERROR, msg, kv) }

func (l *Logger) log(lvl Level, msg string, kv []interface{}) {
	if lvl < GlobalLevel() {
		return
	}

	fields := append(append([]string(nil), l.fields...), pairs(kv)...)
	ts := timestamp().Format(time.RFC3339)

	var line []byte
	if jsonMode.Load() {
		entry := Entry{
			Timestamp: ts,
			Level:     lvl.String(),
			Component: l.component,
			Message:   msg,
		}
		if len(fields) > 0 {
			entry.Fields = make(map[string]string, len(fields)/2)
			for i := 0; i+1 < len(fields); i += 2 {
				entry.Fields[fields[i]] = fields[i+1]
			}
		}
		line, _ = json.Marshal(entry)
		line = append(line, '\n')
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "%s [%-5s] [%s] %s", ts, lvl.String(), l.component, msg)
		for i := 0; i+1 < len(fields); i += 2 {
			fmt.Fprintf(&b, " %s=%s", fields[i], fields[i+1])
		}
		b.WriteByte('\n')
		line = []byte(b.String())
	}

	outputMu.Lock()
	output.Write(line)
	outputMu.Unlock()
}

// pairs flattens alternating key/value arguments into strings.
func pairs(kv []interface{}) []string {
	out := make([]string, 0, len(kv)+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			out = append(out, key, "MISSING")
			break
		}
		out = append(out, key, formatValue(kv[i+1]))
	}
	return out
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		if val == nil {
			return "<nil>"
		}
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}
