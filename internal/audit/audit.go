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
Package audit keeps a trail of account and document events.

Audited Events:
===============

  - Accounts: REGISTER, LOGIN, LOGIN_FAILED, LOGOUT, DISCONNECT
  - Documents: CREATE_DOCUMENT, SHARE, EDIT, END_EDIT

Refused requests are recorded with StatusFailed and the status name, so a
burst of LOGIN_FAILED for one user shows up in QueryLogs.

Storage:
========

Events are queued on a buffered channel and written by one background
worker in batches. The most recent Retain events are kept in memory for
QueryLogs. When File is set, every event is also appended to it as one JSON
object per line.

LogEvent never blocks a request: when the queue is full the event is
dropped and counted in Stats.
*/
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"turing/internal/logging"
)

// EventType is the kind of audited event.
type EventType string

const (
	EventRegister    EventType = "REGISTER"
	EventLogin       EventType = "LOGIN"
	EventLoginFailed EventType = "LOGIN_FAILED"
	EventLogout      EventType = "LOGOUT"
	EventDisconnect  EventType = "DISCONNECT"

	EventCreateDocument EventType = "CREATE_DOCUMENT"
	EventShare          EventType = "SHARE"
	EventEdit           EventType = "EDIT"
	EventEndEdit        EventType = "END_EDIT"
)

// Status is the outcome of an audited event.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event is one audit record.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Username  string    `json:"username,omitempty"`
	// Object is what the event is about: a document, "doc#2" for a
	// section, or the invited user of a share.
	Object string `json:"object,omitempty"`
	Detail string `json:"detail,omitempty"`
	Conn   uint64 `json:"conn,omitempty"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Config configures the audit trail.
type Config struct {
	Enabled       bool
	File          string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Retain        int
}

// DefaultConfig returns the defaults: enabled, memory only.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1024,
		BatchSize:     64,
		FlushInterval: time.Second,
		Retain:        10000,
	}
}

// Stats counts events.
type Stats struct {
	Logged  uint64
	Dropped uint64
}

// Manager records events. A nil *Manager records nothing.
type Manager struct {
	config Config
	logger *logging.Logger

	buffer chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	file *os.File
	out  *bufio.Writer

	mu     sync.RWMutex
	recent []Event // ring of the last Retain events
	head   int
	full   bool

	nextID  atomic.Int64
	logged  atomic.Uint64
	dropped atomic.Uint64
}

// NewManager starts the background writer. It returns nil when auditing
// is disabled.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return nil, nil
	}
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = def.FlushInterval
	}
	if config.Retain <= 0 {
		config.Retain = def.Retain
	}

	m := &Manager{
		config: config,
		logger: logging.NewLogger("audit"),
		buffer: make(chan Event, config.BufferSize),
		stopCh: make(chan struct{}),
		recent: make([]Event, config.Retain),
	}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		m.file = f
		m.out = bufio.NewWriter(f)
	}

	m.wg.Add(1)
	go m.worker()
	return m, nil
}

// LogEvent queues an event.
func (m *Manager) LogEvent(e Event) {
	if m == nil {
		return
	}
	e.ID = m.nextID.Add(1)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}
	select {
	case m.buffer <- e:
	default:
		if m.dropped.Add(1)%100 == 1 {
			m.logger.Warn("audit queue full, dropping events", "dropped", m.dropped.Load())
		}
	}
}

func (m *Manager) worker() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, m.config.BatchSize)
	flush := func() {
		if len(batch) > 0 {
			m.flushBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case e := <-m.buffer:
			batch = append(batch, e)
			if len(batch) >= m.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-m.stopCh:
			for len(m.buffer) > 0 {
				batch = append(batch, <-m.buffer)
			}
			flush()
			return
		}
	}
}

func (m *Manager) flushBatch(events []Event) {
	m.mu.Lock()
	for _, e := range events {
		m.recent[m.head] = e
		m.head++
		if m.head == len(m.recent) {
			m.head, m.full = 0, true
		}
	}
	m.mu.Unlock()
	m.logged.Add(uint64(len(events)))

	if m.out == nil {
		return
	}
	enc := json.NewEncoder(m.out)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			m.logger.Error("failed to write audit event", "event_type", string(e.EventType), "error", err)
		}
	}
	if err := m.out.Flush(); err != nil {
		m.logger.Error("failed to flush audit file", "file", m.config.File, "error", err)
	}
}

// QueryOptions filters QueryLogs. Zero fields match everything.
type QueryOptions struct {
	Start     time.Time
	End       time.Time
	Username  string
	Object    string
	EventType EventType
	Status    Status
	Limit     int
}

func (o QueryOptions) match(e Event) bool {
	switch {
	case !o.Start.IsZero() && e.Timestamp.Before(o.Start):
		return false
	case !o.End.IsZero() && e.Timestamp.After(o.End):
		return false
	case o.Username != "" && e.Username != o.Username:
		return false
	case o.Object != "" && e.Object != o.Object:
		return false
	case o.EventType != "" && e.EventType != o.EventType:
		return false
	case o.Status != "" && e.Status != o.Status:
		return false
	}
	return true
}

// QueryLogs returns the retained events matching opts, newest first.
// Events still queued are not visible until the next flush.
func (m *Manager) QueryLogs(opts QueryOptions) []Event {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.head
	if m.full {
		n = len(m.recent)
	}
	var out []Event
	for i := 1; i <= n; i++ {
		e := m.recent[(m.head-i+len(m.recent))%len(m.recent)]
		if !opts.match(e) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// Stats returns the event counters.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{Logged: m.logged.Load(), Dropped: m.dropped.Load()}
}

// Stop flushes queued events and closes the file. Events logged after
// Stop are dropped.
func (m *Manager) Stop() error {
	if m == nil {
		return nil
	}
	var err error
	m.once.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		if m.file != nil {
			err = m.file.Close()
		}
	})
	return err
}
