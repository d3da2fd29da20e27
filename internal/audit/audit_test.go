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

package audit

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Stop() })
	return m
}

func TestDisabledManagerIsNil(t *testing.T) {
	m, err := NewManager(Config{})
	require.NoError(t, err)
	assert.Nil(t, m)

	// Every method tolerates nil.
	m.LogEvent(Event{EventType: EventLogin})
	assert.Empty(t, m.QueryLogs(QueryOptions{}))
	assert.Equal(t, Stats{}, m.Stats())
	assert.NoError(t, m.Stop())
}

func TestQueryLogs(t *testing.T) {
	m := newManager(t, DefaultConfig())

	m.LogEvent(Event{EventType: EventLogin, Username: "alice"})
	m.LogEvent(Event{EventType: EventLoginFailed, Username: "bob", Status: StatusFailed, Error: "PASSWORD_INCORRECT"})
	m.LogEvent(Event{EventType: EventCreateDocument, Username: "alice", Object: "report"})
	m.LogEvent(Event{EventType: EventEdit, Username: "alice", Object: "report#1"})

	require.Eventually(t, func() bool { return m.Stats().Logged == 4 }, 3*time.Second, 10*time.Millisecond)

	all := m.QueryLogs(QueryOptions{})
	require.Len(t, all, 4)
	assert.Equal(t, EventEdit, all[0].EventType, "newest first")
	assert.Equal(t, StatusSuccess, all[0].Status)

	alice := m.QueryLogs(QueryOptions{Username: "alice"})
	assert.Len(t, alice, 3)

	failed := m.QueryLogs(QueryOptions{Status: StatusFailed})
	require.Len(t, failed, 1)
	assert.Equal(t, "bob", failed[0].Username)

	limited := m.QueryLogs(QueryOptions{Username: "alice", Limit: 2})
	assert.Len(t, limited, 2)

	future := m.QueryLogs(QueryOptions{Start: time.Now().Add(time.Hour)})
	assert.Empty(t, future)
}

func TestRetainKeepsNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retain = 3
	m := newManager(t, cfg)

	for i := 0; i < 5; i++ {
		m.LogEvent(Event{EventType: EventShare, Detail: string(rune('a' + i))})
	}
	require.NoError(t, m.Stop())

	events := m.QueryLogs(QueryOptions{})
	require.Len(t, events, 3)
	assert.Equal(t, "e", events[0].Detail)
	assert.Equal(t, "c", events[2].Detail)
}

func TestAuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	cfg := DefaultConfig()
	cfg.File = path
	m := newManager(t, cfg)

	m.LogEvent(Event{EventType: EventRegister, Username: "alice"})
	m.LogEvent(Event{EventType: EventLogout, Username: "alice"})
	require.NoError(t, m.Stop())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var types []EventType
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		types = append(types, e.EventType)
	}
	assert.Equal(t, []EventType{EventRegister, EventLogout}, types)
}

func TestExport(t *testing.T) {
	events := []Event{
		{ID: 1, EventType: EventShare, Username: "alice", Object: "bob", Detail: "report", Status: StatusSuccess},
		{ID: 2, EventType: EventEdit, Username: "bob", Object: "report#0", Status: StatusFailed, Error: "SECTION_ALREADY_IN_EDITING_MODE"},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportEvents(&buf, FormatCSV, events))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "event_type", rows[0][2])
	assert.Equal(t, "report#0", rows[2][4])

	buf.Reset()
	require.NoError(t, ExportEvents(&buf, FormatJSON, events))
	var decoded []Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, events[1].Error, decoded[1].Error)

	assert.Error(t, ExportEvents(&buf, "xml", events))
}
