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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ExportLogs writes the events matching opts to w.
func (m *Manager) ExportLogs(w io.Writer, format ExportFormat, opts QueryOptions) error {
	return ExportEvents(w, format, m.QueryLogs(opts))
}

// ExportEvents writes events to w.
func ExportEvents(w io.Writer, format ExportFormat, events []Event) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if events == nil {
			events = []Event{}
		}
		return enc.Encode(events)
	case FormatCSV:
		return exportCSV(w, events)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "timestamp", "event_type", "username", "object", "detail", "conn", "status", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.EventType),
			e.Username,
			e.Object,
			e.Detail,
			strconv.FormatUint(e.Conn, 10),
			string(e.Status),
			e.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
