package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event payload size constraints enforced by AppendEvent.
const (
	MaxEventKindLength     = 128
	MaxEventMessageLength  = 4096
	MaxEventMetadataLength = 16384
)

// AppendEvent journals one bridge invocation into the events table.
// The journal is write-only from the bridge's side; reporting tools
// query it for per-session activity summaries.
func AppendEvent(db *sql.DB, kind, hookEvent, toolName, taskID, message, metadata string) (int64, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return 0, errors.New("event kind is required")
	}
	if len(kind) > MaxEventKindLength {
		return 0, fmt.Errorf("event kind exceeds max length (%d)", MaxEventKindLength)
	}
	if len(message) > MaxEventMessageLength {
		message = message[:MaxEventMessageLength]
	}
	if metadata != "" {
		if len(metadata) > MaxEventMetadataLength {
			return 0, fmt.Errorf("event metadata exceeds max length (%d)", MaxEventMetadataLength)
		}
		if !json.Valid([]byte(metadata)) {
			return 0, errors.New("event metadata must be valid JSON")
		}
	}

	var id int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(), `
			INSERT INTO events (kind, hook_event, tool_name, task_id, message, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, kind, hookEvent, toolName, taskID, message, metadata)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		id, _ = res.LastInsertId()
		return nil
	})
	return id, err
}

// CountEventsByKind returns journal counts grouped by kind.
func CountEventsByKind(db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(context.Background(),
		`SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
