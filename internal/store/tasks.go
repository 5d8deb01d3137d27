package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotcommander/poka/internal/models"
)

// ListTaskIDsByStatus returns the ids of all tasks in the given status.
// Used by the crash-recovery detector to find tasks left in_progress
// by a session that never reached its cleanup path.
func ListTaskIDsByStatus(db *sql.DB, status models.TaskStatus) ([]string, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id FROM tasks WHERE status = ? ORDER BY updated_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return ids, nil
}

// GetTask loads a single task row. Returns (nil, nil) when absent.
func GetTask(db *sql.DB, taskID string) (*models.Task, error) {
	var t models.Task
	var status string
	err := db.QueryRowContext(context.Background(), `
		SELECT id, title, task_type, status, story_id, epic_id, blocked_reason, wip, created_at, updated_at
		FROM tasks WHERE id = ?
	`, taskID).Scan(&t.ID, &t.Title, &t.TaskType, &status, &t.StoryID, &t.EpicID, &t.BlockedReason, &t.WIP, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	t.Status = models.TaskStatus(status)
	return &t, nil
}

// UpdateTaskWIP merges a patch into the task's wip JSON column.
// Keys in the patch overwrite existing keys; other keys are preserved.
// A missing task row is not an error — WIP mirroring is best-effort and
// the MCP server may not have created the row yet.
func UpdateTaskWIP(db *sql.DB, taskID string, patch map[string]any) error {
	if taskID == "" || len(patch) == 0 {
		return nil
	}

	return RetryWithBackoff(func() error {
		var existing string
		err := db.QueryRowContext(context.Background(),
			`SELECT wip FROM tasks WHERE id = ?`, taskID).Scan(&existing)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load wip for %s: %w", taskID, err)
		}

		merged := map[string]any{}
		// Corrupt wip JSON is treated as empty; the patch rebuilds it.
		_ = json.Unmarshal([]byte(existing), &merged)
		for k, v := range patch {
			merged[k] = v
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal wip: %w", err)
		}

		_, err = db.ExecContext(context.Background(), `
			UPDATE tasks SET wip = ?, updated_at = ? WHERE id = ?
		`, string(data), time.Now().UTC(), taskID)
		if err != nil {
			return fmt.Errorf("update wip for %s: %w", taskID, err)
		}
		return nil
	})
}
