package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CompactStoryHandoffs deletes all but the most recent handoff for a story.
// Called at story boundaries so future sessions inherit one digest instead
// of the full per-task trail (memory decay).
func CompactStoryHandoffs(db *sql.DB, storyID string) (int64, error) {
	if storyID == "" {
		return 0, nil
	}

	var deleted int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(), `
			DELETE FROM handoffs
			WHERE story_id = ?
			  AND id != (SELECT MAX(id) FROM handoffs WHERE story_id = ?)
		`, storyID, storyID)
		if err != nil {
			return fmt.Errorf("compact handoffs for story %s: %w", storyID, err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

// DeleteEpicHandoffs removes every handoff under an epic. Called at epic
// boundaries: once the epic is done, its handoff trail is dead weight.
func DeleteEpicHandoffs(db *sql.DB, epicID string) (int64, error) {
	if epicID == "" {
		return 0, nil
	}

	var deleted int64
	err := RetryWithBackoff(func() error {
		res, err := db.ExecContext(context.Background(),
			`DELETE FROM handoffs WHERE epic_id = ?`, epicID)
		if err != nil {
			return fmt.Errorf("delete handoffs for epic %s: %w", epicID, err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
