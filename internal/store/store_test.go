package store

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/poka/internal/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDBWithPath(filepath.Join(t.TempDir(), "poka.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTask(t *testing.T, db *sql.DB, id, status, storyID, epicID string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO tasks (id, title, task_type, status, story_id, epic_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, "Task "+id, "feature", status, storyID, epicID)
	require.NoError(t, err)
}

func seedHandoff(t *testing.T, db *sql.DB, storyID, epicID, content string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO handoffs (story_id, epic_id, content) VALUES (?, ?, ?)
	`, storyID, epicID, content)
	require.NoError(t, err)
}

func TestInitDBWithPath_CreatesSchema(t *testing.T) {
	db := testDB(t)

	current, latest, err := SchemaVersion(db)
	require.NoError(t, err)
	require.Equal(t, latest, current)
	require.Positive(t, latest)
}

func TestInitDBWithPath_LeavesMigrationLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poka.db")

	db, err := InitDBWithPath(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.FileExists(t, path+migrationLockSuffix)
}

func TestMigrationLock_Reentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poka.db")

	f, err := acquireMigrationLock(path)
	require.NoError(t, err)
	releaseMigrationLock(f)

	// A second acquisition after release must not block.
	f, err = acquireMigrationLock(path)
	require.NoError(t, err)
	releaseMigrationLock(f)

	releaseMigrationLock(nil)
}

func TestInitDBWithPath_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poka.db")

	db, err := InitDBWithPath(path)
	require.NoError(t, err)
	seedTask(t, db, "T-1", "pending", "", "")
	require.NoError(t, db.Close())

	db, err = InitDBWithPath(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	task, err := GetTask(db, "T-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, "Task T-1", task.Title)
}

func TestListTaskIDsByStatus(t *testing.T) {
	db := testDB(t)
	seedTask(t, db, "T-1", "in_progress", "", "")
	seedTask(t, db, "T-2", "done", "", "")
	seedTask(t, db, "T-3", "in_progress", "", "")

	ids, err := ListTaskIDsByStatus(db, models.TaskStatusInProgress)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"T-1", "T-3"}, ids)

	ids, err = ListTaskIDsByStatus(db, models.TaskStatusBlocked)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestGetTask_AbsentIsNilNil(t *testing.T) {
	db := testDB(t)

	task, err := GetTask(db, "T-404")
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestUpdateTaskWIP_MergesPatch(t *testing.T) {
	db := testDB(t)
	seedTask(t, db, "T-1", "in_progress", "", "")

	require.NoError(t, UpdateTaskWIP(db, "T-1", map[string]any{
		"files_modified":      []string{"a.go"},
		"uncommitted_changes": true,
	}))
	require.NoError(t, UpdateTaskWIP(db, "T-1", map[string]any{
		"last_commit": "abc1234",
	}))

	task, err := GetTask(db, "T-1")
	require.NoError(t, err)
	require.Contains(t, task.WIP, `"files_modified":["a.go"]`)
	require.Contains(t, task.WIP, `"last_commit":"abc1234"`)
	require.Contains(t, task.WIP, `"uncommitted_changes":true`)
}

func TestUpdateTaskWIP_MissingRowIsNoop(t *testing.T) {
	db := testDB(t)
	require.NoError(t, UpdateTaskWIP(db, "T-404", map[string]any{"x": 1}))
}

func TestUpdateTaskWIP_EmptyArgsAreNoops(t *testing.T) {
	db := testDB(t)
	require.NoError(t, UpdateTaskWIP(db, "", map[string]any{"x": 1}))
	require.NoError(t, UpdateTaskWIP(db, "T-1", nil))
}

func TestCompactStoryHandoffs_KeepsNewest(t *testing.T) {
	db := testDB(t)
	seedHandoff(t, db, "S1", "E1", "first")
	seedHandoff(t, db, "S1", "E1", "second")
	seedHandoff(t, db, "S1", "E1", "third")
	seedHandoff(t, db, "S2", "E1", "other story")

	deleted, err := CompactStoryHandoffs(db, "S1")
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var content string
	require.NoError(t, db.QueryRow(
		`SELECT content FROM handoffs WHERE story_id = 'S1'`).Scan(&content))
	require.Equal(t, "third", content)

	var other int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM handoffs WHERE story_id = 'S2'`).Scan(&other))
	require.Equal(t, 1, other)
}

func TestCompactStoryHandoffs_EmptyStoryID(t *testing.T) {
	db := testDB(t)
	deleted, err := CompactStoryHandoffs(db, "")
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestDeleteEpicHandoffs(t *testing.T) {
	db := testDB(t)
	seedHandoff(t, db, "S1", "E1", "one")
	seedHandoff(t, db, "S2", "E1", "two")
	seedHandoff(t, db, "S3", "E2", "keep")

	deleted, err := DeleteEpicHandoffs(db, "E1")
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM handoffs`).Scan(&remaining))
	require.Equal(t, 1, remaining)
}

func TestAppendEvent_JournalsAndCounts(t *testing.T) {
	db := testDB(t)

	id, err := AppendEvent(db, models.EventKindPreTask, "PostToolUse", "mcp__poka__update_task_status", "T-1", "started", `{"hooks_run":["pre-task"]}`)
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = AppendEvent(db, models.EventKindPreTask, "PostToolUse", "", "T-2", "", "")
	require.NoError(t, err)
	_, err = AppendEvent(db, models.EventKindPostSession, "SessionEnd", "", "", "", "")
	require.NoError(t, err)

	counts, err := CountEventsByKind(db)
	require.NoError(t, err)
	require.Equal(t, 2, counts[models.EventKindPreTask])
	require.Equal(t, 1, counts[models.EventKindPostSession])
}

func TestAppendEvent_Validation(t *testing.T) {
	db := testDB(t)

	_, err := AppendEvent(db, "  ", "SessionStart", "", "", "", "")
	require.Error(t, err)

	_, err = AppendEvent(db, strings.Repeat("k", MaxEventKindLength+1), "SessionStart", "", "", "", "")
	require.Error(t, err)

	_, err = AppendEvent(db, "pre_session", "SessionStart", "", "", "", "{not json")
	require.ErrorContains(t, err, "valid JSON")
}

func TestAppendEvent_TruncatesLongMessage(t *testing.T) {
	db := testDB(t)

	id, err := AppendEvent(db, "pre_session", "SessionStart", "", "", strings.Repeat("m", MaxEventMessageLength+100), "")
	require.NoError(t, err)

	var msg string
	require.NoError(t, db.QueryRow(`SELECT message FROM events WHERE id = ?`, id).Scan(&msg))
	require.Len(t, msg, MaxEventMessageLength)
}
