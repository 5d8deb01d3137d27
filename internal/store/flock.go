package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// migrationLockSuffix names the advisory lock file placed next to the
// database. The bridge and the task MCP server open the same file on
// startup; whichever loses the flock race waits for the winner's
// migration to finish.
const migrationLockSuffix = ".migrate.lock"

// acquireMigrationLock takes a blocking exclusive flock for the database at
// dbPath. The returned handle must go to releaseMigrationLock.
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + migrationLockSuffix
	if dir := filepath.Dir(lockPath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // G304: lockPath derived from trusted dbPath
	if err != nil {
		return nil, fmt.Errorf("open migration lock %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire migration lock %s: %w", lockPath, err)
	}
	return f, nil
}

// releaseMigrationLock drops the flock and closes the handle. Nil-safe so
// callers can defer it unconditionally.
func releaseMigrationLock(f *os.File) {
	if f == nil {
		return
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}
