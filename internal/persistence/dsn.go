// Package persistence implements the three normative tables (agents,
// tasks, sessions) over a modernc.org/sqlite database, following the
// upsert and scan-helper conventions of the teacher's
// internal/tasks/store.go and internal/events/store.go.
package persistence

import "fmt"

// DSN builds a WAL-mode connection string for path, following the
// teacher's internal/memory/db.go convention.
func DSN(path string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}
