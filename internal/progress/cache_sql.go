package progress

import (
	"context"
	"time"

	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
)

// SQLCompletionCache CompletionCache on the durable store
type SQLCompletionCache struct {
	Conn driver.ITransactionalDB
}

var _ CompletionCache = &SQLCompletionCache{}

// NewSQLCompletionCache .
func NewSQLCompletionCache(Conn driver.ITransactionalDB) *SQLCompletionCache {
	return &SQLCompletionCache{
		Conn: Conn,
	}
}

// Read implement CompletionCache
func (repo *SQLCompletionCache) Read(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    lesson_id, recorded_at
FROM
    completed_lesson
WHERE
    user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	completed := make(map[string]time.Time)
	for rows.Next() {
		var lessonID string
		var recordedAt int64
		if err := rows.Scan(&lessonID, &recordedAt); err != nil {
			return nil, err
		}
		completed[lessonID] = time.Unix(0, recordedAt)
	}
	return completed, nil
}

// Write implement CompletionCache. Inserts facts missing from the stored set,
// existing rows are left untouched so completion stays grow-only
func (repo *SQLCompletionCache) Write(ctx context.Context, userID string, completed map[string]time.Time) error {
	existing, err := repo.Read(ctx, userID)
	if err != nil {
		return err
	}

	tx, err := repo.Conn.BeginTx(ctx, &driver.TxOptions{AccessMode: driver.AccessReadWrite})
	if err != nil {
		return err
	}
	for lessonID, recordedAt := range completed {
		if _, ok := existing[lessonID]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO completed_lesson
    (user_id, lesson_id, recorded_at)
VALUES
    ($1, $2, $3)
		`, userID, lessonID, recordedAt.UnixNano()); err != nil {
			tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}
