package progress

import (
	"context"
	"time"

	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
)

// SQLSyncQueue SyncQueue on the durable store. FIFO order comes from the
// enqueue timestamp in nanoseconds
type SQLSyncQueue struct {
	Conn driver.ITransactionalDB
}

var _ SyncQueue = &SQLSyncQueue{}

// NewSQLSyncQueue .
func NewSQLSyncQueue(Conn driver.ITransactionalDB) *SQLSyncQueue {
	return &SQLSyncQueue{
		Conn: Conn,
	}
}

// Enqueue implement SyncQueue, re-enqueueing an already queued lesson is a
// no-op
func (repo *SQLSyncQueue) Enqueue(ctx context.Context, userID string, lessonID string, at time.Time) error {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    1
FROM
    sync_queue
WHERE
    user_id = $1 AND lesson_id = $2
	`, userID, lessonID)
	if err != nil {
		return err
	}
	exists := rows.Next()
	rows.Close()
	if exists {
		return nil
	}

	_, err = repo.Conn.ExecContext(ctx, `
INSERT INTO sync_queue
    (user_id, lesson_id, enqueued_at, attempts)
VALUES
    ($1, $2, $3, 0)
	`, userID, lessonID, at.UnixNano())
	return err
}

// PeekAll implement SyncQueue, entries in FIFO enqueue order
func (repo *SQLSyncQueue) PeekAll(ctx context.Context, userID string) ([]*SyncQueueEntry, error) {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    lesson_id, enqueued_at, attempts
FROM
    sync_queue
WHERE
    user_id = $1
ORDER BY
    enqueued_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*SyncQueueEntry
	for rows.Next() {
		entry := new(SyncQueueEntry)
		var enqueuedAt int64
		if err := rows.Scan(&entry.LessonID, &enqueuedAt, &entry.Attempts); err != nil {
			return nil, err
		}
		entry.EnqueuedAt = time.Unix(0, enqueuedAt)
		entries = append(entries, entry)
	}
	return entries, nil
}

// Remove implement SyncQueue
func (repo *SQLSyncQueue) Remove(ctx context.Context, userID string, lessonID string) error {
	_, err := repo.Conn.ExecContext(ctx, `
DELETE FROM
    sync_queue
WHERE
    user_id = $1 AND lesson_id = $2
	`, userID, lessonID)
	return err
}

// MarkAttempt implement SyncQueue
func (repo *SQLSyncQueue) MarkAttempt(ctx context.Context, userID string, lessonID string) error {
	_, err := repo.Conn.ExecContext(ctx, `
UPDATE
    sync_queue
SET
    attempts = attempts + 1
WHERE
    user_id = $1 AND lesson_id = $2
	`, userID, lessonID)
	return err
}

// Depth implement SyncQueue
func (repo *SQLSyncQueue) Depth(ctx context.Context, userID string) (int, error) {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    COUNT(*)
FROM
    sync_queue
WHERE
    user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	depth := 0
	if rows.Next() {
		if err := rows.Scan(&depth); err != nil {
			return 0, err
		}
	}
	return depth, nil
}
