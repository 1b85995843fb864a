package progress

import (
	"context"

	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
)

// statements are portable across sqlite, mysql and postgres
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS completed_lesson (
		user_id VARCHAR(64) NOT NULL,
		lesson_id VARCHAR(64) NOT NULL,
		recorded_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, lesson_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		user_id VARCHAR(64) NOT NULL,
		lesson_id VARCHAR(64) NOT NULL,
		enqueued_at BIGINT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, lesson_id)
	)`,
}

// EnsureSchema create the durable store tables if missing, called once at
// bootstrap before any repository is used
func EnsureSchema(ctx context.Context, conn driver.ITransactionalDB) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
