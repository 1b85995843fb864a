package progress

import (
	"context"
	"errors"
	"time"

	"github.com/biolingo/sync-engine/internal/catalog"
)

// lookup errors, these are programmer errors and propagate to the caller
var (
	ErrCourseNotFound = errors.New("No such course")
	ErrLessonNotFound = errors.New("No such lesson")
	ErrNotLoaded      = errors.New("Progress view is not loaded")
)

// CompletionFact immutable record that a user completed a lesson. Two facts
// with the same (user, lesson) pair are semantically identical
type CompletionFact struct {
	UserID     string
	LessonID   string
	RecordedAt time.Time
}

// SyncQueueEntry completion recorded locally and not yet confirmed by the
// remote progress service
type SyncQueueEntry struct {
	LessonID   string
	EnqueuedAt time.Time
	Attempts   int
}

// LessonView lesson annotated with completion state, what the presentation
// layer sees
type LessonView struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Type      catalog.LessonType    `json:"type"`
	Content   catalog.LessonContent `json:"content"`
	Completed bool                  `json:"completed"`
}

// CourseView course with annotated lessons
type CourseView struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`
	Color       string        `json:"color"`
	Lessons     []*LessonView `json:"lessons"`
}

// CompletionCache device-local durable record of completed lessons, scoped
// per user so account switches never leak progress. Writes are grow-only,
// nothing in this engine ever removes a completion
type CompletionCache interface {
	Read(ctx context.Context, userID string) (map[string]time.Time, error)
	Write(ctx context.Context, userID string, completed map[string]time.Time) error
}

// SyncQueue durable FIFO of unconfirmed completions, at most one entry per
// lesson ID
type SyncQueue interface {
	Enqueue(ctx context.Context, userID string, lessonID string, at time.Time) error
	PeekAll(ctx context.Context, userID string) ([]*SyncQueueEntry, error)
	Remove(ctx context.Context, userID string, lessonID string) error
	MarkAttempt(ctx context.Context, userID string, lessonID string) error
	Depth(ctx context.Context, userID string) (int, error)
}
