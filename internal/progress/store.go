package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/biolingo/sync-engine/internal/catalog"
	"github.com/biolingo/sync-engine/internal/remote"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ConnectivitySource read side of the connectivity signal
type ConnectivitySource interface {
	Online() bool
}

// Flusher accepts flush triggers, implemented by the sync coordinator
type Flusher interface {
	TriggerFlush()
}

// Store single source of truth for what the user sees as their progress and
// the only component the presentation layer talks to. It merges the catalog,
// the durable completion cache and the pending sync queue into an effective
// completed set, and applies completions optimistically: the local durable
// write happens before CompleteLesson returns, remote delivery is handed off
// to the coordinator.
//
// The effective set is grow-only. A completion is never reverted here, not
// even when remote submission fails permanently.
type Store struct {
	catalog *catalog.Store
	cache   CompletionCache
	queue   SyncQueue
	guest   *GuestProgress
	remote  remote.ProgressService
	signal  ConnectivitySource
	flusher Flusher
	logger  *zap.Logger

	// scope key for guest progress, one per engine session
	sessionID string

	mu        sync.RWMutex
	loaded    bool
	userID    string
	effective map[string]time.Time

	loading uint32
}

// NewStore .
func NewStore(
	Catalog *catalog.Store,
	Cache CompletionCache,
	Queue SyncQueue,
	Guest *GuestProgress,
	Remote remote.ProgressService,
	Signal ConnectivitySource,
	Flusher Flusher,
	SessionID string,
	Logger *zap.Logger,
) *Store {
	return &Store{
		catalog:   Catalog,
		cache:     Cache,
		queue:     Queue,
		guest:     Guest,
		remote:    Remote,
		signal:    Signal,
		flusher:   Flusher,
		sessionID: SessionID,
		logger:    Logger,
		effective: make(map[string]time.Time),
	}
}

// IsLoading true while LoadForUser is in flight
func (ps *Store) IsLoading() bool {
	return atomic.LoadUint32(&ps.loading) == 1
}

// UserID scope of the currently loaded view, empty for guest
func (ps *Store) UserID() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.userID
}

// LoadForUser build the merged progress view for the given user, or the
// guest view when userID is empty.
//
// For a signed-in user the cached set is read first, then reconciled with
// the remote set when online (the union is written back to the cache), then
// extended with pending queue entries. A failed remote fetch is a recoverable
// degradation, the cached set alone is served and no error reaches the
// caller.
func (ps *Store) LoadForUser(ctx context.Context, userID string) ([]*CourseView, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "Store.LoadForUser", "service")
	defer apmSpan.End()

	atomic.StoreUint32(&ps.loading, 1)
	defer atomic.StoreUint32(&ps.loading, 0)

	effective := make(map[string]time.Time)
	if userID == "" {
		guestSet, err := ps.guest.Read(ps.sessionID)
		if err != nil {
			// session-only data, degrade to a fresh set
			ps.logger.Warn("Failed to read guest progress", zap.Error(err))
			guestSet = make(map[string]time.Time)
		}
		effective = guestSet
	} else {
		cached, err := ps.cache.Read(ctx, userID)
		if err != nil {
			return nil, err
		}
		for lessonID, at := range cached {
			effective[lessonID] = at
		}

		if ps.signal.Online() {
			ps.reconcileRemote(ctx, userID, cached, effective)
		}

		pending, err := ps.queue.PeekAll(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, entry := range pending {
			if _, ok := effective[entry.LessonID]; !ok {
				effective[entry.LessonID] = entry.EnqueuedAt
			}
		}
	}

	ps.mu.Lock()
	ps.userID = userID
	ps.effective = effective
	ps.loaded = true
	views := ps.buildViews()
	ps.mu.Unlock()

	ps.logger.Debug("Progress view loaded",
		zap.String("user.id", userID),
		zap.Int("progress.completed", len(effective)),
	)
	return views, nil
}

// reconcileRemote union the remote set into effective and persist newly
// learned facts back into the cache. Every failure in here is recoverable,
// the cached set is already in effect
func (ps *Store) reconcileRemote(ctx context.Context, userID string, cached, effective map[string]time.Time) {
	remoteSet, err := ps.remote.FetchCompletedLessonIDs(ctx, userID)
	if err != nil {
		ps.logger.Warn("Failed to fetch remote completions, serving cached progress",
			zap.String("user.id", userID), zap.Error(err))
		return
	}

	now := time.Now()
	learned := make(map[string]time.Time)
	for lessonID := range remoteSet {
		if _, ok := effective[lessonID]; !ok {
			effective[lessonID] = now
		}
		if _, ok := cached[lessonID]; !ok {
			learned[lessonID] = now
		}
	}
	if len(learned) == 0 {
		return
	}
	if err := ps.cache.Write(ctx, userID, learned); err != nil {
		ps.logger.Error("Failed to write reconciled completions to cache",
			zap.String("user.id", userID), zap.Error(err))
	}
}

// EnsureScope reload the view when the requested identity differs from the
// loaded one, otherwise serve the current view
func (ps *Store) EnsureScope(ctx context.Context, userID string) ([]*CourseView, error) {
	ps.mu.RLock()
	loaded, current := ps.loaded, ps.userID
	ps.mu.RUnlock()

	if loaded && current == userID {
		return ps.Courses()
	}
	return ps.LoadForUser(ctx, userID)
}

// Courses merged view of every course
func (ps *Store) Courses() ([]*CourseView, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if !ps.loaded {
		return nil, ErrNotLoaded
	}
	return ps.buildViews(), nil
}

// GetCourseByID pure lookup against the merged view
func (ps *Store) GetCourseByID(id string) (*CourseView, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if !ps.loaded {
		return nil, ErrNotLoaded
	}
	course, ok := ps.catalog.CourseByID(id)
	if !ok {
		return nil, ErrCourseNotFound
	}
	return ps.buildCourseView(course), nil
}

// GetLessonByID pure lookup, returns the lesson and its owning course
func (ps *Store) GetLessonByID(id string) (*LessonView, *CourseView, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if !ps.loaded {
		return nil, nil, ErrNotLoaded
	}
	lesson, course, ok := ps.catalog.LessonByID(id)
	if !ok {
		return nil, nil, ErrLessonNotFound
	}
	return ps.buildLessonView(lesson), ps.buildCourseView(course), nil
}

// CompleteLesson record a completion optimistically. The in-memory set and
// the durable cache are updated before this returns, so the completion
// survives an immediate crash. Remote delivery happens asynchronously via
// the queue and coordinator, and a failed delivery never reverts the local
// record.
//
// Completing an already completed lesson is a no-op. An unknown lesson ID
// fails fast with ErrLessonNotFound.
func (ps *Store) CompleteLesson(ctx context.Context, lessonID string) error {
	apmSpan, ctx := apm.StartSpan(ctx, "Store.CompleteLesson", "service")
	defer apmSpan.End()

	if !ps.catalog.HasLesson(lessonID) {
		return ErrLessonNotFound
	}

	now := time.Now()
	ps.mu.Lock()
	if !ps.loaded {
		ps.mu.Unlock()
		return ErrNotLoaded
	}
	if _, ok := ps.effective[lessonID]; ok {
		ps.mu.Unlock()
		return nil
	}
	ps.effective[lessonID] = now
	userID := ps.userID
	ps.mu.Unlock()

	if userID == "" {
		// guest progress is session-only, best effort, never synced
		if err := ps.guest.Add(ps.sessionID, lessonID, now); err != nil {
			ps.logger.Warn("Failed to persist guest completion", zap.String("lesson.id", lessonID), zap.Error(err))
		}
		return nil
	}

	if err := ps.cache.Write(ctx, userID, map[string]time.Time{lessonID: now}); err != nil {
		return err
	}
	if err := ps.queue.Enqueue(ctx, userID, lessonID, now); err != nil {
		return err
	}
	ps.logger.Debug("Lesson completed",
		zap.String("user.id", userID),
		zap.String("lesson.id", lessonID),
	)

	if ps.signal.Online() {
		ps.flusher.TriggerFlush()
	}
	return nil
}

func (ps *Store) buildViews() []*CourseView {
	courses := ps.catalog.Courses()
	views := make([]*CourseView, 0, len(courses))
	for _, course := range courses {
		views = append(views, ps.buildCourseView(course))
	}
	return views
}

func (ps *Store) buildCourseView(course *catalog.CourseRef) *CourseView {
	view := &CourseView{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Icon:        course.Icon,
		Color:       course.Color,
		Lessons:     make([]*LessonView, 0, len(course.Lessons)),
	}
	for _, lesson := range course.Lessons {
		view.Lessons = append(view.Lessons, ps.buildLessonView(lesson))
	}
	return view
}

func (ps *Store) buildLessonView(lesson *catalog.LessonRef) *LessonView {
	_, completed := ps.effective[lesson.ID]
	return &LessonView{
		ID:        lesson.ID,
		Title:     lesson.Title,
		Type:      lesson.Type,
		Content:   lesson.Content,
		Completed: completed,
	}
}
