package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/biolingo/sync-engine/internal/connectivity"
	"github.com/biolingo/sync-engine/internal/identity"
	"github.com/biolingo/sync-engine/internal/infrastructure/logging"
	"github.com/biolingo/sync-engine/internal/remote"
	"github.com/go-co-op/gocron"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// ConnectivitySignal connectivity as the coordinator consumes it
type ConnectivitySignal interface {
	Online() bool
	Subscribe() <-chan connectivity.State
}

// SyncState coordinator snapshot for the status endpoint and websocket push
type SyncState struct {
	State      string     `json:"state"`
	Online     bool       `json:"online"`
	QueueDepth int        `json:"queue_depth"`
	LastDrain  *time.Time `json:"last_drain,omitempty"`
}

// Coordinator drains the sync queue against the remote progress service.
// At most one drain pass runs at a time, triggers arriving mid-pass coalesce
// into a single follow-up pass. A pass walks the queue in FIFO order and
// stops at the first transient failure so every remaining entry is retried
// later. Idempotent conflicts count as success, permanent rejections drop the
// queue entry but never touch the completion cache.
type Coordinator struct {
	remote   remote.ProgressService
	queue    SyncQueue
	identity identity.Notifier
	signal   ConnectivitySignal
	logger   *zap.Logger

	scheduler *gocron.Scheduler
	interval  time.Duration

	trigger   chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	stopped   uint32
	draining  uint32
	lastDrain int64
}

// NewCoordinator .
func NewCoordinator(
	Remote remote.ProgressService,
	Queue SyncQueue,
	Identity identity.Notifier,
	Signal ConnectivitySignal,
	FlushInterval time.Duration,
	Logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		remote:   Remote,
		queue:    Queue,
		identity: Identity,
		signal:   Signal,
		interval: FlushInterval,
		logger:   Logger,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start launch the coordinator loop and the periodic retry schedule
func (c *Coordinator) Start() {
	connEvents := c.signal.Subscribe()
	identityEvents := c.identity.Subscribe()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(connEvents, identityEvents)
	}()

	if c.interval > 0 {
		c.scheduler = gocron.NewScheduler(time.UTC)
		c.scheduler.Every(c.interval).Do(func() {
			if c.signal.Online() {
				c.TriggerFlush()
			}
		})
		c.scheduler.StartAsync()
	}
}

// Stop stop the coordinator, an in-flight drain pass finishes first
func (c *Coordinator) Stop() {
	if !atomic.CompareAndSwapUint32(&c.stopped, 0, 1) {
		return
	}
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	close(c.stopChan)
	c.wg.Wait()
}

// TriggerFlush request a drain pass. Never blocks, triggers arriving while a
// pass is pending collapse into one
func (c *Coordinator) TriggerFlush() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// State current sync snapshot for the active identity
func (c *Coordinator) State(ctx context.Context) SyncState {
	state := SyncState{
		State:  "idle",
		Online: c.signal.Online(),
	}
	if atomic.LoadUint32(&c.draining) == 1 {
		state.State = "draining"
	}
	if userID, ok := c.identity.CurrentUserID(); ok {
		if depth, err := c.queue.Depth(ctx, userID); err == nil {
			state.QueueDepth = depth
		}
	}
	if last := atomic.LoadInt64(&c.lastDrain); last != 0 {
		t := time.Unix(0, last)
		state.LastDrain = &t
	}
	return state
}

func (c *Coordinator) run(connEvents <-chan connectivity.State, identityEvents <-chan identity.Change) {
	for {
		select {
		case <-c.trigger:
			c.drain()
		case state := <-connEvents:
			if state == connectivity.Online {
				c.drain()
			}
		case <-identityEvents:
			c.drain()
		case <-c.stopChan:
			return
		}
	}
}

// drain walk the queue once in FIFO order. Runs on the coordinator goroutine,
// the CAS guard is for triggers racing a pass started from another event
func (c *Coordinator) drain() {
	if !atomic.CompareAndSwapUint32(&c.draining, 0, 1) {
		return
	}
	defer atomic.StoreUint32(&c.draining, 0)

	if !c.signal.Online() {
		return
	}
	userID, ok := c.identity.CurrentUserID()
	if !ok {
		// guest sessions never queue completions
		return
	}

	tx := apm.DefaultTracer.StartTransaction("Coordinator.drain", "backgroundjob")
	defer tx.End()
	ctx := apm.ContextWithTransaction(context.Background(), tx)
	ctx = logging.SetLoggerInContext(ctx, c.logger)

	flushPassesTotal.Inc()
	entries, err := c.queue.PeekAll(ctx, userID)
	if err != nil {
		c.logger.Error("Failed to read sync queue", zap.String("user.id", userID), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := c.queue.MarkAttempt(ctx, userID, entry.LessonID); err != nil {
			c.logger.Error("Failed to mark sync attempt",
				zap.String("user.id", userID), zap.String("lesson.id", entry.LessonID), zap.Error(err))
		}

		if halted := c.submit(ctx, userID, entry); halted {
			break
		}
	}

	atomic.StoreInt64(&c.lastDrain, time.Now().UnixNano())
	if depth, err := c.queue.Depth(ctx, userID); err == nil {
		syncQueueDepth.Set(float64(depth))
	}
}

// submit deliver one queue entry, reporting whether the pass must halt
func (c *Coordinator) submit(ctx context.Context, userID string, entry *SyncQueueEntry) bool {
	err := c.remote.SubmitCompletion(ctx, userID, entry.LessonID)

	var rejection *remote.RejectionError
	switch {
	case err == nil:
		completionsConfirmedTotal.Inc()
	case errors.Is(err, remote.ErrConflict):
		// the remote already has this fact, same outcome as success
		completionsConflictTotal.Inc()
	case errors.As(err, &rejection):
		completionsRejectedTotal.Inc()
		c.logger.Warn("Completion permanently rejected, local progress preserved",
			zap.String("user.id", userID),
			zap.String("lesson.id", entry.LessonID),
			zap.String("rejection.reason", rejection.Reason),
		)
	default:
		// transient, keep the entry and stop so FIFO order survives the retry
		flushTransientFailuresTotal.Inc()
		c.logger.Info("Drain pass halted on transient failure",
			zap.String("user.id", userID),
			zap.String("lesson.id", entry.LessonID),
			zap.Int("sync.attempts", entry.Attempts+1),
			zap.Error(err),
		)
		return true
	}

	if err := c.queue.Remove(ctx, userID, entry.LessonID); err != nil {
		c.logger.Error("Failed to remove delivered entry from sync queue",
			zap.String("user.id", userID), zap.String("lesson.id", entry.LessonID), zap.Error(err))
		return true
	}
	return false
}
