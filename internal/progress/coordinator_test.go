package progress

import (
	"context"
	"testing"
	"time"

	"github.com/biolingo/sync-engine/internal/connectivity"
	"github.com/biolingo/sync-engine/internal/identity"
	"github.com/biolingo/sync-engine/internal/remote"
	"go.uber.org/zap"
)

type coordSignal struct {
	fakeSignal
	events chan connectivity.State
}

func newCoordSignal(online bool) *coordSignal {
	cs := &coordSignal{events: make(chan connectivity.State, 1)}
	cs.online = online
	return cs
}

func (cs *coordSignal) Subscribe() <-chan connectivity.State {
	return cs.events
}

type coordFixture struct {
	coordinator *Coordinator
	queue       *fakeQueue
	remote      *fakeRemote
	signal      *coordSignal
	session     *identity.Session
}

func newCoordFixture(t *testing.T, online bool) *coordFixture {
	t.Helper()
	fx := &coordFixture{
		queue:   newFakeQueue(),
		remote:  newFakeRemote(),
		signal:  newCoordSignal(online),
		session: identity.NewSession(),
	}
	fx.coordinator = NewCoordinator(fx.remote, fx.queue, fx.session, fx.signal, 0, zap.NewNop())
	return fx
}

func (fx *coordFixture) enqueue(t *testing.T, userID string, lessonIDs ...string) {
	t.Helper()
	base := time.Now()
	for i, id := range lessonIDs {
		if err := fx.queue.Enqueue(context.Background(), userID, id, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDrainDeliversInFIFOOrder(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1", "l2", "l3")

	fx.coordinator.drain()

	submitted := fx.remote.submittedLessons()
	if len(submitted) != 3 || submitted[0] != "l1" || submitted[1] != "l2" || submitted[2] != "l3" {
		t.Errorf("expected FIFO delivery of l1,l2,l3, got %v", submitted)
	}
	if depth, _ := fx.queue.Depth(context.Background(), "u1"); depth != 0 {
		t.Errorf("expected empty queue after drain, depth %d", depth)
	}
}

func TestDrainConflictTreatedAsSuccess(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1", "l2")
	fx.remote.submitErr["l1"] = remote.ErrConflict

	fx.coordinator.drain()

	if depth, _ := fx.queue.Depth(context.Background(), "u1"); depth != 0 {
		t.Errorf("conflict must drop the entry like a success, depth %d", depth)
	}
}

func TestDrainHaltsOnTransientFailure(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1", "l2", "l3")
	fx.remote.submitErr["l2"] = remote.ErrUnreachable

	fx.coordinator.drain()

	submitted := fx.remote.submittedLessons()
	if len(submitted) != 2 {
		t.Fatalf("expected the pass to stop at l2, submitted %v", submitted)
	}
	remaining := fx.queue.lessonIDs("u1")
	if len(remaining) != 2 || remaining[0] != "l2" || remaining[1] != "l3" {
		t.Errorf("expected l2,l3 to stay queued in order, got %v", remaining)
	}
}

func TestDrainUnauthorizedIsTransient(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1")
	fx.remote.submitErr["l1"] = remote.ErrUnauthorized

	fx.coordinator.drain()

	if remaining := fx.queue.lessonIDs("u1"); len(remaining) != 1 {
		t.Errorf("unauthorized submission must stay queued for a later session, got %v", remaining)
	}
}

func TestDrainRejectionDropsEntryAndContinues(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1", "l2")
	fx.remote.submitErr["l1"] = &remote.RejectionError{Reason: "unknown lesson"}

	fx.coordinator.drain()

	submitted := fx.remote.submittedLessons()
	if len(submitted) != 2 {
		t.Errorf("rejection must not halt the pass, submitted %v", submitted)
	}
	if depth, _ := fx.queue.Depth(context.Background(), "u1"); depth != 0 {
		t.Errorf("rejected entry must be dropped from the queue, depth %d", depth)
	}
}

func TestDrainRetriesAfterTransientFailure(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1")
	fx.remote.submitErr["l1"] = remote.ErrUnreachable

	fx.coordinator.drain()
	if depth, _ := fx.queue.Depth(context.Background(), "u1"); depth != 1 {
		t.Fatalf("expected l1 to remain queued, depth %d", depth)
	}

	delete(fx.remote.submitErr, "l1")
	fx.coordinator.drain()
	if depth, _ := fx.queue.Depth(context.Background(), "u1"); depth != 0 {
		t.Errorf("expected the retry to deliver l1, depth %d", depth)
	}
}

func TestDrainSkipsGuestSession(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.enqueue(t, "u1", "l1")

	fx.coordinator.drain()

	if submitted := fx.remote.submittedLessons(); len(submitted) != 0 {
		t.Errorf("guest sessions must not drain, submitted %v", submitted)
	}
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	fx := newCoordFixture(t, false)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1")

	fx.coordinator.drain()

	if submitted := fx.remote.submittedLessons(); len(submitted) != 0 {
		t.Errorf("offline drain must be a no-op, submitted %v", submitted)
	}
}

func TestTriggerFlushCoalesces(t *testing.T) {
	fx := newCoordFixture(t, true)

	fx.coordinator.TriggerFlush()
	fx.coordinator.TriggerFlush()
	fx.coordinator.TriggerFlush()

	if pending := len(fx.coordinator.trigger); pending != 1 {
		t.Errorf("expected triggers to coalesce into one, got %d", pending)
	}
}

func TestOnlineTransitionTriggersDrain(t *testing.T) {
	fx := newCoordFixture(t, false)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1")

	fx.coordinator.Start()
	defer fx.coordinator.Stop()

	fx.signal.setOnline(true)
	fx.signal.events <- connectivity.Online

	waitFor(t, "online transition drain", func() bool {
		depth, _ := fx.queue.Depth(context.Background(), "u1")
		return depth == 0
	})
}

func TestIdentityChangeTriggersDrain(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.enqueue(t, "u1", "l1")

	fx.coordinator.Start()
	defer fx.coordinator.Stop()

	fx.session.Set("u1")

	waitFor(t, "identity change drain", func() bool {
		depth, _ := fx.queue.Depth(context.Background(), "u1")
		return depth == 0
	})
}

func TestStateSnapshot(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1", "l2")

	state := fx.coordinator.State(context.Background())
	if state.State != "idle" {
		t.Errorf("expected idle state, got %q", state.State)
	}
	if !state.Online {
		t.Error("expected online snapshot")
	}
	if state.QueueDepth != 2 {
		t.Errorf("expected queue depth 2, got %d", state.QueueDepth)
	}
	if state.LastDrain != nil {
		t.Error("expected no drain timestamp before the first pass")
	}

	fx.coordinator.drain()
	state = fx.coordinator.State(context.Background())
	if state.QueueDepth != 0 || state.LastDrain == nil {
		t.Errorf("unexpected post-drain snapshot: %+v", state)
	}
}

func TestDrainMarksAttempts(t *testing.T) {
	fx := newCoordFixture(t, true)
	fx.session.Set("u1")
	fx.enqueue(t, "u1", "l1")
	fx.remote.submitErr["l1"] = remote.ErrUnreachable

	fx.coordinator.drain()
	fx.coordinator.drain()

	entries, _ := fx.queue.PeekAll(context.Background(), "u1")
	if len(entries) != 1 || entries[0].Attempts != 2 {
		t.Errorf("expected 2 recorded attempts, got %+v", entries)
	}
}
