package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State two-valued connectivity state
type State int

// connectivity states
const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Prober checks whether the remote side is reachable
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor watches remote reachability and publishes online/offline
// transitions. Subscribers receive transitions only, never repeated states
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	subs  []chan State

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewMonitor create a connectivity monitor, initial state is offline until
// the first successful probe
func NewMonitor(prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		logger:   logger,
		state:    Offline,
		stopChan: make(chan struct{}),
	}
}

// Start launch the probe loop
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.probeLoop()
	}()
}

// Stop stop the probe loop
func (m *Monitor) Stop() {
	if !atomic.CompareAndSwapUint32(&m.stopped, 0, 1) {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
}

func (m *Monitor) probeLoop() {
	m.probe()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	if err := m.prober.Probe(ctx); err != nil {
		m.Set(Offline)
	} else {
		m.Set(Online)
	}
}

// Online current state snapshot
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Online
}

// Set record a state, notifying subscribers if it is a transition. Exposed so
// a forced-offline mode (or a test) can drive the signal without a prober
func (m *Monitor) Set(state State) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]chan State, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.Info("Connectivity transition", zap.String("connectivity.state", state.String()))
	for _, sub := range subs {
		// drop the stale value if the subscriber has not consumed it yet
		select {
		case sub <- state:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- state:
			default:
			}
		}
	}
}

// Subscribe register a transition listener
func (m *Monitor) Subscribe() <-chan State {
	sub := make(chan State, 1)
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	return sub
}
