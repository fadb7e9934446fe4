package followup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/messaging"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/store"
)

// Pool sizing constants.
const (
	// DefaultWorkerCount bounds how many campaigns execute simultaneously.
	DefaultWorkerCount = 10
	// DefaultQueueSize bounds how many armed campaigns can wait for a worker.
	DefaultQueueSize = 1024
	// DefaultArmDelay is the brief pause before a fresh run starts, giving a
	// superseded run time to observe its cancellation.
	DefaultArmDelay = 500 * time.Millisecond
)

type campaignKey struct {
	userID int64
	kind   Kind
}

// run tracks one campaign execution. Closing cancel stops it at the next
// checkpoint.
type run struct {
	cancel chan struct{}
}

// Manager arms and cancels follow-up campaigns, executing them on a bounded
// worker pool so long-lived waits cannot exhaust system threads.
type Manager struct {
	svc      messaging.Service
	store    store.Store
	clock    clockwork.Clock
	armDelay time.Duration
	workers  int

	jobs chan func()
	wg   sync.WaitGroup
	// arming tracks in-flight enqueues so Stop never closes jobs under a
	// concurrent Arm.
	arming sync.WaitGroup

	mu     sync.Mutex
	active map[campaignKey]*run
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithArmDelay overrides the pause before a fresh run starts (tests use 0).
func WithArmDelay(d time.Duration) Option {
	return func(m *Manager) { m.armDelay = d }
}

// WithWorkerCount overrides the pool size.
func WithWorkerCount(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// NewManager creates a Manager and starts its worker pool.
func NewManager(svc messaging.Service, st store.Store, clock clockwork.Clock, opts ...Option) *Manager {
	m := &Manager{
		svc:      svc,
		store:    st,
		clock:    clock,
		armDelay: DefaultArmDelay,
		workers:  DefaultWorkerCount,
		active:   make(map[campaignKey]*run),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.jobs = make(chan func(), DefaultQueueSize)
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	slog.Debug("FollowupManager created", "arm_delay", m.armDelay, "workers", m.workers)
	return m
}

// worker drains the job queue, recovering panics so one campaign cannot
// take down the pool.
func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("FollowupManager worker recovered from panic", "panic", r)
				}
			}()
			job()
		}()
	}
}

// Arm starts a campaign of the given kind for the user, superseding any
// campaign of the same kind already running. The new run waits briefly
// before its first checkpoint so the superseded run can observe the
// cancellation.
func (m *Manager) Arm(userID int64, kind Kind) {
	key := campaignKey{userID: userID, kind: kind}
	r := &run{cancel: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		slog.Warn("FollowupManager Arm after shutdown ignored", "userID", userID, "kind", kind)
		return
	}
	if old, exists := m.active[key]; exists {
		close(old.cancel)
		slog.Info("FollowupManager superseding active campaign", "userID", userID, "kind", kind)
	}
	m.active[key] = r
	m.arming.Add(1)
	m.mu.Unlock()

	slog.Info("FollowupManager campaign armed", "userID", userID, "kind", kind)
	m.jobs <- func() { m.execute(key, r) }
	m.arming.Done()
}

// Cancel stops the user's campaign of the given kind. Returns whether a
// campaign was active.
func (m *Manager) Cancel(userID int64, kind Kind) bool {
	key := campaignKey{userID: userID, kind: kind}

	m.mu.Lock()
	defer m.mu.Unlock()
	r, exists := m.active[key]
	if !exists {
		return false
	}
	close(r.cancel)
	delete(m.active, key)
	slog.Info("FollowupManager campaign cancelled", "userID", userID, "kind", kind)
	return true
}

// CancelAll stops both campaign kinds for the user.
func (m *Manager) CancelAll(userID int64) {
	m.Cancel(userID, KindPayment)
	m.Cancel(userID, KindProof)
}

// execute runs one campaign to completion, cancellation, or state mismatch.
func (m *Manager) execute(key campaignKey, r *run) {
	defer m.finish(key, r)

	// Let a superseded run drain before the first checkpoint.
	if !m.wait(r, m.armDelay) {
		slog.Debug("FollowupManager campaign cancelled before start", "userID", key.userID, "kind", key.kind)
		return
	}

	expected := ExpectedState(key.kind)
	steps := Steps(key.kind)
	slog.Info("FollowupManager campaign started", "userID", key.userID, "kind", key.kind, "steps", len(steps))

	for i, step := range steps {
		if !m.stateMatches(key, expected) {
			slog.Info("FollowupManager campaign stopped on state change", "userID", key.userID, "kind", key.kind, "step", i)
			return
		}

		slog.Debug("FollowupManager waiting for next step", "userID", key.userID, "kind", key.kind, "step", i, "delay", step.Delay)
		if !m.wait(r, step.Delay) {
			slog.Info("FollowupManager campaign cancelled during wait", "userID", key.userID, "kind", key.kind, "step", i)
			return
		}

		if !m.stateMatches(key, expected) {
			slog.Info("FollowupManager campaign stopped on state change after wait", "userID", key.userID, "kind", key.kind, "step", i)
			return
		}

		message := step.Message
		if message == "" {
			message = FallbackMessage
		}
		if err := m.send(key.userID, message); err != nil {
			slog.Error("FollowupManager step send failed, terminating campaign", "error", err, "userID", key.userID, "kind", key.kind, "step", i)
			return
		}
		slog.Info("FollowupManager step sent", "userID", key.userID, "kind", key.kind, "step", i)
	}

	slog.Info("FollowupManager campaign completed", "userID", key.userID, "kind", key.kind)
}

// wait sleeps for d, returning false if the run is cancelled first.
func (m *Manager) wait(r *run, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-r.cancel:
			return false
		default:
			return true
		}
	}
	select {
	case <-r.cancel:
		return false
	case <-m.clock.After(d):
		// Cancellation wins when both are ready.
		select {
		case <-r.cancel:
			return false
		default:
			return true
		}
	}
}

func (m *Manager) stateMatches(key campaignKey, expected string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := m.store.GetUserState(ctx, key.userID)
	if err != nil {
		slog.Warn("FollowupManager state check failed, continuing", "error", err, "userID", key.userID)
		return true
	}
	return state == expected
}

func (m *Manager) send(userID int64, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.svc.SendChatAction(ctx, userID, models.ChatActionTyping); err != nil {
		slog.Warn("FollowupManager chat action failed", "error", err, "userID", userID)
	}
	return m.svc.SendText(ctx, userID, message)
}

// finish clears the active entry if this run still owns it.
func (m *Manager) finish(key campaignKey, r *run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[key] == r {
		delete(m.active, key)
	}
}

// IsActive reports whether a campaign of the kind is active for the user.
func (m *Manager) IsActive(userID int64, kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.active[campaignKey{userID: userID, kind: kind}]
	return exists
}

// Stats summarizes active campaigns for the admin API.
func (m *Manager) Stats() models.FollowupStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]struct{})
	var ids []int64
	for key := range m.active {
		if _, ok := seen[key.userID]; !ok {
			seen[key.userID] = struct{}{}
			ids = append(ids, key.userID)
		}
	}
	return models.FollowupStats{ActiveCampaigns: len(m.active), UserIDs: ids}
}

// Stop cancels all campaigns and shuts down the worker pool.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for key, r := range m.active {
		close(r.cancel)
		delete(m.active, key)
	}
	m.mu.Unlock()

	// Arms that raced past the closed check are registered in arming while
	// still holding the lock, so waiting here makes the close safe.
	m.arming.Wait()
	close(m.jobs)
	m.wg.Wait()
	slog.Info("FollowupManager stopped")
}
