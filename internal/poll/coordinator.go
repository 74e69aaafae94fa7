package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default backoff policy values, applied when Config leaves them zero.
const (
	// defaultMaxBackoff caps the retry delay after consecutive failures.
	defaultMaxBackoff = 10 * time.Minute

	// defaultBackoffUnit is the per-failure delay increment.
	defaultBackoffUnit = 5 * time.Second
)

// VendorClient is the narrow capability interface every vendor adapter
// implements. The coordinator never depends on any vendor's wire format.
//
// Fetch returns the current field values or an error wrapping one of
// ErrTransient, ErrAuthFailed or ErrDisconnected. Close releases the
// underlying connection resources; it is called once by Stop.
type VendorClient interface {
	Fetch(ctx context.Context) (Payload, error)
	Close() error
}

// Reconnector is optionally implemented by session-oriented vendor clients.
// When Fetch fails with ErrDisconnected from a previously connected session,
// the coordinator calls Reconnect and retries the fetch exactly once.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// ListenerFunc is invoked synchronously with each newly published Snapshot.
// Panics are recovered and logged; a failing listener never prevents other
// listeners from running.
type ListenerFunc func(Snapshot)

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds coordinator settings.
type Config struct {
	// Interval between periodic polls. Required, must be positive.
	Interval time.Duration

	// MaxBackoff caps the retry delay after consecutive transient failures.
	// Default: 10 minutes.
	MaxBackoff time.Duration

	// BackoffUnit is the per-failure delay increment.
	// Default: 5 seconds.
	BackoffUnit time.Duration
}

// Coordinator owns a single periodic refresh cycle against one VendorClient
// and fans out updated Snapshots to registered listeners.
type Coordinator struct {
	client VendorClient
	cfg    Config
	logger Logger

	// now is time.Now except in tests.
	now func() time.Time

	// mu guards snapshot, state, backoff, listeners and inflight.
	mu        sync.Mutex
	snapshot  Snapshot
	state     ConnState
	backoff   backoffState
	listeners []listenerEntry
	listenSeq uint64
	inflight  *inflightPoll
	started   bool
	cancel    context.CancelFunc

	// onAuthError is invoked once when a tick-driven poll hits an
	// authentication failure (Refresh callers get the error returned instead).
	onAuthError func(error)

	// onStateChange is invoked after each connection state transition.
	onStateChange func(ConnState)

	// fanoutMu serializes publishes so listeners observe snapshots in
	// non-decreasing Seq order even when a push update races a poll.
	fanoutMu sync.Mutex

	// Shutdown coordination (stopOnce prevents double-close panics).
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Statistics (atomic for lock-free reads).
	pollsTotal      atomic.Uint64
	fetchesTotal    atomic.Uint64
	failuresTotal   atomic.Uint64
	reconnectsTotal atomic.Uint64
	skippedBackoff  atomic.Uint64
	skippedAuth     atomic.Uint64
	lastSuccess     atomic.Int64 // Unix timestamp
}

// listenerEntry pairs a listener with its registration id so the unsubscribe
// handle can remove it without comparing function values.
type listenerEntry struct {
	id uint64
	fn ListenerFunc
}

// inflightPoll lets concurrent Refresh callers join the poll already running
// instead of starting a second one.
type inflightPoll struct {
	done chan struct{}
	snap Snapshot
	err  error
}

// New creates a coordinator for the given vendor client.
//
// Configuration is validated here, never during polling: a non-positive
// Interval returns ErrInvalidInterval and a negative MaxBackoff returns
// ErrInvalidMaxBackoff. Zero MaxBackoff/BackoffUnit get defaults.
func New(client VendorClient, cfg Config) (*Coordinator, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidInterval, cfg.Interval)
	}
	if cfg.MaxBackoff < 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidMaxBackoff, cfg.MaxBackoff)
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.BackoffUnit == 0 {
		cfg.BackoffUnit = defaultBackoffUnit
	}

	return &Coordinator{
		client: client,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetOnAuthError sets a callback invoked when a tick-driven poll discovers
// an authentication failure. It fires once per failure onset; polling is
// suspended afterwards until ResetAuth.
func (c *Coordinator) SetOnAuthError(callback func(error)) {
	c.mu.Lock()
	c.onAuthError = callback
	c.mu.Unlock()
}

// SetOnStateChange sets a callback invoked whenever the connection state
// changes. The callback runs outside the coordinator's lock; it must not
// block for extended periods.
func (c *Coordinator) SetOnStateChange(callback func(ConnState)) {
	c.mu.Lock()
	c.onStateChange = callback
	c.mu.Unlock()
}

// transitionLocked records a state change while mu is held and returns the
// callback to fire after the lock is released, or nil when nothing changed.
func (c *Coordinator) transitionLocked(next ConnState) func() {
	if c.state == next {
		return nil
	}
	c.state = next
	cb := c.onStateChange
	if cb == nil {
		return nil
	}
	return func() { cb(next) }
}

// Start begins the periodic poll cycle. The first poll runs immediately,
// then every Interval. Returns ErrAlreadyStarted if called twice.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	var runCtx context.Context
	runCtx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// run drives the periodic poll cycle until Stop or context cancellation.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	// Immediate first poll so entities have state before the first tick.
	c.tick(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick executes one scheduled poll and routes an auth failure to the
// registered callback.
func (c *Coordinator) tick(ctx context.Context) {
	_, err := c.executePoll(ctx)
	if err == nil || !errors.Is(err, ErrAuthFailed) {
		return
	}

	c.logger.Warn("authentication failed, polling suspended", "error", err)
	c.mu.Lock()
	callback := c.onAuthError
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

// Refresh triggers an immediate out-of-cycle poll and returns when it
// completes. If a poll is already in flight, Refresh joins it and returns
// that poll's result rather than starting a second fetch.
//
// Transient failures are absorbed: the previous snapshot is returned with a
// nil error and staleness is visible through State(). Only an authentication
// failure at its onset is returned as an error.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	select {
	case <-c.done:
		return c.Snapshot(), ErrStopped
	default:
	}
	return c.executePoll(ctx)
}

// executePoll runs the poll algorithm: join an in-flight poll if one exists,
// honour the auth and backoff gates, otherwise fetch and publish.
func (c *Coordinator) executePoll(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()

	// Re-check shutdown under the lock: Stop waits for the in-flight poll
	// before closing the client, so no new poll may start once done is closed.
	select {
	case <-c.done:
		snap := c.snapshot
		c.mu.Unlock()
		return snap, ErrStopped
	default:
	}

	// Join a poll already in flight (at-most-one-in-flight invariant).
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.snap, f.err
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}

	// Auth gate: never hammer a dead credential.
	if c.state == StateAuthFailed {
		snap := c.snapshot
		c.mu.Unlock()
		c.skippedAuth.Add(1)
		return snap, nil
	}

	// Backoff gate: rate-limited retry without busy-waiting.
	if next := c.backoff.nextAllowedAt(c.cfg.BackoffUnit, c.cfg.MaxBackoff); c.now().Before(next) {
		snap := c.snapshot
		c.mu.Unlock()
		c.skippedBackoff.Add(1)
		c.logger.Debug("poll skipped, backoff active", "next_allowed", next)
		return snap, nil
	}

	f := &inflightPoll{done: make(chan struct{})}
	c.inflight = f
	wasConnected := c.state == StateConnected
	var fire func()
	if c.state == StateDisconnected {
		fire = c.transitionLocked(StateConnecting)
	}
	c.mu.Unlock()
	if fire != nil {
		fire()
	}

	c.pollsTotal.Add(1)
	payload, err := c.fetchWithReconnect(ctx, wasConnected)
	snap, pollErr := c.settle(payload, err)

	// Publish the result to joiners, then clear the in-flight marker.
	f.snap, f.err = snap, pollErr
	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	return snap, pollErr
}

// fetchWithReconnect calls the vendor fetch, applying the
// reconnect-then-retry-once pattern for sessions dropped mid-flight.
func (c *Coordinator) fetchWithReconnect(ctx context.Context, wasConnected bool) (Payload, error) {
	c.fetchesTotal.Add(1)
	payload, err := c.client.Fetch(ctx)
	if err == nil || !wasConnected || !errors.Is(err, ErrDisconnected) {
		return payload, err
	}

	rc, ok := c.client.(Reconnector)
	if !ok {
		return nil, err
	}

	c.logger.Info("session dropped, attempting reconnect")
	c.reconnectsTotal.Add(1)
	if rerr := rc.Reconnect(ctx); rerr != nil {
		c.logger.Warn("reconnect failed", "error", rerr)
		return nil, err
	}

	// Exactly one retry; a second failure degrades to transient handling.
	c.fetchesTotal.Add(1)
	return c.client.Fetch(ctx)
}

// settle applies the fetch outcome to coordinator state and returns the
// snapshot plus the error (if any) to surface to the caller.
func (c *Coordinator) settle(payload Payload, err error) (Snapshot, error) {
	switch {
	case err == nil:
		return c.publish(payload), nil

	case errors.Is(err, ErrAuthFailed):
		c.mu.Lock()
		fire := c.transitionLocked(StateAuthFailed)
		snap := c.snapshot
		c.mu.Unlock()
		if fire != nil {
			fire()
		}
		c.failuresTotal.Add(1)
		return snap, err

	default:
		// Transient, or disconnected after the single reconnect attempt.
		c.mu.Lock()
		c.backoff.recordFailure(c.now())
		fire := c.transitionLocked(StateDisconnected)
		snap := c.snapshot
		attempts := c.backoff.attempts
		c.mu.Unlock()
		if fire != nil {
			fire()
		}
		c.failuresTotal.Add(1)
		c.logger.Warn("poll failed, backing off", "error", err, "attempts", attempts)
		return snap, nil
	}
}

// publish merges the payload into a fresh snapshot, replaces the stored one,
// resets failure state and notifies listeners in registration order.
// fanoutMu serializes publishes so per-listener snapshot order is monotone.
func (c *Coordinator) publish(payload Payload) Snapshot {
	c.fanoutMu.Lock()
	defer c.fanoutMu.Unlock()

	c.mu.Lock()
	// Re-check under the lock: a push update may race a poll that settled
	// AuthFailed after Apply's gate. The terminal state wins.
	if c.state == StateAuthFailed {
		snap := c.snapshot
		c.mu.Unlock()
		c.logger.Debug("update dropped, auth failed")
		return snap
	}
	snap := Snapshot{
		Seq:   c.snapshot.Seq + 1,
		Taken: c.now(),
		Data:  mergePayload(c.snapshot.Data, payload),
	}
	c.snapshot = snap
	c.backoff.recordSuccess()
	fire := c.transitionLocked(StateConnected)
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	if fire != nil {
		fire()
	}

	c.lastSuccess.Store(snap.Taken.Unix())

	for _, l := range listeners {
		c.notify(l.fn, snap)
	}
	return snap
}

// notify invokes one listener with panic isolation.
func (c *Coordinator) notify(fn ListenerFunc, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panic recovered", "panic", r, "seq", snap.Seq)
		}
	}()
	fn(snap)
}

// Apply feeds a push update (SSE/MQTT event stream) through the same
// merge-replace-notify path as a successful poll. A push update is evidence
// of a live session, so it resets backoff and marks the coordinator
// Connected.
//
// While the coordinator is AuthFailed the update is dropped: that state is
// terminal until an explicit ResetAuth.
func (c *Coordinator) Apply(payload Payload) {
	c.mu.Lock()
	if c.state == StateAuthFailed {
		c.mu.Unlock()
		c.logger.Debug("push update dropped, auth failed")
		return
	}
	c.mu.Unlock()

	c.publish(payload)
}

// ResetAuth clears the AuthFailed state after reauthorization so polling
// resumes on the next tick. No-op in any other state.
func (c *Coordinator) ResetAuth() {
	c.mu.Lock()
	var fire func()
	if c.state == StateAuthFailed {
		fire = c.transitionLocked(StateDisconnected)
		c.backoff.recordSuccess()
		c.logger.Info("auth state reset, polling will resume")
	}
	c.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// AddListener registers a callback invoked with each new Snapshot, in
// registration order. The returned function removes the listener; calling
// it more than once is a no-op.
func (c *Coordinator) AddListener(fn ListenerFunc) func() {
	c.mu.Lock()
	c.listenSeq++
	id := c.listenSeq
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.removeListener(id)
	}
}

// removeListener removes the listener with the given id, if still registered.
func (c *Coordinator) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Stop cancels any scheduled poll, waits for the in-flight poll to finish
// and then closes the vendor client. Safe to call multiple times. No polls
// run after Stop returns.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()

		// A direct Refresh caller may still be inside the vendor fetch.
		// Drain it before Close so the client is never closed under a
		// live call. After done is closed no new poll can start.
		for {
			c.mu.Lock()
			f := c.inflight
			c.mu.Unlock()
			if f == nil {
				break
			}
			<-f.done
		}

		if err := c.client.Close(); err != nil {
			c.logger.Warn("vendor client close failed", "error", err)
		}
	})
}

// Snapshot returns the most recently published snapshot.
// The zero Snapshot is returned before the first successful poll.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// State returns the current connection state.
func (c *Coordinator) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAvailable reports whether the last poll or push update succeeded.
func (c *Coordinator) IsAvailable() bool {
	return c.State().IsAvailable()
}

// Stats holds coordinator statistics for monitoring.
type Stats struct {
	State           ConnState  `json:"state"`
	SnapshotSeq     uint64     `json:"snapshot_seq"`
	BackoffAttempts int        `json:"backoff_attempts"`
	NextAllowedAt   *time.Time `json:"next_allowed_at,omitempty"`
	PollsTotal      uint64     `json:"polls_total"`
	FetchesTotal    uint64     `json:"fetches_total"`
	FailuresTotal   uint64     `json:"failures_total"`
	ReconnectsTotal uint64     `json:"reconnects_total"`
	SkippedBackoff  uint64     `json:"skipped_backoff"`
	SkippedAuth     uint64     `json:"skipped_auth"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
}

// Stats returns current coordinator statistics.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	state := c.state
	seq := c.snapshot.Seq
	attempts := c.backoff.attempts
	next := c.backoff.nextAllowedAt(c.cfg.BackoffUnit, c.cfg.MaxBackoff)
	c.mu.Unlock()

	stats := Stats{
		State:           state,
		SnapshotSeq:     seq,
		BackoffAttempts: attempts,
		PollsTotal:      c.pollsTotal.Load(),
		FetchesTotal:    c.fetchesTotal.Load(),
		FailuresTotal:   c.failuresTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		SkippedBackoff:  c.skippedBackoff.Load(),
		SkippedAuth:     c.skippedAuth.Load(),
	}
	// Pointers so idle coordinators omit the timestamps instead of
	// serializing the zero time.
	if attempts > 0 {
		stats.NextAllowedAt = &next
	}
	if ts := c.lastSuccess.Load(); ts != 0 {
		last := time.Unix(ts, 0)
		stats.LastSuccess = &last
	}
	return stats
}
