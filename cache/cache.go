// Package cache provides a generic, read-only, in-memory view of a versioned
// dataset served by a registry that only supports blocking (long-poll)
// queries. A single poll loop converts the pull protocol into a continuously
// updated local snapshot with change notifications.
//
// There is exactly one producer (the poll loop) and many readers: the cached
// snapshot must be treated as immutable. Callers MUST NOT mutate maps
// returned by Map or passed to listeners.
package cache

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhenzou/executors"

	"github.com/quorumhq/regcache/internal/log"
)

const (
	// DefaultBlockSeconds is the server-side wait of one blocking query.
	DefaultBlockSeconds = 10

	// DefaultBackoff is the delay before retrying after a failed poll.
	DefaultBackoff = 10 * time.Second
)

// Response is the decoded result of one blocking query.
type Response[V any] struct {
	Values []V

	// Cursor is the watch index assigned by the registry, nil if the
	// response did not carry one (anomalous but not fatal).
	Cursor *Cursor

	// LastContact is how long ago the answering server heard from the
	// leader.
	LastContact time.Duration

	// KnownLeader reports whether the cluster had an elected leader. A
	// response without a leader is treated as a failure.
	KnownLeader bool
}

// Metadata is the response metadata published alongside the snapshot.
type Metadata struct {
	LastContact time.Duration
	KnownLeader bool
	Cursor      *Cursor
}

// Poller performs one blocking query with the given parameters. It may block
// for up to the wait duration in opts. Implementations must return either a
// response or an error, never both.
type Poller[V any] func(ctx context.Context, opts QueryOptions) (*Response[V], error)

// KeyFunc derives the snapshot key for a value. It must be deterministic.
// Returning ok=false drops the value from the snapshot.
type KeyFunc[K comparable, V any] func(v V) (key K, ok bool)

// Scheduler is the subset of executors.ScheduledExecutor the cache uses.
type Scheduler interface {
	ExecuteFunc(f func(ctx context.Context)) error
	ScheduleFunc(f func(ctx context.Context), delay time.Duration) (executors.CancelFunc, error)
	ScheduleFuncAtCronRate(f func(ctx context.Context), rule executors.CRONRule) (executors.CancelFunc, error)
	Shutdown(ctx context.Context) error
}

// Options defines the configuration for Cache.
type Options[K comparable, V any] struct {
	// Name is used for logging purposes.
	Name string

	// Poller performs the blocking query. Required.
	Poller Poller[V]

	// KeyFunc projects a value to its snapshot key. Required.
	KeyFunc KeyFunc[K, V]

	// Query is the caller-controlled base request parameters, passed through
	// to every poll. Must not set Index or Wait.
	Query QueryOptions

	// BlockSeconds is the server-side wait per blocking query.
	// Defaults to DefaultBlockSeconds.
	BlockSeconds int

	// Backoff is the retry delay after a failed poll. The cache retries
	// forever at this fixed interval. Defaults to DefaultBackoff.
	Backoff time.Duration

	// Compare reports whether two snapshots are equal; equal snapshots are
	// not republished and listeners are not notified.
	// Defaults to reflect.DeepEqual.
	Compare func(previous, next map[K]V) bool

	// Executor runs polls and retries. The cache never runs two polls
	// concurrently regardless of the executor's concurrency: each poll is
	// submitted only after the previous one's handling returned.
	// When nil the cache owns a small pool executor and shuts it down on
	// Stop.
	Executor Scheduler
}

// published is the atomically swapped snapshot/metadata pair. Swapping the
// pair as one value is what prevents readers from observing a new map with
// old metadata or vice versa.
type published[K comparable, V any] struct {
	snapshot map[K]V
	meta     Metadata
}

// Cache maintains the snapshot by chaining blocking queries: each successful
// poll immediately issues the next one, each failed poll schedules a retry of
// the same cursor after a fixed backoff.
type Cache[K comparable, V any] struct {
	name         string
	poller       Poller[V]
	keyFn        KeyFunc[K, V]
	baseQuery    QueryOptions
	blockSeconds int
	backoff      time.Duration
	compare      func(previous, next map[K]V) bool

	executor     Scheduler
	ownsExecutor bool

	state  atomic.Int32
	initCh chan struct{}

	cursor          atomic.Pointer[Cursor]
	cursorUpdatedAt atomic.Int64
	published       atomic.Pointer[published[K, V]]

	listeners listenerSet[K, V]

	// startingMu serializes the first notification dispatch against listener
	// registration while the cache is Starting, so a listener registering
	// mid-transition is neither skipped nor notified twice. Held for at most
	// one notification pass, never across a poll.
	startingMu sync.Mutex

	cancelMu       sync.Mutex
	retryCancel    executors.CancelFunc
	watchdogCancel executors.CancelFunc
}

// New creates a Cache. It does not start polling; call Start.
func New[K comparable, V any](opts Options[K, V]) (*Cache[K, V], error) {
	if opts.Poller == nil {
		panic("cache: Poller is required")
	}

	if opts.KeyFunc == nil {
		panic("cache: KeyFunc is required")
	}

	if _, err := WatchParams(nil, 0, opts.Query); err != nil {
		return nil, err
	}

	if opts.BlockSeconds <= 0 {
		opts.BlockSeconds = DefaultBlockSeconds
	}

	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}

	compare := opts.Compare
	if compare == nil {
		compare = func(previous, next map[K]V) bool {
			return reflect.DeepEqual(previous, next)
		}
	}

	c := &Cache[K, V]{
		name:         opts.Name,
		poller:       opts.Poller,
		keyFn:        opts.KeyFunc,
		baseQuery:    opts.Query,
		blockSeconds: opts.BlockSeconds,
		backoff:      opts.Backoff,
		compare:      compare,
		executor:     opts.Executor,
		initCh:       make(chan struct{}),
	}

	if c.executor == nil {
		// Two workers: one for the in-flight poll, one so the cursor
		// watchdog does not queue behind a blocking query.
		c.executor = executors.NewPoolScheduleExecutor(
			executors.WithMaxConcurrent(2),
			executors.WithErrorHandler(&pollErrorHandler{name: c.name}),
		)
		c.ownsExecutor = true
	}

	return c, nil
}

// State returns the current lifecycle state.
func (c *Cache[K, V]) State() State {
	return State(c.state.Load())
}

func (c *Cache[K, V]) isRunning() bool {
	state := c.State()
	return state == StateStarting || state == StateStarted
}

// Start transitions the cache from Latent to Starting and issues the first
// poll. A second Start fails; a stopped cache cannot be restarted.
func (c *Cache[K, V]) Start() error {
	if !c.state.CompareAndSwap(int32(StateLatent), int32(StateStarting)) {
		return &InvalidTransitionError{From: c.State(), To: StateStarting}
	}

	ctx := context.Background()
	log.Info(ctx, "watch cache starting", log.String("cache", c.name))

	cancel, err := c.executor.ScheduleFuncAtCronRate(
		c.checkCursorFreshness,
		executors.CRONRule{Expr: "* * * * *"},
	)
	if err != nil {
		log.Warn(ctx, "failed to schedule cursor watchdog", log.String("cache", c.name), log.Cause(err))
	} else {
		c.cancelMu.Lock()
		c.watchdogCancel = cancel
		c.cancelMu.Unlock()
	}

	c.submitPoll(ctx)

	return nil
}

// Stop transitions the cache to Stopped, cancels any pending retry and stops
// the owned executor. Idempotent. A poll already in flight is discarded when
// its handler observes the state.
func (c *Cache[K, V]) Stop() {
	previous := State(c.state.Swap(int32(StateStopped)))
	if previous == StateStopped {
		return
	}

	ctx := context.Background()
	log.Info(ctx, "watch cache stopping", log.String("cache", c.name), log.String("from", previous.String()))

	c.cancelMu.Lock()
	retryCancel := c.retryCancel
	watchdogCancel := c.watchdogCancel
	c.retryCancel = nil
	c.watchdogCancel = nil
	c.cancelMu.Unlock()

	if retryCancel != nil {
		retryCancel()
	}

	if watchdogCancel != nil {
		watchdogCancel()
	}

	if c.ownsExecutor {
		if err := c.executor.Shutdown(ctx); err != nil {
			log.Warn(ctx, "executor shutdown failed", log.String("cache", c.name), log.Cause(err))
		}
	}
}

// AwaitInitialized blocks until the first successful poll has produced a
// snapshot, or the timeout elapses. It reports whether the cache became ready
// in time.
func (c *Cache[K, V]) AwaitInitialized(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.initCh:
		return true
	case <-timer.C:
		return false
	}
}

// Initialized returns a channel closed once the first snapshot is published.
func (c *Cache[K, V]) Initialized() <-chan struct{} {
	return c.initCh
}

// Map returns the current snapshot, nil before the first successful poll.
// The returned map must not be mutated.
func (c *Cache[K, V]) Map() map[K]V {
	p := c.published.Load()
	if p == nil {
		return nil
	}

	return p.snapshot
}

// MapWithMetadata returns the current snapshot together with the response
// metadata it was published with. The cursor reflects the latest successful
// poll, which may be newer than the snapshot when polls returned unchanged
// data.
func (c *Cache[K, V]) MapWithMetadata() (map[K]V, Metadata) {
	p := c.published.Load()
	if p == nil {
		return nil, Metadata{Cursor: c.cursor.Load()}
	}

	meta := p.meta
	meta.Cursor = c.cursor.Load()

	return p.snapshot, meta
}

// AddListener registers a listener. A listener added to a Started cache is
// immediately notified with the current snapshot, so every listener sees at
// least one notification reflecting present state.
func (c *Cache[K, V]) AddListener(l Listener[K, V]) bool {
	locked := false
	if c.State() == StateStarting {
		c.startingMu.Lock()
		locked = true
	}

	defer func() {
		if locked {
			c.startingMu.Unlock()
		}
	}()

	c.listeners.add(l)

	// Under the lock, Started means the first dispatch already ran without
	// this listener; replay the current snapshot. Still Starting means the
	// first dispatch has not iterated yet and will include it.
	if c.State() == StateStarted {
		if p := c.published.Load(); p != nil {
			c.safeNotify(context.Background(), l, p.snapshot)
		}
	}

	return true
}

// RemoveListener removes a listener by identity. Safe to call concurrently
// with a notification pass; the pass iterates a stable view.
func (c *Cache[K, V]) RemoveListener(l Listener[K, V]) bool {
	return c.listeners.remove(l)
}

func (c *Cache[K, V]) submitPoll(ctx context.Context) {
	if err := c.executor.ExecuteFunc(c.runPoll); err != nil {
		log.Error(ctx, "failed to submit poll", log.String("cache", c.name), log.Cause(err))
	}
}

// runPoll performs one blocking query and handles its outcome. The next poll
// is issued only after this one's handling returned, so no two polls are ever
// in flight for one cache.
func (c *Cache[K, V]) runPoll(ctx context.Context) {
	if !c.isRunning() {
		log.Debug(ctx, "poll skipped, cache not running", log.String("cache", c.name))
		return
	}

	opts, err := WatchParams(c.cursor.Load(), c.blockSeconds, c.baseQuery)
	if err != nil {
		// Base query is validated in New, so this only fires if the caller
		// mutated it afterwards.
		log.Error(ctx, "invalid watch parameters", log.String("cache", c.name), log.Cause(err))
		return
	}

	resp, err := c.poller(ctx, opts)

	switch {
	case err != nil:
		c.handleFailure(ctx, err)
	case !resp.KnownLeader:
		c.handleFailure(ctx, ErrNoLeader)
	default:
		c.handleSuccess(ctx, resp)
	}
}

func (c *Cache[K, V]) handleSuccess(ctx context.Context, resp *Response[V]) {
	if !c.isRunning() {
		log.Debug(ctx, "discarding poll response, cache not running", log.String("cache", c.name))
		return
	}

	c.updateCursor(ctx, resp)

	snapshot := c.buildSnapshot(ctx, resp.Values)

	previous := c.published.Load()
	changed := previous == nil || !c.compare(previous.snapshot, snapshot)

	if changed {
		c.published.Store(&published[K, V]{
			snapshot: snapshot,
			meta: Metadata{
				LastContact: resp.LastContact,
				KnownLeader: resp.KnownLeader,
				Cursor:      c.cursor.Load(),
			},
		})

		log.Debug(ctx, "snapshot updated",
			log.String("cache", c.name),
			log.Int("entries", len(snapshot)),
			log.Int("listeners", c.listeners.len()),
		)
	}

	c.deliver(ctx, snapshot, changed)

	c.submitPoll(ctx)
}

// deliver notifies listeners of a changed snapshot and completes the
// Starting->Started transition. While Starting, both happen under startingMu
// so that AddListener observes either "dispatch pending" or "started", never
// a half-done first delivery.
func (c *Cache[K, V]) deliver(ctx context.Context, snapshot map[K]V, changed bool) {
	locked := false
	if c.State() == StateStarting {
		c.startingMu.Lock()
		locked = true
	}

	defer func() {
		if locked {
			c.startingMu.Unlock()
		}
	}()

	if changed {
		for _, l := range c.listeners.snapshot() {
			c.safeNotify(ctx, l, snapshot)
		}
	}

	if c.state.CompareAndSwap(int32(StateStarting), int32(StateStarted)) {
		close(c.initCh)
		log.Info(ctx, "watch cache started", log.String("cache", c.name))
	}
}

func (c *Cache[K, V]) safeNotify(ctx context.Context, l Listener[K, V], snapshot map[K]V) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "listener panicked", log.String("cache", c.name), log.Any("panic", r))
		}
	}()

	l.Notify(snapshot)
}

func (c *Cache[K, V]) handleFailure(ctx context.Context, err error) {
	if !c.isRunning() {
		log.Debug(ctx, "discarding poll failure, cache not running", log.String("cache", c.name))
		return
	}

	// The cursor is left untouched so the retry repeats the same read. The
	// last good snapshot stays visible throughout the outage.
	log.Warn(ctx, "poll failed, scheduling retry",
		log.String("cache", c.name),
		log.Duration("backoff", c.backoff),
		log.Cause(err),
	)

	cancel, serr := c.executor.ScheduleFunc(c.runPoll, c.backoff)
	if serr != nil {
		log.Error(ctx, "failed to schedule retry", log.String("cache", c.name), log.Cause(serr))
		return
	}

	c.cancelMu.Lock()
	c.retryCancel = cancel
	c.cancelMu.Unlock()
}

func (c *Cache[K, V]) updateCursor(ctx context.Context, resp *Response[V]) {
	if resp.Cursor == nil {
		log.Warn(ctx, "poll response carried no cursor, keeping previous", log.String("cache", c.name))
		return
	}

	c.cursor.Store(resp.Cursor.Ptr())
	c.cursorUpdatedAt.Store(time.Now().UnixNano())
}

// buildSnapshot projects the value list into a key->value map. Values whose
// key projection reports ok=false are skipped and never tracked for
// duplicate detection. On a duplicate key the first value wins.
func (c *Cache[K, V]) buildSnapshot(ctx context.Context, values []V) map[K]V {
	snapshot := make(map[K]V, len(values))

	for _, v := range values {
		key, ok := c.keyFn(v)
		if !ok {
			continue
		}

		if _, dup := snapshot[key]; dup {
			log.Warn(ctx, "duplicate key in poll response, dropping value; key projection may need refining",
				log.String("cache", c.name),
				log.Any("key", key),
			)

			continue
		}

		snapshot[key] = v
	}

	return snapshot
}

// checkCursorFreshness logs when the cursor has stopped advancing for much
// longer than a blocking query should take, which usually means the upstream
// watch is wedged.
func (c *Cache[K, V]) checkCursorFreshness(ctx context.Context) {
	if !c.isRunning() {
		return
	}

	updatedAt := c.cursorUpdatedAt.Load()
	if updatedAt == 0 {
		return
	}

	threshold := max(time.Minute, 2*time.Duration(c.blockSeconds)*time.Second)

	stale := time.Since(time.Unix(0, updatedAt))
	if stale > threshold {
		log.Error(ctx, "cursor has not advanced",
			log.String("cache", c.name),
			log.Duration("stale_for", stale),
		)
	}
}

// pollErrorHandler surfaces panics and errors from the owned executor.
type pollErrorHandler struct {
	name string
}

func (h *pollErrorHandler) CatchError(_ executors.Runnable, err error) {
	log.Error(context.Background(), "poll task error", log.String("cache", h.name), log.Cause(err))
}
