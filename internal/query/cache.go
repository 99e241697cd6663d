package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"second-brain/internal/notify"
	"second-brain/internal/worker"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrDisabled is returned by Fetch when the query is disabled and nothing
// is cached for it.
var ErrDisabled = errors.New("query disabled")

// SharedStore is an optional second-level cache shared between processes.
// Values are addressed by keys that embed the scope, the scope version and
// the version of every prefix, so bumping any of them invalidates all values
// below it.
type SharedStore interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetVersion(ctx context.Context, versionKey string) int64
	IncrementVersion(ctx context.Context, versionKey string)
}

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key        Key
	data       any
	hasData    bool
	err        error
	updatedAt  time.Time
	lastAccess time.Time
	invalid    bool
	fetching   int
	// gen changes whenever cached data is replaced or invalidated. A fetch
	// started under an older generation does not write its result.
	gen     uint64
	fetcher fetchFunc
	opts    Options
}

type subscription struct {
	key Key
	fn  func(Key)
}

// State is a snapshot of one cache entry.
type State struct {
	HasData   bool
	Err       error
	UpdatedAt time.Time
	Fetching  bool
	Stale     bool
}

// Cache is the process-wide query/mutation cache. Fetches of one key are
// collapsed into a single in-flight call.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	subs     map[int]subscription
	nextSub  int
	mutating map[string]int

	group    singleflight.Group
	defaults Options
	pool     *worker.WorkerPool
	shared   SharedStore
	scope    func(ctx context.Context) string
	notifier notify.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Cache)

// WithPool runs background refetches on pool instead of inline.
func WithPool(pool *worker.WorkerPool) Option {
	return func(c *Cache) { c.pool = pool }
}

func WithSharedStore(s SharedStore) Option {
	return func(c *Cache) { c.shared = s }
}

// WithScope partitions the shared store by the value fn returns, normally the
// signed-in user. While fn returns "" the shared store is not used.
func WithScope(fn func(ctx context.Context) string) Option {
	return func(c *Cache) { c.scope = fn }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Cache) { c.notifier = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(defaults Options, opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		subs:     make(map[int]subscription),
		mutating: make(map[string]int),
		defaults: defaults,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notifier returns the notifier used for mutation results.
func (c *Cache) Notifier() notify.Notifier {
	return c.notifier
}

// Query describes one cached read.
type Query[T any] struct {
	Key Key
	Fn  func(ctx context.Context) (T, error)
	Options
}

// Fetch returns the cached value for q.Key when it is fresh, otherwise runs
// q.Fn. Concurrent fetches of the same key share one call. When ctx ends the
// caller stops waiting but the call completes and populates the cache.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	opts := q.Options.merge(c.defaults)
	fn := func(ctx context.Context) (any, error) { return q.Fn(ctx) }

	c.mu.Lock()
	e := c.entryLocked(q.Key)
	e.lastAccess = c.now()
	e.fetcher = fn
	e.opts = opts
	if e.hasData && !c.staleLocked(e) {
		v, ok := e.data.(T)
		c.mu.Unlock()
		if !ok {
			return zero, fmt.Errorf("query %s: cached %T is not %T", q.Key, e.data, zero)
		}
		return v, nil
	}
	cached, hasCached := e.data, e.hasData
	gen := e.gen
	c.mu.Unlock()

	if !opts.enabled() {
		if v, ok := cached.(T); hasCached && ok {
			return v, nil
		}
		return zero, ErrDisabled
	}

	if sk, ok := c.sharedKey(ctx, q.Key); !hasCached && ok {
		var v T
		if found, err := c.shared.Get(ctx, sk, &v); err != nil {
			c.log.Warn().Err(err).Str("key", q.Key.String()).Msg("shared cache read failed")
		} else if found {
			c.store(q.Key, gen, v)
			return v, nil
		}
	}

	ch := c.group.DoChan(flightKey(q.Key, gen), func() (any, error) {
		return c.run(context.WithoutCancel(ctx), q.Key, gen, fn, opts)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query %s: fetched %T is not %T", q.Key, res.Val, zero)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// GetQueryData returns the cached value for key without fetching.
func GetQueryData[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// SetQueryData replaces the cached value for key. Fetches already in flight
// for the key will not overwrite it.
func SetQueryData[T any](c *Cache, key Key, value T) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.setLocked(e, value)
	c.mu.Unlock()
	c.publish([]Key{key})
}

// UpdateQueryData applies fn to the cached value for key and stores the
// result. It does nothing when key holds no value of type T.
func UpdateQueryData[T any](c *Cache, key Key, fn func(T) T) bool {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		c.mu.Unlock()
		return false
	}
	old, ok := e.data.(T)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.setLocked(e, fn(old))
	c.mu.Unlock()
	c.publish([]Key{key})
	return true
}

// State reports the entry for key.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{Stale: true}
	}
	return State{
		HasData:   e.hasData,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
		Fetching:  e.fetching > 0,
		Stale:     c.staleLocked(e),
	}
}

// Invalidate marks every entry under prefix stale. Observed entries with a
// known fetcher are refetched, on the worker pool when one is configured.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) {
	type refetch struct {
		key  Key
		gen  uint64
		fn   fetchFunc
		opts Options
	}
	var (
		keys  []Key
		todos []refetch
	)

	c.mu.Lock()
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalid = true
		e.gen++
		keys = append(keys, e.key)
		if e.fetcher != nil && c.observedLocked(e.key) && e.opts.enabled() {
			todos = append(todos, refetch{key: e.key, gen: e.gen, fn: e.fetcher, opts: e.opts})
		}
	}
	c.mu.Unlock()

	if scope, ok := c.currentScope(ctx); ok {
		c.shared.IncrementVersion(ctx, versionKey(scope, prefix))
	}
	c.log.Debug().Str("prefix", prefix.String()).Int("entries", len(keys)).Msg("query invalidated")

	for _, r := range todos {
		task := func(ctx context.Context) error {
			_, err, _ := c.group.Do(flightKey(r.key, r.gen), func() (any, error) {
				return c.run(ctx, r.key, r.gen, r.fn, r.opts)
			})
			return err
		}
		if c.pool == nil || !c.pool.Submit(task) {
			if err := task(context.WithoutCancel(ctx)); err != nil {
				c.log.Debug().Err(err).Str("key", r.key.String()).Msg("refetch failed")
			}
		}
	}

	c.publish(keys)
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) {
	var keys []Key
	c.mu.Lock()
	for k, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			keys = append(keys, e.key)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	c.publish(keys)
}

// Clear drops every entry and retires everything the current scope holds in
// the shared store. Call it while the scope still names the session being
// ended or started.
func (c *Cache) Clear(ctx context.Context) {
	var keys []Key
	c.mu.Lock()
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	if scope, ok := c.currentScope(ctx); ok {
		c.shared.IncrementVersion(ctx, scopeVersionKey(scope))
	}
	c.publish(keys)
}

// Subscribe calls fn whenever an entry under key changes, is invalidated or
// removed. Entries under a subscribed key count as observed.
func (c *Cache) Subscribe(key Key, fn func(Key)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscription{key: key, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// GC drops unobserved entries not used for longer than their GCTime.
func (c *Cache) GC() int {
	now := c.now()
	removed := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.fetching > 0 || c.observedLocked(e.key) {
			continue
		}
		if now.Sub(e.lastAccess) > e.opts.merge(c.defaults).GCTime {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// RunGC collects garbage every interval until ctx ends.
func (c *Cache) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.GC(); n > 0 {
				c.log.Debug().Int("removed", n).Msg("query cache gc")
			}
		}
	}
}

func (c *Cache) run(ctx context.Context, key Key, gen uint64, fn fetchFunc, opts Options) (any, error) {
	c.setFetching(key, 1)
	defer c.setFetching(key, -1)

	for failures := 0; ; {
		v, err := fn(ctx)
		if err == nil {
			c.store(key, gen, v)
			if sk, ok := c.sharedKey(ctx, key); ok {
				if err := c.shared.Set(ctx, sk, v, opts.GCTime); err != nil {
					c.log.Warn().Err(err).Str("key", key.String()).Msg("shared cache write failed")
				}
			}
			return v, nil
		}

		failures++
		if !opts.Retry(failures, err) {
			c.storeErr(key, gen, err)
			return nil, err
		}

		delay := opts.RetryDelay(failures)
		c.log.Debug().Err(err).Str("key", key.String()).Int("attempt", failures).Dur("delay", delay).Msg("retrying query")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Cache) store(key Key, gen uint64, v any) {
	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	c.setLocked(e, v)
	c.mu.Unlock()
	c.publish([]Key{key})
}

func (c *Cache) storeErr(key Key, gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.String()]; ok && e.gen == gen {
		e.err = err
	}
}

func (c *Cache) setFetching(key Key, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.String()]; ok {
		e.fetching = max(e.fetching+delta, 0)
	}
}

func (c *Cache) setLocked(e *entry, v any) {
	e.data = v
	e.hasData = true
	e.err = nil
	e.invalid = false
	e.updatedAt = c.now()
	e.lastAccess = e.updatedAt
	e.gen++
}

func (c *Cache) entryLocked(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[k] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if !e.hasData || e.invalid {
		return true
	}
	stale := e.opts.StaleTime
	if e.fetcher == nil {
		stale = c.defaults.StaleTime
	}
	return c.now().Sub(e.updatedAt) >= stale
}

func (c *Cache) observedLocked(key Key) bool {
	for _, s := range c.subs {
		if key.HasPrefix(s.key) {
			return true
		}
	}
	return false
}

func (c *Cache) publish(keys []Key) {
	if len(keys) == 0 {
		return
	}
	c.mu.Lock()
	var calls []func()
	for _, s := range c.subs {
		for _, k := range keys {
			if k.HasPrefix(s.key) {
				fn, k := s.fn, k
				calls = append(calls, func() { fn(k) })
			}
		}
	}
	c.mu.Unlock()
	for _, call := range calls {
		call()
	}
}

// currentScope reports the shared store partition for ctx. Without a scope
// function the store is shared by everyone using it.
func (c *Cache) currentScope(ctx context.Context) (string, bool) {
	if c.shared == nil {
		return "", false
	}
	if c.scope == nil {
		return "", true
	}
	scope := c.scope(ctx)
	return scope, scope != ""
}

func (c *Cache) sharedKey(ctx context.Context, key Key) (string, bool) {
	scope, ok := c.currentScope(ctx)
	if !ok {
		return "", false
	}
	var b strings.Builder
	b.WriteString("q:")
	b.WriteString(scope)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(c.shared.GetVersion(ctx, scopeVersionKey(scope)), 10))
	b.WriteByte(':')
	for i := 1; i <= len(key); i++ {
		b.WriteString(strconv.FormatInt(c.shared.GetVersion(ctx, versionKey(scope, key[:i])), 10))
		b.WriteByte('.')
	}
	b.WriteByte(':')
	b.WriteString(key.String())
	return b.String(), true
}

func scopeVersionKey(scope string) string {
	return "qs:" + scope
}

func versionKey(scope string, prefix Key) string {
	return "qv:" + scope + ":" + prefix.String()
}

func flightKey(key Key, gen uint64) string {
	return key.String() + "#" + strconv.FormatUint(gen, 10)
}
