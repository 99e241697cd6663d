package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "second-brain/internal/errors"
	"second-brain/internal/notify"
	"second-brain/redis"

	"github.com/alicebob/miniredis/v2"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(opts ...Option) *Cache {
	return New(Options{StaleTime: time.Minute, GCTime: time.Minute, Retry: NoRetry}, opts...)
}

func TestKey_HasPrefix(t *testing.T) {
	k := Key{"databases", "db1", "records"}
	assert.True(t, k.HasPrefix(Key{"databases"}))
	assert.True(t, k.HasPrefix(Key{"databases", "db1"}))
	assert.True(t, k.HasPrefix(k))
	assert.False(t, k.HasPrefix(Key{"databases", "db2"}))
	assert.False(t, Key{"databases"}.HasPrefix(k))
	assert.Equal(t, "databases/db1/records", k.String())
}

func TestFetch_ConcurrentCallersShareOneCall(t *testing.T) {
	c := newCache()
	var calls atomic.Int32
	release := make(chan struct{})
	q := Query[string]{
		Key: Key{"auth", "user"},
		Fn: func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "alice", nil
		},
	}

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, q)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"alice", "alice", "alice", "alice"}, results)
}

func TestFetch_ServesFreshData(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	c := newCache(WithClock(func() time.Time { return now }))
	var calls int
	q := Query[int]{Key: Key{"n"}, Fn: func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}}

	v, err := Fetch(context.Background(), c, q)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = Fetch(context.Background(), c, q)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	v, _ = Fetch(context.Background(), c, q)
	assert.Equal(t, 2, v)
}

func TestFetch_CancelledCallerStillPopulatesCache(t *testing.T) {
	c := newCache()
	release := make(chan struct{})
	done := make(chan struct{})
	q := Query[string]{Key: Key{"slow"}, Fn: func(ctx context.Context) (string, error) {
		defer close(done)
		<-release
		return "value", nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, c, q)
		errCh <- err
	}()
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		v, ok := GetQueryData[string](c, Key{"slow"})
		return ok && v == "value"
	}, time.Second, time.Millisecond)
}

func TestFetch_Disabled(t *testing.T) {
	c := newCache()
	q := Query[int]{
		Key:     Key{"auth", "user"},
		Fn:      func(ctx context.Context) (int, error) { return 1, nil },
		Options: Options{Enabled: func() bool { return false }},
	}
	_, err := Fetch(context.Background(), c, q)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestFetch_RetryPolicy(t *testing.T) {
	c := New(Options{Retry: DefaultRetry(2), RetryDelay: func(int) time.Duration { return 0 }})

	var calls int
	_, err := Fetch(context.Background(), c, Query[int]{Key: Key{"flaky"}, Fn: func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.FromResponse(503, "", nil)
	}})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = Fetch(context.Background(), c, Query[int]{Key: Key{"gone"}, Fn: func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NotFound("missing", nil)
	}})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.Equal(t, 1, calls)
}

func TestInvalidate_CascadesByPrefixAndRefetchesObserved(t *testing.T) {
	c := newCache()
	ctx := context.Background()
	var recordCalls atomic.Int32

	records := Query[int]{Key: Key{"databases", "db1", "records"}, Fn: func(ctx context.Context) (int, error) {
		return int(recordCalls.Add(1)), nil
	}}
	_, err := Fetch(ctx, c, records)
	require.NoError(t, err)
	SetQueryData(c, Key{"databases", "db1", "schema"}, "schema")
	SetQueryData(c, Key{"databases", "db2", "schema"}, "other")

	var changed []string
	unsubscribe := c.Subscribe(Key{"databases", "db1"}, func(k Key) { changed = append(changed, k.String()) })
	defer unsubscribe()

	c.Invalidate(ctx, Key{"databases", "db1"})

	assert.Equal(t, int32(2), recordCalls.Load())
	assert.True(t, c.State(Key{"databases", "db1", "schema"}).Stale)
	assert.False(t, c.State(Key{"databases", "db2", "schema"}).Stale)
	assert.Contains(t, changed, "databases/db1/schema")

	v, ok := GetQueryData[int](c, Key{"databases", "db1", "records"})
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSetQueryData_WinsOverInFlightFetch(t *testing.T) {
	c := newCache()
	release := make(chan struct{})
	q := Query[string]{Key: Key{"k"}, Fn: func(ctx context.Context) (string, error) {
		<-release
		return "server", nil
	}}

	done := make(chan string)
	go func() {
		v, _ := Fetch(context.Background(), c, q)
		done <- v
	}()
	require.Eventually(t, func() bool { return c.State(Key{"k"}).Fetching }, time.Second, time.Millisecond)

	SetQueryData(c, Key{"k"}, "optimistic")
	close(release)
	assert.Equal(t, "server", <-done)

	v, _ := GetQueryData[string](c, Key{"k"})
	assert.Equal(t, "optimistic", v)
}

func TestRemoveAndGC(t *testing.T) {
	now := time.Now()
	c := newCache(WithClock(func() time.Time { return now }))
	SetQueryData(c, Key{"a", "1"}, 1)
	SetQueryData(c, Key{"a", "2"}, 2)
	SetQueryData(c, Key{"b"}, 3)

	c.Remove(Key{"a"})
	_, ok := GetQueryData[int](c, Key{"a", "1"})
	assert.False(t, ok)

	unsubscribe := c.Subscribe(Key{"b"}, func(Key) {})
	now = now.Add(time.Hour)
	assert.Equal(t, 0, c.GC())

	unsubscribe()
	assert.Equal(t, 1, c.GC())
}

func TestMutate_RollsBackAndNotifies(t *testing.T) {
	rec := &notify.Recorder{}
	c := newCache(WithNotifier(rec))
	key := Key{"notifications"}
	SetQueryData(c, key, []string{"a", "b"})

	m := Mutation[string, struct{}]{
		Name: "deleteNotification",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			assert.True(t, c.IsMutating("deleteNotification"))
			v, _ := GetQueryData[[]string](c, key)
			assert.Equal(t, []string{"b"}, v)
			return struct{}{}, apperrors.FromResponse(500, "boom", nil)
		},
		OnMutate: func(id string) func() {
			prev, _ := GetQueryData[[]string](c, key)
			SetQueryData(c, key, []string{"b"})
			return func() { SetQueryData(c, key, prev) }
		},
	}

	_, err := Mutate(context.Background(), c, m, "a")
	require.Error(t, err)
	assert.False(t, c.IsMutating("deleteNotification"))

	v, _ := GetQueryData[[]string](c, key)
	assert.Equal(t, []string{"a", "b"}, v)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
	assert.Equal(t, apperrors.MsgServer, last.Message)
}

func TestMutate_InvalidatesOnSuccess(t *testing.T) {
	rec := &notify.Recorder{}
	c := newCache(WithNotifier(rec))
	SetQueryData(c, Key{"databases", "db1", "views"}, 1)

	_, err := Mutate(context.Background(), c, Mutation[int, int]{
		Name:           "createView",
		Fn:             func(ctx context.Context, v int) (int, error) { return v, nil },
		Invalidates:    func(int, int) []Key { return []Key{{"databases", "db1"}} },
		SuccessMessage: "View created",
	}, 1)
	require.NoError(t, err)

	assert.True(t, c.State(Key{"databases", "db1", "views"}).Stale)
	last, _ := rec.Last()
	assert.Equal(t, notify.Notification{Level: notify.LevelSuccess, Message: "View created"}, last)
}

func TestSharedStore_VersionedInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisLib.NewClient(&redisLib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	shared := redis.NewCache(client, "test:")
	ctx := context.Background()

	var calls int
	q := Query[int]{Key: Key{"databases", "db1"}, Fn: func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}}

	first := newCache(WithSharedStore(shared))
	_, err := Fetch(ctx, first, q)
	require.NoError(t, err)

	second := newCache(WithSharedStore(shared))
	v, err := Fetch(ctx, second, q)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, calls)

	first.Invalidate(ctx, Key{"databases"})
	third := newCache(WithSharedStore(shared))
	v, err = Fetch(ctx, third, q)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDefaultRetry(t *testing.T) {
	retry := DefaultRetry(3)
	assert.True(t, retry(1, errors.New("io")))
	assert.False(t, retry(4, errors.New("io")))
	assert.False(t, retry(1, apperrors.Unauthorized("", nil)))
	assert.False(t, retry(1, context.Canceled))
}

func TestSharedStore_ScopedPerUser(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisLib.NewClient(&redisLib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	shared := redis.NewCache(client, "test:")
	ctx := context.Background()

	user := "alice"
	scope := WithScope(func(context.Context) string { return user })
	q := Query[string]{Key: Key{"databases-list"}, Fn: func(ctx context.Context) (string, error) {
		return "dbs of " + user, nil
	}}

	first := newCache(WithSharedStore(shared), scope)
	v, err := Fetch(ctx, first, q)
	require.NoError(t, err)
	assert.Equal(t, "dbs of alice", v)

	first.Clear(ctx)
	user = "bob"
	v, err = Fetch(ctx, first, q)
	require.NoError(t, err)
	assert.Equal(t, "dbs of bob", v)

	user = "alice"
	second := newCache(WithSharedStore(shared), scope)
	var calls int
	v, err = Fetch(ctx, second, Query[string]{Key: Key{"databases-list"}, Fn: func(ctx context.Context) (string, error) {
		calls++
		return "fresh", nil
	}})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v, "clearing alice's session retired her shared entries")
	assert.Equal(t, 1, calls)
}

func TestSharedStore_EmptyScopeBypassesStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisLib.NewClient(&redisLib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	shared := redis.NewCache(client, "test:")
	ctx := context.Background()

	c := newCache(WithSharedStore(shared), WithScope(func(context.Context) string { return "" }))
	_, err := Fetch(ctx, c, Query[int]{Key: Key{"auth", "user"}, Fn: func(ctx context.Context) (int, error) {
		return 1, nil
	}})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestRestore_KeepsOriginalAge(t *testing.T) {
	now := time.Now()
	c := newCache(WithClock(func() time.Time { return now }))
	key := Key{"databases", "db1", "records"}
	SetQueryData(c, key, []string{"r1"})
	c.Invalidate(context.Background(), key)

	snap := c.Snapshot(Key{"databases", "db1"})
	SetQueryData(c, key, []string{"r1", "tmp"})
	now = now.Add(time.Second)
	c.Restore(snap)

	v, _ := GetQueryData[[]string](c, key)
	assert.Equal(t, []string{"r1"}, v)
	assert.True(t, c.State(key).Stale, "invalidated data stays stale after rollback")

	SetQueryData(c, key, []string{"r1"})
	snap = c.Snapshot(key)
	now = now.Add(50 * time.Second)
	c.Restore(snap)
	now = now.Add(20 * time.Second)
	assert.True(t, c.State(key).Stale, "restored data ages from its original fetch")
}
