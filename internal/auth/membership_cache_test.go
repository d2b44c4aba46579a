package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

func countingResolver(calls *atomic.Int32, err error) ResolverFunc {
	return func(_ context.Context, _ string, p Principal) (Closure, error) {
		calls.Add(1)

		if err != nil {
			return Closure{}, err
		}

		return NewClosure("grp-123").With(p.StableID), nil
	}
}

func TestCachingResolver_CachesSuccess(t *testing.T) {
	var calls atomic.Int32

	c := NewCachingResolver(countingResolver(&calls, nil), policy.ParseAllowList("grp-123"), time.Minute, 10)
	p := Principal{StableID: "u-1"}

	for range 3 {
		closure, err := c.Resolve(context.Background(), "tok", p)
		require.NoError(t, err)
		assert.True(t, closure.Contains("grp-123"))
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())

	// key is case insensitive on the stable id
	_, err := c.Resolve(context.Background(), "tok", Principal{StableID: "U-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	c.Purge()

	_, err = c.Resolve(context.Background(), "tok", p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachingResolver_NeverCachesFailures(t *testing.T) {
	var calls atomic.Int32

	boom := errors.New("directory down")
	c := NewCachingResolver(countingResolver(&calls, boom), policy.ParseAllowList("grp-123"), time.Minute, 10)

	for range 2 {
		_, err := c.Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, c.Len())
}

func TestCachingResolver_Expiry(t *testing.T) {
	var calls atomic.Int32

	c := NewCachingResolver(countingResolver(&calls, nil), policy.ParseAllowList("grp-123"), 20*time.Millisecond, 10)
	p := Principal{StableID: "u-1"}

	_, err := c.Resolve(context.Background(), "tok", p)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, err = c.Resolve(context.Background(), "tok", p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachingResolver_KeyedByAllowListVersion(t *testing.T) {
	var calls atomic.Int32

	inner := countingResolver(&calls, nil)
	a := NewCachingResolver(inner, policy.ParseAllowList("grp-123"), time.Minute, 10)
	b := NewCachingResolver(inner, policy.ParseAllowList("grp-456"), time.Minute, 10)

	assert.NotEqual(t, a.version, b.version)

	_, err := a.Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
	require.NoError(t, err)

	key := "u-1|" + policy.ParseAllowList("grp-123").Version()
	_, ok := a.cache.Get(key)
	assert.True(t, ok)
}

func TestCachingResolver_BypassesWithoutStableID(t *testing.T) {
	var calls atomic.Int32

	c := NewCachingResolver(countingResolver(&calls, nil), policy.ParseAllowList("grp-123"), time.Minute, 10)

	for range 2 {
		_, err := c.Resolve(context.Background(), "tok", Principal{Email: "alice@co.com"})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, c.Len())
}

func TestCachingResolver_CoalescesConcurrentLookups(t *testing.T) {
	var calls atomic.Int32

	release := make(chan struct{})
	inner := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
		calls.Add(1)
		<-release

		return NewClosure("grp-123"), nil
	})

	c := NewCachingResolver(inner, policy.ParseAllowList("grp-123"), time.Minute, 10)

	const workers = 8

	var wg sync.WaitGroup

	errs := make(chan error, workers)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := c.Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
			errs <- err
		}()
	}

	// give the goroutines time to join the in-flight lookup
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestCachingResolver_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	inner := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
		<-release
		return NewClosure("grp-123"), nil
	})

	c := NewCachingResolver(inner, policy.ParseAllowList("grp-123"), time.Minute, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Resolve(ctx, "tok", Principal{StableID: "u-1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachingResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var calls atomic.Int32

	inner := ResolverFunc(func(ctx context.Context, _ string, p Principal) (Closure, error) {
		if calls.Add(1) == 1 {
			close(started)
		}

		select {
		case <-release:
			return NewClosure("grp-123").With(p.StableID), nil
		case <-ctx.Done():
			return Closure{}, ctx.Err()
		}
	})

	c := NewCachingResolver(inner, policy.ParseAllowList("grp-123"), time.Minute, 10)
	p := Principal{StableID: "u-1"}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)

	go func() {
		_, err := c.Resolve(ctxA, "tok", p)
		errA <- err
	}()

	<-started

	type result struct {
		closure Closure
		err     error
	}

	resB := make(chan result, 1)

	go func() {
		closure, err := c.Resolve(context.Background(), "tok", p)
		resB <- result{closure, err}
	}()

	// let the second caller join the in-flight lookup
	time.Sleep(50 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)

	got := <-resB
	require.NoError(t, got.err)
	assert.True(t, got.closure.Contains("grp-123"))
	assert.Equal(t, int32(1), calls.Load())
}
