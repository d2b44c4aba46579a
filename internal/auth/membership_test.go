package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

type failureRecorder struct {
	mu       sync.Mutex
	backends []string
	errs     []error
}

func (r *failureRecorder) hook(_ context.Context, backend string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends = append(r.backends, backend)
	r.errs = append(r.errs, err)
}

func (r *failureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.errs)
}

func newGraphServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func TestClosure(t *testing.T) {
	c := NewClosure(" GRP-1 ", "grp-2", "", "grp-1")

	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Contains("grp-1"))
	assert.True(t, c.Contains("Grp-2"))
	assert.False(t, c.Contains("u-1"))

	withSelf := c.With("U-1")
	assert.Equal(t, []string{"grp-1", "grp-2", "u-1"}, withSelf.IDs())
	assert.Equal(t, 2, c.Len(), "With must not modify the receiver")

	assert.True(t, withSelf.Intersects(policy.ParseAllowList("u-1")))
	assert.False(t, withSelf.Intersects(policy.ParseAllowList("grp-3")))
	assert.False(t, withSelf.Intersects(policy.AllowList{}))
}

func TestGraphResolver_Success(t *testing.T) {
	type captured struct {
		auth, contentType, method, path string
		body                            map[string]any
	}

	requests := make(chan captured, 1)

	srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			method:      r.Method,
			path:        r.URL.Path,
		}
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		requests <- c

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":["grp-999"]}`))
	})

	rec := &failureRecorder{}
	resolver := NewGraphResolver(GraphConfig{Endpoint: srv.URL + "/v1.0/", OnFailure: rec.hook})

	closure, err := resolver.Resolve(context.Background(), "access-token", Principal{StableID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"grp-999", "u-1"}, closure.IDs())
	assert.Zero(t, rec.count())

	got := <-requests
	assert.Equal(t, "Bearer access-token", got.auth)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/v1.0/me/getMemberObjects", got.path)
	assert.Equal(t, map[string]any{"securityEnabledOnly": true}, got.body)
}

func TestGraphResolver_EmptyValueStillContainsSelf(t *testing.T) {
	srv := newGraphServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	})

	closure, err := NewGraphResolver(GraphConfig{Endpoint: srv.URL}).
		Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, closure.IDs())
}

func TestGraphResolver_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
		reason string
	}{
		{"forbidden", http.StatusForbidden, `{"value":["grp-123"]}`, ErrDirectoryStatus, "status"},
		{"server error", http.StatusInternalServerError, `{"error":{"code":"InternalServerError"}}`, ErrDirectoryStatus, "status"},
		{"unauthorized with empty body", http.StatusUnauthorized, ``, ErrDirectoryStatus, "status"},
		{"malformed json", http.StatusOK, `{"value":`, ErrDirectoryResponse, "malformed"},
		{"missing value", http.StatusOK, `{"something":"else"}`, ErrDirectoryResponse, "malformed"},
		{"null value", http.StatusOK, `{"value":null}`, ErrDirectoryResponse, "malformed"},
		{"wrong value type", http.StatusOK, `{"value":"grp-123"}`, ErrDirectoryResponse, "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGraphServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			rec := &failureRecorder{}
			resolver := NewGraphResolver(GraphConfig{Endpoint: srv.URL, OnFailure: rec.hook})

			closure, err := resolver.Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
			require.Error(t, err)
			require.ErrorIs(t, err, tt.target)
			assert.Zero(t, closure.Len())
			assert.Equal(t, tt.reason, FailureReason(err))

			require.Equal(t, 1, rec.count())
			assert.Equal(t, BackendGraph, rec.backends[0])
		})
	}
}

func TestGraphResolver_StatusErrorCarriesCode(t *testing.T) {
	srv := newGraphServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Authorization_RequestDenied"))
	})

	_, err := NewGraphResolver(GraphConfig{Endpoint: srv.URL, OnFailure: func(context.Context, string, error) {}}).
		Resolve(context.Background(), "tok", Principal{StableID: "u-1"})

	var statusErr *StatusError

	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, "Authorization_RequestDenied", statusErr.Body)
}

func TestGraphResolver_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	rec := &failureRecorder{}
	resolver := NewGraphResolver(GraphConfig{
		Endpoint:  srv.URL,
		Timeout:   50 * time.Millisecond,
		OnFailure: rec.hook,
	})

	start := time.Now()
	_, err := resolver.Resolve(context.Background(), "tok", Principal{StableID: "u-1"})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", FailureReason(err))
	assert.Equal(t, 1, rec.count())
}

func TestGraphResolver_CallerCancellation(t *testing.T) {
	release := make(chan struct{})

	srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	resolver := NewGraphResolver(GraphConfig{Endpoint: srv.URL, OnFailure: func(context.Context, string, error) {}})

	_, err := resolver.Resolve(ctx, "tok", Principal{StableID: "u-1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "canceled", FailureReason(err))
}

func TestGraphResolver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	rec := &failureRecorder{}

	_, err := NewGraphResolver(GraphConfig{Endpoint: endpoint, OnFailure: rec.hook}).
		Resolve(context.Background(), "tok", Principal{StableID: "u-1"})
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Equal(t, "transport", FailureReason(err))
	assert.Equal(t, 1, rec.count())
}

func TestGraphResolver_MissingAccessToken(t *testing.T) {
	var calls atomic.Int32

	srv := newGraphServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })

	rec := &failureRecorder{}

	_, err := NewGraphResolver(GraphConfig{Endpoint: srv.URL, OnFailure: rec.hook}).
		Resolve(context.Background(), "", Principal{StableID: "u-1"})
	require.ErrorIs(t, err, ErrMissingAccessToken)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 1, rec.count())
}

func TestResolveMembership(t *testing.T) {
	groups := policy.ParseAllowList("grp-123")
	p := Principal{StableID: "u-1"}

	t.Run("empty allow-list skips the resolver", func(t *testing.T) {
		called := false
		r := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
			called = true
			return Closure{}, nil
		})

		m := ResolveMembership(context.Background(), r, "tok", p, policy.AllowList{})
		assert.True(t, m.Skipped)
		assert.False(t, called)
	})

	t.Run("success", func(t *testing.T) {
		r := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
			return NewClosure("grp-123", "u-1"), nil
		})

		m := ResolveMembership(context.Background(), r, "tok", p, groups)
		assert.True(t, m.Resolved)
		assert.False(t, m.Denied())
		assert.True(t, m.Closure.Contains("grp-123"))
	})

	t.Run("error is denied", func(t *testing.T) {
		boom := errors.New("boom")
		r := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
			return NewClosure("grp-123"), boom
		})

		m := ResolveMembership(context.Background(), r, "tok", p, groups)
		assert.True(t, m.Denied())
		assert.ErrorIs(t, m.Err, boom)
		assert.Zero(t, m.Closure.Len(), "partial data must be discarded")
	})

	t.Run("nil resolver is denied", func(t *testing.T) {
		m := ResolveMembership(context.Background(), nil, "tok", p, groups)
		assert.True(t, m.Denied())
		assert.ErrorIs(t, m.Err, ErrNoResolver)
	})

	t.Run("panic is denied", func(t *testing.T) {
		r := ResolverFunc(func(context.Context, string, Principal) (Closure, error) {
			panic("resolver exploded")
		})

		var m Membership

		require.NotPanics(t, func() {
			m = ResolveMembership(context.Background(), r, "tok", p, groups)
		})
		assert.True(t, m.Denied())
		assert.ErrorIs(t, m.Err, ErrDecisionPanic)
	})

	t.Run("zero value is denied", func(t *testing.T) {
		assert.True(t, Membership{}.Denied())
	})
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{&StatusError{Code: 500}, "status"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{ErrDirectoryResponse, "malformed"},
		{ErrMissingAccessToken, "no_identity"},
		{ErrNoLoginIdentifier, "no_identity"},
		{ErrUserNotFound, "user_lookup"},
		{ErrMultipleUsersFound, "user_lookup"},
		{ErrNoResolver, "not_configured"},
		{errors.New("connection reset"), "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.reason+"/"+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.reason, FailureReason(tt.err))
		})
	}
}
