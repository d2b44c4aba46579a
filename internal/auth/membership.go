package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

const (
	// DefaultGraphEndpoint is the Microsoft Graph v1.0 base URL.
	DefaultGraphEndpoint = "https://graph.microsoft.com/v1.0"

	// DefaultDirectoryTimeout bounds a single membership lookup.
	DefaultDirectoryTimeout = 8 * time.Second

	// BackendGraph labels the Microsoft Graph resolver in logs and metrics.
	BackendGraph = "graph"

	graphMemberObjectsPath = "/me/getMemberObjects"

	maxGraphResponseBytes = 4 << 20
	maxErrorBodyBytes     = 512
)

// Closure is the set of directory object ids a principal transitively belongs to,
// including the principal's own id. A Closure is never modified after construction.
type Closure struct {
	ids map[string]struct{}
}

// NewClosure builds a closure from object ids. Ids are normalized like allow-list entries.
func NewClosure(ids ...string) Closure {
	set := make(map[string]struct{}, len(ids)+1)

	for _, id := range ids {
		if n := policy.Normalize(id); n != "" {
			set[n] = struct{}{}
		}
	}

	return Closure{ids: set}
}

// With returns a new closure that additionally contains id.
func (c Closure) With(id string) Closure {
	return NewClosure(append(c.IDs(), id)...)
}

// Contains reports whether id is part of the closure.
func (c Closure) Contains(id string) bool {
	_, ok := c.ids[policy.Normalize(id)]
	return ok
}

// Len returns the number of ids.
func (c Closure) Len() int {
	return len(c.ids)
}

// IDs returns the ids in sorted order.
func (c Closure) IDs() []string {
	out := make([]string, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

// Intersects reports whether any id of the closure is in the allow-list.
func (c Closure) Intersects(list policy.AllowList) bool {
	for id := range c.ids {
		if list.Contains(id) {
			return true
		}
	}

	return false
}

// Membership is the outcome of a membership lookup for one gate evaluation.
// The zero value is "not resolved", which the gate treats as Denied whenever
// the membership check is enabled.
type Membership struct {
	// Closure is valid only when Resolved is true and Err is nil.
	Closure Closure
	// Err is the lookup failure, if any.
	Err error
	// Resolved is true when the directory returned a usable closure.
	Resolved bool
	// Skipped is true when no lookup was needed because the allow-list is empty.
	Skipped bool
}

// Denied reports whether the lookup must be treated as a deny.
func (m Membership) Denied() bool {
	return !m.Resolved || m.Err != nil
}

// Resolver fetches the transitive membership closure of a principal.
// Implementations must honour ctx cancellation and return an error rather than
// a partial closure on any failure.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string, p Principal) (Closure, error)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(ctx context.Context, accessToken string, p Principal) (Closure, error)

// Resolve satisfies the Resolver interface.
func (f ResolverFunc) Resolve(ctx context.Context, accessToken string, p Principal) (Closure, error) {
	return f(ctx, accessToken, p)
}

// ResolveMembership runs the membership lookup for the gate.
// An empty allow-list short-circuits without calling the resolver. Any error or
// panic inside the resolver yields a denied Membership; nothing escapes to the caller.
func ResolveMembership(
	ctx context.Context,
	r Resolver,
	accessToken string,
	p Principal,
	allowed policy.AllowList,
) (m Membership) {
	if allowed.Empty() {
		return Membership{Skipped: true}
	}

	if r == nil {
		return Membership{Err: ErrNoResolver}
	}

	defer func() {
		if rec := recover(); rec != nil {
			m = Membership{Err: fmt.Errorf("%w: resolver: %v", ErrDecisionPanic, rec)}
		}
	}()

	closure, err := r.Resolve(ctx, accessToken, p)
	if err != nil {
		return Membership{Err: err}
	}

	return Membership{Closure: closure, Resolved: true}
}

// GraphConfig configures the Microsoft Graph resolver.
type GraphConfig struct {
	// Endpoint is the Graph base URL. Default: DefaultGraphEndpoint.
	Endpoint string
	// Timeout bounds one lookup. Default: DefaultDirectoryTimeout.
	Timeout time.Duration
	// HTTPClient is used for the outbound call. Default: a client bounded by the
	// per-lookup context deadline.
	HTTPClient *http.Client
	// OnFailure receives every failure. Default: LogFailure.
	OnFailure FailureHook
}

// GraphResolver resolves membership with POST /me/getMemberObjects, authenticated
// with the signed-in user's access token.
type GraphResolver struct {
	endpoint  string
	timeout   time.Duration
	client    *http.Client
	onFailure FailureHook
}

// NewGraphResolver creates a Graph resolver, applying defaults for unset fields.
func NewGraphResolver(cfg GraphConfig) *GraphResolver {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGraphEndpoint
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDirectoryTimeout
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	if cfg.OnFailure == nil {
		cfg.OnFailure = LogFailure
	}

	return &GraphResolver{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		timeout:   cfg.Timeout,
		client:    cfg.HTTPClient,
		onFailure: cfg.OnFailure,
	}
}

type getMemberObjectsRequest struct {
	SecurityEnabledOnly bool `json:"securityEnabledOnly"`
}

type getMemberObjectsResponse struct {
	Value *[]string `json:"value"`
}

// Resolve returns the principal's transitive security group and role ids plus its own id.
func (r *GraphResolver) Resolve(ctx context.Context, accessToken string, p Principal) (Closure, error) {
	closure, err := r.resolve(ctx, accessToken, p)
	if err != nil {
		r.onFailure(ctx, BackendGraph, err)
		return Closure{}, err
	}

	return closure, nil
}

func (r *GraphResolver) resolve(ctx context.Context, accessToken string, p Principal) (Closure, error) {
	if accessToken == "" {
		return Closure{}, ErrMissingAccessToken
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// only security principals, to bound the result size
	body, err := json.Marshal(getMemberObjectsRequest{SecurityEnabledOnly: true})
	if err != nil {
		return Closure{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+graphMemberObjectsPath, bytes.NewReader(body))
	if err != nil {
		return Closure{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)

	directoryLatency.WithLabelValues(BackendGraph).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Closure{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, ctxErr)
		}

		return Closure{}, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return Closure{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var payload getMemberObjectsResponse
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxGraphResponseBytes)).Decode(&payload); err != nil {
		return Closure{}, fmt.Errorf("%w: %w", ErrDirectoryResponse, err)
	}

	if payload.Value == nil {
		return Closure{}, fmt.Errorf("%w: missing value list", ErrDirectoryResponse)
	}

	// the user's own object id lets allow-lists name users directly
	return NewClosure(*payload.Value...).With(p.StableID), nil
}
