package auth

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	signInDecisions = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "auth_signin_decisions_total",
			Help: "Number of sign-in decisions, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	directoryFailures = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "auth_directory_failures_total",
			Help: "Number of failed membership lookups, by directory backend and reason.",
		},
		[]string{"backend", "reason"},
	)

	directoryLatency = promauto.NewHistogramVec( //nolint:gochecknoglobals
		prometheus.HistogramOpts{
			Name:    "auth_directory_request_duration_seconds",
			Help:    "Duration of membership lookups against the directory.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	membershipCacheLookups = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "auth_membership_cache_lookups_total",
			Help: "Membership cache lookups, by result (hit, miss).",
		},
		[]string{"result"},
	)
)

// FailureHook receives every membership lookup failure. The lookup itself is
// already converted to a deny; the hook exists for observability only.
type FailureHook func(ctx context.Context, backend string, err error)

// LogFailure is the default FailureHook. It logs the failure and counts it by reason.
func LogFailure(_ context.Context, backend string, err error) {
	reason := FailureReason(err)

	directoryFailures.WithLabelValues(backend, reason).Inc()

	log.Warn().
		Err(err).
		Str("backend", backend).
		Str("reason", reason).
		Msg("membership lookup failed, denying access")
}

// FailureReason classifies a lookup error for metrics.
func FailureReason(err error) string {
	var statusErr *StatusError

	switch {
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrDirectoryResponse):
		return "malformed"
	case errors.Is(err, ErrMissingAccessToken), errors.Is(err, ErrNoLoginIdentifier):
		return "no_identity"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrMultipleUsersFound):
		return "user_lookup"
	case errors.Is(err, ErrNoResolver):
		return "not_configured"
	default:
		return "transport"
	}
}

func outcomeLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}

	return "denied"
}
