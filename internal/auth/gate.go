package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

// EnrichedProfile is what a provider's profile hook hands to the host: the
// normalized principal plus everything the gate needs to decide.
type EnrichedProfile struct {
	Principal

	// Provider is the provider kind that authenticated the principal.
	Provider Kind `json:"provider"`
	// Membership is the directory lookup outcome. Zero for static trust providers.
	Membership Membership `json:"-"`
}

// Callbacks is the contract the host calls during and after sign-in.
type Callbacks interface {
	// SignIn decides whether the sign-in proceeds. A returned error means deny.
	SignIn(ctx context.Context, user *EnrichedProfile) (bool, error)
	// JWT enriches the long-lived token. user is nil on refreshes.
	JWT(token Token, user *EnrichedProfile) Token
	// Session projects the token onto the externally visible session.
	Session(session Session, token Token) Session
}

// DecisionHook observes every sign-in decision.
type DecisionHook func(ctx context.Context, user *EnrichedProfile, allowed bool)

// DecideAllowed is the single place that decides whether a principal may use the application.
func DecideAllowed(_ Principal, kind Kind, m Membership, groups policy.AllowList) bool {
	switch kind.Trust() {
	case TrustStatic:
		return true
	case TrustDirectory:
		if groups.Empty() {
			return true
		}

		return !m.Denied() && m.Closure.Intersects(groups)
	default:
		return false
	}
}

// Gate implements Callbacks on top of the process policy.
type Gate struct {
	policy     policy.Policy
	onDecision DecisionHook
}

var _ Callbacks = (*Gate)(nil)

// NewGate creates a gate. Without hooks, decisions are logged and counted.
func NewGate(pol policy.Policy, hooks ...DecisionHook) *Gate {
	g := &Gate{policy: pol, onDecision: LogDecision}

	if len(hooks) > 0 {
		g.onDecision = func(ctx context.Context, user *EnrichedProfile, allowed bool) {
			for _, h := range hooks {
				if h != nil {
					h(ctx, user, allowed)
				}
			}
		}
	}

	return g
}

// SignIn evaluates the gate for user and records the verdict on it.
func (g *Gate) SignIn(ctx context.Context, user *EnrichedProfile) (allowed bool, err error) {
	if user == nil {
		return false, ErrNoProfile
	}

	defer func() {
		if rec := recover(); rec != nil {
			allowed = false
			user.IsAllowed = false
			err = fmt.Errorf("%w: %v", ErrDecisionPanic, rec)

			log.Error().Err(err).Str("provider", user.Provider.String()).Msg("sign-in decision failed, denying access")
		}

		signInDecisions.WithLabelValues(user.Provider.String(), outcomeLabel(allowed)).Inc()
	}()

	allowed = DecideAllowed(user.Principal, user.Provider, user.Membership, g.policy.AllowedPrincipals)
	user.IsAllowed = allowed

	g.onDecision(ctx, user, allowed)

	return allowed, nil
}

// JWT implements Callbacks.
func (g *Gate) JWT(token Token, user *EnrichedProfile) Token {
	return EnrichToken(token, user)
}

// Session implements Callbacks.
func (g *Gate) Session(session Session, token Token) Session {
	return MaterializeSession(session, token)
}

// LogDecision is the default DecisionHook.
func LogDecision(_ context.Context, user *EnrichedProfile, allowed bool) {
	event := log.Info()
	if !allowed {
		event = log.Warn()
	}

	event.
		Str("provider", user.Provider.String()).
		Str("id", user.StableID).
		Bool("isAdmin", user.IsAdmin).
		Bool("isAllowed", allowed).
		Msg("sign-in decision")
}
