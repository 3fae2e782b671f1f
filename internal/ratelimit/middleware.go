package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"perks-admin/internal/auth"
	"perks-admin/internal/observability"
	"perks-admin/internal/respond"
)

// KeyFunc derives the client key a bucket is counted under.
type KeyFunc func(r *http.Request) string

// Limiter applies one policy in front of a handler. Buckets are keyed
// (policy name, client key) in a store shared across instances.
type Limiter struct {
	store  CounterStore
	policy Policy
	keyFn  KeyFunc
	skip   func(r *http.Request) bool
	logger *observability.Logger
}

type Option func(*Limiter)

// WithKeyFunc overrides the default client-IP keying.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Limiter) { l.keyFn = fn }
}

// WithSkip exempts matching requests from the policy entirely.
func WithSkip(skip func(r *http.Request) bool) Option {
	return func(l *Limiter) { l.skip = skip }
}

func New(store CounterStore, policy Policy, logger *observability.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		policy: policy,
		keyFn:  ClientIP,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skip != nil && l.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := l.policy.Name + ":" + l.keyFn(r)

		if l.policy.CountFailuresOnly {
			l.serveCountingFailures(w, r, next, key)
			return
		}

		count, err := l.store.Incr(r.Context(), key, l.policy.Window)
		if err != nil {
			l.handleStoreError(w, r, next, err)
			return
		}

		l.setQuotaHeaders(w, count)
		if count > int64(l.policy.Max) {
			l.reject(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// serveCountingFailures admits on the current count and consumes quota only
// after an unsuccessful response. The admission check runs before the
// handler touches credentials, so a throttled client is rejected without
// any credential work.
func (l *Limiter) serveCountingFailures(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	count, err := l.store.Count(r.Context(), key)
	if err != nil {
		l.handleStoreError(w, r, next, err)
		return
	}

	if count >= int64(l.policy.Max) {
		l.setQuotaHeaders(w, count)
		l.reject(w)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(recorder, r)

	if recorder.status >= http.StatusBadRequest {
		if _, err := l.store.Incr(r.Context(), key, l.policy.Window); err != nil {
			l.logger.Error("rate_limit_record_failure", map[string]any{
				"policy": l.policy.Name,
				"error":  err.Error(),
			})
		}
	}
}

func (l *Limiter) handleStoreError(w http.ResponseWriter, r *http.Request, next http.Handler, err error) {
	sentry.CaptureException(err)
	l.logger.Error("rate_limit_store_unavailable", map[string]any{
		"policy":      l.policy.Name,
		"fail_closed": l.policy.FailClosed,
		"error":       err.Error(),
	})

	if l.policy.FailClosed {
		respond.Error(w, http.StatusServiceUnavailable, respond.CodeServiceUnavailable, "service temporarily unavailable")
		return
	}
	next.ServeHTTP(w, r)
}

func (l *Limiter) setQuotaHeaders(w http.ResponseWriter, count int64) {
	remaining := int64(l.policy.Max) - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.policy.Max))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
}

func (l *Limiter) reject(w http.ResponseWriter) {
	retryAfter := int(l.policy.Window.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	message := fmt.Sprintf("too many requests, retry in %s", l.policy.Window)
	respond.Error(w, http.StatusTooManyRequests, l.policy.Code, message)
}

// DynamicByRole applies a 15-minute window whose max depends on the
// principal's role. Authenticated traffic is counted per user id, anonymous
// traffic per client IP, so the two never share a bucket even from the same
// address.
func DynamicByRole(store CounterStore, limits map[auth.Role]int, anonymousMax int, logger *observability.Logger) func(http.Handler) http.Handler {
	const window = 15 * time.Minute

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := anonymousMax
			clientKey := "ip:" + ClientIP(r)
			if principal, ok := auth.PrincipalFrom(r.Context()); ok {
				clientKey = "user:" + principal.ID
				if roleMax, found := limits[principal.Role]; found {
					max = roleMax
				}
			}

			limiter := Limiter{
				store:  store,
				logger: logger,
				policy: Policy{
					Name:   "role",
					Window: window,
					Max:    max,
					Code:   respond.CodeRateLimitExceeded,
				},
			}

			count, err := store.Incr(r.Context(), "role:"+clientKey, window)
			if err != nil {
				limiter.handleStoreError(w, r, next, err)
				return
			}

			limiter.setQuotaHeaders(w, count)
			if count > int64(max) {
				limiter.reject(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SkipPaths is a Skip helper for exact-path exemptions (the health check is
// always exempt from the global policy).
func SkipPaths(paths ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		for _, path := range paths {
			if r.URL.Path == path {
				return true
			}
		}
		return false
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ClientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func ClientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
