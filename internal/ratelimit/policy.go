package ratelimit

import (
	"strings"
	"time"

	"perks-admin/internal/respond"
)

// Policy names one admission-control rule: a fixed window, a max count, and
// the error code surfaced on rejection.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
	Code   string

	// FailClosed rejects when the counter store is unreachable. Set on
	// auth-sensitive policies; browsing policies fail open instead.
	FailClosed bool

	// CountFailuresOnly consumes quota only when the wrapped handler
	// responds with a 4xx/5xx. Lets legitimate repeated logins through
	// while still throttling brute force.
	CountFailuresOnly bool
}

func Global() Policy {
	return Policy{
		Name:   "global",
		Window: 15 * time.Minute,
		Max:    1000,
		Code:   respond.CodeRateLimitExceeded,
	}
}

func Auth() Policy {
	return Policy{
		Name:              "auth",
		Window:            15 * time.Minute,
		Max:               10,
		Code:              "AUTH_RATE_LIMIT_EXCEEDED",
		FailClosed:        true,
		CountFailuresOnly: true,
	}
}

func Upload() Policy {
	return Policy{
		Name:   "upload",
		Window: time.Minute,
		Max:    10,
		Code:   "UPLOAD_RATE_LIMIT_EXCEEDED",
	}
}

// PerEndpoint builds an ad hoc policy; the rejection code is namespaced
// from the policy name ("lead-submission" -> LEAD_SUBMISSION_RATE_LIMIT_EXCEEDED).
func PerEndpoint(name string, window time.Duration, max int) Policy {
	code := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_RATE_LIMIT_EXCEEDED"
	return Policy{Name: name, Window: window, Max: max, Code: code}
}
