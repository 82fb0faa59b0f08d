package debate

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"roundtable/internal/domain"
)

// FailureClass labels why a participant turn failed. It is attached to logs,
// spans and participant.failed events.
type FailureClass string

const (
	FailureAuth            FailureClass = "auth"
	FailureRateLimit       FailureClass = "rate_limit"
	FailureContextOverflow FailureClass = "context_overflow"
	FailureCircuitOpen     FailureClass = "circuit_open"
	FailureTimeout         FailureClass = "timeout"
	FailureCancelled       FailureClass = "cancelled"
	FailureUpstream        FailureClass = "upstream"
	FailureRejected        FailureClass = "rejected"
	FailureNetwork         FailureClass = "network"
	FailurePanic           FailureClass = "panic"
	FailureUnknown         FailureClass = "unknown"
)

var errAgentPanic = errors.New("agent panic")

// apiErrorPattern matches the "API error <status>:" detail the backends produce.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// ClassifyFailure maps a turn error to a FailureClass. Wrapped sentinels win
// over the HTTP status in the message, which wins over substring matching.
func ClassifyFailure(err error) FailureClass {
	if err == nil {
		return ""
	}
	if c := classifyBySentinel(err); c != "" {
		return c
	}

	msg := err.Error()
	if m := apiErrorPattern.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyByStatus(code, msg)
	}
	return classifyByString(msg)
}

func classifyBySentinel(err error) FailureClass {
	switch {
	case errors.Is(err, errAgentPanic):
		return FailurePanic
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, domain.ErrCircuitOpen):
		return FailureCircuitOpen
	case errors.Is(err, domain.ErrRateLimit):
		return FailureRateLimit
	case errors.Is(err, domain.ErrAuthInvalid):
		return FailureAuth
	case errors.Is(err, domain.ErrContextOverflow):
		return FailureContextOverflow
	case errors.Is(err, domain.ErrUnavailable):
		return FailureUpstream
	}
	return ""
}

// contextOverflowKeywords mark a 400 response as a context length problem.
var contextOverflowKeywords = []string{"context", "token", "too long", "maximum"}

func classifyByStatus(code int, body string) FailureClass {
	switch {
	case code == 429:
		return FailureRateLimit
	case code == 401 || code == 403:
		return FailureAuth
	case code == 413:
		return FailureContextOverflow
	case code == 400:
		lower := strings.ToLower(body)
		for _, kw := range contextOverflowKeywords {
			if strings.Contains(lower, kw) {
				return FailureContextOverflow
			}
		}
		return FailureRejected
	case code >= 500 && code < 600:
		return FailureUpstream
	default:
		return FailureRejected
	}
}

func classifyByString(msg string) FailureClass {
	lower := strings.ToLower(msg)
	match := func(patterns ...string) bool {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
		return false
	}

	switch {
	case match("rate limit", "too many requests"):
		return FailureRateLimit
	case match("context length", "token limit", "maximum context"):
		return FailureContextOverflow
	case match("timeout", "deadline exceeded"):
		return FailureTimeout
	case match("connection refused", "no such host", "connection reset", "eof"):
		return FailureNetwork
	}
	return FailureUnknown
}
