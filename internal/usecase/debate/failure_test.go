package debate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"roundtable/internal/domain"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, ""},
		{"missing key", NewMissingKeyAgent("OPENAI_API_KEY").Reason, FailureAuth},
		{"wrapped rate limit", fmt.Errorf("%w: API error 429: slow down", domain.ErrRateLimit), FailureRateLimit},
		{"circuit open", fmt.Errorf("%w: participant:gpt", domain.ErrCircuitOpen), FailureCircuitOpen},
		{"deadline", fmt.Errorf("stream: %w", context.DeadlineExceeded), FailureTimeout},
		{"cancelled", context.Canceled, FailureCancelled},
		{"panic", fmt.Errorf("%w: boom", errAgentPanic), FailurePanic},
		{"upstream sentinel", fmt.Errorf("%w: API error 503: overloaded", domain.ErrUnavailable), FailureUpstream},
		{"status 401", errors.New("API error 401: bad key"), FailureAuth},
		{"status 400 overflow", errors.New("API error 400: prompt is too long"), FailureContextOverflow},
		{"status 400 other", errors.New("API error 400: invalid model"), FailureRejected},
		{"status 502", errors.New("API error 502: bad gateway"), FailureUpstream},
		{"status 404", errors.New("API error 404: no such model"), FailureRejected},
		{"string rate limit", errors.New("Too Many Requests"), FailureRateLimit},
		{"string network", errors.New("dial tcp: connection refused"), FailureNetwork},
		{"string timeout", errors.New("i/o timeout"), FailureTimeout},
		{"unknown", errors.New("something odd"), FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.err))
		})
	}
}
