package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"roundtable/internal/domain"
	"roundtable/internal/infra/tracer"
)

// maxErrorDetail bounds how much of an error body ends up in a message.
const maxErrorDetail = 512

// streamBuffer is the delta channel capacity used by every backend.
const streamBuffer = 16

// doStreamRequest performs a JSON POST request for SSE streaming. Non-200
// responses become domain errors via mapHTTPError. The caller owns the
// returned response body.
func doStreamRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewSubSystemError("provider", "http", domain.ErrTimeout, err.Error())
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}
	return httpResp, nil
}

// traceStream opens a backend stream under an "llm.stream" span and
// forwards its deltas. The span ends with the stream and carries the token
// usage the backend reported.
func traceStream(ctx context.Context, logger *slog.Logger, provider, model string, open func(context.Context) (<-chan domain.StreamDelta, error)) (<-chan domain.StreamDelta, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", provider),
			tracer.StringAttr("llm.model", model),
		),
	)

	in, err := open(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	out := make(chan domain.StreamDelta, streamBuffer)
	go func() {
		defer close(out)
		defer span.End()

		start := time.Now()
		var usage domain.Usage
		var streamErr error
	loop:
		for {
			var d domain.StreamDelta
			var ok bool
			select {
			case d, ok = <-in:
				if !ok {
					break loop
				}
			case <-ctx.Done():
				tracer.RecordError(span, ctx.Err())
				return
			}

			if d.Usage != nil {
				usage = mergeUsage(usage, *d.Usage)
			}
			if d.Err != nil {
				streamErr = d.Err
			}
			select {
			case out <- d:
			case <-ctx.Done():
				tracer.RecordError(span, ctx.Err())
				return
			}
		}

		span.SetAttributes(
			tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
			tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
		)
		if streamErr == nil {
			streamErr = ctx.Err()
		}
		if streamErr != nil {
			tracer.RecordError(span, streamErr)
			return
		}
		tracer.SetOK(span)
		logger.Debug("llm stream completed",
			"provider", provider,
			"model", model,
			"tokens", usage.TotalTokens,
			"duration", time.Since(start),
		)
	}()
	return out, nil
}

// mergeUsage folds a usage report into the running total. Backends report
// either cumulative figures or only the fields they know.
func mergeUsage(acc, u domain.Usage) domain.Usage {
	if u.PromptTokens > 0 {
		acc.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		acc.CompletionTokens = u.CompletionTokens
	}
	acc.TotalTokens = max(u.TotalTokens, acc.PromptTokens+acc.CompletionTokens)
	return acc
}

// mapHTTPError maps an HTTP status code and response body to a domain error
// so the circuit breaker and the error wire event can classify it.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, errorDetail(body))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	}
}

// errorDetail extracts error.message from the common JSON error envelope
// and falls back to the truncated raw body.
func errorDetail(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorDetail {
		text = text[:maxErrorDetail] + "..."
	}
	return text
}

// streamError converts an in-band provider error payload into a terminal delta.
func streamError(kind, message string) *domain.StreamDelta {
	err := fmt.Errorf("%w: %s: %s", domain.ErrProviderError, kind, message)
	if kind == "overloaded_error" || kind == "api_error" {
		err = fmt.Errorf("%w: %s: %s", domain.ErrUnavailable, kind, message)
	}
	return &domain.StreamDelta{Err: err}
}
