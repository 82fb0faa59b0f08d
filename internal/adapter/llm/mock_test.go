package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"roundtable/internal/domain"
)

type mockProvider struct {
	name       string
	streamFunc func(context.Context, domain.ChatRequest) (<-chan domain.StreamDelta, error)
}

func (m *mockProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return m.streamFunc(ctx, req)
}

func (m *mockProvider) Name() string { return m.name }

func deltaChan(deltas ...domain.StreamDelta) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type errorReadCloser struct{}

func (errorReadCloser) Read([]byte) (int, error) { return 0, errors.New("read failed") }
func (errorReadCloser) Close() error             { return nil }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sseServer replies to every request with the given SSE data lines after
// handing the decoded JSON request body to inspect.
func sseServer(t *testing.T, inspect func(r *http.Request, body map[string]any), lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			inspect(r, body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n\n", l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// drainDeltas concatenates content and thinking and returns the last delta.
func drainDeltas(ch <-chan domain.StreamDelta) (content, thinking string, last domain.StreamDelta) {
	for d := range ch {
		content += d.Content
		thinking += d.Thinking
		last = d
	}
	return
}
