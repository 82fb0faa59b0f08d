package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"roundtable/internal/domain"
)

// maxSSELine bounds a single SSE line; reasoning deltas can be long.
const maxSSELine = 1024 * 1024

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a StreamDelta using the provider-specific parseLine function.
// The returned channel is closed after a Done or Err delta, when the body
// ends, or when ctx is cancelled. A read error mid-stream is delivered as a
// final delta wrapping domain.ErrStreamInterrupted.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 || line[0] == ':' {
				continue
			}
			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			data = bytes.TrimSpace(data)

			if bytes.Equal(data, []byte("[DONE]")) {
				send(domain.StreamDelta{Done: true})
				return
			}

			delta, err := parseLine(data)
			if err != nil || delta == nil {
				continue
			}
			if !send(*delta) {
				return
			}
			if delta.Done || delta.Err != nil {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(domain.StreamDelta{Err: fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)})
			return
		}
		// Body ended without an explicit terminator.
		send(domain.StreamDelta{Done: true})
	}()
	return ch
}
