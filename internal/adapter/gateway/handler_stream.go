package gateway

import (
	"net/http"

	"roundtable/internal/domain"
)

// handleStream serves GET /debate/stream as Server-Sent Events. Bad
// parameters are rejected with a JSON 400 before any event is written.
// A client disconnect cancels the request context, which stops every
// in-flight backend stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := s.newSession(r)
	if err != nil {
		s.reject(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	s.deps.Metrics.ActiveStreams.Add(1)
	defer s.deps.Metrics.ActiveStreams.Add(-1)

	var writeErr error
	s.deps.Driver.Run(r.Context(), sess, func(o domain.Output) {
		if writeErr != nil {
			return
		}
		frame, err := Encode(o)
		if err != nil {
			s.deps.Logger.Error("encode output", "session", sess.ID, "error", err)
			return
		}
		if _, err := w.Write(frame); err != nil {
			writeErr = err
			s.deps.Logger.Debug("sse client gone", "session", sess.ID, "error", err)
			return
		}
		_ = rc.Flush()
	})
}
