package gateway

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"roundtable/internal/domain"
)

const wsWriteTimeout = 5 * time.Second

// handleWS serves GET /debate/ws: the same message sequence as the SSE
// stream, one JSON text frame per message. Parameters come from the query
// string and are validated before the upgrade.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.newSession(r)
	if err != nil {
		s.reject(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.wsOriginPatterns()})
	if err != nil {
		s.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.CloseNow()

	s.deps.Metrics.ActiveStreams.Add(1)
	defer s.deps.Metrics.ActiveStreams.Add(-1)

	// CloseRead handles control frames and cancels ctx once the peer goes away.
	ctx, cancel := context.WithCancel(ws.CloseRead(r.Context()))
	defer cancel()

	s.deps.Driver.Run(ctx, sess, func(o domain.Output) {
		if ctx.Err() != nil {
			return
		}
		msg, err := Message(o)
		if err != nil {
			s.deps.Logger.Error("encode output", "session", sess.ID, "error", err)
			return
		}
		wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = wsjson.Write(wctx, ws, msg)
		wcancel()
		if err != nil {
			s.deps.Logger.Debug("websocket client gone", "session", sess.ID, "error", err)
			cancel()
		}
	})

	ws.Close(websocket.StatusNormalClosure, "debate done")
}

// watcher is one /events subscriber.
type watcher struct {
	ws        *websocket.Conn
	sendCh    chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

// handleEvents serves GET /events: a WebSocket feed of debate lifecycle
// events from the bus. Slow watchers lose events rather than stall
// publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.wsOriginPatterns()})
	if err != nil {
		s.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}

	id := s.nextID.Add(1)
	wt := &watcher{
		ws:     ws,
		sendCh: make(chan domain.Event, 64),
		done:   make(chan struct{}),
	}
	s.watchers.Store(id, wt)
	s.deps.Logger.Debug("event watcher connected", "conn_id", id)

	ctx := ws.CloseRead(r.Context())
	s.writeLoop(ctx, wt)

	wt.closeOnce.Do(func() { close(wt.done) })
	s.watchers.Delete(id)
	ws.Close(websocket.StatusNormalClosure, "")
	s.deps.Logger.Debug("event watcher disconnected", "conn_id", id)
}

func (s *Server) writeLoop(ctx context.Context, wt *watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wt.done:
			return
		case ev := <-wt.sendCh:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, wt.ws, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// broadcast fans a bus event out to every /events watcher.
func (s *Server) broadcast(_ context.Context, ev domain.Event) {
	s.watchers.Range(func(_, value any) bool {
		wt := value.(*watcher)
		select {
		case wt.sendCh <- ev:
		default:
			s.deps.Logger.Warn("gateway: dropped event for slow watcher", "event", string(ev.Type))
		}
		return true
	})
}

// parseOriginHost turns a configured origin ("https://app.example.com")
// into a websocket origin pattern ("app.example.com").
func parseOriginHost(origin string) (string, error) {
	if origin == "*" {
		return origin, nil
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return origin, nil
	}
	return u.Host, nil
}
