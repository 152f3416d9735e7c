package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/metrics"
)

// wsMessage is sent by the client.
// {"action":"viewport","north":48.0,"south":47.9,"east":16.9,"west":16.8}
// {"action":"refresh"} re-runs the current query, {"action":"close"} clears the layer.
type wsMessage struct {
	Action string  `json:"action"`
	North  float64 `json:"north"`
	South  float64 `json:"south"`
	East   float64 `json:"east"`
	West   float64 `json:"west"`
}

// markersMessage carries the marker diff for one applied query.
type markersMessage struct {
	Type    string            `json:"type"`
	Seq     uint64            `json:"seq"`
	Center  domain.GeoPoint   `json:"center"`
	Radius  float64           `json:"radius"`
	Added   []usecases.Marker `json:"added"`
	Removed []string          `json:"removed"`
}

type wsError struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq,omitempty"`
	Error string `json:"error"`
}

type nearbyFunc func(ctx context.Context, center domain.GeoPoint, radius float64) ([]domain.Record, error)

// viewportSession is the server side of one map client. Queries run
// asynchronously; a result is applied only if no newer one was applied first.
type viewportSession struct {
	ctx     context.Context
	nearby  nearbyFunc
	tracker *usecases.ViewportTracker
	layer   *usecases.MarkerLayer
	send    func(v any) error
	spawn   func(func())
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newViewportSession(ctx context.Context, nearby nearbyFunc, cfg usecases.ViewportConfig, send func(any) error) *viewportSession {
	return &viewportSession{
		ctx:     ctx,
		nearby:  nearby,
		tracker: usecases.NewViewportTracker(cfg),
		layer:   usecases.NewMarkerLayer(),
		send:    send,
		spawn:   func(f func()) { go f() },
		logger:  slog.Default().With("component", "ws"),
	}
}

func (s *viewportSession) handle(data []byte) {
	var m wsMessage
	if err := json.Unmarshal(data, &m); err != nil {
		_ = s.send(wsError{Type: "error", Error: "invalid JSON"})
		return
	}

	switch m.Action {
	case "viewport":
		vp := domain.Viewport{North: m.North, South: m.South, East: m.East, West: m.West}
		if !validViewport(vp) {
			_ = s.send(wsError{Type: "error", Error: "invalid viewport"})
			return
		}
		if q, ok := s.tracker.Observe(vp); ok {
			s.dispatch(q)
		}
	case "refresh":
		s.refresh()
	case "close":
		s.close()
	default:
		_ = s.send(wsError{Type: "error", Error: "unknown action: " + m.Action})
	}
}

func validViewport(vp domain.Viewport) bool {
	return vp.North >= vp.South &&
		domain.GeoPoint{Lat: vp.North, Lon: vp.East}.Valid() &&
		domain.GeoPoint{Lat: vp.South, Lon: vp.West}.Valid()
}

func (s *viewportSession) refresh() {
	if q, ok := s.tracker.Refresh(); ok {
		s.dispatch(q)
	}
}

func (s *viewportSession) dispatch(q usecases.Query) {
	s.spawn(func() { s.run(q) })
}

func (s *viewportSession) run(q usecases.Query) {
	radius := min(q.Radius, usecases.MaxQueryRadius)
	records, err := s.nearby(s.ctx, q.Center, radius)
	if err != nil {
		s.logger.Warn("viewport query failed", "seq", q.Seq, "error", err)
		_ = s.send(wsError{Type: "error", Seq: q.Seq, Error: "query failed"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.tracker.Accept(q.Seq) {
		metrics.StaleResultsDropped.Inc()
		s.logger.Debug("dropping stale result", "seq", q.Seq)
		return
	}

	added, removed := s.layer.Apply(records)
	if added == nil {
		added = []usecases.Marker{}
	}
	if removed == nil {
		removed = []string{}
	}
	_ = s.send(markersMessage{
		Type:    "markers",
		Seq:     q.Seq,
		Center:  q.Center,
		Radius:  radius,
		Added:   added,
		Removed: removed,
	})
}

func (s *viewportSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	removed := s.layer.Close()
	if removed == nil {
		removed = []string{}
	}
	_ = s.send(markersMessage{Type: "closed", Added: []usecases.Marker{}, Removed: removed})
}

// SessionHub tracks live viewport sessions so an import can make them refetch.
type SessionHub struct {
	mu       sync.Mutex
	sessions map[*viewportSession]struct{}
}

// NewSessionHub creates an empty hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{sessions: make(map[*viewportSession]struct{})}
}

func (h *SessionHub) add(s *viewportSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *SessionHub) remove(s *viewportSession) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// Len returns the number of live sessions.
func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RefreshAll re-issues every session's current query and returns how many sessions were asked.
func (h *SessionHub) RefreshAll() int {
	h.mu.Lock()
	sessions := make([]*viewportSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.refresh()
	}
	return len(sessions)
}

// ImportListener returns the handler for finished-import events: it moves the
// range cache to a fresh key space and makes every live session refetch.
// Events for other collections are ignored.
func ImportListener(clusters *usecases.ClusterService, hub *SessionHub) func(ctx context.Context, event *domain.ImportEvent) error {
	return func(ctx context.Context, event *domain.ImportEvent) error {
		if event.Collection != clusters.Collection() {
			return nil
		}
		clusters.ResetCache(event.RunID)
		n := 0
		if hub != nil {
			n = hub.RefreshAll()
		}
		slog.Info("import applied",
			"collection", event.Collection,
			"run_id", event.RunID,
			"clusters", event.Clusters,
			"sessions", n,
		)
		return nil
	}
}

// WebSocketHandler returns a handler that runs one viewport session per connection.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		logger := slog.Default().With("component", "ws", "remote", remoteAddr)
		logger.Info("ws client connected")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var writeMu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		session := newViewportSession(ctx, deps.Clusters.Nearby, deps.Viewport, writeJSON)
		session.logger = logger
		if deps.Sessions != nil {
			deps.Sessions.add(session)
			defer deps.Sessions.remove(session)
		}
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					writeMu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					writeMu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			session.handle(msg)
		}

		session.mu.Lock()
		session.closed = true
		session.mu.Unlock()
		logger.Info("ws client disconnected", "markers", session.layer.Len())
	}
}
