package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"liquidstake/core/events"
	"liquidstake/core/types"
	"liquidstake/observability"
)

const (
	wsWriteTimeout     = 10 * time.Second
	feedBufferDefault  = 64
	streamBacklogLimit = 500
)

// EventFeed fans committed events out to websocket subscribers. It
// implements events.Emitter so the node can list it among its sinks. A
// subscriber that falls a full buffer behind is disconnected and may resume
// from the archive with ?from=<height>.
type EventFeed struct {
	buffer int

	mu   sync.Mutex
	next uint64
	subs map[uint64]*feedSubscriber
}

type feedSubscriber struct {
	prefix string
	ch     chan *types.Event
}

// NewEventFeed returns a feed whose subscribers buffer up to buffer events.
func NewEventFeed(buffer int) *EventFeed {
	if buffer <= 0 {
		buffer = feedBufferDefault
	}
	return &EventFeed{buffer: buffer, subs: make(map[uint64]*feedSubscriber)}
}

// Emit implements events.Emitter.
func (f *EventFeed) Emit(evt events.Event) {
	if f == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		if !strings.HasPrefix(payload.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			delete(f.subs, id)
			close(sub.ch)
			observability.RPC().RecordThrottle("stream_lagged")
		}
	}
}

// Subscribe registers for events whose type starts with prefix. The channel
// is closed by cancel or when the subscriber lags.
func (f *EventFeed) Subscribe(prefix string) (<-chan *types.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	sub := &feedSubscriber{prefix: prefix, ch: make(chan *types.Event, f.buffer)}
	f.subs[id] = sub
	return sub.ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if current, ok := f.subs[id]; ok && current == sub {
			delete(f.subs, id)
			close(sub.ch)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *EventFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// handleEventsWS streams events as JSON text frames. Query parameters:
// type filters by prefix (e.g. "liquidstake."), from replays archived events
// at or above that height before the live feed.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	var from *uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		height, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "from must be a block height", http.StatusBadRequest)
			return
		}
		from = &height
	}

	// Subscribe before reading the backlog so nothing committed in between
	// is missed. Replayed events may then repeat on the live feed.
	updates, cancel := s.feed.Subscribe(prefix)
	defer cancel()

	var backlog []*types.Event
	if from != nil {
		if s.events == nil {
			http.Error(w, "event archive not configured", http.StatusServiceUnavailable)
			return
		}
		records, err := s.events.SinceHeight(r.Context(), *from, streamBacklogLimit)
		if err != nil {
			s.logger.Error("stream backlog", "error", err)
			http.Error(w, "event archive unavailable", http.StatusInternalServerError)
			return
		}
		for _, record := range records {
			if strings.HasPrefix(record.Type, prefix) {
				backlog = append(backlog, &types.Event{Type: record.Type, Height: record.Height, Attributes: record.Attributes})
			}
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())

	for _, evt := range backlog {
		if err := writeStreamEvent(ctx, conn, evt); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber lagged")
				return
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				if websocket.CloseStatus(err) == -1 {
					_ = conn.Close(websocket.StatusInternalError, "stream error")
				}
				return
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
