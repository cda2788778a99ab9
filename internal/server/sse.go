package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/relay/internal/events"
)

const (
	// sseHistorySize bounds the replay buffer backing Last-Event-ID
	// reconnection.
	sseHistorySize = 1000

	// sseKeepaliveInterval is how often comment lines are sent to keep idle
	// connections from timing out.
	sseKeepaliveInterval = 15 * time.Second

	// sseStreamBuffer is the per-client delivery buffer.
	sseStreamBuffer = 64
)

// sseEvent is one broadcast event, sequenced for Last-Event-ID replay.
type sseEvent struct {
	seq   uint64
	topic string
	data  []byte // JSON-encoded payload
}

// sseHub fans recordAndPublish events out to connected stream clients and
// keeps a bounded history so a reconnecting client can catch up.
type sseHub struct {
	mu      sync.Mutex
	seq     uint64
	history []sseEvent                 // oldest first, at most sseHistorySize entries
	streams map[chan sseEvent][]string // delivery channel to its topic filters
}

func newSSEHub() *sseHub {
	return &sseHub{streams: make(map[chan sseEvent][]string)}
}

// broadcast records the event in the history and delivers it to every stream
// whose filters match the topic.
func (h *sseHub) broadcast(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := sseEvent{seq: h.seq, topic: topic, data: payload}

	h.history = append(h.history, evt)
	if len(h.history) > sseHistorySize {
		h.history = h.history[len(h.history)-sseHistorySize:]
	}

	for ch, filters := range h.streams {
		if !topicAllowed(filters, topic) {
			continue
		}
		select {
		case ch <- evt:
		default:
			// A stalled client misses events instead of blocking the hub;
			// it can replay via Last-Event-ID after reconnecting.
		}
	}
}

// register adds a stream with the given topic filters and returns its
// delivery channel. Call drop when the client disconnects.
func (h *sseHub) register(filters []string) chan sseEvent {
	ch := make(chan sseEvent, sseStreamBuffer)
	h.mu.Lock()
	h.streams[ch] = filters
	h.mu.Unlock()
	return ch
}

func (h *sseHub) drop(ch chan sseEvent) {
	h.mu.Lock()
	delete(h.streams, ch)
	h.mu.Unlock()
}

// replay returns buffered events with sequence numbers after seq that pass
// the filters, oldest first.
func (h *sseHub) replay(seq uint64, filters []string) []sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []sseEvent
	for _, evt := range h.history {
		if evt.seq > seq && topicAllowed(filters, evt.topic) {
			out = append(out, evt)
		}
	}
	return out
}

// topicAllowed reports whether any filter matches the topic. No filters
// means every topic is allowed.
func topicAllowed(filters []string, topic string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if events.MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

// handleEventStream handles GET /v1/events/stream (SSE endpoint).
func (s *RelayServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var filters []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filters = append(filters, t)
		}
	}

	ch := s.sseHub.register(filters)
	defer s.sseHub.drop(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Catch a reconnecting client up from the history buffer.
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if seq, err := strconv.ParseUint(last, 10, 64); err == nil {
			for _, evt := range s.sseHub.replay(seq, filters) {
				writeSSEEvent(w, evt)
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.seq, evt.topic, evt.data)
}

// broadcastEvent is called by recordAndPublish to fan events out to stream
// clients.
func (s *RelayServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
