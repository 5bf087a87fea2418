package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans out the traces of stateful turns to server-sent event subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // userID -> set of channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a buffered channel for userID. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe(userID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[userID]; !ok {
		sm.subscribers[userID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[userID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[userID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, userID)
				}
			}
			close(ch)
		})
	}
}

// Broadcast sends msg to every subscriber of userID. Slow subscribers drop messages.
func (sm *StreamManager) Broadcast(userID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[userID] {
		select {
		case ch <- msg:
		default:
			slog.Warn("SSE: client buffer full, dropping message", "user_id", userID)
		}
	}
}

// Subscribers returns the number of subscribers of userID.
func (sm *StreamManager) Subscribers(userID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[userID])
}

// SubscribeEvents handles GET /state/user/{userID}/events (SSE). The optional "types" query
// parameter keeps only the listed trace types, e.g. ?types=speak,end.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeStatus(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	userID := chi.URLParam(r, "userID")
	var filter map[domain.TraceType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = make(map[domain.TraceType]bool)
		for _, t := range strings.Split(raw, ",") {
			filter[domain.TraceType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil {
				msg, ok = filterTraces(msg, filter)
				if !ok {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func filterTraces(msg string, keep map[domain.TraceType]bool) (string, bool) {
	var payload struct {
		Trace []json.RawMessage `json:"trace"`
	}
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		return msg, true
	}
	kept := payload.Trace[:0]
	for _, raw := range payload.Trace {
		var head struct {
			Type domain.TraceType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err == nil && keep[head.Type] {
			kept = append(kept, raw)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	payload.Trace = kept
	out, err := json.Marshal(payload)
	if err != nil {
		return msg, true
	}
	return string(out), true
}
