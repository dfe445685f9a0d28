package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
)

// StreamManager handles active SSE connections, keyed by instance ID.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for instanceID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(instanceID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[instanceID]; !ok {
		sm.subscribers[instanceID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[instanceID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[instanceID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, instanceID)
			}
		}
	}
}

// Subscribers returns the number of open streams for instanceID.
func (sm *StreamManager) Subscribers(instanceID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[instanceID])
}

// Broadcast sends msg to every subscriber of instanceID. Slow clients drop messages.
func (sm *StreamManager) Broadcast(instanceID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[instanceID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "instance_id", instanceID)
		}
	}
}

// publish broadcasts the diff between two snapshots of an instance.
func (s *Server) publish(before, after *domain.WorkflowInstance) {
	diff := domain.Diff(before, after)
	if diff == nil {
		return
	}
	bytes, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("Failed to encode instance diff", "instance_id", after.ID, "error", err)
		return
	}
	s.streams.Broadcast(after.ID, string(bytes))
}

// SubscribeEvents streams instance diffs (GET /workflows/{instanceID}/events).
// The optional "watch" query (active,status,branches,history) filters which
// diffs are sent.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	instanceID, ok := s.pathString(w, r, "instanceID")
	if !ok {
		return
	}
	var watch string
	if !s.queryString(w, r, "watch", &watch) {
		return
	}

	inst, err := s.svc.WorkflowStatus(r.Context(), instanceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	ch, cancel := s.streams.Subscribe(instanceID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	s.logger.Info("SSE: Subscribing to instance updates", "instance_id", instanceID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if snapshot, err := json.Marshal(domain.Diff(nil, inst)); err == nil {
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", snapshot)
	}
	flusher.Flush()

	var fields []string
	if watch != "" {
		fields = strings.Split(watch, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "instance_id", instanceID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(fields) > 0 && !matches(msg, fields) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// matches reports whether the encoded diff touches one of the watched fields.
func matches(msg string, fields []string) bool {
	var diff domain.InstanceDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "active":
			if diff.Active != nil {
				return true
			}
		case "status":
			if diff.Status != nil {
				return true
			}
		case "branches":
			if diff.Branches != nil {
				return true
			}
		case "history":
			if len(diff.Appended) > 0 {
				return true
			}
		}
	}
	return false
}
