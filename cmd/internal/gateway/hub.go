package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOffline reports that no session is connected for the recipient.
var ErrOffline = errors.New("recipient_offline")

// Hub tracks connected sessions keyed by the participant's external id. A
// participant may hold several sessions at once; outbound messages fan out to
// all of them. Hub satisfies the dispatcher's Sender, so broadcasts and
// assignment notifications reach whoever is connected.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[int64]map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		sessions: make(map[int64]map[string]*Client),
	}
}

// Register adds a session for the participant.
func (h *Hub) Register(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[c.ExternalID]
	if !ok {
		m = make(map[string]*Client)
		h.sessions[c.ExternalID] = m
	}
	if _, exists := m[c.SessionID]; !exists {
		sessionsActive.Inc()
	}
	m[c.SessionID] = c
}

// Unregister removes a session. The client itself is closed by its gateway
// loop; the hub only forgets the handle.
func (h *Hub) Unregister(externalID int64, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.sessions[externalID]
	if !ok {
		return
	}
	if _, exists := m[sessionID]; exists {
		sessionsActive.Dec()
	}
	delete(m, sessionID)
	if len(m) == 0 {
		delete(h.sessions, externalID)
	}
}

// Online reports whether the participant has at least one session.
func (h *Hub) Online(externalID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[externalID]) > 0
}

// Send enqueues text to every session of the participant. It fails with
// ErrOffline when no session is connected and never blocks: a session whose
// queue is full is skipped.
func (h *Hub) Send(ctx context.Context, externalID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*Client, 0, 2)
	for _, c := range h.sessions[externalID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return ErrOffline
	}

	out := Outbound{Text: text, TS: time.Now().UTC()}
	delivered := 0
	for _, c := range clients {
		select {
		case <-c.Done():
		case c.Send <- out:
			delivered++
		default:
			h.log.Warn("session queue full, dropping message",
				"external_id", externalID, "session_id", c.SessionID)
		}
	}
	if delivered == 0 {
		return ErrOffline
	}
	return nil
}
