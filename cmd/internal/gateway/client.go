package gateway

import (
	"sync"
	"time"
)

// Outbound is one server-to-participant message on the wire.
type Outbound struct {
	Text string    `json:"text"`
	TS   time.Time `json:"ts"`
}

// Inbound is one participant-to-server message on the wire.
type Inbound struct {
	Text string `json:"text"`
}

// Client represents one connected websocket session for a participant.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent senders.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	SessionID  string
	ExternalID int64
	Send       chan Outbound

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(externalID int64, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID:  sessionID,
		ExternalID: externalID,
		Send:       make(chan Outbound, sendQueueSize),
		done:       make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep delivery safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
