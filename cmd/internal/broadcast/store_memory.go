package broadcast

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only ledger used when DB is not configured.
type InMemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string]*Entry

	// AdminNames optionally maps admin ids to display names for History.
	adminNames map[int64]string
}

// NewInMemoryStore constructs an in-memory ledger Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries:    make(map[string]*Entry),
		adminNames: make(map[int64]string),
	}
}

// SetAdminName registers a display name resolved in History output.
func (s *InMemoryStore) SetAdminName(adminID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminNames[adminID] = name
}

// Record inserts a ledger entry for a run that is about to start.
func (s *InMemoryStore) Record(ctx context.Context, in RecordInput) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	text := strings.TrimSpace(in.Text)
	if in.RunID == "" || in.AdminID == 0 || text == "" || in.Total < 0 {
		return Entry{}, ErrInvalidInput
	}
	if len([]rune(text)) > maxTextChars {
		return Entry{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[in.RunID]; ok {
		return Entry{}, ErrInvalidInput
	}

	s.nextID++
	e := &Entry{
		ID:        s.nextID,
		RunID:     in.RunID,
		AdminID:   in.AdminID,
		Text:      text,
		Total:     in.Total,
		StartedAt: now,
	}
	s.entries[in.RunID] = e
	return *e, nil
}

// Finalize closes a ledger entry with the run's terminal counts.
func (s *InMemoryStore) Finalize(ctx context.Context, runID string, sent, failed int, finishedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" || sent < 0 || failed < 0 {
		return ErrInvalidInput
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[runID]
	if !ok {
		return ErrNotFound
	}
	if e.FinishedAt != nil {
		return ErrFinalized
	}
	if sent+failed > e.Total {
		return ErrInvalidInput
	}

	e.Sent = sent
	e.Failed = failed
	e.FinishedAt = &finishedAt
	return nil
}

// History returns the most recent runs, newest first.
func (s *InMemoryStore) History(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		copied := *e
		copied.AdminName = s.adminNames[e.AdminID]
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
