package broadcast

import (
	"context"
	"time"
)

// Entry is one recorded broadcast run.
type Entry struct {
	ID         int64
	RunID      string
	AdminID    int64
	AdminName  string
	Text       string
	Total      int
	Sent       int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RecordInput starts a ledger entry before the first send.
type RecordInput struct {
	RunID   string
	AdminID int64
	Text    string
	Total   int
	Now     time.Time
}

// Store is the broadcast ledger persistence boundary.
//
// Finalize is exactly-once per run: a second call for the same run id fails
// with ErrFinalized, and sent+failed may never exceed the recorded total.
type Store interface {
	Record(ctx context.Context, in RecordInput) (Entry, error)
	Finalize(ctx context.Context, runID string, sent, failed int, finishedAt time.Time) error
	History(ctx context.Context, limit int) ([]Entry, error)
}
