package exchange

import (
	"context"
	"time"
)

// Pairing is one persisted giver -> receiver assignment.
type Pairing struct {
	RoomID     int64
	GiverID    int64
	ReceiverID int64
	Notified   bool
	CreatedAt  time.Time
}

// Generator derives an assignment from a member snapshot.
type Generator func(memberIDs []int64) []Pair

// Store is the assignment persistence boundary.
//
// CreatePairings must be atomic with respect to concurrent joins and leaves:
// the member snapshot it hands to gen, the insert of the resulting pairs, and
// the room's move to exchange_started happen as one unit, so the persisted
// assignment always covers exactly the members present at draw time.
type Store interface {
	CreatePairings(ctx context.Context, roomID int64, now time.Time, gen Generator) ([]Pairing, error)
	ReceiverOf(ctx context.Context, roomID, giverID int64) (int64, error)
	ListByRoom(ctx context.Context, roomID int64) ([]Pairing, error)
	MarkNotified(ctx context.Context, roomID, giverID int64) error
}
