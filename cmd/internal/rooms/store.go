package rooms

import (
	"context"
	"time"
)

// Room is a named, capacity-bounded exchange group identified by an invite code.
type Room struct {
	ID              int64
	Name            string
	OwnerID         int64
	InviteCode      string
	MaxParticipants int
	Status          Status
	CreatedAt       time.Time
}

// Member is a participant's recorded presence in a room.
type Member struct {
	RoomID   int64
	UserID   int64
	JoinedAt time.Time
}

// CreateRecord is a normalized room insert payload.
// The owner is enrolled as the first member in the same transaction.
type CreateRecord struct {
	Name            string
	OwnerID         int64
	InviteCode      string
	MaxParticipants int
	Now             time.Time
}

// RoomStats summarizes rooms for the admin panel.
type RoomStats struct {
	Total            int64
	Active           int64
	ExchangesStarted int64
	Top              []TopRoom
}

// TopRoom is a (room, member count) entry for the admin panel top list.
type TopRoom struct {
	Room    Room
	Members int
}

// Store is the room and membership persistence boundary.
//
// Requirements:
//   - Invite-code uniqueness is enforced by the storage layer; Create reports
//     a collision as ErrCodeTaken so the caller can retry generation.
//   - Join is atomic: the duplicate check, the status check, the capacity
//     check, and the insert must not race with concurrent joins to the same
//     room.
//   - ListMembers preserves join order; it is the canonical ordering handed to
//     pairing generation.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Room, error)
	FindByCode(ctx context.Context, code string) (Room, error)
	FindByID(ctx context.Context, id int64) (Room, error)

	Join(ctx context.Context, roomID, userID int64, now time.Time) (int, error)
	Leave(ctx context.Context, roomID, userID int64) error
	Count(ctx context.Context, roomID int64) (int, error)
	ListMembers(ctx context.Context, roomID int64) ([]Member, error)
	RoomsOf(ctx context.Context, userID int64) ([]Room, error)

	// Transition performs a validated conditional status update. It fails with
	// ErrInvalidState when the room is not currently in "from" or when
	// from -> to is not a legal lifecycle step.
	Transition(ctx context.Context, roomID int64, from, to Status) error

	Stats(ctx context.Context, topN int) (RoomStats, error)
}
