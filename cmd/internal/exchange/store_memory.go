package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"frost/cmd/internal/rooms"
)

// InMemoryStore is a dev-only Store used when DB is not configured. It leans
// on the rooms store for membership and lifecycle, mirroring how the
// Postgres stores share one schema.
type InMemoryStore struct {
	rooms rooms.Store

	mu    sync.Mutex
	pairs map[int64][]Pairing
}

// NewInMemoryStore constructs an in-memory Store over the given rooms store.
func NewInMemoryStore(roomStore rooms.Store) *InMemoryStore {
	return &InMemoryStore{
		rooms: roomStore,
		pairs: make(map[int64][]Pairing),
	}
}

// CreatePairings snapshots the room's members, persists the generated
// assignment, and moves the room to exchange_started.
func (s *InMemoryStore) CreatePairings(ctx context.Context, roomID int64, now time.Time, gen Generator) ([]Pairing, error) {
	if s == nil || s.rooms == nil {
		return nil, errors.New("exchange: nil store")
	}
	if roomID == 0 || gen == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	switch room.Status {
	case rooms.StatusOpen:
	case rooms.StatusExchangeStarted:
		return nil, ErrAlreadyStarted
	default:
		return nil, ErrNotFound
	}

	members, err := s.rooms.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(members) < 2 {
		return nil, ErrTooFewMembers
	}
	memberIDs := make([]int64, len(members))
	for i, m := range members {
		memberIDs[i] = m.UserID
	}

	pairs := gen(memberIDs)
	if len(pairs) != len(memberIDs) {
		return nil, ErrInvalidInput
	}

	out := make([]Pairing, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Pairing{
			RoomID:     roomID,
			GiverID:    p.GiverID,
			ReceiverID: p.ReceiverID,
			CreatedAt:  now,
		})
	}

	if err := s.rooms.Transition(ctx, roomID, rooms.StatusOpen, rooms.StatusExchangeStarted); err != nil {
		return nil, ErrAlreadyStarted
	}
	s.pairs[roomID] = out
	return append([]Pairing(nil), out...), nil
}

// ReceiverOf returns the receiver assigned to the giver in the room.
func (s *InMemoryStore) ReceiverOf(ctx context.Context, roomID, giverID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pairs[roomID] {
		if p.GiverID == giverID {
			return p.ReceiverID, nil
		}
	}
	return 0, ErrNotFound
}

// ListByRoom returns the room's assignment.
func (s *InMemoryStore) ListByRoom(ctx context.Context, roomID int64) ([]Pairing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pairing(nil), s.pairs[roomID]...), nil
}

// MarkNotified records that the giver has received their assignment message.
func (s *InMemoryStore) MarkNotified(ctx context.Context, roomID, giverID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.pairs[roomID]
	for i := range ps {
		if ps[i].GiverID == giverID {
			ps[i].Notified = true
			return nil
		}
	}
	return ErrNotFound
}
