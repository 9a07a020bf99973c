package rooms

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// It serializes everything on one mutex, which trivially satisfies the
// atomicity contract the Postgres store provides per room.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Room
	member map[int64][]Member
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[int64]*Room),
		member: make(map[int64][]Member),
	}
}

// Create inserts a room with its owner enrolled.
func (s *InMemoryStore) Create(ctx context.Context, in CreateRecord) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}
	if strings.TrimSpace(in.Name) == "" || in.OwnerID == 0 || strings.TrimSpace(in.InviteCode) == "" {
		return Room{}, ErrInvalidInput
	}
	if in.MaxParticipants < 2 {
		return Room{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.byID {
		if r.InviteCode == in.InviteCode {
			return Room{}, ErrCodeTaken
		}
	}

	s.nextID++
	room := &Room{
		ID:              s.nextID,
		Name:            in.Name,
		OwnerID:         in.OwnerID,
		InviteCode:      in.InviteCode,
		MaxParticipants: in.MaxParticipants,
		Status:          StatusOpen,
		CreatedAt:       now,
	}
	s.byID[room.ID] = room
	s.member[room.ID] = []Member{{RoomID: room.ID, UserID: in.OwnerID, JoinedAt: now}}
	return *room, nil
}

// FindByCode resolves an invite code to a non-closed room.
func (s *InMemoryStore) FindByCode(ctx context.Context, code string) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}
	if strings.TrimSpace(code) == "" {
		return Room{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.byID {
		if r.InviteCode == code && r.Status != StatusClosed {
			return *r, nil
		}
	}
	return Room{}, ErrNotFound
}

// FindByID looks a room up by id.
func (s *InMemoryStore) FindByID(ctx context.Context, id int64) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return *r, nil
}

// Join inserts a membership after the duplicate, status, and capacity checks.
func (s *InMemoryStore) Join(ctx context.Context, roomID, userID int64, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if roomID == 0 || userID == 0 {
		return 0, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[roomID]
	if !ok || r.Status == StatusClosed {
		return 0, ErrNotFound
	}

	for _, m := range s.member[roomID] {
		if m.UserID == userID {
			return 0, ErrAlreadyMember
		}
	}
	if r.Status != StatusOpen {
		return 0, ErrExchangeStarted
	}
	if len(s.member[roomID]) >= r.MaxParticipants {
		return 0, ErrRoomFull
	}

	s.member[roomID] = append(s.member[roomID], Member{RoomID: roomID, UserID: userID, JoinedAt: now})
	return len(s.member[roomID]), nil
}

// Leave removes a membership while the room is still open.
func (s *InMemoryStore) Leave(ctx context.Context, roomID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[roomID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusOpen {
		return ErrExchangeStarted
	}

	ms := s.member[roomID]
	for i, m := range ms {
		if m.UserID == userID {
			s.member[roomID] = append(ms[:i:i], ms[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Count returns the room's member count.
func (s *InMemoryStore) Count(ctx context.Context, roomID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.member[roomID]), nil
}

// ListMembers returns memberships in join order.
func (s *InMemoryStore) ListMembers(ctx context.Context, roomID int64) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Member(nil), s.member[roomID]...), nil
}

// RoomsOf returns owned rooms (newest first) then joined rooms.
func (s *InMemoryStore) RoomsOf(ctx context.Context, userID int64) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var owned, joined []Room
	for _, r := range s.byID {
		if r.OwnerID == userID {
			owned = append(owned, *r)
			continue
		}
		for _, m := range s.member[r.ID] {
			if m.UserID == userID {
				joined = append(joined, *r)
				break
			}
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
	sort.Slice(joined, func(i, j int) bool { return joined[i].ID < joined[j].ID })
	return append(owned, joined...), nil
}

// Transition performs a validated conditional status update.
func (s *InMemoryStore) Transition(ctx context.Context, roomID int64, from, to Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[roomID]
	if !ok || r.Status != from {
		return ErrInvalidState
	}
	r.Status = to
	return nil
}

// Stats summarizes rooms for the admin panel.
func (s *InMemoryStore) Stats(ctx context.Context, topN int) (RoomStats, error) {
	if err := ctx.Err(); err != nil {
		return RoomStats{}, err
	}
	if topN <= 0 {
		topN = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var st RoomStats
	var tops []TopRoom
	for _, r := range s.byID {
		st.Total++
		if r.Status != StatusClosed {
			st.Active++
			tops = append(tops, TopRoom{Room: *r, Members: len(s.member[r.ID])})
		}
		if r.Status == StatusExchangeStarted {
			st.ExchangesStarted++
		}
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Members != tops[j].Members {
			return tops[i].Members > tops[j].Members
		}
		return tops[i].Room.ID < tops[j].Room.ID
	})
	if len(tops) > topN {
		tops = tops[:topN]
	}
	st.Top = tops
	return st, nil
}
