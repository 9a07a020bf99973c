package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxRoomNameChars = 50

	defaultMaxParticipants = 30
	defaultCodeAttempts    = 5
)

// Service manages room creation, invite-code resolution, and membership.
type Service struct {
	store Store

	codeLength      int
	codeAttempts    int
	maxParticipants int
}

// Option configures the Service.
type Option func(*Service) error

// WithCodeLength sets the length of generated invite codes.
func WithCodeLength(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidInput
		}
		s.codeLength = n
		return nil
	}
}

// WithMaxParticipants sets the participant capacity for new rooms.
func WithMaxParticipants(n int) Option {
	return func(s *Service) error {
		if n < 2 {
			return ErrInvalidInput
		}
		s.maxParticipants = n
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:           store,
		codeLength:      defaultCodeLength,
		codeAttempts:    defaultCodeAttempts,
		maxParticipants: defaultMaxParticipants,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateRoom allocates a unique invite code and persists a new open room with
// the owner enrolled as its first member. Code generation retries on
// collision; the unique constraint in storage is authoritative.
func (s *Service) CreateRoom(ctx context.Context, name string, ownerID int64) (Room, error) {
	if s == nil || s.store == nil {
		return Room{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" || ownerID == 0 {
		return Room{}, ErrInvalidInput
	}
	if runes := []rune(name); len(runes) > maxRoomNameChars {
		name = string(runes[:maxRoomNameChars])
	}

	now := time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code := NewInviteCode(s.codeLength)
		if code == "" {
			return Room{}, fmt.Errorf("rooms: invite code generation failed")
		}

		room, err := s.store.Create(ctx, CreateRecord{
			Name:            name,
			OwnerID:         ownerID,
			InviteCode:      code,
			MaxParticipants: s.maxParticipants,
			Now:             now,
		})
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return Room{}, err
		}
		lastErr = err
	}
	return Room{}, fmt.Errorf("rooms: invite code allocation exhausted after %d attempts: %w", s.codeAttempts, lastErr)
}

// JoinByCode resolves an invite code and joins the user to the room,
// returning the room and the updated member count.
func (s *Service) JoinByCode(ctx context.Context, code string, userID int64) (Room, int, error) {
	if s == nil || s.store == nil {
		return Room{}, 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Room{}, 0, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || userID == 0 {
		return Room{}, 0, ErrInvalidInput
	}

	room, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return Room{}, 0, err
	}

	n, err := s.store.Join(ctx, room.ID, userID, time.Now().UTC())
	if err != nil {
		return Room{}, 0, err
	}
	return room, n, nil
}

// Leave removes the user's membership. Leaving is rejected once the exchange
// has started so persisted pairings never reference departed members, and the
// owner cannot leave their own room.
func (s *Service) Leave(ctx context.Context, roomID, userID int64) error {
	if s == nil || s.store == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	room, err := s.store.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID == userID {
		return ErrOwner
	}
	return s.store.Leave(ctx, roomID, userID)
}

// FindByCode resolves an invite code to a non-closed room.
func (s *Service) FindByCode(ctx context.Context, code string) (Room, error) {
	if s == nil || s.store == nil {
		return Room{}, ErrInvalidInput
	}
	return s.store.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// FindByID looks a room up by id.
func (s *Service) FindByID(ctx context.Context, roomID int64) (Room, error) {
	if s == nil || s.store == nil {
		return Room{}, ErrInvalidInput
	}
	return s.store.FindByID(ctx, roomID)
}

// Count returns the room's member count.
func (s *Service) Count(ctx context.Context, roomID int64) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrInvalidInput
	}
	return s.store.Count(ctx, roomID)
}

// ListMembers returns the room's members in join order.
func (s *Service) ListMembers(ctx context.Context, roomID int64) ([]Member, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	return s.store.ListMembers(ctx, roomID)
}

// RoomsOf returns the rooms a user owns or participates in.
func (s *Service) RoomsOf(ctx context.Context, userID int64) ([]Room, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	return s.store.RoomsOf(ctx, userID)
}

// CloseRoom soft-deactivates a room (terminal). Used by the admin panel.
func (s *Service) CloseRoom(ctx context.Context, roomID int64) error {
	if s == nil || s.store == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	room, err := s.store.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == StatusClosed {
		return ErrInvalidState
	}
	return s.store.Transition(ctx, roomID, room.Status, StatusClosed)
}

// Stats summarizes rooms for the admin panel.
func (s *Service) Stats(ctx context.Context, topN int) (RoomStats, error) {
	if s == nil || s.store == nil {
		return RoomStats{}, ErrInvalidInput
	}
	return s.store.Stats(ctx, topN)
}
