package exchange

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/rooms"
)

// RoomDirectory is the subset of room lookup the exchange needs.
type RoomDirectory interface {
	FindByID(ctx context.Context, id int64) (rooms.Room, error)
}

// Service coordinates the draw and the assignment notifications.
type Service struct {
	store Store
	dir   RoomDirectory

	shuffle Shuffler
	logger  *slog.Logger
}

// Option configures the Service.
type Option func(*Service) error

// WithShuffler replaces the permutation source. Tests use it to pin the draw.
func WithShuffler(sh Shuffler) Option {
	return func(s *Service) error {
		if sh == nil {
			return ErrInvalidInput
		}
		s.shuffle = sh
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		if l == nil {
			return ErrInvalidInput
		}
		s.logger = l
		return nil
	}
}

// NewService constructs a Service.
func NewService(store Store, dir RoomDirectory, opts ...Option) (*Service, error) {
	if store == nil || dir == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:  store,
		dir:    dir,
		logger: slog.Default(),
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

// Start draws and persists the room's assignment. Only the owner may start,
// and the draw happens at most once per room: a second attempt fails with
// ErrAlreadyStarted and the original assignment stands.
func (s *Service) Start(ctx context.Context, roomID, requesterID int64) ([]Pairing, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if roomID == 0 || requesterID == 0 {
		return nil, ErrInvalidInput
	}

	room, err := s.dir.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if room.OwnerID != requesterID {
		return nil, ErrNotOwner
	}

	ps, err := s.store.CreatePairings(ctx, roomID, time.Now().UTC(), func(ids []int64) []Pair {
		return GeneratePairs(ids, s.shuffle)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exchange started", "room_id", roomID, "members", len(ps))
	return ps, nil
}

// Results returns the receiver assigned to the user in the room.
// ErrNotFound covers both an unknown room and a draw that has not happened.
func (s *Service) Results(ctx context.Context, roomID, userID int64) (int64, error) {
	if s == nil || s.store == nil {
		return 0, ErrInvalidInput
	}
	return s.store.ReceiverOf(ctx, roomID, userID)
}

// ListByRoom returns the room's persisted assignment.
func (s *Service) ListByRoom(ctx context.Context, roomID int64) ([]Pairing, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	return s.store.ListByRoom(ctx, roomID)
}

// Notification is one prepared assignment message for a giver.
type Notification struct {
	GiverUserID     int64
	GiverExternalID int64
	Text            string
}

// NotifyAssignments delivers prepared per-giver messages through the paced
// dispatcher and marks each giver notified as their message lands. Delivery
// failures leave the pairing unnotified; the assignment itself is already
// persisted and unaffected.
func (s *Service) NotifyAssignments(ctx context.Context, roomID int64, d *broadcast.Dispatcher, notes []Notification) broadcast.Summary {
	targets := make([]broadcast.Target, len(notes))
	texts := make(map[int64]string, len(notes))
	for i, n := range notes {
		targets[i] = broadcast.Target{UserID: n.GiverUserID, ExternalID: n.GiverExternalID}
		texts[n.GiverUserID] = n.Text
	}

	return d.Run(ctx, broadcast.Job{
		RunID:   broadcast.NewRunID(),
		Targets: targets,
		TextFor: func(tg broadcast.Target) string { return texts[tg.UserID] },
		OnDelivered: func(ctx context.Context, tg broadcast.Target) {
			if err := s.store.MarkNotified(ctx, roomID, tg.UserID); err != nil {
				s.logger.Warn("mark notified failed",
					"room_id", roomID, "giver_id", tg.UserID, "error", err)
			}
		},
	})
}
