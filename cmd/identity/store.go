package identity

import (
	"context"
	"time"
)

// User is a registered participant.
type User struct {
	ID         int64
	ExternalID int64
	Username   *string
	FirstName  string
	LastName   string

	Wishlist string
	Address  string

	IsActive  bool
	CreatedAt time.Time
}

// DisplayName returns the name shown to other participants.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UpsertInput describes a first-contact registration request.
// Upsert is idempotent per ExternalID: an existing user is returned unchanged.
type UpsertInput struct {
	ExternalID int64
	Username   *string
	FirstName  string
	LastName   string
	Now        time.Time
}

// Stats summarizes the registered population for the admin panel.
type Stats struct {
	Total    int64
	Active   int64
	NewLast7 int64
}

// Store is the participant persistence boundary.
type Store interface {
	// Upsert registers a participant on first contact, or returns the
	// existing row when the external id is already known.
	Upsert(ctx context.Context, in UpsertInput) (User, error)

	GetByExternalID(ctx context.Context, externalID int64) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)

	SetWishlist(ctx context.Context, id int64, text string) error
	SetAddress(ctx context.Context, id int64, text string) error
	SetActive(ctx context.Context, id int64, active bool) error

	// ListActive returns the broadcast audience ordered by id.
	ListActive(ctx context.Context) ([]User, error)

	Stats(ctx context.Context, now time.Time) (Stats, error)
}
