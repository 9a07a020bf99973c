package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// It mirrors the PostgresStore contract closely enough for unit tests.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byExt  map[int64]*User
	byID   map[int64]*User
}

// NewInMemoryStore constructs an in-memory participant store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byExt: make(map[int64]*User),
		byID:  make(map[int64]*User),
	}
}

// Upsert registers a participant on first contact (idempotent per external id).
func (s *InMemoryStore) Upsert(ctx context.Context, in UpsertInput) (User, error) {
	const op = "identity.Upsert"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if in.ExternalID == 0 {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing external id"}
	}
	first := strings.TrimSpace(in.FirstName)
	if first == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing first name"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byExt[in.ExternalID]; ok {
		return *u, nil
	}

	s.nextID++
	u := &User{
		ID:         s.nextID,
		ExternalID: in.ExternalID,
		Username:   trimPtr(in.Username),
		FirstName:  first,
		LastName:   strings.TrimSpace(in.LastName),
		IsActive:   true,
		CreatedAt:  now,
	}
	s.byExt[u.ExternalID] = u
	s.byID[u.ID] = u
	return *u, nil
}

// GetByExternalID looks a participant up by messaging-channel id.
func (s *InMemoryStore) GetByExternalID(ctx context.Context, externalID int64) (User, error) {
	const op = "identity.GetByExternalID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byExt[externalID]
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return *u, nil
}

// GetByID looks a participant up by internal id.
func (s *InMemoryStore) GetByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return *u, nil
}

// SetWishlist replaces the participant's wishlist.
func (s *InMemoryStore) SetWishlist(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "identity.SetWishlist", id, func(u *User) { u.Wishlist = strings.TrimSpace(text) })
}

// SetAddress replaces the participant's address.
func (s *InMemoryStore) SetAddress(ctx context.Context, id int64, text string) error {
	return s.update(ctx, "identity.SetAddress", id, func(u *User) { u.Address = strings.TrimSpace(text) })
}

// SetActive toggles the broadcast-audience flag.
func (s *InMemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.update(ctx, "identity.SetActive", id, func(u *User) { u.IsActive = active })
}

func (s *InMemoryStore) update(ctx context.Context, op string, id int64, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	fn(u)
	return nil
}

// ListActive returns active participants ordered by id.
func (s *InMemoryStore) ListActive(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		if u.IsActive {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats counts the registered population.
func (s *InMemoryStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	cut := now.Add(-7 * 24 * time.Hour)
	for _, u := range s.byID {
		st.Total++
		if u.IsActive {
			st.Active++
		}
		if u.CreatedAt.After(cut) {
			st.NewLast7++
		}
	}
	return st, nil
}
