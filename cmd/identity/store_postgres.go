package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Profile field limits (runes). Oversized input is rejected, not truncated.
const (
	maxNameChars    = 128
	maxProfileChars = 2000
)

// PostgresStore implements participant persistence over PostgreSQL.
//
// Ownership model:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "frost").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "frost",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, tg_external_id, username, first_name, last_name, wishlist, address, is_active, created_at`

// Upsert registers a participant on first contact.
//
// The insert is conflict-tolerant: under a concurrent first contact for the
// same external id, exactly one row wins and both callers observe it.
func (s *PostgresStore) Upsert(ctx context.Context, in UpsertInput) (User, error) {
	const op = "identity.Upsert"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
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
	if len([]rune(first)) > maxNameChars {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "first name too long"}
	}
	last := strings.TrimSpace(in.LastName)
	if len([]rune(last)) > maxNameChars {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "last name too long"}
	}
	username := trimPtr(in.Username)

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+users+` (tg_external_id, username, first_name, last_name, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tg_external_id) DO NOTHING
		 RETURNING `+userColumns,
		in.ExternalID, username, first, last, now,
	).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName,
		&u.Wishlist, &u.Address, &u.IsActive, &u.CreatedAt,
	)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return User{}, err
	}

	// Conflict path: the row already exists, read it back.
	return s.GetByExternalID(ctx, in.ExternalID)
}

// GetByExternalID looks a participant up by messaging-channel id.
func (s *PostgresStore) GetByExternalID(ctx context.Context, externalID int64) (User, error) {
	const op = "identity.GetByExternalID"
	return s.getBy(ctx, op, `tg_external_id`, externalID)
}

// GetByID looks a participant up by internal id.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (User, error) {
	const op = "identity.GetByID"
	return s.getBy(ctx, op, `id`, id)
}

func (s *PostgresStore) getBy(ctx context.Context, op, column string, key int64) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE `+column+` = $1`,
		key,
	).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName,
		&u.Wishlist, &u.Address, &u.IsActive, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// SetWishlist replaces the participant's free-text wishlist.
func (s *PostgresStore) SetWishlist(ctx context.Context, id int64, text string) error {
	const op = "identity.SetWishlist"
	return s.setProfileField(ctx, op, `wishlist`, id, text)
}

// SetAddress replaces the participant's free-text delivery address.
func (s *PostgresStore) SetAddress(ctx context.Context, id int64, text string) error {
	const op = "identity.SetAddress"
	return s.setProfileField(ctx, op, `address`, id, text)
}

func (s *PostgresStore) setProfileField(ctx context.Context, op, column string, id int64, text string) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if len([]rune(text)) > maxProfileChars {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "text too long"}
	}

	users := pgIdent(s.schema, "users")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET `+column+` = $1 WHERE id = $2`,
		text, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return nil
}

// SetActive toggles the participant's broadcast-audience flag.
func (s *PostgresStore) SetActive(ctx context.Context, id int64, active bool) error {
	const op = "identity.SetActive"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	users := pgIdent(s.schema, "users")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET is_active = $1 WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound, Msg: "user"}
	}
	return nil
}

// ListActive returns active participants ordered by id.
func (s *PostgresStore) ListActive(ctx context.Context) ([]User, error) {
	const op = "identity.ListActive"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE is_active ORDER BY id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName,
			&u.Wishlist, &u.Address, &u.IsActive, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts the registered population.
func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	const op = "identity.Stats"

	if s == nil || s.pool == nil {
		return Stats{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE is_active),
		        count(*) FILTER (WHERE created_at > $1)
		   FROM `+users,
		now.Add(-7*24*time.Hour),
	).Scan(&st.Total, &st.Active, &st.NewLast7)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
