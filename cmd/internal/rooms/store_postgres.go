// Package rooms contains the room registry and membership manager: rooms are
// created with unique invite codes, joined by code, and carry the lifecycle
// state that gates the gift exchange.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Concurrency model:
//   - Join and the pairing generation in the exchange package serialize on a
//     per-room transactional advisory lock, so the capacity check, the status
//     check, and the membership insert cannot interleave between concurrent
//     callers.
//   - Uniqueness (invite code, (room, user) membership) is enforced by unique
//     constraints; a violation is authoritative regardless of lock usage.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by this store (default: "frost").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("rooms: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("rooms: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
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
		return nil, errors.New("rooms: nil pool")
	}
	return st, nil
}

const roomColumns = `id, name, owner_id, invite_code, max_participants, status, created_at`

// Create inserts a room and enrolls the owner as its first member in one
// transaction. An invite-code collision surfaces as ErrCodeTaken.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Room, error) {
	if s == nil || s.pool == nil {
		return Room{}, errors.New("rooms: nil store")
	}
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Room{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var room Room
	err = tx.QueryRow(ctx,
		`INSERT INTO `+roomsTable+` (name, owner_id, invite_code, max_participants, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+roomColumns,
		in.Name, in.OwnerID, in.InviteCode, in.MaxParticipants, StatusOpen, now,
	).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode,
		&room.MaxParticipants, &room.Status, &room.CreatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Room{}, ErrCodeTaken
		}
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+members+` (room_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		room.ID, in.OwnerID, now,
	); err != nil {
		return Room{}, fmt.Errorf("enroll owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Room{}, err
	}
	return room, nil
}

// FindByCode resolves an invite code to a non-closed room.
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (Room, error) {
	if s == nil || s.pool == nil {
		return Room{}, errors.New("rooms: nil store")
	}
	if strings.TrimSpace(code) == "" {
		return Room{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	roomsTable := pgIdent(s.schema, "rooms")

	var room Room
	err := s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM `+roomsTable+`
		  WHERE invite_code = $1 AND status <> $2`,
		code, StatusClosed,
	).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode,
		&room.MaxParticipants, &room.Status, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// FindByID looks a room up by id.
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Room, error) {
	if s == nil || s.pool == nil {
		return Room{}, errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}

	roomsTable := pgIdent(s.schema, "rooms")

	var room Room
	err := s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM `+roomsTable+` WHERE id = $1`,
		id,
	).Scan(
		&room.ID, &room.Name, &room.OwnerID, &room.InviteCode,
		&room.MaxParticipants, &room.Status, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// Join inserts a membership after the duplicate, status, and capacity checks,
// all serialized per room via an advisory lock. Returns the new member count.
func (s *PostgresStore) Join(ctx context.Context, roomID, userID int64, now time.Time) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("rooms: nil store")
	}
	if roomID == 0 || userID == 0 {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return 0, err
	}

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var (
		status Status
		max    int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, max_participants FROM `+roomsTable+` WHERE id = $1`,
		roomID,
	).Scan(&status, &max)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	var isMember bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+members+` WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&isMember); err != nil {
		return 0, err
	}
	if isMember {
		return 0, ErrAlreadyMember
	}

	switch status {
	case StatusOpen:
	case StatusExchangeStarted:
		return 0, ErrExchangeStarted
	default:
		return 0, ErrNotFound
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM `+members+` WHERE room_id = $1`,
		roomID,
	).Scan(&count); err != nil {
		return 0, err
	}
	if count >= max {
		return 0, ErrRoomFull
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+members+` (room_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		roomID, userID, now,
	); err != nil {
		// The unique constraint is authoritative even if the EXISTS check
		// above raced with a concurrent insert outside the advisory lock.
		if pgIsUniqueViolation(err) {
			return 0, ErrAlreadyMember
		}
		return 0, fmt.Errorf("insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count + 1, nil
}

// Leave removes a membership while the room is still open.
func (s *PostgresStore) Leave(ctx context.Context, roomID, userID int64) error {
	if s == nil || s.pool == nil {
		return errors.New("rooms: nil store")
	}
	if roomID == 0 || userID == 0 {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockRoom(ctx, tx, roomID); err != nil {
		return err
	}

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var status Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM `+roomsTable+` WHERE id = $1`,
		roomID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusOpen {
		return ErrExchangeStarted
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM `+members+` WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// Count returns the room's member count.
func (s *PostgresStore) Count(ctx context.Context, roomID int64) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	members := pgIdent(s.schema, "room_members")

	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+members+` WHERE room_id = $1`,
		roomID,
	).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListMembers returns memberships in join order.
func (s *PostgresStore) ListMembers(ctx context.Context, roomID int64) ([]Member, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := pgIdent(s.schema, "room_members")

	rows, err := s.pool.Query(ctx,
		`SELECT room_id, user_id, joined_at FROM `+members+`
		  WHERE room_id = $1
		  ORDER BY joined_at ASC, id ASC`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMembers(rows)
}

// RoomsOf returns rooms owned by the user, newest first, followed by rooms
// the user joined, most recently joined first.
func (s *PostgresStore) RoomsOf(ctx context.Context, userID int64) ([]Room, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	owned, err := s.queryRooms(ctx,
		`SELECT `+roomColumns+` FROM `+roomsTable+`
		  WHERE owner_id = $1
		  ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	joined, err := s.queryRooms(ctx,
		`SELECT r.id, r.name, r.owner_id, r.invite_code, r.max_participants, r.status, r.created_at
		   FROM `+roomsTable+` r
		   JOIN `+members+` m ON m.room_id = r.id
		  WHERE m.user_id = $1 AND r.owner_id <> $1
		  ORDER BY m.joined_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	return append(owned, joined...), nil
}

// Transition performs a validated conditional status update.
func (s *PostgresStore) Transition(ctx context.Context, roomID int64, from, to Status) error {
	if s == nil || s.pool == nil {
		return errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return ErrInvalidState
	}

	roomsTable := pgIdent(s.schema, "rooms")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+roomsTable+` SET status = $1 WHERE id = $2 AND status = $3`,
		to, roomID, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Stats summarizes rooms for the admin panel.
func (s *PostgresStore) Stats(ctx context.Context, topN int) (RoomStats, error) {
	if s == nil || s.pool == nil {
		return RoomStats{}, errors.New("rooms: nil store")
	}
	if err := ctx.Err(); err != nil {
		return RoomStats{}, err
	}
	if topN <= 0 {
		topN = 5
	}

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")

	var st RoomStats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status <> $1),
		        count(*) FILTER (WHERE status = $2)
		   FROM `+roomsTable,
		StatusClosed, StatusExchangeStarted,
	).Scan(&st.Total, &st.Active, &st.ExchangesStarted)
	if err != nil {
		return RoomStats{}, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name, r.owner_id, r.invite_code, r.max_participants, r.status, r.created_at,
		        count(m.user_id) AS member_count
		   FROM `+roomsTable+` r
		   LEFT JOIN `+members+` m ON m.room_id = r.id
		  WHERE r.status <> $1
		  GROUP BY r.id
		  ORDER BY member_count DESC, r.id ASC
		  LIMIT $2`,
		StatusClosed, topN,
	)
	if err != nil {
		return RoomStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var top TopRoom
		if err := rows.Scan(
			&top.Room.ID, &top.Room.Name, &top.Room.OwnerID, &top.Room.InviteCode,
			&top.Room.MaxParticipants, &top.Room.Status, &top.Room.CreatedAt,
			&top.Members,
		); err != nil {
			return RoomStats{}, err
		}
		st.Top = append(st.Top, top)
	}
	if err := rows.Err(); err != nil {
		return RoomStats{}, err
	}
	return st, nil
}

func (s *PostgresStore) queryRooms(ctx context.Context, sql string, args ...any) ([]Room, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.ID, &room.Name, &room.OwnerID, &room.InviteCode,
			&room.MaxParticipants, &room.Status, &room.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMembers(rows pgx.Rows) ([]Member, error) {
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// lockRoom serializes room-scoped write sequences for the transaction.
// The exchange package takes the same lock before pairing generation, so a
// join can never interleave with the member snapshot used for pairing.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID int64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, roomID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
