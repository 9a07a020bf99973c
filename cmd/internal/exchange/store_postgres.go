package exchange

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

// PostgresStore is a Store backed by PostgreSQL. It shares the schema with
// the rooms store and serializes the draw against concurrent joins on the
// same per-room advisory lock.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
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
			return errors.New("exchange: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("exchange: invalid schema identifier")
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
		return nil, errors.New("exchange: nil pool")
	}
	return st, nil
}

// CreatePairings snapshots the room's members under the room's advisory
// lock, persists the generated assignment, and moves the room to
// exchange_started, all in one transaction.
func (s *PostgresStore) CreatePairings(ctx context.Context, roomID int64, now time.Time, gen Generator) ([]Pairing, error) {
	if s == nil || s.pool == nil {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, roomID); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	roomsTable := pgIdent(s.schema, "rooms")
	members := pgIdent(s.schema, "room_members")
	pairings := pgIdent(s.schema, "pairings")

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM `+roomsTable+` WHERE id = $1`,
		roomID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	switch status {
	case "open":
	case "exchange_started":
		return nil, ErrAlreadyStarted
	default:
		return nil, ErrNotFound
	}

	rows, err := tx.Query(ctx,
		`SELECT user_id FROM `+members+`
		  WHERE room_id = $1
		  ORDER BY joined_at ASC, id ASC`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	var memberIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		memberIDs = append(memberIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(memberIDs) < 2 {
		return nil, ErrTooFewMembers
	}

	pairs := gen(memberIDs)
	if len(pairs) != len(memberIDs) {
		return nil, fmt.Errorf("exchange: generator produced %d pairs for %d members", len(pairs), len(memberIDs))
	}

	out := make([]Pairing, 0, len(pairs))
	for _, p := range pairs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+pairings+` (room_id, giver_id, receiver_id, notified, created_at)
			 VALUES ($1, $2, $3, FALSE, $4)`,
			roomID, p.GiverID, p.ReceiverID, now,
		); err != nil {
			return nil, fmt.Errorf("insert pairing: %w", err)
		}
		out = append(out, Pairing{
			RoomID:     roomID,
			GiverID:    p.GiverID,
			ReceiverID: p.ReceiverID,
			CreatedAt:  now,
		})
	}

	tag, err := tx.Exec(ctx,
		`UPDATE `+roomsTable+` SET status = 'exchange_started' WHERE id = $1 AND status = 'open'`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyStarted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiverOf returns the receiver assigned to the giver in the room.
func (s *PostgresStore) ReceiverOf(ctx context.Context, roomID, giverID int64) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("exchange: nil store")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pairings := pgIdent(s.schema, "pairings")

	var receiverID int64
	err := s.pool.QueryRow(ctx,
		`SELECT receiver_id FROM `+pairings+` WHERE room_id = $1 AND giver_id = $2`,
		roomID, giverID,
	).Scan(&receiverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return receiverID, nil
}

// ListByRoom returns the room's assignment in insertion order.
func (s *PostgresStore) ListByRoom(ctx context.Context, roomID int64) ([]Pairing, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("exchange: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pairings := pgIdent(s.schema, "pairings")

	rows, err := s.pool.Query(ctx,
		`SELECT room_id, giver_id, receiver_id, notified, created_at
		   FROM `+pairings+`
		  WHERE room_id = $1
		  ORDER BY id ASC`,
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pairing
	for rows.Next() {
		var p Pairing
		if err := rows.Scan(&p.RoomID, &p.GiverID, &p.ReceiverID, &p.Notified, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotified records that the giver has received their assignment message.
func (s *PostgresStore) MarkNotified(ctx context.Context, roomID, giverID int64) error {
	if s == nil || s.pool == nil {
		return errors.New("exchange: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pairings := pgIdent(s.schema, "pairings")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pairings+` SET notified = TRUE WHERE room_id = $1 AND giver_id = $2`,
		roomID, giverID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
