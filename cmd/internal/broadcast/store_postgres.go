package broadcast

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

// Message length limit (runes) for a recorded broadcast.
const maxTextChars = 4000

// PostgresStore is a ledger Store backed by PostgreSQL.
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
			return errors.New("broadcast: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("broadcast: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed ledger Store.
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
		return nil, errors.New("broadcast: nil pool")
	}
	return st, nil
}

// Record inserts a ledger entry for a run that is about to start.
func (s *PostgresStore) Record(ctx context.Context, in RecordInput) (Entry, error) {
	if s == nil || s.pool == nil {
		return Entry{}, errors.New("broadcast: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	text := strings.TrimSpace(in.Text)
	if in.RunID == "" || in.AdminID == 0 || text == "" || in.Total < 0 {
		return Entry{}, ErrInvalidInput
	}
	if len([]rune(text)) > maxTextChars {
		return Entry{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	broadcasts := pgIdent(s.schema, "broadcasts")

	e := Entry{
		RunID:     in.RunID,
		AdminID:   in.AdminID,
		Text:      text,
		Total:     in.Total,
		StartedAt: now,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+broadcasts+` (run_id, admin_id, message, total, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		in.RunID, in.AdminID, text, in.Total, now,
	).Scan(&e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("insert broadcast: %w", err)
	}
	return e, nil
}

// Finalize closes a ledger entry with the run's terminal counts.
func (s *PostgresStore) Finalize(ctx context.Context, runID string, sent, failed int, finishedAt time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("broadcast: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" || sent < 0 || failed < 0 {
		return ErrInvalidInput
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	broadcasts := pgIdent(s.schema, "broadcasts")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+broadcasts+`
		    SET sent = $2, failed = $3, finished_at = $4
		  WHERE run_id = $1 AND finished_at IS NULL AND $2 + $3 <= total`,
		runID, sent, failed, finishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: distinguish missing, already finalized, and count overflow.
	var finished bool
	var total int
	err = s.pool.QueryRow(ctx,
		`SELECT finished_at IS NOT NULL, total FROM `+broadcasts+` WHERE run_id = $1`,
		runID,
	).Scan(&finished, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if finished {
		return ErrFinalized
	}
	return ErrInvalidInput
}

// History returns the most recent runs, newest first, with the admin's
// display name resolved for the panel view.
func (s *PostgresStore) History(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("broadcast: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	broadcasts := pgIdent(s.schema, "broadcasts")
	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.run_id, b.admin_id,
		        coalesce(u.username, u.first_name, ''),
		        b.message, b.total, b.sent, b.failed, b.started_at, b.finished_at
		   FROM `+broadcasts+` b
		   LEFT JOIN `+users+` u ON u.id = b.admin_id
		  ORDER BY b.started_at DESC, b.id DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.AdminID, &e.AdminName,
			&e.Text, &e.Total, &e.Sent, &e.Failed, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
