package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"frost/cmd/internal/rooms"
)

// Integration tests are opt-in and require FROST_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreatePairings_DrawOnce(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyExchangeSchema(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	roomStore := mustNewRoomStore(t, pool, schema)
	s := mustNewExchangeStore(t, pool, schema)

	now := time.Now().UTC()
	room, err := roomStore.Create(ctx, rooms.CreateRecord{
		Name: "Draw", OwnerID: 1, InviteCode: "DRAWCODE", MaxParticipants: 10, Now: now,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for i, uid := range []int64{2, 3, 4} {
		if _, err := roomStore.Join(ctx, room.ID, uid, now.Add(time.Duration(i+1)*time.Second)); err != nil {
			t.Fatalf("join %d: %v", uid, err)
		}
	}

	gen := func(ids []int64) []Pair { return GeneratePairs(ids, nil) }

	ps, err := s.CreatePairings(ctx, room.ID, now, gen)
	if err != nil {
		t.Fatalf("create pairings: %v", err)
	}
	if len(ps) != 4 {
		t.Fatalf("expected 4 pairings, got %d", len(ps))
	}

	got, err := roomStore.FindByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if got.Status != rooms.StatusExchangeStarted {
		t.Fatalf("room status = %q, want exchange_started", got.Status)
	}

	if _, err := s.CreatePairings(ctx, room.ID, now, gen); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second draw: got %v, want ErrAlreadyStarted", err)
	}

	// Join after the draw is rejected by the rooms store.
	if _, err := roomStore.Join(ctx, room.ID, 9, now.Add(time.Minute)); !errors.Is(err, rooms.ErrExchangeStarted) {
		t.Fatalf("join after draw: got %v, want ErrExchangeStarted", err)
	}
}

func TestPostgresStore_ReceiverOfAndMarkNotified(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyExchangeSchema(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	roomStore := mustNewRoomStore(t, pool, schema)
	s := mustNewExchangeStore(t, pool, schema)

	now := time.Now().UTC()
	room, err := roomStore.Create(ctx, rooms.CreateRecord{
		Name: "Recv", OwnerID: 1, InviteCode: "RECVCODE", MaxParticipants: 10, Now: now,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := roomStore.Join(ctx, room.ID, 2, now.Add(time.Second)); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Identity permutation over join order [1 2]: 1->2, 2->1.
	ps, err := s.CreatePairings(ctx, room.ID, now, func(ids []int64) []Pair {
		return GeneratePairs(ids, func(n int, swap func(i, j int)) {})
	})
	if err != nil {
		t.Fatalf("create pairings: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("expected 2 pairings, got %d", len(ps))
	}

	recv, err := s.ReceiverOf(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("receiver of 1: %v", err)
	}
	if recv != 2 {
		t.Fatalf("receiver of 1 = %d, want 2", recv)
	}
	if _, err := s.ReceiverOf(ctx, room.ID, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown giver: got %v, want ErrNotFound", err)
	}

	if err := s.MarkNotified(ctx, room.ID, 1); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	list, err := s.ListByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range list {
		if p.GiverID == 1 && !p.Notified {
			t.Fatalf("giver 1 not marked notified: %+v", list)
		}
		if p.GiverID == 2 && p.Notified {
			t.Fatalf("giver 2 unexpectedly notified: %+v", list)
		}
	}
}

// ---- helpers ----

func mustNewExchangeStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new exchange store: %v", err)
	}
	return s
}

func mustNewRoomStore(t *testing.T, pool *pgxpool.Pool, schema string) *rooms.PostgresStore {
	t.Helper()
	s, err := rooms.NewPostgresStore(pool, rooms.WithSchema(schema))
	if err != nil {
		t.Fatalf("new rooms store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("FROST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: FROST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse FROST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (FROST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "frost_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyExchangeSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	roomsTable := pgIdent(schema, "rooms")
	members := pgIdent(schema, "room_members")
	pairings := pgIdent(schema, "pairings")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  name TEXT NOT NULL,
  owner_id BIGINT NOT NULL,
  invite_code TEXT NOT NULL,
  max_participants INT NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT uq_rooms_invite_code UNIQUE (invite_code),
  CONSTRAINT chk_rooms_status CHECK (status IN ('open', 'exchange_started', 'closed'))
);

CREATE TABLE IF NOT EXISTS %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  room_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL,
  joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT uq_room_members_room_user UNIQUE (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  room_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  giver_id BIGINT NOT NULL,
  receiver_id BIGINT NOT NULL,
  notified BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT uq_pairings_room_giver UNIQUE (room_id, giver_id),
  CONSTRAINT uq_pairings_room_receiver UNIQUE (room_id, receiver_id),
  CONSTRAINT chk_pairings_no_self CHECK (giver_id <> receiver_id)
);
`, roomsTable, members, roomsTable, pairings, roomsTable)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
