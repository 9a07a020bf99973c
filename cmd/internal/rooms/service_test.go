package rooms

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mustService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestServiceCreateRoomEnrollsOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	room, err := svc.CreateRoom(ctx, "  Office Party 2026  ", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.Name != "Office Party 2026" {
		t.Errorf("expected trimmed name, got %q", room.Name)
	}
	if room.Status != StatusOpen {
		t.Errorf("expected new room open, got %q", room.Status)
	}
	if len(room.InviteCode) != defaultCodeLength {
		t.Errorf("expected %d-char invite code, got %q", defaultCodeLength, room.InviteCode)
	}

	n, err := svc.Count(ctx, room.ID)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected owner enrolled, count = %d", n)
	}
}

func TestServiceCreateRoomRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	if _, err := svc.CreateRoom(ctx, "   ", 101); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.CreateRoom(ctx, "Party", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero owner: got %v, want ErrInvalidInput", err)
	}
}

func TestServiceCreateRoomTruncatesLongName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	long := make([]rune, maxRoomNameChars+20)
	for i := range long {
		long[i] = 'x'
	}
	room, err := svc.CreateRoom(ctx, string(long), 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if got := len([]rune(room.Name)); got != maxRoomNameChars {
		t.Errorf("expected name truncated to %d runes, got %d", maxRoomNameChars, got)
	}
}

func TestServiceJoinByCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	// Lowercase and padded input resolves to the same room.
	joined, n, err := svc.JoinByCode(ctx, "  "+strings.ToLower(room.InviteCode)+"  ", 202)
	if err != nil {
		t.Fatalf("JoinByCode: %v", err)
	}
	if joined.ID != room.ID {
		t.Errorf("joined room %d, want %d", joined.ID, room.ID)
	}
	if n != 2 {
		t.Errorf("expected count 2 after join, got %d", n)
	}

	if _, _, err := svc.JoinByCode(ctx, "ZZZZZZZZ", 202); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown code: got %v, want ErrNotFound", err)
	}
}

func TestServiceJoinTwiceIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("second join: got %v, want ErrAlreadyMember", err)
	}

	n, err := svc.Count(ctx, room.ID)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count unchanged at 2, got %d", n)
	}
}

func TestServiceJoinAfterExchangeStarted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	svc := mustService(t, store)

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.Transition(ctx, room.ID, StatusOpen, StatusExchangeStarted); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	// Capacity is irrelevant once the exchange has started.
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 303); !errors.Is(err, ErrExchangeStarted) {
		t.Fatalf("join after start: got %v, want ErrExchangeStarted", err)
	}
}

func TestServiceJoinFullRoom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore(), WithMaxParticipants(2))

	room, err := svc.CreateRoom(ctx, "Tiny", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); err != nil {
		t.Fatalf("second member: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 303); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third member: got %v, want ErrRoomFull", err)
	}
}

func TestServiceLeave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	svc := mustService(t, store)

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := svc.Leave(ctx, room.ID, 101); !errors.Is(err, ErrOwner) {
		t.Errorf("owner leave: got %v, want ErrOwner", err)
	}

	if err := svc.Leave(ctx, room.ID, 202); err != nil {
		t.Fatalf("member leave: %v", err)
	}
	n, err := svc.Count(ctx, room.ID)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected count 1 after leave, got %d", n)
	}

	if err := svc.Leave(ctx, room.ID, 202); !errors.Is(err, ErrNotFound) {
		t.Errorf("leave twice: got %v, want ErrNotFound", err)
	}
}

func TestServiceLeaveAfterExchangeStarted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	svc := mustService(t, store)

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.Transition(ctx, room.ID, StatusOpen, StatusExchangeStarted); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if err := svc.Leave(ctx, room.ID, 202); !errors.Is(err, ErrExchangeStarted) {
		t.Fatalf("leave after start: got %v, want ErrExchangeStarted", err)
	}
}

func TestServiceCloseRoom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := mustService(t, NewInMemoryStore())

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := svc.CloseRoom(ctx, room.ID); err != nil {
		t.Fatalf("CloseRoom: %v", err)
	}
	if err := svc.CloseRoom(ctx, room.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("close twice: got %v, want ErrInvalidState", err)
	}

	// Closed rooms are not joinable via invite code.
	if _, _, err := svc.JoinByCode(ctx, room.InviteCode, 202); !errors.Is(err, ErrNotFound) {
		t.Errorf("join closed room: got %v, want ErrNotFound", err)
	}
}

func TestServiceRoomsOf(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	svc := mustService(t, store)

	owned, err := svc.CreateRoom(ctx, "Mine", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	other, err := svc.CreateRoom(ctx, "Theirs", 999)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, other.InviteCode, 101); err != nil {
		t.Fatalf("join: %v", err)
	}

	rs, err := svc.RoomsOf(ctx, 101)
	if err != nil {
		t.Fatalf("RoomsOf: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rs))
	}
	if rs[0].ID != owned.ID {
		t.Errorf("expected owned room first, got %d", rs[0].ID)
	}
	if rs[1].ID != other.ID {
		t.Errorf("expected joined room second, got %d", rs[1].ID)
	}
}

func TestServiceStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewInMemoryStore()
	svc := mustService(t, store)

	a, err := svc.CreateRoom(ctx, "A", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	b, err := svc.CreateRoom(ctx, "B", 102)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, b.InviteCode, 201); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := store.Transition(ctx, a.ID, StatusOpen, StatusExchangeStarted); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	st, err := svc.Stats(ctx, 5)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 2 || st.Active != 2 || st.ExchangesStarted != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if len(st.Top) == 0 || st.Top[0].Room.ID != b.ID || st.Top[0].Members != 2 {
		t.Errorf("expected room B on top with 2 members, got %+v", st.Top)
	}
}

// codeTakenStore forces invite-code collisions a fixed number of times so the
// allocation retry loop is observable.
type codeTakenStore struct {
	Store
	rejections int
	attempts   int
}

func (s *codeTakenStore) Create(ctx context.Context, in CreateRecord) (Room, error) {
	s.attempts++
	if s.attempts <= s.rejections {
		return Room{}, ErrCodeTaken
	}
	return s.Store.Create(ctx, in)
}

func TestServiceCreateRoomRetriesOnCodeCollision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &codeTakenStore{Store: NewInMemoryStore(), rejections: 2}
	svc := mustService(t, store)

	room, err := svc.CreateRoom(ctx, "Party", 101)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID == 0 {
		t.Fatalf("expected a persisted room after retries")
	}
	if store.attempts != 3 {
		t.Errorf("expected 3 create attempts, got %d", store.attempts)
	}
}

func TestServiceCreateRoomExhaustsCodeAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &codeTakenStore{Store: NewInMemoryStore(), rejections: 100}
	svc := mustService(t, store)

	_, err := svc.CreateRoom(ctx, "Party", 101)
	if err == nil {
		t.Fatalf("expected allocation failure")
	}
	if !errors.Is(err, ErrCodeTaken) {
		t.Errorf("expected wrapped ErrCodeTaken, got %v", err)
	}
	if store.attempts != defaultCodeAttempts {
		t.Errorf("expected %d attempts, got %d", defaultCodeAttempts, store.attempts)
	}
}
