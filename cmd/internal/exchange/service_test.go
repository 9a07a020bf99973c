package exchange

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/rooms"
)

type fixture struct {
	roomSvc *rooms.Service
	svc     *Service
	store   *InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	roomStore := rooms.NewInMemoryStore()
	roomSvc, err := rooms.NewService(roomStore)
	if err != nil {
		t.Fatalf("rooms.NewService: %v", err)
	}
	store := NewInMemoryStore(roomStore)
	svc, err := NewService(store, roomStore, append([]Option{
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{roomSvc: roomSvc, svc: svc, store: store}
}

func (f *fixture) room(t *testing.T, ownerID int64, memberIDs ...int64) rooms.Room {
	t.Helper()

	ctx := context.Background()
	room, err := f.roomSvc.CreateRoom(ctx, "Party", ownerID)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	for _, id := range memberIDs {
		if _, _, err := f.roomSvc.JoinByCode(ctx, room.InviteCode, id); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}
	return room
}

func TestServiceStartDrawsAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	room := f.room(t, 1, 2, 3, 4)

	ps, err := f.svc.Start(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(ps) != 4 {
		t.Fatalf("expected 4 pairings, got %d", len(ps))
	}
	for _, p := range ps {
		if p.GiverID == p.ReceiverID {
			t.Errorf("self-assignment: %+v", p)
		}
		if p.Notified {
			t.Errorf("fresh pairing marked notified: %+v", p)
		}
	}

	got, err := f.roomSvc.FindByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != rooms.StatusExchangeStarted {
		t.Errorf("room status = %q, want exchange_started", got.Status)
	}
}

func TestServiceStartOnlyOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	room := f.room(t, 1, 2, 3)

	if _, err := f.svc.Start(ctx, room.ID, 2); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner start: got %v, want ErrNotOwner", err)
	}
	if _, err := f.svc.Start(ctx, room.ID+999, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown room: got %v, want ErrNotFound", err)
	}
}

func TestServiceStartTooFewMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	room := f.room(t, 1) // owner only

	if _, err := f.svc.Start(ctx, room.ID, 1); !errors.Is(err, ErrTooFewMembers) {
		t.Fatalf("got %v, want ErrTooFewMembers", err)
	}
}

func TestServiceStartIsOneShot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	room := f.room(t, 1, 2, 3)

	first, err := f.svc.Start(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.svc.Start(ctx, room.ID, 1); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start: got %v, want ErrAlreadyStarted", err)
	}

	// The original assignment stands.
	kept, err := f.svc.ListByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListByRoom: %v", err)
	}
	if len(kept) != len(first) {
		t.Fatalf("assignment changed: %d vs %d pairings", len(kept), len(first))
	}
	for i := range first {
		if kept[i].GiverID != first[i].GiverID || kept[i].ReceiverID != first[i].ReceiverID {
			t.Fatalf("assignment changed at %d: %+v vs %+v", i, kept[i], first[i])
		}
	}
}

func TestServiceResults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, WithShuffler(fixedShuffler([]int{0, 1, 2})))
	room := f.room(t, 1, 2, 3)

	if _, err := f.svc.Results(ctx, room.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("results before draw: got %v, want ErrNotFound", err)
	}

	if _, err := f.svc.Start(ctx, room.ID, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Identity permutation over join order [1 2 3]: 1->2, 2->3, 3->1.
	cases := map[int64]int64{1: 2, 2: 3, 3: 1}
	for giver, want := range cases {
		got, err := f.svc.Results(ctx, room.ID, giver)
		if err != nil {
			t.Fatalf("Results(%d): %v", giver, err)
		}
		if got != want {
			t.Errorf("Results(%d) = %d, want %d", giver, got, want)
		}
	}

	if _, err := f.svc.Results(ctx, room.ID, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-member results: got %v, want ErrNotFound", err)
	}
}

// flakySender fails for configured external ids.
type flakySender struct {
	failFor map[int64]bool
	sent    map[int64]string
}

func (f *flakySender) Send(ctx context.Context, externalID int64, text string) error {
	if f.failFor[externalID] {
		return errors.New("unreachable")
	}
	if f.sent == nil {
		f.sent = make(map[int64]string)
	}
	f.sent[externalID] = text
	return nil
}

func TestServiceNotifyAssignments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, WithShuffler(fixedShuffler([]int{0, 1, 2})))
	room := f.room(t, 1, 2, 3)

	if _, err := f.svc.Start(ctx, room.ID, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sender := &flakySender{failFor: map[int64]bool{1002: true}}
	d, err := broadcast.NewDispatcher(sender, broadcast.WithDelay(0))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	sum := f.svc.NotifyAssignments(ctx, room.ID, d, []Notification{
		{GiverUserID: 1, GiverExternalID: 1001, Text: "you give to B"},
		{GiverUserID: 2, GiverExternalID: 1002, Text: "you give to C"},
		{GiverUserID: 3, GiverExternalID: 1003, Text: "you give to A"},
	})
	if sum.Sent != 2 || sum.Failed != 1 || sum.Total != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sender.sent[1001] != "you give to B" || sender.sent[1003] != "you give to A" {
		t.Fatalf("personalized texts not delivered: %+v", sender.sent)
	}

	ps, err := f.svc.ListByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("ListByRoom: %v", err)
	}
	notified := make(map[int64]bool)
	for _, p := range ps {
		notified[p.GiverID] = p.Notified
	}
	if !notified[1] || notified[2] || !notified[3] {
		t.Fatalf("unexpected notified flags: %+v", notified)
	}
}
