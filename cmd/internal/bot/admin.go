package bot

import (
	"context"
	"errors"
	"time"

	"frost/cmd/identity"
	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/gateway"
	"frost/cmd/internal/rooms"
)

const (
	adminTopRooms     = 5
	adminHistoryLimit = 10
	broadcastMaxChars = 4000
)

func (b *Bot) cmdAdmin(ctx context.Context, from gateway.Profile) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}

	us, err := b.users.Stats(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	rs, err := b.rooms.Stats(ctx, adminTopRooms)
	if err != nil {
		return nil, err
	}
	return []string{adminPanelText(us, rs)}, nil
}

// cmdAdminBroadcast stages an announcement. Nothing is delivered until the
// admin sends /confirm; /cancel or a replacement /admin_broadcast discards it.
func (b *Bot) cmdAdminBroadcast(from gateway.Profile, args string) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}
	if args == "" {
		return []string{"Usage: /admin_broadcast TEXT"}, nil
	}
	if len([]rune(args)) > broadcastMaxChars {
		return []string{"That announcement is too long, please shorten it."}, nil
	}

	b.setPending(from.ExternalID, pendingAction{kind: pendingBroadcast, text: args})

	// Audience size is informational; the actual target list is snapshotted
	// at /confirm time.
	audience := 0
	if users, err := b.users.ListActive(context.Background()); err == nil {
		audience = len(users)
	}
	return []string{broadcastPreviewText(args, audience)}, nil
}

func (b *Bot) cmdConfirm(ctx context.Context, u identity.User, from gateway.Profile) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}
	text, ok := b.takeStagedBroadcast(from.ExternalID)
	if !ok {
		return []string{"Nothing is staged. Use /admin_broadcast TEXT first."}, nil
	}

	audience, err := b.users.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]broadcast.Target, len(audience))
	for i, t := range audience {
		targets[i] = broadcast.Target{UserID: t.ID, ExternalID: t.ExternalID}
	}

	runID := broadcast.NewRunID()
	if _, err := b.ledger.Record(ctx, broadcast.RecordInput{
		RunID:   runID,
		AdminID: u.ID,
		Text:    text,
		Total:   len(targets),
		Now:     time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	adminExternalID := from.ExternalID
	err = b.runner.Go("broadcast:"+runID, func() {
		b.runBroadcast(runID, text, targets, adminExternalID)
	})
	if err != nil {
		if finErr := b.ledger.Finalize(context.Background(), runID, 0, 0, time.Now().UTC()); finErr != nil {
			b.logger.Error("ledger finalize after queue refusal failed", "run_id", runID, "error", finErr)
		}
		if errors.Is(err, broadcast.ErrBusy) {
			return []string{"Another delivery run is in flight, try again in a moment."}, nil
		}
		return nil, err
	}
	return []string{"Delivering your announcement. I'll report back here."}, nil
}

// runBroadcast executes a confirmed announcement detached from the confirming
// request. Recipients the channel rejects are deactivated so later runs skip
// them.
func (b *Bot) runBroadcast(runID, text string, targets []broadcast.Target, adminExternalID int64) {
	ctx := context.Background()

	sum := b.dispatcher.Run(ctx, broadcast.Job{
		RunID:   runID,
		Text:    text,
		Targets: targets,
		OnFailed: func(ctx context.Context, tg broadcast.Target, err error) {
			if err := b.users.SetActive(ctx, tg.UserID, false); err != nil {
				b.logger.Warn("deactivate unreachable user failed", "user_id", tg.UserID, "error", err)
			}
		},
		OnProgress: func(p broadcast.Progress) {
			if p.Final {
				return
			}
			if err := b.sender.Send(ctx, adminExternalID, broadcastProgressText(p)); err != nil {
				b.logger.Warn("progress report failed", "run_id", runID, "error", err)
			}
		},
	})

	if err := b.ledger.Finalize(ctx, runID, sum.Sent, sum.Failed, time.Now().UTC()); err != nil {
		b.logger.Error("ledger finalize failed", "run_id", runID, "error", err)
	}
	if err := b.sender.Send(ctx, adminExternalID, broadcastSummaryText(sum)); err != nil {
		b.logger.Warn("summary report failed", "run_id", runID, "error", err)
	}
}

func (b *Bot) cmdCancel(from gateway.Profile) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}
	if _, ok := b.takeStagedBroadcast(from.ExternalID); !ok {
		return []string{"Nothing is staged."}, nil
	}
	return []string{"Announcement discarded."}, nil
}

func (b *Bot) cmdAdminHistory(ctx context.Context, from gateway.Profile) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}
	entries, err := b.ledger.History(ctx, adminHistoryLimit)
	if err != nil {
		return nil, err
	}
	return []string{historyText(entries)}, nil
}

func (b *Bot) cmdAdminCloseRoom(ctx context.Context, from gateway.Profile, args string) ([]string, error) {
	if !b.isAdmin(from.ExternalID) {
		return []string{msgNotAdmin}, nil
	}
	roomID, ok := parseID(args)
	if !ok {
		return []string{msgNeedRoomID}, nil
	}

	err := b.rooms.CloseRoom(ctx, roomID)
	switch {
	case err == nil:
		return []string{"Room closed."}, nil
	case errors.Is(err, rooms.ErrInvalidState):
		return []string{"That room is already closed."}, nil
	case errors.Is(err, rooms.ErrNotFound):
		return []string{"I don't know that room."}, nil
	default:
		return nil, err
	}
}
