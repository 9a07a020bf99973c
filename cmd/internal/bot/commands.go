package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"frost/cmd/identity"
	"frost/cmd/internal/exchange"
	"frost/cmd/internal/gateway"
	"frost/cmd/internal/rooms"
)

func (b *Bot) cmdStart(ctx context.Context, u identity.User, args string) ([]string, error) {
	// Deep-link payload: "/start invite_CODE" joins directly.
	if code, ok := strings.CutPrefix(args, "invite_"); ok {
		return b.joinByCode(ctx, u, code)
	}
	return []string{welcomeText(u)}, nil
}

func (b *Bot) cmdWishlist(ctx context.Context, u identity.User, from gateway.Profile, args string) ([]string, error) {
	if args == "" {
		b.setPending(from.ExternalID, pendingAction{kind: pendingWishlist})
		return []string{msgAskWishlist}, nil
	}
	return b.setWishlist(ctx, u, args)
}

func (b *Bot) setWishlist(ctx context.Context, u identity.User, text string) ([]string, error) {
	if err := b.users.SetWishlist(ctx, u.ID, text); err != nil {
		if identity.IsInvalidInput(err) {
			return []string{"That wishlist is too long, please shorten it."}, nil
		}
		return nil, err
	}
	return []string{"Wishlist saved. Your Secret Santa will see it."}, nil
}

func (b *Bot) cmdAddress(ctx context.Context, u identity.User, from gateway.Profile, args string) ([]string, error) {
	if args == "" {
		b.setPending(from.ExternalID, pendingAction{kind: pendingAddress})
		return []string{msgAskAddress}, nil
	}
	return b.setAddress(ctx, u, args)
}

func (b *Bot) setAddress(ctx context.Context, u identity.User, text string) ([]string, error) {
	if err := b.users.SetAddress(ctx, u.ID, text); err != nil {
		if identity.IsInvalidInput(err) {
			return []string{"That address is too long, please shorten it."}, nil
		}
		return nil, err
	}
	return []string{"Address saved. Only your Secret Santa will see it."}, nil
}

func (b *Bot) cmdCreateRoom(ctx context.Context, u identity.User, from gateway.Profile, args string) ([]string, error) {
	if args == "" {
		b.setPending(from.ExternalID, pendingAction{kind: pendingRoomName})
		return []string{msgAskRoomName}, nil
	}
	return b.createRoom(ctx, u, args)
}

func (b *Bot) createRoom(ctx context.Context, u identity.User, name string) ([]string, error) {
	room, err := b.rooms.CreateRoom(ctx, name, u.ID)
	if err != nil {
		if errors.Is(err, rooms.ErrInvalidInput) {
			return []string{"Please give the room a non-empty name."}, nil
		}
		return nil, err
	}
	return []string{roomCreatedText(room)}, nil
}

func (b *Bot) cmdJoin(ctx context.Context, u identity.User, args string) ([]string, error) {
	if args == "" {
		return []string{msgNeedCode}, nil
	}
	return b.joinByCode(ctx, u, args)
}

func (b *Bot) joinByCode(ctx context.Context, u identity.User, code string) ([]string, error) {
	room, count, err := b.rooms.JoinByCode(ctx, code, u.ID)
	switch {
	case err == nil:
		return []string{joinedText(room, count)}, nil
	case errors.Is(err, rooms.ErrNotFound):
		return []string{"I don't know an open room with that code."}, nil
	case errors.Is(err, rooms.ErrAlreadyMember):
		return []string{"You are already in that room."}, nil
	case errors.Is(err, rooms.ErrRoomFull):
		return []string{"That room is already full."}, nil
	case errors.Is(err, rooms.ErrExchangeStarted):
		return []string{"Names are already drawn in that room, it can't take new participants."}, nil
	case errors.Is(err, rooms.ErrInvalidInput):
		return []string{msgNeedCode}, nil
	default:
		return nil, err
	}
}

func (b *Bot) cmdMyRooms(ctx context.Context, u identity.User) ([]string, error) {
	list, err := b.rooms.RoomsOf(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []string{"You are not in any rooms yet. /create_room or /join CODE to get started."}, nil
	}
	lines := make([]string, 0, len(list)+1)
	lines = append(lines, "Your rooms:")
	for _, r := range list {
		lines = append(lines, roomLine(r))
	}
	return []string{strings.Join(lines, "\n")}, nil
}

func (b *Bot) cmdRoomInfo(ctx context.Context, u identity.User, args string) ([]string, error) {
	roomID, ok := parseID(args)
	if !ok {
		return []string{msgNeedRoomID}, nil
	}

	room, err := b.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return []string{"I don't know that room."}, nil
		}
		return nil, err
	}

	members, err := b.rooms.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !containsMember(members, u.ID) {
		// Room details, including the invite code, are for members only.
		return []string{"I don't know that room."}, nil
	}

	names := make([]string, 0, len(members))
	for _, m := range members {
		mu, err := b.users.GetByID(ctx, m.UserID)
		if err != nil {
			if identity.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		names = append(names, mu.DisplayName())
	}
	return []string{roomInfoText(room, names)}, nil
}

func (b *Bot) cmdLeaveRoom(ctx context.Context, u identity.User, args string) ([]string, error) {
	roomID, ok := parseID(args)
	if !ok {
		return []string{msgNeedRoomID}, nil
	}

	err := b.rooms.Leave(ctx, roomID, u.ID)
	switch {
	case err == nil:
		return []string{fmt.Sprintf("You left room %d.", roomID)}, nil
	case errors.Is(err, rooms.ErrOwner):
		return []string{"You own that room, so you can't leave it. Ask an administrator to close it instead."}, nil
	case errors.Is(err, rooms.ErrExchangeStarted):
		return []string{"Names are already drawn there, so nobody can leave now."}, nil
	case errors.Is(err, rooms.ErrNotFound):
		return []string{"You are not in that room."}, nil
	default:
		return nil, err
	}
}

func (b *Bot) cmdStartExchange(ctx context.Context, u identity.User, args string) ([]string, error) {
	roomID, ok := parseID(args)
	if !ok {
		return []string{msgNeedRoomID}, nil
	}

	pairs, err := b.exchange.Start(ctx, roomID, u.ID)
	switch {
	case err == nil:
	case errors.Is(err, exchange.ErrNotOwner):
		return []string{"Only the room owner can draw names."}, nil
	case errors.Is(err, exchange.ErrTooFewMembers):
		return []string{"The room needs at least two participants before names can be drawn."}, nil
	case errors.Is(err, exchange.ErrAlreadyStarted):
		return []string{"Names are already drawn in that room. Participants can check /results " + args + "."}, nil
	case errors.Is(err, exchange.ErrNotFound):
		return []string{"I don't know that room."}, nil
	default:
		return nil, err
	}

	room, err := b.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	notes, err := b.assignmentNotes(ctx, room.Name, pairs)
	if err != nil {
		return nil, err
	}

	reply := fmt.Sprintf("Names are drawn in %q! %d assignments are on their way.", room.Name, len(pairs))
	if err := b.runner.Go("assignments:"+strconv.FormatInt(roomID, 10), func() {
		b.exchange.NotifyAssignments(context.Background(), roomID, b.dispatcher, notes)
	}); err != nil {
		b.logger.Warn("assignment dispatch not queued", "room_id", roomID, "error", err)
		reply = fmt.Sprintf("Names are drawn in %q! Participants can check /results %d.", room.Name, roomID)
	}
	return []string{reply}, nil
}

// assignmentNotes prepares one personalized message per giver.
func (b *Bot) assignmentNotes(ctx context.Context, roomName string, pairs []exchange.Pairing) ([]exchange.Notification, error) {
	notes := make([]exchange.Notification, 0, len(pairs))
	for _, p := range pairs {
		giver, err := b.users.GetByID(ctx, p.GiverID)
		if err != nil {
			return nil, err
		}
		receiver, err := b.users.GetByID(ctx, p.ReceiverID)
		if err != nil {
			return nil, err
		}
		notes = append(notes, exchange.Notification{
			GiverUserID:     giver.ID,
			GiverExternalID: giver.ExternalID,
			Text:            assignmentText(roomName, receiver),
		})
	}
	return notes, nil
}

func (b *Bot) cmdResults(ctx context.Context, u identity.User, args string) ([]string, error) {
	roomID, ok := parseID(args)
	if !ok {
		return []string{msgNeedRoomID}, nil
	}

	receiverID, err := b.exchange.Results(ctx, roomID, u.ID)
	if err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			return []string{"No assignment for you there yet. The draw may not have happened."}, nil
		}
		return nil, err
	}

	receiver, err := b.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	return []string{resultsText(receiver)}, nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func containsMember(members []rooms.Member, userID int64) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
