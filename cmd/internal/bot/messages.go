package bot

import (
	"fmt"
	"strings"

	"frost/cmd/identity"
	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/rooms"
)

const (
	msgUnknownCommand = "Unknown command. Send /help for the list of commands."
	msgHint           = "Send /help to see what I can do."
	msgNotAdmin       = "This command is for administrators only."

	msgAskWishlist = "Send me your wishlist as one message. Your Secret Santa will see it."
	msgAskAddress  = "Send me your delivery address as one message. Only your Secret Santa will see it."
	msgAskRoomName = "What should the room be called? Send me the name."

	msgNeedRoomID = "Please give me a room number, for example: /room 12"
	msgNeedCode   = "Please give me an invite code, for example: /join FROSTY26"
)

func welcomeText(u identity.User) string {
	return fmt.Sprintf(
		"Ho ho ho, %s! I run Secret Santa exchanges.\n\n"+
			"Create a room with /create_room, or join one with /join CODE.\n"+
			"Fill in /wishlist and /address so your Santa knows what to bring.\n"+
			"Send /help for everything else.",
		u.DisplayName(),
	)
}

func helpText(admin bool) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/profile - your profile\n")
	b.WriteString("/wishlist - set your wishlist\n")
	b.WriteString("/address - set your delivery address\n")
	b.WriteString("/create_room NAME - create a room\n")
	b.WriteString("/join CODE - join a room by invite code\n")
	b.WriteString("/my_rooms - rooms you are in\n")
	b.WriteString("/room N - room details\n")
	b.WriteString("/leave_room N - leave a room\n")
	b.WriteString("/start_exchange N - draw names (owner only)\n")
	b.WriteString("/results N - who you give to\n")
	if admin {
		b.WriteString("\nAdmin:\n")
		b.WriteString("/admin - stats panel\n")
		b.WriteString("/admin_broadcast TEXT - stage an announcement\n")
		b.WriteString("/confirm, /cancel - resolve a staged announcement\n")
		b.WriteString("/admin_history - recent announcements\n")
		b.WriteString("/admin_close_room N - close a room\n")
	}
	return b.String()
}

func profileText(u identity.User) string {
	wishlist := u.Wishlist
	if wishlist == "" {
		wishlist = "(not set, use /wishlist)"
	}
	address := u.Address
	if address == "" {
		address = "(not set, use /address)"
	}
	return fmt.Sprintf("Your profile:\nName: %s\nWishlist: %s\nAddress: %s",
		u.DisplayName(), wishlist, address)
}

func roomCreatedText(r rooms.Room) string {
	return fmt.Sprintf(
		"Room %q created (number %d).\n"+
			"Invite code: %s\n"+
			"Share it, or send friends this start command: /start invite_%s",
		r.Name, r.ID, r.InviteCode, r.InviteCode,
	)
}

func joinedText(r rooms.Room, count int) string {
	return fmt.Sprintf("You joined %q (room %d). %d participant(s) so far.", r.Name, r.ID, count)
}

func roomLine(r rooms.Room) string {
	return fmt.Sprintf("%d: %q [%s]", r.ID, r.Name, statusLabel(r.Status))
}

func statusLabel(s rooms.Status) string {
	switch s {
	case rooms.StatusOpen:
		return "open"
	case rooms.StatusExchangeStarted:
		return "names drawn"
	case rooms.StatusClosed:
		return "closed"
	default:
		return string(s)
	}
}

func roomInfoText(r rooms.Room, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room %d: %q\nStatus: %s\nInvite code: %s\nParticipants (%d/%d):\n",
		r.ID, r.Name, statusLabel(r.Status), r.InviteCode, len(names), r.MaxParticipants)
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func assignmentText(roomName string, receiver identity.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Names are drawn in %q!\nYou are the Secret Santa for: %s\n", roomName, receiver.DisplayName())
	if receiver.Wishlist != "" {
		fmt.Fprintf(&b, "Wishlist: %s\n", receiver.Wishlist)
	}
	if receiver.Address != "" {
		fmt.Fprintf(&b, "Deliver to: %s\n", receiver.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

func resultsText(receiver identity.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You give a gift to: %s\n", receiver.DisplayName())
	if receiver.Wishlist != "" {
		fmt.Fprintf(&b, "Wishlist: %s\n", receiver.Wishlist)
	}
	if receiver.Address != "" {
		fmt.Fprintf(&b, "Deliver to: %s\n", receiver.Address)
	}
	return strings.TrimRight(b.String(), "\n")
}

func adminPanelText(us identity.Stats, rs rooms.RoomStats) string {
	var b strings.Builder
	b.WriteString("Admin panel\n\nUsers:\n")
	fmt.Fprintf(&b, "- total: %d\n- active: %d\n- new last 7 days: %d\n", us.Total, us.Active, us.NewLast7)
	b.WriteString("\nRooms:\n")
	fmt.Fprintf(&b, "- total: %d\n- active: %d\n- names drawn: %d\n", rs.Total, rs.Active, rs.ExchangesStarted)
	if len(rs.Top) > 0 {
		b.WriteString("\nBiggest rooms:\n")
		for _, top := range rs.Top {
			fmt.Fprintf(&b, "- %q (%d): %d participant(s)\n", top.Room.Name, top.Room.ID, top.Members)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func broadcastPreviewText(text string, audience int) string {
	return fmt.Sprintf(
		"Announcement staged for %d active user(s):\n\n%s\n\nSend /confirm to deliver it, or /cancel.",
		audience, text,
	)
}

func broadcastProgressText(p broadcast.Progress) string {
	return fmt.Sprintf("Delivering... %d of %d sent (%d failed).", p.Sent, p.Total, p.Failed)
}

func broadcastSummaryText(sum broadcast.Summary) string {
	return fmt.Sprintf("Announcement delivered: %d sent, %d failed, %d targeted.", sum.Sent, sum.Failed, sum.Total)
}

func historyText(entries []broadcast.Entry) string {
	if len(entries) == 0 {
		return "No announcements yet."
	}
	var b strings.Builder
	b.WriteString("Recent announcements:\n")
	for _, e := range entries {
		admin := e.AdminName
		if admin == "" {
			admin = fmt.Sprintf("user %d", e.AdminID)
		}
		state := "in flight"
		if e.FinishedAt != nil {
			state = fmt.Sprintf("%d/%d sent", e.Sent, e.Total)
		}
		fmt.Fprintf(&b, "- %s by %s (%s): %s\n",
			e.StartedAt.Format("2006-01-02 15:04"), admin, state, truncate(e.Text, 60))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
