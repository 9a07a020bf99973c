// Package bot implements the participant-facing command surface: command
// parsing, profile prompts, room management, the exchange lifecycle, and the
// admin panel. It is transport-agnostic: the gateway feeds it inbound text
// and it returns replies.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"frost/cmd/identity"
	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/exchange"
	"frost/cmd/internal/gateway"
	"frost/cmd/internal/rooms"
)

// pendingKind marks what the participant's next free-form message means.
type pendingKind uint8

const (
	pendingNone pendingKind = iota
	pendingWishlist
	pendingAddress
	pendingRoomName
	pendingBroadcast
)

type pendingAction struct {
	kind pendingKind
	text string // staged broadcast text
}

// Bot routes participant messages to the domain services.
type Bot struct {
	users      identity.Store
	rooms      *rooms.Service
	exchange   *exchange.Service
	ledger     broadcast.Store
	dispatcher *broadcast.Dispatcher
	runner     *broadcast.Runner
	sender     broadcast.Sender

	admins map[int64]bool
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int64]pendingAction
}

// Config wires the Bot's collaborators.
type Config struct {
	Users      identity.Store
	Rooms      *rooms.Service
	Exchange   *exchange.Service
	Ledger     broadcast.Store
	Dispatcher *broadcast.Dispatcher
	Runner     *broadcast.Runner
	Sender     broadcast.Sender

	// AdminIDs is the external-id allow-list for the admin panel.
	AdminIDs []int64

	Logger *slog.Logger
}

// New constructs a Bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Users == nil || cfg.Rooms == nil || cfg.Exchange == nil ||
		cfg.Ledger == nil || cfg.Dispatcher == nil || cfg.Runner == nil || cfg.Sender == nil {
		return nil, errors.New("bot: missing collaborator")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		if id != 0 {
			admins[id] = true
		}
	}

	return &Bot{
		users:      cfg.Users,
		rooms:      cfg.Rooms,
		exchange:   cfg.Exchange,
		ledger:     cfg.Ledger,
		dispatcher: cfg.Dispatcher,
		runner:     cfg.Runner,
		sender:     cfg.Sender,
		admins:     admins,
		logger:     cfg.Logger,
		pending:    make(map[int64]pendingAction),
	}, nil
}

// HandleMessage registers the participant on any contact, then routes the
// message: commands dispatch directly, free-form text resolves whatever
// prompt is pending.
func (b *Bot) HandleMessage(ctx context.Context, from gateway.Profile, text string) ([]string, error) {
	u, err := b.users.Upsert(ctx, identity.UpsertInput{
		ExternalID: from.ExternalID,
		Username:   optional(from.Username),
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		// The participant is reachable again: undo the delivery-failure
		// deactivation.
		if err := b.users.SetActive(ctx, u.ID, true); err != nil {
			return nil, err
		}
		u.IsActive = true
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if strings.HasPrefix(text, "/") {
		// A command supersedes any pending prompt except the staged
		// broadcast, which /confirm and /cancel resolve explicitly.
		b.clearPendingPrompt(from.ExternalID)
		return b.handleCommand(ctx, u, from, text)
	}
	return b.handlePlainText(ctx, u, from, text)
}

func (b *Bot) handleCommand(ctx context.Context, u identity.User, from gateway.Profile, text string) ([]string, error) {
	cmd, args := splitCommand(text)

	switch cmd {
	case "/start":
		return b.cmdStart(ctx, u, args)
	case "/help":
		return []string{helpText(b.isAdmin(from.ExternalID))}, nil
	case "/profile":
		return []string{profileText(u)}, nil
	case "/wishlist":
		return b.cmdWishlist(ctx, u, from, args)
	case "/address":
		return b.cmdAddress(ctx, u, from, args)
	case "/create_room":
		return b.cmdCreateRoom(ctx, u, from, args)
	case "/join":
		return b.cmdJoin(ctx, u, args)
	case "/my_rooms":
		return b.cmdMyRooms(ctx, u)
	case "/room":
		return b.cmdRoomInfo(ctx, u, args)
	case "/leave_room":
		return b.cmdLeaveRoom(ctx, u, args)
	case "/start_exchange":
		return b.cmdStartExchange(ctx, u, args)
	case "/results":
		return b.cmdResults(ctx, u, args)
	case "/admin":
		return b.cmdAdmin(ctx, from)
	case "/admin_broadcast":
		return b.cmdAdminBroadcast(from, args)
	case "/confirm":
		return b.cmdConfirm(ctx, u, from)
	case "/cancel":
		return b.cmdCancel(from)
	case "/admin_history":
		return b.cmdAdminHistory(ctx, from)
	case "/admin_close_room":
		return b.cmdAdminCloseRoom(ctx, from, args)
	default:
		return []string{msgUnknownCommand}, nil
	}
}

func (b *Bot) handlePlainText(ctx context.Context, u identity.User, from gateway.Profile, text string) ([]string, error) {
	switch b.takePendingPrompt(from.ExternalID) {
	case pendingWishlist:
		return b.setWishlist(ctx, u, text)
	case pendingAddress:
		return b.setAddress(ctx, u, text)
	case pendingRoomName:
		return b.createRoom(ctx, u, text)
	default:
		return []string{msgHint}, nil
	}
}

// ---- pending-state helpers ----

func (b *Bot) setPending(externalID int64, p pendingAction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[externalID] = p
}

// takePendingPrompt consumes a pending input prompt. A staged broadcast is
// left in place: it is only resolved by /confirm or /cancel.
func (b *Bot) takePendingPrompt(externalID int64) pendingKind {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[externalID]
	if !ok || p.kind == pendingBroadcast {
		return pendingNone
	}
	delete(b.pending, externalID)
	return p.kind
}

func (b *Bot) clearPendingPrompt(externalID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pending[externalID]; ok && p.kind != pendingBroadcast {
		delete(b.pending, externalID)
	}
}

func (b *Bot) takeStagedBroadcast(externalID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[externalID]
	if !ok || p.kind != pendingBroadcast {
		return "", false
	}
	delete(b.pending, externalID)
	return p.text, true
}

func (b *Bot) isAdmin(externalID int64) bool {
	return b.admins[externalID]
}

// ---- parsing ----

func splitCommand(text string) (cmd, args string) {
	fields := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return cmd, args
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
