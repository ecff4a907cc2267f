// Package notify turns run events into short owner messages.
//
// Delivery is fire-and-forget: a failed notification is logged and dropped,
// never surfaced to the publication core.
package notify

import (
	"context"
	"fmt"
	"strings"

	"avtopost/internal/poster"
	logx "avtopost/pkg/logx"
)

// Mode filters which event classes reach the owner.
//
//   - post_only: publication outcomes and errors (default)
//   - all:       everything, including summaries and skip notices
//   - silent:    errors only
type Mode string

const (
	ModePostOnly Mode = "post_only"
	ModeAll      Mode = "all"
	ModeSilent   Mode = "silent"
)

// ParseMode validates a configured mode string. Empty means ModePostOnly.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModePostOnly, nil
	case ModePostOnly, ModeAll, ModeSilent:
		return m, nil
	default:
		return "", fmt.Errorf("unknown notify mode %q", s)
	}
}

// TextSender delivers a plain text message to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Service implements poster.Notifier over a Telegram owner chat.
type Service struct {
	sender  TextSender
	ownerID int64
	mode    Mode
	log     logx.Logger
}

func New(sender TextSender, ownerID int64, mode Mode, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if mode == "" {
		mode = ModePostOnly
	}
	return &Service{sender: sender, ownerID: ownerID, mode: mode, log: log}
}

// Emit renders and sends one event, subject to the configured mode.
func (s *Service) Emit(ctx context.Context, ev poster.Event) {
	if s == nil || s.sender == nil || s.ownerID == 0 {
		return
	}
	text, class := render(ev)
	if text == "" || !s.wants(class) {
		return
	}
	if err := s.sender.SendText(ctx, s.ownerID, text); err != nil {
		s.log.Warn("owner notification failed", logx.String("kind", string(ev.Kind)), logx.Err(err))
	}
}

type class int

const (
	classPost class = iota
	classReport
	classError
)

func (s *Service) wants(c class) bool {
	switch s.mode {
	case ModeSilent:
		return c == classError
	case ModePostOnly:
		return c == classPost || c == classError
	default:
		return true
	}
}

func render(ev poster.Event) (string, class) {
	switch ev.Kind {
	case poster.EventPublished:
		when := ""
		if ev.Item != nil {
			when = ev.Item.Date + " " + ev.Item.Time
		}
		return fmt.Sprintf("✅ Published: %s (%.0f min late)", when, ev.Lateness.Minutes()), classPost
	case poster.EventPublishFailed:
		when := ""
		if ev.Item != nil {
			when = ev.Item.Date + " " + ev.Item.Time
		}
		return fmt.Sprintf("❌ Publish failed: %s\n%v", when, ev.Err), classError
	case poster.EventRunSkippedCooldown:
		return "⏸ Run skipped: publication cooldown active", classReport
	case poster.EventDailySummary:
		return fmt.Sprintf("📅 Daily summary (%s)\nPlanned today: %d\nActually published: %d",
			ev.Date, ev.Planned, ev.Published), classReport
	case poster.EventLedgerDegraded:
		return "⚠️ Publication history was unreadable; starting with an empty ledger", classError
	case poster.EventFatal:
		return fmt.Sprintf("🚨 Run crashed: %v", ev.Err), classError
	default:
		return "", classReport
	}
}
