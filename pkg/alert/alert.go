// Package alert delivers failure reports to the fixed operator chat. It is
// the terminal safety net: nothing in this package returns an error or
// panics, because there is no further tier to escalate to.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"qnabot/pkg/bus"
)

// SendTextFunc delivers one text message to one chat. Injecting the send
// function keeps alerting decoupled from the bot transport.
type SendTextFunc func(ctx context.Context, chatID string, text string, format bus.Format) error

// Report describes one failure worth the operator's attention.
type Report struct {
	// ChatID is the originating chat, when the failure happened after an
	// update was parsed. Empty otherwise.
	ChatID    string
	RequestID string
	// Summary is a one-line human-readable description.
	Summary string
	// Detail is the full diagnostic text (error chain, stack trace).
	Detail string
	// Replied records whether a reply was already attempted for this update,
	// guarding against a second apology to the same chat.
	Replied bool
}

const (
	alertHeader     = "🚨 **SYSTEM ALERT: BOT ENCOUNTERED AN ERROR!** 🚨"
	apologyMessage  = "Sorry, something went wrong on my side. Please try again in a moment."
	maxDetailLength = 3500 // Telegram caps messages at 4096 chars; leave room for the frame.
)

// Notifier sends operator alerts and best-effort user apologies.
type Notifier struct {
	operatorChatID string
	send           SendTextFunc
	log            *slog.Logger
}

func NewNotifier(operatorChatID string, send SendTextFunc, log *slog.Logger) (*Notifier, error) {
	if strings.TrimSpace(operatorChatID) == "" {
		return nil, errors.New("operator chat id is required")
	}
	if send == nil {
		return nil, errors.New("send function is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		operatorChatID: strings.TrimSpace(operatorChatID),
		send:           send,
		log:            log.With("component", "alert.notifier"),
	}, nil
}

// Notify delivers one operator alert. Delivery failures are logged and
// swallowed: alerting must never cascade into another failure.
func (n *Notifier) Notify(ctx context.Context, report Report) {
	if n == nil || n.send == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	n.log.Error("Reporting failure to operator",
		"request_id", report.RequestID,
		"chat_id", report.ChatID,
		"summary", report.Summary,
		"detail", report.Detail,
	)

	if err := n.send(ctx, n.operatorChatID, formatAlert(report), bus.FormatMarkdown); err != nil {
		n.log.Error("Failed to deliver operator alert", "request_id", report.RequestID, "error", err)
	}
}

// Handle is the global fallback for an unhandled failure: one operator alert
// plus a best-effort apology to the originating chat when it is known and no
// reply was already attempted.
func (n *Notifier) Handle(ctx context.Context, report Report) {
	if n == nil || n.send == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	n.Notify(ctx, report)

	if strings.TrimSpace(report.ChatID) == "" || report.Replied {
		return
	}

	if err := n.send(ctx, report.ChatID, apologyMessage, bus.FormatPlain); err != nil {
		n.log.Error("Failed to deliver user apology", "request_id", report.RequestID, "chat_id", report.ChatID, "error", err)
	}
}

func formatAlert(report Report) string {
	detail := strings.TrimSpace(report.Detail)
	if detail == "" {
		detail = strings.TrimSpace(report.Summary)
	}
	if detail == "" {
		detail = "unknown error"
	}

	// The detail is rendered inside a Markdown code span; stray backticks
	// would break out of it.
	detail = strings.ReplaceAll(detail, "`", "'")
	if len(detail) > maxDetailLength {
		// Back off to a rune boundary: a cut mid-rune yields invalid UTF-8,
		// which Telegram rejects.
		cut := maxDetailLength
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut] + "..."
	}

	var b strings.Builder
	b.WriteString(alertHeader)
	b.WriteString("\n\n**Error Details:**\n`")
	b.WriteString(detail)
	b.WriteString("`")

	return b.String()
}
