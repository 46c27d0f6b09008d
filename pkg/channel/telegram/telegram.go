package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"qnabot/pkg/alert"
	"qnabot/pkg/bus"
	"qnabot/pkg/channel"
	"qnabot/pkg/config"
	"qnabot/pkg/reply"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// textSender delivers one outbound text to one chat. *Sender implements it.
type textSender interface {
	Send(ctx context.Context, chatID string, text string, format bus.Format) error
}

// operatorNotifier escalates failures to the operator chat. *alert.Notifier
// implements it.
type operatorNotifier interface {
	Notify(ctx context.Context, report alert.Report)
	Handle(ctx context.Context, report alert.Report)
}

// chatActionSender is the slice of the bot API the typing indicator needs.
type chatActionSender interface {
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram long-polling updates into inbound/outbound bus
// messages. One update is processed at a time; a failure in one update never
// takes the polling loop down.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(cfg.OperatorChatID) == "" {
		return nil, errors.New("telegram operator chat id is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages through the shared
// channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	sender, err := NewSender(bot, a.log)
	if err != nil {
		return fmt.Errorf("initialize telegram sender: %w", err)
	}

	notifier, err := alert.NewNotifier(a.cfg.OperatorChatID, sender.Send, a.log)
	if err != nil {
		return fmt.Errorf("initialize operator notifier: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			a.processUpdate(ctx, bot, sender, notifier, handler, update)
		}
	}
}

// processUpdate handles one update end to end: filter, handle, dispatch,
// escalate. Panics are recovered here so the polling loop always survives.
func (a *Adapter) processUpdate(ctx context.Context, bot chatActionSender, sender textSender, notifier operatorNotifier, handler channel.Handler, update telego.Update) {
	requestID := uuid.NewString()
	chatID := ""
	replied := false

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Panic while processing update", "request_id", requestID, "chat_id", chatID, "panic", r)
			notifier.Handle(ctx, alert.Report{
				ChatID:    chatID,
				RequestID: requestID,
				Summary:   fmt.Sprintf("panic: %v", r),
				Detail:    fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()),
				Replied:   replied,
			})
		}
	}()

	message := update.Message
	if message == nil {
		return
	}

	content := message.Text
	if strings.TrimSpace(content) == "" {
		// Ignore non-text updates; the bot only answers text messages.
		return
	}

	command, isCommand := parseCommand(content)
	if isCommand && command != reply.CommandStart {
		a.log.Debug("Ignoring unsupported command", "command", command)
		return
	}

	senderID := ""
	senderName := ""
	if message.From != nil {
		senderID = strconv.FormatInt(message.From.ID, 10)
		senderName = strings.TrimSpace(message.From.FirstName)
	}
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID = strconv.FormatInt(message.Chat.ID, 10)
	inbound := bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		SenderName: senderName,
		ChatID:     chatID,
		Command:    command,
		Content:    content,
		Metadata: map[string]string{
			"request_id": requestID,
			"update_id":  strconv.Itoa(update.UpdateID),
		},
	}
	a.log.Info("Received message",
		"request_id", requestID,
		"chat_id", chatID,
		"sender_id", senderID,
		"command", command,
		"content", previewText(content),
	)

	stopTyping := func() {}
	if command == "" {
		// Commands answer instantly; only generation warrants the indicator.
		stopTyping = a.startTypingIndicator(ctx, bot, message.Chat.ID)
	}

	outbound, handlerErr := handler(ctx, inbound)
	stopTyping()

	if strings.TrimSpace(outbound.Content) != "" {
		a.log.Info("Sending message", "request_id", requestID, "chat_id", chatID, "content", previewText(outbound.Content))
		if err := sender.Send(ctx, chatID, outbound.Content, outbound.Format); err != nil {
			// The reply could not be delivered; the operator alert is the
			// single notification for this update.
			a.log.Error("Failed to deliver reply", "request_id", requestID, "chat_id", chatID, "error", err)
			notifier.Notify(ctx, alert.Report{
				ChatID:    chatID,
				RequestID: requestID,
				Summary:   "failed to deliver reply",
				Detail:    sendErrorDetail(err),
			})
			return
		}
		replied = true
	}

	if handlerErr != nil {
		notifier.Notify(ctx, alert.Report{
			ChatID:    chatID,
			RequestID: requestID,
			Summary:   "message handling failed",
			Detail:    handlerErr.Error(),
			Replied:   replied,
		})
	}
}

// parseCommand extracts a bot command name from message text. It accepts the
// "/name@BotName args" form Telegram sends in group chats.
func parseCommand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}

	name := strings.TrimPrefix(strings.Fields(trimmed)[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}

	return strings.ToLower(name), true
}

// senderAllowed checks whether a sender is permitted by the allowlist.
//
// When no allowlist is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allowlist values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text. The cut
// backs off to a rune boundary so the preview stays valid UTF-8.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	cut := messagePreviewLimit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}

	return trimmed[:cut] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it
// periodically until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot chatActionSender, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
