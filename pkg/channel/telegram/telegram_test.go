package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"qnabot/pkg/alert"
	"qnabot/pkg/bus"
	"qnabot/pkg/config"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
)

type sentText struct {
	chatID string
	text   string
	format bus.Format
}

type stubSender struct {
	sends []sentText
	err   error
}

func (s *stubSender) Send(_ context.Context, chatID string, text string, format bus.Format) error {
	s.sends = append(s.sends, sentText{chatID: chatID, text: text, format: format})
	return s.err
}

type stubNotifier struct {
	notified []alert.Report
	handled  []alert.Report
}

func (s *stubNotifier) Notify(_ context.Context, report alert.Report) {
	s.notified = append(s.notified, report)
}

func (s *stubNotifier) Handle(_ context.Context, report alert.Report) {
	s.handled = append(s.handled, report)
}

type stubChatActions struct{}

func (stubChatActions) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	return nil
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(config.TelegramConfig{Token: "token", OperatorChatID: "99"}, nil)
	if err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}

	return adapter
}

func textUpdate(text string) telego.Update {
	return telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			Text: text,
			Chat: telego.Chat{ID: 42},
			From: &telego.User{ID: 5, FirstName: "Alice"},
		},
	}
}

func TestNewAdapterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewAdapter(config.TelegramConfig{OperatorChatID: "1"}, nil); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewAdapter(config.TelegramConfig{Token: "token"}, nil); err == nil {
		t.Fatal("expected error for missing operator chat id")
	}
	if _, err := NewAdapter(config.TelegramConfig{Token: "token", OperatorChatID: "1"}, nil); err != nil {
		t.Fatalf("NewAdapter error: %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text        string
		wantCommand string
		wantOK      bool
	}{
		{text: "/start", wantCommand: "start", wantOK: true},
		{text: " /start ", wantCommand: "start", wantOK: true},
		{text: "/start@JawabAjaBot deep-link", wantCommand: "start", wantOK: true},
		{text: "/Start", wantCommand: "start", wantOK: true},
		{text: "/help", wantCommand: "help", wantOK: true},
		{text: "hello", wantCommand: "", wantOK: false},
		{text: "what is /start", wantCommand: "", wantOK: false},
	}

	for _, tt := range tests {
		command, ok := parseCommand(tt.text)
		if command != tt.wantCommand || ok != tt.wantOK {
			t.Fatalf("parseCommand(%q) = (%q, %v), want (%q, %v)", tt.text, command, ok, tt.wantCommand, tt.wantOK)
		}
	}
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
	if !adapter.senderAllowed("") {
		t.Fatal("expected absent sender to be allowed when allowlist empty")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}

	// The limit must not split a multibyte rune. The ASCII prefix shifts
	// the rune boundaries so the cut lands inside one.
	multibyte := "a" + strings.Repeat("€", messagePreviewLimit)
	if got := previewText(multibyte); !utf8.ValidString(got) {
		t.Fatalf("previewText multibyte = %q, want valid UTF-8", got)
	}
}

func TestProcessUpdateDeliversReply(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t)
	sender := &stubSender{}
	notifier := &stubNotifier{}

	handler := func(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
		if inbound.SenderName != "Alice" || inbound.ChatID != "42" {
			t.Errorf("inbound = %+v, want Alice in chat 42", inbound)
		}
		return bus.OutboundMessage{Channel: channelName, ChatID: inbound.ChatID, Content: "The answer is 4.", Format: bus.FormatMarkdown}, nil
	}

	adapter.processUpdate(context.Background(), stubChatActions{}, sender, notifier, handler, textUpdate("What is 2+2?"))

	if len(sender.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.sends))
	}
	if got := sender.sends[0]; got.chatID != "42" || got.text != "The answer is 4." || got.format != bus.FormatMarkdown {
		t.Fatalf("send = %+v, want reply to chat 42", got)
	}
	if len(notifier.notified) != 0 || len(notifier.handled) != 0 {
		t.Fatalf("notifier calls = %d/%d, want none", len(notifier.notified), len(notifier.handled))
	}
}

func TestProcessUpdateDispatchFailureNotifiesOperatorOnce(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t)
	sender := &stubSender{err: &telegoapi.Error{ErrorCode: 400, Description: "Bad Request: can't parse entities"}}
	notifier := &stubNotifier{}

	handler := func(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
		return bus.OutboundMessage{Channel: channelName, ChatID: inbound.ChatID, Content: "reply", Format: bus.FormatMarkdown},
			errors.New("provider rejected credentials")
	}

	adapter.processUpdate(context.Background(), stubChatActions{}, sender, notifier, handler, textUpdate("hello"))

	if len(sender.sends) != 1 {
		t.Fatalf("sends = %d, want the single failed attempt", len(sender.sends))
	}
	if len(notifier.notified) != 1 {
		t.Fatalf("notified = %d, want exactly 1", len(notifier.notified))
	}
	report := notifier.notified[0]
	if report.Summary != "failed to deliver reply" {
		t.Fatalf("summary = %q, want delivery failure", report.Summary)
	}
	if !strings.Contains(report.Detail, "can't parse entities") {
		t.Fatalf("detail = %q, want telegram error description", report.Detail)
	}
	if report.ChatID != "42" {
		t.Fatalf("chat id = %q, want 42", report.ChatID)
	}
	if len(notifier.handled) != 0 {
		t.Fatalf("handled = %d, want 0", len(notifier.handled))
	}
}

func TestProcessUpdateEscalatesHandlerError(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t)
	sender := &stubSender{}
	notifier := &stubNotifier{}

	handler := func(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
		return bus.OutboundMessage{Channel: channelName, ChatID: inbound.ChatID, Content: "There's a problem with my configuration.", Format: bus.FormatPlain},
			errors.New("auth_failure: API key not valid")
	}

	adapter.processUpdate(context.Background(), stubChatActions{}, sender, notifier, handler, textUpdate("hello"))

	if len(sender.sends) != 1 {
		t.Fatalf("sends = %d, want the user reply", len(sender.sends))
	}
	if len(notifier.notified) != 1 {
		t.Fatalf("notified = %d, want 1", len(notifier.notified))
	}
	report := notifier.notified[0]
	if !report.Replied {
		t.Fatal("report.Replied = false, want true after the reply was delivered")
	}
	if !strings.Contains(report.Detail, "API key not valid") {
		t.Fatalf("detail = %q, want handler error text", report.Detail)
	}
}

func TestProcessUpdateRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t)
	sender := &stubSender{}
	notifier := &stubNotifier{}

	handler := func(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
		panic("boom")
	}

	adapter.processUpdate(context.Background(), stubChatActions{}, sender, notifier, handler, textUpdate("hello"))

	if len(sender.sends) != 0 {
		t.Fatalf("sends = %d, want 0", len(sender.sends))
	}
	if len(notifier.handled) != 1 {
		t.Fatalf("handled = %d, want the recovery report", len(notifier.handled))
	}
	report := notifier.handled[0]
	if !strings.Contains(report.Summary, "boom") {
		t.Fatalf("summary = %q, want panic value", report.Summary)
	}
	if report.ChatID != "42" {
		t.Fatalf("chat id = %q, want 42", report.ChatID)
	}
	if report.Replied {
		t.Fatal("report.Replied = true, want false when no reply was attempted")
	}
}

func TestProcessUpdateIgnoresUnsupportedInput(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t)

	updates := []telego.Update{
		{UpdateID: 1},
		{UpdateID: 2, Message: &telego.Message{Chat: telego.Chat{ID: 42}}},
		textUpdate("/help"),
	}

	for _, update := range updates {
		sender := &stubSender{}
		notifier := &stubNotifier{}
		handlerCalls := 0
		handler := func(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
			handlerCalls++
			return bus.OutboundMessage{}, nil
		}

		adapter.processUpdate(context.Background(), stubChatActions{}, sender, notifier, handler, update)

		if handlerCalls != 0 {
			t.Fatalf("update %d: handler calls = %d, want 0", update.UpdateID, handlerCalls)
		}
		if len(sender.sends) != 0 || len(notifier.notified) != 0 || len(notifier.handled) != 0 {
			t.Fatalf("update %d: unexpected sends or notifications", update.UpdateID)
		}
	}
}

func TestSendParamsFormatMode(t *testing.T) {
	t.Parallel()

	markdown := sendParams(42, "**bold**", bus.FormatMarkdown)
	if markdown.ParseMode != telego.ModeMarkdown {
		t.Fatalf("markdown ParseMode = %q, want %q", markdown.ParseMode, telego.ModeMarkdown)
	}

	plain := sendParams(42, "plain text", bus.FormatPlain)
	if plain.ParseMode != "" {
		t.Fatalf("plain ParseMode = %q, want empty", plain.ParseMode)
	}

	if markdown.ChatID.ID != 42 {
		t.Fatalf("ChatID = %d, want 42", markdown.ChatID.ID)
	}
}

func TestSendErrorDetail(t *testing.T) {
	t.Parallel()

	apiErr := &telegoapi.Error{ErrorCode: 400, Description: "Bad Request: can't parse entities"}
	detail := sendErrorDetail(apiErr)
	if !strings.Contains(detail, "400") || !strings.Contains(detail, "can't parse entities") {
		t.Fatalf("sendErrorDetail = %q, want code and description", detail)
	}

	wrapped := sendErrorDetail(errors.New("connection reset"))
	if wrapped != "connection reset" {
		t.Fatalf("sendErrorDetail = %q, want raw error text", wrapped)
	}

	if got := sendErrorDetail(nil); got != "" {
		t.Fatalf("sendErrorDetail(nil) = %q, want empty", got)
	}
}
