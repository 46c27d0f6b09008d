package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"qnabot/pkg/bus"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Sender delivers outbound messages to Telegram chats. Delivery failures are
// returned to the caller untouched: a rejected reply is an operator-level
// problem, and resending risks duplicate replies.
type Sender struct {
	bot *telego.Bot
	log *slog.Logger
}

func NewSender(bot *telego.Bot, log *slog.Logger) (*Sender, error) {
	if bot == nil {
		return nil, errors.New("bot is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sender{
		bot: bot,
		log: log.With("component", "channel.telegram.sender"),
	}, nil
}

// Send delivers one text to one chat with the requested format mode. No
// retries and no format downgrades on rejection.
func (s *Sender) Send(ctx context.Context, chatID string, text string, format bus.Format) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	if _, err := s.bot.SendMessage(ctx, sendParams(id, text, format)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

func sendParams(chatID int64, text string, format bus.Format) *telego.SendMessageParams {
	params := tu.Message(tu.ID(chatID), text)
	if format == bus.FormatMarkdown {
		params = params.WithParseMode(telego.ModeMarkdown)
	}

	return params
}

// sendErrorDetail extracts the Telegram API error code and description for
// operator-facing diagnostics.
func sendErrorDetail(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("telegram api error %d: %s", apiErr.ErrorCode, apiErr.Description)
	}

	return err.Error()
}
