package channel

import (
	"context"

	"qnabot/pkg/bus"
)

// Handler processes one inbound channel message and returns an outbound
// reply. The outbound message is always dispatchable; a non-nil error is an
// escalation payload for the operator, not a reason to drop the reply.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the bot.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
