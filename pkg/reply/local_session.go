package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"qnabot/pkg/bus"
)

const (
	cliChannelName = "cli"
	cliChatID      = "local"
)

// LocalSession runs the reply flow over an in-process message bus for the
// CLI. Prompt requests are routed through the bus so terminal use and the
// Telegram gateway share the same transport semantics.
//
// It owns:
//   - one reply engine,
//   - one in-process message bus,
//   - and one bus worker goroutine.
type LocalSession struct {
	engine     *Engine
	messageBus *bus.MessageBus
	log        *slog.Logger

	cancelWorker context.CancelFunc

	requestCounter atomic.Uint64
}

func StartLocalSession(ctx context.Context, generator Generator, log *slog.Logger, observeEvents bool) (*LocalSession, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	engine, err := NewEngine(generator, log)
	if err != nil {
		return nil, fmt.Errorf("initialize reply engine: %w", err)
	}

	session := &LocalSession{
		engine:     engine,
		messageBus: bus.NewMessageBus(),
		log:        log.With("component", "reply.local_session"),
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	session.cancelWorker = cancelWorker
	go runReplyBusWorker(workerCtx, engine, session.messageBus)

	if observeEvents {
		go ObserveEvents(workerCtx, session.messageBus)
	}

	return session, nil
}

// Prompt sends one message through the bus and waits for the reply. The
// outbound Error field carries escalation detail; on the CLI the user is the
// operator, so callers surface it on the terminal instead of alerting a chat.
func (s *LocalSession) Prompt(ctx context.Context, senderName string, text string) (bus.OutboundMessage, error) {
	if s == nil {
		return bus.OutboundMessage{}, errors.New("local session is nil")
	}

	requestID := strconv.FormatUint(s.requestCounter.Add(1), 10)
	inbound := bus.InboundMessage{
		Channel:    cliChannelName,
		ChatID:     cliChatID,
		SenderName: senderName,
		Content:    text,
		Metadata: map[string]string{
			"request_id": requestID,
		},
	}

	if ok := s.messageBus.PublishInbound(ctx, inbound); !ok {
		if err := ctx.Err(); err != nil {
			return bus.OutboundMessage{}, err
		}
		return bus.OutboundMessage{}, errors.New("unable to enqueue prompt")
	}

	outbound, ok := s.messageBus.SubscribeOutbound(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return bus.OutboundMessage{}, err
		}
		return bus.OutboundMessage{}, errors.New("unable to receive reply")
	}

	return outbound, nil
}

// Close shuts down the worker and the bus owned by the session.
func (s *LocalSession) Close() {
	if s == nil {
		return
	}

	s.cancelWorker()
	s.messageBus.Close()
}

func runReplyBusWorker(ctx context.Context, engine *Engine, messageBus *bus.MessageBus) {
	for {
		inbound, ok := messageBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		requestID := inbound.Metadata["request_id"]
		_ = messageBus.PublishEvent(ctx, bus.Event{
			Type:      bus.EventPromptReceived,
			Channel:   inbound.Channel,
			ChatID:    inbound.ChatID,
			RequestID: requestID,
			Payload: map[string]string{
				"prompt_length": strconv.Itoa(len(inbound.Content)),
			},
		})

		outbound, err := engine.Reply(ctx, inbound)
		if err != nil {
			_ = messageBus.PublishEvent(ctx, bus.Event{
				Type:      bus.EventPromptFailed,
				Channel:   inbound.Channel,
				ChatID:    inbound.ChatID,
				RequestID: requestID,
				Error:     err.Error(),
			})
		} else {
			_ = messageBus.PublishEvent(ctx, bus.Event{
				Type:      bus.EventPromptCompleted,
				Channel:   inbound.Channel,
				ChatID:    inbound.ChatID,
				RequestID: requestID,
				Payload: map[string]string{
					"response_length": strconv.Itoa(len(outbound.Content)),
				},
			})
		}

		if ok := messageBus.PublishOutbound(ctx, outbound); !ok {
			return
		}
	}
}
