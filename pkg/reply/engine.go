// Package reply turns one inbound chat message into exactly one outbound
// reply, mapping every generation outcome to a fixed user-facing text.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"qnabot/pkg/bus"
	"qnabot/pkg/prompt"
	providertypes "qnabot/pkg/provider/types"
)

// CommandStart is the only command the bot answers.
const CommandStart = "start"

// Generator is the single outbound generation call the engine depends on.
// pkg/provider.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (providertypes.Result, error)
}

// Engine orchestrates prompt building, generation, and outcome
// classification for one inbound message at a time. It holds no per-message
// state and is safe for concurrent use.
type Engine struct {
	generator Generator
	log       *slog.Logger
}

func NewEngine(generator Generator, log *slog.Logger) (*Engine, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		generator: generator,
		log:       log.With("component", "reply.engine"),
	}, nil
}

// Reply produces the outbound message for one inbound message.
//
// The outbound message is always populated: callers dispatch it regardless of
// the returned error. A non-nil error is the escalation payload for the
// operator channel; branches the user is expected to hit (rate limits, empty
// responses) recover locally and never escalate.
func (e *Engine) Reply(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	outbound := bus.OutboundMessage{
		Channel:  inbound.Channel,
		ChatID:   inbound.ChatID,
		Format:   bus.FormatMarkdown,
		Metadata: requestMetadata(inbound),
	}

	if inbound.Command == CommandStart {
		outbound.Content = WelcomeMessage
		return outbound, nil
	}

	promptText := prompt.Build(inbound.SenderName, inbound.Content)
	result, err := e.generator.Generate(ctx, promptText)
	if err == nil {
		outbound.Content = result.Text
		mergeResultMetadata(&outbound, result)
		return outbound, nil
	}

	category := providertypes.CategoryFromError(err)
	e.log.Error("Generation failed",
		"request_id", inbound.Metadata["request_id"],
		"chat_id", inbound.ChatID,
		"category", category,
		"error", err,
	)

	switch category {
	case providertypes.ErrorEmptyResponse:
		// Legitimate terminal outcome, not an operator concern.
		outbound.Content = EmptyReplyMessage
		outbound.Format = bus.FormatPlain
		return outbound, nil
	case providertypes.ErrorRateLimited:
		outbound.Content = BusyMessage
		return outbound, nil
	case providertypes.ErrorAuthFailure:
		// The user gets a soft message; the broken deployment is the
		// operator's problem.
		outbound.Content = ConfigProblemMessage
		outbound.Error = err.Error()
		return outbound, fmt.Errorf("provider auth failure: %w", err)
	default:
		outbound.Content = GenericFailureMessage
		outbound.Error = err.Error()
		return outbound, fmt.Errorf("generation failed: %w", err)
	}
}

func requestMetadata(inbound bus.InboundMessage) map[string]string {
	if len(inbound.Metadata) == 0 {
		return nil
	}

	metadata := make(map[string]string, len(inbound.Metadata))
	for key, value := range inbound.Metadata {
		if strings.TrimSpace(value) == "" {
			continue
		}
		metadata[key] = value
	}

	if len(metadata) == 0 {
		return nil
	}

	return metadata
}
