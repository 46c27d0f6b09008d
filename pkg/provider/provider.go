package provider

import (
	"context"
	"fmt"
	"log/slog"

	"qnabot/pkg/config"
	"qnabot/pkg/prompt"
	"qnabot/pkg/provider/gemini"
	provideropenai "qnabot/pkg/provider/openai"
	providertypes "qnabot/pkg/provider/types"
)

// Client is the generation backend contract: one health probe and one
// single-shot generation call. Implementations classify failures into the
// stable categories of pkg/provider/types and never retry internally.
type Client interface {
	Health(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (providertypes.Result, error)
}

// New resolves the system instruction once and constructs the configured
// provider implementation.
func New(cfg *config.Config) (Client, error) {
	providerID := cfg.Generation.Provider
	if providerID == "" {
		providerID = config.ProviderGemini
	}

	system, err := prompt.SystemInstruction(cfg.Generation.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("resolve system instruction: %w", err)
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving provider client", "provider", providerID, "model", cfg.Generation.Model)

	switch providerID {
	case config.ProviderGemini:
		return gemini.New(cfg, system)
	case config.ProviderOpenAI:
		return provideropenai.New(cfg, system)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerID)
	}
}
