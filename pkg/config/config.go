package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envTelegramBotToken     = "TELEGRAM_BOT_TOKEN"
	envTelegramOperatorChat = "TELEGRAM_OPERATOR_CHAT_ID"
	envTelegramAllowFrom    = "TELEGRAM_ALLOW_FROM"
	envProvider             = "QNABOT_PROVIDER"
	envModel                = "QNABOT_MODEL"
	envSystemPrompt         = "QNABOT_SYSTEM_PROMPT"
	envGoogleAPIKey         = "GOOGLE_API_KEY"
	envGeminiAPIKey         = "GEMINI_API_KEY"
	envGeminiBaseURL        = "GEMINI_BASE_URL"
	envGeminiTimeout        = "GEMINI_TIMEOUT_SECONDS"
	envOpenAIAPIKey         = "OPENAI_API_KEY"
	envOpenAIBaseURL        = "OPENAI_BASE_URL"
	envOpenAIOrganization   = "OPENAI_ORGANIZATION"
	envOpenAIProject        = "OPENAI_PROJECT"
	envOpenAITimeout        = "OPENAI_TIMEOUT_SECONDS"
	envGatewayHost          = "QNABOT_GATEWAY_HOST"
	envGatewayPort          = "QNABOT_GATEWAY_PORT"
)

// Supported generation providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultOpenAIModel = "gpt-5.2"
)

// Config is the root runtime configuration assembled from the environment.
//
// It is built once by Load and never mutated afterwards; request-time code
// must not reach back into the process environment.
type Config struct {
	Telegram   TelegramConfig
	Generation GenerationConfig
	Providers  ProvidersConfig
	Gateway    GatewayConfig
	Logging    LoggingConfig
}

// TelegramConfig configures the Telegram channel and operator alerting.
type TelegramConfig struct {
	Token          string
	OperatorChatID string
	AllowFrom      []string
}

// GenerationConfig selects the provider, model, and system prompt override.
type GenerationConfig struct {
	Provider     string
	Model        string
	SystemPrompt string
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	Gemini GeminiProviderConfig
	OpenAI OpenAIProviderConfig
}

// GeminiProviderConfig configures the Gemini REST client.
type GeminiProviderConfig struct {
	APIKey                string
	BaseURL               string
	RequestTimeoutSeconds int
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	APIKey                string
	BaseURL               string
	Organization          string
	Project               string
	RequestTimeoutSeconds int
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string
	Port int
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string
	Level     string
	AddSource bool
}

// Load assembles configuration from the process environment plus an optional
// .env file and validates the result. Validation failures are fatal startup
// errors: the caller must not continue without a complete config.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments inject env directly.
	_ = godotenv.Load()

	providerID := strings.ToLower(getEnv(envProvider, ProviderGemini))

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:          strings.TrimSpace(os.Getenv(envTelegramBotToken)),
			OperatorChatID: strings.TrimSpace(os.Getenv(envTelegramOperatorChat)),
			AllowFrom:      parseCSV(os.Getenv(envTelegramAllowFrom)),
		},
		Generation: GenerationConfig{
			Provider:     providerID,
			Model:        getEnv(envModel, defaultModel(providerID)),
			SystemPrompt: strings.TrimSpace(os.Getenv(envSystemPrompt)),
		},
		Providers: ProvidersConfig{
			Gemini: GeminiProviderConfig{
				APIKey:                resolveGeminiAPIKey(),
				BaseURL:               getEnv(envGeminiBaseURL, ""),
				RequestTimeoutSeconds: getEnvInt(envGeminiTimeout, 0),
			},
			OpenAI: OpenAIProviderConfig{
				APIKey:                strings.TrimSpace(os.Getenv(envOpenAIAPIKey)),
				BaseURL:               getEnv(envOpenAIBaseURL, ""),
				Organization:          getEnv(envOpenAIOrganization, ""),
				Project:               getEnv(envOpenAIProject, ""),
				RequestTimeoutSeconds: getEnvInt(envOpenAITimeout, 0),
			},
		},
		Gateway: GatewayConfig{
			Host: getEnv(envGatewayHost, ""),
			Port: getEnvInt(envGatewayPort, 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("%s is required", envTelegramBotToken)
	}
	if c.Telegram.OperatorChatID == "" {
		return fmt.Errorf("%s is required", envTelegramOperatorChat)
	}
	if _, err := strconv.ParseInt(c.Telegram.OperatorChatID, 10, 64); err != nil {
		return fmt.Errorf("%s must be a numeric chat id: %w", envTelegramOperatorChat, err)
	}

	switch c.Generation.Provider {
	case ProviderGemini:
		if c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("%s is required for the gemini provider", envGoogleAPIKey)
		}
	case ProviderOpenAI:
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("%s is required for the openai provider", envOpenAIAPIKey)
		}
	default:
		return fmt.Errorf("unsupported provider: %s", c.Generation.Provider)
	}

	return nil
}

// resolveGeminiAPIKey prefers GOOGLE_API_KEY and falls back to the
// GEMINI_API_KEY name some deployments use.
func resolveGeminiAPIKey() string {
	if value := strings.TrimSpace(os.Getenv(envGoogleAPIKey)); value != "" {
		return value
	}

	return strings.TrimSpace(os.Getenv(envGeminiAPIKey))
}

func defaultModel(providerID string) string {
	switch providerID {
	case ProviderGemini:
		return defaultGeminiModel
	case ProviderOpenAI:
		return defaultOpenAIModel
	default:
		return ""
	}
}

func getEnv(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	if len(clean) == 0 {
		return nil
	}

	return slices.Clip(clean)
}
