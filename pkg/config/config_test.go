package config

import (
	"strings"
	"testing"
)

var configEnvKeys = []string{
	envTelegramBotToken,
	envTelegramOperatorChat,
	envTelegramAllowFrom,
	envProvider,
	envModel,
	envSystemPrompt,
	envGoogleAPIKey,
	envGeminiAPIKey,
	envGeminiBaseURL,
	envGeminiTimeout,
	envOpenAIAPIKey,
	envOpenAIBaseURL,
	envOpenAIOrganization,
	envOpenAIProject,
	envOpenAITimeout,
	envGatewayHost,
	envGatewayPort,
}

func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadGeminiDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "987654321")
	t.Setenv(envGoogleAPIKey, "gemini-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Telegram.Token != "123456:test-token" {
		t.Fatalf("Telegram.Token = %q, want %q", cfg.Telegram.Token, "123456:test-token")
	}
	if cfg.Telegram.OperatorChatID != "987654321" {
		t.Fatalf("Telegram.OperatorChatID = %q, want %q", cfg.Telegram.OperatorChatID, "987654321")
	}
	if cfg.Generation.Provider != ProviderGemini {
		t.Fatalf("Generation.Provider = %q, want %q", cfg.Generation.Provider, ProviderGemini)
	}
	if cfg.Generation.Model != defaultGeminiModel {
		t.Fatalf("Generation.Model = %q, want %q", cfg.Generation.Model, defaultGeminiModel)
	}
	if cfg.Providers.Gemini.APIKey != "gemini-key" {
		t.Fatalf("Providers.Gemini.APIKey = %q, want %q", cfg.Providers.Gemini.APIKey, "gemini-key")
	}
	if cfg.Telegram.AllowFrom != nil {
		t.Fatalf("Telegram.AllowFrom = %v, want nil", cfg.Telegram.AllowFrom)
	}
}

func TestLoadFullEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "-100200300")
	t.Setenv(envTelegramAllowFrom, "1001, 1002 ,,1003")
	t.Setenv(envProvider, "Gemini")
	t.Setenv(envModel, "gemini-2.5-pro")
	t.Setenv(envSystemPrompt, "  Answer briefly.  ")
	t.Setenv(envGeminiAPIKey, "gemini-key")
	t.Setenv(envGeminiBaseURL, "https://example.test/v1beta/models")
	t.Setenv(envGeminiTimeout, "15")
	t.Setenv(envGatewayHost, "127.0.0.1")
	t.Setenv(envGatewayPort, "19000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Generation.Provider != ProviderGemini {
		t.Fatalf("Generation.Provider = %q, want %q", cfg.Generation.Provider, ProviderGemini)
	}
	if cfg.Generation.Model != "gemini-2.5-pro" {
		t.Fatalf("Generation.Model = %q, want %q", cfg.Generation.Model, "gemini-2.5-pro")
	}
	if cfg.Generation.SystemPrompt != "Answer briefly." {
		t.Fatalf("Generation.SystemPrompt = %q, want %q", cfg.Generation.SystemPrompt, "Answer briefly.")
	}
	if got := strings.Join(cfg.Telegram.AllowFrom, "|"); got != "1001|1002|1003" {
		t.Fatalf("Telegram.AllowFrom = %q, want %q", got, "1001|1002|1003")
	}
	if cfg.Providers.Gemini.BaseURL != "https://example.test/v1beta/models" {
		t.Fatalf("Providers.Gemini.BaseURL = %q", cfg.Providers.Gemini.BaseURL)
	}
	if cfg.Providers.Gemini.RequestTimeoutSeconds != 15 {
		t.Fatalf("Providers.Gemini.RequestTimeoutSeconds = %d, want 15", cfg.Providers.Gemini.RequestTimeoutSeconds)
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Fatalf("Gateway.Host = %q, want %q", cfg.Gateway.Host, "127.0.0.1")
	}
	if cfg.Gateway.Port != 19000 {
		t.Fatalf("Gateway.Port = %d, want 19000", cfg.Gateway.Port)
	}
}

func TestLoadOpenAIProvider(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "987654321")
	t.Setenv(envProvider, "openai")
	t.Setenv(envOpenAIAPIKey, "sk-test")
	t.Setenv(envOpenAIOrganization, "org-1")
	t.Setenv(envOpenAIProject, "proj-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Generation.Provider != ProviderOpenAI {
		t.Fatalf("Generation.Provider = %q, want %q", cfg.Generation.Provider, ProviderOpenAI)
	}
	if cfg.Generation.Model != defaultOpenAIModel {
		t.Fatalf("Generation.Model = %q, want %q", cfg.Generation.Model, defaultOpenAIModel)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-test" {
		t.Fatalf("Providers.OpenAI.APIKey = %q, want %q", cfg.Providers.OpenAI.APIKey, "sk-test")
	}
	if cfg.Providers.OpenAI.Organization != "org-1" {
		t.Fatalf("Providers.OpenAI.Organization = %q, want %q", cfg.Providers.OpenAI.Organization, "org-1")
	}
	if cfg.Providers.OpenAI.Project != "proj-1" {
		t.Fatalf("Providers.OpenAI.Project = %q, want %q", cfg.Providers.OpenAI.Project, "proj-1")
	}
}

func TestLoadRequiresTelegramToken(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramOperatorChat, "987654321")
	t.Setenv(envGoogleAPIKey, "gemini-key")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for missing bot token")
	}
}

func TestLoadRequiresOperatorChatID(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envGoogleAPIKey, "gemini-key")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for missing operator chat id")
	}
}

func TestLoadRejectsNonNumericOperatorChatID(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "operator")
	t.Setenv(envGoogleAPIKey, "gemini-key")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for non-numeric operator chat id")
	}
}

func TestLoadRequiresProviderAPIKey(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "987654321")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for missing gemini api key")
	}
}

func TestLoadRejectsUnsupportedProvider(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "987654321")
	t.Setenv(envProvider, "anthropic")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unsupported provider")
	}
}

func TestGeminiAPIKeyFallback(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envTelegramBotToken, "123456:test-token")
	t.Setenv(envTelegramOperatorChat, "987654321")
	t.Setenv(envGeminiAPIKey, "fallback-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Providers.Gemini.APIKey != "fallback-key" {
		t.Fatalf("Providers.Gemini.APIKey = %q, want %q", cfg.Providers.Gemini.APIKey, "fallback-key")
	}
}

func TestParseCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "whitespace only", input: "  ,  , ", want: nil},
		{name: "single", input: "1001", want: []string{"1001"}},
		{name: "trims and skips blanks", input: " 1001, ,1002 ", want: []string{"1001", "1002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseCSV(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseCSV(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("parseCSV(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("QNABOT_TEST_INT", "42")
	if got := getEnvInt("QNABOT_TEST_INT", 7); got != 42 {
		t.Fatalf("getEnvInt = %d, want 42", got)
	}

	t.Setenv("QNABOT_TEST_INT", "not-a-number")
	if got := getEnvInt("QNABOT_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want fallback 7", got)
	}

	t.Setenv("QNABOT_TEST_INT", "")
	if got := getEnvInt("QNABOT_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvInt = %d, want fallback 7", got)
	}
}
