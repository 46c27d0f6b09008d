// Package gemini implements the generation client for the Google
// Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qnabot/pkg/config"
	providertypes "qnabot/pkg/provider/types"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultRequestTimeout = 60 * time.Second
)

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	system     string
	httpClient *http.Client
}

func New(cfg *config.Config, system string) (*Client, error) {
	providerCfg := cfg.Providers.Gemini
	apiKey := strings.TrimSpace(providerCfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY or GEMINI_API_KEY must be set for the gemini provider")
	}

	model := strings.TrimSpace(cfg.Generation.Model)
	if model == "" {
		return nil, errors.New("model is required")
	}

	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		system:     strings.TrimSpace(system),
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// Generate sends one prompt and returns the normalized result. It performs a
// single attempt: retry policy belongs to the caller, not the transport.
func (c *Client) Generate(ctx context.Context, promptText string) (providertypes.Result, error) {
	log := providerLogger().With("operation", "generate")
	startedAt := time.Now()

	if strings.TrimSpace(promptText) == "" {
		return providertypes.Result{}, errors.New("prompt is required")
	}
	log.Debug("provider request started",
		"model", c.model,
		"prompt_length", len(promptText),
	)

	payload := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: promptText}},
		}},
	}
	if c.system != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: c.system}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return providertypes.Result{}, fmt.Errorf("encode generate request: %w", err)
	}

	// The key goes in a header, never the URL: transport errors quote the
	// request URL and those strings end up in operator alerts and the
	// status endpoints.
	endpoint := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providertypes.Result{}, fmt.Errorf("build generate request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Result{}, providertypes.NewError(providertypes.ErrorUnavailable, err.Error())
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Result{}, providertypes.NewError(providertypes.ErrorUnavailable, err.Error())
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil && response.StatusCode == http.StatusOK {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Result{}, providertypes.NewError(providertypes.ErrorUnavailable, fmt.Sprintf("decode generate response: %v", err))
	}

	if response.StatusCode != http.StatusOK {
		classified := classifyAPIError(response.StatusCode, decoded.Error)
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", response.StatusCode, "error", classified)
		return providertypes.Result{}, classified
	}

	text := collectText(decoded)
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no candidates with text")
		return providertypes.Result{}, providertypes.NewError(providertypes.ErrorEmptyResponse, "no candidates with text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return providertypes.Result{
		Text: text,
		Metadata: providertypes.Metadata{
			Provider: config.ProviderGemini,
			Model:    c.model,
			Usage:    usageFrom(decoded.UsageMetadata),
		},
	}, nil
}

// Health fetches the configured model's metadata, which exercises both the
// API key and the model name without generating anything.
func (c *Client) Health(ctx context.Context) error {
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started", "model", c.model)

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, c.model)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	request.Header.Set("x-goog-api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(response.Body)
		var decoded generateResponse
		_ = json.Unmarshal(raw, &decoded)
		classified := classifyAPIError(response.StatusCode, decoded.Error)
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", response.StatusCode, "error", classified)
		return fmt.Errorf("health check failed: %w", classified)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
	Error         *apiError      `json:"error"`
}

type candidate struct {
	Content content `json:"content"`
}

type usageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// classifyAPIError maps a non-200 API response to the stable failure
// taxonomy. The API reports quota exhaustion as RESOURCE_EXHAUSTED and key
// problems either through 401/403 or a 400 with an "API key" message.
func classifyAPIError(statusCode int, apiErr *apiError) error {
	detail := fmt.Sprintf("status %d", statusCode)
	status := ""
	message := ""
	if apiErr != nil {
		status = strings.ToUpper(strings.TrimSpace(apiErr.Status))
		message = strings.TrimSpace(apiErr.Message)
		if message != "" {
			detail = message
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return providertypes.NewError(providertypes.ErrorRateLimited, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return providertypes.NewError(providertypes.ErrorAuthFailure, detail)
	case status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED":
		return providertypes.NewError(providertypes.ErrorAuthFailure, detail)
	case strings.Contains(strings.ToLower(message), "api key"):
		return providertypes.NewError(providertypes.ErrorAuthFailure, detail)
	default:
		return providertypes.NewError(providertypes.ErrorUnavailable, detail)
	}
}

func collectText(response generateResponse) string {
	for _, cand := range response.Candidates {
		var builder strings.Builder
		for _, p := range cand.Content.Parts {
			builder.WriteString(p.Text)
		}
		if text := strings.TrimSpace(builder.String()); text != "" {
			return text
		}
	}

	return ""
}

func usageFrom(metadata *usageMetadata) *providertypes.TokenUsage {
	if metadata == nil {
		return nil
	}

	usage := providertypes.TokenUsage{
		InputTokens:  metadata.PromptTokenCount,
		OutputTokens: metadata.CandidatesTokenCount,
		TotalTokens:  metadata.TotalTokenCount,
	}
	if usage.IsZero() {
		return nil
	}

	return &usage
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.gemini")
}
