package reply

import (
	"strconv"
	"strings"

	"qnabot/pkg/bus"
	providertypes "qnabot/pkg/provider/types"
)

const (
	ProviderKey          = "provider"
	ModelKey             = "model"
	UsageInputTokensKey  = "usage_input_tokens"
	UsageOutputTokensKey = "usage_output_tokens"
	UsageTotalTokensKey  = "usage_total_tokens"
)

// mergeResultMetadata serializes provider identity and usage counters into
// outbound metadata.
//
// Keeping this logic in one place avoids subtle drift between CLI and gateway
// response formatting.
func mergeResultMetadata(outbound *bus.OutboundMessage, result providertypes.Result) {
	if outbound.Metadata == nil {
		outbound.Metadata = map[string]string{}
	}

	if result.Metadata.Provider != "" {
		outbound.Metadata[ProviderKey] = result.Metadata.Provider
	}
	if result.Metadata.Model != "" {
		outbound.Metadata[ModelKey] = result.Metadata.Model
	}

	if usage := result.Metadata.Usage; usage != nil {
		outbound.Metadata[UsageInputTokensKey] = strconv.FormatInt(usage.InputTokens, 10)
		outbound.Metadata[UsageOutputTokensKey] = strconv.FormatInt(usage.OutputTokens, 10)
		outbound.Metadata[UsageTotalTokensKey] = strconv.FormatInt(usage.TotalTokens, 10)
	}

	if len(outbound.Metadata) == 0 {
		outbound.Metadata = nil
	}
}

// ResultFromOutbound reconstructs provider identity and usage from bus
// metadata, for callers that only see the outbound side of the bus.
func ResultFromOutbound(outbound bus.OutboundMessage) providertypes.Result {
	result := providertypes.Result{Text: outbound.Content}
	if outbound.Metadata == nil {
		return result
	}

	result.Metadata.Provider = outbound.Metadata[ProviderKey]
	result.Metadata.Model = outbound.Metadata[ModelKey]

	usage := &providertypes.TokenUsage{
		InputTokens:  parseInt64(outbound.Metadata[UsageInputTokensKey]),
		OutputTokens: parseInt64(outbound.Metadata[UsageOutputTokensKey]),
		TotalTokens:  parseInt64(outbound.Metadata[UsageTotalTokensKey]),
	}
	if usage.IsZero() {
		usage = nil
	}
	result.Metadata.Usage = usage

	return result
}

func parseInt64(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}

	return parsed
}
