// Package prompt builds the text sent to the generation provider.
//
// Build is a pure function: the same sender name and user text always
// produce the same prompt, and the user text is embedded verbatim.
package prompt

import (
	"embed"
	"fmt"
	"strings"
)

// FallbackSenderName is used when Telegram gives us no usable first name.
const FallbackSenderName = "Anonymous"

const promptFormat = "The user you are talking to is named %s. They said: '%s'"

//go:embed templates/system.md
var templatesFS embed.FS

// Build renders the provider prompt for one incoming message. The user text
// is never rewritten; only the sender name is normalized.
func Build(senderName string, userText string) string {
	name := strings.TrimSpace(senderName)
	if name == "" {
		name = FallbackSenderName
	}

	return fmt.Sprintf(promptFormat, name, userText)
}

// SystemInstruction returns the system prompt for the provider. A non-empty
// override from configuration wins; otherwise the embedded default is used.
func SystemInstruction(override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed, nil
	}

	content, err := templatesFS.ReadFile("templates/system.md")
	if err != nil {
		return "", fmt.Errorf("load system instruction template: %w", err)
	}

	instruction := strings.TrimSpace(string(content))
	if instruction == "" {
		return "", fmt.Errorf("system instruction template is empty")
	}

	return instruction, nil
}
