package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qnabot",
	Short: "Telegram Q&A bot backed by a generative-language API",
	Long: "qnabot relays Telegram messages to a generative-language provider " +
		"(Gemini or OpenAI) and sends the answers back, with operator alerting " +
		"for failures that need human attention.",
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
