package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"qnabot/pkg/bus"
	"qnabot/pkg/config"
	"qnabot/pkg/logger"
	"qnabot/pkg/provider"
	"qnabot/pkg/reply"

	"github.com/spf13/cobra"
)

var (
	promptText    string
	askSenderName string
	askObserveBus bool
	askShowUsage  bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt or start an interactive chat from the terminal",
	Long: "Routes prompts through the same reply flow the Telegram gateway uses. " +
		"Escalation details that would go to the operator chat are printed on the terminal.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := resolvePrompt(args)

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(appLogger)

		client, err := provider.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize provider: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := client.Health(ctx); err != nil {
			fmt.Printf("provider health check failed: %v\n", err)
			os.Exit(1)
		}

		session, err := reply.StartLocalSession(ctx, client, slog.Default(), askObserveBus)
		if err != nil {
			fmt.Printf("failed to start session: %v\n", err)
			os.Exit(1)
		}
		defer session.Close()

		if prompt != "" {
			runSinglePrompt(ctx, session, prompt)
			return
		}

		runInteractive(ctx, session)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "prompt text to send")
	askCmd.Flags().StringVar(&askSenderName, "name", "", "sender name embedded in the prompt")
	askCmd.Flags().BoolVar(&askObserveBus, "events", false, "log prompt lifecycle events")
	askCmd.Flags().BoolVar(&askShowUsage, "usage", false, "print provider and token usage after each reply")
}

func resolvePrompt(args []string) string {
	if value := strings.TrimSpace(promptText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return ""
	}

	return value
}

func runSinglePrompt(ctx context.Context, session *reply.LocalSession, prompt string) {
	outbound, err := session.Prompt(ctx, askSenderName, prompt)
	if err != nil {
		fmt.Printf("prompt failed: %v\n", err)
		return
	}

	fmt.Println(outbound.Content)
	printUsage(outbound)
	printEscalationDetail(outbound.Error)
}

func runInteractive(ctx context.Context, session *reply.LocalSession) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if isExitCommand(prompt) {
			return
		}

		outbound, err := session.Prompt(ctx, askSenderName, prompt)
		if err != nil {
			fmt.Printf("prompt failed: %v\n", err)
			continue
		}

		printAssistantMessage(outbound.Content)
		printUsage(outbound)
		printEscalationDetail(outbound.Error)
	}
}

func printUsage(outbound bus.OutboundMessage) {
	if !askShowUsage {
		return
	}
	if line := usageLine(outbound); line != "" {
		fmt.Printf("📊 %s\n", line)
	}
}

// usageLine renders the provider identity and token counters carried on the
// outbound message. Empty when the provider reported neither.
func usageLine(outbound bus.OutboundMessage) string {
	result := reply.ResultFromOutbound(outbound)

	var parts []string
	switch {
	case result.Metadata.Provider != "" && result.Metadata.Model != "":
		parts = append(parts, result.Metadata.Provider+"/"+result.Metadata.Model)
	case result.Metadata.Provider != "":
		parts = append(parts, result.Metadata.Provider)
	case result.Metadata.Model != "":
		parts = append(parts, result.Metadata.Model)
	}
	if usage := result.Metadata.Usage; usage != nil {
		parts = append(parts, fmt.Sprintf("%d tokens (%d in, %d out)", usage.TotalTokens, usage.InputTokens, usage.OutputTokens))
	}

	return strings.Join(parts, ", ")
}

// printEscalationDetail surfaces what the operator chat would receive. On the
// CLI the user is the operator.
func printEscalationDetail(detail string) {
	if strings.TrimSpace(detail) == "" {
		return
	}

	fmt.Printf("⚠️ escalation: %s\n", detail)
}

func printAssistantMessage(message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Printf("🤖 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
