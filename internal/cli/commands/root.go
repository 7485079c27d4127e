// Package commands defines the chatctl command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	serverFlag string
	tokenFlag  string
)

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "chatctl",
	Short:   "Terminal client for the chat platform",
	Version: version,
	Long: `A command-line client for the chat platform API. Provides an
interactive terminal chat with streaming replies, plus plain commands
for inspecting your chats.`,
	Example: `  # Start an interactive chat session
  $ chatctl chat -s http://localhost:8080 -t $CHAT_TOKEN

  # List your chats
  $ chatctl chats`,
}

// Execute executes the root command
func Execute() error {
	rootCmd.SetVersionTemplate(fmt.Sprintf("chatctl version %s\n", version))
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", envOr("CHAT_SERVER", "http://localhost:8080"), "API server address")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", os.Getenv("CHAT_TOKEN"), "bearer token")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(chatsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
