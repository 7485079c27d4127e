package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-ai/chat-platform/internal/cli/tui"
	"github.com/parley-ai/chat-platform/internal/client"
)

// chatCmd is the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [chat-id]",
	Short: "start an interactive chat session",
	Long: `Start an interactive terminal chat. With no argument a new chat is
created; pass a chat id to resume an existing one.`,
	Example: `  # Start a new chat
  $ chatctl chat

  # Resume an existing chat
  $ chatctl chat 018e7a2c-5c1b-7c3e-9f1a-3b2d4e5f6a7b`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.SilenceUsage = true
}

func runChat(cmd *cobra.Command, args []string) error {
	if tokenFlag == "" {
		printError("no token provided, set --token or CHAT_TOKEN")
		return fmt.Errorf("authentication required")
	}

	api, err := client.New(serverFlag, tokenFlag)
	if err != nil {
		printError("failed to create client: %v", err)
		return err
	}
	store := client.NewStore(api)

	ctx := context.Background()
	if err := store.Refresh(ctx); err != nil {
		printError("failed to reach server: %v", err)
		return err
	}

	if len(args) == 1 {
		if err := store.SelectChat(ctx, args[0]); err != nil {
			printError("failed to load chat: %v", err)
			return err
		}
	} else {
		if _, err := store.NewChat(ctx); err != nil {
			printError("failed to create chat: %v", err)
			return err
		}
	}

	program := tui.NewChatProgram(store)
	if err := program.Run(); err != nil {
		return fmt.Errorf("failed to run chat TUI: %w", err)
	}
	return nil
}
