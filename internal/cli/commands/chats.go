package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/parley-ai/chat-platform/internal/client"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// chatsCmd is the chats command
var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "list your chats",
	Example: `  # List chats, newest first
  $ chatctl chats`,
	Args: cobra.NoArgs,
	RunE: runChats,
}

func init() {
	chatsCmd.SilenceUsage = true
}

func runChats(cmd *cobra.Command, args []string) error {
	if tokenFlag == "" {
		printError("no token provided, set --token or CHAT_TOKEN")
		return fmt.Errorf("authentication required")
	}

	api, err := client.New(serverFlag, tokenFlag)
	if err != nil {
		printError("failed to create client: %v", err)
		return err
	}

	chats, err := api.ListChats(context.Background())
	if err != nil {
		printError("failed to list chats: %v", err)
		return err
	}

	if len(chats) == 0 {
		fmt.Println(dimStyle.Render("no chats yet, run 'chatctl chat' to start one"))
		return nil
	}

	fmt.Printf("%s  %s  %s\n", headerStyle.Render(pad("ID", 36)), headerStyle.Render(pad("TITLE", 30)), headerStyle.Render("UPDATED"))
	for _, c := range chats {
		fmt.Printf("%s  %s  %s\n", pad(c.ID, 36), pad(c.Title, 30), dimStyle.Render(c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

func pad(s string, width int) string {
	if len(s) > width {
		return s[:width-1] + "…"
	}
	return fmt.Sprintf("%-*s", width, s)
}
