package main

import (
	"os"

	"github.com/parley-ai/chat-platform/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
