package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"pagepilot/internal/domain"
	"pagepilot/internal/surface"
	"pagepilot/internal/transport"
)

func main() {
	socketPath := os.Getenv("PAGEPILOT_SOCKET")
	if socketPath == "" {
		socketPath = filepath.Join(os.TempDir(), "pagepilot.sock")
	}

	client, err := transport.Dial(socketPath, domain.TargetChatWindow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach coordinator at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	defer client.Close()

	p := tea.NewProgram(surface.NewChat(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat window failed: %v\n", err)
		os.Exit(1)
	}
}
