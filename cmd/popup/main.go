package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"pagepilot/internal/surface"
	"pagepilot/internal/transport"
)

func main() {
	socketPath := os.Getenv("PAGEPILOT_SOCKET")
	if socketPath == "" {
		socketPath = filepath.Join(os.TempDir(), "pagepilot.sock")
	}

	client, err := transport.Dial(socketPath, "popup")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach coordinator at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	defer client.Close()

	p := tea.NewProgram(surface.NewPopup(client))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "popup failed: %v\n", err)
		os.Exit(1)
	}
}
