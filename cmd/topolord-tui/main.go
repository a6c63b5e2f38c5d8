package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/topolord/pkg/client"
	"github.com/rmax-ai/topolord/pkg/navigator"
)

const defaultDaemonURL = "http://127.0.0.1:8091"

func daemonURL(args []string) (string, error) {
	fs := flag.NewFlagSet("topolord-tui", flag.ContinueOnError)
	url := fs.String("url", "", "topolord-d endpoint (env TOPOLORD_URL)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	switch {
	case *url != "":
		return *url, nil
	case os.Getenv("TOPOLORD_URL") != "":
		return os.Getenv("TOPOLORD_URL"), nil
	}
	return defaultDaemonURL, nil
}

func main() {
	url, err := daemonURL(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	c := client.NewClient(url)
	session := navigator.NewSession(c)

	p := tea.NewProgram(newModel(session, c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
