package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/jwebster45206/token-orientation/internal/services/events"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
	Step       float64 // Grid units per arrow key press
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    30 * time.Second,
		Step:       1,
	}

	api := &apiClient{
		baseURL: cfg.APIBaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}

	if !api.testConnection() {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokenArg := getEnv("TOKEN_ID", "")
	if len(os.Args) > 1 {
		tokenArg = os.Args[1]
	}

	var tokenID uuid.UUID
	if tokenArg != "" {
		id, err := uuid.Parse(tokenArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid token ID %q: %v\n", tokenArg, err)
			os.Exit(1)
		}
		tokenID = id
	} else {
		tok, err := api.createDemoToken(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create demo token: %v\n", err)
			os.Exit(1)
		}
		tokenID = tok.ID
		fmt.Printf("Created demo token %s\n", tokenID)
	}

	eventChan := make(chan events.Event, 32)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- api.listenToSSE(ctx, tokenID, eventChan)
		close(eventChan)
	}()

	p := tea.NewProgram(NewConsoleUI(cfg, api, tokenID, eventChan, streamErr),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
