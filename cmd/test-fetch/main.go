package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"homework-bot/internal/config"
	"homework-bot/internal/practicum"
	"homework-bot/internal/watcher"
	"homework-bot/pkg/logger"
)

var from = flag.Int64("from", 0, "unix timestamp to fetch changes from")

func main() {
	flag.Parse()
	logger.Init("debug", nil)

	cfg := config.PracticumFromEnv()
	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: PRACTICUM_TOKEN environment variable is required")
		os.Exit(1)
	}

	fmt.Println("=== Testing Homework API ===")
	fmt.Println()

	client := practicum.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := client.Fetch(ctx, *from)
	if err != nil {
		logger.Error("Fetch error", logger.Err(err))
		os.Exit(1)
	}

	fmt.Printf("✓ Fetched %d homeworks (current_date: %d)\n", len(resp.Homeworks), resp.CurrentDate)
	for i, hw := range resp.Homeworks {
		message, err := watcher.FormatStatus(&hw)
		if err != nil {
			fmt.Printf("  %d: %s [%s] format error: %v\n", i+1, hw.HomeworkName, hw.Status, err)
			continue
		}
		fmt.Printf("  %d: %s\n", i+1, message)
	}

	fmt.Println()
	fmt.Println("=== Test Complete ===")
}
