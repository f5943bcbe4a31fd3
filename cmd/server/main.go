package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aerotool/internal/app"
	"aerotool/internal/config"
)

func main() {
	cfg := config.Load()

	role := flag.String("role", cfg.Role, "process role: inference, persistence or all")
	flag.Parse()
	cfg.Role = *role

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
