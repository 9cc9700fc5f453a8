package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"relaybot/internal/app"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, *cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "relaybot:", err)
		os.Exit(1)
	}
}
