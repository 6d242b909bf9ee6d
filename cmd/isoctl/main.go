package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/isoctl/internal/host"
	"github.com/danmuck/isoctl/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to service config.toml")
	flag.Parse()

	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "isoctl: %v\n", err)
		os.Exit(1)
	}
}
