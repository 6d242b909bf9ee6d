package main

import (
	"fmt"
	"os"

	"github.com/danmuck/isoctl/internal/logging"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspectctl: %v\n", err)
		os.Exit(2)
	}

	logging.ConfigureRuntime()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "inspectctl: %v\n", err)
		os.Exit(1)
	}
}
