package main

import (
	"flag"
	"fmt"
	"strings"
)

// clientConfig is the parsed inspectctl invocation: one request, or one
// event-stream tail.
type clientConfig struct {
	Addr    string
	Method  string
	Isolate string
	Params  map[string]string
	Events  bool
}

type paramFlags map[string]string

func (p paramFlags) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("param must be key=value, got %q", raw)
	}
	p[key] = value
	return nil
}

func parseArgs(args []string) (clientConfig, error) {
	cfg := clientConfig{Params: make(map[string]string)}

	fs := flag.NewFlagSet("inspectctl", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "127.0.0.1:9500", "service port address")
	fs.StringVar(&cfg.Method, "method", "", "method to invoke")
	fs.StringVar(&cfg.Isolate, "isolate", "", "target isolate id; empty targets root scope")
	fs.BoolVar(&cfg.Events, "events", false, "tail the event stream instead of sending a request")
	fs.Var(paramFlags(cfg.Params), "param", "request parameter key=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return clientConfig{}, err
	}
	if !cfg.Events && strings.TrimSpace(cfg.Method) == "" {
		return clientConfig{}, fmt.Errorf("either -method or -events is required")
	}
	return cfg, nil
}
