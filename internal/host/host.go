// Package host is the embedder side of the service layer: it boots
// isolates, wires their heaps, registers external callbacks at both
// scopes, and runs the collector ticks that exercise id invalidation.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/isoctl/internal/config"
	"github.com/danmuck/isoctl/internal/isolate"
	"github.com/danmuck/isoctl/internal/observability"
	"github.com/danmuck/isoctl/internal/server"
	"github.com/danmuck/isoctl/internal/service"
)

const Version = "0.1.0"

const defaultCollectEvery = 5 * time.Second

// Run boots the runtime host and serves until ctx is canceled.
func Run(ctx context.Context, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadServiceConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := observability.InitLogger(cfg.Name)

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	isolates := isolate.NewRegistry()
	notifier := service.NewNotifier(cfg.EventQueueDepth)
	disp := service.NewDispatcher(service.Config{
		Version:          Version,
		RootRingCapacity: cfg.RingCapacity,
		RootPolicy:       policy,
	}, isolates, notifier, logger)

	registerEmbedderCallbacks(disp, isolates)

	entries := cfg.Isolates
	if len(entries) == 0 {
		entries = []config.IsolateConfig{
			{ID: "iso-alpha", Name: "alpha", RingCapacity: cfg.RingCapacity},
			{ID: "iso-beta", Name: "beta", RingCapacity: cfg.RingCapacity},
		}
	}
	for _, entry := range entries {
		iso := isolate.New(entry.ID, entry.Name, entry.RingCapacity, policy)
		seedDemoHeap(iso)
		if err := isolates.Register(iso); err != nil {
			return fmt.Errorf("boot isolate %s: %w", entry.ID, err)
		}
		every := defaultCollectEvery
		if entry.CollectEveryMS > 0 {
			every = time.Duration(entry.CollectEveryMS) * time.Millisecond
		}
		go collectLoop(ctx, iso, every)
		log.Info().Str("isolate", iso.ID()).Str("name", iso.Name()).
			Int("ring_capacity", iso.Ring().Capacity()).Msg("isolate booted")
	}

	srv := server.New(cfg, disp, Version)
	err = srv.Run(ctx)

	for _, iso := range isolates.List() {
		iso.Collapse()
		isolates.Remove(iso.ID())
	}
	return err
}

// collectLoop periodically collects the isolate's heap, forwarding or
// clearing ring entries through the safepointed visit hook.
func collectLoop(ctx context.Context, iso *isolate.Isolate, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !iso.Live() {
				return
			}
			stats := iso.Collect()
			observability.SetRingLive(iso.ID(), iso.Ring().Live())
			log.Debug().Str("isolate", iso.ID()).
				Int("live", stats.Live).Int("reclaimed", stats.Reclaimed).
				Msg("collection pass")
		}
	}
}

// registerEmbedderCallbacks installs the host's external handlers. This
// runs once at startup, before any request traffic.
func registerEmbedderCallbacks(disp *service.Dispatcher, isolates *isolate.Registry) {
	started := time.Now()
	disp.RegisterRootCallback("embedder.uptime",
		func(_ string, _ map[string]string, userData any) (any, error) {
			since, _ := userData.(time.Time)
			return map[string]string{"uptime": time.Since(since).String()}, nil
		}, started)

	disp.RegisterIsolateCallback("embedder.heapHint",
		func(_ string, params map[string]string, userData any) (any, error) {
			registry, _ := userData.(*isolate.Registry)
			iso, ok := registry.Lookup(params["isolate"])
			if !ok {
				return nil, fmt.Errorf("isolate %q not running", params["isolate"])
			}
			return map[string]any{
				"heapSize": iso.Heap().Size(),
				"classes":  iso.Heap().Classes(),
			}, nil
		}, isolates)
}

// seedDemoHeap gives a freshly booted isolate something worth inspecting:
// a small object graph with roots grouped into two libraries, plus
// floating garbage so collection passes visibly reclaim.
func seedDemoHeap(iso *isolate.Isolate) {
	h := iso.Heap()

	cfgObj := h.Alloc("Config", "demo")
	endpoint := h.Alloc("String", "localhost:9500")
	retries := h.Alloc("Int", "3")
	_ = h.SetField(cfgObj, "endpoint", endpoint)
	_ = h.SetField(cfgObj, "retries", retries)

	list := h.Alloc("List", "")
	first := h.Alloc("String", "alpha")
	second := h.Alloc("String", "beta")
	_ = h.SetField(list, "0", first)
	_ = h.SetField(list, "1", second)

	// Unrooted, reclaimed on the first pass.
	h.Alloc("String", "garbage")

	_ = h.SetRoot("main.config", cfgObj)
	_ = h.SetRoot("main.items", list)

	iso.AddLibrary(isolate.Library{Name: "core", Roots: []string{"main.items"}})
	iso.AddLibrary(isolate.Library{Name: "app/main", Roots: []string{"main.config"}})
}
