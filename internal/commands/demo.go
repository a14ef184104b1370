package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/memocache/internal/app"
	"github.com/dotcommander/memocache/internal/catalog"
	"github.com/dotcommander/memocache/internal/output"
	"github.com/dotcommander/memocache/pkg/cache"
	"github.com/dotcommander/memocache/pkg/ratelimit"
)

const demoProducts = 20

// NewDemoCmd creates the demo command: a self-contained workload that fronts
// a sqlite product catalog with the cache and admits requests through the
// rate limiter, then reports cache stats, alerts, and per-client limiter
// decisions as JSON.
func NewDemoCmd() *cobra.Command {
	var (
		requests  int
		dbPath    string
		failEvery int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an in-process cache + rate limiter workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), requests, dbPath, failEvery)
		},
	}

	cmd.Flags().IntVar(&requests, "requests", 200, "Number of simulated requests")
	cmd.Flags().StringVar(&dbPath, "db", "", "Catalog database path (default: temp file)")
	cmd.Flags().IntVar(&failEvery, "fail-every", 3, "The flaky client succeeds only on every Nth request (0 makes it always succeed)")

	return cmd
}

type demoReport struct {
	Served      int                           `json:"served"`
	Failed      int                           `json:"failed"`
	Limited     int                           `json:"limited"`
	Interrupted bool                          `json:"interrupted,omitempty"`
	Stats       cache.Stats                   `json:"cache_stats"`
	Alerts      []cache.Alert                 `json:"alerts,omitempty"`
	Clients     map[string]ratelimit.Decision `json:"clients"`
}

func runDemo(ctx context.Context, requests int, dbPath string, failEvery int) error {
	// SIGINT/SIGTERM cancel the workload; the deferred Destroy is the
	// shutdown hook that stops the janitor.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := app.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "memocache-demo.db")
	}
	db, err := catalog.InitDB(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := catalog.Seed(ctx, db, demoProducts); err != nil {
		return err
	}

	store := cache.New(settings.CacheConfig())
	defer store.Destroy()

	limiterCfg := settings.LimiterConfig()
	if !limiterCfg.Backoff.Enabled {
		// The demo exists to show the blocking path; turn it on unless the
		// config file says otherwise.
		limiterCfg.Backoff.Enabled = true
	}
	limiter := ratelimit.New(store, limiterCfg)

	// "flaky" trips the backoff path; the others exercise the happy path.
	clients := []string{"alice", "bob", "flaky"}
	report := demoReport{Clients: make(map[string]ratelimit.Decision)}

	flakyRequests := 0
	for i := 0; i < requests; i++ {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		client := clients[i%len(clients)]
		key := limiter.Key(client)

		if d := limiter.Check(key); d.Limited {
			report.Limited++
			continue
		}

		var reqErr error
		if client == "flaky" {
			flakyRequests++
		}
		// The flaky client fails in streaks (succeeding only every Nth
		// request), which is what drives consecutive-failure backoff.
		if client == "flaky" && failEvery > 0 && flakyRequests%failEvery != 0 {
			reqErr = errors.New("simulated upstream failure")
		} else {
			sku := fmt.Sprintf("sku-%d", i%demoProducts)
			_, reqErr = store.GetOrCompute(ctx, "product:"+sku, func(ctx context.Context) (any, error) {
				return catalog.GetProductBySKU(ctx, db, sku)
			})
		}

		if err := limiter.Record(key, reqErr == nil); err != nil {
			return fmt.Errorf("failed to record request: %w", err)
		}

		if reqErr != nil {
			report.Failed++
		} else {
			report.Served++
		}
	}

	for _, c := range clients {
		report.Clients[c] = limiter.Check(limiter.Key(c))
	}
	report.Stats = store.Stats()
	report.Alerts = store.Alerts()

	slog.Info("demo finished",
		"served", report.Served, "failed", report.Failed, "limited", report.Limited)
	return output.PrintSuccess(report)
}
