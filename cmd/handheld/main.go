package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alliance-Chemical/order-management-sub001/internal/config"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/client"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/queue"
)

// handheld replays step submissions that a floor terminal queued while
// disconnected. It is run when the terminal regains connectivity, either by
// hand or from a network-up hook.
func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.LoadHandheld()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := queue.OpenBadgerStore(cfg.Queue.DataDir)
	if err != nil {
		slog.Error("failed to open offline queue", "error", err, "dir", cfg.Queue.DataDir)
		os.Exit(1)
	}
	defer store.Close()

	api := client.New(cfg.ServerURL, cfg.Token)
	offline := queue.NewOfflineQueue(store, api)
	offline.OnParked = func(item queue.QueuedSubmission, err error) {
		slog.Warn("queued submission needs manual attention",
			"run_id", item.RunID, "step_id", item.Request.StepID, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	depth, err := offline.Depth(ctx)
	if err != nil {
		slog.Error("failed to read queue depth", "error", err)
		os.Exit(1)
	}
	if depth == 0 {
		slog.Info("offline queue is empty, nothing to replay")
		return
	}

	slog.Info("replaying queued submissions", "pending", depth, "server", cfg.ServerURL)
	report, err := offline.Drain(ctx)
	if err != nil {
		slog.Error("drain failed", "error", err)
		os.Exit(1)
	}

	slog.Info("drain finished",
		"delivered", report.Delivered,
		"parked", report.Parked,
		"remaining", report.Remaining,
		"went_offline", report.WentOffline)
	if report.WentOffline {
		os.Exit(1)
	}
}
