package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Alliance-Chemical/order-management-sub001/internal/auth"
	"github.com/Alliance-Chemical/order-management-sub001/internal/config"
	"github.com/Alliance-Chemical/order-management-sub001/internal/database"
	"github.com/Alliance-Chemical/order-management-sub001/internal/evidence"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/router"
	"github.com/Alliance-Chemical/order-management-sub001/internal/inspection/service"
	"github.com/Alliance-Chemical/order-management-sub001/internal/middleware"
	"github.com/Alliance-Chemical/order-management-sub001/internal/orders"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	storage, err := evidence.NewStorageFromConfig(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize evidence storage", "error", err)
		os.Exit(1)
	}
	evidenceService := evidence.NewEvidenceService(storage)
	evidenceHandler := evidence.NewHandler(evidenceService)

	repo := service.NewGormRunRepository(db.DB)
	sm := service.NewRunStateMachine()
	runService := service.NewRunService(repo, sm, db.DB)
	submissionService := service.NewSubmissionService(repo, sm, db.DB)

	var platform router.LineItemSource
	if cfg.Platform.BaseURL != "" {
		platform = orders.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey)
	}
	runRouter := router.NewRunRouter(runService, submissionService, platform)

	authService := auth.NewAuthService(db.DB)
	tokenExtractor := auth.NewTokenExtractor()
	withAuth := auth.Middleware(authService, tokenExtractor)
	requireSupervisor := auth.RequireSupervisor(authService, tokenExtractor)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.Handle("POST /api/orders/{orderID}/inspection/runs", withAuth(http.HandlerFunc(runRouter.HandleCreateRuns)))
	mux.Handle("GET /api/orders/{orderID}/inspection/runs", withAuth(http.HandlerFunc(runRouter.HandleGetRuns)))
	mux.Handle("GET /api/orders/{orderID}/inspection/state", withAuth(http.HandlerFunc(runRouter.HandleGetModuleState)))
	mux.Handle("POST /api/orders/{orderID}/inspection/runs/{runID}/steps", withAuth(http.HandlerFunc(runRouter.HandleSubmitStep)))
	mux.Handle("POST /api/orders/{orderID}/inspection/runs/{runID}/qr", withAuth(http.HandlerFunc(runRouter.HandleBindQR)))
	mux.Handle("POST /api/orders/{orderID}/inspection/runs/{runID}/reverify", requireSupervisor(http.HandlerFunc(runRouter.HandleFlagReverify)))
	mux.Handle("POST /api/orders/{orderID}/inspection/runs/{runID}/resume", requireSupervisor(http.HandlerFunc(runRouter.HandleResumeRun)))
	mux.Handle("GET /api/orders/{orderID}/inspection/activity", withAuth(http.HandlerFunc(runRouter.HandleListActivities)))

	mux.Handle("POST /api/evidence", withAuth(http.HandlerFunc(evidenceHandler.HandleUpload)))
	mux.HandleFunc("GET /api/evidence/{id}", evidenceHandler.HandleDownload)
	mux.Handle("DELETE /api/evidence/{id}", requireSupervisor(http.HandlerFunc(evidenceHandler.HandleDelete)))

	handler := middleware.CORS(cfg.CORS)(mux)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
