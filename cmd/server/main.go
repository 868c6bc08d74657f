package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fuellog-sync-service/internal/api"
	"fuellog-sync-service/internal/config"
	"fuellog-sync-service/internal/logger"
	"fuellog-sync-service/internal/remote"
	"fuellog-sync-service/internal/store"
	syncpkg "fuellog-sync-service/internal/sync"
)

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting fuel log sync service")

	queueStore, err := store.NewFromConfig(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to init pending queue store", zap.Error(err))
	}
	defer queueStore.Close()

	remoteClient := remote.NewHTTPClient(remote.HTTPClientOptions{
		BaseURL:   cfg.Remote.BaseURL,
		AuthToken: cfg.Remote.AuthToken,
		UserAgent: cfg.Remote.UserAgent,
		HTTPClient: &http.Client{
			Timeout: cfg.Remote.GetTimeout(),
		},
	})

	detector := syncpkg.NewDetector(remoteClient, cfg.Sync.ConflictPageSize)
	engine := syncpkg.NewEngine(queueStore, remoteClient, detector, syncpkg.RetryPolicy{
		MaxRetries: cfg.Sync.MaxRetries,
		BaseDelay:  cfg.Sync.GetBaseDelay(),
		MaxDelay:   cfg.Sync.GetMaxDelay(),
	})

	hub := api.NewHub()
	engine.SetNotifier(hub)

	tracker := syncpkg.NewStatusTracker(engine, true)

	probeCtx, stopProbe := context.WithCancel(context.Background())
	defer stopProbe()
	go tracker.StartProbing(probeCtx, remoteClient, cfg.Scheduler.GetProbeInterval())

	scheduler := syncpkg.NewScheduler(cfg.Scheduler, engine, tracker)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(cfg.Server, queueStore, engine, tracker, hub)
	router := handler.Routes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Shutdown failed", zap.Error(err))
	}
}
