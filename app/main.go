package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"teamcal-comb/app/api"
	"teamcal-comb/app/calendar"
	"teamcal-comb/app/cfg"
	"teamcal-comb/app/database"
	"teamcal-comb/app/logging"
	"teamcal-comb/app/session"
)

const sessionMaxAge = 30 * time.Minute

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logging.Setup(appCfg.Debug)

	slog.Info("Starting teamcal-comb server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	attendanceRepo := database.NewAttendanceRepository(db, time.Duration(appCfg.CacheTTL)*time.Second)
	if purged, err := attendanceRepo.PurgeStale(); err != nil {
		slog.Warn("Failed to purge stale cache entries", "error", err)
	} else if purged > 0 {
		slog.Info("Purged stale cache entries", "count", purged)
	}

	requestTimeout := time.Duration(appCfg.RequestTimeout) * time.Second
	provider := session.NewProvider(appCfg.SiteBaseUrl, appCfg.UserAgent, requestTimeout)
	fetcher := calendar.NewFetcher(appCfg.UserAgent, requestTimeout)
	sessions := api.NewSessionCache(sessionMaxAge)

	handler := api.NewHandler(provider, sessions, fetcher, attendanceRepo)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // a large feed classifies many event pages sequentially
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		slog.Info("Calendar endpoint", "path", "/calendar/<ICAL_TOKEN>?u=<USER_ID>")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
