package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shiptivity/api/internal/app"
	"shiptivity/api/internal/cache"
	"shiptivity/api/internal/config"
	"shiptivity/api/internal/lock"
	"shiptivity/api/internal/search"
	"shiptivity/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromViper(settings)
	ctx := context.Background()

	dataStore, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dataStore.Close()
	log.WithField("dialect", dataStore.Dialect()).Info("database ready")

	opts := []app.Option{app.WithLogger(log.StandardLogger())}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		listings, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return err
		}
		defer listings.Close()
		log.WithField("ttl", cfg.CacheTTL).Info("using redis for listings and the reorder lock")
		opts = append(opts,
			app.WithCache(listings),
			app.WithLocker(lock.NewRedisLock(listings.Client(), lock.DefaultKey, lock.DefaultTTL)),
		)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.StandardLogger())
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewStoreSearch(dataStore), log.StandardLogger())
	defer searchService.Close()
	opts = append(opts, app.WithSearch(searchService))

	service := app.New(cfg, dataStore, opts...)
	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("bootstrap error (will retry on next restart)")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("Shiptivity API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	return nil
}
