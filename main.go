package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"now-playing-api-go/cache"
	"now-playing-api-go/config"
	"now-playing-api-go/logcolors"
	"now-playing-api-go/services/notifier"
	"now-playing-api-go/stats"

	log "github.com/sirupsen/logrus"
)

var conf = config.Get()

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func main() {
	cfg := conf.Configuration

	notifiers := setupNotifiers()
	startAlerting(notifiers)

	store, err := cache.NewPersistentStore(cfg.CacheDBPath)
	if err != nil {
		notifier.PublishServerStartupFailed("cache", err)
		log.Fatalf("%s Failed to open cache store: %v", logcolors.LogCacheInit, err)
	}
	defer store.Close()

	// tokens and lyrics from a previous run are not trusted
	if err := store.Reset(); err != nil {
		notifier.PublishServerStartupFailed("cache", err)
		log.Fatalf("%s Failed to reset cache store: %v", logcolors.LogCacheInit, err)
	}

	statsStore, err := stats.NewStore(cfg.StatsDBPath, stats.Get())
	if err != nil {
		log.Warnf("%s Stats persistence disabled: %v", logcolors.LogStats, err)
	} else {
		if err := statsStore.Load(); err != nil {
			log.Warnf("%s %v", logcolors.LogStats, err)
		}
		statsStore.StartAutoSave(time.Duration(cfg.StatsSaveIntervalSecs) * time.Second)
		defer statsStore.Close()
	}

	logStartup(conf)

	server := &http.Server{
		Addr:              listenAddr(cfg.Port),
		Handler:           newHandler(conf, newApp(conf, store, notifiers)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("%s Listening on port %s", logcolors.LogServer, cfg.Port)
		notifier.PublishServerStarted(cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			notifier.PublishServerStartupFailed("http", err)
			log.Errorf("%s %v", logcolors.LogServer, err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s Shutdown: %v", logcolors.LogServer, err)
	}
}
