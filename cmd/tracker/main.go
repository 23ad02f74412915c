// Package main implements the feature-tracking API server.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/hangarhq/hangar/internal/app"
	"github.com/hangarhq/hangar/internal/app/httpapi"
	"github.com/hangarhq/hangar/internal/app/storage/mongo"
	"github.com/hangarhq/hangar/internal/config"
	"github.com/hangarhq/hangar/internal/logging"
	"github.com/hangarhq/hangar/internal/middleware"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "config/tracker.yaml", "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Default().WithError(err).Fatal("load configuration")
	}

	log := logging.New("tracker", cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.Stores{}
	var mongoStore *mongo.Store
	if cfg.Mongo.URI != "" {
		mongoStore, err = mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.WithError(err).Fatal("connect document store")
		}
		stores.Features = mongoStore
		stores.Stats = mongoStore
		log.WithField("database", cfg.Mongo.Database).Info("document store connected")
	} else {
		log.Warn("MONGO_URI not set; using in-memory store")
	}

	application, err := app.New(stores, app.Options{
		PublicHost: cfg.HTTP.PublicHost,
		Stats:      cfg.Stats,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("build application")
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("start application")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer stopCancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Error("stop application")
		}
		if mongoStore != nil {
			if err := mongoStore.Close(stopCtx); err != nil {
				log.WithError(err).Error("close document store")
			}
		}
	}()

	router := httpapi.NewTrackerRouter(application.Features, log)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware())

	var handler http.Handler = router
	if cfg.Auth.PublicKeyPath != "" {
		publicKey, err := loadPublicKey(cfg.Auth.PublicKeyPath)
		if err != nil {
			log.WithError(err).Fatal("load auth public key")
		}
		serviceAuth := middleware.NewServiceAuthMiddleware(middleware.ServiceAuthConfig{
			PublicKey:       publicKey,
			Logger:          log,
			AllowedServices: cfg.Auth.AllowedServices,
			SkipPaths:       []string{"/health", "/metrics"},
		})
		handler = serviceAuth.Handler(handler)
		log.WithField("services", cfg.Auth.AllowedServices).Info("service authentication enabled")
	}

	limiter := middleware.NewRateLimiter(int(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, log)
	limiter.StartCleanup(limiterCleanupInterval)
	handler = limiter.Handler(handler)
	handler = middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler(handler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("tracker API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("serve")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown server")
	}
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(pem)
}
