// Package main implements the distribution API server: product catalog,
// compilation lifecycle, and the subscriber notification flow.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/hangarhq/hangar/internal/app"
	"github.com/hangarhq/hangar/internal/app/httpapi"
	"github.com/hangarhq/hangar/internal/app/objectstore"
	objectmemory "github.com/hangarhq/hangar/internal/app/objectstore/memory"
	"github.com/hangarhq/hangar/internal/app/objectstore/s3"
	"github.com/hangarhq/hangar/internal/app/services/notifications"
	"github.com/hangarhq/hangar/internal/app/storage/mongo"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/config"
	"github.com/hangarhq/hangar/internal/logging"
	"github.com/hangarhq/hangar/internal/middleware"
)

const limiterCleanupInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "config/server.yaml", "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Default().WithError(err).Fatal("load configuration")
	}

	log := logging.New("server", cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.Stores{}
	var mongoStore *mongo.Store
	if cfg.Mongo.URI != "" {
		mongoStore, err = mongo.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.WithError(err).Fatal("connect document store")
		}
		stores = app.Stores{
			Products:  mongoStore,
			Clients:   mongoStore,
			Users:     mongoStore,
			Platforms: mongoStore,
			Features:  mongoStore,
			Stats:     mongoStore,
		}
		log.WithField("database", cfg.Mongo.Database).Info("document store connected")
	} else {
		log.Warn("MONGO_URI not set; using in-memory store")
	}

	var blobs objectstore.Store
	if cfg.Storage.Bucket != "" {
		blobs, err = s3.New(ctx, s3.Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UploadTTL:       cfg.Storage.UploadTTL,
			DownloadTTL:     cfg.Storage.DownloadTTL,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("configure object storage")
		}
	} else {
		log.Warn("S3_BUCKET not set; using in-memory object store")
		blobs = objectmemory.New()
	}

	var notifier notifications.Dispatcher
	if cfg.Notifier.Enabled {
		notifier = notifications.NewHTTPDispatcher(cfg.Notifier, urls.NewBuilder(cfg.HTTP.PublicHost), log)
	} else {
		log.Warn("notifier disabled; compilation ack emails will be dropped")
		notifier = notifications.NoopDispatcher{}
	}

	application, err := app.New(stores, app.Options{
		PublicHost: cfg.HTTP.PublicHost,
		Blobs:      blobs,
		Notifier:   notifier,
		Users:      cfg.Users,
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

	router := httpapi.NewRouter(application, log)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware())

	var handler http.Handler = router
	if cfg.Auth.PublicKeyPath != "" {
		publicKey, err := loadPublicKey(cfg.Auth.PublicKeyPath)
		if err != nil {
			log.WithError(err).Fatal("load auth public key")
		}
		auth := middleware.NewAuthMiddleware(publicKey, log, []string{"/health", "/metrics"})
		auth.SkipWhen(publicRequest)
		handler = auth.Handler(handler)
	} else {
		log.Warn("AUTH_PUBLIC_KEY_PATH not set; requests are not authenticated")
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
		log.WithField("addr", cfg.HTTP.Addr).Info("distribution API listening")
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

// publicRequest exempts the routes the native installer protocols fetch
// without forwarding headers, plus public-token downloads. The download
// handler verifies the token itself.
func publicRequest(r *http.Request) bool {
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/plist") {
		return true
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/images/") {
		return true
	}
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/download") &&
		r.URL.Query().Get("publicToken") != "" {
		return true
	}
	// Signup happens before any token exists.
	return r.Method == http.MethodPost && r.URL.Path == "/api/v1/user"
}

func loadPublicKey(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}
