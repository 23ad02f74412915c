package app

import (
	"context"
	"fmt"

	"github.com/hangarhq/hangar/internal/app/objectstore"
	objectmemory "github.com/hangarhq/hangar/internal/app/objectstore/memory"
	"github.com/hangarhq/hangar/internal/app/services/clients"
	"github.com/hangarhq/hangar/internal/app/services/compilations"
	"github.com/hangarhq/hangar/internal/app/services/features"
	"github.com/hangarhq/hangar/internal/app/services/notifications"
	"github.com/hangarhq/hangar/internal/app/services/platforms"
	"github.com/hangarhq/hangar/internal/app/services/products"
	"github.com/hangarhq/hangar/internal/app/services/stats"
	"github.com/hangarhq/hangar/internal/app/services/users"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/app/storage/memory"
	"github.com/hangarhq/hangar/internal/app/system"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Products  storage.ProductStore
	Clients   storage.ClientStore
	Users     storage.UserStore
	Platforms storage.PlatformStore
	Features  storage.FeatureStore
	Stats     storage.StatsStore
}

// Options carries the non-store dependencies. Nil fields fall back to
// development defaults: an in-memory blob store and a dropped notifier.
type Options struct {
	PublicHost string
	Blobs      objectstore.Store
	Notifier   notifications.Dispatcher
	Users      users.Config
	Stats      stats.Config
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	URLs         *urls.Builder
	Products     *products.Service
	Clients      *clients.Service
	Users        *users.Service
	Platforms    *platforms.Service
	Compilations *compilations.Service
	Features     *features.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.Default()
	}

	mem := memory.New()
	if stores.Products == nil {
		stores.Products = mem
	}
	if stores.Clients == nil {
		stores.Clients = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Platforms == nil {
		stores.Platforms = mem
	}
	if stores.Features == nil {
		stores.Features = mem
	}
	if stores.Stats == nil {
		stores.Stats = mem
	}
	if opts.Blobs == nil {
		opts.Blobs = objectmemory.New()
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NoopDispatcher{}
	}
	if opts.PublicHost == "" {
		opts.PublicHost = "http://localhost:8080"
	}

	manager := system.NewManager()
	builder := urls.NewBuilder(opts.PublicHost)

	productService := products.NewService(stores.Products, builder, log)
	clientService := clients.NewService(stores.Clients, stores.Users, stores.Products, log)
	userService := users.NewService(opts.Users, stores.Users, stores.Clients, stores.Products, opts.Notifier, log)
	platformService := platforms.NewService(stores.Platforms, log)
	compilationService := compilations.NewService(stores.Products, opts.Blobs, opts.Notifier, builder, log)
	featureService := features.NewService(stores.Features, log)

	reporter := stats.NewReporter(opts.Stats, featureService, stores.Stats, log)
	if err := manager.Register(reporter); err != nil {
		return nil, fmt.Errorf("register %s: %w", reporter.Name(), err)
	}

	return &Application{
		manager:      manager,
		log:          log,
		URLs:         builder,
		Products:     productService,
		Clients:      clientService,
		Users:        userService,
		Platforms:    platformService,
		Compilations: compilationService,
		Features:     featureService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
