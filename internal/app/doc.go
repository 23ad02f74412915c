// Package app composes the domain services into a running application.
//
// The package wires stores, the object store, the URL builder and the
// notification dispatcher into the product, client, user, platform,
// compilation and feature services, and manages the lifecycle of background
// jobs through internal/app/system. Business rules live in the service
// packages under internal/app/services; HTTP concerns live in
// internal/app/httpapi. Both binaries (cmd/server and cmd/tracker) build the
// same Application and mount the router they need.
//
//	internal/app/
//	├── application.go  # wiring and lifecycle
//	├── domain/         # pure data models
//	├── storage/        # store interfaces, mongo and memory implementations
//	├── objectstore/    # signed-URL blob access, s3 and memory
//	├── services/       # business logic
//	├── httpapi/        # routers and handlers
//	├── manifest/       # installer manifest rendering
//	├── urls/           # artifact paths and public URLs
//	├── metrics/        # prometheus registry
//	└── system/         # service lifecycle manager
package app
