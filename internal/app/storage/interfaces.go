// Package storage declares the persistence contracts of both backends.
// Implementations treat single-document operations as atomic; there are no
// cross-document transactions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hangarhq/hangar/internal/app/domain/client"
	"github.com/hangarhq/hangar/internal/app/domain/feature"
	"github.com/hangarhq/hangar/internal/app/domain/platform"
	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
)

// ErrNotFound is returned when no document matches. Services translate it
// into the API error taxonomy.
var ErrNotFound = errors.New("document not found")

// ProductFilter is the typed query used when listing products. Zero values
// mean "no restriction".
type ProductFilter struct {
	// Client restricts results to one owning client.
	Client string
	// Name matches the exact product name.
	Name string
	// Platform keeps only products holding at least one compilation for
	// the platform; listings also trim other platforms' compilations.
	Platform string
	Offset   int
	Limit    int
}

// ProductStore persists the Product aggregate and its embedded
// compilations.
type ProductStore interface {
	CreateProduct(ctx context.Context, p product.Product) (product.Product, error)
	GetProduct(ctx context.Context, id string) (product.Product, error)
	FindProducts(ctx context.Context, filter ProductFilter) ([]product.Product, error)
	// UpdateProduct replaces the stored aggregate (mongoose save()).
	UpdateProduct(ctx context.Context, p product.Product) (product.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// GetProductWithCompilation matches a product owning the compilation,
	// optionally restricted to acknowledged uploads. A product without
	// the entry answers ErrNotFound even when the product itself exists.
	GetProductWithCompilation(ctx context.Context, productID, compilationID string, uploadedOnly bool) (product.Product, error)
	// SetCompilationUploaded flips the matched entry's uploaded flag with
	// a single targeted update (positional $set) and returns the new
	// document state.
	SetCompilationUploaded(ctx context.Context, productID, compilationID string) (product.Product, error)
	// AddSubscription / RemoveSubscription are targeted $push / $pull
	// updates returning the new document state.
	AddSubscription(ctx context.Context, productID, userID string) (product.Product, error)
	RemoveSubscription(ctx context.Context, productID, userID string) (product.Product, error)
	// RenameProductsClient rewrites the client reference on every product
	// of the renamed client.
	RenameProductsClient(ctx context.Context, oldName, newName string) error
}

// ClientStore persists clients.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id string) (client.Client, error)
	GetClientByName(ctx context.Context, name string) (client.Client, error)
	ListClients(ctx context.Context) ([]client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	DeleteUser(ctx context.Context, id string) error
	// RenameUsersClient rewrites the client reference on every user of
	// the renamed client.
	RenameUsersClient(ctx context.Context, oldName, newName string) error
}

// PlatformStore persists the platform catalog.
type PlatformStore interface {
	CreatePlatform(ctx context.Context, p platform.Platform) (platform.Platform, error)
	GetPlatform(ctx context.Context, id string) (platform.Platform, error)
	GetPlatformByName(ctx context.Context, name string) (platform.Platform, error)
	ListPlatforms(ctx context.Context) ([]platform.Platform, error)
	UpdatePlatform(ctx context.Context, p platform.Platform) (platform.Platform, error)
	DeletePlatform(ctx context.Context, id string) error
}

// FeatureFilter is the typed query used by the tracker service.
type FeatureFilter struct {
	BlueprintID string
	// Name matches case-insensitively (uniqueness checks).
	Name string
	// Tags keeps features carrying every listed tag.
	Tags []string
}

// FeatureStore persists tracker features.
type FeatureStore interface {
	CreateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error)
	GetFeature(ctx context.Context, id string) (feature.Feature, error)
	FindFeatures(ctx context.Context, filter FeatureFilter) ([]feature.Feature, error)
	UpdateFeature(ctx context.Context, f feature.Feature) (feature.Feature, error)
	DeleteFeature(ctx context.Context, id string) error
	CountFeatures(ctx context.Context) (int64, error)
}

// StatSnapshot is a point-in-time count of one record type.
type StatSnapshot struct {
	Type  string    `json:"type" bson:"type"`
	Date  time.Time `json:"date" bson:"date"`
	Count int64     `json:"count" bson:"count"`
}

// StatsStore persists periodic count snapshots. RecordStat upserts on the
// (type, date) pair so re-running a collection window is idempotent.
type StatsStore interface {
	RecordStat(ctx context.Context, snapshot StatSnapshot) error
	ListStats(ctx context.Context, statType string, since time.Time) ([]StatSnapshot, error)
}
