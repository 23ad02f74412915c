// Package compilations owns the build-artifact lifecycle: creation, upload
// authorization, acknowledgment, retrieval and removal of versioned builds
// embedded in a product. It keeps the artifact metadata in the document
// store consistent with the binary object held in blob storage.
package compilations

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/manifest"
	"github.com/hangarhq/hangar/internal/app/metrics"
	"github.com/hangarhq/hangar/internal/app/objectstore"
	"github.com/hangarhq/hangar/internal/app/services/notifications"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// ErrNotifyFailed marks an acknowledgment whose state change committed but
// whose subscriber notification could not be delivered. Callers treat it as
// a warning, not as a failure of the acknowledgment itself.
var ErrNotifyFailed = stderrors.New("notification dispatch failed")

// Service coordinates compilation state across the document store, the
// object store and the notification gateway.
type Service struct {
	products storage.ProductStore
	blobs    objectstore.Store
	notifier notifications.Dispatcher
	urls     *urls.Builder
	logger   *logging.Logger
	clock    func() time.Time
}

// NewService creates the compilation lifecycle service.
func NewService(products storage.ProductStore, blobs objectstore.Store, notifier notifications.Dispatcher, builder *urls.Builder, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		products: products,
		blobs:    blobs,
		notifier: notifier,
		urls:     builder,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is the caller-supplied portion of a new compilation.
type CreateInput struct {
	Version         string `json:"version"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	Environment     string `json:"environment"`
	Public          bool   `json:"public"`
	Permission      string `json:"permission"`
	BundleID        string `json:"bundleId"`
	Filename        string `json:"filename"`
}

func (in CreateInput) validate() error {
	switch {
	case in.Version == "":
		return errors.BadRequest("version is required")
	case in.Platform == "":
		return errors.BadRequest("platform is required")
	case in.PlatformVersion == "":
		return errors.BadRequest("platformVersion is required")
	case in.Environment == "":
		return errors.BadRequest("environment is required")
	}
	return nil
}

// CreateResult carries the identifier of the new compilation and the signed
// URL the caller uploads the binary to.
type CreateResult struct {
	CompilationID string `json:"compilationId"`
	URL           string `json:"url"`
}

// Plist is a rendered installer manifest ready to serve.
type Plist struct {
	FileName string
	Data     []byte
}

// List returns a product's compilations ordered newest upload time first.
func (s *Service) List(ctx context.Context, productID string) ([]product.Compilation, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("Product not found")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	compilations := append([]product.Compilation(nil), p.Compilations...)
	sort.SliceStable(compilations, func(i, j int) bool {
		return compilations[i].UploadedAt.After(compilations[j].UploadedAt)
	})
	for i := range compilations {
		s.urls.DecorateCompilation(p, &compilations[i])
	}
	return compilations, nil
}

// Create registers a new compilation on the product and returns a signed
// upload URL for the binary. The product-existence and version-uniqueness
// preconditions are checked as independent reads; a race between two
// concurrent creates of the same version can slip through, and the document
// store's write order then decides which one persists.
func (s *Service) Create(ctx context.Context, productID string, in CreateInput) (CreateResult, error) {
	result, err := s.create(ctx, productID, in)
	metrics.RecordCompilationOp("create", err)
	return result, err
}

func (s *Service) create(ctx context.Context, productID string, in CreateInput) (CreateResult, error) {
	if err := in.validate(); err != nil {
		return CreateResult{}, err
	}

	var found product.Product
	key := product.UniqueKey{
		Platform:        in.Platform,
		PlatformVersion: in.PlatformVersion,
		Version:         in.Version,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.products.GetProduct(gctx, productID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("Product not found")
			}
			return fmt.Errorf("get product: %w", err)
		}
		found = p
		return nil
	})
	g.Go(func() error {
		p, err := s.products.GetProduct(gctx, productID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				// Existence is reported by the other check.
				return nil
			}
			return fmt.Errorf("check compilation uniqueness: %w", err)
		}
		if p.HasKey(key) {
			return errors.Conflict("A compilation with the provided version and platform already exists")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return CreateResult{}, err
	}

	c := product.Compilation{
		ID:              uuid.NewString(),
		Version:         in.Version,
		Platform:        in.Platform,
		PlatformVersion: in.PlatformVersion,
		Environment:     in.Environment,
		Public:          in.Public,
		Permission:      in.Permission,
		BundleID:        in.BundleID,
		Filename:        in.Filename,
		PublicToken:     uuid.NewString(),
		UploadedAt:      s.clock(),
	}
	c.FilePath = urls.BuildFilePath(found, c)

	signed, err := s.blobs.CreateUpload(ctx, objectstore.UploadRequest{
		File:   c.FilePath,
		Public: c.Public,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create upload destination: %w", err)
	}

	found.AppendCompilation(c)
	if _, err := s.products.UpdateProduct(ctx, found); err != nil {
		// The metadata never persisted. If the caller already pushed the
		// binary through the signed URL, an orphaned object would remain,
		// so remove it when present.
		s.cleanupOrphan(ctx, c.FilePath)
		return CreateResult{}, errors.BadRequest("Could not create compilation")
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product":     found.ID,
		"compilation": c.ID,
		"platform":    c.Platform,
		"version":     c.Version,
	}).Info("compilation created")

	return CreateResult{CompilationID: c.ID, URL: signed.URL}, nil
}

func (s *Service) cleanupOrphan(ctx context.Context, file string) {
	exists, err := s.blobs.FileExists(ctx, file)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("file", file).
			Warn("orphan check failed after persist failure")
		return
	}
	if !exists {
		return
	}
	if err := s.blobs.RemoveFile(ctx, file); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("file", file).
			Warn("orphaned object cleanup failed")
	}
}

// Delete removes the compilation's binary and then its metadata entry. When
// blob removal fails the metadata is left untouched.
func (s *Service) Delete(ctx context.Context, productID, compilationID string) (product.Product, error) {
	p, err := s.delete(ctx, productID, compilationID)
	metrics.RecordCompilationOp("delete", err)
	return p, err
}

func (s *Service) delete(ctx context.Context, productID, compilationID string) (product.Product, error) {
	p, c, err := s.withCompilation(ctx, productID, compilationID, false)
	if err != nil {
		return product.Product{}, err
	}

	if err := s.blobs.RemoveFile(ctx, c.FilePath); err != nil {
		return product.Product{}, fmt.Errorf("remove object %s: %w", c.FilePath, err)
	}

	p.RemoveCompilation(compilationID)
	updated, err := s.products.UpdateProduct(ctx, p)
	if err != nil {
		return product.Product{}, fmt.Errorf("persist product: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product":     productID,
		"compilation": compilationID,
	}).Info("compilation deleted")

	s.urls.DecorateProduct(&updated)
	return updated, nil
}

// Update re-issues a signed upload URL for the compilation's existing
// storage key without changing any stored metadata. Used to retry a failed
// or stale binary transfer.
func (s *Service) Update(ctx context.Context, productID, compilationID string) (objectstore.SignedURL, error) {
	signed, err := s.update(ctx, productID, compilationID)
	metrics.RecordCompilationOp("update", err)
	return signed, err
}

func (s *Service) update(ctx context.Context, productID, compilationID string) (objectstore.SignedURL, error) {
	_, c, err := s.withCompilation(ctx, productID, compilationID, false)
	if err != nil {
		return objectstore.SignedURL{}, err
	}

	signed, err := s.blobs.CreateUpload(ctx, objectstore.UploadRequest{
		File:   c.FilePath,
		Public: c.Public,
	})
	if err != nil {
		return objectstore.SignedURL{}, fmt.Errorf("create upload destination: %w", err)
	}
	return signed, nil
}

// Download resolves a download URL for an uploaded compilation. iOS builds
// resolve to the manifest endpoint because native installation fetches an
// installer manifest first; other platforms get a signed direct URL.
func (s *Service) Download(ctx context.Context, productID, compilationID string) (objectstore.SignedURL, error) {
	signed, err := s.download(ctx, productID, compilationID)
	metrics.RecordCompilationOp("download", err)
	return signed, err
}

func (s *Service) download(ctx context.Context, productID, compilationID string) (objectstore.SignedURL, error) {
	p, c, err := s.withCompilation(ctx, productID, compilationID, true)
	if err != nil {
		return objectstore.SignedURL{}, err
	}

	metrics.RecordDownloadIssued(c.Platform)

	if c.IsIOS() {
		return objectstore.SignedURL{URL: s.urls.PlistURL(p, c)}, nil
	}

	signed, err := s.blobs.GetDownloadURL(ctx, c.FilePath)
	if err != nil {
		return objectstore.SignedURL{}, fmt.Errorf("sign download url: %w", err)
	}
	return signed, nil
}

// UploadAck marks the compilation as uploaded and notifies every current
// subscriber. The flag flip is a targeted single-document update so that
// concurrent acknowledgments of different compilations cannot overwrite
// each other. A failed notification does not roll the flag back; the
// returned error wraps ErrNotifyFailed so callers can treat it as a warning.
func (s *Service) UploadAck(ctx context.Context, productID, compilationID string) (product.Product, error) {
	p, err := s.uploadAck(ctx, productID, compilationID)
	metrics.RecordCompilationOp("uploadAck", err)
	return p, err
}

func (s *Service) uploadAck(ctx context.Context, productID, compilationID string) (product.Product, error) {
	p, err := s.products.SetCompilationUploaded(ctx, productID, compilationID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Compilation not found")
		}
		return product.Product{}, fmt.Errorf("mark compilation uploaded: %w", err)
	}

	c, ok := p.Compilation(compilationID)
	if !ok {
		return product.Product{}, errors.NotFound("Compilation not found")
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product":     productID,
		"compilation": compilationID,
	}).Info("compilation upload acknowledged")

	s.urls.DecorateProduct(&p)

	identities := append([]string(nil), p.Subscriptions...)
	if err := s.notifier.SendCompilationReady(ctx, identities, p, c); err != nil {
		metrics.RecordNotificationFailure()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"product":     productID,
			"compilation": compilationID,
		}).Warn("subscriber notification failed")
		return p, fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}

	return p, nil
}

// DownloadPlist renders the installer manifest for an uploaded iOS build,
// embedding a freshly signed direct download URL.
func (s *Service) DownloadPlist(ctx context.Context, productID, compilationID string) (Plist, error) {
	plist, err := s.downloadPlist(ctx, productID, compilationID)
	metrics.RecordCompilationOp("plist", err)
	return plist, err
}

func (s *Service) downloadPlist(ctx context.Context, productID, compilationID string) (Plist, error) {
	p, c, err := s.withCompilation(ctx, productID, compilationID, true)
	if err != nil {
		return Plist{}, err
	}

	signed, err := s.blobs.GetDownloadURL(ctx, c.FilePath)
	if err != nil {
		return Plist{}, fmt.Errorf("sign download url: %w", err)
	}

	return Plist{
		FileName: manifest.FileName(c),
		Data:     manifest.Build(p, c, signed.URL),
	}, nil
}

// RemoveAll deletes every compilation's binary and clears the embedded
// collection. Used before a product itself may be deleted.
func (s *Service) RemoveAll(ctx context.Context, productID string) (product.Product, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Product not found")
		}
		return product.Product{}, fmt.Errorf("get product: %w", err)
	}

	for _, c := range p.Compilations {
		if err := s.blobs.RemoveFile(ctx, c.FilePath); err != nil {
			return product.Product{}, fmt.Errorf("remove object %s: %w", c.FilePath, err)
		}
	}

	p.Compilations = nil
	updated, err := s.products.UpdateProduct(ctx, p)
	if err != nil {
		return product.Product{}, fmt.Errorf("persist product: %w", err)
	}

	s.logger.WithContext(ctx).WithField("product", productID).
		Info("all compilations removed")

	s.urls.DecorateProduct(&updated)
	return updated, nil
}

// withCompilation loads the product together with the named compilation.
// When uploadedOnly is set, entries that exist but are not yet uploaded are
// reported the same way as missing ones.
func (s *Service) withCompilation(ctx context.Context, productID, compilationID string, uploadedOnly bool) (product.Product, product.Compilation, error) {
	p, err := s.products.GetProductWithCompilation(ctx, productID, compilationID, uploadedOnly)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, product.Compilation{}, errors.NotFound("Compilation not found")
		}
		return product.Product{}, product.Compilation{}, fmt.Errorf("get product with compilation: %w", err)
	}
	c, ok := p.Compilation(compilationID)
	if !ok {
		return product.Product{}, product.Compilation{}, errors.NotFound("Compilation not found")
	}
	return p, c, nil
}
