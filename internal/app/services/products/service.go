// Package products manages the product catalog: creation, listing scoped to
// the caller's client, updates and deletion.
package products

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/app/urls"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// Service implements product catalog operations.
type Service struct {
	products storage.ProductStore
	urls     *urls.Builder
	logger   *logging.Logger
}

// NewService creates the product catalog service.
func NewService(products storage.ProductStore, builder *urls.Builder, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{products: products, urls: builder, logger: logger}
}

// Viewer is the authenticated caller a listing is scoped to. Non-admin
// viewers only see their own client's products.
type Viewer struct {
	UserID string
	Client string
	Admin  bool
}

// ListOptions narrow and page a product listing.
type ListOptions struct {
	Name     string
	Platform string
	Offset   int
	PageSize int
}

// CreateInput is the caller-supplied portion of a new product.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Client      string `json:"client"`
	Public      bool   `json:"public"`
	Icon        []byte `json:"icon,omitempty"`
}

// UpdateInput carries a partial product update. Nil fields are unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Public      *bool   `json:"public"`
	Icon        []byte  `json:"icon"`
}

// Create registers a new product. The (name, client) pair must be unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (product.Product, error) {
	if in.Name == "" || in.Client == "" {
		return product.Product{}, errors.BadRequest("Missing name and/or client info for new product")
	}

	existing, err := s.products.FindProducts(ctx, storage.ProductFilter{Name: in.Name, Client: in.Client})
	if err != nil {
		return product.Product{}, fmt.Errorf("check product name: %w", err)
	}
	if len(existing) > 0 {
		return product.Product{}, errors.Conflict("There already exists a Product with the same name for client " + in.Client)
	}

	created, err := s.products.CreateProduct(ctx, product.Product{
		Name:        in.Name,
		Description: in.Description,
		Client:      in.Client,
		Public:      in.Public,
		Icon:        in.Icon,
	})
	if err != nil {
		return product.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product": created.ID,
		"client":  created.Client,
	}).Info("product created")

	s.urls.DecorateProduct(&created)
	return created, nil
}

// Get returns one product by ID.
func (s *Service) Get(ctx context.Context, id string) (product.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Product not found")
		}
		return product.Product{}, fmt.Errorf("get product: %w", err)
	}
	s.urls.DecorateProduct(&p)
	return p, nil
}

// List returns the products visible to the viewer. A platform option both
// narrows the result to products having builds for that platform and trims
// each product's embedded list to those builds. Subscription membership is
// folded into the subscribed flag; the raw subscriber list is not exposed.
func (s *Service) List(ctx context.Context, v Viewer, opts ListOptions) ([]product.Product, error) {
	filter := storage.ProductFilter{
		Name:     opts.Name,
		Platform: opts.Platform,
		Offset:   opts.Offset,
		Limit:    opts.PageSize,
	}
	if !v.Admin {
		filter.Client = v.Client
	}

	list, err := s.products.FindProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	for i := range list {
		p := &list[i]
		if opts.Platform != "" {
			var kept []product.Compilation
			for _, c := range p.Compilations {
				if c.Platform == opts.Platform {
					kept = append(kept, c)
				}
			}
			p.Compilations = kept
		}
		p.Subscribed = p.IsSubscribed(v.UserID)
		p.Subscriptions = nil
		s.urls.DecorateProduct(p)
	}
	return list, nil
}

// Update applies a partial update to the product's own fields. Embedded
// compilations and subscriptions are not touched here.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (product.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Product not found")
		}
		return product.Product{}, fmt.Errorf("get product: %w", err)
	}

	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Public != nil {
		p.Public = *in.Public
	}
	if in.Icon != nil {
		p.Icon = in.Icon
	}

	updated, err := s.products.UpdateProduct(ctx, p)
	if err != nil {
		return product.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.urls.DecorateProduct(&updated)
	return updated, nil
}

// Delete removes a product. Products still holding compilations cannot be
// deleted; their builds must be removed first.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("Product not found")
		}
		return fmt.Errorf("get product: %w", err)
	}

	if len(p.Compilations) > 0 {
		return errors.Conflict("Cannot delete product with existing compilations")
	}

	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.logger.WithContext(ctx).WithField("product", id).Info("product deleted")
	return nil
}

// Icon returns the product's raw icon bytes.
func (s *Service) Icon(ctx context.Context, id string) ([]byte, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("Product not found")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(p.Icon) == 0 {
		return nil, errors.NotFound("Product has no icon")
	}
	return p.Icon, nil
}
