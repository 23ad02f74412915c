// Package clients manages client organisations. A client scopes products
// and users; renaming one cascades through both collections.
package clients

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hangarhq/hangar/internal/app/domain/client"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// Service implements client organisation operations.
type Service struct {
	clients  storage.ClientStore
	users    storage.UserStore
	products storage.ProductStore
	logger   *logging.Logger
}

// NewService creates the client service.
func NewService(clients storage.ClientStore, users storage.UserStore, products storage.ProductStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{clients: clients, users: users, products: products, logger: logger}
}

// CreateInput is the caller-supplied portion of a new client.
type CreateInput struct {
	Name      string   `json:"name"`
	Envs      []string `json:"envs"`
	Domains   []string `json:"domains"`
	Whitelist []string `json:"whitelist"`
}

// UpdateInput carries a partial client update. Nil fields are unchanged.
type UpdateInput struct {
	Name      *string  `json:"name"`
	Envs      []string `json:"envs"`
	Domains   []string `json:"domains"`
	Whitelist []string `json:"whitelist"`
}

// Create registers a new client organisation.
func (s *Service) Create(ctx context.Context, in CreateInput) (client.Client, error) {
	if in.Name == "" {
		return client.Client{}, errors.BadRequest("Missing name for new client")
	}

	if _, err := s.clients.GetClientByName(ctx, in.Name); err == nil {
		return client.Client{}, errors.Conflict("There already exists a client with the provided name")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return client.Client{}, fmt.Errorf("check client name: %w", err)
	}

	created, err := s.clients.CreateClient(ctx, client.Client{
		Name:      in.Name,
		Envs:      in.Envs,
		Domains:   in.Domains,
		Whitelist: in.Whitelist,
	})
	if err != nil {
		return client.Client{}, fmt.Errorf("create client: %w", err)
	}

	s.logger.WithContext(ctx).WithField("client", created.Name).Info("client created")
	return created, nil
}

// Get returns one client by ID.
func (s *Service) Get(ctx context.Context, id string) (client.Client, error) {
	c, err := s.clients.GetClient(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return client.Client{}, errors.NotFound("Could not find requested Client object")
		}
		return client.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// GetByName returns one client by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (client.Client, error) {
	c, err := s.clients.GetClientByName(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return client.Client{}, errors.NotFound("Could not find requested Client object")
		}
		return client.Client{}, fmt.Errorf("get client by name: %w", err)
	}
	return c, nil
}

// List returns every client, newest first.
func (s *Service) List(ctx context.Context) ([]client.Client, error) {
	list, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return list, nil
}

// Update applies a partial update. A rename is first checked for uniqueness
// and then cascaded to the client's users and products before the client
// record itself is rewritten, so a crash mid-cascade never strands users or
// products under a name no client holds.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (client.Client, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return client.Client{}, err
	}

	renaming := in.Name != nil && *in.Name != "" && *in.Name != current.Name
	if renaming {
		if _, err := s.clients.GetClientByName(ctx, *in.Name); err == nil {
			return client.Client{}, errors.Conflict("There already exists a client with the provided name")
		} else if !stderrors.Is(err, storage.ErrNotFound) {
			return client.Client{}, fmt.Errorf("check client name: %w", err)
		}

		if err := s.users.RenameUsersClient(ctx, current.Name, *in.Name); err != nil {
			return client.Client{}, fmt.Errorf("cascade rename to users: %w", err)
		}
		if err := s.products.RenameProductsClient(ctx, current.Name, *in.Name); err != nil {
			return client.Client{}, fmt.Errorf("cascade rename to products: %w", err)
		}
		current.Name = *in.Name
	}

	if in.Envs != nil {
		current.Envs = in.Envs
	}
	if in.Domains != nil {
		current.Domains = in.Domains
	}
	if in.Whitelist != nil {
		current.Whitelist = in.Whitelist
	}

	updated, err := s.clients.UpdateClient(ctx, current)
	if err != nil {
		return client.Client{}, fmt.Errorf("update client: %w", err)
	}

	if renaming {
		s.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"client": id,
			"name":   updated.Name,
		}).Info("client renamed")
	}
	return updated, nil
}

// Delete removes a client. Clients that still own products cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	owned, err := s.products.FindProducts(ctx, storage.ProductFilter{Client: c.Name})
	if err != nil {
		return fmt.Errorf("find client products: %w", err)
	}
	if len(owned) > 0 {
		return errors.BadRequest("Cannot delete client with associated products")
	}

	if err := s.clients.DeleteClient(ctx, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}

	s.logger.WithContext(ctx).WithField("client", c.Name).Info("client deleted")
	return nil
}

// Domains returns the union of all clients' registered email domains.
func (s *Service) Domains(ctx context.Context) ([]string, error) {
	list, err := s.clients.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	seen := make(map[string]struct{})
	var domains []string
	for _, c := range list {
		for _, d := range c.Domains {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			domains = append(domains, d)
		}
	}
	return domains, nil
}
