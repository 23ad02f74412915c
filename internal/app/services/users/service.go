// Package users manages user accounts and their product subscriptions.
// Registration resolves the user's client from superadmin domains, client
// whitelists and client email domains, then registers a notification
// identity so acknowledgment emails can reach the user.
package users

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"

	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	"github.com/hangarhq/hangar/internal/app/services/notifications"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// Config sets the registration policy.
type Config struct {
	// SuperadminDomains lists email domains whose users become admins of
	// the AdminClient regardless of any client's domain registration.
	SuperadminDomains []string `yaml:"superadmin_domains" env:"SUPERADMIN_DOMAINS"`
	// AdminClient is the client name superadmin users are attached to.
	AdminClient string `yaml:"admin_client" env:"ADMIN_CLIENT"`
}

// Service implements user account operations.
type Service struct {
	cfg      Config
	users    storage.UserStore
	clients  storage.ClientStore
	products storage.ProductStore
	notifier notifications.Dispatcher
	logger   *logging.Logger
}

// NewService creates the user service.
func NewService(cfg Config, users storage.UserStore, clients storage.ClientStore, products storage.ProductStore, notifier notifications.Dispatcher, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		cfg:      cfg,
		users:    users,
		clients:  clients,
		products: products,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateInput is the caller-supplied portion of a new user.
type CreateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Service) isSuperadmin(email string) bool {
	domain := user.Domain(email)
	for _, d := range s.cfg.SuperadminDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// Create registers a new user. The user's client is resolved in order from
// superadmin domains, client whitelists and client email domains; emails
// matching none of them cannot register. The notification identity is
// created after the account; if that fails the account is removed again so
// a retry starts clean.
func (s *Service) Create(ctx context.Context, in CreateInput) (user.User, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return user.User{}, errors.BadRequest("Email not valid")
	}

	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return user.User{}, errors.Conflict("Email already in use")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, fmt.Errorf("check email: %w", err)
	}

	u := user.User{Name: in.Name, Email: in.Email}

	if s.isSuperadmin(in.Email) {
		u.Client = s.cfg.AdminClient
		u.Admin = true
	} else {
		allClients, err := s.clients.ListClients(ctx)
		if err != nil {
			return user.User{}, fmt.Errorf("list clients: %w", err)
		}

		domain := user.Domain(in.Email)
		for _, c := range allClients {
			if c.Whitelists(in.Email) {
				u.Client = c.Name
				break
			}
		}
		if u.Client == "" {
			for _, c := range allClients {
				if c.AllowsDomain(domain) {
					u.Client = c.Name
					break
				}
			}
		}
		if u.Client == "" {
			return user.User{}, errors.Conflict("Cannot register user for provided domain")
		}
	}

	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.notifier.RegisterIdentity(ctx, created); err != nil {
		// The account is unusable without a notification identity; undo
		// the creation so the caller can retry.
		if delErr := s.users.DeleteUser(ctx, created.ID); delErr != nil {
			s.logger.WithContext(ctx).WithError(delErr).WithField("user", created.ID).
				Error("failed to remove user after identity registration failure")
		}
		return user.User{}, fmt.Errorf("register notification identity: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"user":   created.ID,
		"client": created.Client,
	}).Info("user created")
	return created, nil
}

// Get returns one user by ID.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("Could not find requested user")
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	list, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return list, nil
}

// Delete removes a user account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("Could not find requested user")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Subscribe adds the user to a product's acknowledgment notification list.
func (s *Service) Subscribe(ctx context.Context, userID, productID string) (product.Product, error) {
	p, err := s.products.AddSubscription(ctx, productID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Product not found")
		}
		return product.Product{}, fmt.Errorf("add subscription: %w", err)
	}
	return p, nil
}

// Unsubscribe removes the user from a product's notification list.
func (s *Service) Unsubscribe(ctx context.Context, userID, productID string) (product.Product, error) {
	p, err := s.products.RemoveSubscription(ctx, productID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return product.Product{}, errors.NotFound("Product not found")
		}
		return product.Product{}, fmt.Errorf("remove subscription: %w", err)
	}
	return p, nil
}
