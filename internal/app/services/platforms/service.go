// Package platforms manages the catalog of distributable platforms and the
// OS versions accepted for each.
package platforms

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hangarhq/hangar/internal/app/domain/platform"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// Service implements platform catalog operations.
type Service struct {
	platforms storage.PlatformStore
	logger    *logging.Logger
}

// NewService creates the platform service.
func NewService(platforms storage.PlatformStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{platforms: platforms, logger: logger}
}

// CreateInput is the caller-supplied portion of a new platform.
type CreateInput struct {
	Name     string   `json:"name"`
	Versions []string `json:"platformVersions"`
}

// Create registers a platform. Names are unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (platform.Platform, error) {
	if in.Name == "" {
		return platform.Platform{}, errors.BadRequest("Missing name for new platform")
	}

	if _, err := s.platforms.GetPlatformByName(ctx, in.Name); err == nil {
		return platform.Platform{}, errors.Conflict("There already exists a platform with the provided name")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return platform.Platform{}, fmt.Errorf("check platform name: %w", err)
	}

	created, err := s.platforms.CreatePlatform(ctx, platform.Platform{
		Name:     in.Name,
		Versions: in.Versions,
	})
	if err != nil {
		return platform.Platform{}, fmt.Errorf("create platform: %w", err)
	}

	s.logger.WithContext(ctx).WithField("platform", created.Name).Info("platform created")
	return created, nil
}

// Get returns one platform by ID.
func (s *Service) Get(ctx context.Context, id string) (platform.Platform, error) {
	p, err := s.platforms.GetPlatform(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return platform.Platform{}, errors.NotFound("Platform not found")
		}
		return platform.Platform{}, fmt.Errorf("get platform: %w", err)
	}
	return p, nil
}

// List returns every platform, sorted by name.
func (s *Service) List(ctx context.Context) ([]platform.Platform, error) {
	list, err := s.platforms.ListPlatforms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}
	return list, nil
}

// Update replaces the platform's accepted versions.
func (s *Service) Update(ctx context.Context, id string, versions []string) (platform.Platform, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return platform.Platform{}, err
	}

	p.Versions = versions
	updated, err := s.platforms.UpdatePlatform(ctx, p)
	if err != nil {
		return platform.Platform{}, fmt.Errorf("update platform: %w", err)
	}
	return updated, nil
}

// Delete removes a platform.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.platforms.DeletePlatform(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("Platform not found")
		}
		return fmt.Errorf("delete platform: %w", err)
	}
	return nil
}
