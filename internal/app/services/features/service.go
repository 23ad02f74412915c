// Package features implements the tracker's feature records. A feature
// belongs to a blueprint; names are unique within their blueprint, compared
// case-insensitively.
package features

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hangarhq/hangar/internal/app/domain/feature"
	"github.com/hangarhq/hangar/internal/app/storage"
	"github.com/hangarhq/hangar/internal/errors"
	"github.com/hangarhq/hangar/internal/logging"
)

// idPrefix marks tracker feature identifiers.
const idPrefix = "ft."

var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9._\-]+$`)

// Validation failures surfaced to the tracker API.
var (
	ErrRequireName      = errors.BadRequest("feature must have a name")
	ErrRequireBlueprint = errors.BadRequest("feature must have a blueprint")
	ErrInvalidTags      = errors.BadRequest("invalid tag param")
	ErrInvalidTagChars  = errors.BadRequest("invalid character on tag")
	ErrAlreadyExists    = errors.Conflict("feature with same name already exists")
	ErrDoesNotExist     = errors.NotFound("feature does not exist")
)

// Service implements the tracker feature operations.
type Service struct {
	features storage.FeatureStore
	logger   *logging.Logger
}

// NewService creates the feature service.
func NewService(features storage.FeatureStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{features: features, logger: logger}
}

// CreateInput is the caller-supplied portion of a new feature.
type CreateInput struct {
	Name        string   `json:"name"`
	BlueprintID string   `json:"blueprintId"`
	Context     string   `json:"context"`
	Goal        string   `json:"goal"`
	Tags        []string `json:"tags"`
}

// UpdateInput carries a partial feature update. Nil fields are unchanged.
type UpdateInput struct {
	Name    *string  `json:"name"`
	Context *string  `json:"context"`
	Goal    *string  `json:"goal"`
	Tags    []string `json:"tags"`
}

// FindOptions narrow a feature search.
type FindOptions struct {
	BlueprintID string
	Name        string
	Tags        []string
}

func validateTags(tags []string) error {
	for _, tag := range tags {
		if !tagPattern.MatchString(tag) {
			return ErrInvalidTagChars
		}
	}
	return nil
}

// Create registers a new feature and returns its identifier.
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", ErrRequireName
	}
	if in.BlueprintID == "" {
		return "", ErrRequireBlueprint
	}
	if err := validateTags(in.Tags); err != nil {
		return "", err
	}

	existing, err := s.features.FindFeatures(ctx, storage.FeatureFilter{
		BlueprintID: in.BlueprintID,
		Name:        name,
	})
	if err != nil {
		return "", fmt.Errorf("check feature name: %w", err)
	}
	if len(existing) > 0 {
		return "", ErrAlreadyExists
	}

	created, err := s.features.CreateFeature(ctx, feature.Feature{
		ID:          idPrefix + uuid.NewString(),
		Name:        name,
		BlueprintID: in.BlueprintID,
		Context:     in.Context,
		Goal:        in.Goal,
		Tags:        in.Tags,
	})
	if err != nil {
		return "", fmt.Errorf("create feature: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"feature":   created.ID,
		"blueprint": created.BlueprintID,
	}).Info("feature created")
	return created.ID, nil
}

// Get returns one feature by ID.
func (s *Service) Get(ctx context.Context, id string) (feature.Feature, error) {
	f, err := s.features.GetFeature(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return feature.Feature{}, ErrDoesNotExist
		}
		return feature.Feature{}, fmt.Errorf("get feature: %w", err)
	}
	return f, nil
}

// Find returns the features matching the options.
func (s *Service) Find(ctx context.Context, opts FindOptions) ([]feature.Feature, error) {
	list, err := s.features.FindFeatures(ctx, storage.FeatureFilter{
		BlueprintID: opts.BlueprintID,
		Name:        opts.Name,
		Tags:        opts.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("find features: %w", err)
	}
	return list, nil
}

// Update applies a partial update. A rename must keep the name unique
// within the feature's blueprint.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (feature.Feature, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return feature.Feature{}, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return feature.Feature{}, ErrRequireName
		}
		if !strings.EqualFold(name, f.Name) {
			existing, err := s.features.FindFeatures(ctx, storage.FeatureFilter{
				BlueprintID: f.BlueprintID,
				Name:        name,
			})
			if err != nil {
				return feature.Feature{}, fmt.Errorf("check feature name: %w", err)
			}
			if len(existing) > 0 {
				return feature.Feature{}, ErrAlreadyExists
			}
		}
		f.Name = name
	}
	if in.Context != nil {
		f.Context = *in.Context
	}
	if in.Goal != nil {
		f.Goal = *in.Goal
	}
	if in.Tags != nil {
		if err := validateTags(in.Tags); err != nil {
			return feature.Feature{}, err
		}
		f.Tags = in.Tags
	}

	updated, err := s.features.UpdateFeature(ctx, f)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("update feature: %w", err)
	}
	return updated, nil
}

// Delete removes a feature.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.features.DeleteFeature(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return ErrDoesNotExist
		}
		return fmt.Errorf("delete feature: %w", err)
	}
	return nil
}

// Count returns the total number of features.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.features.CountFeatures(ctx)
	if err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return n, nil
}
