// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hangarhq/hangar/internal/app/domain/client"
	"github.com/hangarhq/hangar/internal/app/domain/feature"
	"github.com/hangarhq/hangar/internal/app/domain/platform"
	"github.com/hangarhq/hangar/internal/app/domain/product"
	"github.com/hangarhq/hangar/internal/app/domain/user"
	"github.com/hangarhq/hangar/internal/app/storage"
)

// Store implements every storage interface over process-local maps.
type Store struct {
	mu        sync.RWMutex
	products  map[string]product.Product
	clients   map[string]client.Client
	users     map[string]user.User
	platforms map[string]platform.Platform
	features  map[string]feature.Feature
	stats     []storage.StatSnapshot
}

var _ storage.ProductStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.PlatformStore = (*Store)(nil)
var _ storage.FeatureStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		products:  make(map[string]product.Product),
		clients:   make(map[string]client.Client),
		users:     make(map[string]user.User),
		platforms: make(map[string]platform.Platform),
		features:  make(map[string]feature.Feature),
	}
}

// ProductStore implementation ------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) FindProducts(_ context.Context, filter storage.ProductFilter) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []product.Product
	for _, p := range s.products {
		if filter.Client != "" && p.Client != filter.Client {
			continue
		}
		if filter.Name != "" && p.Name != filter.Name {
			continue
		}
		if filter.Platform != "" && !hasPlatform(p, filter.Platform) {
			continue
		}
		result = append(result, cloneProduct(p))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, p product.Product) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.products[p.ID]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	p.CreatedAt = original.CreatedAt
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetProductWithCompilation(_ context.Context, productID, compilationID string, uploadedOnly bool) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	c, ok := p.Compilation(compilationID)
	if !ok || (uploadedOnly && !c.Uploaded) {
		return product.Product{}, storage.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) SetCompilationUploaded(_ context.Context, productID, compilationID string) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	updated := false
	for i := range p.Compilations {
		if p.Compilations[i].ID == compilationID {
			p.Compilations[i].Uploaded = true
			updated = true
			break
		}
	}
	if !updated {
		return product.Product{}, storage.ErrNotFound
	}
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) AddSubscription(_ context.Context, productID, userID string) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	p.Subscriptions = append(p.Subscriptions, userID)
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) RemoveSubscription(_ context.Context, productID, userID string) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return product.Product{}, storage.ErrNotFound
	}
	var kept []string
	for _, id := range p.Subscriptions {
		if id != userID {
			kept = append(kept, id)
		}
	}
	p.Subscriptions = kept
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) RenameProductsClient(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.products {
		if p.Client == oldName {
			p.Client = newName
			s.products[id] = p
		}
	}
	return nil
}

// ClientStore implementation -------------------------------------------------

func (s *Store) CreateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.clients[c.ID] = cloneClient(c)
	return cloneClient(c), nil
}

func (s *Store) GetClient(_ context.Context, id string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return client.Client{}, storage.ErrNotFound
	}
	return cloneClient(c), nil
}

func (s *Store) GetClientByName(_ context.Context, name string) (client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.Name == name {
			return cloneClient(c), nil
		}
	}
	return client.Client{}, storage.ErrNotFound
}

func (s *Store) ListClients(_ context.Context) ([]client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []client.Client
	for _, c := range s.clients {
		result = append(result, cloneClient(c))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateClient(_ context.Context, c client.Client) (client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[c.ID]
	if !ok {
		return client.Client{}, storage.ErrNotFound
	}
	c.CreatedAt = original.CreatedAt
	s.clients[c.ID] = cloneClient(c)
	return cloneClient(c), nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.clients, id)
	return nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.CreatedAt = original.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) RenameUsersClient(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.Client == oldName {
			u.Client = newName
			s.users[id] = u
		}
	}
	return nil
}

// PlatformStore implementation -----------------------------------------------

func (s *Store) CreatePlatform(_ context.Context, p platform.Platform) (platform.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.platforms[p.ID] = clonePlatform(p)
	return clonePlatform(p), nil
}

func (s *Store) GetPlatform(_ context.Context, id string) (platform.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.platforms[id]
	if !ok {
		return platform.Platform{}, storage.ErrNotFound
	}
	return clonePlatform(p), nil
}

func (s *Store) GetPlatformByName(_ context.Context, name string) (platform.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.platforms {
		if p.Name == name {
			return clonePlatform(p), nil
		}
	}
	return platform.Platform{}, storage.ErrNotFound
}

func (s *Store) ListPlatforms(_ context.Context) ([]platform.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []platform.Platform
	for _, p := range s.platforms {
		result = append(result, clonePlatform(p))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) UpdatePlatform(_ context.Context, p platform.Platform) (platform.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.platforms[p.ID]
	if !ok {
		return platform.Platform{}, storage.ErrNotFound
	}
	p.CreatedAt = original.CreatedAt
	s.platforms[p.ID] = clonePlatform(p)
	return clonePlatform(p), nil
}

func (s *Store) DeletePlatform(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.platforms[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.platforms, id)
	return nil
}

// FeatureStore implementation ------------------------------------------------

func (s *Store) CreateFeature(_ context.Context, f feature.Feature) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	s.features[f.ID] = cloneFeature(f)
	return cloneFeature(f), nil
}

func (s *Store) GetFeature(_ context.Context, id string) (feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.features[id]
	if !ok {
		return feature.Feature{}, storage.ErrNotFound
	}
	return cloneFeature(f), nil
}

func (s *Store) FindFeatures(_ context.Context, filter storage.FeatureFilter) ([]feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []feature.Feature
	for _, f := range s.features {
		if filter.BlueprintID != "" && f.BlueprintID != filter.BlueprintID {
			continue
		}
		if filter.Name != "" && !strings.EqualFold(f.Name, filter.Name) {
			continue
		}
		if !hasAllTags(f, filter.Tags) {
			continue
		}
		result = append(result, cloneFeature(f))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateFeature(_ context.Context, f feature.Feature) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.features[f.ID]
	if !ok {
		return feature.Feature{}, storage.ErrNotFound
	}
	f.CreatedAt = original.CreatedAt
	f.UpdatedAt = time.Now().UTC()
	s.features[f.ID] = cloneFeature(f)
	return cloneFeature(f), nil
}

func (s *Store) CountFeatures(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.features)), nil
}

func (s *Store) DeleteFeature(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.features[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.features, id)
	return nil
}

// StatsStore implementation ---------------------------------------------------

func (s *Store) RecordStat(_ context.Context, snapshot storage.StatSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.stats {
		if existing.Type == snapshot.Type && existing.Date.Equal(snapshot.Date) {
			s.stats[i] = snapshot
			return nil
		}
	}
	s.stats = append(s.stats, snapshot)
	return nil
}

func (s *Store) ListStats(_ context.Context, statType string, since time.Time) ([]storage.StatSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.StatSnapshot
	for _, snapshot := range s.stats {
		if snapshot.Type == statType && !snapshot.Date.Before(since) {
			result = append(result, snapshot)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// helpers ---------------------------------------------------------------------

func hasPlatform(p product.Product, platformName string) bool {
	for _, c := range p.Compilations {
		if c.Platform == platformName {
			return true
		}
	}
	return false
}

func hasAllTags(f feature.Feature, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range f.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cloneProduct(p product.Product) product.Product {
	p.Icon = append([]byte(nil), p.Icon...)
	p.Compilations = append([]product.Compilation(nil), p.Compilations...)
	p.Subscriptions = append([]string(nil), p.Subscriptions...)
	return p
}

func cloneClient(c client.Client) client.Client {
	c.Envs = append([]string(nil), c.Envs...)
	c.Domains = append([]string(nil), c.Domains...)
	c.Whitelist = append([]string(nil), c.Whitelist...)
	return c
}

func clonePlatform(p platform.Platform) platform.Platform {
	p.Versions = append([]string(nil), p.Versions...)
	return p
}

func cloneFeature(f feature.Feature) feature.Feature {
	f.Tags = append([]string(nil), f.Tags...)
	return f
}
